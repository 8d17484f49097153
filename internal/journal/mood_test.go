package journal

import (
	"strings"
	"testing"
)

func TestKeywordAnalyzer_Analyze(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int
	}{
		{"two positive words", "I am happy and grateful", 6},
		{"no matches", "went to the store today", 5},
		{"empty", "", 5},
		{"single positive rounds half up", "happy", 6},
		{"single negative rounds half up", "sad", 5},
		{"mixed cancels", "happy but sad", 5},
		{"case insensitive", "HAPPY Grateful", 6},
		{"punctuation prevents exact match", "happy! grateful.", 5},
		{"no substring matching", "unhappy badly", 5},
		{"multiple whitespace", "great\n\tgreat   great", 7},
		{"three negatives", "sad angry anxious", 4},
	}

	a := KeywordAnalyzer{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.Analyze(tt.content); got != tt.want {
				t.Errorf("Analyze(%q) = %d, want %d", tt.content, got, tt.want)
			}
		})
	}
}

func TestKeywordAnalyzer_Analyze_ClampsToRange(t *testing.T) {
	a := KeywordAnalyzer{}

	if got := a.Analyze(strings.Repeat("amazing ", 40)); got != 10 {
		t.Errorf("many positive words = %d, want 10", got)
	}
	if got := a.Analyze(strings.Repeat("terrible ", 40)); got != 1 {
		t.Errorf("many negative words = %d, want 1", got)
	}
}
