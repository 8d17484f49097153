package journal

import (
	"math"
	"strings"

	"github.com/hitoshi/unwind/internal/model"
)

// MoodAnalyzer は日記本文から気分スコアを推定するインターフェース。
// 戻り値は常に[1,10]の範囲に収める。
type MoodAnalyzer interface {
	Analyze(content string) int
}

const (
	neutralMood = 5.0
	moodStep    = 0.5
)

var positiveWords = map[string]struct{}{
	"happy": {}, "good": {}, "great": {}, "wonderful": {},
	"amazing": {}, "love": {}, "excited": {}, "grateful": {},
}

var negativeWords = map[string]struct{}{
	"sad": {}, "bad": {}, "terrible": {}, "awful": {},
	"hate": {}, "angry": {}, "depressed": {}, "anxious": {},
}

// KeywordAnalyzer は単語一致による簡易な気分推定。
// 空白で分割したトークンの完全一致のみを数え、語幹処理や部分一致は行わない。
type KeywordAnalyzer struct{}

// Analyze は中立値5から肯定語ごとに+0.5、否定語ごとに-0.5して四捨五入する。
func (KeywordAnalyzer) Analyze(content string) int {
	score := neutralMood
	for _, word := range strings.Fields(strings.ToLower(content)) {
		if _, ok := positiveWords[word]; ok {
			score += moodStep
		}
		if _, ok := negativeWords[word]; ok {
			score -= moodStep
		}
	}
	return clampMood(int(math.Floor(score + 0.5)))
}

func clampMood(score int) int {
	if score < model.MinMoodScore {
		return model.MinMoodScore
	}
	if score > model.MaxMoodScore {
		return model.MaxMoodScore
	}
	return score
}

var _ MoodAnalyzer = KeywordAnalyzer{}
