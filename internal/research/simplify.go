package research

import (
	"regexp"
	"strings"
)

// Simplifier は論文の抄録を一般読者向けに平易化するインターフェース。
type Simplifier interface {
	Simplify(abstract string) string
}

const (
	simplifiedMaxRunes = 200
	noAbstract         = "No abstract available."
)

var (
	jargonPattern       = regexp.MustCompile(`(?i)\b(methodology|statistical|empirical|quantitative)\b`)
	significancePattern = regexp.MustCompile(`(?i)\b(p < 0\.05|significant|correlation)\b`)
	medicalTermsPattern = regexp.MustCompile(`(?i)complex medical terms`)
)

// RuleSimplifier は固定の置換規則による平易化。
// 専門用語を除去し、有意性の表現を言い換え、200文字に切り詰めて省略記号を付ける。
type RuleSimplifier struct{}

// Simplify は抄録を平易化する。空の抄録には定型文を返す。
func (RuleSimplifier) Simplify(abstract string) string {
	if strings.TrimSpace(abstract) == "" {
		return noAbstract
	}
	s := jargonPattern.ReplaceAllString(abstract, "")
	s = significancePattern.ReplaceAllString(s, "shows connection")
	s = medicalTermsPattern.ReplaceAllString(s, "medical concepts")

	if r := []rune(s); len(r) > simplifiedMaxRunes {
		s = string(r[:simplifiedMaxRunes])
	}
	return s + "..."
}

var _ Simplifier = RuleSimplifier{}
