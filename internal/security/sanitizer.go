// Package security は外部コンテンツと外部接続の安全性確保を提供する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer は外部APIから受け取ったHTML断片をプレーンテキストに変換する。
// 論文の抄録や書籍カタログの説明文に使う。
type TextSanitizer interface {
	PlainText(raw string) string
}

type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer は全タグを除去するTextSanitizerを生成する。
func NewTextSanitizer() TextSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// PlainText はタグを除去し、文字参照を戻したうえで連続する空白を1つにまとめる。
// script/styleの中身はタグと共に除去される。
func (s *textSanitizer) PlainText(raw string) string {
	if raw == "" {
		return ""
	}
	stripped := html.UnescapeString(s.policy.Sanitize(raw))
	return strings.Join(strings.Fields(stripped), " ")
}
