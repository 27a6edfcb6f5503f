// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer は外部サービスが生成したコメント文やテンプレート文を
// 投稿前にプレーンテキストへ正規化する。
package security

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// MaxCommentRunes はコメント1件あたりの最大文字数。
const MaxCommentRunes = 1250

// TextSanitizer はコメント本文のサニタイズ機能のインターフェースを定義する。
type TextSanitizer interface {
	// Sanitize は全てのHTMLタグを除去し、空白を1つに畳み、
	// MaxCommentRunes 文字で切り詰めたプレーンテキストを返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
// bluemondayのStrictPolicyで全タグを除去する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize は生成テキストをプレーンテキストに変換する。
func (s *textSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	// StrictPolicy はエンティティをエスケープするため、投稿用に戻す
	text := html.UnescapeString(s.policy.Sanitize(raw))
	text = strings.Join(strings.Fields(text), " ")

	if utf8.RuneCountInString(text) > MaxCommentRunes {
		runes := []rune(text)
		text = strings.TrimSpace(string(runes[:MaxCommentRunes]))
	}
	return text
}
