package textgen

import (
	"regexp"
	"strings"
	"unicode"
)

// 採用告知の投稿を示すパターン
var hiringPatterns = compileAll(
	`(?i)\b(we'?re|is|are)\s+hiring\b`,
	`(?i)\bjob\s+(opening|opportunity|posting|alert|vacancy)\b`,
	`(?i)\b(open|new)\s+(position|role|vacancy)\b`,
	`(?i)\blooking\s+to\s+(fill|hire)\b`,
	`(?i)\bapply\s+(now|here|today|below)\b`,
	`(?i)\bjoin\s+our\s+team\b`,
	`(?i)\b(vacancy|vacancies|recruitment|recruiter)\b`,
	`(?i)#hiring\b`,
	`(?i)\b(now|currently|i'?m)\s+hiring\b`,
)

// 採用投稿から会社名を取り出すパターン（先頭から順に試す）
var companyPatterns = compileAll(
	`(?i)^(.+?)\s+is\s+(?:hiring|currently\s+looking)`,
	`(?i)hiring\s+(?:at|for)\s+([A-Z][A-Za-z0-9 &.'-]+?)(?:\s*[!.,;:?]|\s+(?:we|for|and|to)\b|$)`,
	`(?i)join\s+(?:us\s+at|our\s+team\s+at|the\s+team\s+at)\s+([A-Z][A-Za-z0-9 &.'-]+?)(?:\s*[!.,;:?]|$)`,
	`\bat\s+([A-Z][A-Za-z0-9 &.'-]{2,40}?)(?:\s*[!.,;:?]|\s+(?:is|we|and|for|as|in)\b|$)`,
)

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}

// DetectHiring は採用告知の投稿かどうかを判定し、取り出せた場合は会社名も返す。
func DetectHiring(postText string) (bool, string) {
	if postText == "" {
		return false, ""
	}

	hiring := false
	for _, p := range hiringPatterns {
		if p.MatchString(postText) {
			hiring = true
			break
		}
	}
	if !hiring {
		return false, ""
	}

	for _, p := range companyPatterns {
		m := p.FindStringSubmatch(postText)
		if m == nil {
			continue
		}
		company := strings.TrimRight(strings.TrimSpace(m[1]), ".")
		if n := len(company); n >= 2 && n <= 50 {
			return true, company
		}
	}
	return true, ""
}

// HiringComment は採用投稿向けのハッシュタグコメントを返す。
// 例: "#hiring #ValorBehavioralHealth"、会社名が不明なら "#hiring"。
func HiringComment(postText string) string {
	_, company := DetectHiring(postText)
	if tag := hashtag(company); tag != "" {
		return "#hiring #" + tag
	}
	return "#hiring"
}

// hashtag は会社名を空白なしのPascalCaseに変換する。英数字以外は除去する。
func hashtag(company string) string {
	var b strings.Builder
	for _, word := range strings.Fields(company) {
		first := true
		for _, r := range word {
			if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
				continue
			}
			if first {
				r = unicode.ToUpper(r)
				first = false
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}
