package domain

import (
	"html"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ============================================================
// Normalisers applied to model output and user input
// ============================================================

var (
	titleCaser = cases.Title(language.Und)
	markupRe   = regexp.MustCompile(`<[^>]*>`)
)

// TitleCase proper-cases a personal name and collapses inner whitespace.
// "aLi   raZA" becomes "Ali Raza".
func TitleCase(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return titleCaser.String(strings.Join(fields, " "))
}

// NormalizePhone canonicalises a phone number. Pakistani mobiles become
// "03XX XXXXXXX" with +92, 92 and 0092 prefixes folded. Other numbers with at
// least 7 digits are returned as bare digits, keeping a leading '+'. Anything
// shorter is unusable and returns "".
func NormalizePhone(raw string) string {
	trimmed := strings.TrimSpace(raw)
	var b strings.Builder
	for _, r := range trimmed {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case strings.HasPrefix(digits, "0092") && len(digits) == 14:
		digits = "0" + digits[4:]
	case strings.HasPrefix(digits, "92") && len(digits) == 12:
		digits = "0" + digits[2:]
	case strings.HasPrefix(digits, "3") && len(digits) == 10:
		digits = "0" + digits
	}

	if len(digits) == 11 && strings.HasPrefix(digits, "03") {
		return digits[:4] + " " + digits[4:]
	}
	if len(digits) < 7 {
		return ""
	}
	if strings.HasPrefix(trimmed, "+") {
		return "+" + digits
	}
	return digits
}

// PhoneKey reduces a phone to digits for de-duplication.
func PhoneKey(phone string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, NormalizePhone(phone))
}

// ClampPercent bounds v to [0,100].
func ClampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// ParseSentiment maps free text to a known sentiment; unknown values are neutral.
func ParseSentiment(s string) Sentiment {
	switch Sentiment(strings.ToLower(strings.TrimSpace(s))) {
	case SentimentPositive:
		return SentimentPositive
	case SentimentNegative:
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

// ParseStage returns the canonical stage and false for anything outside the
// pipeline vocabulary.
func ParseStage(s string) (Stage, bool) {
	st := Stage(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Stages {
		if st == known {
			return st, true
		}
	}
	return StageLead, false
}

// ParseCategory maps free text to a lead category, defaulting to smb.
func ParseCategory(s string) LeadCategory {
	v := strings.ToLower(strings.TrimSpace(s))
	switch {
	case strings.HasPrefix(v, "corp"), v == "enterprise":
		return CategoryCorporate
	case strings.HasPrefix(v, "indiv"), v == "person", v == "personal", v == "b2c":
		return CategoryIndividual
	default:
		return CategorySMB
	}
}

// StripMarkup removes HTML tags and entities and collapses whitespace, so the
// result is the text a reader would see.
func StripMarkup(s string) string {
	plain := html.UnescapeString(markupRe.ReplaceAllString(s, " "))
	return strings.Join(strings.Fields(plain), " ")
}

// RuneLen counts characters, not bytes.
func RuneLen(s string) int {
	return utf8.RuneCountInString(s)
}

// ValidEmail is a light syntactic check: one '@', non-empty local part and a
// dotted domain.
func ValidEmail(s string) bool {
	s = strings.TrimSpace(s)
	at := strings.IndexByte(s, '@')
	if at <= 0 || at != strings.LastIndexByte(s, '@') {
		return false
	}
	domainPart := s[at+1:]
	dot := strings.LastIndexByte(domainPart, '.')
	return dot > 0 && dot < len(domainPart)-1 && !strings.ContainsAny(s, " \t")
}
