package services

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

var (
	phoneRE     = regexp.MustCompile(`^09\d{8}$`)
	phoneStrip  = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")
	spaceRunsRE = regexp.MustCompile(`\s+`)
)

// NormalizePhone folds full-width digits, strips common separators and
// rewrites the +886 country prefix to the local leading zero.
func NormalizePhone(raw string) string {
	s := phoneStrip.Replace(width.Narrow.String(strings.TrimSpace(raw)))
	if strings.HasPrefix(s, "+886") {
		s = "0" + strings.TrimPrefix(s[4:], "0")
	}
	return s
}

// ValidPhone reports whether phone is a normalized Taiwan mobile number.
func ValidPhone(phone string) bool { return phoneRE.MatchString(phone) }

// NormalizeName applies Unicode NFC, trims and collapses inner whitespace so
// visually identical names compare equal.
func NormalizeName(s string) string {
	return spaceRunsRE.ReplaceAllString(strings.TrimSpace(norm.NFC.String(s)), " ")
}

// normalizeTags trims, drops empties and removes duplicates keeping the first
// occurrence.
func normalizeTags(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, t := range in {
		t = norm.NFC.String(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// maskPhone hides the middle digits of a phone for log output.
func maskPhone(p string) string {
	if len(p) < 7 {
		return "***"
	}
	return p[:4] + "***" + p[len(p)-3:]
}
