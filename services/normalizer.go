package services

import (
	"regexp"
	"strings"

	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	ligatureReplacer = strings.NewReplacer(
		"ﬁ", "fi",
		"ﬂ", "fl",
		"ﬀ", "ff",
		"ﬃ", "ffi",
		"ﬄ", "ffl",
		"ﬆ", "st",
	)
	// "ab-\nweichung" -> "abweichung"
	hyphenationRegex = regexp.MustCompile(`([\p{L}\p{N}])-\r?\n(\p{Ll})`)
	inlineSpaceRegex = regexp.MustCompile(`[ \t\f\v\x{00A0}]+`)
	newlineRunRegex  = regexp.MustCompile(`\n{3,}`)
)

// NormalizeText bereitet Extraktionstext auf: NFC, Ligaturen, Silbentrennung am Zeilenende und Leerraum.
func NormalizeText(s string) string {
	if s == "" {
		return ""
	}
	s = ligatureReplacer.Replace(s)
	if normalized, _, err := transform.String(transform.Chain(norm.NFC), s); err == nil {
		s = normalized
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = hyphenationRegex.ReplaceAllString(s, "$1$2")
	s = inlineSpaceRegex.ReplaceAllString(s, " ")
	s = newlineRunRegex.ReplaceAllString(s, "\n\n")

	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
