package model

import (
	"regexp"
	"strings"
)

var (
	arabicCharRe = regexp.MustCompile(`[\x{0600}-\x{06FF}\x{0750}-\x{077F}\x{08A0}-\x{08FF}]`)

	// Tashkeel diacritics, superscript alef, and tatweel.
	tashkeelRe = regexp.MustCompile(`[\x{064B}-\x{0652}\x{0670}\x{0640}]`)

	alefVariantsRe = regexp.MustCompile(`[إأٱآا]`)
	yehVariantsRe  = regexp.MustCompile(`[ىئ]`)
	whitespaceRe   = regexp.MustCompile(`\s+`)
)

// ContainsArabic reports whether text contains Arabic-script characters.
func ContainsArabic(text string) bool {
	return arabicCharRe.MatchString(text)
}

// NormalizeArabic canonicalizes Arabic text for more stable tokenization:
// diacritics and tatweel are removed, alef and yeh variants collapse to
// their bare forms, and whitespace runs collapse to single spaces.
func NormalizeArabic(text string) string {
	out := tashkeelRe.ReplaceAllString(text, "")
	out = alefVariantsRe.ReplaceAllString(out, "ا")
	out = yehVariantsRe.ReplaceAllString(out, "ي")
	out = whitespaceRe.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}
