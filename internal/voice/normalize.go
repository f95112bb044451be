package voice

import (
	"regexp"
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// Pronunciation table for acronyms that synthesizers otherwise read as
// words. Each is expanded into spelled-out letters.
var spelledAcronyms = map[string]bool{
	"AI":   true,
	"API":  true,
	"B2B":  false, // reads fine as-is
	"CEO":  true,
	"CSS":  true,
	"CTA":  true,
	"FAQ":  true,
	"HTML": true,
	"HTTP": true,
	"JSON": true,
	"KPI":  true,
	"LLM":  true,
	"MVP":  true,
	"ROI":  true,
	"SaaS": false,
	"SEO":  true,
	"SSML": true,
	"TTS":  true,
	"UI":   true,
	"URL":  true,
	"UX":   true,
}

var (
	codeFenceRe    = regexp.MustCompile("(?s)```.*?```")
	inlineCodeRe   = regexp.MustCompile("`([^`]*)`")
	markdownLinkRe = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	headingRe      = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	bulletRe       = regexp.MustCompile(`(?m)^\s*[-*+]\s+`)
	emphasisRe     = regexp.MustCompile(`(\*\*|__|\*|_|~~)`)
	wordRe         = regexp.MustCompile(`[A-Za-z0-9]+`)
	whitespaceRe   = regexp.MustCompile(`\s+`)
	sentenceEndRe  = regexp.MustCompile(`([.!?])(\s+)`)
)

// ForSpeech normalizes assistant text for synthesis: ANSI escape sequences
// and markdown formatting markers are stripped, known acronyms are spelled
// out for clearer pronunciation, and whitespace is collapsed.
func ForSpeech(text string) string {
	text = ansi.Strip(text)

	text = codeFenceRe.ReplaceAllString(text, " ")
	text = inlineCodeRe.ReplaceAllString(text, "$1")
	text = markdownLinkRe.ReplaceAllString(text, "$1")
	text = headingRe.ReplaceAllString(text, "")
	text = bulletRe.ReplaceAllString(text, "")
	text = emphasisRe.ReplaceAllString(text, "")

	text = wordRe.ReplaceAllStringFunc(text, expandAcronym)

	text = whitespaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// ToSSML wraps normalized text in an SSML document with pacing pauses at
// sentence boundaries.
func ToSSML(text string) string {
	text = ForSpeech(text)
	text = escapeSSML(text)
	text = sentenceEndRe.ReplaceAllString(text, `$1 <break time="300ms"/> `)
	return "<speak>" + text + "</speak>"
}

// IsSSML reports whether text is already an SSML document.
func IsSSML(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), "<speak>")
}

// expandAcronym spells out a known acronym ("API" -> "A P I"); anything not
// in the table passes through untouched.
func expandAcronym(word string) string {
	if !spelledAcronyms[word] {
		return word
	}
	letters := strings.Split(word, "")
	return strings.Join(letters, " ")
}

func escapeSSML(text string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
	)
	return replacer.Replace(text)
}
