package ingest

import (
	"regexp"
	"strings"
)

var (
	crlfPattern       = regexp.MustCompile(`\r\n|\r`)
	spaceRunPattern   = regexp.MustCompile(`[ \t]+`)
	newlineRunPattern = regexp.MustCompile(`\n[ \t]*\n[ \t\n]*`)
)

// NormalizeWhitespace collapses runs of spaces and tabs, converts CRLF and
// CR line endings to LF, reduces blank-line runs to a single paragraph
// break, and trims the result.
func NormalizeWhitespace(text string) string {
	if text == "" {
		return ""
	}

	text = crlfPattern.ReplaceAllString(text, "\n")
	text = spaceRunPattern.ReplaceAllString(text, " ")
	text = newlineRunPattern.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text)
}

var controlPattern = regexp.MustCompile("[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]")

// CleanForEmbedding strips control characters (keeping newlines and tabs)
// and normalizes whitespace. Applied to extracted text before chunking.
func CleanForEmbedding(text string) string {
	if text == "" {
		return ""
	}

	text = controlPattern.ReplaceAllString(text, "")
	return NormalizeWhitespace(text)
}
