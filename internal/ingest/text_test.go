package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeWhitespace(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"collapses spaces and tabs", "a  \t b", "a b"},
		{"crlf to lf", "line1\r\nline2\rline3", "line1\nline2\nline3"},
		{"blank line runs become one break", "para1\n\n\n\npara2", "para1\n\npara2"},
		{"blank lines with trailing spaces", "para1\n  \npara2", "para1\n\npara2"},
		{"trims ends", "  hello world \n", "hello world"},
		{"single newline preserved", "line1\nline2", "line1\nline2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeWhitespace(tt.in))
		})
	}
}

func TestCleanForEmbedding(t *testing.T) {
	assert.Equal(t, "abc", CleanForEmbedding("a\x00b\x01c"))
	assert.Equal(t, "a b", CleanForEmbedding("a\tb"), "tabs survive stripping and collapse to a space")
	assert.Equal(t, "line1\nline2", CleanForEmbedding("line1\nline2"))
	assert.Equal(t, "", CleanForEmbedding(""))
	assert.Equal(t, "", CleanForEmbedding("\x00\x1F"))
}
