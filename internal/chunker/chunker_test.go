package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunk_LongUniformText(t *testing.T) {
	c, err := New(Config{ChunkSize: 1000, Overlap: 200}, nil)
	require.NoError(t, err)

	text := strings.Repeat("a", 2500)
	chunks := c.Chunk(text, "doc-1")

	require.GreaterOrEqual(t, len(chunks), 3)
	for _, ch := range chunks {
		assert.LessOrEqual(t, len(ch.Text), 1000)
		assert.NotEmpty(t, ch.Text)
		assert.Less(t, ch.Start, ch.End)
	}

	// Windows overlap: each chunk starts before the previous one ended.
	for i := 1; i < len(chunks); i++ {
		assert.Less(t, chunks[i].Start, chunks[i-1].End)
		assert.Greater(t, chunks[i].Start, chunks[i-1].Start)
	}
}

func TestChunk_Deterministic(t *testing.T) {
	c, err := New(Config{ChunkSize: 300, Overlap: 50}, nil)
	require.NoError(t, err)

	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 40)

	first := c.Chunk(text, "doc-7")
	second := c.Chunk(text, "doc-7")

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].Text, second[i].Text)
		assert.Equal(t, first[i].Start, second[i].Start)
		assert.Equal(t, first[i].End, second[i].End)
	}
}

func TestChunk_DifferentDocumentIDsDifferentChunkIDs(t *testing.T) {
	c, err := New(Config{}, nil)
	require.NoError(t, err)

	text := "Some shared content that appears in two documents."

	a := c.Chunk(text, "doc-a")
	b := c.Chunk(text, "doc-b")

	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.NotEqual(t, a[0].ID, b[0].ID)
}

func TestChunk_SentenceBoundaryBacktracking(t *testing.T) {
	c, err := New(Config{ChunkSize: 100, Overlap: 20}, nil)
	require.NoError(t, err)

	// A sentence ending lands inside the last 100 chars of the first
	// window, past its midpoint; the cut should fall right after it.
	text := strings.Repeat("x", 80) + ". " + strings.Repeat("y", 200)
	chunks := c.Chunk(text, "doc-2")

	require.NotEmpty(t, chunks)
	assert.Equal(t, 81, chunks[0].End, "cut should land immediately after the period")
	assert.Equal(t, strings.Repeat("x", 80)+".", chunks[0].Text)
}

func TestChunk_ShortText(t *testing.T) {
	c, err := New(Config{}, nil)
	require.NoError(t, err)

	chunks := c.Chunk("short text", "doc-3")
	require.Len(t, chunks, 1)
	assert.Equal(t, "short text", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, 10, chunks[0].End)
	assert.Equal(t, 0, chunks[0].Index)
}

func TestChunk_EmptyInput(t *testing.T) {
	c, err := New(Config{}, nil)
	require.NoError(t, err)

	assert.Nil(t, c.Chunk("", "doc-4"))
	assert.Nil(t, c.Chunk("   \n\t  ", "doc-4"))
}

func TestChunk_EmptyDocumentIDUsesFallback(t *testing.T) {
	c, err := New(Config{}, nil)
	require.NoError(t, err)

	anonymous := c.Chunk("hello world", "")
	named := c.Chunk("hello world", "doc")

	require.Len(t, anonymous, 1)
	require.Len(t, named, 1)
	assert.Equal(t, named[0].ID, anonymous[0].ID, "empty document id hashes as \"doc\"")
}

func TestChunk_ForwardProgressWithLargeOverlap(t *testing.T) {
	// Overlap >= ChunkSize must still advance at least one character.
	c, err := New(Config{ChunkSize: 10, Overlap: 10}, nil)
	require.NoError(t, err)

	text := strings.Repeat("z", 50)
	chunks := c.Chunk(text, "doc-5")

	require.NotEmpty(t, chunks)
	for i := 1; i < len(chunks); i++ {
		assert.Greater(t, chunks[i].Start, chunks[i-1].Start)
	}
}

func TestChunk_MultiByteRuneOffsets(t *testing.T) {
	c, err := New(Config{ChunkSize: 100, Overlap: 20}, nil)
	require.NoError(t, err)

	// 250 two-byte runes; byte-based windows would cut mid-rune.
	text := strings.Repeat("é", 250)
	chunks := c.Chunk(text, "doc-8")

	require.Len(t, chunks, 3)
	for _, ch := range chunks {
		assert.True(t, utf8.ValidString(ch.Text))
		assert.Equal(t, ch.End-ch.Start, utf8.RuneCountInString(ch.Text))
		assert.LessOrEqual(t, utf8.RuneCountInString(ch.Text), 100)
	}

	// Offsets count runes, not bytes.
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, 100, chunks[0].End)
	assert.Equal(t, 80, chunks[1].Start)
	assert.Equal(t, 250, chunks[2].End)
}

func TestChunk_MultiByteBoundaryBacktracking(t *testing.T) {
	c, err := New(Config{ChunkSize: 100, Overlap: 20}, nil)
	require.NoError(t, err)

	// A sentence ending at rune 80, past the window midpoint, with
	// multi-byte text before it.
	text := strings.Repeat("é", 80) + "." + strings.Repeat("y", 200)
	chunks := c.Chunk(text, "doc-9")

	require.NotEmpty(t, chunks)
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, 81, chunks[0].End)
	assert.Equal(t, strings.Repeat("é", 80)+".", chunks[0].Text)
	assert.True(t, utf8.ValidString(chunks[0].Text))
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"defaults", Config{ChunkSize: 1000, Overlap: 200}, false},
		{"zero overlap", Config{ChunkSize: 100, Overlap: 0}, false},
		{"negative chunk size", Config{ChunkSize: -1, Overlap: 0}, true},
		{"negative overlap", Config{ChunkSize: 100, Overlap: -5}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
