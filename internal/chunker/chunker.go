// Package chunker splits normalized document text into overlapping,
// content-addressed segments for embedding generation.
//
// Chunking is a pure function of its inputs: the same text, document ID,
// and configuration always produce the same chunk IDs. No randomness, no
// wall-clock dependency.
package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Chunk is a contiguous, content-addressed segment of a document's text.
type Chunk struct {
	// ID is the SHA-256 hex digest of "documentID:start:end:text".
	ID string `json:"chunk_id"`

	// DocumentID identifies the source document.
	DocumentID string `json:"document_id"`

	// Start and End are character offsets into the original text,
	// before trimming. Start < End always holds.
	Start int `json:"start"`
	End   int `json:"end"`

	// Text is the trimmed chunk content. Never empty.
	Text string `json:"text"`

	// Index is the chunk's ordinal position within the document.
	Index int `json:"index_in_document"`
}

// Config holds chunking parameters.
type Config struct {
	// ChunkSize is the target maximum chunk length in characters.
	ChunkSize int `koanf:"chunk_size"`

	// Overlap is the number of characters repeated at chunk boundaries.
	Overlap int `koanf:"overlap"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.ChunkSize == 0 {
		c.ChunkSize = 1000
	}
	if c.Overlap == 0 {
		c.Overlap = 200
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize)
	}
	if c.Overlap < 0 {
		return fmt.Errorf("overlap must be non-negative, got %d", c.Overlap)
	}
	return nil
}

// boundaryWindow is how far back from a raw cut point we search for a
// sentence-ending delimiter.
const boundaryWindow = 100

// sentenceEndings are the delimiters considered safe cut points.
var sentenceEndings = []string{".", "!", "?", "\n\n"}

// Chunker splits text into overlapping chunks with deterministic IDs.
type Chunker struct {
	config Config
	logger *zap.Logger
}

// New creates a Chunker with the given configuration.
func New(config Config, logger *zap.Logger) (*Chunker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &Chunker{config: config, logger: logger}, nil
}

// Chunk splits text into overlapping chunks.
//
// Each window targets ChunkSize characters. When a window does not reach
// end-of-text, the cut is moved back to the right-most sentence ending
// found in the window's last 100 characters, provided it falls after the
// window's midpoint. The next window starts at max(start+1, end-Overlap),
// which guarantees forward progress even when Overlap >= ChunkSize.
//
// Empty or whitespace-only input yields no chunks. Chunks whose text is
// empty after trimming are dropped.
func (c *Chunker) Chunk(text, documentID string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	// Window arithmetic runs on code points, not bytes, so multi-byte
	// text is never cut mid-rune and offsets count characters.
	runes := []rune(text)

	var chunks []Chunk
	textLen := len(runes)
	start := 0
	index := 0

	for start < textLen {
		end := start + c.config.ChunkSize
		if end > textLen {
			end = textLen
		}

		if end < textLen {
			end = c.adjustToBoundary(runes, start, end)
		}

		trimmed := strings.TrimSpace(string(runes[start:end]))
		if trimmed != "" {
			chunks = append(chunks, Chunk{
				ID:         chunkID(documentID, start, end, trimmed),
				DocumentID: documentID,
				Start:      start,
				End:        end,
				Text:       trimmed,
				Index:      index,
			})
			index++
		}

		if end >= textLen {
			break
		}

		next := end - c.config.Overlap
		if next < start+1 {
			next = start + 1
		}
		start = next
	}

	c.logger.Debug("chunked document",
		zap.String("document_id", documentID),
		zap.Int("text_length", textLen),
		zap.Int("chunks", len(chunks)))

	return chunks
}

// adjustToBoundary moves the cut point back to the right-most sentence
// ending within the last boundaryWindow characters, if one falls after
// the searched region's midpoint. Returns the original end otherwise.
func (c *Chunker) adjustToBoundary(runes []rune, start, end int) int {
	searchStart := end - boundaryWindow
	if searchStart < start {
		searchStart = start
	}
	window := runes[searchStart:end]

	best := -1
	for _, ending := range sentenceEndings {
		pos := lastIndexRunes(window, []rune(ending))
		if pos > best && pos > len(window)/2 {
			best = pos
		}
	}

	if best == -1 {
		return end
	}
	return searchStart + best + 1
}

// lastIndexRunes returns the start of the last occurrence of sub in
// window, or -1.
func lastIndexRunes(window, sub []rune) int {
	for i := len(window) - len(sub); i >= 0; i-- {
		match := true
		for j := range sub {
			if window[i+j] != sub[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

// chunkID computes the content hash identifying a chunk.
func chunkID(documentID string, start, end int, text string) string {
	if documentID == "" {
		documentID = "doc"
	}
	content := fmt.Sprintf("%s:%d:%d:%s", documentID, start, end, text)
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
