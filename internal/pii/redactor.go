package pii

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// Mode selects the redaction transform.
type Mode string

const (
	// ModeMask replaces a span with a type-specific fixed token, e.g. [EMAIL].
	ModeMask Mode = "mask"
	// ModeHash replaces a span with a deterministic salted digest token,
	// format [<prefix>:<8-hex>]. Same input and tenant salt always yield
	// the same token, across processes and time.
	ModeHash Mode = "hash"
	// ModeRemove deletes the span content entirely.
	ModeRemove Mode = "remove"
)

// maskTokens are the fixed-width mask replacements by PII type.
// These values are part of the external contract and must not change.
var maskTokens = map[Type]string{
	TypeSSN:         "[SSN]",
	TypePhone:       "[PHONE]",
	TypeEmail:       "[EMAIL]",
	TypeCreditCard:  "[CARD]",
	TypePerson:      "[NAME]",
	TypeOrg:         "[ORG]",
	TypeDateOfBirth: "[DOB]",
	TypeZipCode:     "[ZIP]",
}

// hashPrefixes are the hash-mode token prefixes by PII type.
var hashPrefixes = map[Type]string{
	TypeSSN:         "SSN",
	TypePhone:       "PH",
	TypeEmail:       "EM",
	TypeCreditCard:  "CC",
	TypePerson:      "NM",
	TypeOrg:         "OR",
	TypeDateOfBirth: "DOB",
	TypeZipCode:     "ZIP",
}

const (
	fallbackMaskToken  = "[PII]"
	fallbackHashPrefix = "PII"
)

// RedactionRecord describes one applied redaction. Records are transient:
// they are never persisted in plaintext for non-privileged consumers.
type RedactionRecord struct {
	OriginalStart int     `json:"original_start"`
	OriginalEnd   int     `json:"original_end"`
	OriginalText  string  `json:"original_text"`
	Replacement   string  `json:"replacement"`
	Type          Type    `json:"type"`
	Mode          Mode    `json:"mode"`
	Confidence    float64 `json:"confidence"`
}

// Redactor applies mask, hash, or remove transforms to detected spans.
// The tenant salt keys hash-mode tokens: redaction is deterministic per
// tenant so the same value always redacts to the same token.
type Redactor struct {
	tenantSalt string
}

// NewRedactor creates a Redactor with the given tenant salt.
func NewRedactor(tenantSalt string) *Redactor {
	if tenantSalt == "" {
		tenantSalt = "default"
	}
	return &Redactor{tenantSalt: tenantSalt}
}

// Redact applies the given mode to every span and returns the redacted
// text plus one record per applied span.
//
// Spans are applied in descending start order so earlier replacements do
// not invalidate the offsets of spans not yet applied. No spans yields
// the input text unchanged and an empty record list. An unknown mode
// fails with ErrInvalidMode.
func (r *Redactor) Redact(text string, spans []Span, mode Mode) (string, []RedactionRecord, error) {
	switch mode {
	case ModeMask, ModeHash, ModeRemove:
	default:
		return "", nil, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	if len(spans) == 0 {
		return text, []RedactionRecord{}, nil
	}

	sorted := make([]Span, len(spans))
	copy(sorted, spans)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start > sorted[j].Start
	})

	redacted := text
	records := make([]RedactionRecord, 0, len(sorted))

	for _, span := range sorted {
		if span.Start < 0 || span.End > len(redacted) || span.Start >= span.End {
			continue
		}

		var replacement string
		switch mode {
		case ModeMask:
			replacement = maskToken(span.Type)
		case ModeHash:
			replacement = r.hashToken(span.Text, span.Type)
		case ModeRemove:
			replacement = ""
		}

		redacted = redacted[:span.Start] + replacement + redacted[span.End:]

		records = append(records, RedactionRecord{
			OriginalStart: span.Start,
			OriginalEnd:   span.End,
			OriginalText:  span.Text,
			Replacement:   replacement,
			Type:          span.Type,
			Mode:          mode,
			Confidence:    span.Confidence,
		})
	}

	return redacted, records, nil
}

// maskToken returns the fixed mask token for a PII type.
func maskToken(t Type) string {
	if token, ok := maskTokens[t]; ok {
		return token
	}
	return fallbackMaskToken
}

// hashToken returns the deterministic salted digest token for a value.
func (r *Redactor) hashToken(text string, t Type) string {
	salted := fmt.Sprintf("%s:%s:%s", r.tenantSalt, text, t)
	sum := sha256.Sum256([]byte(salted))
	digest := hex.EncodeToString(sum[:])[:8]

	prefix, ok := hashPrefixes[t]
	if !ok {
		prefix = fallbackHashPrefix
	}
	return fmt.Sprintf("[%s:%s]", prefix, digest)
}
