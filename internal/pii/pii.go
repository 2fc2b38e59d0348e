// Package pii detects and redacts personally-identifiable information
// in document text.
//
// Detection runs in two tiers:
//  1. Pattern tier: fixed regular expressions for structured categories
//     (tax IDs, phone numbers, emails, payment cards, dates of birth,
//     postal codes). Always on, confidence 0.9.
//  2. Model tier: pluggable EntityRecognizer implementations tagging
//     named entities (person, org, location, date, money) or credentials.
//     Optional, confidence 0.7. Detection degrades gracefully to the
//     pattern tier when no recognizer is configured.
//
// Overlapping candidates are resolved left-to-right: candidates sorted by
// (start, -confidence) are kept greedily if they do not overlap an
// already-kept span. Downstream determinism (hash-mode tokens, audit
// reproducibility) depends on this exact policy.
package pii

import "errors"

// Type classifies the kind of sensitive data found.
type Type string

// PII categories. The first six are produced by the pattern tier, the
// rest by model-tier recognizers.
const (
	TypeSSN         Type = "ssn"
	TypePhone       Type = "phone"
	TypeEmail       Type = "email"
	TypeCreditCard  Type = "credit_card"
	TypeDateOfBirth Type = "date_of_birth"
	TypeZipCode     Type = "zip_code"

	TypePerson     Type = "person"
	TypeOrg        Type = "org"
	TypeLocation   Type = "location"
	TypeDate       Type = "date"
	TypeMoney      Type = "money"
	TypeCredential Type = "credential"
)

// Method records which detection tier produced a span.
type Method string

const (
	// MethodPattern marks spans found by the regex tier.
	MethodPattern Method = "pattern"
	// MethodModel marks spans found by a model-tier recognizer.
	MethodModel Method = "model"
)

// Span is a detected character range classified as PII.
type Span struct {
	Type       Type    `json:"type"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Method     Method  `json:"method"`
}

// Entity is a named entity reported by a model-tier recognizer.
type Entity struct {
	Type  Type
	Start int
	End   int
	Text  string
}

// EntityRecognizer is the extension point for model-tier detection.
//
// Implementations tag entities in text. The detector assigns model-tier
// confidence and method to all recognizer output. A recognizer that
// cannot process the text should return nil rather than fail.
type EntityRecognizer interface {
	Recognize(text string) []Entity
}

// Sentinel errors.
var (
	// ErrInvalidMode is returned for an unknown redaction mode.
	ErrInvalidMode = errors.New("invalid redaction mode")
)

const (
	patternConfidence = 0.9
	modelConfidence   = 0.7
)
