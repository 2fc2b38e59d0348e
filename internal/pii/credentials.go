package pii

import (
	"strings"

	"github.com/zricethezav/gitleaks/v8/detect"
	"go.uber.org/zap"
)

// CredentialRecognizer is a model-tier recognizer that tags leaked
// credentials (API keys, tokens, private keys) using the Gitleaks SDK.
//
// Documents occasionally contain pasted secrets alongside conventional
// PII. Treating them as a PII category means they flow through the same
// redaction and audit machinery as everything else. Spans are typed
// TypeCredential and mask to the fallback [PII] token.
type CredentialRecognizer struct {
	detector *detect.Detector
	logger   *zap.Logger
}

// NewCredentialRecognizer creates a recognizer backed by the default
// Gitleaks ruleset.
func NewCredentialRecognizer(logger *zap.Logger) (*CredentialRecognizer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, err
	}
	return &CredentialRecognizer{detector: detector, logger: logger}, nil
}

// Recognize tags credential entities in text.
//
// Offsets are recovered by locating each finding's matched secret in the
// text directly. A secret appearing more than once yields one entity per
// finding, each at a distinct offset. Findings whose secret cannot be
// located are dropped rather than guessed.
func (c *CredentialRecognizer) Recognize(text string) []Entity {
	findings := c.detector.DetectString(text)
	if len(findings) == 0 {
		return nil
	}

	used := make(map[int]bool)
	var entities []Entity
	for _, f := range findings {
		if f.Secret == "" {
			continue
		}
		start := locateSecret(text, f.Secret, used)
		if start < 0 {
			c.logger.Debug("dropping unlocatable credential finding",
				zap.String("rule_id", f.RuleID))
			continue
		}
		used[start] = true
		entities = append(entities, Entity{
			Type:  TypeCredential,
			Start: start,
			End:   start + len(f.Secret),
			Text:  f.Secret,
		})
	}

	return entities
}

// locateSecret returns the first offset of secret in text not already
// claimed by another finding, or -1.
func locateSecret(text, secret string, used map[int]bool) int {
	from := 0
	for {
		pos := strings.Index(text[from:], secret)
		if pos < 0 {
			return -1
		}
		start := from + pos
		if !used[start] {
			return start
		}
		from = start + len(secret)
	}
}
