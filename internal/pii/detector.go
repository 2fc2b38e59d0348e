package pii

import (
	"regexp"
	"sort"

	"go.uber.org/zap"
)

// patternRule pairs a compiled regex with its PII type. Rule order is
// fixed: it is the tie-break for candidates at the same position with the
// same confidence, so it must not change between runs.
type patternRule struct {
	piiType Type
	re      *regexp.Regexp
}

// defaultPatterns returns the pattern-tier rules in canonical order.
func defaultPatterns() []patternRule {
	return []patternRule{
		{TypeSSN, regexp.MustCompile(`\b\d{3}-?\d{2}-?\d{4}\b`)},
		{TypePhone, regexp.MustCompile(`\b\d{3}[-.]?\d{3}[-.]?\d{4}\b`)},
		{TypeEmail, regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
		{TypeCreditCard, regexp.MustCompile(`\b\d{4}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`)},
		{TypeDateOfBirth, regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b`)},
		{TypeZipCode, regexp.MustCompile(`\b\d{5}(?:-\d{4})?\b`)},
	}
}

// Detector scans text for PII spans.
type Detector struct {
	patterns    []patternRule
	recognizers []EntityRecognizer
	logger      *zap.Logger
}

// NewDetector creates a Detector with the pattern tier enabled and the
// given model-tier recognizers plugged in. Recognizers may be empty.
func NewDetector(logger *zap.Logger, recognizers ...EntityRecognizer) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{
		patterns:    defaultPatterns(),
		recognizers: recognizers,
		logger:      logger,
	}
}

// Detect returns the non-overlapping PII spans found in text, sorted by
// start position.
func (d *Detector) Detect(text string) []Span {
	var candidates []Span

	for _, rule := range d.patterns {
		for _, match := range rule.re.FindAllStringIndex(text, -1) {
			candidates = append(candidates, Span{
				Type:       rule.piiType,
				Start:      match[0],
				End:        match[1],
				Text:       text[match[0]:match[1]],
				Confidence: patternConfidence,
				Method:     MethodPattern,
			})
		}
	}

	for _, rec := range d.recognizers {
		for _, ent := range rec.Recognize(text) {
			if ent.Start < 0 || ent.End > len(text) || ent.Start >= ent.End {
				continue
			}
			candidates = append(candidates, Span{
				Type:       ent.Type,
				Start:      ent.Start,
				End:        ent.End,
				Text:       ent.Text,
				Confidence: modelConfidence,
				Method:     MethodModel,
			})
		}
	}

	spans := resolveOverlaps(candidates)

	if len(spans) > 0 {
		d.logger.Debug("detected PII spans",
			zap.Int("candidates", len(candidates)),
			zap.Int("kept", len(spans)))
	}

	return spans
}

// resolveOverlaps keeps the highest-confidence candidate when two spans
// intersect, ties broken by earliest start.
//
// Candidates are sorted by (start, -confidence) and kept greedily when
// they do not overlap an already-kept span. A span that starts earlier
// and is kept first suppresses a later higher-confidence span that
// overlaps it; this left-to-right greedy policy is the contract, not
// global optimality.
func resolveOverlaps(candidates []Span) []Span {
	if len(candidates) == 0 {
		return nil
	}

	sorted := make([]Span, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].Confidence > sorted[j].Confidence
	})

	var kept []Span
	for _, span := range sorted {
		overlaps := false
		for _, existing := range kept {
			if span.Start < existing.End && span.End > existing.Start {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, span)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Start < kept[j].Start
	})
	return kept
}
