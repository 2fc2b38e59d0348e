// Package audit provides an append-only, per-entry-signed event ledger.
//
// Every privileged retrieval is recorded as one self-contained JSON
// event per line. Each event moves through a fixed sequence during
// write: assembled, content-hashed into its audit ID, signed, then
// appended. Appended events are never mutated or deleted; any
// after-the-fact change is detectable by signature re-verification.
package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docsentry/internal/signing"
)

var auditTracer = otel.Tracer("docsentry.audit")

// ErrWriteFailed indicates an event could not be signed or appended.
// An unsigned event is never appended.
var ErrWriteFailed = errors.New("audit write failed")

// Config holds ledger configuration.
type Config struct {
	// Path is the audit log file location.
	Path string `koanf:"path"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "~/.config/docsentry/audit/audit.log"
	}
}

// Event is a parsed ledger entry. SignatureValid is recomputed on read
// by re-running verification against the stored signature; it is not a
// stored field.
type Event struct {
	Timestamp          string         `json:"timestamp"`
	Action             string         `json:"action"`
	TenantID           string         `json:"tenant_id"`
	UserID             string         `json:"user_id,omitempty"`
	Resource           string         `json:"resource,omitempty"`
	ResourceType       string         `json:"resource_type,omitempty"`
	IPAddress          string         `json:"ip_address,omitempty"`
	UserAgent          string         `json:"user_agent,omitempty"`
	RequestData        map[string]any `json:"request_data"`
	ResponseData       map[string]any `json:"response_data"`
	AuditID            string         `json:"audit_id"`
	ResultHash         string         `json:"result_hash,omitempty"`
	Signature          string         `json:"signature"`
	SignatureAlgorithm string         `json:"signature_algorithm"`
	SignatureValid     bool           `json:"signature_valid"`
}

// WriteRequest describes one event to append.
type WriteRequest struct {
	Action       string
	TenantID     string
	UserID       string
	Resource     string
	ResourceType string
	IPAddress    string
	UserAgent    string
	RequestData  map[string]any
	ResponseData map[string]any
}

// IntegrityReport aggregates a ledger sweep. A missing signature counts
// separately from an invalid one: "never signed" and "tampered" are
// different findings.
type IntegrityReport struct {
	Total            int `json:"total_events"`
	Valid            int `json:"valid_signatures"`
	Invalid          int `json:"invalid_signatures"`
	Malformed        int `json:"malformed_events"`
	MissingSignature int `json:"missing_signatures"`
}

// Ledger is the append-only signed event log. All writers are serialized
// through one file handle; reads may run concurrently with appends since
// existing lines are never mutated.
type Ledger struct {
	path   string
	signer *signing.Service
	logger *zap.Logger

	mu   sync.Mutex // serializes appends
	file *os.File   // opened O_APPEND, one handle for the ledger lifetime
}

// timeNow is a variable for testing purposes.
var timeNow = time.Now

// NewLedger opens (creating if needed) the ledger at cfg.Path.
func NewLedger(cfg Config, signer *signing.Service, logger *zap.Logger) (*Ledger, error) {
	if signer == nil {
		return nil, fmt.Errorf("signer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()

	path, err := expandPath(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating audit directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}

	logger.Info("audit ledger opened", zap.String("path", path))

	return &Ledger{
		path:   path,
		signer: signer,
		logger: logger,
		file:   file,
	}, nil
}

// Write assembles, hashes, signs, and appends one event, returning its
// audit ID.
//
// The audit ID is the SHA-256 hex digest of the event's canonical form
// before the ID, result hash, and signature fields are added. The
// signature covers the full event minus the signature fields. A signing
// failure is fatal to the call; nothing is appended.
func (l *Ledger) Write(ctx context.Context, req WriteRequest) (string, error) {
	_, span := auditTracer.Start(ctx, "audit.write")
	defer span.End()
	span.SetAttributes(
		attribute.String("audit.action", req.Action),
		attribute.String("audit.tenant_id", req.TenantID),
	)

	event := map[string]any{
		"timestamp":     timeNow().UTC().Format("2006-01-02T15:04:05.000000") + "Z",
		"action":        req.Action,
		"tenant_id":     req.TenantID,
		"user_id":       nullable(req.UserID),
		"resource":      nullable(req.Resource),
		"resource_type": nullable(req.ResourceType),
		"ip_address":    nullable(req.IPAddress),
		"user_agent":    nullable(req.UserAgent),
		"request_data":  orEmpty(req.RequestData),
		"response_data": orEmpty(req.ResponseData),
	}

	auditID, err := l.signer.Hash(event)
	if err != nil {
		return "", fmt.Errorf("%w: hashing event: %v", ErrWriteFailed, err)
	}
	event["audit_id"] = auditID

	if len(req.ResponseData) > 0 {
		resultHash, err := l.signer.Hash(req.ResponseData)
		if err != nil {
			return "", fmt.Errorf("%w: hashing response: %v", ErrWriteFailed, err)
		}
		event["result_hash"] = resultHash
	}

	signature, err := l.signer.Sign(event)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	event["signature"] = signature
	event["signature_algorithm"] = signing.Algorithm

	line, err := signing.Canonicalize(event)
	if err != nil {
		return "", fmt.Errorf("%w: encoding event: %v", ErrWriteFailed, err)
	}

	// One locked write per event keeps lines from interleaving under
	// concurrent writers.
	l.mu.Lock()
	_, writeErr := l.file.Write(append(line, '\n'))
	l.mu.Unlock()
	if writeErr != nil {
		return "", fmt.Errorf("%w: appending event: %v", ErrWriteFailed, writeErr)
	}

	l.logger.Info("audit event written",
		zap.String("audit_id", auditID),
		zap.String("action", req.Action),
		zap.String("tenant_id", req.TenantID))

	return auditID, nil
}

// Read scans the ledger for the event with the given audit ID.
//
// Malformed lines are skipped without aborting the scan. The returned
// event carries SignatureValid recomputed against the stored signature.
// Returns (nil, nil) when the event, or the log file itself, does not
// exist.
func (l *Ledger) Read(auditID string) (*Event, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		raw, err := decodeLine(line)
		if err != nil {
			l.logger.Warn("skipping malformed audit line", zap.Error(err))
			continue
		}
		if id, _ := raw["audit_id"].(string); id != auditID {
			continue
		}

		return l.buildEvent(raw), nil
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning audit log: %w", err)
	}

	return nil, nil
}

// VerifyIntegrity sweeps the ledger and reports aggregate signature
// counters. A non-positive limit sweeps the whole log; otherwise only
// the first limit lines are checked. A missing log file reports zero
// events.
func (l *Ledger) VerifyIntegrity(ctx context.Context, limit int) (IntegrityReport, error) {
	_, span := auditTracer.Start(ctx, "audit.verify_integrity")
	defer span.End()

	var report IntegrityReport

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return report, nil
		}
		return report, fmt.Errorf("opening audit log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	checked := 0
	for scanner.Scan() {
		if limit > 0 && checked >= limit {
			break
		}
		checked++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		report.Total++

		raw, err := decodeLine(line)
		if err != nil {
			report.Malformed++
			continue
		}

		signature, _ := raw["signature"].(string)
		if signature == "" {
			report.MissingSignature++
			continue
		}

		delete(raw, "signature")
		delete(raw, "signature_algorithm")

		if l.signer.Verify(raw, signature) {
			report.Valid++
		} else {
			report.Invalid++
		}
	}
	if err := scanner.Err(); err != nil {
		return report, fmt.Errorf("scanning audit log: %w", err)
	}

	span.SetAttributes(
		attribute.Int("audit.total", report.Total),
		attribute.Int("audit.invalid", report.Invalid),
	)

	return report, nil
}

// Path returns the ledger file location.
func (l *Ledger) Path() string {
	return l.path
}

// Close releases the append handle.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// maxLineSize bounds a single ledger line (large response payloads).
const maxLineSize = 10 * 1024 * 1024

// buildEvent verifies the signature of a parsed line and maps it into
// an Event.
func (l *Ledger) buildEvent(raw map[string]any) *Event {
	signature, _ := raw["signature"].(string)
	algorithm, _ := raw["signature_algorithm"].(string)

	valid := false
	if signature != "" && algorithm == signing.Algorithm {
		stripped := make(map[string]any, len(raw))
		for k, v := range raw {
			if k == "signature" || k == "signature_algorithm" {
				continue
			}
			stripped[k] = v
		}
		valid = l.signer.Verify(stripped, signature)
	}

	event := &Event{
		Timestamp:          stringField(raw, "timestamp"),
		Action:             stringField(raw, "action"),
		TenantID:           stringField(raw, "tenant_id"),
		UserID:             stringField(raw, "user_id"),
		Resource:           stringField(raw, "resource"),
		ResourceType:       stringField(raw, "resource_type"),
		IPAddress:          stringField(raw, "ip_address"),
		UserAgent:          stringField(raw, "user_agent"),
		AuditID:            stringField(raw, "audit_id"),
		ResultHash:         stringField(raw, "result_hash"),
		Signature:          signature,
		SignatureAlgorithm: algorithm,
		SignatureValid:     valid,
	}
	if m, ok := raw["request_data"].(map[string]any); ok {
		event.RequestData = m
	}
	if m, ok := raw["response_data"].(map[string]any); ok {
		event.ResponseData = m
	}
	return event
}

// decodeLine parses one ledger line, preserving numeric literals so the
// re-canonicalized bytes match what was signed.
func decodeLine(line []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func stringField(raw map[string]any, key string) string {
	s, _ := raw[key].(string)
	return s
}

// nullable maps an empty string to JSON null, matching the ledger's
// on-disk convention for absent optional fields.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// expandPath expands ~ to the home directory.
func expandPath(path string) (string, error) {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}
