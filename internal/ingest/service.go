// Package ingest wires the document pipeline: normalize, chunk, detect
// and redact PII, embed, index, and audit every operation.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docsentry/internal/audit"
	"github.com/fyrsmithlabs/docsentry/internal/chunker"
	"github.com/fyrsmithlabs/docsentry/internal/embeddings"
	"github.com/fyrsmithlabs/docsentry/internal/pii"
	"github.com/fyrsmithlabs/docsentry/internal/vectorindex"
)

const instrumentationName = "github.com/fyrsmithlabs/docsentry/internal/ingest"

var (
	// ErrEmptyDocument indicates the document contained no text after
	// normalization.
	ErrEmptyDocument = errors.New("document is empty")

	// ErrEmptyQuery indicates an empty query string.
	ErrEmptyQuery = errors.New("query is empty")
)

// Authorizer answers whether a user may perform an action in a tenant.
// Access control lives outside this package; the pipeline consumes the
// decision as a boolean.
type Authorizer interface {
	Allow(ctx context.Context, userID, tenantID, action string) bool
}

// PermissionPIIRead gates access to unredacted content. Users without it
// see redacted text in audit trails and responses.
const PermissionPIIRead = "pii:read"

// AllowAll authorizes every action. Suitable for single-user deployments
// and tests.
type AllowAll struct{}

// Allow always returns true.
func (AllowAll) Allow(context.Context, string, string, string) bool { return true }

// DenyAll rejects every action.
type DenyAll struct{}

// Allow always returns false.
func (DenyAll) Allow(context.Context, string, string, string) bool { return false }

// IngestRequest describes one document to ingest. Text is plain text;
// format extraction (PDF, DOCX) happens upstream.
type IngestRequest struct {
	TenantID   string
	DocumentID string // generated if empty
	UserID     string
	Text       string
}

// ChunkResult describes one processed chunk.
type ChunkResult struct {
	ChunkID       string `json:"chunk_id"`
	VectorID      string `json:"vector_id"`
	RedactedSpans int    `json:"redacted_spans"`
}

// IngestResult summarizes a completed ingestion.
type IngestResult struct {
	DocumentID    string        `json:"document_id"`
	ChunkCount    int           `json:"chunk_count"`
	RedactedSpans int           `json:"redacted_spans"`
	Chunks        []ChunkResult `json:"chunks"`
	AuditID       string        `json:"audit_id"`
}

// QueryRequest describes one similarity search.
type QueryRequest struct {
	TenantID string
	UserID   string
	Query    string
	TopK     int
}

// Match is one search hit joined with its durable record.
type Match struct {
	VectorID string  `json:"vector_id"`
	ChunkID  string  `json:"chunk_id,omitempty"`
	Distance float32 `json:"distance"`
	Position int     `json:"position"`
}

// QueryResult holds search hits plus the audit trail reference.
type QueryResult struct {
	Matches []Match `json:"matches"`
	AuditID string  `json:"audit_id"`
}

// RecordReader resolves vector ids to their durable records.
type RecordReader interface {
	GetRecord(ctx context.Context, vectorID string) (*vectorindex.Record, error)
}

// Service runs the ingestion and query pipelines.
type Service struct {
	chunker  *chunker.Chunker
	detector *pii.Detector
	redactor *pii.Redactor
	mode     pii.Mode
	provider embeddings.Provider
	index    *vectorindex.Manager
	reader   RecordReader
	ledger   *audit.Ledger
	authz    Authorizer
	logger   *zap.Logger
	tracer   trace.Tracer
}

// Options holds the pipeline dependencies.
type Options struct {
	Chunker  *chunker.Chunker
	Detector *pii.Detector
	Redactor *pii.Redactor
	Mode     pii.Mode
	Provider embeddings.Provider
	Index    *vectorindex.Manager
	Reader   RecordReader
	Ledger   *audit.Ledger
	Authz    Authorizer
	Logger   *zap.Logger
}

// NewService creates the pipeline service. Reader and Authz are optional;
// a nil Authz denies unredacted access.
func NewService(opts Options) (*Service, error) {
	if opts.Chunker == nil {
		return nil, errors.New("chunker is required")
	}
	if opts.Detector == nil {
		return nil, errors.New("detector is required")
	}
	if opts.Redactor == nil {
		return nil, errors.New("redactor is required")
	}
	if opts.Provider == nil {
		return nil, errors.New("embedding provider is required")
	}
	if opts.Index == nil {
		return nil, errors.New("vector index manager is required")
	}
	if opts.Ledger == nil {
		return nil, errors.New("audit ledger is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Authz == nil {
		opts.Authz = DenyAll{}
	}
	mode := opts.Mode
	if mode == "" {
		mode = pii.ModeMask
	}

	return &Service{
		chunker:  opts.Chunker,
		detector: opts.Detector,
		redactor: opts.Redactor,
		mode:     mode,
		provider: opts.Provider,
		index:    opts.Index,
		reader:   opts.Reader,
		ledger:   opts.Ledger,
		authz:    opts.Authz,
		logger:   opts.Logger,
		tracer:   otel.Tracer(instrumentationName),
	}, nil
}

// IngestDocument chunks, redacts, embeds, and indexes one document, then
// appends a signed audit event. Embeddings are computed from redacted
// text so raw PII never reaches the vector store.
func (s *Service) IngestDocument(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	ctx, span := s.tracer.Start(ctx, "ingest.IngestDocument",
		trace.WithAttributes(attribute.String("tenant.id", req.TenantID)))
	defer span.End()

	documentID := req.DocumentID
	if documentID == "" {
		documentID = uuid.New().String()
	}

	text := CleanForEmbedding(req.Text)
	if text == "" {
		span.SetStatus(codes.Error, "empty document")
		return nil, ErrEmptyDocument
	}

	chunks := s.chunker.Chunk(text, documentID)
	if len(chunks) == 0 {
		span.SetStatus(codes.Error, "no chunks")
		return nil, ErrEmptyDocument
	}

	results := make([]ChunkResult, 0, len(chunks))
	redactedTexts := make([]string, 0, len(chunks))
	totalSpans := 0
	for _, ch := range chunks {
		spans := s.detector.Detect(ch.Text)
		redacted, records, err := s.redactor.Redact(ch.Text, spans, s.mode)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("redacting chunk %s: %w", ch.ID, err)
		}
		totalSpans += len(records)
		redactedTexts = append(redactedTexts, redacted)
		results = append(results, ChunkResult{
			ChunkID:       ch.ID,
			VectorID:      uuid.New().String(),
			RedactedSpans: len(records),
		})
	}

	// Embedding happens outside any index lock.
	vectors, err := s.provider.EmbedDocuments(ctx, redactedTexts)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("embedding chunks: %w", err)
	}

	records := make([]vectorindex.Record, len(results))
	for i, cr := range results {
		records[i] = vectorindex.Record{
			VectorID:         cr.VectorID,
			ChunkID:          cr.ChunkID,
			TenantID:         req.TenantID,
			EmbeddingVersion: s.provider.Model(),
		}
	}

	if err := s.index.Add(ctx, req.TenantID, vectors, records); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("indexing document %s: %w", documentID, err)
	}

	auditID, err := s.ledger.Write(ctx, audit.WriteRequest{
		Action:       "document:ingest",
		TenantID:     req.TenantID,
		UserID:       req.UserID,
		Resource:     documentID,
		ResourceType: "document",
		RequestData: map[string]any{
			"document_id": documentID,
			"text_length": len(text),
		},
		ResponseData: map[string]any{
			"chunk_count":    len(chunks),
			"redacted_spans": totalSpans,
		},
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("auditing ingest of %s: %w", documentID, err)
	}

	s.logger.Info("document ingested",
		zap.String("tenant_id", req.TenantID),
		zap.String("document_id", documentID),
		zap.Int("chunks", len(chunks)),
		zap.Int("redacted_spans", totalSpans))

	return &IngestResult{
		DocumentID:    documentID,
		ChunkCount:    len(chunks),
		RedactedSpans: totalSpans,
		Chunks:        results,
		AuditID:       auditID,
	}, nil
}

// Query embeds the query text, searches the tenant index, and appends a
// signed audit event. The query text recorded in the audit trail is
// redacted unless the caller holds the pii:read permission.
func (s *Service) Query(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	ctx, span := s.tracer.Start(ctx, "ingest.Query",
		trace.WithAttributes(attribute.String("tenant.id", req.TenantID)))
	defer span.End()

	if req.Query == "" {
		span.SetStatus(codes.Error, "empty query")
		return nil, ErrEmptyQuery
	}
	topK := req.TopK
	if topK <= 0 {
		topK = 5
	}

	vector, err := s.provider.EmbedQuery(ctx, req.Query)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	hits, err := s.index.Search(ctx, req.TenantID, vector, topK)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("searching tenant %s: %w", req.TenantID, err)
	}

	matches := make([]Match, 0, len(hits))
	for _, h := range hits {
		m := Match{VectorID: h.VectorID, Distance: h.Distance, Position: h.Position}
		if s.reader != nil {
			if rec, err := s.reader.GetRecord(ctx, h.VectorID); err == nil && rec != nil {
				m.ChunkID = rec.ChunkID
			}
		}
		matches = append(matches, m)
	}

	auditQuery := req.Query
	if !s.authz.Allow(ctx, req.UserID, req.TenantID, PermissionPIIRead) {
		spans := s.detector.Detect(req.Query)
		redacted, _, err := s.redactor.Redact(req.Query, spans, s.mode)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("redacting query: %w", err)
		}
		auditQuery = redacted
	}

	resultIDs := make([]any, len(matches))
	for i, m := range matches {
		resultIDs[i] = m.VectorID
	}

	auditID, err := s.ledger.Write(ctx, audit.WriteRequest{
		Action:       "search:execute",
		TenantID:     req.TenantID,
		UserID:       req.UserID,
		ResourceType: "index",
		RequestData: map[string]any{
			"query": auditQuery,
			"top_k": topK,
		},
		ResponseData: map[string]any{
			"result_count": len(matches),
			"vector_ids":   resultIDs,
		},
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("auditing query: %w", err)
	}

	return &QueryResult{Matches: matches, AuditID: auditID}, nil
}
