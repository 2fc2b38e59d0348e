package ingest

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/docsentry/internal/audit"
	"github.com/fyrsmithlabs/docsentry/internal/chunker"
	"github.com/fyrsmithlabs/docsentry/internal/embeddings"
	"github.com/fyrsmithlabs/docsentry/internal/pii"
	"github.com/fyrsmithlabs/docsentry/internal/records"
	"github.com/fyrsmithlabs/docsentry/internal/signing"
	"github.com/fyrsmithlabs/docsentry/internal/vectorindex"
)

var (
	keyOnce    sync.Once
	privateKey string
	publicKey  string
)

func testSigner(t *testing.T) *signing.Service {
	t.Helper()
	keyOnce.Do(func() {
		var err error
		privateKey, publicKey, err = signing.GenerateKeyPair(2048)
		if err != nil {
			t.Fatalf("generating key pair: %v", err)
		}
	})
	signer, err := signing.NewService(signing.Config{PrivateKey: privateKey, PublicKey: publicKey}, nil)
	require.NoError(t, err)
	return signer
}

type fixture struct {
	service *Service
	ledger  *audit.Ledger
	index   *vectorindex.Manager
	store   *records.Store
}

func newFixture(t *testing.T, authz Authorizer) *fixture {
	t.Helper()
	dir := t.TempDir()

	ledger, err := audit.NewLedger(audit.Config{Path: filepath.Join(dir, "audit.log")}, testSigner(t), nil)
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })

	store, err := records.NewStore(records.Config{Path: filepath.Join(dir, "records.db")}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	index, err := vectorindex.NewManager(vectorindex.Config{Path: filepath.Join(dir, "index")}, store, nil)
	require.NoError(t, err)

	ch, err := chunker.New(chunker.Config{ChunkSize: 200, Overlap: 40}, nil)
	require.NoError(t, err)

	service, err := NewService(Options{
		Chunker:  ch,
		Detector: pii.NewDetector(nil),
		Redactor: pii.NewRedactor("test-salt"),
		Mode:     pii.ModeMask,
		Provider: embeddings.NewMockProvider(embeddings.MockConfig{Dimension: 8}),
		Index:    index,
		Reader:   store,
		Ledger:   ledger,
		Authz:    authz,
	})
	require.NoError(t, err)

	return &fixture{service: service, ledger: ledger, index: index, store: store}
}

func TestIngestDocument(t *testing.T) {
	f := newFixture(t, AllowAll{})
	ctx := context.Background()

	result, err := f.service.IngestDocument(ctx, IngestRequest{
		TenantID: "acme",
		UserID:   "user-1",
		Text:     "Customer contact is alice@example.com for billing questions.",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, result.DocumentID, "document id is generated when omitted")
	assert.Equal(t, 1, result.ChunkCount)
	assert.GreaterOrEqual(t, result.RedactedSpans, 1, "the email must be redacted")
	require.Len(t, result.Chunks, 1)
	assert.NotEmpty(t, result.Chunks[0].ChunkID)
	assert.NotEmpty(t, result.Chunks[0].VectorID)

	// Index and record store reflect the ingested chunks.
	stats, err := f.index.Stats(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalVectors)

	rec, err := f.store.GetRecord(ctx, result.Chunks[0].VectorID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, result.Chunks[0].ChunkID, rec.ChunkID)
	assert.Equal(t, "acme", rec.TenantID)
	assert.Equal(t, "mock", rec.EmbeddingVersion)

	// The ingest is audited with a valid signature.
	event, err := f.ledger.Read(result.AuditID)
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, "document:ingest", event.Action)
	assert.Equal(t, "acme", event.TenantID)
	assert.Equal(t, result.DocumentID, event.Resource)
	assert.True(t, event.SignatureValid)
}

func TestIngestDocument_KeepsGivenDocumentID(t *testing.T) {
	f := newFixture(t, AllowAll{})

	result, err := f.service.IngestDocument(context.Background(), IngestRequest{
		TenantID:   "acme",
		DocumentID: "doc-42",
		Text:       "Plain text with no sensitive content at all.",
	})
	require.NoError(t, err)
	assert.Equal(t, "doc-42", result.DocumentID)
}

func TestIngestDocument_EmptyText(t *testing.T) {
	f := newFixture(t, AllowAll{})

	for _, text := range []string{"", "   \n\t  ", "\x00\x01"} {
		_, err := f.service.IngestDocument(context.Background(), IngestRequest{
			TenantID: "acme",
			Text:     text,
		})
		assert.ErrorIs(t, err, ErrEmptyDocument)
	}
}

func TestQuery(t *testing.T) {
	f := newFixture(t, AllowAll{})
	ctx := context.Background()

	ingested, err := f.service.IngestDocument(ctx, IngestRequest{
		TenantID: "acme",
		Text:     "Quarterly revenue grew in the enterprise segment.",
	})
	require.NoError(t, err)

	result, err := f.service.Query(ctx, QueryRequest{
		TenantID: "acme",
		UserID:   "user-1",
		Query:    "revenue growth",
		TopK:     3,
	})
	require.NoError(t, err)

	require.NotEmpty(t, result.Matches)
	assert.LessOrEqual(t, len(result.Matches), 3)
	assert.Equal(t, ingested.Chunks[0].VectorID, result.Matches[0].VectorID)
	assert.Equal(t, ingested.Chunks[0].ChunkID, result.Matches[0].ChunkID, "matches join chunk ids through the record store")

	event, err := f.ledger.Read(result.AuditID)
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, "search:execute", event.Action)
	assert.True(t, event.SignatureValid)
	assert.Equal(t, json.Number("1"), event.ResponseData["result_count"])
}

func TestQuery_EmptyQuery(t *testing.T) {
	f := newFixture(t, AllowAll{})

	_, err := f.service.Query(context.Background(), QueryRequest{TenantID: "acme", Query: ""})
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestQuery_EmptyTenant(t *testing.T) {
	f := newFixture(t, AllowAll{})

	result, err := f.service.Query(context.Background(), QueryRequest{
		TenantID: "ghost",
		Query:    "anything",
	})
	require.NoError(t, err)
	assert.Empty(t, result.Matches)
	assert.NotEmpty(t, result.AuditID, "empty results are still audited")
}

func TestQuery_AuditTrailRedaction(t *testing.T) {
	ctx := context.Background()
	query := "find documents mentioning alice@example.com"

	t.Run("unprivileged user sees redacted query in audit", func(t *testing.T) {
		f := newFixture(t, DenyAll{})

		result, err := f.service.Query(ctx, QueryRequest{TenantID: "acme", UserID: "intern", Query: query})
		require.NoError(t, err)

		event, err := f.ledger.Read(result.AuditID)
		require.NoError(t, err)
		require.NotNil(t, event)

		audited, ok := event.RequestData["query"].(string)
		require.True(t, ok)
		assert.NotContains(t, audited, "alice@example.com")
		assert.Contains(t, audited, "[EMAIL]")
	})

	t.Run("privileged user sees raw query in audit", func(t *testing.T) {
		f := newFixture(t, AllowAll{})

		result, err := f.service.Query(ctx, QueryRequest{TenantID: "acme", UserID: "auditor", Query: query})
		require.NoError(t, err)

		event, err := f.ledger.Read(result.AuditID)
		require.NoError(t, err)
		require.NotNil(t, event)

		audited, ok := event.RequestData["query"].(string)
		require.True(t, ok)
		assert.Contains(t, audited, "alice@example.com")
	})
}

func TestIngestDocument_MultiChunk(t *testing.T) {
	f := newFixture(t, AllowAll{})
	ctx := context.Background()

	// Well past one chunk at ChunkSize 200.
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 20)
	result, err := f.service.IngestDocument(ctx, IngestRequest{TenantID: "acme", Text: text})
	require.NoError(t, err)

	assert.Greater(t, result.ChunkCount, 1)
	assert.Len(t, result.Chunks, result.ChunkCount)

	stats, err := f.index.Stats(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, result.ChunkCount, stats.TotalVectors)
}
