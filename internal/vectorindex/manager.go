// Package vectorindex manages per-tenant flat similarity indexes with
// crash-safe atomic updates.
//
// Each tenant owns exactly one index file and one metadata file. Both
// are replaced together via write-to-temp-then-rename, so a reader
// always observes either the fully old or the fully new pair, never a
// half-written state.
//
// Search uses exact L2 distance over all rows and returns results in
// ascending distance order. This ordering convention is fixed; swapping
// in another index implementation must not flip it.
package vectorindex

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var indexTracer = otel.Tracer("docsentry.vectorindex")

// Sentinel errors.
var (
	// ErrDimensionMismatch indicates vector/record length or dimension
	// disagreement. Never retried.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrCorruptIndex indicates unreadable index or metadata files on a
	// write path. The append guarantee cannot be preserved by silently
	// starting from empty, so the caller must trigger an operator
	// reindex.
	ErrCorruptIndex = errors.New("corrupt index")

	// ErrInvalidTenantID indicates a tenant ID unsafe for file naming.
	ErrInvalidTenantID = errors.New("invalid tenant ID")

	// ErrEmptyBatch indicates an add call with no vectors.
	ErrEmptyBatch = errors.New("empty vector batch")
)

// tenantIDPattern restricts tenant IDs to names that are safe as file
// path components.
var tenantIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// Record is the durable mapping between one stored vector and its chunk.
// Records are created on ingest, never mutated, and deleted only with
// the tenant's index.
type Record struct {
	VectorID         string `json:"vector_id"`
	ChunkID          string `json:"chunk_id"`
	TenantID         string `json:"tenant_id"`
	Position         int    `json:"position_in_index"`
	EmbeddingVersion string `json:"embedding_version"`
}

// RecordStore persists vector records durably outside the index files.
// Implemented by the relational repository in internal/records.
type RecordStore interface {
	SaveRecord(ctx context.Context, record Record) error
	DeleteTenantRecords(ctx context.Context, tenantID string) error
}

// SearchResult is one nearest-neighbor hit.
type SearchResult struct {
	// VectorID is the external id of the matched vector.
	VectorID string `json:"vector_id"`
	// Distance is the L2 distance to the query; results are ordered by
	// ascending distance.
	Distance float32 `json:"distance"`
	// Position is the row offset inside the tenant index.
	Position int `json:"position"`
}

// Stats describes a tenant's index.
type Stats struct {
	Exists       bool `json:"exists"`
	TotalVectors int  `json:"total_vectors"`
	Dimension    int  `json:"dimension"`
}

// Config holds vector index storage configuration.
type Config struct {
	// Path is the directory holding per-tenant index and metadata files.
	Path string `koanf:"path"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "~/.config/docsentry/vectorindex"
	}
}

// Manager owns one similarity index and one metadata map per tenant.
//
// Writers are serialized per tenant: at most one add is in flight for a
// tenant at a time. Readers may run concurrently with a writer; the
// atomic rename guarantees they see a self-consistent snapshot.
type Manager struct {
	basePath string
	records  RecordStore
	logger   *zap.Logger

	mu      sync.Mutex // guards tenantLocks
	tenants map[string]*sync.Mutex
}

// NewManager creates a Manager rooted at cfg.Path. The record store may
// be nil when durable record rows are handled elsewhere (tests).
func NewManager(cfg Config, records RecordStore, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()

	basePath, err := expandPath(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	if err := os.MkdirAll(basePath, 0700); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	logger.Info("vector index manager initialized", zap.String("path", basePath))

	return &Manager{
		basePath: basePath,
		records:  records,
		logger:   logger,
		tenants:  make(map[string]*sync.Mutex),
	}, nil
}

// Create initializes an empty index of the given dimension for the
// tenant, overwriting any prior index. Used by reindex.
func (m *Manager) Create(ctx context.Context, tenantID string, dim int) error {
	ctx, span := indexTracer.Start(ctx, "vectorindex.create")
	defer span.End()
	span.SetAttributes(attribute.String("tenant_id", tenantID), attribute.Int("dim", dim))

	if err := validateTenantID(tenantID); err != nil {
		return err
	}
	if dim <= 0 || dim > maxVectorDim {
		return fmt.Errorf("%w: dimension %d out of range", ErrDimensionMismatch, dim)
	}

	lock := m.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	if err := m.swapFiles(tenantID, newFlatIndex(dim), map[int]string{}); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	m.logger.Info("created vector index",
		zap.String("tenant_id", tenantID),
		zap.Int("dim", dim))
	return nil
}

// Add appends vectors and their records to the tenant's index.
//
// The batch is validated first: len(vectors) must equal len(records).
// An index is created sized to the first vector when none exists;
// corrupt existing files are a hard failure. Record rows are persisted
// durably before the file pair is swapped, so a crash between the two
// leaves records pointing at the old (still valid) index rather than an
// index without records. Positions are assigned as previousTotal+i in
// batch order.
func (m *Manager) Add(ctx context.Context, tenantID string, vectors [][]float32, records []Record) error {
	ctx, span := indexTracer.Start(ctx, "vectorindex.add")
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.Int("batch_size", len(vectors)),
	)

	if err := validateTenantID(tenantID); err != nil {
		return err
	}
	if len(vectors) == 0 {
		return ErrEmptyBatch
	}
	if len(vectors) != len(records) {
		return fmt.Errorf("%w: %d vectors but %d records", ErrDimensionMismatch, len(vectors), len(records))
	}

	lock := m.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	idx, metadata, err := m.loadForWrite(tenantID, len(vectors[0]))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	startPos := idx.count()
	if err := idx.add(vectors); err != nil {
		return err
	}

	for i := range records {
		records[i].TenantID = tenantID
		records[i].Position = startPos + i
		metadata[startPos+i] = records[i].VectorID
	}

	// Durable record rows first; the swap publishes positions that the
	// relational store already knows about.
	if m.records != nil {
		for _, record := range records {
			if err := m.records.SaveRecord(ctx, record); err != nil {
				span.SetStatus(codes.Error, err.Error())
				return fmt.Errorf("saving vector record %s: %w", record.VectorID, err)
			}
		}
	}

	if err := m.swapFiles(tenantID, idx, metadata); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	m.logger.Info("added vectors",
		zap.String("tenant_id", tenantID),
		zap.Int("added", len(vectors)),
		zap.Int("total", idx.count()))
	return nil
}

// Search returns up to topK nearest records ordered by ascending L2
// distance. A tenant with no index, an empty index, or unreadable files
// yields an empty result; search never hard-fails on storage state.
// Positions missing from the metadata map are skipped silently.
func (m *Manager) Search(ctx context.Context, tenantID string, query []float32, topK int) ([]SearchResult, error) {
	_, span := indexTracer.Start(ctx, "vectorindex.search")
	defer span.End()
	span.SetAttributes(attribute.String("tenant_id", tenantID), attribute.Int("top_k", topK))

	if err := validateTenantID(tenantID); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []SearchResult{}, nil
	}

	idx, err := loadIndexFromFile(m.indexPath(tenantID))
	if err != nil {
		if !os.IsNotExist(err) {
			m.logger.Warn("treating unreadable index as absent",
				zap.String("tenant_id", tenantID),
				zap.Error(err))
		}
		return []SearchResult{}, nil
	}
	if idx.count() == 0 {
		return []SearchResult{}, nil
	}
	if len(query) != idx.dim {
		return nil, fmt.Errorf("%w: query has dim %d, index has dim %d", ErrDimensionMismatch, len(query), idx.dim)
	}

	metadata, err := loadMetadataFromFile(m.metadataPath(tenantID))
	if err != nil {
		m.logger.Warn("treating unreadable metadata as absent",
			zap.String("tenant_id", tenantID),
			zap.Error(err))
		return []SearchResult{}, nil
	}

	type hit struct {
		position int
		distance float32
	}
	hits := make([]hit, 0, idx.count())
	for pos, vector := range idx.vectors {
		hits = append(hits, hit{position: pos, distance: l2Distance(query, vector)})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].distance < hits[j].distance
	})

	results := make([]SearchResult, 0, topK)
	for _, h := range hits {
		if len(results) == topK {
			break
		}
		vectorID, ok := metadata[h.position]
		if !ok {
			continue
		}
		results = append(results, SearchResult{
			VectorID: vectorID,
			Distance: h.distance,
			Position: h.position,
		})
	}

	span.SetAttributes(attribute.Int("results", len(results)))
	return results, nil
}

// Stats reports the tenant's index size. Unreadable files are reported
// as a missing index.
func (m *Manager) Stats(ctx context.Context, tenantID string) (Stats, error) {
	if err := validateTenantID(tenantID); err != nil {
		return Stats{}, err
	}

	idx, err := loadIndexFromFile(m.indexPath(tenantID))
	if err != nil {
		if !os.IsNotExist(err) {
			m.logger.Warn("treating unreadable index as absent",
				zap.String("tenant_id", tenantID),
				zap.Error(err))
		}
		return Stats{}, nil
	}

	return Stats{
		Exists:       true,
		TotalVectors: idx.count(),
		Dimension:    idx.dim,
	}, nil
}

// Delete removes the tenant's index file pair and its durable record
// rows. Missing files are not an error.
func (m *Manager) Delete(ctx context.Context, tenantID string) error {
	ctx, span := indexTracer.Start(ctx, "vectorindex.delete")
	defer span.End()
	span.SetAttributes(attribute.String("tenant_id", tenantID))

	if err := validateTenantID(tenantID); err != nil {
		return err
	}

	lock := m.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	for _, path := range []string{m.indexPath(tenantID), m.metadataPath(tenantID)} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing %s: %w", path, err)
		}
	}

	if m.records != nil {
		if err := m.records.DeleteTenantRecords(ctx, tenantID); err != nil {
			return fmt.Errorf("deleting tenant records: %w", err)
		}
	}

	m.logger.Info("deleted vector index", zap.String("tenant_id", tenantID))
	return nil
}

// loadForWrite loads the tenant's index and metadata for an add. A
// missing pair yields a fresh empty index of the given dimension;
// corrupt files are a hard failure.
func (m *Manager) loadForWrite(tenantID string, dim int) (*flatIndex, map[int]string, error) {
	idx, err := loadIndexFromFile(m.indexPath(tenantID))
	if err != nil {
		if os.IsNotExist(err) {
			return newFlatIndex(dim), map[int]string{}, nil
		}
		if errors.Is(err, ErrCorruptIndex) {
			return nil, nil, fmt.Errorf("tenant %s requires reindex: %w", tenantID, err)
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrCorruptIndex, err)
	}

	metadata, err := loadMetadataFromFile(m.metadataPath(tenantID))
	if err != nil {
		if os.IsNotExist(err) {
			metadata = map[int]string{}
		} else {
			return nil, nil, fmt.Errorf("tenant %s requires reindex: %w", tenantID, err)
		}
	}
	return idx, metadata, nil
}

// swapFiles atomically replaces the tenant's index and metadata files.
// Both temporaries are written and synced before either rename; on any
// failure the temporaries are removed and no partial state is visible.
func (m *Manager) swapFiles(tenantID string, idx *flatIndex, metadata map[int]string) (err error) {
	indexTmp := m.indexPath(tenantID) + ".tmp." + randomSuffix()
	metaTmp := m.metadataPath(tenantID) + ".tmp." + randomSuffix()

	defer func() {
		if err != nil {
			os.Remove(indexTmp)
			os.Remove(metaTmp)
		}
	}()

	if err = writeFileAtomicPrep(indexTmp, func(f *os.File) error {
		return writeIndexFile(f, idx)
	}); err != nil {
		return fmt.Errorf("writing index temp: %w", err)
	}
	if err = writeFileAtomicPrep(metaTmp, func(f *os.File) error {
		return writeMetadataFile(f, metadata)
	}); err != nil {
		return fmt.Errorf("writing metadata temp: %w", err)
	}

	if err = os.Rename(indexTmp, m.indexPath(tenantID)); err != nil {
		return fmt.Errorf("publishing index: %w", err)
	}
	if err = os.Rename(metaTmp, m.metadataPath(tenantID)); err != nil {
		return fmt.Errorf("publishing metadata: %w", err)
	}
	return nil
}

// writeFileAtomicPrep creates a temp file with restricted permissions,
// writes through fn, and syncs it to disk.
func writeFileAtomicPrep(path string, fn func(*os.File) error) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (m *Manager) tenantLock(tenantID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.tenants[tenantID]
	if !ok {
		lock = &sync.Mutex{}
		m.tenants[tenantID] = lock
	}
	return lock
}

func (m *Manager) indexPath(tenantID string) string {
	return filepath.Join(m.basePath, tenantID+".idx")
}

func (m *Manager) metadataPath(tenantID string) string {
	return filepath.Join(m.basePath, tenantID+".meta")
}

func validateTenantID(tenantID string) error {
	if !tenantIDPattern.MatchString(tenantID) {
		return fmt.Errorf("%w: %q", ErrInvalidTenantID, tenantID)
	}
	return nil
}

// l2Distance computes the Euclidean distance between two equal-length
// vectors.
func l2Distance(a, b []float32) float32 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return float32(math.Sqrt(sum))
}

// randomSuffix generates a random suffix for temp files.
func randomSuffix() string {
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("%x", b)
}

// expandPath expands ~ to the home directory.
func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}
