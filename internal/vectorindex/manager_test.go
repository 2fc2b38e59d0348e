package vectorindex

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(Config{Path: t.TempDir()}, nil, nil)
	require.NoError(t, err)
	return m
}

func testRecords(tenantID string, n int) []Record {
	records := make([]Record, n)
	for i := range records {
		records[i] = Record{
			VectorID: fmt.Sprintf("vec-%d", i),
			ChunkID:  fmt.Sprintf("chunk-%d", i),
			TenantID: tenantID,
		}
	}
	return records
}

func TestAddSearch_AscendingDistance(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	vectors := [][]float32{
		{0, 0, 0},
		{1, 0, 0},
		{5, 5, 5},
	}
	require.NoError(t, m.Add(ctx, "acme", vectors, testRecords("acme", 3)))

	results, err := m.Search(ctx, "acme", []float32{0.9, 0, 0}, 2)
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, "vec-1", results[0].VectorID, "closest vector first")
	assert.Equal(t, "vec-0", results[1].VectorID)
	assert.Less(t, results[0].Distance, results[1].Distance)
}

func TestSearch_TopKBounds(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	vectors := [][]float32{{1, 0}, {0, 1}}
	require.NoError(t, m.Add(ctx, "acme", vectors, testRecords("acme", 2)))

	all, err := m.Search(ctx, "acme", []float32{0, 0}, 50)
	require.NoError(t, err)
	assert.Len(t, all, 2, "topK larger than index returns everything")

	none, err := m.Search(ctx, "acme", []float32{0, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSearch_MissingIndex(t *testing.T) {
	m := newTestManager(t)

	results, err := m.Search(context.Background(), "ghost", []float32{1, 2}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearch_EmptyIndex(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Create(ctx, "acme", 4))

	results, err := m.Search(ctx, "acme", []float32{1, 2, 3, 4}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearch_QueryDimensionMismatch(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Add(ctx, "acme", [][]float32{{1, 2, 3}}, testRecords("acme", 1)))

	_, err := m.Search(ctx, "acme", []float32{1, 2}, 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestAdd_Validation(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	err := m.Add(ctx, "acme", nil, nil)
	assert.ErrorIs(t, err, ErrEmptyBatch)

	err = m.Add(ctx, "acme", [][]float32{{1, 2}}, testRecords("acme", 2))
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	err = m.Add(ctx, "acme", [][]float32{{1, 2}, {1, 2, 3}}, testRecords("acme", 2))
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestAdd_AppendsAcrossBatches(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	first := []Record{{VectorID: "a"}, {VectorID: "b"}}
	require.NoError(t, m.Add(ctx, "acme", [][]float32{{1, 0}, {0, 1}}, first))
	assert.Equal(t, 0, first[0].Position)
	assert.Equal(t, 1, first[1].Position)

	second := []Record{{VectorID: "c"}}
	require.NoError(t, m.Add(ctx, "acme", [][]float32{{1, 1}}, second))
	assert.Equal(t, 2, second[0].Position)

	stats, err := m.Stats(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, Stats{Exists: true, TotalVectors: 3, Dimension: 2}, stats)
}

func TestAdd_CorruptIndexHardFails(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(m.indexPath("acme"), []byte("not an index"), 0600))

	err := m.Add(ctx, "acme", [][]float32{{1, 2}}, testRecords("acme", 1))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorruptIndex)

	// Read paths treat the same files as absent.
	results, err := m.Search(ctx, "acme", []float32{1, 2}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)

	stats, err := m.Stats(ctx, "acme")
	require.NoError(t, err)
	assert.False(t, stats.Exists)
}

func TestCreate_ResetsIndex(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Add(ctx, "acme", [][]float32{{1, 2}}, testRecords("acme", 1)))
	require.NoError(t, m.Create(ctx, "acme", 8))

	stats, err := m.Stats(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, Stats{Exists: true, TotalVectors: 0, Dimension: 8}, stats)
}

func TestDelete(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Add(ctx, "acme", [][]float32{{1, 2}}, testRecords("acme", 1)))
	require.NoError(t, m.Delete(ctx, "acme"))

	stats, err := m.Stats(ctx, "acme")
	require.NoError(t, err)
	assert.False(t, stats.Exists)

	// Deleting an absent index is not an error.
	require.NoError(t, m.Delete(ctx, "acme"))
}

func TestInvalidTenantID(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	for _, tenantID := range []string{"", "../escape", "a/b", ".hidden", "-dash"} {
		t.Run(fmt.Sprintf("%q", tenantID), func(t *testing.T) {
			assert.ErrorIs(t, m.Add(ctx, tenantID, [][]float32{{1}}, testRecords(tenantID, 1)), ErrInvalidTenantID)
			_, err := m.Search(ctx, tenantID, []float32{1}, 1)
			assert.ErrorIs(t, err, ErrInvalidTenantID)
			_, err = m.Stats(ctx, tenantID)
			assert.ErrorIs(t, err, ErrInvalidTenantID)
			assert.ErrorIs(t, m.Delete(ctx, tenantID), ErrInvalidTenantID)
		})
	}
}

func TestTenantIsolation(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Add(ctx, "alpha", [][]float32{{1, 0}}, []Record{{VectorID: "alpha-vec"}}))
	require.NoError(t, m.Add(ctx, "beta", [][]float32{{0, 1}}, []Record{{VectorID: "beta-vec"}}))

	results, err := m.Search(ctx, "alpha", []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "alpha-vec", results[0].VectorID)
}

func TestConcurrentAdds(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	const (
		writers = 4
		batches = 5
		perAdd  = 2
	)

	var wg sync.WaitGroup
	errs := make(chan error, writers*batches)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for b := 0; b < batches; b++ {
				vectors := [][]float32{
					{float32(w), float32(b)},
					{float32(b), float32(w)},
				}
				records := []Record{
					{VectorID: fmt.Sprintf("w%d-b%d-0", w, b)},
					{VectorID: fmt.Sprintf("w%d-b%d-1", w, b)},
				}
				if err := m.Add(ctx, "acme", vectors, records); err != nil {
					errs <- err
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent add failed: %v", err)
	}

	stats, err := m.Stats(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, writers*batches*perAdd, stats.TotalVectors, "no batch may be lost or torn")

	results, err := m.Search(ctx, "acme", []float32{0, 0}, writers*batches*perAdd)
	require.NoError(t, err)
	assert.Len(t, results, writers*batches*perAdd)

	seen := make(map[string]bool, len(results))
	for _, r := range results {
		assert.False(t, seen[r.VectorID], "vector id %s duplicated", r.VectorID)
		seen[r.VectorID] = true
	}
}

// capturingStore records calls for assertions.
type capturingStore struct {
	mu      sync.Mutex
	saved   []Record
	deleted []string
}

func (c *capturingStore) SaveRecord(_ context.Context, record Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saved = append(c.saved, record)
	return nil
}

func (c *capturingStore) DeleteTenantRecords(_ context.Context, tenantID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted = append(c.deleted, tenantID)
	return nil
}

func TestRecordStoreIntegration(t *testing.T) {
	store := &capturingStore{}
	m, err := NewManager(Config{Path: t.TempDir()}, store, nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, m.Add(ctx, "acme", [][]float32{{1, 2}, {3, 4}}, []Record{
		{VectorID: "v1", ChunkID: "c1"},
		{VectorID: "v2", ChunkID: "c2"},
	}))

	require.Len(t, store.saved, 2)
	assert.Equal(t, "acme", store.saved[0].TenantID)
	assert.Equal(t, 0, store.saved[0].Position)
	assert.Equal(t, 1, store.saved[1].Position)

	require.NoError(t, m.Delete(ctx, "acme"))
	assert.Equal(t, []string{"acme"}, store.deleted)
}
