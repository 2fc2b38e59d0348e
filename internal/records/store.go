// Package records provides durable relational storage for vector
// records, the mapping between stored vectors and their source chunks.
package records

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docsentry/internal/vectorindex"
)

// Config holds record store configuration.
type Config struct {
	// Path is the SQLite database file location.
	Path string `koanf:"path"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "~/.config/docsentry/records.db"
	}
}

// Store is a SQLite-backed vector record repository.
type Store struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
}

// NewStore opens (creating if needed) the record database at cfg.Path
// and applies the schema.
func NewStore(cfg Config, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()

	path, err := expandPath(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	// WAL mode for concurrent readers during ingest.
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, path: path, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	logger.Info("record store opened", zap.String("path", path))
	return s, nil
}

// migrate applies the schema.
func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS vector_records (
			vector_id         TEXT PRIMARY KEY,
			chunk_id          TEXT NOT NULL,
			tenant_id         TEXT NOT NULL,
			position_in_index INTEGER NOT NULL,
			embedding_version TEXT NOT NULL DEFAULT '',
			created_at        TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		);
		CREATE INDEX IF NOT EXISTS idx_vector_records_tenant
			ON vector_records(tenant_id, position_in_index);
	`)
	return err
}

// SaveRecord persists one vector record. Re-saving the same vector ID
// replaces the row, which keeps reindexing idempotent.
func (s *Store) SaveRecord(ctx context.Context, record vectorindex.Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vector_records (vector_id, chunk_id, tenant_id, position_in_index, embedding_version)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(vector_id) DO UPDATE SET
			chunk_id = excluded.chunk_id,
			tenant_id = excluded.tenant_id,
			position_in_index = excluded.position_in_index,
			embedding_version = excluded.embedding_version
	`, record.VectorID, record.ChunkID, record.TenantID, record.Position, record.EmbeddingVersion)
	if err != nil {
		return fmt.Errorf("saving vector record: %w", err)
	}
	return nil
}

// GetRecord returns the record for a vector ID, or (nil, nil) when it
// does not exist.
func (s *Store) GetRecord(ctx context.Context, vectorID string) (*vectorindex.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT vector_id, chunk_id, tenant_id, position_in_index, embedding_version
		FROM vector_records WHERE vector_id = ?
	`, vectorID)

	var record vectorindex.Record
	err := row.Scan(&record.VectorID, &record.ChunkID, &record.TenantID, &record.Position, &record.EmbeddingVersion)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading vector record: %w", err)
	}
	return &record, nil
}

// ListTenantRecords returns a tenant's records ordered by index
// position.
func (s *Store) ListTenantRecords(ctx context.Context, tenantID string) ([]vectorindex.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT vector_id, chunk_id, tenant_id, position_in_index, embedding_version
		FROM vector_records WHERE tenant_id = ?
		ORDER BY position_in_index
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing vector records: %w", err)
	}
	defer rows.Close()

	var result []vectorindex.Record
	for rows.Next() {
		var record vectorindex.Record
		if err := rows.Scan(&record.VectorID, &record.ChunkID, &record.TenantID, &record.Position, &record.EmbeddingVersion); err != nil {
			return nil, fmt.Errorf("scanning vector record: %w", err)
		}
		result = append(result, record)
	}
	return result, rows.Err()
}

// DeleteTenantRecords removes all records for a tenant. Used by index
// deletion.
func (s *Store) DeleteTenantRecords(ctx context.Context, tenantID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM vector_records WHERE tenant_id = ?`, tenantID)
	if err != nil {
		return fmt.Errorf("deleting tenant records: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n > 0 {
		s.logger.Info("deleted tenant records",
			zap.String("tenant_id", tenantID),
			zap.Int64("rows", n))
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

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

// Compile-time check that Store satisfies the manager's store contract.
var _ vectorindex.RecordStore = (*Store)(nil)
