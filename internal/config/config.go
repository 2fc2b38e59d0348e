// Package config provides configuration loading for docsentry.
//
// Configuration is loaded from a YAML file, then overridden with environment
// variables. Each section maps to the configuration of one service.
package config

import (
	"fmt"

	"github.com/fyrsmithlabs/docsentry/internal/audit"
	"github.com/fyrsmithlabs/docsentry/internal/chunker"
	"github.com/fyrsmithlabs/docsentry/internal/embeddings"
	"github.com/fyrsmithlabs/docsentry/internal/logging"
	"github.com/fyrsmithlabs/docsentry/internal/pii"
	"github.com/fyrsmithlabs/docsentry/internal/records"
	"github.com/fyrsmithlabs/docsentry/internal/signing"
	"github.com/fyrsmithlabs/docsentry/internal/vectorindex"
)

// Config holds the complete docsentry configuration.
type Config struct {
	Logging     logging.Config            `koanf:"logging"`
	Chunker     chunker.Config            `koanf:"chunker"`
	Redaction   RedactionConfig           `koanf:"redaction"`
	VectorIndex vectorindex.Config        `koanf:"vectorindex"`
	Records     records.Config            `koanf:"records"`
	Audit       audit.Config              `koanf:"audit"`
	Signing     signing.Config            `koanf:"signing"`
	Embeddings  embeddings.ProviderConfig `koanf:"embeddings"`
}

// RedactionConfig holds PII redaction configuration.
type RedactionConfig struct {
	// Mode is the redaction mode: "mask", "hash", or "remove".
	Mode string `koanf:"mode"`
	// Salt is the per-deployment salt mixed into hashed redaction tokens.
	Salt Secret `koanf:"salt"`
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Fields == nil {
		cfg.Logging.Fields = logging.NewDefaultConfig().Fields
	}

	cfg.Chunker.ApplyDefaults()

	if cfg.Redaction.Mode == "" {
		cfg.Redaction.Mode = string(pii.ModeMask)
	}

	if cfg.VectorIndex.Path == "" {
		cfg.VectorIndex.Path = "~/.config/docsentry/vectorindex"
	}

	if cfg.Records.Path == "" {
		cfg.Records.Path = "~/.config/docsentry/records.db"
	}

	if cfg.Audit.Path == "" {
		cfg.Audit.Path = "~/.config/docsentry/audit/audit.log"
	}

	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "mock"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "BAAI/bge-small-en-v1.5"
	}
	if cfg.Embeddings.BaseURL == "" {
		cfg.Embeddings.BaseURL = "http://localhost:8080"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}

	if err := c.Chunker.Validate(); err != nil {
		return fmt.Errorf("chunker: %w", err)
	}

	switch pii.Mode(c.Redaction.Mode) {
	case pii.ModeMask, pii.ModeHash, pii.ModeRemove:
	default:
		return fmt.Errorf("redaction: unknown mode %q", c.Redaction.Mode)
	}

	switch c.Embeddings.Provider {
	case "mock", "tei", "fastembed":
	default:
		return fmt.Errorf("embeddings: unknown provider %q", c.Embeddings.Provider)
	}

	return nil
}
