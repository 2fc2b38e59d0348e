// Package main implements the docsentry CLI for document ingestion,
// similarity search, index administration, and audit verification.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docsentry/internal/audit"
	"github.com/fyrsmithlabs/docsentry/internal/chunker"
	"github.com/fyrsmithlabs/docsentry/internal/config"
	"github.com/fyrsmithlabs/docsentry/internal/embeddings"
	"github.com/fyrsmithlabs/docsentry/internal/ingest"
	"github.com/fyrsmithlabs/docsentry/internal/logging"
	"github.com/fyrsmithlabs/docsentry/internal/pii"
	"github.com/fyrsmithlabs/docsentry/internal/records"
	"github.com/fyrsmithlabs/docsentry/internal/signing"
	"github.com/fyrsmithlabs/docsentry/internal/vectorindex"
)

var (
	// configPath is the YAML config file, empty means the default path
	configPath string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "docsentry",
	Short: "Secure document ingestion with PII redaction and signed audit trails",
	Long: `docsentry ingests documents into per-tenant vector indexes with
deterministic chunking, PII detection and redaction, and an append-only
audit ledger where every event carries an RSA-PSS signature.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/docsentry/config.yaml)")
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(keysCmd)
}

// app bundles the constructed services for one CLI invocation.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	signer   *signing.Service
	ledger   *audit.Ledger
	store    *records.Store
	index    *vectorindex.Manager
	provider embeddings.Provider
	pipeline *ingest.Service
}

// buildApp loads configuration and wires every service. Callers must
// invoke close when done.
func buildApp() (*app, error) {
	if err := config.EnsureConfigDir(); err != nil {
		return nil, err
	}

	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}

	signer, err := signing.NewService(cfg.Signing, logger)
	if err != nil {
		return nil, fmt.Errorf("building signature service: %w", err)
	}

	ledger, err := audit.NewLedger(cfg.Audit, signer, logger)
	if err != nil {
		return nil, fmt.Errorf("opening audit ledger: %w", err)
	}

	store, err := records.NewStore(cfg.Records, logger)
	if err != nil {
		ledger.Close()
		return nil, fmt.Errorf("opening record store: %w", err)
	}

	index, err := vectorindex.NewManager(cfg.VectorIndex, store, logger)
	if err != nil {
		ledger.Close()
		store.Close()
		return nil, fmt.Errorf("building vector index manager: %w", err)
	}

	provider, err := embeddings.NewProvider(cfg.Embeddings)
	if err != nil {
		ledger.Close()
		store.Close()
		return nil, fmt.Errorf("building embedding provider: %w", err)
	}

	ch, err := chunker.New(cfg.Chunker, logger)
	if err != nil {
		ledger.Close()
		store.Close()
		provider.Close()
		return nil, fmt.Errorf("building chunker: %w", err)
	}

	credentials, err := pii.NewCredentialRecognizer(logger)
	if err != nil {
		ledger.Close()
		store.Close()
		provider.Close()
		return nil, fmt.Errorf("building credential recognizer: %w", err)
	}

	detector := pii.NewDetector(logger, credentials)
	redactor := pii.NewRedactor(cfg.Redaction.Salt.Value())

	pipeline, err := ingest.NewService(ingest.Options{
		Chunker:  ch,
		Detector: detector,
		Redactor: redactor,
		Mode:     pii.Mode(cfg.Redaction.Mode),
		Provider: provider,
		Index:    index,
		Reader:   store,
		Ledger:   ledger,
		Authz:    ingest.AllowAll{},
		Logger:   logger,
	})
	if err != nil {
		ledger.Close()
		store.Close()
		provider.Close()
		return nil, fmt.Errorf("building pipeline: %w", err)
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		signer:   signer,
		ledger:   ledger,
		store:    store,
		index:    index,
		provider: provider,
		pipeline: pipeline,
	}, nil
}

// close releases every service the app holds.
func (a *app) close() {
	if a.provider != nil {
		a.provider.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
	if a.ledger != nil {
		a.ledger.Close()
	}
	if a.logger != nil {
		logging.Sync(a.logger)
	}
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
