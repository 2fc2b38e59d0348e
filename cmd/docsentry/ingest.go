package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/docsentry/internal/ingest"
)

var (
	ingestTenant   string
	ingestDocument string
	ingestUser     string
)

// ingestCmd ingests a plain-text document from a file or stdin.
var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Ingest a plain-text document into a tenant index",
	Long: `Ingest chunks a document, redacts detected PII, embeds the redacted
chunks, and adds them to the tenant's vector index. The operation is
recorded as a signed audit event.

Examples:
  # Ingest a file
  docsentry ingest --tenant acme report.txt

  # Ingest from stdin
  cat report.txt | docsentry ingest --tenant acme -`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestTenant, "tenant", "", "tenant identifier (required)")
	ingestCmd.Flags().StringVar(&ingestDocument, "document", "", "document identifier (generated if empty)")
	ingestCmd.Flags().StringVar(&ingestUser, "user", "", "acting user identifier")
	_ = ingestCmd.MarkFlagRequired("tenant")
}

func runIngest(cmd *cobra.Command, args []string) error {
	var content []byte
	var err error

	if len(args) == 0 || args[0] == "-" {
		content, err = io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read from stdin: %w", err)
		}
	} else {
		content, err = os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read file %s: %w", args[0], err)
		}
	}

	if len(content) == 0 {
		return fmt.Errorf("no content to ingest")
	}

	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	result, err := a.pipeline.IngestDocument(cmd.Context(), ingest.IngestRequest{
		TenantID:   ingestTenant,
		DocumentID: ingestDocument,
		UserID:     ingestUser,
		Text:       string(content),
	})
	if err != nil {
		return err
	}

	return printJSON(result)
}
