package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/docsentry/internal/ingest"
)

var (
	queryTenant string
	queryUser   string
	queryTopK   int
)

// queryCmd searches a tenant index.
var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Search a tenant index by similarity",
	Long: `Query embeds the search text, finds the nearest chunks in the
tenant's vector index, and records the search as a signed audit event.

Examples:
  docsentry query --tenant acme "quarterly revenue figures"
  docsentry query --tenant acme --top-k 10 "customer contact details"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVar(&queryTenant, "tenant", "", "tenant identifier (required)")
	queryCmd.Flags().StringVar(&queryUser, "user", "", "acting user identifier")
	queryCmd.Flags().IntVar(&queryTopK, "top-k", 5, "number of results to return")
	_ = queryCmd.MarkFlagRequired("tenant")
}

func runQuery(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("query text is empty")
	}

	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	result, err := a.pipeline.Query(cmd.Context(), ingest.QueryRequest{
		TenantID: queryTenant,
		UserID:   queryUser,
		Query:    text,
		TopK:     queryTopK,
	})
	if err != nil {
		return err
	}

	return printJSON(result)
}
