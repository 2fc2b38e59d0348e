package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var indexTenant string

// indexCmd groups index administration subcommands.
var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Inspect and manage per-tenant vector indexes",
}

var indexStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show vector count and dimension for a tenant index",
	RunE:  runIndexStats,
}

var indexDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete a tenant's index files and vector records",
	Long: `Delete removes the tenant's index and metadata files and the durable
vector records. The deletion is recorded as a signed audit event.`,
	RunE: runIndexDelete,
}

func init() {
	indexCmd.PersistentFlags().StringVar(&indexTenant, "tenant", "", "tenant identifier (required)")
	_ = indexCmd.MarkPersistentFlagRequired("tenant")
	indexCmd.AddCommand(indexStatsCmd)
	indexCmd.AddCommand(indexDeleteCmd)
}

func runIndexStats(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	stats, err := a.index.Stats(cmd.Context(), indexTenant)
	if err != nil {
		return err
	}

	return printJSON(stats)
}

func runIndexDelete(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.index.Delete(cmd.Context(), indexTenant); err != nil {
		return err
	}

	auditID, err := a.ledger.Write(cmd.Context(), auditDeleteRequest(indexTenant))
	if err != nil {
		return fmt.Errorf("auditing index deletion: %w", err)
	}

	return printJSON(map[string]string{
		"tenant_id": indexTenant,
		"status":    "deleted",
		"audit_id":  auditID,
	})
}
