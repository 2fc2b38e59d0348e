package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/docsentry/internal/audit"
)

var auditVerifyLimit int

// auditCmd groups audit ledger subcommands.
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect and verify the signed audit ledger",
}

var auditShowCmd = &cobra.Command{
	Use:   "show <audit-id>",
	Short: "Show one audit event with its recomputed signature status",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditShow,
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify signatures across the audit ledger",
	Long: `Verify sweeps the ledger and reports totals for valid, invalid,
malformed, and unsigned events. Use --limit to bound the sweep.`,
	RunE: runAuditVerify,
}

func init() {
	auditVerifyCmd.Flags().IntVar(&auditVerifyLimit, "limit", 0, "maximum events to verify (0 = all)")
	auditCmd.AddCommand(auditShowCmd)
	auditCmd.AddCommand(auditVerifyCmd)
}

func runAuditShow(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	event, err := a.ledger.Read(args[0])
	if err != nil {
		return err
	}
	if event == nil {
		return fmt.Errorf("audit event %s not found", args[0])
	}

	return printJSON(event)
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	report, err := a.ledger.VerifyIntegrity(cmd.Context(), auditVerifyLimit)
	if err != nil {
		return err
	}

	return printJSON(report)
}

// auditDeleteRequest builds the audit event for an index deletion.
func auditDeleteRequest(tenantID string) audit.WriteRequest {
	return audit.WriteRequest{
		Action:       "index:delete",
		TenantID:     tenantID,
		Resource:     tenantID,
		ResourceType: "index",
		RequestData:  map[string]any{"tenant_id": tenantID},
	}
}
