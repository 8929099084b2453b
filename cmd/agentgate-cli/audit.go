package main

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/davidahmann/agentgate/pkg/types"
)

var (
	verifyLimit int
	auditLimit  int
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the audit hash chain",
	Args:  cobra.NoArgs,
	RunE:  runVerify,
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the audit log",
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit events, newest first",
	Args:  cobra.NoArgs,
	RunE:  runAuditList,
}

func init() {
	verifyCmd.Flags().IntVar(&verifyLimit, "limit", 0, "maximum events to verify (0 uses the gateway default)")
	auditListCmd.Flags().IntVar(&auditLimit, "limit", 20, "maximum events to show")

	auditCmd.AddCommand(auditListCmd)
	rootCmd.AddCommand(verifyCmd, auditCmd)
}

func limitQuery(path string, limit int) string {
	if limit <= 0 {
		return path
	}
	return path + "?" + url.Values{"limit": {strconv.Itoa(limit)}}.Encode()
}

func runVerify(cmd *cobra.Command, _ []string) error {
	var res types.ChainVerification
	if err := call(cmd, "GET", limitQuery("/v1/audit/verify", verifyLimit), nil, &res); err != nil {
		return err
	}
	if jsonOut {
		return nil
	}
	out := cmd.OutOrStdout()
	if res.OK {
		fmt.Fprintf(out, "ok=true count=%d last_hash=%s\n", res.Count, res.LastHash)
		return nil
	}
	fmt.Fprintf(out, "ok=false failed_at=%s expected=%s actual=%s\n", res.FailedAt, res.Expected, res.Actual)
	return errSilent
}

func runAuditList(cmd *cobra.Command, _ []string) error {
	var res struct {
		Events []types.AuditEvent `json:"events"`
	}
	if err := call(cmd, "GET", limitQuery("/v1/audit", auditLimit), nil, &res); err != nil {
		return err
	}
	if jsonOut {
		return nil
	}
	out := cmd.OutOrStdout()
	if len(res.Events) == 0 {
		fmt.Fprintln(out, "No audit events found.")
		return nil
	}
	for _, ev := range res.Events {
		risk := "-"
		if ev.RiskScore != nil {
			risk = strconv.Itoa(*ev.RiskScore)
		}
		fmt.Fprintf(out, "%s  %-18s %-24s risk=%-3s %s\n", ev.TS, ev.Decision, ev.ActionType, risk, ev.Reason)
	}
	return nil
}
