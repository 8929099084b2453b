package main

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/davidahmann/agentgate/pkg/types"
)

var (
	approvalsStatus string
	rejectReason    string
	executeToken    string
)

var approvalsCmd = &cobra.Command{
	Use:   "approvals",
	Short: "List and resolve pending approvals",
}

var approvalsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List approvals",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		path := "/v1/approvals"
		if approvalsStatus != "" {
			path += "?" + url.Values{"status": {approvalsStatus}}.Encode()
		}
		var res struct {
			Approvals []types.Approval `json:"approvals"`
		}
		if err := call(cmd, "GET", path, nil, &res); err != nil {
			return err
		}
		if jsonOut {
			return nil
		}
		out := cmd.OutOrStdout()
		if len(res.Approvals) == 0 {
			fmt.Fprintln(out, "No approvals found.")
			return nil
		}
		for _, a := range res.Approvals {
			fmt.Fprintf(out, "%s  %-9s %-24s %-6s %s\n", a.ID, a.Status, a.ToolName, a.RiskLevel, a.HumanSummary)
		}
		return nil
	},
}

var approvalsApproveCmd = &cobra.Command{
	Use:   "approve <approval-id>",
	Short: "Approve a pending approval",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return resolve(cmd, args[0], "approve", nil)
	},
}

var approvalsRejectCmd = &cobra.Command{
	Use:   "reject <approval-id>",
	Short: "Reject a pending approval",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return resolve(cmd, args[0], "reject", map[string]string{"reason": rejectReason})
	},
}

var approvalsExecuteCmd = &cobra.Command{
	Use:   "execute <approval-id>",
	Short: "Execute an approved action with its token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var res types.ToolCallResult
		if err := call(cmd, "POST", "/v1/approvals/"+url.PathEscape(args[0])+"/execute", map[string]string{"token": executeToken}, &res); err != nil {
			return err
		}
		if !jsonOut {
			fmt.Fprintf(cmd.OutOrStdout(), "status=%s\n", res.Status)
		}
		return nil
	},
}

func init() {
	approvalsListCmd.Flags().StringVar(&approvalsStatus, "status", "", "filter by status (pending, approved, executed, rejected)")
	approvalsRejectCmd.Flags().StringVar(&rejectReason, "reason", "", "rejection reason")
	approvalsExecuteCmd.Flags().StringVar(&executeToken, "approval-token", "", "approval token returned at creation")
	_ = approvalsExecuteCmd.MarkFlagRequired("approval-token")

	approvalsCmd.AddCommand(approvalsListCmd, approvalsApproveCmd, approvalsRejectCmd, approvalsExecuteCmd)
	rootCmd.AddCommand(approvalsCmd)
}

func resolve(cmd *cobra.Command, id, action string, body any) error {
	var a types.Approval
	if err := call(cmd, "POST", "/v1/approvals/"+url.PathEscape(id)+"/"+action, body, &a); err != nil {
		return err
	}
	if !jsonOut {
		fmt.Fprintf(cmd.OutOrStdout(), "%s status=%s\n", a.ID, a.Status)
	}
	return nil
}
