package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/davidahmann/agentgate/internal/policy"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Work with agent policy documents",
}

var policyCheckCmd = &cobra.Command{
	Use:   "check <policy-path>",
	Short: "Validate a policy file against the schema without loading it into a gateway",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		// #nosec G304 -- operator-provided path.
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		snap, err := policy.Parse(data, path)
		if err != nil {
			return err
		}
		doc := snap.Document
		fmt.Fprintf(cmd.OutOrStdout(), "ok policy_hash=%s autonomy_level=%s risk_threshold=%d allow_actions=%d\n",
			snap.Hash, doc.AutonomyLevel, doc.Threshold(), len(doc.AllowActions))
		return nil
	},
}

func init() {
	policyCmd.AddCommand(policyCheckCmd)
	rootCmd.AddCommand(policyCmd)
}
