package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/davidahmann/agentgate/internal/killswitch"
)

var killSwitchReason string

var killSwitchCmd = &cobra.Command{
	Use:   "killswitch",
	Short: "Inspect or flip the global kill switch",
}

var killSwitchStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the kill-switch state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		var state killswitch.State
		if err := call(cmd, "GET", "/v1/killswitch", nil, &state); err != nil {
			return err
		}
		printState(cmd, state)
		return nil
	},
}

var killSwitchEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Engage the kill switch",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return setKillSwitch(cmd, true)
	},
}

var killSwitchDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Release the kill switch",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return setKillSwitch(cmd, false)
	},
}

func init() {
	killSwitchEnableCmd.Flags().StringVar(&killSwitchReason, "reason", "", "why the switch is engaged")
	killSwitchDisableCmd.Flags().StringVar(&killSwitchReason, "reason", "", "why the switch is released")

	killSwitchCmd.AddCommand(killSwitchStatusCmd, killSwitchEnableCmd, killSwitchDisableCmd)
	rootCmd.AddCommand(killSwitchCmd)
}

func setKillSwitch(cmd *cobra.Command, enabled bool) error {
	var state killswitch.State
	body := map[string]any{"enabled": enabled, "reason": killSwitchReason}
	if err := call(cmd, "POST", "/v1/killswitch", body, &state); err != nil {
		return err
	}
	printState(cmd, state)
	return nil
}

func printState(cmd *cobra.Command, s killswitch.State) {
	if jsonOut {
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "enabled=%t reason=%q activated_by=%s activated_at=%s\n", s.Enabled, s.Reason, s.ActivatedBy, s.ActivatedAt)
}
