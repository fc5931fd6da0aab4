package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"aquabot/internal/app"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the configuration",
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the config file and environment overrides",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := app.Check(cfgPath)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "✓ %s is valid\n", cfgPath)
		fmt.Fprintf(out, "  company:    %d\n", cfg.Yclients.CompanyID)
		fmt.Fprintf(out, "  admin chat: %d\n", cfg.Telegram.AdminChatID)
		fmt.Fprintf(out, "  dedup:      %s\n", orDefault(cfg.Dedup.Backend, "memory"))
		fmt.Fprintf(out, "  webhook:    %s%s\n", orDefault(cfg.Webhook.Addr, "127.0.0.1:3000"), orDefault(cfg.Webhook.Path, "/yclients/webhook"))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configCheckCmd)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
