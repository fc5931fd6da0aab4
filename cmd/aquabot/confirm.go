package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"aquabot/internal/app"
	"aquabot/internal/confirm"
	logx "aquabot/pkg/logx"
)

var confirmCmd = &cobra.Command{
	Use:   "confirm <company_id> <record_id>",
	Short: "Confirm a booking on the platform (attendance=2)",
	Long: `Confirm a booking the same way the client's confirm button does.

Examples:
  # Confirm record 1002 of company 42
  aquabot confirm 42 1002

  # Use the company from the config file
  aquabot confirm 0 1002`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		companyID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid company id %q", args[0])
		}
		recordID, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid record id %q", args[1])
		}
		timeout, _ := cmd.Flags().GetDuration("timeout")
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		_, log := logx.New(logx.Config{Level: "warn", Console: true}, nil)
		out := cmd.OutOrStdout()
		res, err := app.ConfirmRecord(ctx, cfgPath, companyID, recordID, log, func(s confirm.Stage) {
			fmt.Fprintf(out, "  … %s\n", s)
		})
		if err != nil {
			return err
		}
		switch {
		case res.AlreadyConfirmed:
			fmt.Fprintln(out, "✓ Already confirmed")
		case res.Verified != nil:
			fmt.Fprintf(out, "✓ Confirmed (attendance now %s)\n", res.Verified.Attendance.Display())
		default:
			fmt.Fprintln(out, "✓ Confirmed (verification read failed)")
		}
		return nil
	},
}

func init() {
	confirmCmd.Flags().Duration("timeout", 30*time.Second, "overall deadline")
}
