package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Mark overdue codes expired and prune the idempotency cache once",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			n := a.housekeeper.Sweep(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "expired %d code(s)\n", n)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
