package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rollbackRun string

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Restore the schedule an applied run replaced",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		eng, err := openEngine(ctx, true)
		if err != nil {
			return err
		}
		defer eng.Close()

		if _, err := eng.svc.Recover(ctx, false); err != nil {
			return err
		}
		result, err := eng.svc.Rollback(ctx, rollbackRun)
		if err != nil {
			return err
		}
		if outputFormat == "json" {
			return printJSON(cmd.OutOrStdout(), result)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "scope %s restored to version %d (run %s is %s)\n",
			result.Scope, result.RestoredVersion, result.RunID, result.Status)
		return nil
	},
}

func init() {
	rollbackCmd.Flags().StringVar(&rollbackRun, "run", "", "ID of the applied run to roll back")
	_ = rollbackCmd.MarkFlagRequired("run")
	rootCmd.AddCommand(rollbackCmd)
}
