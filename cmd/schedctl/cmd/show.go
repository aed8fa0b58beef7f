package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/sma-schedule-engine/internal/models"
)

var (
	showScope    string
	showPrevious bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the committed schedule of a scope",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		eng, err := openEngine(ctx, true)
		if err != nil {
			return err
		}
		defer eng.Close()

		var snap *models.CommittedSchedule
		if showPrevious {
			snap, err = eng.svc.PreviousSchedule(ctx, showScope)
		} else {
			snap, err = eng.svc.Schedule(ctx, showScope)
		}
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		switch outputFormat {
		case "json":
			return printJSON(out, snap)
		case "csv":
			return writeAssignmentsCSV(out, snap.Assignments)
		}
		if snap.Version == 0 {
			fmt.Fprintf(out, "scope %s has no committed schedule\n", showScope)
			return nil
		}
		if err := renderAssignments(out, snap.Assignments); err != nil {
			return err
		}
		return renderProperties(out, [][]string{
			{"Scope", snap.Scope},
			{"Version", fmt.Sprintf("%d", snap.Version)},
			{"Run", snap.RunID},
			{"Committed", snap.CommittedAt.Format(time.RFC3339)},
		})
	},
}

func init() {
	showCmd.Flags().StringVar(&showScope, "scope", "", "schedule scope")
	showCmd.Flags().BoolVar(&showPrevious, "previous", false, "show the rollback target instead of the current version")
	_ = showCmd.MarkFlagRequired("scope")
	rootCmd.AddCommand(showCmd)
}
