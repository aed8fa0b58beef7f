package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/noah-isme/sma-schedule-engine/internal/models"
)

var runsStatus []string

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List persisted runs by status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		eng, err := openEngine(ctx, true)
		if err != nil {
			return err
		}
		defer eng.Close()

		statuses := lo.Map(runsStatus, func(s string, _ int) models.ScheduleRunStatus {
			return models.ScheduleRunStatus(strings.ToUpper(strings.TrimSpace(s)))
		})
		runs, err := eng.runs.ListByStatus(ctx, statuses...)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if outputFormat == "json" {
			return printJSON(out, runs)
		}
		table := tablewriter.NewWriter(out)
		table.Header("ID", "Scope", "Strategy", "Status", "Penalty", "Version", "Updated")
		for _, run := range runs {
			penalty, version := "-", "-"
			if run.BestPenalty != nil {
				penalty = fmt.Sprintf("%.2f", *run.BestPenalty)
			}
			if run.AppliedVersion != nil {
				version = fmt.Sprintf("%d", *run.AppliedVersion)
			}
			if err := table.Append([]string{
				run.ID, run.Scope, run.Strategy, string(run.Status), penalty, version,
				run.UpdatedAt.Format(time.RFC3339),
			}); err != nil {
				return err
			}
		}
		return table.Render()
	},
}

func init() {
	runsCmd.Flags().StringSliceVar(&runsStatus, "status", []string{"SUCCEEDED", "APPLIED", "ROLLED_BACK"}, "statuses to list")
	rootCmd.AddCommand(runsCmd)
}
