package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/sma-schedule-engine/internal/dto"
)

var (
	generateFile  string
	generateApply bool
)

type waitResult struct {
	run *dto.ScheduleRunResponse
	err error
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Run a generation from a YAML configuration",
	Long: `Creates and starts a run, reports progress until it finishes and prints the schedule.
With --apply a SUCCEEDED run is committed to its scope. Interrupting cancels the run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := loadRunConfig(generateFile)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		eng, err := openEngine(ctx, true)
		if err != nil {
			return err
		}
		defer eng.Close()

		created, err := eng.svc.Create(ctx, req)
		if err != nil {
			return err
		}
		if err := eng.svc.Start(ctx, created.ID); err != nil {
			return err
		}
		run, err := followRun(cmd, eng, created.ID)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if outputFormat == "json" && !generateApply {
			return printJSON(out, run)
		}
		if run.Status != "SUCCEEDED" {
			if outputFormat == "json" {
				return printJSON(out, run)
			}
			return reportFailure(cmd, run)
		}

		var applied *dto.ApplyResponse
		if generateApply {
			if applied, err = eng.svc.Apply(ctx, run.ID); err != nil {
				return err
			}
		}
		if outputFormat == "json" {
			return printJSON(out, map[string]interface{}{"run": run, "apply": applied})
		}

		if err := renderAssignments(out, run.Assignments); err != nil {
			return err
		}
		rows := [][]string{
			{"Run", run.ID},
			{"Scope", run.Scope},
			{"Strategy", run.Strategy},
			{"Penalty", fmt.Sprintf("%.2f", run.Penalty)},
			{"Base version", fmt.Sprintf("%d", run.BaseVersion)},
		}
		if applied != nil {
			rows = append(rows, []string{"Committed version", fmt.Sprintf("%d", applied.Version)})
		}
		return renderProperties(out, rows)
	},
}

// followRun prints progress to stderr until the run ends. Interrupts cancel the run and keep
// waiting for the search to acknowledge.
func followRun(cmd *cobra.Command, eng *engine, id string) (*dto.ScheduleRunResponse, error) {
	done := make(chan waitResult, 1)
	go func() {
		run, err := eng.svc.Wait(context.Background(), id)
		done <- waitResult{run: run, err: err}
	}()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	interrupted := cmd.Context().Done()
	for {
		select {
		case res := <-done:
			return res.run, res.err
		case <-interrupted:
			interrupted = nil
			fmt.Fprintln(cmd.ErrOrStderr(), "cancelling run", id)
			if err := eng.svc.Cancel(context.Background(), id); err != nil {
				return nil, err
			}
		case <-ticker.C:
			view, err := eng.svc.Progress(context.Background(), id)
			if err != nil || view == nil {
				continue
			}
			best := "-"
			if view.BestPenalty != nil {
				best = fmt.Sprintf("%.2f", *view.BestPenalty)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%-9s %5.1f%%  placed %d/%d  best %s\n",
				view.Phase, view.Percent, view.Placed, view.Total, best)
		}
	}
}

func reportFailure(cmd *cobra.Command, run *dto.ScheduleRunResponse) error {
	rows := [][]string{{"Run", run.ID}, {"Status", run.Status}}
	if run.Error != nil {
		rows = append(rows, []string{"Reason", *run.Error})
	}
	if d := run.Diagnostics; d != nil {
		rows = append(rows, []string{"Placed", fmt.Sprintf("%d/%d", d.Placed, d.Total)})
		for _, id := range d.Hardest {
			rows = append(rows, []string{"Hardest", id})
		}
		for _, v := range d.Violations {
			rows = append(rows, []string{"Violation", fmt.Sprintf("%s: %s", v.Constraint, strings.Join(v.Tasks, ", "))})
		}
	}
	if err := renderProperties(cmd.OutOrStdout(), rows); err != nil {
		return err
	}
	return fmt.Errorf("run %s finished %s", run.ID, run.Status)
}

func init() {
	generateCmd.Flags().StringVarP(&generateFile, "file", "f", "", "run configuration (YAML)")
	generateCmd.Flags().BoolVar(&generateApply, "apply", false, "commit the schedule when the run succeeds")
	_ = generateCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(generateCmd)
}
