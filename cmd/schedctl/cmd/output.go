package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/noah-isme/sma-schedule-engine/internal/scheduler"
	"github.com/noah-isme/sma-schedule-engine/pkg/export"
)

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// sortedAssignments orders assignments by day, slot and room for display.
func sortedAssignments(in []scheduler.Assignment) []scheduler.Assignment {
	out := append([]scheduler.Assignment(nil), in...)
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Start.Day != b.Start.Day {
			return a.Start.Day < b.Start.Day
		}
		if a.Start.Index != b.Start.Index {
			return a.Start.Index < b.Start.Index
		}
		return a.Room < b.Room
	})
	return out
}

func renderAssignments(w io.Writer, assignments []scheduler.Assignment) error {
	table := tablewriter.NewWriter(w)
	table.Header("Day", "Slot", "Room", "Task", "Invigilators")
	for _, a := range sortedAssignments(assignments) {
		invigilators := strings.Join(a.Invigilators, ", ")
		if invigilators == "" {
			invigilators = "-"
		}
		if err := table.Append([]string{
			fmt.Sprintf("%d", a.Start.Day+1),
			fmt.Sprintf("%d", a.Start.Index+1),
			a.Room,
			a.TaskID,
			invigilators,
		}); err != nil {
			return err
		}
	}
	return table.Render()
}

func renderProperties(w io.Writer, rows [][]string) error {
	table := tablewriter.NewWriter(w)
	table.Header("Property", "Value")
	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}

func writeAssignmentsCSV(w io.Writer, assignments []scheduler.Assignment) error {
	data := export.Dataset{Headers: []string{"day", "slot", "room", "task", "invigilators"}}
	for _, a := range sortedAssignments(assignments) {
		data.Rows = append(data.Rows, map[string]string{
			"day":          fmt.Sprintf("%d", a.Start.Day+1),
			"slot":         fmt.Sprintf("%d", a.Start.Index+1),
			"room":         a.Room,
			"task":         a.TaskID,
			"invigilators": strings.Join(a.Invigilators, " "),
		})
	}
	return export.NewCSVExporter().Write(w, data)
}
