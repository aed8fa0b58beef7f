package scheduler

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func rooms(capacity int, ids ...string) []Resource {
	out := make([]Resource, len(ids))
	for i, id := range ids {
		out[i] = Resource{ID: id, Kind: KindRoom, Capacity: capacity}
	}
	return out
}

func people(kind ResourceKind, ids ...string) []Resource {
	out := make([]Resource, len(ids))
	for i, id := range ids {
		out[i] = Resource{ID: id, Kind: kind}
	}
	return out
}

// termInput builds a mid-sized exam week: cohorts each sit several subjects, every
// exam needs one invigilator from a shared pool.
func termInput(cohorts, subjects int) Input {
	in := Input{
		Grid:         Grid{Days: 5, SlotsPerDay: 4},
		Rooms:        rooms(40, "hall-a", "hall-b", "lab-1"),
		Invigilators: people(KindInvigilator, "inv-1", "inv-2", "inv-3", "inv-4"),
		Soft:         map[string]float64{SoftCohortGap: 1, SoftInvigilatorBalance: 0.5},
	}
	for c := 0; c < cohorts; c++ {
		for s := 0; s < subjects; s++ {
			in.Tasks = append(in.Tasks, Task{
				ID:               fmt.Sprintf("c%d-s%d", c, s),
				Subject:          fmt.Sprintf("subject-%d", s),
				Cohorts:          []string{fmt.Sprintf("cohort-%d", c)},
				Duration:         1 + (c+s)%2,
				RequiredCapacity: 30,
				Rooms:            []string{"hall-a", "hall-b", "lab-1"},
				Invigilators:     []string{"inv-1", "inv-2", "inv-3", "inv-4"},
				Difficulty:       s % 3,
			})
		}
	}
	return in
}

func mustModel(t *testing.T, in Input) (*Model, *Checker) {
	t.Helper()
	m, err := NewModel(in)
	require.NoError(t, err)
	return m, NewChecker(m)
}

// requireSound checks the central invariant independently of the checker: no two
// assignments share a room, invigilator or cohort over intersecting slot ranges.
func requireSound(t *testing.T, in Input, assignments []Assignment) {
	t.Helper()
	tasks := make(map[string]Task, len(in.Tasks))
	for _, task := range in.Tasks {
		tasks[task.ID] = task
	}
	ord := func(s TimeSlot) int { return s.Day*in.Grid.SlotsPerDay + s.Index }
	for i := 0; i < len(assignments); i++ {
		a := assignments[i]
		ta := tasks[a.TaskID]
		require.LessOrEqual(t, a.Start.Index+ta.Duration, in.Grid.SlotsPerDay, "task %s crosses a day", a.TaskID)
		for j := i + 1; j < len(assignments); j++ {
			b := assignments[j]
			tb := tasks[b.TaskID]
			if !overlaps(ord(a.Start), ta.Duration, ord(b.Start), tb.Duration) {
				continue
			}
			require.NotEqual(t, a.Room, b.Room, "room clash %s/%s", a.TaskID, b.TaskID)
			for _, x := range a.Invigilators {
				for _, y := range b.Invigilators {
					require.NotEqual(t, x, y, "invigilator clash %s/%s", a.TaskID, b.TaskID)
				}
			}
			for _, x := range ta.Cohorts {
				for _, y := range tb.Cohorts {
					require.NotEqual(t, x, y, "cohort clash %s/%s", a.TaskID, b.TaskID)
				}
			}
		}
	}
}

type recorder struct {
	events []Event
}

func (r *recorder) observe(ev Event) { r.events = append(r.events, ev) }

func (r *recorder) requireMonotonic(t *testing.T) {
	t.Helper()
	last := -1.0
	for _, ev := range r.events {
		require.GreaterOrEqual(t, ev.Percent, last)
		require.LessOrEqual(t, ev.Percent, 100.0)
		last = ev.Percent
	}
}
