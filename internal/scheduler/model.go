// Package scheduler places exam sittings and class periods onto a slot grid of rooms,
// invigilators and student cohorts. It holds the immutable domain model, the constraint
// checker and the search strategies; it has no I/O and no knowledge of runs or storage.
package scheduler

import (
	"fmt"
	"sort"
)

// ResourceKind distinguishes the three kinds of resource a task consumes.
type ResourceKind string

const (
	KindRoom        ResourceKind = "ROOM"
	KindInvigilator ResourceKind = "INVIGILATOR"
	KindCohort      ResourceKind = "COHORT"
)

// TimeSlot identifies one cell of the calendar grid.
type TimeSlot struct {
	Day   int `json:"day" yaml:"day"`
	Index int `json:"index" yaml:"index"`
}

// Grid bounds the calendar. MorningSlots is the number of leading slots per day counted as morning.
type Grid struct {
	Days         int
	SlotsPerDay  int
	MorningSlots int
}

// SlotRange restricts a run to days FromDay..ToDay inclusive.
type SlotRange struct {
	FromDay int
	ToDay   int
}

// Resource is a room, invigilator or cohort. Empty Availability means always available.
type Resource struct {
	ID           string
	Kind         ResourceKind
	Capacity     int
	Availability []TimeSlot
}

// Task is one exam sitting or class period to place.
type Task struct {
	ID                   string
	Subject              string
	Cohorts              []string
	Duration             int
	RequiredCapacity     int
	Rooms                []string
	Invigilators         []string
	InvigilatorsRequired int
	Conflicts            []string
	Difficulty           int
}

// Assignment places a task at a start slot in a room with its invigilators.
type Assignment struct {
	TaskID       string   `json:"taskId"`
	Start        TimeSlot `json:"start"`
	Room         string   `json:"room"`
	Invigilators []string `json:"invigilators"`
}

// Input is everything needed to build a Model.
type Input struct {
	Grid         Grid
	Range        *SlotRange
	Rooms        []Resource
	Invigilators []Resource
	Cohorts      []Resource
	Tasks        []Task

	// Hard lists the optional hard constraints to enforce; nil enables all of them.
	Hard []string
	// Soft overrides soft constraint weights; nil keeps the defaults.
	Soft map[string]float64

	DifficultyThreshold int
	MaxDailyPerCohort   int
}

type resource struct {
	id       string
	capacity int
	avail    []bool // nil means always available
}

type task struct {
	id         string
	subject    string
	duration   int
	capacity   int
	difficulty int
	need       int
	cohorts    []int
	rooms      []int
	invs       []int
	conflicts  []int
	starts     []int // ordinals passing slot range, cohort and invigilator availability
	roomsOK    []int // rooms passing capacity
	static     int   // feasible (start, room) pairs ignoring other tasks
}

// Model is the validated, index-based form of an Input. It is read-only after NewModel
// and safe for concurrent use by several strategies.
type Model struct {
	days        int
	slotsPerDay int
	horizon     int
	fromDay     int
	toDay       int
	morning     int

	rooms        []resource
	invigilators []resource
	cohorts      []resource
	tasks        []task

	taskIndex map[string]int
	roomIndex map[string]int
	invIndex  map[string]int

	cohortTasks [][]int
	invTasks    [][]int

	hard       hardSet
	weights    softWeights
	difficulty int
	maxDaily   int
}

// NewModel validates in and builds a Model.
func NewModel(in Input) (*Model, error) {
	if in.Grid.Days <= 0 || in.Grid.SlotsPerDay <= 0 {
		return nil, invalid("grid", "slot grid has zero slots")
	}

	m := &Model{
		days:        in.Grid.Days,
		slotsPerDay: in.Grid.SlotsPerDay,
		horizon:     in.Grid.Days * in.Grid.SlotsPerDay,
		fromDay:     0,
		toDay:       in.Grid.Days - 1,
		morning:     in.Grid.MorningSlots,
		taskIndex:   make(map[string]int, len(in.Tasks)),
		roomIndex:   make(map[string]int, len(in.Rooms)),
		invIndex:    make(map[string]int, len(in.Invigilators)),
		difficulty:  in.DifficultyThreshold,
		maxDaily:    in.MaxDailyPerCohort,
	}
	if m.morning <= 0 || m.morning > m.slotsPerDay {
		m.morning = (m.slotsPerDay + 1) / 2
	}
	if in.Range != nil {
		if in.Range.FromDay < 0 || in.Range.ToDay >= m.days || in.Range.FromDay > in.Range.ToDay {
			return nil, invalid("range", fmt.Sprintf("slot range %d..%d outside grid of %d days", in.Range.FromDay, in.Range.ToDay, m.days))
		}
		m.fromDay, m.toDay = in.Range.FromDay, in.Range.ToDay
	}

	var err error
	if m.hard, err = parseHard(in.Hard); err != nil {
		return nil, err
	}
	if m.weights, err = parseSoft(in.Soft, in.MaxDailyPerCohort); err != nil {
		return nil, err
	}

	rooms := append([]Resource(nil), in.Rooms...)
	sort.SliceStable(rooms, func(i, j int) bool {
		if rooms[i].Capacity != rooms[j].Capacity {
			return rooms[i].Capacity < rooms[j].Capacity
		}
		return rooms[i].ID < rooms[j].ID
	})
	if m.rooms, err = m.buildResources(rooms, m.roomIndex, "room"); err != nil {
		return nil, err
	}
	if m.invigilators, err = m.buildResources(in.Invigilators, m.invIndex, "invigilator"); err != nil {
		return nil, err
	}
	cohortIndex := make(map[string]int, len(in.Cohorts))
	if m.cohorts, err = m.buildResources(in.Cohorts, cohortIndex, "cohort"); err != nil {
		return nil, err
	}

	for i, t := range in.Tasks {
		if t.ID == "" {
			return nil, invalid(fmt.Sprintf("tasks[%d]", i), "task id is required")
		}
		if _, dup := m.taskIndex[t.ID]; dup {
			return nil, invalid(t.ID, "duplicate task")
		}
		m.taskIndex[t.ID] = i
	}

	m.tasks = make([]task, len(in.Tasks))
	for i, t := range in.Tasks {
		built, err := m.buildTask(t, cohortIndex)
		if err != nil {
			return nil, err
		}
		m.tasks[i] = built
	}

	// conflicts are symmetric
	for i := range m.tasks {
		for _, j := range m.tasks[i].conflicts {
			if !containsInt(m.tasks[j].conflicts, i) {
				m.tasks[j].conflicts = append(m.tasks[j].conflicts, i)
			}
		}
	}

	m.cohortTasks = make([][]int, len(m.cohorts))
	for i := range m.tasks {
		for _, c := range m.tasks[i].cohorts {
			m.cohortTasks[c] = append(m.cohortTasks[c], i)
		}
	}
	m.invTasks = make([][]int, len(m.invigilators))
	for i := range m.tasks {
		for _, inv := range m.tasks[i].invs {
			m.invTasks[inv] = append(m.invTasks[inv], i)
		}
	}
	for i := range m.tasks {
		m.computeStaticDomain(i)
	}

	return m, nil
}

func (m *Model) buildResources(in []Resource, index map[string]int, kind string) ([]resource, error) {
	out := make([]resource, 0, len(in))
	for _, r := range in {
		if r.ID == "" {
			return nil, invalid(kind, kind+" id is required")
		}
		if _, dup := index[r.ID]; dup {
			return nil, invalid(r.ID, "duplicate "+kind)
		}
		if r.Capacity < 0 {
			return nil, invalid(r.ID, "capacity must not be negative")
		}
		res := resource{id: r.ID, capacity: r.Capacity}
		if len(r.Availability) > 0 {
			res.avail = make([]bool, m.horizon)
			for _, s := range r.Availability {
				if !m.inGrid(s) {
					return nil, invalid(r.ID, fmt.Sprintf("availability slot %d/%d outside grid", s.Day, s.Index))
				}
				res.avail[m.ordinal(s)] = true
			}
		}
		index[r.ID] = len(out)
		out = append(out, res)
	}
	return out, nil
}

func (m *Model) buildTask(t Task, cohortIndex map[string]int) (task, error) {
	if len(t.Rooms) == 0 {
		return task{}, invalid(t.ID, "candidate room set is empty")
	}
	if t.Duration <= 0 {
		return task{}, invalid(t.ID, "duration must be positive")
	}
	if t.Duration > m.slotsPerDay {
		return task{}, invalid(t.ID, fmt.Sprintf("duration %d exceeds scheduling horizon of %d slots per day", t.Duration, m.slotsPerDay))
	}
	if t.RequiredCapacity < 0 || t.Difficulty < 0 {
		return task{}, invalid(t.ID, "capacity and difficulty must not be negative")
	}

	out := task{
		id:         t.ID,
		subject:    t.Subject,
		duration:   t.Duration,
		capacity:   t.RequiredCapacity,
		difficulty: t.Difficulty,
		need:       t.InvigilatorsRequired,
	}
	if out.need == 0 && len(t.Invigilators) > 0 {
		out.need = 1
	}
	if out.need > len(t.Invigilators) {
		return task{}, invalid(t.ID, fmt.Sprintf("requires %d invigilators but lists %d", out.need, len(t.Invigilators)))
	}

	seen := make(map[string]struct{})
	for _, id := range t.Rooms {
		idx, ok := m.roomIndex[id]
		if !ok {
			return task{}, invalid(t.ID, fmt.Sprintf("unknown room %q", id))
		}
		if _, dup := seen["r:"+id]; dup {
			continue
		}
		seen["r:"+id] = struct{}{}
		out.rooms = append(out.rooms, idx)
	}
	sort.Ints(out.rooms)

	for _, id := range t.Invigilators {
		idx, ok := m.invIndex[id]
		if !ok {
			return task{}, invalid(t.ID, fmt.Sprintf("unknown invigilator %q", id))
		}
		if _, dup := seen["i:"+id]; dup {
			continue
		}
		seen["i:"+id] = struct{}{}
		out.invs = append(out.invs, idx)
	}
	if out.need > len(out.invs) {
		return task{}, invalid(t.ID, "duplicate invigilators leave too few candidates")
	}

	for _, id := range t.Cohorts {
		if _, dup := seen["c:"+id]; dup {
			continue
		}
		seen["c:"+id] = struct{}{}
		idx, ok := cohortIndex[id]
		if !ok {
			// undeclared cohorts are always available
			idx = len(m.cohorts)
			cohortIndex[id] = idx
			m.cohorts = append(m.cohorts, resource{id: id})
		}
		out.cohorts = append(out.cohorts, idx)
	}

	for _, id := range t.Conflicts {
		idx, ok := m.taskIndex[id]
		if !ok {
			return task{}, invalid(t.ID, fmt.Sprintf("unknown conflicting task %q", id))
		}
		if id == t.ID {
			return task{}, invalid(t.ID, "task conflicts with itself")
		}
		if !containsInt(out.conflicts, idx) {
			out.conflicts = append(out.conflicts, idx)
		}
	}
	return out, nil
}

func (m *Model) computeStaticDomain(i int) {
	t := &m.tasks[i]
	t.starts = t.starts[:0]
	t.roomsOK = t.roomsOK[:0]

	for _, r := range t.rooms {
		if m.hard.has(HardRoomCapacity) && m.rooms[r].capacity < t.capacity {
			continue
		}
		t.roomsOK = append(t.roomsOK, r)
	}

	for day := 0; day < m.days; day++ {
		if m.hard.has(HardSlotRange) && (day < m.fromDay || day > m.toDay) {
			continue
		}
		for idx := 0; idx+t.duration <= m.slotsPerDay; idx++ {
			start := day*m.slotsPerDay + idx
			if m.staticStartOK(t, start) {
				t.starts = append(t.starts, start)
			}
		}
	}

	t.static = 0
	for _, start := range t.starts {
		for _, r := range t.roomsOK {
			if m.roomFree(r, start, t.duration) {
				t.static++
			}
		}
	}
}

func (m *Model) staticStartOK(t *task, start int) bool {
	if m.hard.has(HardCohortAvailability) {
		for _, c := range t.cohorts {
			if !available(m.cohorts[c].avail, start, t.duration) {
				return false
			}
		}
	}
	if t.need > 0 && m.hard.has(HardInvigilatorAvailability) {
		free := 0
		for _, inv := range t.invs {
			if available(m.invigilators[inv].avail, start, t.duration) {
				free++
			}
		}
		if free < t.need {
			return false
		}
	}
	return true
}

func (m *Model) roomFree(r, start, duration int) bool {
	return !m.hard.has(HardRoomAvailability) || available(m.rooms[r].avail, start, duration)
}

func available(avail []bool, start, duration int) bool {
	if avail == nil {
		return true
	}
	for s := start; s < start+duration; s++ {
		if !avail[s] {
			return false
		}
	}
	return true
}

// TaskCount returns the number of tasks in the model.
func (m *Model) TaskCount() int { return len(m.tasks) }

// TaskIDs returns task identifiers in input order.
func (m *Model) TaskIDs() []string {
	ids := make([]string, len(m.tasks))
	for i := range m.tasks {
		ids[i] = m.tasks[i].id
	}
	return ids
}

// Horizon returns the number of slots in the grid.
func (m *Model) Horizon() int { return m.horizon }

func (m *Model) ordinal(s TimeSlot) int { return s.Day*m.slotsPerDay + s.Index }

func (m *Model) slotOf(ordinal int) TimeSlot {
	return TimeSlot{Day: ordinal / m.slotsPerDay, Index: ordinal % m.slotsPerDay}
}

func (m *Model) inGrid(s TimeSlot) bool {
	return s.Day >= 0 && s.Day < m.days && s.Index >= 0 && s.Index < m.slotsPerDay
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
