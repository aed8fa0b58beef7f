package scheduler

import (
	"context"
	"fmt"
	"sort"
)

const defaultWindow = 32

// Backtracking is an iterative depth-first search with forward checking. Variables are
// chosen most-constrained-first; values are tried chronologically, then by room order,
// then over every invigilator subset, least loaded first. The search is complete: it
// reports FAILED only after every (slot, room, invigilators) choice has been ruled out
// or the budget runs out.
type Backtracking struct {
	// Window bounds how many unplaced tasks are re-counted when choosing the next variable.
	Window int
}

// Name implements Strategy.
func (s *Backtracking) Name() StrategyName { return StrategyCSP }

// Generate implements Strategy.
func (s *Backtracking) Generate(ctx context.Context, m *Model, c *Checker, b Budget, observe Observer) Result {
	res, _ := s.search(ctx, m, c, b, observe)
	return res
}

// frame is one choice point. next indexes the (start, room) pairs of the task; combos
// holds the invigilator subsets still to try at the current pair.
type frame struct {
	task   int
	next   int
	start  int
	room   int
	combos [][]int
	combo  int
}

type cspState struct {
	m          *Model
	occ        *occupancy
	pl         []placement
	load       []int
	order      []int
	placed     int
	failures   []int
	best       []placement
	bestPlaced int
	stamp      []int
	stampGen   int
}

func newCSPState(m *Model) *cspState {
	n := len(m.tasks)
	st := &cspState{
		m:        m,
		occ:      newOccupancy(m),
		pl:       make([]placement, n),
		load:     make([]int, len(m.invigilators)),
		failures: make([]int, n),
		stamp:    make([]int, n),
	}
	for i := range st.pl {
		st.pl[i] = unplaced()
	}
	st.order = staticOrder(m)
	return st
}

// staticOrder ranks tasks by fewest static options, then most neighbours, then longest, then input order.
func staticOrder(m *Model) []int {
	degree := make([]int, len(m.tasks))
	for i := range m.tasks {
		degree[i] = len(m.tasks[i].conflicts)
		for _, co := range m.tasks[i].cohorts {
			degree[i] += len(m.cohortTasks[co]) - 1
		}
	}
	order := make([]int, len(m.tasks))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ta, tb := &m.tasks[order[a]], &m.tasks[order[b]]
		if ta.static != tb.static {
			return ta.static < tb.static
		}
		if degree[order[a]] != degree[order[b]] {
			return degree[order[a]] > degree[order[b]]
		}
		if ta.duration != tb.duration {
			return ta.duration > tb.duration
		}
		return order[a] < order[b]
	})
	return order
}

func (st *cspState) place(i int, p placement) {
	st.pl[i] = p
	st.occ.add(i, p)
	for _, inv := range p.invs {
		st.load[inv] += st.m.tasks[i].duration
	}
	st.placed++
}

func (st *cspState) unplace(i int) {
	p := st.pl[i]
	st.occ.remove(i, p)
	for _, inv := range p.invs {
		st.load[inv] -= st.m.tasks[i].duration
	}
	st.pl[i] = unplaced()
	st.placed--
}

// selectNext returns the unplaced task with the fewest live options among the first
// window unplaced tasks in static order, or -1 when everything is placed.
// This is an approximation of most-constrained-first: tasks beyond the window are not
// counted, and an option is an open (start, room) pair with enough free invigilators,
// not each invigilator subset. Ordering only affects speed, never completeness.
func (st *cspState) selectNext(window int) int {
	best, bestCount, seen := -1, 0, 0
	for _, i := range st.order {
		if st.pl[i].placed() {
			continue
		}
		limit := bestCount
		if best < 0 {
			limit = 0
		}
		n := st.occ.countOptions(st.pl, i, limit)
		if best < 0 || n < bestCount {
			best, bestCount = i, n
			if n == 0 {
				return best
			}
		}
		seen++
		if seen >= window {
			break
		}
	}
	return best
}

// forwardCheck verifies every unplaced task sharing a cohort, an explicit conflict or a
// chosen invigilator with i still has at least one option.
func (st *cspState) forwardCheck(i int) bool {
	st.stampGen++
	gen := st.stampGen
	t := &st.m.tasks[i]
	check := func(j int) bool {
		if j == i || st.pl[j].placed() || st.stamp[j] == gen {
			return true
		}
		st.stamp[j] = gen
		return st.occ.hasOption(st.pl, j)
	}
	for _, co := range t.cohorts {
		for _, j := range st.m.cohortTasks[co] {
			if !check(j) {
				return false
			}
		}
	}
	for _, j := range t.conflicts {
		if !check(j) {
			return false
		}
	}
	for _, inv := range st.pl[i].invs {
		for _, j := range st.m.invTasks[inv] {
			if !check(j) {
				return false
			}
		}
	}
	return true
}

// preflight rejects instances that cannot be solved regardless of search order.
func (st *cspState) preflight() *Diagnostics {
	m := st.m
	total := len(m.tasks)

	var dead []string
	for i := range m.tasks {
		if m.tasks[i].static == 0 {
			dead = append(dead, m.tasks[i].id)
		}
	}
	if len(dead) > 0 {
		return &Diagnostics{
			Reason:   fmt.Sprintf("%d task(s) have no slot and room satisfying the static constraints", len(dead)),
			Total:    total,
			Unplaced: dead,
		}
	}

	rangeSlots := (m.toDay - m.fromDay + 1) * m.slotsPerDay
	for co := range m.cohorts {
		demand := 0
		for _, i := range m.cohortTasks[co] {
			demand += m.tasks[i].duration
		}
		supply := rangeSlots
		if avail := m.cohorts[co].avail; avail != nil && m.hard.has(HardCohortAvailability) {
			supply = 0
			for s := m.fromDay * m.slotsPerDay; s < (m.toDay+1)*m.slotsPerDay; s++ {
				if avail[s] {
					supply++
				}
			}
		}
		if demand > supply {
			ids := make([]string, 0, len(m.cohortTasks[co]))
			for _, i := range m.cohortTasks[co] {
				ids = append(ids, m.tasks[i].id)
			}
			return &Diagnostics{
				Reason:   fmt.Sprintf("cohort %s needs %d slots but only %d are available", m.cohorts[co].id, demand, supply),
				Total:    total,
				Unplaced: ids,
			}
		}
	}

	demand := 0
	usable := make(map[int]struct{}, len(m.rooms))
	for i := range m.tasks {
		demand += m.tasks[i].duration
		for _, r := range m.tasks[i].roomsOK {
			usable[r] = struct{}{}
		}
	}
	if supply := len(usable) * rangeSlots; demand > supply {
		return &Diagnostics{
			Reason: fmt.Sprintf("tasks need %d room-slots but only %d exist", demand, supply),
			Total:  total,
		}
	}
	return nil
}

func (st *cspState) diagnostics(reason string) *Diagnostics {
	m := st.m
	snapshot := st.best
	if snapshot == nil {
		snapshot = st.pl
	}
	d := &Diagnostics{Reason: reason, Placed: st.bestPlaced, Total: len(m.tasks)}
	for i, p := range snapshot {
		if !p.placed() {
			d.Unplaced = append(d.Unplaced, m.tasks[i].id)
		}
	}
	idx := make([]int, 0, len(m.tasks))
	for i, f := range st.failures {
		if f > 0 {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool { return st.failures[idx[a]] > st.failures[idx[b]] })
	for k := 0; k < len(idx) && k < 5; k++ {
		d.Hardest = append(d.Hardest, m.tasks[idx[k]].id)
	}
	return d
}

func (s *Backtracking) search(ctx context.Context, m *Model, c *Checker, b Budget, observe Observer) (Result, []placement) {
	n := len(m.tasks)
	if n == 0 {
		return emptyResult(observe), nil
	}
	window := s.Window
	if window <= 0 {
		window = defaultWindow
	}

	clk := newClock(b)
	st := newCSPState(m)
	if diag := st.preflight(); diag != nil {
		return Result{Status: StatusFailed, Diagnostics: diag}, nil
	}

	notify(observe, Event{Phase: PhaseConstruct, Total: n})
	stack := make([]frame, 0, n)
	stack = append(stack, frame{task: st.selectNext(window)})

	for len(stack) > 0 {
		if ctx.Err() != nil {
			return Result{Status: StatusCancelled, Diagnostics: st.diagnostics("cancelled"), Steps: clk.steps}, nil
		}
		if reason, out := clk.exhausted(); out {
			return Result{Status: StatusFailed, Diagnostics: st.diagnostics(reason), Steps: clk.steps}, nil
		}

		f := &stack[len(stack)-1]
		i := f.task
		t := &m.tasks[i]
		if st.pl[i].placed() {
			st.unplace(i)
		}

		rooms := len(t.roomsOK)
		options := len(t.starts) * rooms
		ok := false
		for {
			if f.combo < len(f.combos) {
				invs := f.combos[f.combo]
				f.combo++
				clk.tick()
				st.place(i, placement{start: f.start, room: f.room, invs: invs})
				if st.forwardCheck(i) {
					ok = true
					break
				}
				st.unplace(i)
				if _, out := clk.exhausted(); out {
					break
				}
				continue
			}
			if f.next >= options {
				break
			}
			k := f.next
			f.next++
			start, room := t.starts[k/rooms], t.roomsOK[k%rooms]
			if !st.occ.slotOpen(st.pl, i, start, room) {
				continue
			}
			f.start, f.room = start, room
			f.combos, f.combo = st.occ.invigilatorCombos(i, start, st.load), 0
		}
		if !ok {
			st.failures[i]++
			stack = stack[:len(stack)-1]
			continue
		}

		if st.placed > st.bestPlaced {
			st.bestPlaced = st.placed
			st.best = clonePlacements(st.pl)
			notify(observe, Event{
				Phase:   PhaseConstruct,
				Percent: float64(st.bestPlaced) * 100 / float64(n),
				Placed:  st.bestPlaced,
				Total:   n,
				Steps:   clk.steps,
			})
		}

		next := st.selectNext(window)
		if next < 0 {
			assignments := m.toAssignments(st.pl)
			penalty := c.score(st.pl)
			notify(observe, Event{
				Phase:       PhaseDone,
				Percent:     100,
				Feasible:    true,
				BestPenalty: penalty,
				Placed:      n,
				Total:       n,
				Steps:       clk.steps,
				Solution:    assignments,
			})
			return Result{
				Status:      StatusSucceeded,
				Feasible:    true,
				Assignments: assignments,
				Penalty:     penalty,
				Steps:       clk.steps,
			}, clonePlacements(st.pl)
		}
		stack = append(stack, frame{task: next})
	}

	return Result{
		Status:      StatusFailed,
		Diagnostics: st.diagnostics("search space exhausted without a feasible assignment"),
		Steps:       clk.steps,
	}, nil
}
