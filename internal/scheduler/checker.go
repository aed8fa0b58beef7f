package scheduler

import "sort"

// Violation describes one broken hard constraint.
type Violation struct {
	Constraint string    `json:"constraint"`
	Tasks      []string  `json:"tasks"`
	Resource   string    `json:"resource,omitempty"`
	Slot       *TimeSlot `json:"slot,omitempty"`
}

// Evaluation summarises a solution for ranking.
type Evaluation struct {
	Feasible       bool    `json:"feasible"`
	HardViolations int     `json:"hardViolations"`
	Penalty        float64 `json:"penalty"`
}

// Checker validates assignments against a Model. It is stateless and safe for concurrent use.
type Checker struct {
	m          *Model
	activeInvs []int
}

// NewChecker builds a checker bound to m.
func NewChecker(m *Model) *Checker {
	seen := make([]bool, len(m.invigilators))
	for i := range m.tasks {
		if m.tasks[i].need == 0 {
			continue
		}
		for _, inv := range m.tasks[i].invs {
			seen[inv] = true
		}
	}
	active := make([]int, 0, len(seen))
	for inv, ok := range seen {
		if ok {
			active = append(active, inv)
		}
	}
	return &Checker{m: m, activeInvs: active}
}

// Model returns the model the checker validates against.
func (c *Checker) Model() *Model { return c.m }

// IsFeasible reports whether the assignments present so far break no hard constraint.
func (c *Checker) IsFeasible(partial []Assignment) bool {
	pl, bad := c.decode(partial)
	if len(bad) > 0 {
		return false
	}
	return len(c.hardViolations(pl, 1)) == 0
}

// Violations lists every hard constraint broken by the assignments.
func (c *Checker) Violations(assignments []Assignment) []Violation {
	pl, bad := c.decode(assignments)
	return append(bad, c.hardViolations(pl, 0)...)
}

// Score returns the weighted soft penalty of the assignments. Lower is better; 0 is perfect.
func (c *Checker) Score(assignments []Assignment) float64 {
	pl, _ := c.decode(assignments)
	return c.score(pl)
}

// Evaluate combines feasibility and penalty in one pass.
func (c *Checker) Evaluate(assignments []Assignment) Evaluation {
	pl, bad := c.decode(assignments)
	n := len(bad) + len(c.hardViolations(pl, 0))
	return Evaluation{Feasible: n == 0, HardViolations: n, Penalty: c.score(pl)}
}

func (c *Checker) decode(assignments []Assignment) ([]placement, []Violation) {
	m := c.m
	pl := make([]placement, len(m.tasks))
	for i := range pl {
		pl[i] = unplaced()
	}
	var bad []Violation
	for _, a := range assignments {
		i, ok := m.taskIndex[a.TaskID]
		if !ok {
			bad = append(bad, Violation{Constraint: violationUnknownTask, Tasks: []string{a.TaskID}})
			continue
		}
		if pl[i].placed() {
			bad = append(bad, Violation{Constraint: violationDuplicateTask, Tasks: []string{a.TaskID}})
			continue
		}
		t := &m.tasks[i]
		if !m.inGrid(a.Start) || a.Start.Index+t.duration > m.slotsPerDay {
			slot := a.Start
			bad = append(bad, Violation{Constraint: HardWithinDay, Tasks: []string{t.id}, Slot: &slot})
			continue
		}
		room, ok := m.roomIndex[a.Room]
		if !ok || !containsInt(t.rooms, room) {
			bad = append(bad, Violation{Constraint: violationInvalidRoom, Tasks: []string{t.id}, Resource: a.Room})
			continue
		}
		invs := make([]int, 0, len(a.Invigilators))
		valid := len(a.Invigilators) == t.need
		for _, id := range a.Invigilators {
			inv, known := m.invIndex[id]
			if !known || !containsInt(t.invs, inv) || containsInt(invs, inv) {
				valid = false
				continue
			}
			invs = append(invs, inv)
		}
		if !valid {
			bad = append(bad, Violation{Constraint: violationInvalidInvigilator, Tasks: []string{t.id}})
		}
		pl[i] = placement{start: m.ordinal(a.Start), room: room, invs: invs}
	}
	return pl, bad
}

// hardViolations walks placed tasks in index order against an occupancy of the tasks before
// them. limit > 0 stops early once that many violations are found.
func (c *Checker) hardViolations(pl []placement, limit int) []Violation {
	return c.collect(newOccupancy(c.m), pl, limit)
}

// collect does the work of hardViolations on a caller-owned, empty occupancy.
func (c *Checker) collect(occ *occupancy, pl []placement, limit int) []Violation {
	m := c.m
	var out []Violation
	report := func(v Violation) bool {
		out = append(out, v)
		return limit > 0 && len(out) >= limit
	}

	for i, p := range pl {
		if !p.placed() {
			continue
		}
		t := &m.tasks[i]
		slot := m.slotOf(p.start)

		if m.hard.has(HardSlotRange) && (slot.Day < m.fromDay || slot.Day > m.toDay) {
			if report(Violation{Constraint: HardSlotRange, Tasks: []string{t.id}, Slot: &slot}) {
				return out
			}
		}
		if p.room >= 0 {
			r := &m.rooms[p.room]
			if m.hard.has(HardRoomCapacity) && r.capacity < t.capacity {
				if report(Violation{Constraint: HardRoomCapacity, Tasks: []string{t.id}, Resource: r.id}) {
					return out
				}
			}
			if m.hard.has(HardRoomAvailability) && !available(r.avail, p.start, t.duration) {
				if report(Violation{Constraint: HardRoomAvailability, Tasks: []string{t.id}, Resource: r.id, Slot: &slot}) {
					return out
				}
			}
			if other, s, clash := firstClash(occ.room, occ.roomBy, p.room*m.horizon, p.start, t.duration); clash {
				at := m.slotOf(s)
				if report(Violation{Constraint: HardRoomOverlap, Tasks: []string{m.tasks[other].id, t.id}, Resource: r.id, Slot: &at}) {
					return out
				}
			}
		}
		for _, inv := range p.invs {
			res := &m.invigilators[inv]
			if m.hard.has(HardInvigilatorAvailability) && !available(res.avail, p.start, t.duration) {
				if report(Violation{Constraint: HardInvigilatorAvailability, Tasks: []string{t.id}, Resource: res.id, Slot: &slot}) {
					return out
				}
			}
			if other, s, clash := firstClash(occ.inv, occ.invBy, inv*m.horizon, p.start, t.duration); clash {
				at := m.slotOf(s)
				if report(Violation{Constraint: HardInvigilatorOverlap, Tasks: []string{m.tasks[other].id, t.id}, Resource: res.id, Slot: &at}) {
					return out
				}
			}
		}
		for _, co := range t.cohorts {
			res := &m.cohorts[co]
			if m.hard.has(HardCohortAvailability) && !available(res.avail, p.start, t.duration) {
				if report(Violation{Constraint: HardCohortAvailability, Tasks: []string{t.id}, Resource: res.id, Slot: &slot}) {
					return out
				}
			}
			if other, s, clash := firstClash(occ.cohort, occ.cohBy, co*m.horizon, p.start, t.duration); clash {
				at := m.slotOf(s)
				if report(Violation{Constraint: HardCohortOverlap, Tasks: []string{m.tasks[other].id, t.id}, Resource: res.id, Slot: &at}) {
					return out
				}
			}
		}
		if m.hard.has(HardExplicitConflicts) {
			for _, j := range t.conflicts {
				if j >= i || !pl[j].placed() {
					continue
				}
				if overlaps(p.start, t.duration, pl[j].start, m.tasks[j].duration) {
					if report(Violation{Constraint: HardExplicitConflicts, Tasks: []string{m.tasks[j].id, t.id}, Slot: &slot}) {
						return out
					}
				}
			}
		}
		occ.add(i, p)
	}
	return out
}

func firstClash(counts, owners []int32, base, start, duration int) (int, int, bool) {
	for s := start; s < start+duration; s++ {
		if counts[base+s] > 0 {
			return int(owners[base+s]), s, true
		}
	}
	return 0, 0, false
}

// hardCount counts violations using occ, which it resets first.
func (c *Checker) hardCount(occ *occupancy, pl []placement) int {
	occ.reset()
	return len(c.collect(occ, pl, 0))
}

type interval struct{ start, end int }

// score computes the weighted soft penalty over placed tasks, iterating in index order only.
func (c *Checker) score(pl []placement) float64 {
	m := c.m
	w := m.weights
	total := 0.0

	if w.gap > 0 || (w.dailyLoad > 0 && m.maxDaily > 0) {
		var buf []interval
		perDay := make([]int, m.days)
		for co := range m.cohorts {
			buf = buf[:0]
			clear(perDay)
			for _, i := range m.cohortTasks[co] {
				if pl[i].placed() {
					buf = append(buf, interval{pl[i].start, pl[i].start + m.tasks[i].duration})
					perDay[pl[i].start/m.slotsPerDay]++
				}
			}
			if w.gap > 0 && len(buf) > 1 {
				sort.Slice(buf, func(a, b int) bool { return buf[a].start < buf[b].start })
				end := buf[0].end
				for _, iv := range buf[1:] {
					if iv.start/m.slotsPerDay == (end-1)/m.slotsPerDay && iv.start > end {
						total += w.gap * float64(iv.start-end)
					}
					if iv.end > end || iv.start/m.slotsPerDay != (end-1)/m.slotsPerDay {
						end = iv.end
					}
				}
			}
			if w.dailyLoad > 0 && m.maxDaily > 0 {
				for _, n := range perDay {
					if n > m.maxDaily {
						total += w.dailyLoad * float64(n-m.maxDaily)
					}
				}
			}
		}
	}

	if w.balance > 0 && len(c.activeInvs) > 1 {
		load := make([]float64, len(m.invigilators))
		sum := 0.0
		for i, p := range pl {
			if !p.placed() {
				continue
			}
			for _, inv := range p.invs {
				load[inv] += float64(m.tasks[i].duration)
				sum += float64(m.tasks[i].duration)
			}
		}
		mean := sum / float64(len(c.activeInvs))
		dev := 0.0
		for _, inv := range c.activeInvs {
			d := load[inv] - mean
			if d < 0 {
				d = -d
			}
			dev += d
		}
		total += w.balance * dev
	}

	if w.morning > 0 && m.difficulty > 0 {
		for i, p := range pl {
			if !p.placed() || m.tasks[i].difficulty < m.difficulty {
				continue
			}
			if idx := p.start % m.slotsPerDay; idx >= m.morning {
				total += w.morning * float64(idx-m.morning+1)
			}
		}
	}

	return total
}

// toAssignments converts placements to the public form, skipping unplaced tasks.
func (m *Model) toAssignments(pl []placement) []Assignment {
	out := make([]Assignment, 0, len(pl))
	for i, p := range pl {
		if !p.placed() {
			continue
		}
		invs := make([]string, len(p.invs))
		for k, inv := range p.invs {
			invs[k] = m.invigilators[inv].id
		}
		out = append(out, Assignment{
			TaskID:       m.tasks[i].id,
			Start:        m.slotOf(p.start),
			Room:         m.rooms[p.room].id,
			Invigilators: invs,
		})
	}
	return out
}
