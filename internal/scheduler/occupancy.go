package scheduler

import "sort"

// placement is the index form of an Assignment. start is a slot ordinal, -1 when unplaced.
type placement struct {
	start int
	room  int
	invs  []int
}

func unplaced() placement { return placement{start: -1, room: -1} }

func (p placement) placed() bool { return p.start >= 0 }

func clonePlacements(src []placement) []placement {
	out := make([]placement, len(src))
	for i, p := range src {
		out[i] = placement{start: p.start, room: p.room, invs: append([]int(nil), p.invs...)}
	}
	return out
}

// occupancy counts, per resource and slot ordinal, how many placed tasks use the cell.
// Every lookup touches only the cells of the task's own window, so a placement check
// costs O(duration) per resource regardless of how many tasks are already placed.
type occupancy struct {
	m      *Model
	room   []int32
	inv    []int32
	cohort []int32
	roomBy []int32
	invBy  []int32
	cohBy  []int32
}

func newOccupancy(m *Model) *occupancy {
	h := m.horizon
	return &occupancy{
		m:      m,
		room:   make([]int32, len(m.rooms)*h),
		inv:    make([]int32, len(m.invigilators)*h),
		cohort: make([]int32, len(m.cohorts)*h),
		roomBy: make([]int32, len(m.rooms)*h),
		invBy:  make([]int32, len(m.invigilators)*h),
		cohBy:  make([]int32, len(m.cohorts)*h),
	}
}

func (o *occupancy) reset() {
	clear(o.room)
	clear(o.inv)
	clear(o.cohort)
}

func (o *occupancy) add(i int, p placement) { o.apply(i, p, 1) }

func (o *occupancy) remove(i int, p placement) { o.apply(i, p, -1) }

func (o *occupancy) apply(i int, p placement, delta int32) {
	if !p.placed() {
		return
	}
	t := &o.m.tasks[i]
	h := o.m.horizon
	for s := p.start; s < p.start+t.duration; s++ {
		if p.room >= 0 {
			o.room[p.room*h+s] += delta
			o.roomBy[p.room*h+s] = int32(i)
		}
		for _, inv := range p.invs {
			o.inv[inv*h+s] += delta
			o.invBy[inv*h+s] = int32(i)
		}
		for _, c := range t.cohorts {
			o.cohort[c*h+s] += delta
			o.cohBy[c*h+s] = int32(i)
		}
	}
}

func (o *occupancy) roomClear(room, start, duration int) bool {
	base := room * o.m.horizon
	for s := start; s < start+duration; s++ {
		if o.room[base+s] > 0 {
			return false
		}
	}
	return true
}

func (o *occupancy) invClear(inv, start, duration int) bool {
	base := inv * o.m.horizon
	for s := start; s < start+duration; s++ {
		if o.inv[base+s] > 0 {
			return false
		}
	}
	return true
}

func (o *occupancy) cohortsClear(t *task, start int) bool {
	h := o.m.horizon
	for _, c := range t.cohorts {
		base := c * h
		for s := start; s < start+t.duration; s++ {
			if o.cohort[base+s] > 0 {
				return false
			}
		}
	}
	return true
}

// conflictsClear reports whether no placed explicit-conflict partner of task i overlaps start.
func (m *Model) conflictsClear(pl []placement, i, start int) bool {
	if !m.hard.has(HardExplicitConflicts) {
		return true
	}
	t := &m.tasks[i]
	for _, j := range t.conflicts {
		if pl[j].placed() && overlaps(start, t.duration, pl[j].start, m.tasks[j].duration) {
			return false
		}
	}
	return true
}

func overlaps(a, da, b, db int) bool {
	return a < b+db && b < a+da
}

// slotOpen reports whether start and room can host task i given everything else placed,
// ignoring invigilators.
func (o *occupancy) slotOpen(pl []placement, i, start, room int) bool {
	t := &o.m.tasks[i]
	return o.m.roomFree(room, start, t.duration) &&
		o.roomClear(room, start, t.duration) &&
		o.cohortsClear(t, start) &&
		o.m.conflictsClear(pl, i, start)
}

// pickInvigilators chooses the least loaded free candidates, candidate order breaking ties.
// It returns nil, false when fewer than the required number are free.
func (o *occupancy) pickInvigilators(i, start int, load []int) ([]int, bool) {
	t := &o.m.tasks[i]
	if t.need == 0 {
		return nil, true
	}
	checkAvail := o.m.hard.has(HardInvigilatorAvailability)
	free := make([]int, 0, len(t.invs))
	for _, inv := range t.invs {
		if checkAvail && !available(o.m.invigilators[inv].avail, start, t.duration) {
			continue
		}
		if o.invClear(inv, start, t.duration) {
			free = append(free, inv)
		}
	}
	if len(free) < t.need {
		return nil, false
	}
	chosen := make([]int, 0, t.need)
	for k := 0; k < t.need; k++ {
		best := k
		for j := k + 1; j < len(free); j++ {
			if load[free[j]] < load[free[best]] {
				best = j
			}
		}
		free[k], free[best] = free[best], free[k]
		chosen = append(chosen, free[k])
	}
	return chosen, true
}

// invigilatorCombos lists every need-sized subset of the free candidates for task i at start.
// Candidates are ranked least loaded first, so the first subset is the one pickInvigilators
// would choose. A task needing no invigilator yields a single empty subset.
func (o *occupancy) invigilatorCombos(i, start int, load []int) [][]int {
	t := &o.m.tasks[i]
	if t.need == 0 {
		return [][]int{nil}
	}
	checkAvail := o.m.hard.has(HardInvigilatorAvailability)
	free := make([]int, 0, len(t.invs))
	for _, inv := range t.invs {
		if checkAvail && !available(o.m.invigilators[inv].avail, start, t.duration) {
			continue
		}
		if o.invClear(inv, start, t.duration) {
			free = append(free, inv)
		}
	}
	if len(free) < t.need {
		return nil
	}
	sort.SliceStable(free, func(a, b int) bool { return load[free[a]] < load[free[b]] })

	var out [][]int
	idx := make([]int, t.need)
	for k := range idx {
		idx[k] = k
	}
	for {
		combo := make([]int, t.need)
		for k, j := range idx {
			combo[k] = free[j]
		}
		out = append(out, combo)

		k := t.need - 1
		for k >= 0 && idx[k] == len(free)-t.need+k {
			k--
		}
		if k < 0 {
			return out
		}
		idx[k]++
		for j := k + 1; j < t.need; j++ {
			idx[j] = idx[j-1] + 1
		}
	}
}

// hasOption reports whether task i still has at least one placement given the current state.
func (o *occupancy) hasOption(pl []placement, i int) bool {
	return o.countOptions(pl, i, 1) > 0
}

// countOptions counts open (start, room) pairs with enough free invigilators, stopping at limit.
func (o *occupancy) countOptions(pl []placement, i, limit int) int {
	t := &o.m.tasks[i]
	n := 0
	for _, start := range t.starts {
		if !o.cohortsClear(t, start) || !o.m.conflictsClear(pl, i, start) {
			continue
		}
		if t.need > 0 && !o.enoughInvigilators(t, start) {
			continue
		}
		for _, r := range t.roomsOK {
			if o.m.roomFree(r, start, t.duration) && o.roomClear(r, start, t.duration) {
				n++
				if limit > 0 && n >= limit {
					return n
				}
			}
		}
	}
	return n
}

func (o *occupancy) enoughInvigilators(t *task, start int) bool {
	checkAvail := o.m.hard.has(HardInvigilatorAvailability)
	free := 0
	for _, inv := range t.invs {
		if checkAvail && !available(o.m.invigilators[inv].avail, start, t.duration) {
			continue
		}
		if o.invClear(inv, start, t.duration) {
			free++
			if free >= t.need {
				return true
			}
		}
	}
	return false
}
