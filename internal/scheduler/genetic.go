package scheduler

import (
	"context"
	"math/rand"
)

const placementTries = 12

// Genetic evolves a population of complete schedules with tournament selection,
// uniform crossover, re-slot mutation and a first-improvement local search.
// Once a hard-feasible solution exists the incumbent is only ever replaced by a
// hard-feasible solution with an equal or lower penalty.
type Genetic struct {
	// Seed, when set, becomes the first population member and the initial incumbent.
	Seed []Assignment

	seed []placement
}

// Name implements Strategy.
func (g *Genetic) Name() StrategyName { return StrategyGenetic }

type individual struct {
	genes   []placement
	hard    int
	penalty float64
	fitness float64
}

// gaRun holds the per-call state. Placement invigilator slices are never modified in
// place, so individuals may share them.
type gaRun struct {
	m    *Model
	c    *Checker
	b    Budget
	rng  *rand.Rand
	occ  *occupancy
	eval *occupancy
	load []int
}

// Generate implements Strategy.
func (g *Genetic) Generate(ctx context.Context, m *Model, c *Checker, b Budget, observe Observer) Result {
	n := len(m.tasks)
	if n == 0 {
		return emptyResult(observe)
	}
	b = b.WithDefaults()
	r := &gaRun{
		m:    m,
		c:    c,
		b:    b,
		rng:  rand.New(rand.NewSource(b.Seed)),
		occ:  newOccupancy(m),
		eval: newOccupancy(m),
		load: make([]int, len(m.invigilators)),
	}
	clk := newClock(b)

	seed := g.seed
	if seed == nil && len(g.Seed) > 0 {
		decoded, bad := c.decode(g.Seed)
		if len(bad) == 0 && allPlaced(decoded) {
			seed = decoded
		}
	}

	pop := r.initialPopulation(seed)
	incumbent := r.copyOf(bestOf(pop))
	notify(observe, r.event(incumbent, 0, 0, clk, incumbent.hard == 0))

	reason := "generation limit reached"
	percent := 0.0
	stagnant := 0
	gen := 0
	for gen < b.Generations {
		if ctx.Err() != nil {
			return r.cancelled(incumbent, clk, gen)
		}
		if why, out := clk.exhausted(); out {
			reason = why
			break
		}
		gen++

		next := make([]individual, 1, b.PopulationSize)
		next[0] = r.copyOf(incumbent)
		for attempts := 0; len(next) < b.PopulationSize && attempts < b.PopulationSize*4; attempts++ {
			clk.tick()
			p1 := r.tournament(pop)
			var genes []placement
			if r.rng.Float64() < b.CrossoverRate {
				genes = r.crossover(p1.genes, r.tournament(pop).genes)
			} else {
				genes = append([]placement(nil), p1.genes...)
			}
			if r.rng.Float64() < b.MutationRate {
				r.mutate(genes)
			}
			child := r.evaluate(genes)
			if incumbent.hard == 0 && child.hard > 0 {
				continue
			}
			next = append(next, child)
		}
		pop = next

		cand := bestOf(pop)
		if cand.hard == 0 {
			cand = r.localSearch(cand)
		}
		var improved bool
		if incumbent.hard > 0 {
			improved = cand.hard == 0 || cand.fitness < incumbent.fitness
		} else {
			improved = cand.hard == 0 && cand.penalty < incumbent.penalty
		}
		if improved {
			incumbent = r.copyOf(cand)
			stagnant = 0
		} else {
			stagnant++
		}

		p := float64(gen) * 100 / float64(b.Generations)
		if f := clk.fraction(b.TimeLimit) * 100; f > p {
			p = f
		}
		if p > 99 {
			p = 99
		}
		if p > percent {
			percent = p
		}
		notify(observe, r.event(incumbent, percent, gen, clk, improved && incumbent.hard == 0))

		if incumbent.hard == 0 && incumbent.penalty == 0 {
			reason = "perfect solution"
			break
		}
		if stagnant >= b.StagnationLimit {
			reason = "stagnation limit reached"
			break
		}
	}

	if ctx.Err() != nil {
		return r.cancelled(incumbent, clk, gen)
	}
	if incumbent.hard > 0 {
		return Result{
			Status:      StatusFailed,
			Diagnostics: r.diagnostics(incumbent, "no hard-feasible schedule found: "+reason),
			Steps:       clk.steps,
			Generations: gen,
		}
	}

	assignments := m.toAssignments(incumbent.genes)
	notify(observe, Event{
		Phase:       PhaseDone,
		Percent:     100,
		Feasible:    true,
		BestPenalty: incumbent.penalty,
		Placed:      n,
		Total:       n,
		Generation:  gen,
		Steps:       clk.steps,
	})
	return Result{
		Status:      StatusSucceeded,
		Feasible:    true,
		Assignments: assignments,
		Penalty:     incumbent.penalty,
		Steps:       clk.steps,
		Generations: gen,
	}
}

func allPlaced(pl []placement) bool {
	for _, p := range pl {
		if !p.placed() {
			return false
		}
	}
	return true
}

func (r *gaRun) event(inc individual, percent float64, gen int, clk *clock, withSolution bool) Event {
	ev := Event{
		Phase:       PhaseOptimise,
		Percent:     percent,
		Feasible:    inc.hard == 0,
		BestPenalty: inc.penalty,
		Placed:      len(inc.genes),
		Total:       len(inc.genes),
		Generation:  gen,
		Steps:       clk.steps,
	}
	if withSolution {
		ev.Solution = r.m.toAssignments(inc.genes)
	}
	return ev
}

func (r *gaRun) cancelled(inc individual, clk *clock, gen int) Result {
	res := Result{Status: StatusCancelled, Steps: clk.steps, Generations: gen}
	if inc.hard == 0 {
		res.Feasible = true
		res.Assignments = r.m.toAssignments(inc.genes)
		res.Penalty = inc.penalty
	}
	return res
}

func (r *gaRun) diagnostics(inc individual, reason string) *Diagnostics {
	violations := r.c.hardViolations(inc.genes, 20)
	d := &Diagnostics{Reason: reason, Placed: len(inc.genes), Total: len(inc.genes), Violations: violations}
	seen := make(map[string]struct{})
	for _, v := range violations {
		for _, id := range v.Tasks {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				d.Hardest = append(d.Hardest, id)
			}
		}
	}
	return d
}

func (r *gaRun) evaluate(genes []placement) individual {
	hard := r.c.hardCount(r.eval, genes)
	penalty := r.c.score(genes)
	return individual{genes: genes, hard: hard, penalty: penalty, fitness: penalty + r.b.HardPenalty*float64(hard)}
}

func (r *gaRun) copyOf(ind individual) individual {
	ind.genes = append([]placement(nil), ind.genes...)
	return ind
}

// bestOf ranks hard-feasible individuals above infeasible ones, then by fitness.
func bestOf(pop []individual) individual {
	best := pop[0]
	for _, ind := range pop[1:] {
		if better(ind, best) {
			best = ind
		}
	}
	return best
}

func better(a, b individual) bool {
	if (a.hard == 0) != (b.hard == 0) {
		return a.hard == 0
	}
	return a.fitness < b.fitness
}

func (r *gaRun) tournament(pop []individual) individual {
	best := pop[r.rng.Intn(len(pop))]
	for k := 1; k < r.b.TournamentSize; k++ {
		if cand := pop[r.rng.Intn(len(pop))]; cand.fitness < best.fitness {
			best = cand
		}
	}
	return best
}

// crossover swaps task placements between two parents gene by gene.
func (r *gaRun) crossover(a, b []placement) []placement {
	child := make([]placement, len(a))
	for i := range a {
		if r.rng.Intn(2) == 0 {
			child[i] = a[i]
		} else {
			child[i] = b[i]
		}
	}
	return child
}

func (r *gaRun) initialPopulation(seed []placement) []individual {
	size := r.b.PopulationSize
	pop := make([]individual, 0, size)
	if seed != nil {
		pop = append(pop, r.evaluate(append([]placement(nil), seed...)))
		for len(pop) < size {
			genes := append([]placement(nil), seed...)
			for k, times := 0, 1+r.rng.Intn(3); k < times; k++ {
				r.mutate(genes)
			}
			pop = append(pop, r.evaluate(genes))
		}
		return pop
	}
	for len(pop) < size {
		pop = append(pop, r.evaluate(r.construct()))
	}
	return pop
}

// construct places tasks in random order, preferring open options over violating ones.
func (r *gaRun) construct() []placement {
	m := r.m
	genes := make([]placement, len(m.tasks))
	for i := range genes {
		genes[i] = unplaced()
	}
	r.occ.reset()
	clear(r.load)
	for _, i := range r.rng.Perm(len(m.tasks)) {
		genes[i] = r.reslot(genes, i)
		r.occ.add(i, genes[i])
		for _, inv := range genes[i].invs {
			r.load[inv] += m.tasks[i].duration
		}
	}
	return genes
}

// mutate re-slots one task against the rest of genes.
func (r *gaRun) mutate(genes []placement) {
	i := r.rng.Intn(len(genes))
	r.indexExcept(genes, i)
	genes[i] = r.reslot(genes, i)
}

func (r *gaRun) indexExcept(genes []placement, skip int) {
	r.occ.reset()
	clear(r.load)
	for j, p := range genes {
		if j == skip || !p.placed() {
			continue
		}
		r.occ.add(j, p)
		for _, inv := range p.invs {
			r.load[inv] += r.m.tasks[j].duration
		}
	}
}

// reslot picks a placement for task i given r.occ and r.load describe every other task.
// It samples open options first and falls back to a random, possibly violating one.
func (r *gaRun) reslot(genes []placement, i int) placement {
	t := &r.m.tasks[i]
	if len(t.starts) > 0 && len(t.roomsOK) > 0 {
		for k := 0; k < placementTries; k++ {
			start := t.starts[r.rng.Intn(len(t.starts))]
			room := t.roomsOK[r.rng.Intn(len(t.roomsOK))]
			if !r.occ.slotOpen(genes, i, start, room) {
				continue
			}
			if invs, ok := r.occ.pickInvigilators(i, start, r.load); ok {
				return placement{start: start, room: room, invs: invs}
			}
		}
	}
	return r.randomPlacement(i)
}

func (r *gaRun) randomPlacement(i int) placement {
	m := r.m
	t := &m.tasks[i]
	var start int
	if len(t.starts) > 0 {
		start = t.starts[r.rng.Intn(len(t.starts))]
	} else {
		day := m.fromDay + r.rng.Intn(m.toDay-m.fromDay+1)
		start = day*m.slotsPerDay + r.rng.Intn(m.slotsPerDay-t.duration+1)
	}
	rooms := t.roomsOK
	if len(rooms) == 0 {
		rooms = t.rooms
	}
	p := placement{start: start, room: rooms[r.rng.Intn(len(rooms))]}
	if t.need > 0 {
		perm := r.rng.Perm(len(t.invs))[:t.need]
		p.invs = make([]int, t.need)
		for k, idx := range perm {
			p.invs[k] = t.invs[idx]
		}
	}
	return p
}

// localSearch applies first-improvement single-task moves, keeping the solution hard-feasible.
func (r *gaRun) localSearch(ind individual) individual {
	cur := r.copyOf(ind)
	for move := 0; move < r.b.LocalSearchMoves; move++ {
		i := r.rng.Intn(len(cur.genes))
		old := cur.genes[i]
		r.indexExcept(cur.genes, i)
		cand := r.reslot(cur.genes, i)
		if cand.start == old.start && cand.room == old.room {
			continue
		}
		cur.genes[i] = cand
		next := r.evaluate(cur.genes)
		if next.hard == 0 && next.penalty < cur.penalty {
			cur = next
			continue
		}
		cur.genes[i] = old
	}
	return cur
}
