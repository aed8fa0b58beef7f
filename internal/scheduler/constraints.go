package scheduler

import (
	"fmt"
	"sort"
)

// Hard constraint names. Overlap and within-day rules are always enforced.
const (
	HardRoomOverlap             = "no_room_overlap"
	HardInvigilatorOverlap      = "no_invigilator_overlap"
	HardCohortOverlap           = "no_cohort_overlap"
	HardWithinDay               = "within_day"
	HardRoomCapacity            = "room_capacity"
	HardRoomAvailability        = "room_availability"
	HardInvigilatorAvailability = "invigilator_availability"
	HardCohortAvailability      = "cohort_availability"
	HardExplicitConflicts       = "explicit_conflicts"
	HardSlotRange               = "slot_range"
)

// Soft constraint names.
const (
	SoftCohortGap          = "cohort_gap"
	SoftInvigilatorBalance = "invigilator_balance"
	SoftMorningDifficulty  = "morning_difficulty"
	SoftCohortDailyLoad    = "cohort_daily_load"
)

// structural violations raised when an assignment does not match the model.
const (
	violationUnknownTask        = "unknown_task"
	violationDuplicateTask      = "duplicate_task"
	violationInvalidRoom        = "invalid_room"
	violationInvalidInvigilator = "invalid_invigilator"
)

var alwaysHard = []string{HardRoomOverlap, HardInvigilatorOverlap, HardCohortOverlap, HardWithinDay}

var optionalHard = []string{
	HardRoomCapacity,
	HardRoomAvailability,
	HardInvigilatorAvailability,
	HardCohortAvailability,
	HardExplicitConflicts,
	HardSlotRange,
}

// DefaultSoftWeights are applied when a run does not override them.
var DefaultSoftWeights = map[string]float64{
	SoftCohortGap:          1,
	SoftInvigilatorBalance: 1,
	SoftMorningDifficulty:  2,
	SoftCohortDailyLoad:    0,
}

// HardConstraintNames lists every recognised hard constraint.
func HardConstraintNames() []string {
	return append(append([]string(nil), alwaysHard...), optionalHard...)
}

// SoftConstraintNames lists every recognised soft constraint in sorted order.
func SoftConstraintNames() []string {
	names := make([]string, 0, len(DefaultSoftWeights))
	for name := range DefaultSoftWeights {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type hardSet map[string]bool

func (h hardSet) has(name string) bool { return h[name] }

func parseHard(names []string) (hardSet, error) {
	set := make(hardSet, len(alwaysHard)+len(optionalHard))
	for _, n := range alwaysHard {
		set[n] = true
	}
	if names == nil {
		for _, n := range optionalHard {
			set[n] = true
		}
		return set, nil
	}
	known := make(map[string]bool)
	for _, n := range HardConstraintNames() {
		known[n] = true
	}
	for _, n := range names {
		if !known[n] {
			return nil, invalid("hardConstraints", fmt.Sprintf("unknown hard constraint %q", n))
		}
		set[n] = true
	}
	return set, nil
}

type softWeights struct {
	gap       float64
	balance   float64
	morning   float64
	dailyLoad float64
}

func parseSoft(overrides map[string]float64, maxDaily int) (softWeights, error) {
	merged := make(map[string]float64, len(DefaultSoftWeights))
	for k, v := range DefaultSoftWeights {
		merged[k] = v
	}
	if maxDaily > 0 && overrides[SoftCohortDailyLoad] == 0 {
		merged[SoftCohortDailyLoad] = 1
	}
	for name, w := range overrides {
		if _, ok := DefaultSoftWeights[name]; !ok {
			return softWeights{}, invalid("softConstraints", fmt.Sprintf("unknown soft constraint %q", name))
		}
		if w < 0 {
			return softWeights{}, invalid("softConstraints", fmt.Sprintf("weight for %q must not be negative", name))
		}
		merged[name] = w
	}
	return softWeights{
		gap:       merged[SoftCohortGap],
		balance:   merged[SoftInvigilatorBalance],
		morning:   merged[SoftMorningDifficulty],
		dailyLoad: merged[SoftCohortDailyLoad],
	}, nil
}
