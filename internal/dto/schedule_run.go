package dto

import (
	"time"

	"github.com/noah-isme/sma-schedule-engine/internal/scheduler"
)

// GridRequest describes the slot calendar of a run.
type GridRequest struct {
	Days         int `json:"days" yaml:"days" validate:"required,min=1,max=366"`
	SlotsPerDay  int `json:"slotsPerDay" yaml:"slotsPerDay" validate:"required,min=1,max=96"`
	MorningSlots int `json:"morningSlots" yaml:"morningSlots" validate:"omitempty,min=0"`
}

// SlotRangeRequest limits placement to a day window of the grid.
type SlotRangeRequest struct {
	FromDay int `json:"fromDay" yaml:"fromDay" validate:"min=0"`
	ToDay   int `json:"toDay" yaml:"toDay" validate:"min=0"`
}

// ResourceRequest declares a room, invigilator or cohort.
type ResourceRequest struct {
	ID           string               `json:"id" yaml:"id" validate:"required,max=128"`
	Capacity     int                  `json:"capacity" yaml:"capacity" validate:"omitempty,min=0"`
	Availability []scheduler.TimeSlot `json:"availability" yaml:"availability"`
}

// TaskRequest declares one exam or period to place.
type TaskRequest struct {
	ID                   string   `json:"id" yaml:"id" validate:"required,max=128"`
	Subject              string   `json:"subject" yaml:"subject"`
	Cohorts              []string `json:"cohorts" yaml:"cohorts" validate:"omitempty,dive,required"`
	Duration             int      `json:"duration" yaml:"duration" validate:"required,min=1"`
	RequiredCapacity     int      `json:"requiredCapacity" yaml:"requiredCapacity" validate:"omitempty,min=0"`
	Rooms                []string `json:"rooms" yaml:"rooms" validate:"required,min=1,dive,required"`
	Invigilators         []string `json:"invigilators" yaml:"invigilators" validate:"omitempty,dive,required"`
	InvigilatorsRequired int      `json:"invigilatorsRequired" yaml:"invigilatorsRequired" validate:"omitempty,min=0"`
	Conflicts            []string `json:"conflicts" yaml:"conflicts" validate:"omitempty,dive,required"`
	Difficulty           int      `json:"difficulty" yaml:"difficulty" validate:"omitempty,min=0,max=10"`
}

// BudgetRequest bounds the search. At least one of timeLimitMs or maxSteps must be set
// unless server defaults apply.
type BudgetRequest struct {
	TimeLimitMs     int64   `json:"timeLimitMs" yaml:"timeLimitMs" validate:"omitempty,min=0"`
	MaxSteps        int64   `json:"maxSteps" yaml:"maxSteps" validate:"omitempty,min=0"`
	Generations     int     `json:"generations" yaml:"generations" validate:"omitempty,min=0"`
	PopulationSize  int     `json:"populationSize" yaml:"populationSize" validate:"omitempty,min=0,max=10000"`
	StagnationLimit int     `json:"stagnationLimit" yaml:"stagnationLimit" validate:"omitempty,min=0"`
	MutationRate    float64 `json:"mutationRate" yaml:"mutationRate" validate:"omitempty,min=0,max=1"`
	CrossoverRate   float64 `json:"crossoverRate" yaml:"crossoverRate" validate:"omitempty,min=0,max=1"`
	Seed            int64   `json:"seed" yaml:"seed"`
	HybridCSPShare  float64 `json:"hybridCspShare" yaml:"hybridCspShare" validate:"omitempty,gt=0,lt=1"`
}

// CreateScheduleRunRequest configures a generation run. A missing tasks list is rejected;
// an empty one is accepted.
type CreateScheduleRunRequest struct {
	Scope               string             `json:"scope" yaml:"scope" validate:"required,max=128"`
	Strategy            string             `json:"strategy" yaml:"strategy"`
	Grid                GridRequest        `json:"grid" yaml:"grid"`
	Range               *SlotRangeRequest  `json:"range,omitempty" yaml:"range" validate:"omitempty"`
	Rooms               []ResourceRequest  `json:"rooms" yaml:"rooms" validate:"dive"`
	Invigilators        []ResourceRequest  `json:"invigilators" yaml:"invigilators" validate:"dive"`
	Cohorts             []ResourceRequest  `json:"cohorts" yaml:"cohorts" validate:"dive"`
	Tasks               []TaskRequest      `json:"tasks" yaml:"tasks" validate:"required,dive"`
	HardConstraints     []string           `json:"hardConstraints" yaml:"hardConstraints"`
	SoftConstraints     map[string]float64 `json:"softConstraints" yaml:"softConstraints"`
	DifficultyThreshold int                `json:"difficultyThreshold" yaml:"difficultyThreshold" validate:"omitempty,min=0"`
	MaxDailyPerCohort   int                `json:"maxDailyPerCohort" yaml:"maxDailyPerCohort" validate:"omitempty,min=0"`
	Budget              BudgetRequest      `json:"budget" yaml:"budget"`
}

// ProgressView is the published progress snapshot of a run.
type ProgressView struct {
	RunID       string    `json:"runId"`
	Status      string    `json:"status"`
	Phase       string    `json:"phase,omitempty"`
	Percent     float64   `json:"percent"`
	BestPenalty *float64  `json:"bestPenalty,omitempty"`
	Feasible    bool      `json:"feasible"`
	Placed      int       `json:"placed"`
	Total       int       `json:"total"`
	Generation  int       `json:"generation"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ScheduleRunResponse is the detail view of a run.
type ScheduleRunResponse struct {
	ID             string                 `json:"id"`
	Scope          string                 `json:"scope"`
	Strategy       string                 `json:"strategy"`
	Status         string                 `json:"status"`
	Progress       float64                `json:"progress"`
	BestPenalty    *float64               `json:"bestPenalty,omitempty"`
	BaseVersion    int64                  `json:"baseVersion"`
	AppliedVersion *int64                 `json:"appliedVersion,omitempty"`
	Feasible       bool                   `json:"feasible"`
	Penalty        float64                `json:"penalty"`
	Assignments    []scheduler.Assignment `json:"assignments,omitempty"`
	Diagnostics    *scheduler.Diagnostics `json:"diagnostics,omitempty"`
	Error          *string                `json:"error,omitempty"`
	CreatedAt      time.Time              `json:"createdAt"`
	StartedAt      *time.Time             `json:"startedAt,omitempty"`
	FinishedAt     *time.Time             `json:"finishedAt,omitempty"`
}

// ApplyResponse reports the committed version after apply.
type ApplyResponse struct {
	RunID   string `json:"runId"`
	Scope   string `json:"scope"`
	Version int64  `json:"version"`
	Status  string `json:"status"`
}

// RollbackResponse reports the version restored by rollback.
type RollbackResponse struct {
	RunID           string `json:"runId"`
	Scope           string `json:"scope"`
	RestoredVersion int64  `json:"restoredVersion"`
	Status          string `json:"status"`
}
