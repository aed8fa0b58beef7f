package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/samber/lo"

	"github.com/noah-isme/sma-schedule-engine/internal/dto"
	"github.com/noah-isme/sma-schedule-engine/internal/scheduler"
	"github.com/noah-isme/sma-schedule-engine/pkg/config"
	appErrors "github.com/noah-isme/sma-schedule-engine/pkg/errors"
)

// RunDefaults fills strategy and budget gaps in submitted configurations.
type RunDefaults struct {
	Strategy        scheduler.StrategyName
	TimeLimit       time.Duration
	MaxTimeLimit    time.Duration
	PopulationSize  int
	Generations     int
	StagnationLimit int
	HybridCSPShare  float64
}

// RunDefaultsFromConfig derives defaults from engine configuration.
func RunDefaultsFromConfig(cfg config.EngineConfig) RunDefaults {
	strategy, err := scheduler.ParseStrategy(cfg.DefaultStrategy)
	if err != nil {
		strategy = scheduler.StrategyHybrid
	}
	return RunDefaults{
		Strategy:        strategy,
		TimeLimit:       cfg.DefaultTimeLimit,
		MaxTimeLimit:    cfg.MaxTimeLimit,
		PopulationSize:  cfg.DefaultPopulationSize,
		Generations:     cfg.DefaultGenerations,
		StagnationLimit: cfg.DefaultStagnationLimit,
		HybridCSPShare:  float64(cfg.DefaultHybridCSPPercent) / 100,
	}
}

// runPlan is a validated configuration ready to search.
type runPlan struct {
	scope    string
	strategy scheduler.StrategyName
	model    *scheduler.Model
	checker  *scheduler.Checker
	budget   scheduler.Budget
	raw      types.JSONText
}

func invalidConfig(field, reason string) error {
	return appErrors.WithDetails(
		appErrors.Clone(appErrors.ErrInvalidConfig, fmt.Sprintf("%s: %s", field, reason)),
		map[string]string{"field": field, "reason": reason},
	)
}

// buildPlan runs the semantic checks that struct tags cannot express and builds the model.
func buildPlan(req dto.CreateScheduleRunRequest, defaults RunDefaults) (*runPlan, error) {
	strategy := defaults.Strategy
	if strings.TrimSpace(req.Strategy) != "" {
		parsed, err := scheduler.ParseStrategy(req.Strategy)
		if err != nil {
			return nil, invalidConfig("strategy", err.Error())
		}
		strategy = parsed
	}
	if strategy == "" {
		strategy = scheduler.StrategyHybrid
	}

	budget, err := resolveBudget(req.Budget, defaults)
	if err != nil {
		return nil, err
	}

	model, err := scheduler.NewModel(toInput(req))
	if err != nil {
		var vErr *scheduler.ValidationError
		if errors.As(err, &vErr) {
			return nil, invalidConfig(vErr.Field, vErr.Reason)
		}
		return nil, invalidConfig("config", err.Error())
	}

	raw, err := json.Marshal(req)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode run configuration")
	}
	return &runPlan{
		scope:    strings.TrimSpace(req.Scope),
		strategy: strategy,
		model:    model,
		checker:  scheduler.NewChecker(model),
		budget:   budget,
		raw:      types.JSONText(raw),
	}, nil
}

func resolveBudget(req dto.BudgetRequest, defaults RunDefaults) (scheduler.Budget, error) {
	b := scheduler.Budget{
		TimeLimit:       time.Duration(req.TimeLimitMs) * time.Millisecond,
		MaxSteps:        req.MaxSteps,
		Generations:     lo.Ternary(req.Generations > 0, req.Generations, defaults.Generations),
		PopulationSize:  lo.Ternary(req.PopulationSize > 0, req.PopulationSize, defaults.PopulationSize),
		StagnationLimit: lo.Ternary(req.StagnationLimit > 0, req.StagnationLimit, defaults.StagnationLimit),
		MutationRate:    req.MutationRate,
		CrossoverRate:   req.CrossoverRate,
		Seed:            req.Seed,
		HybridCSPShare:  lo.Ternary(req.HybridCSPShare > 0, req.HybridCSPShare, defaults.HybridCSPShare),
	}
	if b.TimeLimit <= 0 && b.MaxSteps <= 0 {
		b.TimeLimit = defaults.TimeLimit
	}
	if err := b.Validate(); err != nil {
		return b, invalidConfig("budget", err.Error())
	}
	if defaults.MaxTimeLimit > 0 && b.TimeLimit > defaults.MaxTimeLimit {
		return b, invalidConfig("budget", fmt.Sprintf("time limit %s exceeds the maximum of %s", b.TimeLimit, defaults.MaxTimeLimit))
	}
	return b, nil
}

func toResources(kind scheduler.ResourceKind, in []dto.ResourceRequest) []scheduler.Resource {
	return lo.Map(in, func(r dto.ResourceRequest, _ int) scheduler.Resource {
		return scheduler.Resource{
			ID:           strings.TrimSpace(r.ID),
			Kind:         kind,
			Capacity:     r.Capacity,
			Availability: r.Availability,
		}
	})
}

// constraintNames normalises names, keeping nil as "all optional constraints".
func constraintNames(names []string) []string {
	if names == nil {
		return nil
	}
	return lo.Uniq(lo.Compact(lo.Map(names, func(n string, _ int) string {
		return strings.ToLower(strings.TrimSpace(n))
	})))
}

func toInput(req dto.CreateScheduleRunRequest) scheduler.Input {
	in := scheduler.Input{
		Grid: scheduler.Grid{
			Days:         req.Grid.Days,
			SlotsPerDay:  req.Grid.SlotsPerDay,
			MorningSlots: req.Grid.MorningSlots,
		},
		Rooms:               toResources(scheduler.KindRoom, req.Rooms),
		Invigilators:        toResources(scheduler.KindInvigilator, req.Invigilators),
		Cohorts:             toResources(scheduler.KindCohort, req.Cohorts),
		Hard:                constraintNames(req.HardConstraints),
		Soft:                lo.MapKeys(req.SoftConstraints, func(_ float64, k string) string { return strings.ToLower(strings.TrimSpace(k)) }),
		DifficultyThreshold: req.DifficultyThreshold,
		MaxDailyPerCohort:   req.MaxDailyPerCohort,
		Tasks: lo.Map(req.Tasks, func(t dto.TaskRequest, _ int) scheduler.Task {
			return scheduler.Task{
				ID:                   strings.TrimSpace(t.ID),
				Subject:              t.Subject,
				Cohorts:              lo.Uniq(t.Cohorts),
				Duration:             t.Duration,
				RequiredCapacity:     t.RequiredCapacity,
				Rooms:                lo.Uniq(t.Rooms),
				Invigilators:         lo.Uniq(t.Invigilators),
				InvigilatorsRequired: t.InvigilatorsRequired,
				Conflicts:            lo.Uniq(t.Conflicts),
				Difficulty:           t.Difficulty,
			}
		}),
	}
	if req.SoftConstraints == nil {
		in.Soft = nil
	}
	if req.Range != nil {
		in.Range = &scheduler.SlotRange{FromDay: req.Range.FromDay, ToDay: req.Range.ToDay}
	}
	return in
}

// decodeRequest restores the submitted configuration of a persisted run.
func decodeRequest(raw types.JSONText) (dto.CreateScheduleRunRequest, error) {
	var req dto.CreateScheduleRunRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return req, fmt.Errorf("decode run configuration: %w", err)
	}
	return req, nil
}
