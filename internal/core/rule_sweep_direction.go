package core

import (
	"context"
	"fmt"

	"sweepcore/pkg/domain"
)

// NewSweepDirectionRule returns the rule matching the sign of a series step
// width to the direction from start to end: positive steps sweep upwards,
// negative steps downwards.
func NewSweepDirectionRule(registry *Registry) domain.Rule {
	return sweepDirectionRule{registry: registry}
}

type sweepDirectionRule struct {
	registry *Registry
}

func (sweepDirectionRule) Name() string { return "series_sweep_direction" }

func (r sweepDirectionRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	report := func(plan SweepPlan, msg string) {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     r.Name(),
			Severity: domain.SeverityBlock,
			Message:  msg,
			Entity:   domain.EntitySweepPlan,
			EntityID: plan.ID,
		})
	}
	for _, plan := range view.ListSweepPlans() {
		for _, level := range plan.Series.ToOrderedList() {
			variable, ok := r.registry.ByID(level.VariableID)
			if !ok {
				continue
			}
			step, okW := parseField(level.StepWidth, variable)
			start, okS := parseField(level.Start, variable)
			end, okE := parseField(level.End, variable)
			if !okW || !okS || !okE || step == 0 {
				continue
			}
			if step > 0 && start >= end {
				report(plan, fmt.Sprintf("The series start value for the %s is greater or equal to the end value (%s >= %s) but it has to be less than the end value when the step width is positive.",
					variable.Name, displayNumber(start, variable), displayNumber(end, variable)))
			}
			if step < 0 && start <= end {
				report(plan, fmt.Sprintf("The series start value for the %s is less or equal to the end value (%s <= %s) but it has to be greater than the end value when the step width is negative.",
					variable.Name, displayNumber(start, variable), displayNumber(end, variable)))
			}
		}
	}
	return res, nil
}
