package core

import (
	"context"
	"fmt"
	"strings"

	"sweepcore/pkg/domain"
)

// NewValueRangeRule returns the rule keeping fixed start values and series
// boundaries inside the variable's declared limits. Step widths are not
// range-checked; they are deltas, not positions.
func NewValueRangeRule(registry *Registry) domain.Rule {
	return valueRangeRule{registry: registry}
}

type valueRangeRule struct {
	registry *Registry
}

func (valueRangeRule) Name() string { return "series_value_range" }

func (r valueRangeRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	check := func(plan SweepPlan, variable MeasurementVariable, field, text string) {
		if strings.TrimSpace(text) == "" {
			return
		}
		value, ok := domain.ParseValue(text, variable.Format)
		if !ok {
			return
		}
		if variable.MinValue != nil && value < *variable.MinValue {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     r.Name(),
				Severity: domain.SeverityBlock,
				Message: fmt.Sprintf("The %s for the %s is less than the minimum value (%s < %s).",
					field, variable.Name, displayNumber(value, variable), displayNumber(*variable.MinValue, variable)),
				Entity:   domain.EntitySweepPlan,
				EntityID: plan.ID,
			})
		}
		if variable.MaxValue != nil && value > *variable.MaxValue {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     r.Name(),
				Severity: domain.SeverityBlock,
				Message: fmt.Sprintf("The %s for the %s is greater than the maximum value (%s > %s).",
					field, variable.Name, displayNumber(value, variable), displayNumber(*variable.MaxValue, variable)),
				Entity:   domain.EntitySweepPlan,
				EntityID: plan.ID,
			})
		}
	}
	for _, plan := range view.ListSweepPlans() {
		for id, text := range plan.StartValues {
			variable, ok := r.registry.ByID(id)
			if !ok {
				continue
			}
			check(plan, variable, fieldFixedStart, text)
		}
		for _, level := range plan.Series.ToOrderedList() {
			variable, ok := r.registry.ByID(level.VariableID)
			if !ok {
				continue
			}
			check(plan, variable, fieldSeriesStart, level.Start)
			check(plan, variable, fieldSeriesEnd, level.End)
		}
	}
	return res, nil
}
