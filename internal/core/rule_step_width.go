package core

import (
	"context"
	"fmt"
	"math"
	"strings"

	"sweepcore/pkg/domain"
)

// NewStepWidthRule returns the rule on series step widths: a step must be
// unequal to zero and must not jump past the end value in a single step.
func NewStepWidthRule(registry *Registry) domain.Rule {
	return stepWidthRule{registry: registry}
}

type stepWidthRule struct {
	registry *Registry
}

func (stepWidthRule) Name() string { return "series_step_width" }

func (r stepWidthRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
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
			step, ok := parseField(level.StepWidth, variable)
			if !ok {
				continue
			}
			if step == 0 {
				report(plan, fmt.Sprintf("The series step width for the %s is zero but it has to be unequal to zero.", variable.Name))
				continue
			}
			start, okS := parseField(level.Start, variable)
			end, okE := parseField(level.End, variable)
			if !okS || !okE {
				continue
			}
			span := end - start
			// A step larger than the whole span measures the start point
			// only; the direction rule covers sign mismatches.
			if step > 0 && span > 0 && step > span {
				report(plan, fmt.Sprintf("The series step width for the %s is greater than the difference between the end and the start value (%s > %s), so only the start value in the series is measured because the next step is outside the end already.",
					variable.Name, displayNumber(step, variable), displayNumber(span, variable)))
			}
			if step < 0 && span < 0 && step < span {
				report(plan, fmt.Sprintf("The series step width for the %s is less than the difference between the end and the start value (%s < %s), so only the start value in the series is measured because the next step is outside the end already.",
					variable.Name, displayNumber(step, variable), displayNumber(span, variable)))
			}
		}
	}
	return res, nil
}

// parseField parses a value text under the variable's format, treating empty
// and unparsable text as absent so other rules report those.
func parseField(text string, variable MeasurementVariable) (float64, bool) {
	if strings.TrimSpace(text) == "" {
		return 0, false
	}
	v, ok := domain.ParseValue(text, variable.Format)
	if !ok || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}
