package core

import (
	"context"
	"fmt"
	"strings"

	"sweepcore/pkg/domain"
)

// NewValueParsableRule returns the rule requiring every non-empty value to
// parse under its variable's declared format. Empty values are left to the
// presence rule, unknown chain variables to the chain rule.
func NewValueParsableRule(registry *Registry) domain.Rule {
	return valueParsableRule{registry: registry}
}

type valueParsableRule struct {
	registry *Registry
}

func (valueParsableRule) Name() string { return "series_value_parsable" }

func (r valueParsableRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	check := func(plan SweepPlan, variable MeasurementVariable, field, text string) {
		if strings.TrimSpace(text) == "" {
			return
		}
		if _, ok := domain.ParseValue(text, variable.Format); !ok {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     r.Name(),
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("The %s for the %s is not parsable.", field, variable.Name),
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
			check(plan, variable, fieldSeriesStep, level.StepWidth)
			check(plan, variable, fieldSeriesEnd, level.End)
		}
	}
	return res, nil
}
