package core

import (
	"context"
	"fmt"
	"strings"

	"sweepcore/pkg/domain"
)

// NewValuePresenceRule returns the rule requiring every measurement value to
// be filled in: the fixed start value of each variable listed in the plan's
// start values and the start, step width and end of every series level.
// Variables swept by the series take their values from the series levels, so
// their fixed start may stay empty.
func NewValuePresenceRule(registry *Registry) domain.Rule {
	return valuePresenceRule{registry: registry}
}

type valuePresenceRule struct {
	registry *Registry
}

func (valuePresenceRule) Name() string { return "series_value_presence" }

func (r valuePresenceRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	report := func(plan SweepPlan, field, name string) {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     r.Name(),
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf("The %s for the %s is empty but it has to be given.", field, name),
			Entity:   domain.EntitySweepPlan,
			EntityID: plan.ID,
		})
	}
	for _, plan := range view.ListSweepPlans() {
		levels := plan.Series.ToOrderedList()
		swept := make(map[string]bool, len(levels))
		for _, level := range levels {
			swept[level.VariableID] = true
		}
		for i := 0; i < r.registry.Len(); i++ {
			variable := r.registry.ByIndex(i)
			if swept[variable.UniqueID] {
				continue
			}
			text, listed := plan.StartValues[variable.UniqueID]
			if listed && strings.TrimSpace(text) == "" {
				report(plan, fieldFixedStart, variable.Name)
			}
		}
		for _, level := range levels {
			name := variableDisplayName(r.registry, level.VariableID)
			if strings.TrimSpace(level.Start) == "" {
				report(plan, fieldSeriesStart, name)
			}
			if strings.TrimSpace(level.StepWidth) == "" {
				report(plan, fieldSeriesStep, name)
			}
			if strings.TrimSpace(level.End) == "" {
				report(plan, fieldSeriesEnd, name)
			}
		}
	}
	return res, nil
}
