package core

import (
	"context"
	"fmt"

	"sweepcore/pkg/domain"
)

// NewChainVariablesRule returns the rule guarding series chain integrity:
// every chain node must reference a catalog variable and no variable may
// appear twice along the chain. Both indicate a builder or integration bug
// rather than bad user input, so violations block the transaction.
func NewChainVariablesRule(registry *Registry) domain.Rule {
	return chainVariablesRule{registry: registry}
}

type chainVariablesRule struct {
	registry *Registry
}

func (chainVariablesRule) Name() string { return "series_chain_variables" }

func (r chainVariablesRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, plan := range view.ListSweepPlans() {
		seen := map[string]bool{}
		for _, level := range plan.Series.ToOrderedList() {
			if _, ok := r.registry.ByID(level.VariableID); !ok {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     r.Name(),
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("The series refers to the unknown measurement variable %q.", level.VariableID),
					Entity:   domain.EntitySweepPlan,
					EntityID: plan.ID,
				})
			}
			if seen[level.VariableID] {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     r.Name(),
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("The measurement variable %q appears more than once in the series chain.", level.VariableID),
					Entity:   domain.EntitySweepPlan,
					EntityID: plan.ID,
				})
			}
			seen[level.VariableID] = true
		}
		for id := range plan.StartValues {
			if _, ok := r.registry.ByID(id); !ok {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     r.Name(),
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("The start values refer to the unknown measurement variable %q.", id),
					Entity:   domain.EntitySweepPlan,
					EntityID: plan.ID,
				})
			}
		}
	}
	return res, nil
}
