package core

import (
	"context"

	"sweepcore/pkg/domain"
)

// ValidateSeries checks a start-value set and series chain against the full
// built-in policy set without touching any store. It returns whether the
// definition is valid along with human-readable error texts, one per problem.
func ValidateSeries(registry Registry, startValues StartValues, series *SeriesNode) (bool, []string) {
	result, err := EvaluateSeries(context.Background(), NewDefaultRulesEngine(&registry), startValues, series)
	if err != nil {
		return false, []string{err.Error()}
	}
	if result.HasBlocking() {
		return false, result.Messages()
	}
	return true, result.Messages()
}

// EvaluateSeries runs an engine over a synthetic single-plan view built from
// the given definition. It is the hook plugins use to validate with custom
// rule sets.
func EvaluateSeries(ctx context.Context, engine *RulesEngine, startValues StartValues, series *SeriesNode) (Result, error) {
	plan := SweepPlan{
		StartValues: startValues.Clone(),
		Series:      series.Clone(),
	}
	view := singlePlanView{plan: plan}
	return engine.Evaluate(ctx, view, []Change{{
		Entity: EntitySweepPlan,
		Action: ActionCreate,
		After:  plan,
	}})
}

// singlePlanView exposes one in-memory plan as a rule view.
type singlePlanView struct {
	plan SweepPlan
}

func (v singlePlanView) ListSweepPlans() []domain.SweepPlan { return []domain.SweepPlan{v.plan} }

func (singlePlanView) ListMeasurementRuns() []domain.MeasurementRun { return nil }

func (v singlePlanView) FindSweepPlan(id string) (domain.SweepPlan, bool) {
	if id == v.plan.ID {
		return v.plan, true
	}
	return domain.SweepPlan{}, false
}

func (singlePlanView) FindMeasurementRun(string) (domain.MeasurementRun, bool) {
	return domain.MeasurementRun{}, false
}
