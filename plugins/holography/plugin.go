// Package holography is the instrument module for off-axis holography
// setups: it contributes the biprism voltage variable and a point-budget
// guard, since hologram reconstruction time grows with every scheduled
// point.
package holography

import (
	"context"
	"fmt"

	"sweepcore/internal/core"
)

// MaxPlanPoints caps the number of measurement points a single sweep plan
// may schedule on a holography setup.
const MaxPlanPoints = 10000

// Plugin implements the holography instrument module.
type Plugin struct{}

// New constructs a holography plugin instance.
func New() Plugin {
	return Plugin{}
}

// Name returns the plugin identifier.
func (Plugin) Name() string { return "holography" }

// Version returns the plugin semantic version.
func (Plugin) Version() string { return "0.1.0" }

// Register wires the biprism variable and the point-budget rule.
func (Plugin) Register(registry *core.PluginRegistry) error {
	biprism := "Biprism Voltage"
	registry.RegisterVariable(core.MeasurementVariable{
		UniqueID: "biprism-voltage",
		Name:     biprism,
		Unit:     "V",
		Format:   core.FormatHex,
		MinValue: float64Ptr(0),
		MaxValue: float64Ptr(0x1000),
	})
	registry.RegisterRule(pointBudgetRule{})
	return nil
}

func float64Ptr(v float64) *float64 { return &v }

type pointBudgetRule struct{}

func (pointBudgetRule) Name() string { return "holography_point_budget" }

// Evaluate flags plans whose expanded schedule exceeds the point budget.
// Plans whose series cannot be expanded yet are skipped; the built-in rules
// report those.
func (pointBudgetRule) Evaluate(_ context.Context, view core.TransactionView, _ []core.Change) (core.Result, error) {
	var result core.Result
	for _, plan := range view.ListSweepPlans() {
		total := 1
		ok := true
		for _, level := range plan.Series.ToOrderedList() {
			count, err := levelPoints(level)
			if err != nil {
				ok = false
				break
			}
			total *= count
		}
		if !ok {
			continue
		}
		if total > MaxPlanPoints {
			result.Violations = append(result.Violations, core.Violation{
				Rule:     "holography_point_budget",
				Severity: core.SeverityBlock,
				Message:  fmt.Sprintf("The plan schedules %d measurement points but the holography setup allows at most %d.", total, MaxPlanPoints),
				Entity:   core.EntitySweepPlan,
				EntityID: plan.ID,
			})
		}
	}
	return result, nil
}

// levelPoints counts the points of one level without catalog access: values
// are tried as decimal first, then as hex for variables like the biprism
// voltage.
func levelPoints(level core.SeriesLevel) (int, error) {
	decimal := core.MeasurementVariable{UniqueID: level.VariableID, Format: core.FormatDecimal}
	if count, err := core.LevelPointCount(level, decimal); err == nil {
		return count, nil
	}
	hex := core.MeasurementVariable{UniqueID: level.VariableID, Format: core.FormatHex}
	return core.LevelPointCount(level, hex)
}
