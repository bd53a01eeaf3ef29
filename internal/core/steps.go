package core

import (
	"fmt"
	"math"

	"sweepcore/pkg/domain"
)

// MeasurementStep is the value of every catalog variable at one scheduled
// measurement point.
type MeasurementStep map[string]float64

// LevelPointCount returns the number of points a single series level visits:
// one point at the start plus one per full step that stays inside the span.
func LevelPointCount(level SeriesLevel, variable MeasurementVariable) (int, error) {
	start, okS := domain.ParseValue(level.Start, variable.Format)
	step, okW := domain.ParseValue(level.StepWidth, variable.Format)
	end, okE := domain.ParseValue(level.End, variable.Format)
	if !okS || !okW || !okE {
		return 0, fmt.Errorf("series level for %q has unparsable values", level.VariableID)
	}
	if step == 0 {
		return 0, fmt.Errorf("series level for %q has a zero step width", level.VariableID)
	}
	return int(math.Floor(math.Abs(end-start)/math.Abs(step))) + 1, nil
}

// TotalStepCount returns the number of measurement points a plan schedules:
// the product of the point counts of all series levels, or one for a plan
// without a series.
func TotalStepCount(registry Registry, series *SeriesNode) (int, error) {
	total := 1
	for _, level := range series.ToOrderedList() {
		variable, ok := registry.ByID(level.VariableID)
		if !ok {
			return 0, fmt.Errorf("series refers to unknown measurement variable %q", level.VariableID)
		}
		n, err := LevelPointCount(level, variable)
		if err != nil {
			return 0, err
		}
		total *= n
	}
	return total, nil
}

// EnumerateSteps expands a plan into its flat measurement schedule. Every
// step carries a value for every catalog variable: swept variables take
// their current series value, all others keep their fixed start value. The
// outermost series level varies slowest.
//
// Callers should validate the plan first; EnumerateSteps only rejects input
// it cannot expand at all.
func EnumerateSteps(registry Registry, startValues StartValues, series *SeriesNode) ([]MeasurementStep, error) {
	base := make(MeasurementStep, registry.Len())
	for i := 0; i < registry.Len(); i++ {
		variable := registry.ByIndex(i)
		text, ok := startValues[variable.UniqueID]
		if !ok {
			return nil, fmt.Errorf("no start value for measurement variable %q", variable.UniqueID)
		}
		value, ok := domain.ParseValue(text, variable.Format)
		if !ok {
			return nil, fmt.Errorf("start value for measurement variable %q is not parsable", variable.UniqueID)
		}
		base[variable.UniqueID] = value
	}

	levels := series.ToOrderedList()
	type expanded struct {
		id    string
		start float64
		step  float64
		count int
	}
	plan := make([]expanded, len(levels))
	for i, level := range levels {
		variable, ok := registry.ByID(level.VariableID)
		if !ok {
			return nil, fmt.Errorf("series refers to unknown measurement variable %q", level.VariableID)
		}
		count, err := LevelPointCount(level, variable)
		if err != nil {
			return nil, err
		}
		start, _ := domain.ParseValue(level.Start, variable.Format)
		step, _ := domain.ParseValue(level.StepWidth, variable.Format)
		plan[i] = expanded{id: level.VariableID, start: start, step: step, count: count}
	}

	var out []MeasurementStep
	var walk func(depth int, current MeasurementStep)
	walk = func(depth int, current MeasurementStep) {
		if depth == len(plan) {
			step := make(MeasurementStep, len(current))
			for k, v := range current {
				step[k] = v
			}
			out = append(out, step)
			return
		}
		level := plan[depth]
		for i := 0; i < level.count; i++ {
			current[level.id] = level.start + float64(i)*level.step
			walk(depth+1, current)
		}
	}
	walk(0, base)
	return out, nil
}
