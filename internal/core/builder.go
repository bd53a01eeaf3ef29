package core

import (
	"fmt"
	"math"

	"sweepcore/pkg/domain"
)

// SeriesBuilder assembles a sweep definition interactively: an ordered list
// of series rows, outermost first, where each row selects one catalog
// variable and carries its start, step width and end texts. A row can only
// be filled when every shallower row is filled, and clearing a row clears
// everything nested below it.
//
// The builder never rejects value texts; it collects raw input and leaves
// judging it to ValidateSeries. Structural mistakes (unknown ids, gaps in
// the row sequence, duplicate variables) are contract errors.
type SeriesBuilder struct {
	registry    Registry
	startValues StartValues
	levels      []SeriesLevel
}

// NewSeriesBuilder creates a builder with no series rows and every fixed
// start value seeded from the variable's defaults.
func NewSeriesBuilder(registry Registry) *SeriesBuilder {
	b := &SeriesBuilder{
		registry:    registry,
		startValues: make(StartValues, registry.Len()),
	}
	for i := 0; i < registry.Len(); i++ {
		variable := registry.ByIndex(i)
		b.startValues[variable.UniqueID] = seedStartText(variable)
	}
	return b
}

// Candidates returns the variables selectable at the given row: the catalog
// minus everything already selected in shallower rows. Valid depths run from
// 0 through Depth(), where Depth() is the next row to fill.
func (b *SeriesBuilder) Candidates(depth int) ([]MeasurementVariable, error) {
	if depth < 0 || depth > len(b.levels) {
		return nil, fmt.Errorf("row %d is not selectable yet, rows 0 to %d are", depth, len(b.levels))
	}
	used := make(map[string]bool, depth)
	for _, level := range b.levels[:depth] {
		used[level.VariableID] = true
	}
	var out []MeasurementVariable
	for i := 0; i < b.registry.Len(); i++ {
		if v := b.registry.ByIndex(i); !used[v.UniqueID] {
			out = append(out, v)
		}
	}
	return out, nil
}

// Select assigns a variable to the given row and seeds the row's start, step
// width and end from the variable's defaults. Re-selecting an already filled
// row replaces its variable and clears every deeper row.
func (b *SeriesBuilder) Select(depth int, variableID string) error {
	if depth < 0 || depth > len(b.levels) {
		return fmt.Errorf("row %d is not selectable yet, rows 0 to %d are", depth, len(b.levels))
	}
	variable, ok := b.registry.ByID(variableID)
	if !ok {
		return fmt.Errorf("unknown measurement variable %q", variableID)
	}
	for _, level := range b.levels[:depth] {
		if level.VariableID == variableID {
			return fmt.Errorf("variable %q already appears in the series chain", variableID)
		}
	}
	start, step, end := seedSeriesTexts(variable)
	level := SeriesLevel{VariableID: variableID, Start: start, StepWidth: step, End: end}
	if depth == len(b.levels) {
		b.levels = append(b.levels, level)
		return nil
	}
	b.levels = append(b.levels[:depth], level)
	return nil
}

// Deselect clears the given row and every row nested below it.
func (b *SeriesBuilder) Deselect(depth int) error {
	if depth < 0 || depth >= len(b.levels) {
		return fmt.Errorf("row %d is not filled", depth)
	}
	b.levels = b.levels[:depth]
	return nil
}

// SetValues overwrites the start, step width and end texts of a filled row.
func (b *SeriesBuilder) SetValues(depth int, start, stepWidth, end string) error {
	if depth < 0 || depth >= len(b.levels) {
		return fmt.Errorf("row %d is not filled", depth)
	}
	b.levels[depth].Start = start
	b.levels[depth].StepWidth = stepWidth
	b.levels[depth].End = end
	return nil
}

// SetStartValue overwrites the fixed start value text of a catalog variable.
func (b *SeriesBuilder) SetStartValue(variableID, text string) error {
	if _, ok := b.registry.ByID(variableID); !ok {
		return fmt.Errorf("unknown measurement variable %q", variableID)
	}
	b.startValues[variableID] = text
	return nil
}

// Depth returns the number of filled series rows.
func (b *SeriesBuilder) Depth() int { return len(b.levels) }

// Levels returns a copy of the filled rows, outermost first.
func (b *SeriesBuilder) Levels() []SeriesLevel {
	return append([]SeriesLevel(nil), b.levels...)
}

// StartValues returns a copy of the fixed start value texts.
func (b *SeriesBuilder) StartValues() StartValues {
	return b.startValues.Clone()
}

// Series builds the nested chain from the filled rows. An empty builder
// yields a nil chain.
func (b *SeriesBuilder) Series() (*SeriesNode, error) {
	return domain.ChainFromLevels(b.levels)
}

// Validate runs the built-in policy set over the builder's current state.
func (b *SeriesBuilder) Validate() (bool, []string) {
	series, err := b.Series()
	if err != nil {
		return false, []string{err.Error()}
	}
	return ValidateSeries(b.registry, b.startValues, series)
}

// seedStartText computes the seeded fixed start value of a variable: the
// declared default, else the minimum bound, else zero.
func seedStartText(variable MeasurementVariable) string {
	if variable.FormattedStart != nil {
		return *variable.FormattedStart
	}
	return seedText(seedStart(variable), variable)
}

// seedSeriesTexts computes the seeded start, step width and end of a fresh
// series row. The end defaults to the maximum bound (else 100) and the step
// to a tenth of the start-to-end span, rounded to four significant digits.
func seedSeriesTexts(variable MeasurementVariable) (start, step, end string) {
	startNum := seedStart(variable)
	endNum := 100.0
	switch {
	case variable.DefaultEnd != nil:
		endNum = *variable.DefaultEnd
	case variable.MaxValue != nil:
		endNum = *variable.MaxValue
	}

	start = seedText(startNum, variable)
	if variable.FormattedStart != nil {
		start = *variable.FormattedStart
	}
	end = seedText(endNum, variable)
	if variable.FormattedEnd != nil {
		end = *variable.FormattedEnd
	}

	switch {
	case variable.FormattedStep != nil:
		step = *variable.FormattedStep
	case variable.DefaultStep != nil:
		step = seedText(*variable.DefaultStep, variable)
	default:
		span := math.Abs(endNum - startNum)
		if variable.Format == FormatHex {
			step = seedText(span/10, variable)
		} else {
			step = fmt.Sprintf("%.4g", span/10)
		}
	}
	return start, step, end
}

func seedStart(variable MeasurementVariable) float64 {
	switch {
	case variable.DefaultStart != nil:
		return *variable.DefaultStart
	case variable.MinValue != nil:
		return *variable.MinValue
	default:
		return 0
	}
}

func seedText(v float64, variable MeasurementVariable) string {
	return domain.FormatValue(v, variable.Format)
}
