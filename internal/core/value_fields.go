package core

import "sweepcore/pkg/domain"

// Field labels used in validation messages. Fixed values and series fields
// are named differently so a message always tells the user which input to
// correct.
const (
	fieldFixedStart  = "start value"
	fieldSeriesStart = "series start value"
	fieldSeriesStep  = "series step width"
	fieldSeriesEnd   = "series end value"
)

// displayNumber renders a numeric value the way the variable displays it, so
// hex variables report 0x.. figures in diagnostics.
func displayNumber(v float64, variable MeasurementVariable) string {
	return domain.FormatValue(v, variable.Format)
}

// variableDisplayName names a variable in diagnostics. Chain nodes referring
// to unknown ids fall back to the raw id; the chain rule reports those.
func variableDisplayName(registry *Registry, id string) string {
	if v, ok := registry.ByID(id); ok {
		return v.Name
	}
	return id
}
