package domain

import "fmt"

// MeasurementVariable describes one physical quantity the instrument can
// change during a measurement: its identity, display metadata, numeric
// bounds, value format and the defaults used to seed a new series row.
//
// Variables are built once per session when the catalog is loaded and are
// immutable afterwards.
type MeasurementVariable struct {
	UniqueID string   `json:"unique_id"`
	Name     string   `json:"name"`
	Unit     string   `json:"unit,omitempty"`
	MinValue *float64 `json:"min_value,omitempty"`
	MaxValue *float64 `json:"max_value,omitempty"`
	Format   Format   `json:"format,omitempty"`

	// Pre-rendered display strings. When set they override FormatValue
	// output in labels and seeded rows (a hex variable displays 0x.. while
	// bounds are stored and compared as plain numbers).
	FormattedMin   *string `json:"formatted_min,omitempty"`
	FormattedMax   *string `json:"formatted_max,omitempty"`
	FormattedStart *string `json:"formatted_start,omitempty"`
	FormattedStep  *string `json:"formatted_step,omitempty"`
	FormattedEnd   *string `json:"formatted_end,omitempty"`

	DefaultStart *float64 `json:"default_start,omitempty"`
	DefaultStep  *float64 `json:"default_step,omitempty"`
	DefaultEnd   *float64 `json:"default_end,omitempty"`
}

// Label returns the display label: the name plus the unit in brackets when a
// unit is declared.
func (v MeasurementVariable) Label() string {
	if v.Unit == "" {
		return v.Name
	}
	return fmt.Sprintf("%s [%s]", v.Name, v.Unit)
}

// LimitsText renders the declared bounds for display: "[min..max]",
// "[>= min]", "[<= max]" or an empty string when the variable is unbounded.
func (v MeasurementVariable) LimitsText() string {
	min := v.displayBound(v.MinValue, v.FormattedMin)
	max := v.displayBound(v.MaxValue, v.FormattedMax)
	switch {
	case min != "" && max != "":
		return fmt.Sprintf("[%s..%s]", min, max)
	case min != "":
		return fmt.Sprintf("[>= %s]", min)
	case max != "":
		return fmt.Sprintf("[<= %s]", max)
	default:
		return ""
	}
}

func (v MeasurementVariable) displayBound(bound *float64, formatted *string) string {
	if formatted != nil {
		return *formatted
	}
	if bound == nil {
		return ""
	}
	return FormatValue(*bound, v.Format)
}

// Registry is the immutable, ordered catalog of selectable measurement
// variables for one session.
type Registry struct {
	variables []MeasurementVariable
	byID      map[string]int
}

// NewRegistry builds a registry from the supplied catalog, preserving order.
// Every variable needs a unique, non-empty id.
func NewRegistry(variables []MeasurementVariable) (Registry, error) {
	byID := make(map[string]int, len(variables))
	for i, v := range variables {
		if v.UniqueID == "" {
			return Registry{}, fmt.Errorf("variable at index %d has no unique id", i)
		}
		if _, exists := byID[v.UniqueID]; exists {
			return Registry{}, fmt.Errorf("duplicate variable id %q", v.UniqueID)
		}
		byID[v.UniqueID] = i
	}
	return Registry{
		variables: append([]MeasurementVariable(nil), variables...),
		byID:      byID,
	}, nil
}

// ByID looks up a variable by its unique id.
func (r Registry) ByID(id string) (MeasurementVariable, bool) {
	i, ok := r.byID[id]
	if !ok {
		return MeasurementVariable{}, false
	}
	return r.variables[i], true
}

// ByIndex returns the variable at catalog position i. Passing an index
// outside [0, Len()) is a programming error.
func (r Registry) ByIndex(i int) MeasurementVariable {
	return r.variables[i]
}

// Len returns the number of catalog entries.
func (r Registry) Len() int {
	return len(r.variables)
}

// Variables returns a copy of the ordered catalog.
func (r Registry) Variables() []MeasurementVariable {
	return append([]MeasurementVariable(nil), r.variables...)
}
