package core

import (
	"strings"
	"testing"

	"sweepcore/pkg/domain"
)

func testRegistry(t *testing.T) Registry {
	t.Helper()
	min, max := -10.0, 10.0
	hexMin, hexMax := 0.0, 4096.0
	registry, err := domain.NewRegistry([]MeasurementVariable{
		{UniqueID: "x-tilt", Name: "X Tilt", Unit: "deg", MinValue: &min, MaxValue: &max},
		{UniqueID: "focus", Name: "Focus", Unit: "hex", Format: FormatHex, MinValue: &hexMin, MaxValue: &hexMax},
	})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return registry
}

func validStartValues() StartValues {
	return StartValues{"x-tilt": "0", "focus": "0x100"}
}

func seriesOf(t *testing.T, levels ...SeriesLevel) *SeriesNode {
	t.Helper()
	chain, err := domain.ChainFromLevels(levels)
	if err != nil {
		t.Fatalf("build series: %v", err)
	}
	return chain
}

func TestValidateSeriesAcceptsValidPlan(t *testing.T) {
	registry := testRegistry(t)
	series := seriesOf(t, SeriesLevel{VariableID: "x-tilt", Start: "0", StepWidth: "2", End: "10"})

	ok, messages := ValidateSeries(registry, validStartValues(), series)
	if !ok {
		t.Fatalf("expected valid plan, got: %v", messages)
	}
	if len(messages) != 0 {
		t.Fatalf("expected no messages, got: %v", messages)
	}
}

func TestValidateSeriesWithoutSeries(t *testing.T) {
	registry := testRegistry(t)
	ok, messages := ValidateSeries(registry, validStartValues(), nil)
	if !ok {
		t.Fatalf("plan with only start values should be valid, got: %v", messages)
	}
}

func TestValidateSeriesMessages(t *testing.T) {
	registry := testRegistry(t)

	cases := []struct {
		name   string
		values StartValues
		series *SeriesNode
		want   string
	}{
		{
			name:   "empty start value",
			values: StartValues{"x-tilt": "0", "focus": ""},
			want:   "The start value for the Focus is empty but it has to be given.",
		},
		{
			name: "unparsable start value",
			values: StartValues{
				"x-tilt": "abc",
				"focus":  "0x100",
			},
			want: "The start value for the X Tilt is not parsable.",
		},
		{
			name: "start value below minimum",
			values: StartValues{
				"x-tilt": "-20",
				"focus":  "0x100",
			},
			want: "The start value for the X Tilt is less than the minimum value (-20 < -10).",
		},
		{
			name:   "hex start value above maximum",
			values: StartValues{"x-tilt": "0", "focus": "0x2000"},
			want:   "The start value for the Focus is greater than the maximum value (0x2000 > 0x1000).",
		},
		{
			name:   "empty series end",
			values: validStartValues(),
			series: seriesOf(t, SeriesLevel{VariableID: "x-tilt", Start: "0", StepWidth: "2", End: ""}),
			want:   "The series end value for the X Tilt is empty but it has to be given.",
		},
		{
			name:   "zero step width",
			values: validStartValues(),
			series: seriesOf(t, SeriesLevel{VariableID: "x-tilt", Start: "0", StepWidth: "0", End: "10"}),
			want:   "The series step width for the X Tilt is zero but it has to be unequal to zero.",
		},
		{
			name:   "step width larger than span",
			values: validStartValues(),
			series: seriesOf(t, SeriesLevel{VariableID: "x-tilt", Start: "0", StepWidth: "20", End: "10"}),
			want:   "The series step width for the X Tilt is greater than the difference between the end and the start value (20 > 10), so only the start value in the series is measured because the next step is outside the end already.",
		},
		{
			name:   "positive step with descending bounds",
			values: validStartValues(),
			series: seriesOf(t, SeriesLevel{VariableID: "x-tilt", Start: "10", StepWidth: "2", End: "0"}),
			want:   "The series start value for the X Tilt is greater or equal to the end value (10 >= 0) but it has to be less than the end value when the step width is positive.",
		},
		{
			name:   "negative step with ascending bounds",
			values: validStartValues(),
			series: seriesOf(t, SeriesLevel{VariableID: "x-tilt", Start: "0", StepWidth: "-2", End: "10"}),
			want:   "The series start value for the X Tilt is less or equal to the end value (0 <= 10) but it has to be greater than the end value when the step width is negative.",
		},
		{
			name:   "unknown chain variable",
			values: validStartValues(),
			series: seriesOf(t, SeriesLevel{VariableID: "ghost", Start: "0", StepWidth: "1", End: "5"}),
			want:   `The series refers to the unknown measurement variable "ghost".`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, messages := ValidateSeries(registry, tc.values, tc.series)
			if ok {
				t.Fatalf("expected invalid plan")
			}
			found := false
			for _, msg := range messages {
				if msg == tc.want {
					found = true
					break
				}
			}
			if !found {
				t.Fatalf("missing message %q in %v", tc.want, messages)
			}
		})
	}
}

func TestValidateSeriesSweptVariableNeedsNoFixedStart(t *testing.T) {
	min, max := 0.0, 100.0
	tiltMin, tiltMax := -15.0, 15.0
	registry, err := domain.NewRegistry([]MeasurementVariable{
		{UniqueID: "focus", Name: "Focus", MinValue: &min, MaxValue: &max},
		{UniqueID: "x-tilt", Name: "X Tilt", Unit: "deg", MinValue: &tiltMin, MaxValue: &tiltMax},
	})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	series := seriesOf(t, SeriesLevel{VariableID: "x-tilt", Start: "-10", StepWidth: "5", End: "10"})

	// The swept variable takes its values from the series, so it needs no
	// entry in the start values.
	ok, messages := ValidateSeries(registry, StartValues{"focus": "50"}, series)
	if !ok {
		t.Fatalf("swept variable without a fixed start should be valid, got: %v", messages)
	}
	if len(messages) != 0 {
		t.Fatalf("expected no messages, got: %v", messages)
	}
}

func TestValidateSeriesDescendingSweep(t *testing.T) {
	registry := testRegistry(t)
	series := seriesOf(t, SeriesLevel{VariableID: "x-tilt", Start: "10", StepWidth: "-2", End: "0"})

	ok, messages := ValidateSeries(registry, validStartValues(), series)
	if !ok {
		t.Fatalf("descending sweep with negative step should be valid, got: %v", messages)
	}
}

func TestValidateSeriesSkipsDependentChecksOnUnparsable(t *testing.T) {
	registry := testRegistry(t)
	series := seriesOf(t, SeriesLevel{VariableID: "x-tilt", Start: "abc", StepWidth: "2", End: "10"})

	ok, messages := ValidateSeries(registry, validStartValues(), series)
	if ok {
		t.Fatalf("expected invalid plan")
	}
	for _, msg := range messages {
		if strings.Contains(msg, "minimum value") || strings.Contains(msg, "greater or equal") {
			t.Fatalf("dependent rule fired on unparsable value: %q", msg)
		}
	}
}

func TestNestedSeriesValidation(t *testing.T) {
	registry := testRegistry(t)
	series := seriesOf(t,
		SeriesLevel{VariableID: "x-tilt", Start: "0", StepWidth: "2", End: "10"},
		SeriesLevel{VariableID: "focus", Start: "0x0", StepWidth: "0x10", End: "0x100"},
	)

	ok, messages := ValidateSeries(registry, validStartValues(), series)
	if !ok {
		t.Fatalf("nested series should be valid, got: %v", messages)
	}
}
