package core

import (
	"testing"
)

func TestLevelPointCount(t *testing.T) {
	registry := testRegistry(t)
	variable, _ := registry.ByID("x-tilt")

	cases := []struct {
		name  string
		level SeriesLevel
		want  int
	}{
		{"exact fit", SeriesLevel{VariableID: "x-tilt", Start: "0", StepWidth: "5", End: "10"}, 3},
		{"partial last step", SeriesLevel{VariableID: "x-tilt", Start: "0", StepWidth: "4", End: "10"}, 3},
		{"single point", SeriesLevel{VariableID: "x-tilt", Start: "0", StepWidth: "20", End: "10"}, 1},
		{"descending", SeriesLevel{VariableID: "x-tilt", Start: "10", StepWidth: "-5", End: "0"}, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := LevelPointCount(tc.level, variable)
			if err != nil {
				t.Fatalf("count: %v", err)
			}
			if got != tc.want {
				t.Fatalf("count = %d, want %d", got, tc.want)
			}
		})
	}

	if _, err := LevelPointCount(SeriesLevel{VariableID: "x-tilt", Start: "0", StepWidth: "0", End: "10"}, variable); err == nil {
		t.Fatalf("expected error for zero step width")
	}
	if _, err := LevelPointCount(SeriesLevel{VariableID: "x-tilt", Start: "abc", StepWidth: "1", End: "10"}, variable); err == nil {
		t.Fatalf("expected error for unparsable value")
	}
}

func TestTotalStepCount(t *testing.T) {
	registry := testRegistry(t)

	total, err := TotalStepCount(registry, nil)
	if err != nil {
		t.Fatalf("total: %v", err)
	}
	if total != 1 {
		t.Fatalf("plan without series schedules %d points, want 1", total)
	}

	series := seriesOf(t,
		SeriesLevel{VariableID: "x-tilt", Start: "0", StepWidth: "5", End: "10"},
		SeriesLevel{VariableID: "focus", Start: "0x0", StepWidth: "0x80", End: "0x100"},
	)
	total, err = TotalStepCount(registry, series)
	if err != nil {
		t.Fatalf("total: %v", err)
	}
	if total != 9 {
		t.Fatalf("nested series schedules %d points, want 9", total)
	}
}

func TestEnumerateStepsOutermostSlowest(t *testing.T) {
	registry := testRegistry(t)
	series := seriesOf(t,
		SeriesLevel{VariableID: "x-tilt", Start: "0", StepWidth: "5", End: "10"},
		SeriesLevel{VariableID: "focus", Start: "0x0", StepWidth: "0x80", End: "0x100"},
	)

	steps, err := EnumerateSteps(registry, validStartValues(), series)
	if err != nil {
		t.Fatalf("enumerate: %v", err)
	}
	if len(steps) != 9 {
		t.Fatalf("expected 9 steps, got %d", len(steps))
	}

	// Outermost level varies slowest: x-tilt holds for three focus points.
	wantTilt := []float64{0, 0, 0, 5, 5, 5, 10, 10, 10}
	wantFocus := []float64{0, 128, 256, 0, 128, 256, 0, 128, 256}
	for i, step := range steps {
		if step["x-tilt"] != wantTilt[i] {
			t.Fatalf("step %d x-tilt = %v, want %v", i, step["x-tilt"], wantTilt[i])
		}
		if step["focus"] != wantFocus[i] {
			t.Fatalf("step %d focus = %v, want %v", i, step["focus"], wantFocus[i])
		}
	}
}

func TestEnumerateStepsKeepsFixedValues(t *testing.T) {
	registry := testRegistry(t)
	series := seriesOf(t, SeriesLevel{VariableID: "x-tilt", Start: "0", StepWidth: "5", End: "10"})

	steps, err := EnumerateSteps(registry, validStartValues(), series)
	if err != nil {
		t.Fatalf("enumerate: %v", err)
	}
	for i, step := range steps {
		if step["focus"] != 256 {
			t.Fatalf("step %d focus = %v, want the fixed start value 256", i, step["focus"])
		}
	}
}

func TestEnumerateStepsRequiresStartValues(t *testing.T) {
	registry := testRegistry(t)
	if _, err := EnumerateSteps(registry, StartValues{"x-tilt": "0"}, nil); err == nil {
		t.Fatalf("expected error for missing start value")
	}
	if _, err := EnumerateSteps(registry, StartValues{"x-tilt": "abc", "focus": "0x0"}, nil); err == nil {
		t.Fatalf("expected error for unparsable start value")
	}
}
