package align

import (
	"errors"
	"testing"
)

func TestParseAxes(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		want    AxisMask
		wantErr bool
	}{
		{"empty", nil, 0, false},
		{"single", []string{"x"}, AxisX, false},
		{"mixed_case_and_space", []string{" Forward ", "UP"}, AxisForward | AxisUp, false},
		{"groups", []string{"position", "right"}, AllPosition | AxisRight, false},
		{"all", []string{"all"}, AllAxes, false},
		{"unknown", []string{"x", "sideways"}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAxes(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidConfig) {
					t.Errorf("Expected ErrInvalidConfig, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseAxes() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAxisMask_Names(t *testing.T) {
	mask := AxisY | AxisRight
	names := mask.Names()
	if len(names) != 2 || names[0] != "y" || names[1] != "right" {
		t.Errorf("Names() = %v", names)
	}

	roundTrip, err := ParseAxes(names)
	if err != nil || roundTrip != mask {
		t.Errorf("ParseAxes(Names()) = %v, %v", roundTrip, err)
	}

	if AxisMask(0).String() != "none" {
		t.Errorf("Expected empty mask to print as none, got %s", AxisMask(0))
	}
}

func TestAxisMask_Predicates(t *testing.T) {
	if !AllAxes.HasRotation() || !AllAxes.HasPosition() {
		t.Error("AllAxes should have both groups")
	}
	if AllPosition.HasRotation() {
		t.Error("AllPosition should not report rotation")
	}
	if AxisX.Has(0) {
		t.Error("Has(0) should be false")
	}
	if !(AxisX | AxisY).Has(AxisX) {
		t.Error("Has(AxisX) should be true")
	}
}
