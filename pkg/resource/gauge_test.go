// pkg/resource/gauge_test.go
package resource

import (
	"errors"
	"math"
	"testing"
)

func TestNewGauge(t *testing.T) {
	tests := []struct {
		name      string
		max       float64
		initial   float64
		wantValue float64
		wantErr   bool
	}{
		{"full", 100, 100, 100, false},
		{"clamped_above", 100, 250, 100, false},
		{"clamped_below", 100, -5, 0, false},
		{"zero_capacity", 0, 0, 0, true},
		{"negative_capacity", -1, 0, 0, true},
		{"infinite_capacity", math.Inf(1), 1, 0, true},
		{"nan_initial", 10, math.NaN(), 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewGauge("fuel", tt.max, tt.initial)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidGauge) {
					t.Errorf("Expected ErrInvalidGauge, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if g.Value() != tt.wantValue {
				t.Errorf("Value() = %f, want %f", g.Value(), tt.wantValue)
			}
		})
	}
}

func TestGauge_ConsumeFloorsAtZero(t *testing.T) {
	g, _ := NewGauge("fuel", 10, 3)

	if taken := g.Consume(2); taken != 2 {
		t.Errorf("Consume(2) = %f, want 2", taken)
	}
	if taken := g.Consume(5); taken != 1 {
		t.Errorf("Consume(5) = %f, want 1", taken)
	}
	if g.Value() != 0 || !g.Empty() {
		t.Errorf("Expected empty gauge, got %f", g.Value())
	}
	if taken := g.Consume(1); taken != 0 {
		t.Errorf("Consume on empty gauge = %f, want 0", taken)
	}
	if taken := g.Consume(-4); taken != 0 || g.Value() != 0 {
		t.Errorf("Negative consume should be ignored, took %f leaving %f", taken, g.Value())
	}
}

func TestGauge_DrainsInExactStepCount(t *testing.T) {
	g, _ := NewGauge("fuel", 100, 100)

	steps := 0
	for i := 0; i < 1500; i++ {
		if g.Empty() {
			break
		}
		g.Consume(0.1)
		steps++
	}

	if steps != 1000 {
		t.Errorf("Expected gauge to empty after 1000 steps, took %d", steps)
	}
	if g.Value() != 0 {
		t.Errorf("Expected exactly zero, got %g", g.Value())
	}
}

func TestGauge_AddCapsAtMax(t *testing.T) {
	g, _ := NewGauge("fuel", 10, 8)

	if added := g.Add(5); added != 2 {
		t.Errorf("Add(5) = %f, want 2", added)
	}
	if !g.Full() || g.Value() != 10 {
		t.Errorf("Expected full gauge, got %f", g.Value())
	}
	for i := 0; i < 100; i++ {
		g.Add(1e6)
	}
	if g.Value() != g.Max() {
		t.Errorf("Repeated Add exceeded capacity: %f", g.Value())
	}
	if added := g.Add(math.NaN()); added != 0 {
		t.Errorf("NaN add should be ignored, got %f", added)
	}
}

func TestGauge_DepleteGoesNegative(t *testing.T) {
	g, _ := NewGauge("health", 50, 50)

	g.Deplete(30)
	if v := g.Deplete(40); v != -20 {
		t.Errorf("Deplete() = %f, want -20", v)
	}
	if !g.Empty() {
		t.Error("Overdrawn gauge should report empty")
	}
	if g.Fraction() != -0.4 {
		t.Errorf("Fraction() = %f, want -0.4", g.Fraction())
	}

	g.Reset()
	if !g.Full() {
		t.Error("Reset should refill the gauge")
	}
}

func TestGauge_Stats(t *testing.T) {
	g, _ := NewGauge("fuel", 200, 50)
	stats := g.Stats()
	if stats.Name != "fuel" || stats.Value != 50 || stats.Max != 200 || stats.Fraction != 0.25 {
		t.Errorf("unexpected stats %+v", stats)
	}
}
