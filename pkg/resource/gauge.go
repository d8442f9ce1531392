// pkg/resource/gauge.go
package resource

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidGauge is returned for gauges without a usable capacity.
var ErrInvalidGauge = errors.New("invalid gauge")

// snapFraction is the share of capacity below which a consumed gauge reads
// as exactly empty, so long runs of small costs land on zero.
const snapFraction = 1e-9

// Gauge is a bounded quantity such as fuel or health. Consume and Add keep it
// within [0, max]; Deplete may drive it below zero for bookkeeping.
type Gauge struct {
	name  string
	value float64
	max   float64
}

// NewGauge creates a gauge holding initial, clamped into [0, max].
func NewGauge(name string, max, initial float64) (*Gauge, error) {
	if !(max > 0) || math.IsInf(max, 0) {
		return nil, fmt.Errorf("%w: %s capacity must be positive and finite, got %v", ErrInvalidGauge, name, max)
	}
	if math.IsNaN(initial) {
		return nil, fmt.Errorf("%w: %s initial value is NaN", ErrInvalidGauge, name)
	}
	return &Gauge{
		name:  name,
		value: math.Min(math.Max(initial, 0), max),
		max:   max,
	}, nil
}

// Name returns the gauge label.
func (g *Gauge) Name() string { return g.name }

// Value returns the current amount.
func (g *Gauge) Value() float64 { return g.value }

// Max returns the capacity.
func (g *Gauge) Max() float64 { return g.max }

// Fraction returns value/max, which is negative after Deplete overdraws.
func (g *Gauge) Fraction() float64 { return g.value / g.max }

// Empty reports whether nothing is left.
func (g *Gauge) Empty() bool { return g.value <= 0 }

// Full reports whether the gauge is at capacity.
func (g *Gauge) Full() bool { return g.value >= g.max }

// Consume removes up to amount, never going below zero, and returns what was
// actually removed.
func (g *Gauge) Consume(amount float64) float64 {
	if !(amount > 0) || g.value <= 0 {
		return 0
	}
	taken := math.Min(amount, g.value)
	g.value -= taken
	if g.value < g.max*snapFraction {
		taken += g.value
		g.value = 0
	}
	return taken
}

// Add refills by up to amount, never exceeding capacity, and returns what was
// actually added.
func (g *Gauge) Add(amount float64) float64 {
	if !(amount > 0) || g.value >= g.max {
		return 0
	}
	before := g.value
	g.value = math.Min(g.value+amount, g.max)
	return g.value - before
}

// Deplete subtracts amount without a floor and returns the new value.
func (g *Gauge) Deplete(amount float64) float64 {
	if amount > 0 && !math.IsInf(amount, 0) {
		g.value -= amount
	}
	return g.value
}

// Reset refills the gauge to capacity.
func (g *Gauge) Reset() {
	g.value = g.max
}

// Stats returns a snapshot for logging.
func (g *Gauge) Stats() GaugeStats {
	return GaugeStats{
		Name:     g.name,
		Value:    g.value,
		Max:      g.max,
		Fraction: g.Fraction(),
	}
}

// GaugeStats contains a point-in-time view of a gauge.
type GaugeStats struct {
	Name     string  `json:"name"`
	Value    float64 `json:"value"`
	Max      float64 `json:"max"`
	Fraction float64 `json:"fraction"`
}
