package mech

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/opd-ai/go-mech/pkg/physics"
)

// ErrInvalidConfig is returned for mech tunings the controller cannot run with.
var ErrInvalidConfig = errors.New("invalid mech config")

// TurnMode selects how turn intent becomes rotation.
type TurnMode int

const (
	// TurnModeTorque applies a capped yaw torque directly to the body.
	TurnModeTorque TurnMode = iota
	// TurnModeHeading rotates a heading pose that the base alignment
	// controller tracks.
	TurnModeHeading
)

func (m TurnMode) String() string {
	switch m {
	case TurnModeTorque:
		return "torque"
	case TurnModeHeading:
		return "heading"
	default:
		return fmt.Sprintf("TurnMode(%d)", int(m))
	}
}

// ParseTurnMode converts "torque" or "heading" into a TurnMode.
func ParseTurnMode(s string) (TurnMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "torque":
		return TurnModeTorque, nil
	case "heading":
		return TurnModeHeading, nil
	default:
		return 0, fmt.Errorf("%w: unknown turn mode %q", ErrInvalidConfig, s)
	}
}

// Config tunes a Controller. Forces are in newtons, torques in newton metres,
// angles in radians and speeds per second. Local vectors use the body frame.
type Config struct {
	MaxHealth float64

	MoveForce           float64
	MaxMove             float64
	MoveDamping         float64
	AirborneMoveDamping float64

	TurnMode            TurnMode
	TurnTorque          float64
	MaxTurnSpeed        float64
	TurnDamping         float64
	TurnSpeed           float64
	MaxTurn             float64
	AirborneTurnDamping float64

	JumpForce mgl64.Vec3

	BoostForce mgl64.Vec3
	MaxFuel    float64
	BoostCost  float64

	// GravityResistance is the resting share of gravity the base controller
	// cancels while grounded.
	GravityResistance float64
	GroundLayer       physics.Layer
}

// DefaultConfig returns the tuning of a medium mech of roughly one tonne.
func DefaultConfig() Config {
	return Config{
		MaxHealth: 100,

		MoveForce:           4000,
		MaxMove:             3,
		MoveDamping:         1000,
		AirborneMoveDamping: 0.5,

		TurnMode:            TurnModeTorque,
		TurnTorque:          6000,
		MaxTurnSpeed:        math.Pi / 2,
		TurnDamping:         4000,
		TurnSpeed:           math.Pi / 2,
		MaxTurn:             math.Pi / 2,
		AirborneTurnDamping: 0.5,

		JumpForce: mgl64.Vec3{0, 250000, 0},

		BoostForce: mgl64.Vec3{0, 4000, 6000},
		MaxFuel:    100,
		BoostCost:  0.1,

		GravityResistance: 0.8,
		GroundLayer:       physics.LayerGround,
	}
}

// Validate checks every field and reports all problems at once.
func (c Config) Validate() error {
	var problems []string

	positive := []struct {
		name  string
		value float64
	}{
		{"max health", c.MaxHealth},
		{"max fuel", c.MaxFuel},
	}
	for _, f := range positive {
		if !(f.value > 0) || math.IsInf(f.value, 0) {
			problems = append(problems, fmt.Sprintf("%s must be positive and finite, got %v", f.name, f.value))
		}
	}

	nonNegative := []struct {
		name  string
		value float64
	}{
		{"move force", c.MoveForce},
		{"max move", c.MaxMove},
		{"move damping", c.MoveDamping},
		{"turn torque", c.TurnTorque},
		{"max turn speed", c.MaxTurnSpeed},
		{"turn damping", c.TurnDamping},
		{"turn speed", c.TurnSpeed},
		{"max turn", c.MaxTurn},
		{"boost cost", c.BoostCost},
	}
	for _, f := range nonNegative {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) || f.value < 0 {
			problems = append(problems, fmt.Sprintf("%s must be finite and >= 0, got %v", f.name, f.value))
		}
	}

	fractions := []struct {
		name  string
		value float64
	}{
		{"airborne move damping", c.AirborneMoveDamping},
		{"airborne turn damping", c.AirborneTurnDamping},
		{"gravity resistance", c.GravityResistance},
	}
	for _, f := range fractions {
		if !(f.value >= 0 && f.value <= 1) {
			problems = append(problems, fmt.Sprintf("%s must be within [0,1], got %v", f.name, f.value))
		}
	}

	if c.TurnMode != TurnModeTorque && c.TurnMode != TurnModeHeading {
		problems = append(problems, fmt.Sprintf("unknown turn mode %d", int(c.TurnMode)))
	}
	if !physics.IsFinite(c.JumpForce) {
		problems = append(problems, "jump force must be finite")
	}
	if !physics.IsFinite(c.BoostForce) {
		problems = append(problems, "boost force must be finite")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
