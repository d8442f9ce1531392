package align

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/opd-ai/go-mech/pkg/physics"
)

// ErrInvalidConfig is returned for configurations the controller cannot run with.
var ErrInvalidConfig = errors.New("invalid alignment config")

// ForbiddenCone keeps the tracked forward axis out of a cone around Anchor.
// When the shorter rotation would sweep through the cone the controller turns
// the long way instead. Frame, when set, rotates Anchor into world space.
type ForbiddenCone struct {
	Anchor    mgl64.Vec3
	HalfAngle float64
	Frame     physics.Body
}

// Config holds the gains and limits of a Controller. Gains act on radians for
// rotation and metres for position. Zero MaxForce, MaxTorque or
// MaxAngularSpeed means unlimited.
type Config struct {
	Axes AxisMask

	PositionGain    float64
	PositionDamping float64
	MaxForce        float64

	RotationGain    float64
	RotationDamping float64
	MaxTorque       float64
	MaxAngularSpeed float64

	GravityResistance float64
	Gravity           mgl64.Vec3

	ForbiddenCone *ForbiddenCone
}

// DefaultConfig returns a stiff controller tracking every axis.
func DefaultConfig() Config {
	return Config{
		Axes:              AllAxes,
		PositionGain:      1000,
		PositionDamping:   50,
		RotationGain:      60,
		RotationDamping:   5,
		MaxAngularSpeed:   7,
		GravityResistance: 0,
		Gravity:           physics.DefaultGravity,
	}
}

// Validate checks every field and reports all problems at once.
func (c Config) Validate() error {
	var problems []string

	for _, field := range []struct {
		name  string
		value float64
	}{
		{"position gain", c.PositionGain},
		{"position damping", c.PositionDamping},
		{"max force", c.MaxForce},
		{"rotation gain", c.RotationGain},
		{"rotation damping", c.RotationDamping},
		{"max torque", c.MaxTorque},
		{"max angular speed", c.MaxAngularSpeed},
	} {
		if math.IsNaN(field.value) || math.IsInf(field.value, 0) || field.value < 0 {
			problems = append(problems, fmt.Sprintf("%s must be finite and >= 0, got %v", field.name, field.value))
		}
	}

	if !(c.GravityResistance >= 0 && c.GravityResistance <= 1) {
		problems = append(problems, fmt.Sprintf("gravity resistance must be within [0,1], got %v", c.GravityResistance))
	}
	if !physics.IsFinite(c.Gravity) {
		problems = append(problems, "gravity must be finite")
	}
	if c.Axes&^AllAxes != 0 {
		problems = append(problems, fmt.Sprintf("unknown axis bits %#x", uint8(c.Axes&^AllAxes)))
	}

	if cone := c.ForbiddenCone; cone != nil {
		if physics.SafeNormalize(cone.Anchor).LenSqr() == 0 {
			problems = append(problems, "forbidden cone anchor must be non-zero")
		}
		if !(cone.HalfAngle > 0 && cone.HalfAngle < math.Pi) {
			problems = append(problems, fmt.Sprintf("forbidden cone half angle must be within (0,pi), got %v", cone.HalfAngle))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
