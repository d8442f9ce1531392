// Package gait places a mech's feet under its moving base and turns its hips
// towards the direction of travel. The foot poses are the targets the leg IK
// solvers reach for.
package gait

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/opd-ai/go-mech/pkg/event"
	"github.com/opd-ai/go-mech/pkg/physics"
)

// ErrInvalidConfig is returned for foot placer tunings that cannot step.
var ErrInvalidConfig = errors.New("invalid gait config")

// Frame is the moving base the feet follow.
type Frame interface {
	Position() mgl64.Vec3
	Rotation() mgl64.Quat
}

// MechState is the part of the mech controller the gait reads every frame.
type MechState interface {
	Dead() bool
	Airborne() bool
	Velocity() mgl64.Vec3
}

// Config tunes one foot. Distances are measured on the ground plane.
type Config struct {
	// DefaultOffset is the resting foot position in the base frame. Its Y
	// component is the foot height relative to the base.
	DefaultOffset mgl64.Vec3
	// Threshold is how far the base may drift from the average foot position
	// before a step starts.
	Threshold float64
	// SidestepThreshold replaces Threshold when the mech moves sideways.
	SidestepThreshold float64
	// SidestepAngle is the angle in radians between facing and velocity
	// above which sidesteps are allowed.
	SidestepAngle  float64
	VelocityWeight float64
	// LerpSpeed is the fraction of a step completed per second.
	LerpSpeed  float64
	LiftHeight float64
	// SlideSpeed is the speed above which the feet slide with the base
	// instead of stepping.
	SlideSpeed float64
}

// DefaultConfig returns the tuning of a medium mech leg.
func DefaultConfig() Config {
	return Config{
		Threshold:         0.5,
		SidestepThreshold: 0.25,
		SidestepAngle:     mgl64.DegToRad(60),
		VelocityWeight:    0.5,
		LerpSpeed:         8,
		LiftHeight:        0.2,
		SlideSpeed:        10,
	}
}

// Validate reports every unusable field at once.
func (c Config) Validate() error {
	var problems []string

	if !physics.IsFinite(c.DefaultOffset) {
		problems = append(problems, "default offset must be finite")
	}
	fields := []struct {
		name  string
		value float64
	}{
		{"threshold", c.Threshold},
		{"sidestep threshold", c.SidestepThreshold},
		{"sidestep angle", c.SidestepAngle},
		{"velocity weight", c.VelocityWeight},
		{"lift height", c.LiftHeight},
		{"slide speed", c.SlideSpeed},
	}
	for _, f := range fields {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) || f.value < 0 {
			problems = append(problems, fmt.Sprintf("%s must be finite and >= 0, got %v", f.name, f.value))
		}
	}
	if !(c.LerpSpeed > 0) || math.IsInf(c.LerpSpeed, 0) {
		problems = append(problems, fmt.Sprintf("lerp speed must be positive, got %v", c.LerpSpeed))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, problems)
	}
	return nil
}

// FootPlacer moves one foot. Feet are paired so that only one steps at a time.
type FootPlacer struct {
	name   string
	config Config
	base   Frame
	mech   MechState
	other  *FootPlacer
	bus    *event.Bus

	pose   physics.Pose
	moving bool

	start    mgl64.Vec3
	goal     mgl64.Vec3
	progress float64

	localStart mgl64.Vec3
	localGoal  mgl64.Vec3
	sliding    bool

	prevAirborne bool
}

// NewFootPlacer plants the foot at its default offset under base. Footfalls are
// published on bus when it is not nil.
func NewFootPlacer(name string, base Frame, mech MechState, cfg Config, bus *event.Bus) (*FootPlacer, error) {
	if base == nil || mech == nil {
		return nil, fmt.Errorf("%w: foot %q needs a base and a mech", ErrInvalidConfig, name)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	f := &FootPlacer{
		name:         name,
		config:       cfg,
		base:         base,
		mech:         mech,
		bus:          bus,
		progress:     1,
		prevAirborne: mech.Airborne(),
	}
	rest := f.restPosition()
	f.start = rest
	f.goal = rest
	f.localStart = rest.Sub(base.Position())
	f.localGoal = f.localStart
	rest[1] = base.Position().Y() + cfg.DefaultOffset.Y()
	f.pose = physics.NewPose(rest, base.Rotation())
	return f, nil
}

// Pair links two feet so each waits for the other to finish stepping.
func Pair(a, b *FootPlacer) {
	a.other = b
	b.other = a
}

// Name returns the foot's name as reported in footfall events.
func (f *FootPlacer) Name() string { return f.name }

// Pose returns the current foot target.
func (f *FootPlacer) Pose() physics.Pose { return f.pose }

// Moving reports whether a step is in progress.
func (f *FootPlacer) Moving() bool { return f.moving }

// Sliding reports whether the foot is dragged along with the base.
func (f *FootPlacer) Sliding() bool { return f.sliding }

// Progress returns the completed fraction of the current step.
func (f *FootPlacer) Progress() float64 { return f.progress }

// Goal returns where the current step lands, on the ground plane.
func (f *FootPlacer) Goal() mgl64.Vec3 { return f.goal }

// BendAxis returns the axis the leg should bend around: the base's right.
func (f *FootPlacer) BendAxis() mgl64.Vec3 {
	return f.base.Rotation().Rotate(physics.Right)
}

// Config returns the foot's tuning.
func (f *FootPlacer) Config() Config { return f.config }

// Update advances the foot by dt seconds and returns the new foot pose.
func (f *FootPlacer) Update(dt float64) physics.Pose {
	velocity := f.mech.Velocity()
	slide := f.config.SlideSpeed
	walking := !f.mech.Dead() && !f.mech.Airborne() && velocity.LenSqr() < slide*slide
	basePos := f.base.Position()

	if walking {
		if f.sliding {
			f.start = basePos.Add(f.localStart)
			f.goal = basePos.Add(f.localGoal)
			f.sliding = false
		} else if !f.moving && (f.other == nil || !f.other.moving) {
			f.considerStep(velocity)
		}
	} else if !f.sliding {
		f.startStep(0, mgl64.Vec3{})
		f.localStart = f.start.Sub(basePos)
		f.localGoal = f.goal.Sub(basePos)
		f.sliding = true
	}

	landed := false
	if f.progress < 1 && dt > 0 {
		f.progress += f.config.LerpSpeed * dt
		if f.progress >= 1 {
			f.progress = 1
			f.moving = false
			landed = walking
		}
	}

	var position mgl64.Vec3
	if walking {
		position = lerp(f.start, f.goal, f.progress)
	} else {
		position = basePos.Add(lerp(f.localStart, f.localGoal, f.progress))
	}
	position[1] = basePos.Y() + f.config.DefaultOffset.Y() + f.lift(walking)

	f.pose = physics.NewPose(position, f.base.Rotation())

	airborne := f.mech.Airborne()
	if landed || (f.prevAirborne && !airborne) {
		f.footfall(velocity)
	}
	f.prevAirborne = airborne

	return f.pose
}

// considerStep starts a step when the base has drifted too far from the
// average foot position. Forward steps move the farther foot; sidesteps move
// the closer one.
func (f *FootPlacer) considerStep(velocity mgl64.Vec3) {
	basePos := f.base.Position()
	feetCenter := f.pose.Position
	otherDelta := mgl64.Vec3{}
	if f.other != nil {
		feetCenter = f.pose.Position.Add(f.other.pose.Position).Mul(0.5)
		otherDelta = physics.FlattenY(f.other.pose.Position.Sub(basePos))
	}
	drift := physics.FlattenY(basePos.Sub(feetCenter))
	thisDelta := physics.FlattenY(f.pose.Position.Sub(basePos))
	velocity = physics.FlattenY(velocity)

	stepSize := f.config.Threshold
	trailing := thisDelta.Dot(velocity) < 0

	facing := f.base.Rotation().Rotate(physics.Forward)
	if velocity.LenSqr() > 0.001 && physics.AngleBetween(facing, velocity) > f.config.SidestepAngle {
		side := f.config.SidestepThreshold
		if drift.LenSqr() > side*side && trailing && thisDelta.LenSqr() <= otherDelta.LenSqr() {
			f.startStep(stepSize, velocity)
		}
		stepSize = side
	}

	threshold := f.config.Threshold
	if !f.moving && drift.LenSqr() > threshold*threshold && trailing && thisDelta.LenSqr() >= otherDelta.LenSqr() {
		f.startStep(stepSize, velocity)
	}
}

// startStep aims the foot at its rest position pushed along velocity. Steps
// shorter than stepSize are skipped to avoid stutter.
func (f *FootPlacer) startStep(stepSize float64, velocity mgl64.Vec3) {
	from := physics.FlattenY(f.pose.Position)
	to := f.restPosition().
		Add(physics.SafeNormalize(velocity).Mul(stepSize)).
		Add(velocity.Mul(f.config.VelocityWeight))
	to = physics.FlattenY(to)

	if to.Sub(from).LenSqr() <= stepSize*stepSize {
		return
	}
	f.start = from
	f.goal = to
	f.progress = 0
	f.moving = true
}

// restPosition is the default offset under the base, on the ground plane.
func (f *FootPlacer) restPosition() mgl64.Vec3 {
	return physics.FlattenY(f.base.Position().Add(f.base.Rotation().Rotate(f.config.DefaultOffset)))
}

// lift is the parabolic step height: zero at both ends, LiftHeight midway.
func (f *FootPlacer) lift(walking bool) float64 {
	if !walking {
		return 0
	}
	d := f.progress - 0.5
	return mgl64.Clamp((0.25-d*d)*4*f.config.LiftHeight, 0, f.config.LiftHeight)
}

func (f *FootPlacer) footfall(velocity mgl64.Vec3) {
	if f.bus == nil {
		return
	}
	f.bus.Publish(event.NewFootfallEvent(f, f.name, f.pose.Position, velocity.Len()))
}

func lerp(a, b mgl64.Vec3, t float64) mgl64.Vec3 {
	return a.Add(b.Sub(a).Mul(t))
}
