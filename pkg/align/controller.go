// Package align implements a PD controller that drives a rigid body towards a
// target pose by submitting bounded forces and torques every physics step.
package align

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/opd-ai/go-mech/pkg/event"
	"github.com/opd-ai/go-mech/pkg/physics"
)

// reverseTolerance absorbs rounding when comparing the direct arc with the
// arc through the forbidden cone.
const reverseTolerance = 0.1 * math.Pi / 180

// Controller tracks a target pose with a rigid body. It is stateless apart
// from the target, the mutable gravity resistance and its event bus.
type Controller struct {
	body              physics.Body
	target            *physics.Pose
	config            Config
	gravityResistance float64
	bus               *event.Bus
}

// NewController validates cfg and attaches a controller to body. The body's
// maximum angular speed is set here, once.
func NewController(body physics.Body, cfg Config) (*Controller, error) {
	if body == nil {
		return nil, fmt.Errorf("%w: body is nil", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	body.SetMaxAngularSpeed(cfg.MaxAngularSpeed)

	return &Controller{
		body:              body,
		config:            cfg,
		gravityResistance: cfg.GravityResistance,
		bus:               event.NewEventBus(),
	}, nil
}

// Body returns the controlled body.
func (c *Controller) Body() physics.Body { return c.body }

// Config returns the configuration the controller was built with.
func (c *Controller) Config() Config { return c.config }

// Events returns the bus on which collision transitions are re-published.
func (c *Controller) Events() *event.Bus { return c.bus }

// Target returns the tracked pose, or nil when none is set.
func (c *Controller) Target() *physics.Pose { return c.target }

// SetTarget replaces the tracked pose. Nil leaves the body to pure damping.
func (c *Controller) SetTarget(target *physics.Pose) {
	c.target = target
}

// GravityResistance returns the current fraction of gravity being cancelled.
func (c *Controller) GravityResistance() float64 { return c.gravityResistance }

// SetGravityResistance changes the cancelled gravity fraction, clamped to [0,1].
func (c *Controller) SetGravityResistance(r float64) {
	if math.IsNaN(r) {
		return
	}
	c.gravityResistance = mgl64.Clamp(r, 0, 1)
}

// HandleCollisionEnter is called by the physics engine when the body starts
// touching something.
func (c *Controller) HandleCollisionEnter(col physics.Collision) {
	c.bus.Publish(event.NewCollisionEvent(event.CollisionEnter, c, int(col.Layer), col.Normal, col.Point))
}

// HandleCollisionExit is called by the physics engine when a contact ends.
func (c *Controller) HandleCollisionExit(col physics.Collision) {
	c.bus.Publish(event.NewCollisionEvent(event.CollisionExit, c, int(col.Layer), col.Normal, col.Point))
}

// Step applies position correction followed by rotation correction.
func (c *Controller) Step() {
	c.ApplyPositionCorrection()
	c.ApplyRotationCorrection()
}

// ApplyPositionCorrection adds the PD force for this step and returns it.
// Disabled axes are neither corrected nor damped.
func (c *Controller) ApplyPositionCorrection() mgl64.Vec3 {
	force := c.body.Velocity().Mul(-c.config.PositionDamping)

	var delta mgl64.Vec3
	if c.target != nil {
		delta = c.target.Position.Sub(c.body.Position())
	}

	for i, axis := range []AxisMask{AxisX, AxisY, AxisZ} {
		if !c.config.Axes.Has(axis) {
			delta[i] = 0
			force[i] = 0
		}
	}

	force = force.Add(delta.Mul(c.config.PositionGain))

	if c.body.UsesGravity() {
		force = force.Sub(c.config.Gravity.Mul(c.body.Mass() * c.gravityResistance))
	}

	force = physics.ClampMagnitude(force, c.config.MaxForce)
	c.body.AddForce(force)
	return force
}

// ApplyRotationCorrection adds the PD torque for this step and returns it.
func (c *Controller) ApplyRotationCorrection() mgl64.Vec3 {
	axes := c.config.Axes
	if !axes.HasRotation() {
		return mgl64.Vec3{}
	}

	torque := c.body.AngularVelocity().Mul(-c.config.RotationDamping)

	if c.target != nil {
		torque = torque.Add(c.alignmentTorque())
	}

	torque = physics.ClampMagnitude(torque, c.config.MaxTorque)
	c.body.AddTorque(torque)
	return torque
}

func (c *Controller) alignmentTorque() mgl64.Vec3 {
	axes := c.config.Axes
	gain := c.config.RotationGain
	current := physics.NewPose(c.body.Position(), c.body.Rotation())
	goal := c.target.Rotation

	reverse := false
	if cone := c.config.ForbiddenCone; cone != nil {
		anchor := cone.anchor()
		goal = clampOutsideCone(goal, anchor, cone.HalfAngle)
		reverse = crossesCone(current.Forward(), goal.Rotate(physics.Forward), anchor, cone.HalfAngle)
	}

	var torque mgl64.Vec3
	forward := axes.Has(AxisForward)
	up := axes.Has(AxisUp)
	right := axes.Has(AxisRight)

	// At most one axis takes the long way round.
	if forward {
		torque = torque.Add(AlignVectors(current.Forward(), goal.Rotate(physics.Forward), gain, reverse))
	}
	if up {
		torque = torque.Add(AlignVectors(current.Up(), goal.Rotate(physics.Up), gain, reverse && !forward && !right))
	}
	if right {
		torque = torque.Add(AlignVectors(current.Right(), goal.Rotate(physics.Right), gain, reverse && !forward))
	}
	return torque
}

// AlignVectors returns the torque that turns current towards goal: the
// rotation axis scaled by the angle between them and gain. With reverse set
// the rotation goes the long way, through 2*pi minus the angle about the
// negated axis. Parallel and anti-parallel inputs yield zero.
func AlignVectors(current, goal mgl64.Vec3, gain float64, reverse bool) mgl64.Vec3 {
	axis := physics.SafeNormalize(current.Cross(goal))
	if axis.LenSqr() == 0 {
		return mgl64.Vec3{}
	}
	angle := physics.AngleBetween(current, goal)
	if reverse {
		angle = 2*math.Pi - angle
		axis = axis.Mul(-1)
	}
	return axis.Mul(angle * gain)
}

func (f *ForbiddenCone) anchor() mgl64.Vec3 {
	anchor := physics.SafeNormalize(f.Anchor)
	if f.Frame != nil {
		anchor = f.Frame.Rotation().Rotate(anchor)
	}
	return anchor
}

// clampOutsideCone pushes a goal rotation whose forward axis lies inside the
// cone onto the cone's surface.
func clampOutsideCone(goal mgl64.Quat, anchor mgl64.Vec3, halfAngle float64) mgl64.Quat {
	goalForward := goal.Rotate(physics.Forward)
	if physics.AngleBetween(goalForward, anchor) > halfAngle {
		return goal
	}
	axis := anchor.Cross(goalForward)
	if physics.SafeNormalize(axis).LenSqr() == 0 {
		axis = anchor.Cross(physics.Up)
		if physics.SafeNormalize(axis).LenSqr() == 0 {
			axis = anchor.Cross(physics.Right)
		}
	}
	pushed := physics.AxisAngle(halfAngle, axis).Rotate(anchor)
	return physics.LookRotation(pushed, physics.Up)
}

// crossesCone reports whether the shortest arc from current to goal passes
// through the cone around anchor.
func crossesCone(current, goal, anchor mgl64.Vec3, halfAngle float64) bool {
	direct := physics.AngleBetween(current, goal)

	axis := current.Cross(goal)
	if physics.SafeNormalize(axis).LenSqr() == 0 {
		return false
	}
	right := anchor.Cross(axis)
	inPlane := axis.Cross(anchor.Cross(axis))

	offset := mgl64.Clamp(physics.SignedAngle(anchor, inPlane, right), -halfAngle, halfAngle)
	nearest := physics.AxisAngle(offset, right).Rotate(anchor)

	through := physics.AngleBetween(current, nearest) + physics.AngleBetween(nearest, goal)
	return through-reverseTolerance <= direct
}
