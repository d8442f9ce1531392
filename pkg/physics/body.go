package physics

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// ErrInvalidBody is returned when a body is created with unusable mass data.
var ErrInvalidBody = errors.New("invalid rigid body")

// Body is the engine-owned rigid body the controllers borrow. Controllers read
// its state and submit forces and torques; the engine integrates and clears
// the accumulators every step.
type Body interface {
	Position() mgl64.Vec3
	Rotation() mgl64.Quat
	Velocity() mgl64.Vec3
	AngularVelocity() mgl64.Vec3
	Mass() float64
	// Inertia is the scalar moment of inertia used for all principal axes.
	Inertia() float64
	UsesGravity() bool
	AddForce(force mgl64.Vec3)
	AddTorque(torque mgl64.Vec3)
	SetMaxAngularSpeed(radPerSec float64)
}

// RigidBody is a minimal reference Body with semi-implicit Euler integration.
// It exists so the controllers can run without an external physics engine.
type RigidBody struct {
	position        mgl64.Vec3
	rotation        mgl64.Quat
	velocity        mgl64.Vec3
	angularVelocity mgl64.Vec3

	mass            float64
	inertia         float64
	useGravity      bool
	maxAngularSpeed float64

	accumulatedForce  mgl64.Vec3
	accumulatedTorque mgl64.Vec3
}

// NewRigidBody creates a gravity-affected body at pose. Mass and inertia must
// be positive.
func NewRigidBody(mass, inertia float64, pose Pose) (*RigidBody, error) {
	if !(mass > 0) || math.IsInf(mass, 0) {
		return nil, fmt.Errorf("%w: mass must be positive and finite, got %v", ErrInvalidBody, mass)
	}
	if !(inertia > 0) || math.IsInf(inertia, 0) {
		return nil, fmt.Errorf("%w: inertia must be positive and finite, got %v", ErrInvalidBody, inertia)
	}
	rotation := pose.Rotation
	if rotation.Len() == 0 {
		rotation = mgl64.QuatIdent()
	}
	return &RigidBody{
		position:   pose.Position,
		rotation:   rotation.Normalize(),
		mass:       mass,
		inertia:    inertia,
		useGravity: true,
	}, nil
}

func (rb *RigidBody) Position() mgl64.Vec3        { return rb.position }
func (rb *RigidBody) Rotation() mgl64.Quat        { return rb.rotation }
func (rb *RigidBody) Velocity() mgl64.Vec3        { return rb.velocity }
func (rb *RigidBody) AngularVelocity() mgl64.Vec3 { return rb.angularVelocity }
func (rb *RigidBody) Mass() float64               { return rb.mass }
func (rb *RigidBody) Inertia() float64            { return rb.inertia }
func (rb *RigidBody) UsesGravity() bool           { return rb.useGravity }

// Pose returns the body's current position and rotation.
func (rb *RigidBody) Pose() Pose {
	return Pose{Position: rb.position, Rotation: rb.rotation}
}

// AddForce accumulates a force for the current step.
func (rb *RigidBody) AddForce(force mgl64.Vec3) {
	rb.accumulatedForce = rb.accumulatedForce.Add(force)
}

// AddTorque accumulates a torque for the current step.
func (rb *RigidBody) AddTorque(torque mgl64.Vec3) {
	rb.accumulatedTorque = rb.accumulatedTorque.Add(torque)
}

// SetMaxAngularSpeed caps the angular speed after integration. Zero disables the cap.
func (rb *RigidBody) SetMaxAngularSpeed(radPerSec float64) {
	rb.maxAngularSpeed = radPerSec
}

// MaxAngularSpeed returns the configured angular speed cap.
func (rb *RigidBody) MaxAngularSpeed() float64 {
	return rb.maxAngularSpeed
}

// SetUseGravity toggles whether gravity acts on the body.
func (rb *RigidBody) SetUseGravity(enabled bool) {
	rb.useGravity = enabled
}

// SetPosition teleports the body.
func (rb *RigidBody) SetPosition(position mgl64.Vec3) {
	rb.position = position
}

// SetRotation replaces the body's orientation.
func (rb *RigidBody) SetRotation(rotation mgl64.Quat) {
	rb.rotation = rotation.Normalize()
}

// SetVelocity replaces the linear velocity.
func (rb *RigidBody) SetVelocity(velocity mgl64.Vec3) {
	rb.velocity = velocity
}

// SetAngularVelocity replaces the angular velocity.
func (rb *RigidBody) SetAngularVelocity(angularVelocity mgl64.Vec3) {
	rb.angularVelocity = angularVelocity
}

// AccumulatedForce returns the force submitted since the last integration.
func (rb *RigidBody) AccumulatedForce() mgl64.Vec3 {
	return rb.accumulatedForce
}

// AccumulatedTorque returns the torque submitted since the last integration.
func (rb *RigidBody) AccumulatedTorque() mgl64.Vec3 {
	return rb.accumulatedTorque
}

// ClearForces resets both accumulators.
func (rb *RigidBody) ClearForces() {
	rb.accumulatedForce = mgl64.Vec3{}
	rb.accumulatedTorque = mgl64.Vec3{}
}

// Integrate advances the body by dt seconds and clears the accumulators.
func (rb *RigidBody) Integrate(dt float64, gravity mgl64.Vec3) {
	if dt <= 0 {
		return
	}

	// Linear
	acceleration := rb.accumulatedForce.Mul(1 / rb.mass)
	if rb.useGravity {
		acceleration = acceleration.Add(gravity)
	}
	rb.velocity = rb.velocity.Add(acceleration.Mul(dt))
	rb.position = rb.position.Add(rb.velocity.Mul(dt))

	// Angular
	angularAcceleration := rb.accumulatedTorque.Mul(1 / rb.inertia)
	rb.angularVelocity = rb.angularVelocity.Add(angularAcceleration.Mul(dt))
	rb.angularVelocity = ClampMagnitude(rb.angularVelocity, rb.maxAngularSpeed)

	omega := mgl64.Quat{W: 0, V: rb.angularVelocity}
	qDot := omega.Mul(rb.rotation).Scale(0.5)
	rb.rotation = rb.rotation.Add(qDot.Scale(dt)).Normalize()

	rb.ClearForces()
}
