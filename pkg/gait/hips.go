package gait

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/opd-ai/go-mech/pkg/physics"
)

// DefaultHipsThreshold is the speed below which the hips keep their facing.
const DefaultHipsThreshold = 0.1

// Hips turn the upper body towards the direction of travel.
type Hips struct {
	mech      MechState
	threshold float64
	forward   mgl64.Vec3
	rotation  mgl64.Quat
}

// NewHips starts the hips facing forward. A negative threshold is treated as
// zero.
func NewHips(mech MechState, forward mgl64.Vec3, threshold float64) *Hips {
	if threshold < 0 {
		threshold = 0
	}
	h := &Hips{mech: mech, threshold: threshold}
	h.face(forward)
	return h
}

// Forward returns the direction the hips face.
func (h *Hips) Forward() mgl64.Vec3 { return h.forward }

// Rotation returns the hips' world rotation.
func (h *Hips) Rotation() mgl64.Quat { return h.rotation }

// Update faces the mech's velocity once it is fast enough. Dead mechs keep
// their last facing.
func (h *Hips) Update() mgl64.Quat {
	if h.mech.Dead() {
		return h.rotation
	}
	velocity := h.mech.Velocity()
	if velocity.LenSqr() > h.threshold*h.threshold {
		h.face(velocity)
	}
	return h.rotation
}

func (h *Hips) face(forward mgl64.Vec3) {
	if forward.LenSqr() == 0 {
		forward = physics.Forward
	}
	h.forward = forward
	h.rotation = physics.LookRotation(forward, physics.Up)
}
