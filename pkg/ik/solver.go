// Package ik solves three-node limbs analytically with the law of cosines.
package ik

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/opd-ai/go-mech/pkg/physics"
)

// ErrInvalidChain is returned when the rest chain cannot be solved.
var ErrInvalidChain = errors.New("invalid limb chain")

const minLength = 1e-6

// Chain is the rest pose of a root, elbow and end node. Bone lengths are
// measured from it once.
type Chain struct {
	Root  physics.Pose
	Elbow physics.Pose
	End   physics.Pose
}

// Config holds the solver options that may also change at runtime.
type Config struct {
	// BendAxis is the reference up of the bend plane. Zero means physics.Up.
	BendAxis mgl64.Vec3
	// AttachOffset is a point in the end node's frame that should land on the
	// target instead of the end node itself.
	AttachOffset mgl64.Vec3
	LockWrist    bool
}

// Solution is the output of one solve.
type Solution struct {
	RootRotation  mgl64.Quat
	ElbowRotation mgl64.Quat
	EndRotation   mgl64.Quat

	// BaseAngle is the triangle angle at the root and ElbowAngle the interior
	// angle at the elbow, both in radians. A straight limb has ElbowAngle pi.
	BaseAngle  float64
	ElbowAngle float64

	ElbowPosition mgl64.Vec3
	EndPosition   mgl64.Vec3

	Reachable bool
}

// Bend returns how far the elbow is folded away from straight, in radians.
func (s Solution) Bend() float64 {
	return math.Pi - s.ElbowAngle
}

// Solver drives a Chain towards target poses. It keeps no per-solve state, so
// identical inputs always give identical output.
type Solver struct {
	upperLength float64
	lowerLength float64
	rootOffset  mgl64.Quat
	elbowOffset mgl64.Quat

	rootPosition mgl64.Vec3
	bendAxis     mgl64.Vec3

	attachOffset mgl64.Vec3
	offsetLength float64
	offsetHeight float64
	lockWrist    bool

	target *physics.Pose
}

// NewSolver measures chain and captures the rest offsets for cfg.BendAxis.
func NewSolver(chain Chain, cfg Config) (*Solver, error) {
	upper := chain.Elbow.Position.Sub(chain.Root.Position)
	lower := chain.End.Position.Sub(chain.Elbow.Position)

	if !physics.IsFinite(upper) || !physics.IsFinite(lower) {
		return nil, fmt.Errorf("%w: node positions must be finite", ErrInvalidChain)
	}
	if upper.Len() < minLength {
		return nil, fmt.Errorf("%w: upper bone length %v is too short", ErrInvalidChain, upper.Len())
	}
	if lower.Len() < minLength {
		return nil, fmt.Errorf("%w: lower bone length %v is too short", ErrInvalidChain, lower.Len())
	}

	axis := cfg.BendAxis
	if axis == (mgl64.Vec3{}) {
		axis = physics.Up
	}
	axis = physics.SafeNormalize(axis)
	if axis.LenSqr() == 0 || !physics.IsFinite(axis) {
		return nil, fmt.Errorf("%w: bend axis %v is unusable", ErrInvalidChain, cfg.BendAxis)
	}

	s := &Solver{
		upperLength:  upper.Len(),
		lowerLength:  lower.Len(),
		rootOffset:   restOffset(upper, axis, chain.Root.Rotation),
		elbowOffset:  restOffset(lower, axis, chain.Elbow.Rotation),
		rootPosition: chain.Root.Position,
		bendAxis:     axis,
		lockWrist:    cfg.LockWrist,
	}
	s.SetAttachOffset(cfg.AttachOffset)
	return s, nil
}

// restOffset maps the bone's look frame onto the node's rest rotation.
func restOffset(bone, axis mgl64.Vec3, rest mgl64.Quat) mgl64.Quat {
	if rest.Len() == 0 {
		rest = mgl64.QuatIdent()
	}
	look := physics.LookRotation(bone, axis)
	return look.Inverse().Mul(rest.Normalize()).Normalize()
}

// UpperLength is the root to elbow distance measured at construction.
func (s *Solver) UpperLength() float64 { return s.upperLength }

// LowerLength is the elbow to end distance measured at construction.
func (s *Solver) LowerLength() float64 { return s.lowerLength }

// Reach is the longest distance the chain can span.
func (s *Solver) Reach() float64 { return s.upperLength + s.lowerLength }

// RootPosition returns where the chain is anchored.
func (s *Solver) RootPosition() mgl64.Vec3 { return s.rootPosition }

// SetRootPosition moves the chain's anchor, typically to follow a parent body.
func (s *Solver) SetRootPosition(p mgl64.Vec3) { s.rootPosition = p }

// BendAxis returns the current bend plane reference.
func (s *Solver) BendAxis() mgl64.Vec3 { return s.bendAxis }

// SetBendAxis changes the bend plane reference. Zero vectors are ignored.
func (s *Solver) SetBendAxis(axis mgl64.Vec3) {
	if n := physics.SafeNormalize(axis); n.LenSqr() > 0 {
		s.bendAxis = n
	}
}

// LockWrist reports whether the end node keeps the elbow's heading.
func (s *Solver) LockWrist() bool { return s.lockWrist }

// SetLockWrist toggles wrist locking.
func (s *Solver) SetLockWrist(locked bool) { s.lockWrist = locked }

// AttachOffset returns the end-local attach point.
func (s *Solver) AttachOffset() mgl64.Vec3 { return s.attachOffset }

// SetAttachOffset sets the end-local point that should be centred on the
// target. Zero removes the offset.
func (s *Solver) SetAttachOffset(offset mgl64.Vec3) {
	s.attachOffset = offset
	s.offsetLength = math.Hypot(offset.X(), offset.Z())
	s.offsetHeight = offset.Y()
}

// Target returns the pose set by SetTarget, or nil.
func (s *Solver) Target() *physics.Pose { return s.target }

// SetTarget stores a target for SolveTarget.
func (s *Solver) SetTarget(target *physics.Pose) { s.target = target }

// SolveTarget solves against the stored target. ok is false when none is set.
func (s *Solver) SolveTarget() (sol Solution, ok bool) {
	if s.target == nil {
		return Solution{}, false
	}
	return s.Solve(*s.target), true
}

// Solve computes joint rotations that bring the end node, or the attach point
// when one is set, onto target. Targets beyond reach, or on top of the root,
// produce the fully extended limb pointing at the target.
func (s *Solver) Solve(target physics.Pose) Solution {
	targetRotation := target.Rotation
	if targetRotation.Len() == 0 {
		targetRotation = mgl64.QuatIdent()
	}
	target.Rotation = targetRotation.Normalize()

	delta := target.Position.Sub(s.rootPosition)
	b := s.lowerLength
	if s.lockWrist {
		delta = delta.Sub(target.Up().Mul(s.offsetHeight))
		b += s.offsetLength
	} else {
		delta = delta.Sub(target.Rotation.Rotate(s.attachOffset))
	}

	pivot := physics.LookRotation(delta, s.bendAxis)

	a := s.upperLength
	c := delta.Len()

	sol := Solution{ElbowAngle: math.Pi}
	if c > minLength && c <= a+b {
		sol.BaseAngle = math.Acos(mgl64.Clamp((c*c+a*a-b*b)/(2*c*a), -1, 1))
		sol.ElbowAngle = math.Acos(mgl64.Clamp((a*a+b*b-c*c)/(2*a*b), -1, 1))
		sol.Reachable = c >= math.Abs(a-b)
	}

	rootFrame := pivot.Mul(physics.AxisAngle(-sol.BaseAngle, physics.Up))
	elbowFrame := pivot.Mul(physics.AxisAngle(math.Pi-sol.ElbowAngle-sol.BaseAngle, physics.Up))

	sol.RootRotation = rootFrame.Mul(s.rootOffset).Normalize()
	sol.ElbowRotation = elbowFrame.Mul(s.elbowOffset).Normalize()

	if s.lockWrist {
		sol.EndRotation = physics.LookRotation(sol.ElbowRotation.Rotate(physics.Forward), target.Up())
	} else {
		sol.EndRotation = target.Rotation
	}

	sol.ElbowPosition = s.rootPosition.Add(rootFrame.Rotate(physics.Forward).Mul(a))
	sol.EndPosition = sol.ElbowPosition.Add(elbowFrame.Rotate(physics.Forward).Mul(s.lowerLength))
	return sol
}

// AttachPosition returns where the attach point ends up for sol.
func (s *Solver) AttachPosition(sol Solution) mgl64.Vec3 {
	return sol.EndPosition.Add(sol.EndRotation.Rotate(s.attachOffset))
}
