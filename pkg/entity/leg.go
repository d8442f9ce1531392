// pkg/entity/leg.go
package entity

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/opd-ai/go-mech/pkg/gait"
	"github.com/opd-ai/go-mech/pkg/ik"
	"github.com/opd-ai/go-mech/pkg/physics"
)

// Leg pairs a limb solver with the foot placer that feeds it targets.
type Leg struct {
	Name   string
	Solver *ik.Solver
	Foot   *gait.FootPlacer

	// hip is the root node position in the body frame.
	hip      mgl64.Vec3
	solution ik.Solution
}

// Solution returns the last solved limb pose.
func (l *Leg) Solution() ik.Solution { return l.solution }

// Hip returns the root node position in the body frame.
func (l *Leg) Hip() mgl64.Vec3 { return l.hip }

// update moves the foot, re-anchors the solver at the hip and solves towards
// the foot pose.
func (l *Leg) update(body physics.Pose, dt float64) ik.Solution {
	return l.solve(body, l.Foot.Update(dt))
}

func (l *Leg) solve(body physics.Pose, target physics.Pose) ik.Solution {
	l.Solver.SetRootPosition(body.TransformPoint(l.hip))
	l.Solver.SetBendAxis(l.Foot.BendAxis())
	l.solution = l.Solver.Solve(target)
	return l.solution
}
