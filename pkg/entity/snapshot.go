// pkg/entity/snapshot.go
package entity

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/opd-ai/go-mech/pkg/physics"
)

// LegState is the observable state of one leg.
type LegState struct {
	Name      string     `json:"name"`
	Foot      mgl64.Vec3 `json:"foot"`
	Stepping  bool       `json:"stepping"`
	Sliding   bool       `json:"sliding"`
	Elbow     mgl64.Vec3 `json:"elbow"`
	End       mgl64.Vec3 `json:"end"`
	BendDeg   float64    `json:"bendDeg"`
	Reachable bool       `json:"reachable"`
}

// RigState is a point-in-time copy of a rig for logs and tests. Yaw angles are
// measured about up from +Z; positive yaw turns towards +X.
type RigState struct {
	ID         ID         `json:"id"`
	Name       string     `json:"name"`
	Position   mgl64.Vec3 `json:"position"`
	Velocity   mgl64.Vec3 `json:"velocity"`
	YawDeg     float64    `json:"yawDeg"`
	HipsYawDeg float64    `json:"hipsYawDeg"`
	Airborne   bool       `json:"airborne"`
	Boosting   bool       `json:"boosting"`
	Dead       bool       `json:"dead"`
	Health     float64    `json:"health"`
	Fuel       float64    `json:"fuel"`
	Legs       []LegState `json:"legs"`
}

// Snapshot copies the rig's current state.
func (r *Rig) Snapshot() RigState {
	m := r.mech
	state := RigState{
		ID:         r.GetID(),
		Name:       r.Name,
		Position:   r.body.Position(),
		Velocity:   r.body.Velocity(),
		YawDeg:     yawDeg(r.body.Rotation().Rotate(physics.Forward)),
		HipsYawDeg: yawDeg(r.hips.Forward()),
		Airborne:   m.Airborne(),
		Boosting:   m.Boosting(),
		Dead:       m.Dead(),
		Health:     m.Health(),
		Fuel:       m.Fuel(),
	}
	for _, l := range r.legs {
		sol := l.solution
		state.Legs = append(state.Legs, LegState{
			Name:      l.Name,
			Foot:      l.Foot.Pose().Position,
			Stepping:  l.Foot.Moving(),
			Sliding:   l.Foot.Sliding(),
			Elbow:     sol.ElbowPosition,
			End:       sol.EndPosition,
			BendDeg:   mgl64.RadToDeg(sol.Bend()),
			Reachable: sol.Reachable,
		})
	}
	return state
}

func yawDeg(forward mgl64.Vec3) float64 {
	return mgl64.RadToDeg(physics.SignedAngle(physics.Forward, physics.FlattenY(forward), physics.Up))
}
