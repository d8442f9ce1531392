// pkg/entity/rig.go
package entity

import (
	"errors"
	"fmt"

	"github.com/EngoEngine/ecs"
	"github.com/go-gl/mathgl/mgl64"

	"github.com/opd-ai/go-mech/pkg/align"
	"github.com/opd-ai/go-mech/pkg/config"
	"github.com/opd-ai/go-mech/pkg/event"
	"github.com/opd-ai/go-mech/pkg/gait"
	"github.com/opd-ai/go-mech/pkg/ik"
	"github.com/opd-ai/go-mech/pkg/mech"
	"github.com/opd-ai/go-mech/pkg/physics"
)

// Rig is a complete mech: one rigid body kept upright by an alignment
// controller, driven by a mech controller and carried by two IK legs whose
// feet are placed by the gait.
type Rig struct {
	BaseEntity

	body   *physics.RigidBody
	radius float64

	base *align.Controller
	mech *mech.Controller
	legs []*Leg
	hips *gait.Hips

	// upright is the base target in torque mode: level, facing the body's
	// flattened forward.
	upright  physics.Pose
	contacts *physics.ContactTracker
	bus      *event.Bus
}

// NewRig assembles a rig from cfg at the configured spawn pose.
func NewRig(name string, cfg *config.Config) (*Rig, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", config.ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	alignment, err := cfg.ToAlignment()
	if err != nil {
		return nil, err
	}
	mechCfg, err := cfg.ToMech()
	if err != nil {
		return nil, err
	}

	spawn := physics.NewPose(cfg.Body.Spawn,
		physics.AxisAngle(mgl64.DegToRad(cfg.Body.SpawnHeadingDeg), physics.Up))
	body, err := physics.NewRigidBody(cfg.Body.Mass, cfg.Body.Inertia, spawn)
	if err != nil {
		return nil, fmt.Errorf("creating body for %s: %w", name, err)
	}

	base, err := align.NewController(body, alignment)
	if err != nil {
		return nil, fmt.Errorf("creating base controller for %s: %w", name, err)
	}
	m, err := mech.NewController(body, base, mechCfg)
	if err != nil {
		return nil, fmt.Errorf("creating mech controller for %s: %w", name, err)
	}

	r := &Rig{
		BaseEntity: newBaseEntity(name),
		body:       body,
		radius:     cfg.Body.Radius,
		base:       base,
		mech:       m,
		hips:       gait.NewHips(m, spawn.Forward(), cfg.Hips.VelocityThreshold),
		contacts:   physics.NewContactTracker(),
		bus:        event.NewEventBus(),
	}

	for _, lc := range cfg.Legs {
		leg, err := r.newLeg(lc, spawn)
		if err != nil {
			// Only the mech holds resources at this point.
			return nil, errors.Join(err, m.Close())
		}
		r.legs = append(r.legs, leg)
	}
	gait.Pair(r.legs[0].Foot, r.legs[1].Foot)

	m.Enable()
	if mechCfg.TurnMode == mech.TurnModeTorque {
		r.refreshUpright()
		base.SetTarget(&r.upright)
	}
	return r, nil
}

func (r *Rig) newLeg(lc config.LegConfig, spawn physics.Pose) (*Leg, error) {
	solver, err := ik.NewSolver(lc.ToChain(spawn), lc.ToSolver())
	if err != nil {
		return nil, fmt.Errorf("leg %s: %w", lc.Name, err)
	}
	foot, err := gait.NewFootPlacer(lc.Name, r.body, r.mech, lc.ToGait(), r.bus)
	if err != nil {
		return nil, fmt.Errorf("leg %s: %w", lc.Name, err)
	}
	leg := &Leg{Name: lc.Name, Solver: solver, Foot: foot, hip: lc.Root}
	leg.solve(spawn, foot.Pose())
	return leg, nil
}

// GetPosition returns the body's world position.
func (r *Rig) GetPosition() mgl64.Vec3 { return r.body.Position() }

// GetBasicEntity returns the ecs handle systems track the rig by.
func (r *Rig) GetBasicEntity() *ecs.BasicEntity { return &r.BasicEntity }

func (r *Rig) Body() *physics.RigidBody   { return r.body }
func (r *Rig) Radius() float64            { return r.radius }
func (r *Rig) Base() *align.Controller    { return r.base }
func (r *Rig) Mech() *mech.Controller     { return r.mech }
func (r *Rig) Legs() []*Leg               { return r.legs }
func (r *Rig) Hips() *gait.Hips           { return r.hips }
func (r *Rig) FootfallEvents() *event.Bus { return r.bus }

// Grounded reports whether the body currently touches the ground layer.
func (r *Rig) Grounded() bool {
	return r.contacts.Touching(r.mech.Config().GroundLayer)
}

// Leg returns the leg called name, or nil.
func (r *Rig) Leg(name string) *Leg {
	for _, l := range r.legs {
		if l.Name == name {
			return l
		}
	}
	return nil
}

// TakeDamage makes the rig a valid target for mech.Controller.DealDamage.
func (r *Rig) TakeDamage(amount float64, kind mech.DamageKind) {
	r.mech.TakeDamage(amount, kind)
}

// Dead reports whether the rig's mech has died.
func (r *Rig) Dead() bool {
	return r.mech.Dead()
}

// ApplyControl submits this physics step's alignment and locomotion forces.
func (r *Rig) ApplyControl(dt float64) {
	if r.base.Target() == &r.upright {
		r.refreshUpright()
	}
	r.base.Step()
	r.mech.Step(dt)
}

// Integrate advances the body.
func (r *Rig) Integrate(dt float64, gravity mgl64.Vec3) {
	r.body.Integrate(dt, gravity)
}

// ResolveGround resolves the body sphere against ground and forwards contact
// transitions to the base controller. impact is the normal speed removed by
// this step's resolution. A mech that is airborne while its body never left
// the ground, such as after a jump too weak to lift it, gets the contact
// delivered again as an enter.
func (r *Rig) ResolveGround(ground physics.GroundPlane) (entered, exited bool, impact float64) {
	result := physics.CheckGroundContact(physics.Sphere{Center: r.body.Position(), Radius: r.radius}, ground)
	impact = physics.ResolveGroundContact(r.body, result)
	entered, exited = r.contacts.Update(ground.Layer, result.Collided)
	if result.Collided && !entered && r.mech.Airborne() && ground.Layer == r.mech.Config().GroundLayer {
		entered = true
	}

	if !entered && !exited {
		return entered, exited, impact
	}
	col := physics.Collision{
		Layer:         ground.Layer,
		Normal:        physics.Up,
		Point:         r.body.Position().Sub(physics.Up.Mul(r.radius)),
		RelativeSpeed: impact,
	}
	if entered {
		r.base.HandleCollisionEnter(col)
	} else {
		r.base.HandleCollisionExit(col)
	}
	return entered, exited, impact
}

// UpdateFrame advances the frame-rate state: heading, hips, feet and legs.
func (r *Rig) UpdateFrame(dt float64) {
	r.mech.Update(dt)
	r.hips.Update()
	pose := r.body.Pose()
	for _, leg := range r.legs {
		leg.update(pose, dt)
	}
}

// Close releases the mech controller's subscriptions and metric callbacks.
func (r *Rig) Close() error {
	r.Active = false
	return r.mech.Close()
}

func (r *Rig) refreshUpright() {
	forward := physics.FlattenY(r.body.Rotation().Rotate(physics.Forward))
	r.upright = physics.NewPose(r.body.Position(), physics.LookRotation(forward, physics.Up))
}
