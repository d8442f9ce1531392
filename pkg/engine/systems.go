// pkg/engine/systems.go
package engine

import (
	"context"

	"github.com/EngoEngine/ecs"

	"github.com/opd-ai/go-mech/pkg/entity"
)

// System priorities. ecs runs higher priorities first, so one physics step is
// control, then integration, then contact resolution.
const (
	priorityControl     = 30
	priorityIntegration = 20
	priorityContact     = 10
)

// rigSet is the entity bookkeeping shared by every system. ecs hands systems
// a float32 delta; systems read the exact step from the simulation instead.
type rigSet struct {
	sim  *Simulation
	rigs []*entity.Rig
}

func (s *rigSet) Add(r *entity.Rig) {
	s.rigs = append(s.rigs, r)
}

func (s *rigSet) Remove(basic ecs.BasicEntity) {
	for i, r := range s.rigs {
		if r.GetBasicEntity().ID() == basic.ID() {
			s.rigs = append(s.rigs[:i], s.rigs[i+1:]...)
			return
		}
	}
}

// controlSystem lets the alignment and mech controllers submit forces.
type controlSystem struct{ rigSet }

func (s *controlSystem) Priority() int { return priorityControl }

func (s *controlSystem) Update(float32) {
	for _, r := range s.rigs {
		r.ApplyControl(s.sim.step)
	}
}

// integrationSystem advances every body by one step.
type integrationSystem struct{ rigSet }

func (s *integrationSystem) Priority() int { return priorityIntegration }

func (s *integrationSystem) Update(float32) {
	gravity := s.sim.Config.Simulation.Gravity
	for _, r := range s.rigs {
		r.Integrate(s.sim.step, gravity)
	}
}

// contactSystem resolves bodies against the ground and reports contact
// transitions.
type contactSystem struct{ rigSet }

func (s *contactSystem) Priority() int { return priorityContact }

func (s *contactSystem) Update(float32) {
	for _, r := range s.rigs {
		entered, exited, impact := r.ResolveGround(s.sim.ground)
		switch {
		case entered:
			s.sim.logger.Debug(context.Background(), "ground contact",
				"rig", r.Name, "impact", impact, "tick", s.sim.tick)
		case exited:
			s.sim.logger.Debug(context.Background(), "left ground",
				"rig", r.Name, "tick", s.sim.tick)
		}
	}
}

// poseSystem runs at frame rate: heading, hips, feet and leg solves.
type poseSystem struct{ rigSet }

func (s *poseSystem) Update(float32) {
	for _, r := range s.rigs {
		r.UpdateFrame(s.sim.frameDelta)
	}
}
