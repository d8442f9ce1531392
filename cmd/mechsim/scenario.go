// cmd/mechsim/scenario.go
package main

import (
	"context"
	"io"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/opd-ai/go-mech/pkg/engine"
	"github.com/opd-ai/go-mech/pkg/entity"
	"github.com/opd-ai/go-mech/pkg/event"
	"github.com/opd-ai/go-mech/pkg/logging"
	"github.com/opd-ai/go-mech/pkg/mech"
	"github.com/opd-ai/go-mech/pkg/render"
)

const (
	// sentinelOffset places the damage dealer beside the pilot.
	sentinelOffset = 4.0
	hitInterval    = 0.25
	hitDamage      = 10.0
)

// phase is one scripted stretch of input. enter and exit run once; frame runs
// before every simulated frame of the phase.
type phase struct {
	name     string
	duration float64
	enter    func(s *scenario)
	frame    func(s *scenario, dt float64)
	exit     func(s *scenario)
	done     func(s *scenario) bool
}

// scenario drives a pilot rig through landing, walking, turning, jumping,
// boosting and a fight it cannot win.
type scenario struct {
	sim      *engine.Simulation
	logger   *logging.Logger
	pilot    *entity.Rig
	sentinel *entity.Rig

	phases    []phase
	current   int
	phaseTime float64
	entered   bool
	footfalls int
	hitTimer  float64
	summaries []phaseSummary

	// view, when set, draws every rig to out after each phase.
	view *render.TerminalRenderer
	out  io.Writer
}

// phaseSummary is logged at the end of every phase.
type phaseSummary struct {
	Phase     string
	Duration  float64
	Footfalls int
	State     entity.RigState
}

func newScenario(sim *engine.Simulation, logger *logging.Logger) (*scenario, error) {
	spawn := sim.Config.Body.Spawn
	pilot, err := sim.SpawnAt("pilot", spawn)
	if err != nil {
		return nil, err
	}
	sentinel, err := sim.SpawnAt("sentinel", spawn.Add(mgl64.Vec3{sentinelOffset, 0, 0}))
	if err != nil {
		return nil, err
	}

	s := &scenario{sim: sim, logger: logger, pilot: pilot, sentinel: sentinel}
	pilot.FootfallEvents().Subscribe(event.Footfall, func(event.Event) { s.footfalls++ })
	s.phases = scriptedPhases()
	return s, nil
}

func scriptedPhases() []phase {
	return []phase{
		{name: "land", duration: 1.5},
		{
			name:     "walk",
			duration: 3,
			enter: func(s *scenario) {
				m := s.pilot.Mech()
				m.StartMove()
				m.Move(mgl64.Vec2{0, 1})
			},
			exit: func(s *scenario) { s.pilot.Mech().StopMove() },
		},
		{
			name:     "turn",
			duration: 1,
			enter: func(s *scenario) {
				m := s.pilot.Mech()
				m.StartTurn()
				m.Turn(mgl64.Vec2{1, 0})
			},
			exit: func(s *scenario) { s.pilot.Mech().StopTurn() },
		},
		{
			name:     "jump",
			duration: 2.5,
			enter:    func(s *scenario) { s.pilot.Mech().Jump() },
		},
		{
			name:     "boost",
			duration: 1.5,
			enter:    func(s *scenario) { s.pilot.Mech().StartBoost() },
			frame:    func(s *scenario, dt float64) { s.pilot.Mech().Boost() },
			exit:     func(s *scenario) { s.pilot.Mech().StopBoost() },
		},
		{
			name:     "settle",
			duration: 3,
			done:     func(s *scenario) bool { return !s.pilot.Mech().Airborne() && s.phaseTime > 0.5 },
		},
		{
			name:     "damage",
			duration: 5,
			frame: func(s *scenario, dt float64) {
				s.hitTimer += dt
				for s.hitTimer >= hitInterval {
					s.hitTimer -= hitInterval
					s.sentinel.Mech().DealDamage(s.pilot, hitDamage, mech.DamageProjectile)
				}
			},
			done: func(s *scenario) bool { return s.pilot.Mech().Dead() },
		},
	}
}

// Done reports whether every phase has finished.
func (s *scenario) Done() bool {
	return s.current >= len(s.phases)
}

// Frame advances the script by one frame of dt seconds. It is called before
// the simulation advances by the same delta.
func (s *scenario) Frame(ctx context.Context, dt float64) {
	if s.Done() {
		return
	}
	p := &s.phases[s.current]
	if s.entered && (s.phaseTime >= p.duration || (p.done != nil && p.done(s))) {
		s.finish(ctx, p)
		if s.Done() {
			return
		}
		p = &s.phases[s.current]
	}

	if !s.entered {
		s.entered = true
		s.footfalls = 0
		s.logger.Info(ctx, "phase started", "phase", p.name)
		if p.enter != nil {
			p.enter(s)
		}
	}
	if p.frame != nil {
		p.frame(s, dt)
	}
	s.phaseTime += dt
}

// Finish closes the running phase, if any.
func (s *scenario) Finish(ctx context.Context) {
	if !s.Done() && s.entered {
		s.finish(ctx, &s.phases[s.current])
	}
}

func (s *scenario) finish(ctx context.Context, p *phase) {
	if p.exit != nil {
		p.exit(s)
	}

	summary := phaseSummary{
		Phase:     p.name,
		Duration:  s.phaseTime,
		Footfalls: s.footfalls,
		State:     s.pilot.Snapshot(),
	}
	s.summaries = append(s.summaries, summary)

	st := summary.State
	s.logger.Info(ctx, "phase complete",
		"phase", p.name,
		"duration", summary.Duration,
		"tick", s.sim.Tick(),
		"position", st.Position,
		"speed", st.Velocity.Len(),
		"yaw_deg", st.YawDeg,
		"airborne", st.Airborne,
		"health", st.Health,
		"fuel", st.Fuel,
		"dead", st.Dead,
		"footfalls", summary.Footfalls,
	)
	s.draw(ctx, st.Position)

	s.current++
	s.phaseTime = 0
	s.entered = false
}

func (s *scenario) draw(ctx context.Context, center mgl64.Vec3) {
	if s.view == nil {
		return
	}
	s.view.Clear()
	s.view.SetCenter(center)
	for _, state := range s.sim.Snapshot() {
		s.view.RenderRig(state)
	}
	if _, err := s.view.WriteTo(s.out); err != nil {
		s.logger.Error(ctx, "drawing view failed", err)
	}
}
