// pkg/engine/simulation.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/EngoEngine/ecs"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"github.com/opd-ai/go-mech/pkg/config"
	"github.com/opd-ai/go-mech/pkg/entity"
	"github.com/opd-ai/go-mech/pkg/event"
	"github.com/opd-ai/go-mech/pkg/logging"
	"github.com/opd-ai/go-mech/pkg/physics"
)

// stepEpsilon absorbs rounding in the accumulator so a frame that is an exact
// multiple of the step is not one step short.
const stepEpsilon = 1e-9

var (
	// ErrRigNotFound is returned for ids that are not in the simulation.
	ErrRigNotFound = errors.New("rig not found")
	// ErrClosed is returned by operations on a closed simulation.
	ErrClosed = errors.New("simulation closed")
)

// forwarded lists the rig events republished on the simulation bus.
var forwarded = []event.Type{
	event.Died,
	event.DamageTaken,
	event.DamageDealt,
	event.BoostStarted,
	event.BoostStopped,
	event.AirborneChanged,
}

// Simulation owns the rigs and advances them with a fixed physics step and a
// variable frame step. Event handlers run on the simulating goroutine while
// the simulation lock is held and must not call back into the Simulation.
type Simulation struct {
	Config *config.Config

	physicsWorld *ecs.World
	frameWorld   *ecs.World
	control      *controlSystem
	integration  *integrationSystem
	contact      *contactSystem
	pose         *poseSystem

	lock   sync.RWMutex
	rigs   map[entity.ID]*entity.Rig
	order  []entity.ID
	subs   map[entity.ID][]*event.Subscription
	bus    *event.Bus
	logger *logging.Logger
	runID  string
	closed bool

	ground      physics.GroundPlane
	step        float64
	frameDelta  float64
	accumulator float64
	tick        uint64
	elapsed     float64

	metrics *telemetry
}

// NewSimulation validates cfg and builds an empty simulation. A nil logger
// discards output.
func NewSimulation(cfg *config.Config, logger *logging.Logger) (*Simulation, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", config.ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}

	s := &Simulation{
		Config:       cfg,
		physicsWorld: &ecs.World{},
		frameWorld:   &ecs.World{},
		rigs:         make(map[entity.ID]*entity.Rig),
		subs:         make(map[entity.ID][]*event.Subscription),
		bus:          event.NewEventBus(),
		runID:        uuid.NewString(),
		ground: physics.GroundPlane{
			Height: cfg.Simulation.GroundHeight,
			Layer:  physics.Layer(cfg.Simulation.GroundLayer),
		},
		step: cfg.Simulation.PhysicsStep,
	}
	s.logger = logger.With("run_id", s.runID)

	s.control = &controlSystem{rigSet{sim: s}}
	s.integration = &integrationSystem{rigSet{sim: s}}
	s.contact = &contactSystem{rigSet{sim: s}}
	s.pose = &poseSystem{rigSet{sim: s}}
	s.physicsWorld.AddSystem(s.control)
	s.physicsWorld.AddSystem(s.integration)
	s.physicsWorld.AddSystem(s.contact)
	s.frameWorld.AddSystem(s.pose)

	var err error
	s.metrics, err = newTelemetry(s)
	if err != nil {
		return nil, err
	}

	s.logger.Info(context.Background(), "simulation created",
		"physics_step", s.step, "max_frame_delta", cfg.Simulation.MaxFrameDelta)
	return s, nil
}

// RunID identifies this simulation in logs.
func (s *Simulation) RunID() string { return s.runID }

// Events returns the bus carrying spawn, removal and forwarded rig events.
func (s *Simulation) Events() *event.Bus { return s.bus }

// Tick returns the number of physics steps taken.
func (s *Simulation) Tick() uint64 {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.tick
}

// Elapsed returns the simulated time in seconds, after frame clamping.
func (s *Simulation) Elapsed() float64 {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.elapsed
}

// Spawn adds a rig at the configured spawn point.
func (s *Simulation) Spawn(name string) (*entity.Rig, error) {
	return s.SpawnAt(name, s.Config.Body.Spawn)
}

// SpawnAt adds a rig with its body centred at position.
func (s *Simulation) SpawnAt(name string, position mgl64.Vec3) (*entity.Rig, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	cfg := *s.Config
	cfg.Body.Spawn = position
	rig, err := entity.NewRig(name, &cfg)
	if err != nil {
		return nil, fmt.Errorf("spawning %s: %w", name, err)
	}

	id := rig.GetID()
	s.rigs[id] = rig
	s.order = append(s.order, id)
	s.control.Add(rig)
	s.integration.Add(rig)
	s.contact.Add(rig)
	s.pose.Add(rig)
	s.subs[id] = s.forward(rig)

	s.logger.Info(context.Background(), "rig spawned",
		"rig", name, "rig_id", uint64(id), "position", position)
	s.bus.Publish(event.NewRigEvent(event.RigSpawned, s, uint64(id), name))
	return rig, nil
}

// Remove takes a rig out of the simulation and closes it.
func (s *Simulation) Remove(id entity.ID) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.removeLocked(id)
}

func (s *Simulation) removeLocked(id entity.ID) error {
	rig, ok := s.rigs[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrRigNotFound, id)
	}

	for _, sub := range s.subs[id] {
		sub.Cancel()
	}
	delete(s.subs, id)
	delete(s.rigs, id)
	for i, other := range s.order {
		if other == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.physicsWorld.RemoveEntity(rig.BasicEntity)
	s.frameWorld.RemoveEntity(rig.BasicEntity)

	err := rig.Close()
	s.logger.Info(context.Background(), "rig removed", "rig", rig.Name, "rig_id", uint64(id))
	s.bus.Publish(event.NewRigEvent(event.RigRemoved, s, uint64(id), rig.Name))
	return err
}

// Rig looks up a rig by id.
func (s *Simulation) Rig(id entity.ID) (*entity.Rig, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	rig, ok := s.rigs[id]
	return rig, ok
}

// Rigs returns the live rigs in spawn order.
func (s *Simulation) Rigs() []*entity.Rig {
	s.lock.RLock()
	defer s.lock.RUnlock()
	rigs := make([]*entity.Rig, 0, len(s.order))
	for _, id := range s.order {
		rigs = append(rigs, s.rigs[id])
	}
	return rigs
}

// Snapshot copies the state of every rig in spawn order.
func (s *Simulation) Snapshot() []entity.RigState {
	s.lock.RLock()
	defer s.lock.RUnlock()
	states := make([]entity.RigState, 0, len(s.order))
	for _, id := range s.order {
		states = append(states, s.rigs[id].Snapshot())
	}
	return states
}

// Advance runs as many physics steps as fit in frameDelta plus the carried
// remainder, then one frame update. Deltas above the configured maximum are
// clamped. It returns the number of physics steps taken.
func (s *Simulation) Advance(frameDelta float64) int {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed || !(frameDelta >= 0) {
		return 0
	}

	if limit := s.Config.Simulation.MaxFrameDelta; frameDelta > limit {
		s.logger.Debug(context.Background(), "frame delta clamped",
			"delta", frameDelta, "limit", limit)
		s.metrics.recordClamp()
		frameDelta = limit
	}

	s.accumulator += frameDelta
	steps := 0
	for s.accumulator+stepEpsilon >= s.step {
		s.stepLocked()
		s.accumulator -= s.step
		steps++
	}
	if s.accumulator < 0 {
		s.accumulator = 0
	}

	s.elapsed += frameDelta
	s.frameDelta = frameDelta
	s.frameWorld.Update(float32(frameDelta))
	return steps
}

// StepPhysics runs exactly one physics step without a frame update.
func (s *Simulation) StepPhysics() {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return
	}
	s.stepLocked()
}

func (s *Simulation) stepLocked() {
	s.physicsWorld.Update(float32(s.step))
	s.tick++
	s.metrics.recordStep()
}

// Run advances the simulation in real time, one frame per period, until ctx
// is done. onFrame, when not nil, runs before each frame with the measured
// delta and may drive rig input.
func (s *Simulation) Run(ctx context.Context, period time.Duration, onFrame func(dt float64)) error {
	if period <= 0 {
		return fmt.Errorf("frame period must be positive, got %v", period)
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	s.logger.Info(ctx, "simulation running", "frame_period", period.String())
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "simulation stopped", "ticks", s.Tick(), "elapsed", s.Elapsed())
			return ctx.Err()
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now
			if onFrame != nil {
				onFrame(dt)
			}
			s.Advance(dt)
		}
	}
}

// Close removes every rig and stops accepting work.
func (s *Simulation) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return nil
	}

	var errs []error
	for len(s.order) > 0 {
		errs = append(errs, s.removeLocked(s.order[0]))
	}
	s.closed = true
	errs = append(errs, s.metrics.close())
	return errors.Join(errs...)
}

// forward republishes a rig's events on the simulation bus and logs the ones
// worth a line.
func (s *Simulation) forward(rig *entity.Rig) []*event.Subscription {
	log := s.logger.With("rig", rig.Name)
	subs := make([]*event.Subscription, 0, len(forwarded)+1)

	for _, t := range forwarded {
		subs = append(subs, rig.Mech().Events().Subscribe(t, func(e event.Event) {
			switch ev := e.(type) {
			case *event.DamageEvent:
				if ev.GetType() == event.Died {
					log.Warn(context.Background(), "rig destroyed", "cause", ev.Kind, "health", ev.Health)
				}
			case *event.StateEvent:
				log.Debug(context.Background(), "state changed",
					"event", string(ev.GetType()), "airborne", ev.Airborne, "boosting", ev.Boosting)
			}
			s.bus.Publish(e)
		}))
	}

	subs = append(subs, rig.FootfallEvents().Subscribe(event.Footfall, func(e event.Event) {
		if ev, ok := e.(*event.FootfallEvent); ok {
			log.Debug(context.Background(), "footfall", "foot", ev.Foot, "impact", ev.Impact)
		}
		s.bus.Publish(e)
	}))
	return subs
}
