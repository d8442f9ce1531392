// Package mech turns move, turn, jump, boost and damage intent into forces on
// a mech's main body and tracks its health, fuel and ground contact.
package mech

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/opd-ai/go-mech/pkg/align"
	"github.com/opd-ai/go-mech/pkg/event"
	"github.com/opd-ai/go-mech/pkg/physics"
	"github.com/opd-ai/go-mech/pkg/resource"
)

// DamageKind tells observers where damage came from.
type DamageKind int

const (
	DamageCollision DamageKind = iota
	DamageProjectile
)

func (k DamageKind) String() string {
	switch k {
	case DamageCollision:
		return "collision"
	case DamageProjectile:
		return "projectile"
	default:
		return fmt.Sprintf("DamageKind(%d)", int(k))
	}
}

// Damageable is anything DealDamage can hit.
type Damageable interface {
	TakeDamage(amount float64, kind DamageKind)
}

// Controller is the locomotion and combat state of one mech. All methods are
// meant to be called from the simulation goroutine.
type Controller struct {
	body   physics.Body
	base   *align.Controller
	config Config

	health *resource.Gauge
	fuel   *resource.Gauge

	moving   bool
	turning  bool
	boosting bool
	airborne bool
	dead     bool
	enabled  bool

	moveInput  mgl64.Vec2
	turnInput  mgl64.Vec2
	boostForce mgl64.Vec3
	heading    physics.Pose

	bus     *event.Bus
	subs    []*event.Subscription
	metrics *telemetry
}

// NewController builds a controller for body. base is the alignment controller
// on the mech's base body; its collision events drive ground contact and its
// gravity resistance is toggled on landing and take-off. A nil body means the
// base controller's body.
func NewController(body physics.Body, base *align.Controller, cfg Config) (*Controller, error) {
	if base == nil {
		return nil, fmt.Errorf("%w: base alignment controller is nil", ErrInvalidConfig)
	}
	if body == nil {
		body = base.Body()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	health, err := resource.NewGauge("health", cfg.MaxHealth, cfg.MaxHealth)
	if err != nil {
		return nil, fmt.Errorf("creating health gauge: %w", err)
	}
	fuel, err := resource.NewGauge("fuel", cfg.MaxFuel, cfg.MaxFuel)
	if err != nil {
		return nil, fmt.Errorf("creating fuel gauge: %w", err)
	}

	c := &Controller{
		body:     body,
		base:     base,
		config:   cfg,
		health:   health,
		fuel:     fuel,
		airborne: true,
		bus:      event.NewEventBus(),
	}
	c.resetHeading()

	c.metrics, err = newTelemetry(c)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Enable subscribes to the base body's collisions and marks the mech airborne
// until the first ground contact arrives.
func (c *Controller) Enable() {
	if c.enabled {
		return
	}
	c.enabled = true
	c.airborne = true
	c.base.SetGravityResistance(0)

	bus := c.base.Events()
	c.subs = append(c.subs,
		bus.Subscribe(event.CollisionEnter, c.handleCollisionEnter),
		bus.Subscribe(event.CollisionExit, c.handleCollisionExit),
	)

	if c.config.TurnMode == TurnModeHeading {
		c.resetHeading()
		c.base.SetTarget(&c.heading)
	}
}

// Disable drops the collision subscriptions.
func (c *Controller) Disable() {
	if !c.enabled {
		return
	}
	c.enabled = false
	for _, sub := range c.subs {
		sub.Cancel()
	}
	c.subs = nil
}

// Close disables the controller and releases its metric callback.
func (c *Controller) Close() error {
	c.Disable()
	return c.metrics.close()
}

// Events returns the bus carrying death, damage, boost and airborne events.
func (c *Controller) Events() *event.Bus { return c.bus }

// Body returns the driven body.
func (c *Controller) Body() physics.Body { return c.body }

// Base returns the base alignment controller.
func (c *Controller) Base() *align.Controller { return c.base }

// Config returns the tuning the controller was built with.
func (c *Controller) Config() Config { return c.config }

func (c *Controller) Airborne() bool         { return c.airborne }
func (c *Controller) Moving() bool           { return c.moving }
func (c *Controller) Turning() bool          { return c.turning }
func (c *Controller) Boosting() bool         { return c.boosting }
func (c *Controller) Dead() bool             { return c.dead }
func (c *Controller) Enabled() bool          { return c.enabled }
func (c *Controller) Health() float64        { return c.health.Value() }
func (c *Controller) Fuel() float64          { return c.fuel.Value() }
func (c *Controller) Velocity() mgl64.Vec3   { return c.body.Velocity() }
func (c *Controller) MoveInput() mgl64.Vec2  { return c.moveInput }
func (c *Controller) TurnInput() mgl64.Vec2  { return c.turnInput }
func (c *Controller) BoostForce() mgl64.Vec3 { return c.boostForce }
func (c *Controller) Heading() physics.Pose  { return c.heading }

// HealthStats and FuelStats snapshot the gauges for logging.
func (c *Controller) HealthStats() resource.GaugeStats { return c.health.Stats() }
func (c *Controller) FuelStats() resource.GaugeStats   { return c.fuel.Stats() }

// StartMove begins applying move force.
func (c *Controller) StartMove() {
	if c.dead {
		return
	}
	c.moving = true
}

// Move sets the analog move input: x strafes right, y walks forward.
func (c *Controller) Move(input mgl64.Vec2) {
	c.moveInput = input
}

// StopMove ends move force.
func (c *Controller) StopMove() {
	c.moving = false
}

// StartTurn begins turning.
func (c *Controller) StartTurn() {
	if c.dead {
		return
	}
	c.turning = true
}

// Turn sets the analog turn input; positive x turns right.
func (c *Controller) Turn(input mgl64.Vec2) {
	c.turnInput = input
}

// StopTurn ends turning. In heading mode the heading snaps back to the body.
func (c *Controller) StopTurn() {
	c.turning = false
	if c.config.TurnMode == TurnModeHeading {
		c.resetHeading()
	}
}

// Jump kicks the body upwards when grounded and is ignored otherwise.
func (c *Controller) Jump() {
	if c.airborne || c.dead {
		return
	}
	c.body.AddForce(c.body.Rotation().Rotate(c.config.JumpForce))
	c.metrics.recordJump()
	c.setAirborne(true)
}

// StartBoost fixes the boost direction: straight ahead in the body frame, or
// turned towards the move direction while moving.
func (c *Controller) StartBoost() {
	if c.boosting || c.dead {
		return
	}
	c.boosting = true

	rotation := c.body.Rotation()
	c.boostForce = rotation.Rotate(c.config.BoostForce)
	if c.moving {
		moveDir := physics.SafeNormalize(rotation.Rotate(mgl64.Vec3{c.moveInput.X(), 0, c.moveInput.Y()}))
		if moveDir.LenSqr() > 0 {
			c.boostForce = physics.LookRotation(moveDir, physics.Up).Rotate(c.config.BoostForce)
		}
	}

	c.bus.Publish(event.NewStateEvent(event.BoostStarted, c, c.airborne, true))
}

// Boost is called every frame the boost is held and cancels gravity on the
// base body.
func (c *Controller) Boost() {
	if !c.boosting || c.dead {
		return
	}
	c.base.SetGravityResistance(1)
}

// StopBoost ends boosting and restores gravity resistance for the current
// contact state.
func (c *Controller) StopBoost() {
	if !c.boosting {
		return
	}
	c.boosting = false
	c.restoreGravityResistance()
	c.bus.Publish(event.NewStateEvent(event.BoostStopped, c, c.airborne, false))
}

// AddFuel refills fuel up to capacity and returns the amount accepted.
func (c *Controller) AddFuel(amount float64) float64 {
	return c.fuel.Add(amount)
}

// TakeDamage lowers health. The first time health reaches zero the mech dies;
// later hits only keep the books.
func (c *Controller) TakeDamage(amount float64, kind DamageKind) {
	if !(amount > 0) || math.IsInf(amount, 0) {
		return
	}
	health := c.health.Deplete(amount)
	if c.dead {
		return
	}

	c.metrics.recordDamage(amount, kind)
	c.bus.Publish(event.NewDamageEvent(event.DamageTaken, c, kind.String(), amount, health))

	if health <= 0 {
		c.die(kind)
	}
}

// mortal is implemented by targets that can report their death latch.
type mortal interface {
	Dead() bool
}

// DealDamage applies damage to target and reports it locally. Non-positive
// amounts and hits on a dead target are dropped without an event.
func (c *Controller) DealDamage(target Damageable, amount float64, kind DamageKind) {
	if target == nil || !(amount > 0) || math.IsInf(amount, 0) {
		return
	}
	if m, ok := target.(mortal); ok && m.Dead() {
		return
	}
	target.TakeDamage(amount, kind)
	c.bus.Publish(event.NewDamageEvent(event.DamageDealt, c, kind.String(), amount, c.health.Value()))
}

func (c *Controller) die(kind DamageKind) {
	c.dead = true
	c.moving = false
	c.turning = false
	c.StopBoost()
	c.metrics.recordDeath(kind)
	c.bus.Publish(event.NewDamageEvent(event.Died, c, kind.String(), 0, c.health.Value()))
}

// Update advances the presentation-rate state. In heading mode it rotates the
// heading pose by the turn input.
func (c *Controller) Update(dt float64) {
	if c.config.TurnMode != TurnModeHeading || dt <= 0 {
		return
	}
	c.heading.Position = c.body.Position()
	if !c.turning || c.dead {
		return
	}

	angle := c.turnInput.X() * c.config.TurnSpeed * dt
	if c.airborne {
		angle *= c.config.AirborneTurnDamping
	}
	c.heading.Rotation = physics.AxisAngle(angle, physics.Up).Mul(c.heading.Rotation).Normalize()

	bodyForward := physics.ProjectOnPlane(c.body.Rotation().Rotate(physics.Forward), physics.Up)
	delta := physics.SignedAngle(bodyForward, c.heading.Forward(), physics.Up)
	limit := c.config.MaxTurn
	if delta > limit {
		c.heading.Rotation = physics.AxisAngle(limit-delta, physics.Up).Mul(c.heading.Rotation).Normalize()
	} else if delta < -limit {
		c.heading.Rotation = physics.AxisAngle(-limit-delta, physics.Up).Mul(c.heading.Rotation).Normalize()
	}
}

// Step applies this physics step's move, damping, turn and boost forces.
func (c *Controller) Step(dt float64) {
	if dt <= 0 {
		return
	}
	moveDir := c.body.Rotation().Rotate(mgl64.Vec3{c.moveInput.X(), 0, c.moveInput.Y()})

	if c.moving && !c.dead {
		c.body.AddForce(c.moveForce(moveDir, dt))
	}
	if !c.airborne {
		c.body.AddForce(c.dampingForce(moveDir, dt))
	}

	if c.config.TurnMode == TurnModeTorque {
		c.body.AddTorque(c.turnTorque(dt))
	}

	if c.boosting && !c.fuel.Empty() {
		c.body.AddForce(c.boostForce)
		c.metrics.recordFuel(c.fuel.Consume(c.config.BoostCost))
	}
}

// moveForce caps the walking force so the speed after this step does not
// exceed MaxMove.
func (c *Controller) moveForce(moveDir mgl64.Vec3, dt float64) mgl64.Vec3 {
	force := moveDir.Mul(c.config.MoveForce)
	if c.airborne {
		force = force.Mul(c.config.AirborneMoveDamping)
	}

	mass := c.body.Mass()
	velocity := c.body.Velocity()
	next := velocity.Add(force.Mul(dt / mass))
	maxMove := c.config.MaxMove
	if next.LenSqr() > maxMove*maxMove {
		room := math.Max(0, maxMove-velocity.Len())
		force = physics.SafeNormalize(force).Mul(room * mass / dt)
	}
	return force
}

// dampingForce opposes ground-plane velocity, only sideways while moving. It
// can bring the damped velocity to zero but never past it.
func (c *Controller) dampingForce(moveDir mgl64.Vec3, dt float64) mgl64.Vec3 {
	velocity := physics.ProjectOnPlane(c.body.Velocity(), physics.Up)
	if c.moving && !c.dead {
		lateral := moveDir.Cross(physics.Up)
		if lateral.LenSqr() > 0 {
			velocity = physics.Project(velocity, lateral)
		}
	}
	if velocity.LenSqr() == 0 {
		return mgl64.Vec3{}
	}

	mass := c.body.Mass()
	force := physics.SafeNormalize(velocity).Mul(-c.config.MoveDamping)
	if force.Mul(dt/mass).LenSqr() > velocity.LenSqr() {
		force = velocity.Mul(-mass / dt)
	}
	return force
}

// turnTorque returns the yaw torque for torque-mode turning: capped drive
// while turning, non-overshooting damping otherwise.
func (c *Controller) turnTorque(dt float64) mgl64.Vec3 {
	up := c.body.Rotation().Rotate(physics.Up)
	inertia := c.body.Inertia()
	spin := c.body.AngularVelocity().Dot(up)

	if c.turning && !c.dead {
		drive := c.turnInput.X() * c.config.TurnTorque
		if c.airborne {
			drive *= c.config.AirborneTurnDamping
		}
		limit := c.config.MaxTurnSpeed
		next := spin + drive*dt/inertia
		if math.Abs(next) > limit {
			capped := (mgl64.Clamp(next, -limit, limit) - spin) * inertia / dt
			if capped*drive < 0 {
				capped = 0
			}
			drive = capped
		}
		return up.Mul(drive)
	}

	if spin == 0 {
		return mgl64.Vec3{}
	}
	damping := -math.Copysign(c.config.TurnDamping, spin)
	if math.Abs(damping*dt/inertia) > math.Abs(spin) {
		damping = -spin * inertia / dt
	}
	return up.Mul(damping)
}

func (c *Controller) handleCollisionEnter(e event.Event) {
	if col, ok := e.(*event.CollisionEvent); ok && physics.Layer(col.Layer) == c.config.GroundLayer {
		c.setAirborne(false)
	}
}

func (c *Controller) handleCollisionExit(e event.Event) {
	if col, ok := e.(*event.CollisionEvent); ok && physics.Layer(col.Layer) == c.config.GroundLayer {
		c.setAirborne(true)
	}
}

func (c *Controller) setAirborne(airborne bool) {
	if c.airborne == airborne {
		return
	}
	c.airborne = airborne
	c.restoreGravityResistance()
	c.bus.Publish(event.NewStateEvent(event.AirborneChanged, c, airborne, c.boosting))
}

func (c *Controller) restoreGravityResistance() {
	if c.airborne {
		c.base.SetGravityResistance(0)
	} else {
		c.base.SetGravityResistance(c.config.GravityResistance)
	}
}

func (c *Controller) resetHeading() {
	forward := physics.ProjectOnPlane(c.body.Rotation().Rotate(physics.Forward), physics.Up)
	c.heading = physics.NewPose(c.body.Position(), physics.LookRotation(forward, physics.Up))
}
