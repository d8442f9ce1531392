package align

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/opd-ai/go-mech/pkg/event"
	"github.com/opd-ai/go-mech/pkg/physics"
)

// vecNear compares with an absolute tolerance, scaled up for vectors longer
// than one unit. mgl64's ApproxEqualThreshold is relative per component and
// rejects rounding noise against an exact zero.
func vecNear(a, b mgl64.Vec3, tol float64) bool {
	return a.Sub(b).Len() <= tol*math.Max(1, b.Len())
}

const tolerance = 1e-9

// stubBody implements physics.Body without integrating anything.
type stubBody struct {
	position        mgl64.Vec3
	rotation        mgl64.Quat
	velocity        mgl64.Vec3
	angularVelocity mgl64.Vec3
	mass            float64
	inertia         float64
	gravity         bool
	maxAngularSpeed float64

	force  mgl64.Vec3
	torque mgl64.Vec3
}

func newStubBody() *stubBody {
	return &stubBody{rotation: mgl64.QuatIdent(), mass: 2, inertia: 1}
}

func (b *stubBody) Position() mgl64.Vec3              { return b.position }
func (b *stubBody) Rotation() mgl64.Quat              { return b.rotation }
func (b *stubBody) Velocity() mgl64.Vec3              { return b.velocity }
func (b *stubBody) AngularVelocity() mgl64.Vec3       { return b.angularVelocity }
func (b *stubBody) Mass() float64                     { return b.mass }
func (b *stubBody) Inertia() float64                  { return b.inertia }
func (b *stubBody) UsesGravity() bool                 { return b.gravity }
func (b *stubBody) AddForce(f mgl64.Vec3)             { b.force = b.force.Add(f) }
func (b *stubBody) AddTorque(t mgl64.Vec3)            { b.torque = b.torque.Add(t) }
func (b *stubBody) SetMaxAngularSpeed(radPerS float64) { b.maxAngularSpeed = radPerS }

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PositionGain = 10
	cfg.PositionDamping = 2
	cfg.RotationGain = 3
	cfg.RotationDamping = 1
	return cfg
}

func mustController(t *testing.T, body physics.Body, cfg Config) *Controller {
	t.Helper()
	c, err := NewController(body, cfg)
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}
	return c
}

func TestNewController_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative_gain", func(c *Config) { c.PositionGain = -1 }},
		{"nan_damping", func(c *Config) { c.RotationDamping = math.NaN() }},
		{"resistance_above_one", func(c *Config) { c.GravityResistance = 1.5 }},
		{"infinite_torque_cap", func(c *Config) { c.MaxTorque = math.Inf(1) }},
		{"zero_cone_anchor", func(c *Config) { c.ForbiddenCone = &ForbiddenCone{HalfAngle: 0.5} }},
		{"cone_too_wide", func(c *Config) { c.ForbiddenCone = &ForbiddenCone{Anchor: physics.Up, HalfAngle: math.Pi} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			_, err := NewController(newStubBody(), cfg)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Expected ErrInvalidConfig, got %v", err)
			}
		})
	}

	if _, err := NewController(nil, testConfig()); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig for nil body, got %v", err)
	}
}

func TestConfigValidate_ReportsEveryProblem(t *testing.T) {
	cfg := testConfig()
	cfg.PositionGain = -1
	cfg.MaxForce = -5
	err := cfg.Validate()
	if err == nil {
		t.Fatal("Expected validation error")
	}
	for _, want := range []string{"position gain", "max force"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Error %q does not mention %q", err, want)
		}
	}
}

func TestNewController_SetsMaxAngularSpeed(t *testing.T) {
	body := newStubBody()
	cfg := testConfig()
	cfg.MaxAngularSpeed = 4.5
	mustController(t, body, cfg)
	if body.maxAngularSpeed != 4.5 {
		t.Errorf("Expected max angular speed 4.5, got %f", body.maxAngularSpeed)
	}
}

func TestApplyPositionCorrection(t *testing.T) {
	tests := []struct {
		name     string
		axes     AxisMask
		target   *physics.Pose
		velocity mgl64.Vec3
		expected mgl64.Vec3
	}{
		{
			name:     "proportional_only",
			axes:     AllAxes,
			target:   &physics.Pose{Position: mgl64.Vec3{1, 2, 3}, Rotation: mgl64.QuatIdent()},
			expected: mgl64.Vec3{10, 20, 30},
		},
		{
			name:     "proportional_and_damping",
			axes:     AllAxes,
			target:   &physics.Pose{Position: mgl64.Vec3{1, 0, 0}, Rotation: mgl64.QuatIdent()},
			velocity: mgl64.Vec3{1, 1, 0},
			expected: mgl64.Vec3{8, -2, 0},
		},
		{
			name:     "disabled_axis_not_damped",
			axes:     AxisX | AxisZ | AllRotation,
			target:   &physics.Pose{Position: mgl64.Vec3{1, 5, 0}, Rotation: mgl64.QuatIdent()},
			velocity: mgl64.Vec3{0, -3, 1},
			expected: mgl64.Vec3{10, 0, -2},
		},
		{
			name:     "no_target_pure_damping",
			axes:     AllAxes,
			velocity: mgl64.Vec3{2, 0, -1},
			expected: mgl64.Vec3{-4, 0, 2},
		},
		{
			name:     "no_target_respects_mask",
			axes:     AxisX,
			velocity: mgl64.Vec3{2, 7, -1},
			expected: mgl64.Vec3{-4, 0, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := newStubBody()
			body.velocity = tt.velocity
			cfg := testConfig()
			cfg.Axes = tt.axes
			c := mustController(t, body, cfg)
			c.SetTarget(tt.target)

			force := c.ApplyPositionCorrection()
			if !vecNear(force, tt.expected, tolerance) {
				t.Errorf("force = %v, expected %v", force, tt.expected)
			}
			if !vecNear(body.force, tt.expected, tolerance) {
				t.Errorf("body accumulator = %v, expected %v", body.force, tt.expected)
			}
		})
	}
}

func TestApplyPositionCorrection_GravityResistance(t *testing.T) {
	body := newStubBody()
	body.gravity = true
	cfg := testConfig()
	cfg.GravityResistance = 0.5
	c := mustController(t, body, cfg)

	force := c.ApplyPositionCorrection()
	// mass 2, g -9.81, half resisted
	expected := mgl64.Vec3{0, 9.81, 0}
	if !vecNear(force, expected, tolerance) {
		t.Errorf("force = %v, expected %v", force, expected)
	}

	body.force = mgl64.Vec3{}
	body.gravity = false
	if force := c.ApplyPositionCorrection(); force != (mgl64.Vec3{}) {
		t.Errorf("Gravity-free body should get no compensation, got %v", force)
	}
}

func TestApplyPositionCorrection_ForceCap(t *testing.T) {
	body := newStubBody()
	cfg := testConfig()
	cfg.MaxForce = 5
	c := mustController(t, body, cfg)
	c.SetTarget(&physics.Pose{Position: mgl64.Vec3{30, 0, 40}, Rotation: mgl64.QuatIdent()})

	force := c.ApplyPositionCorrection()
	if math.Abs(force.Len()-5) > tolerance {
		t.Errorf("Expected capped magnitude 5, got %f", force.Len())
	}
	if !vecNear(force.Normalize(), mgl64.Vec3{0.6, 0, 0.8}, tolerance) {
		t.Errorf("Cap changed direction: %v", force.Normalize())
	}
}

func TestApplyRotationCorrection_DampingNeedsRotationAxis(t *testing.T) {
	body := newStubBody()
	body.angularVelocity = mgl64.Vec3{0, 2, 0}

	cfg := testConfig()
	cfg.Axes = AllPosition
	c := mustController(t, body, cfg)
	if torque := c.ApplyRotationCorrection(); torque != (mgl64.Vec3{}) {
		t.Errorf("Expected no torque without rotation axes, got %v", torque)
	}

	cfg.Axes = AxisUp
	c = mustController(t, body, cfg)
	torque := c.ApplyRotationCorrection()
	if !vecNear(torque, mgl64.Vec3{0, -2, 0}, tolerance) {
		t.Errorf("Expected pure damping torque, got %v", torque)
	}
}

func TestApplyRotationCorrection_TurnsTowardsTarget(t *testing.T) {
	body := newStubBody()
	cfg := testConfig()
	cfg.Axes = AxisForward
	cfg.RotationDamping = 0
	c := mustController(t, body, cfg)

	goal := physics.NewPose(mgl64.Vec3{}, physics.AxisAngle(math.Pi/2, physics.Up))
	c.SetTarget(&goal)

	torque := c.ApplyRotationCorrection()
	expected := mgl64.Vec3{0, math.Pi / 2 * cfg.RotationGain, 0}
	if !vecNear(torque, expected, 1e-9) {
		t.Errorf("torque = %v, expected %v", torque, expected)
	}
}

func TestApplyRotationCorrection_TorqueCap(t *testing.T) {
	body := newStubBody()
	body.angularVelocity = mgl64.Vec3{3, 0, 4}
	cfg := testConfig()
	cfg.RotationDamping = 10
	cfg.MaxTorque = 1
	c := mustController(t, body, cfg)

	torque := c.ApplyRotationCorrection()
	if math.Abs(torque.Len()-1) > tolerance {
		t.Errorf("Expected capped torque 1, got %f", torque.Len())
	}
	if !vecNear(torque, mgl64.Vec3{-0.6, 0, -0.8}, tolerance) {
		t.Errorf("Cap changed direction: %v", torque)
	}
}

func TestAlignVectors(t *testing.T) {
	tests := []struct {
		name     string
		current  mgl64.Vec3
		goal     mgl64.Vec3
		reverse  bool
		expected mgl64.Vec3
	}{
		{"quarter_turn", physics.Forward, physics.Right, false, mgl64.Vec3{0, math.Pi / 2, 0}},
		{"quarter_turn_reversed", physics.Forward, physics.Right, true, mgl64.Vec3{0, -3 * math.Pi / 2, 0}},
		{"already_aligned", physics.Up, physics.Up, false, mgl64.Vec3{}},
		{"anti_parallel", physics.Up, physics.Up.Mul(-1), false, mgl64.Vec3{}},
		{"anti_parallel_reversed", physics.Up, physics.Up.Mul(-1), true, mgl64.Vec3{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			torque := AlignVectors(tt.current, tt.goal, 1, tt.reverse)
			if !vecNear(torque, tt.expected, 1e-9) {
				t.Errorf("AlignVectors() = %v, expected %v", torque, tt.expected)
			}
		})
	}
}

func TestForbiddenCone_ReversesThroughCone(t *testing.T) {
	body := newStubBody()
	cfg := testConfig()
	cfg.Axes = AxisForward
	cfg.RotationDamping = 0
	cfg.ForbiddenCone = &ForbiddenCone{Anchor: physics.Right, HalfAngle: math.Pi / 6}
	c := mustController(t, body, cfg)

	// Yaw 150 degrees: the short way from +Z passes straight through +X.
	goal := physics.NewPose(mgl64.Vec3{}, physics.AxisAngle(5*math.Pi/6, physics.Up))
	c.SetTarget(&goal)

	torque := c.ApplyRotationCorrection()
	expected := mgl64.Vec3{0, -(7 * math.Pi / 6) * cfg.RotationGain, 0}
	if !vecNear(torque, expected, 1e-6) {
		t.Errorf("torque = %v, expected %v", torque, expected)
	}
}

func TestForbiddenCone_ShortPathClear(t *testing.T) {
	body := newStubBody()
	cfg := testConfig()
	cfg.Axes = AxisForward
	cfg.RotationDamping = 0
	cfg.ForbiddenCone = &ForbiddenCone{Anchor: physics.Right.Mul(-1), HalfAngle: math.Pi / 6}
	c := mustController(t, body, cfg)

	goal := physics.NewPose(mgl64.Vec3{}, physics.AxisAngle(math.Pi/3, physics.Up))
	c.SetTarget(&goal)

	torque := c.ApplyRotationCorrection()
	if torque.Y() <= 0 {
		t.Errorf("Expected short positive turn, got %v", torque)
	}
}

func TestClampOutsideCone(t *testing.T) {
	anchor := physics.Right
	half := math.Pi / 6

	goal := physics.LookRotation(anchor, physics.Up)
	clamped := clampOutsideCone(goal, anchor, half)
	angle := physics.AngleBetween(clamped.Rotate(physics.Forward), anchor)
	if math.Abs(angle-half) > 1e-9 {
		t.Errorf("Expected forward pushed to cone surface (%f), got %f", half, angle)
	}

	outside := physics.LookRotation(physics.Forward, physics.Up)
	if got := clampOutsideCone(outside, anchor, half); !(vecNear(got.V, outside.V, tolerance) && math.Abs(got.W-outside.W) <= tolerance) {
		t.Errorf("Goal outside the cone should be untouched, got %v", got)
	}
}

func TestSetGravityResistance_Clamps(t *testing.T) {
	c := mustController(t, newStubBody(), testConfig())

	tests := []struct {
		in, want float64
	}{
		{0.3, 0.3},
		{-1, 0},
		{2, 1},
	}
	for _, tt := range tests {
		c.SetGravityResistance(tt.in)
		if c.GravityResistance() != tt.want {
			t.Errorf("SetGravityResistance(%v) -> %v, want %v", tt.in, c.GravityResistance(), tt.want)
		}
	}
}

func TestCollisionEventsRepublished(t *testing.T) {
	c := mustController(t, newStubBody(), testConfig())

	var got []event.Type
	var layer int
	c.Events().Subscribe(event.CollisionEnter, func(e event.Event) {
		got = append(got, e.GetType())
		layer = e.(*event.CollisionEvent).Layer
	})
	c.Events().Subscribe(event.CollisionExit, func(e event.Event) {
		got = append(got, e.GetType())
	})

	c.HandleCollisionEnter(physics.Collision{Layer: physics.LayerGround, Normal: physics.Up})
	c.HandleCollisionExit(physics.Collision{Layer: physics.LayerGround})

	if len(got) != 2 || got[0] != event.CollisionEnter || got[1] != event.CollisionExit {
		t.Errorf("Unexpected event sequence %v", got)
	}
	if layer != int(physics.LayerGround) {
		t.Errorf("Expected ground layer, got %d", layer)
	}
}

func TestStep_PositionThenRotation(t *testing.T) {
	body := newStubBody()
	body.velocity = mgl64.Vec3{1, 0, 0}
	body.angularVelocity = mgl64.Vec3{0, 1, 0}
	c := mustController(t, body, testConfig())

	c.Step()

	if body.force == (mgl64.Vec3{}) || body.torque == (mgl64.Vec3{}) {
		t.Errorf("Step should apply both force and torque, got %v / %v", body.force, body.torque)
	}
}
