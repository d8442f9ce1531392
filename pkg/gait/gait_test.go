package gait

import (
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/opd-ai/go-mech/pkg/event"
	"github.com/opd-ai/go-mech/pkg/physics"
)

func vecNear(a, b mgl64.Vec3, tol float64) bool {
	return a.Sub(b).Len() <= tol*math.Max(1, b.Len())
}

type fakeMech struct {
	dead     bool
	airborne bool
	velocity mgl64.Vec3
}

func (m *fakeMech) Dead() bool           { return m.dead }
func (m *fakeMech) Airborne() bool       { return m.airborne }
func (m *fakeMech) Velocity() mgl64.Vec3 { return m.velocity }

type fakeFrame struct {
	position mgl64.Vec3
	rotation mgl64.Quat
}

func (f *fakeFrame) Position() mgl64.Vec3 { return f.position }
func (f *fakeFrame) Rotation() mgl64.Quat { return f.rotation }

type rig struct {
	base  *fakeFrame
	mech  *fakeMech
	left  *FootPlacer
	right *FootPlacer
	falls []*event.FootfallEvent
}

func newRig(t *testing.T) *rig {
	t.Helper()
	r := &rig{
		base: &fakeFrame{rotation: mgl64.QuatIdent()},
		mech: &fakeMech{},
	}
	bus := event.NewEventBus()
	bus.Subscribe(event.Footfall, func(e event.Event) {
		r.falls = append(r.falls, e.(*event.FootfallEvent))
	})

	leftCfg := DefaultConfig()
	leftCfg.DefaultOffset = mgl64.Vec3{-0.3, -1, 0}
	rightCfg := DefaultConfig()
	rightCfg.DefaultOffset = mgl64.Vec3{0.3, -1, 0}

	var err error
	if r.left, err = NewFootPlacer("left", r.base, r.mech, leftCfg, bus); err != nil {
		t.Fatalf("NewFootPlacer(left) error = %v", err)
	}
	if r.right, err = NewFootPlacer("right", r.base, r.mech, rightCfg, bus); err != nil {
		t.Fatalf("NewFootPlacer(right) error = %v", err)
	}
	Pair(r.left, r.right)
	return r
}

func (r *rig) update(dt float64) {
	r.left.Update(dt)
	r.right.Update(dt)
}

func TestNewFootPlacer_RestPose(t *testing.T) {
	r := newRig(t)

	want := mgl64.Vec3{-0.3, -1, 0}
	if !vecNear(r.left.Pose().Position, want, 1e-12) {
		t.Errorf("left foot at %v, want %v", r.left.Pose().Position, want)
	}
	if r.left.Moving() || r.left.Progress() != 1 {
		t.Error("new foot should be planted")
	}
}

func TestNewFootPlacer_Invalid(t *testing.T) {
	base := &fakeFrame{rotation: mgl64.QuatIdent()}

	if _, err := NewFootPlacer("x", nil, &fakeMech{}, DefaultConfig(), nil); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("nil base: expected ErrInvalidConfig, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero_lerp_speed", func(c *Config) { c.LerpSpeed = 0 }},
		{"negative_threshold", func(c *Config) { c.Threshold = -1 }},
		{"nan_lift", func(c *Config) { c.LiftHeight = math.NaN() }},
		{"infinite_offset", func(c *Config) { c.DefaultOffset = mgl64.Vec3{math.Inf(1), 0, 0} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if _, err := NewFootPlacer("x", base, &fakeMech{}, cfg, nil); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestFootPlacer_StandingStill(t *testing.T) {
	r := newRig(t)
	for i := 0; i < 50; i++ {
		r.update(0.01)
	}
	if r.left.Moving() || r.right.Moving() || len(r.falls) != 0 {
		t.Error("feet should stay planted while the base is still")
	}
}

func TestFootPlacer_WalkForward(t *testing.T) {
	r := newRig(t)
	r.update(0.01)

	r.base.position = mgl64.Vec3{0, 0, 1}
	r.mech.velocity = mgl64.Vec3{0, 0, 2}
	r.update(0.01)

	if !r.left.Moving() || r.right.Moving() {
		t.Fatalf("expected only the left foot to step, got left=%v right=%v", r.left.Moving(), r.right.Moving())
	}
	wantGoal := mgl64.Vec3{-0.3, 0, 2.5}
	if !vecNear(r.left.Goal(), wantGoal, 1e-12) {
		t.Errorf("step goal = %v, want %v", r.left.Goal(), wantGoal)
	}

	maxLift := 0.0
	for i := 0; i < 20 && r.left.Moving(); i++ {
		r.update(0.01)
		lift := r.left.Pose().Position.Y() + 1
		maxLift = math.Max(maxLift, lift)
		if lift < -1e-12 || lift > r.left.Config().LiftHeight+1e-12 {
			t.Fatalf("lift %f outside [0, %f]", lift, r.left.Config().LiftHeight)
		}
	}

	if r.left.Moving() {
		t.Fatal("step should finish")
	}
	if maxLift <= 0 {
		t.Error("foot never lifted during the step")
	}
	want := mgl64.Vec3{-0.3, -1, 2.5}
	if !vecNear(r.left.Pose().Position, want, 1e-12) {
		t.Errorf("left foot landed at %v, want %v", r.left.Pose().Position, want)
	}
	if len(r.falls) != 1 {
		t.Fatalf("expected one footfall, got %d", len(r.falls))
	}
	if r.falls[0].Foot != "left" || r.falls[0].Impact != 2 {
		t.Errorf("unexpected footfall %+v", r.falls[0])
	}
}

func TestFootPlacer_Sidestep(t *testing.T) {
	r := newRig(t)
	r.update(0.01)

	r.base.position = mgl64.Vec3{0.4, 0, 0}
	r.mech.velocity = mgl64.Vec3{1, 0, 0}
	r.update(0.01)

	if r.left.Moving() || !r.right.Moving() {
		t.Fatalf("expected the closer right foot to sidestep, got left=%v right=%v", r.left.Moving(), r.right.Moving())
	}
	wantGoal := mgl64.Vec3{1.7, 0, 0}
	if !vecNear(r.right.Goal(), wantGoal, 1e-12) {
		t.Errorf("sidestep goal = %v, want %v", r.right.Goal(), wantGoal)
	}
}

func TestFootPlacer_SlidesAboveSpeed(t *testing.T) {
	r := newRig(t)
	r.update(0.01)

	r.mech.velocity = mgl64.Vec3{0, 0, 12}
	r.update(0.01)
	if !r.left.Sliding() {
		t.Fatal("foot should slide above the slide speed")
	}

	r.base.position = mgl64.Vec3{0, 0, 5}
	r.update(0.01)
	want := mgl64.Vec3{-0.3, -1, 5}
	if !vecNear(r.left.Pose().Position, want, 1e-12) {
		t.Errorf("sliding foot at %v, want %v", r.left.Pose().Position, want)
	}

	r.mech.velocity = mgl64.Vec3{0, 0, 0.1}
	r.update(0.01)
	if r.left.Sliding() {
		t.Error("foot should resume walking")
	}
	if !vecNear(r.left.Pose().Position, want, 1e-12) {
		t.Errorf("foot jumped to %v when walking resumed", r.left.Pose().Position)
	}
	if len(r.falls) != 0 {
		t.Errorf("sliding should not produce footfalls, got %d", len(r.falls))
	}
}

func TestFootPlacer_DeadMechDoesNotStep(t *testing.T) {
	r := newRig(t)
	r.mech.dead = true
	r.base.position = mgl64.Vec3{0, 0, 1}
	r.mech.velocity = mgl64.Vec3{0, 0, 2}

	for i := 0; i < 30; i++ {
		r.update(0.01)
	}
	if len(r.falls) != 0 {
		t.Errorf("dead mech produced %d footfalls", len(r.falls))
	}
	if !r.left.Sliding() {
		t.Error("dead mech's feet should be dragged")
	}
}

func TestFootPlacer_LandingFootfall(t *testing.T) {
	r := newRig(t)
	r.mech.airborne = true
	r.update(0.01)
	r.update(0.01)
	if len(r.falls) != 0 {
		t.Fatalf("airborne feet produced %d footfalls", len(r.falls))
	}

	r.mech.airborne = false
	r.mech.velocity = mgl64.Vec3{0, -4, 0}
	r.update(0.01)
	if len(r.falls) != 2 {
		t.Fatalf("landing should thump both feet, got %d", len(r.falls))
	}
	if r.falls[0].Impact != 4 {
		t.Errorf("impact = %f, want 4", r.falls[0].Impact)
	}

	r.update(0.01)
	if len(r.falls) != 2 {
		t.Error("landing should be reported once")
	}
}

func TestFootPlacer_BendAxisFollowsBase(t *testing.T) {
	r := newRig(t)
	r.base.rotation = physics.AxisAngle(math.Pi/2, physics.Up)
	axis := r.left.BendAxis()
	want := mgl64.Vec3{0, 0, -1}
	if !vecNear(axis, want, 1e-12) {
		t.Errorf("BendAxis() = %v, want %v", axis, want)
	}
}

func TestHips(t *testing.T) {
	mech := &fakeMech{}
	hips := NewHips(mech, physics.Forward, DefaultHipsThreshold)

	mech.velocity = mgl64.Vec3{0.05, 0, 0}
	hips.Update()
	if hips.Forward() != physics.Forward {
		t.Errorf("slow drift turned hips to %v", hips.Forward())
	}

	mech.velocity = mgl64.Vec3{2, 0, 0}
	rot := hips.Update()
	if got := rot.Rotate(physics.Forward); !vecNear(got, mgl64.Vec3{1, 0, 0}, 1e-9) {
		t.Errorf("hips face %v, want +X", got)
	}

	mech.dead = true
	mech.velocity = mgl64.Vec3{0, 0, -3}
	hips.Update()
	if hips.Forward() != (mgl64.Vec3{2, 0, 0}) {
		t.Errorf("dead hips turned to %v", hips.Forward())
	}
}

func TestHips_ZeroForward(t *testing.T) {
	hips := NewHips(&fakeMech{}, mgl64.Vec3{}, -1)
	if hips.Forward() != physics.Forward {
		t.Errorf("zero forward should default to +Z, got %v", hips.Forward())
	}
}
