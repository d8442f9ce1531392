// pkg/config/config.go
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/spf13/viper"

	"github.com/opd-ai/go-mech/pkg/align"
	"github.com/opd-ai/go-mech/pkg/gait"
	"github.com/opd-ai/go-mech/pkg/ik"
	"github.com/opd-ai/go-mech/pkg/logging"
	"github.com/opd-ai/go-mech/pkg/mech"
	"github.com/opd-ai/go-mech/pkg/physics"
)

// EnvPrefix prefixes environment overrides: MECH_MECH_MAXHEALTH=250 sets
// mech.maxHealth.
const EnvPrefix = "MECH"

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the on-disk configuration of a simulation run. Angles are in
// degrees, everything else in SI units.
type Config struct {
	Simulation SimulationConfig `json:"simulation" mapstructure:"simulation"`
	Body       BodyConfig       `json:"body" mapstructure:"body"`
	Alignment  AlignmentConfig  `json:"alignment" mapstructure:"alignment"`
	Mech       MechConfig       `json:"mech" mapstructure:"mech"`
	Hips       HipsConfig       `json:"hips" mapstructure:"hips"`
	Legs       []LegConfig      `json:"legs" mapstructure:"legs"`
	Logging    LoggingConfig    `json:"logging" mapstructure:"logging"`
}

// SimulationConfig contains the fixed-step and world settings.
type SimulationConfig struct {
	PhysicsStep   float64    `json:"physicsStep" mapstructure:"physicsStep"`
	MaxFrameDelta float64    `json:"maxFrameDelta" mapstructure:"maxFrameDelta"`
	Gravity       mgl64.Vec3 `json:"gravity" mapstructure:"gravity"`
	GroundHeight  float64    `json:"groundHeight" mapstructure:"groundHeight"`
	GroundLayer   int        `json:"groundLayer" mapstructure:"groundLayer"`
}

// BodyConfig describes the mech's main rigid body.
type BodyConfig struct {
	Mass            float64    `json:"mass" mapstructure:"mass"`
	Inertia         float64    `json:"inertia" mapstructure:"inertia"`
	Radius          float64    `json:"radius" mapstructure:"radius"`
	Spawn           mgl64.Vec3 `json:"spawn" mapstructure:"spawn"`
	SpawnHeadingDeg float64    `json:"spawnHeadingDeg" mapstructure:"spawnHeadingDeg"`
}

// ConeConfig is the optional forbidden cone of the base controller.
type ConeConfig struct {
	Anchor       mgl64.Vec3 `json:"anchor" mapstructure:"anchor"`
	HalfAngleDeg float64    `json:"halfAngleDeg" mapstructure:"halfAngleDeg"`
}

// AlignmentConfig tunes the base alignment controller.
type AlignmentConfig struct {
	Axes               []string    `json:"axes" mapstructure:"axes"`
	PositionGain       float64     `json:"positionGain" mapstructure:"positionGain"`
	PositionDamping    float64     `json:"positionDamping" mapstructure:"positionDamping"`
	MaxForce           float64     `json:"maxForce" mapstructure:"maxForce"`
	RotationGain       float64     `json:"rotationGain" mapstructure:"rotationGain"`
	RotationDamping    float64     `json:"rotationDamping" mapstructure:"rotationDamping"`
	MaxTorque          float64     `json:"maxTorque" mapstructure:"maxTorque"`
	MaxAngularSpeedDeg float64     `json:"maxAngularSpeedDeg" mapstructure:"maxAngularSpeedDeg"`
	ForbiddenCone      *ConeConfig `json:"forbiddenCone,omitempty" mapstructure:"forbiddenCone"`
}

// MechConfig tunes locomotion and combat.
type MechConfig struct {
	MaxHealth           float64    `json:"maxHealth" mapstructure:"maxHealth"`
	MoveForce           float64    `json:"moveForce" mapstructure:"moveForce"`
	MaxMove             float64    `json:"maxMove" mapstructure:"maxMove"`
	MoveDamping         float64    `json:"moveDamping" mapstructure:"moveDamping"`
	AirborneMoveDamping float64    `json:"airborneMoveDamping" mapstructure:"airborneMoveDamping"`
	TurnMode            string     `json:"turnMode" mapstructure:"turnMode"`
	TurnTorque          float64    `json:"turnTorque" mapstructure:"turnTorque"`
	MaxTurnSpeedDeg     float64    `json:"maxTurnSpeedDeg" mapstructure:"maxTurnSpeedDeg"`
	TurnDamping         float64    `json:"turnDamping" mapstructure:"turnDamping"`
	TurnSpeedDeg        float64    `json:"turnSpeedDeg" mapstructure:"turnSpeedDeg"`
	MaxTurnDeg          float64    `json:"maxTurnDeg" mapstructure:"maxTurnDeg"`
	AirborneTurnDamping float64    `json:"airborneTurnDamping" mapstructure:"airborneTurnDamping"`
	JumpForce           mgl64.Vec3 `json:"jumpForce" mapstructure:"jumpForce"`
	BoostForce          mgl64.Vec3 `json:"boostForce" mapstructure:"boostForce"`
	MaxFuel             float64    `json:"maxFuel" mapstructure:"maxFuel"`
	BoostCost           float64    `json:"boostCost" mapstructure:"boostCost"`
	GravityResistance   float64    `json:"gravityResistance" mapstructure:"gravityResistance"`
}

// HipsConfig tunes the upper body facing.
type HipsConfig struct {
	VelocityThreshold float64 `json:"velocityThreshold" mapstructure:"velocityThreshold"`
}

// FootConfig tunes one foot placer.
type FootConfig struct {
	DefaultOffset     mgl64.Vec3 `json:"defaultOffset" mapstructure:"defaultOffset"`
	Threshold         float64    `json:"threshold" mapstructure:"threshold"`
	SidestepThreshold float64    `json:"sidestepThreshold" mapstructure:"sidestepThreshold"`
	SidestepAngleDeg  float64    `json:"sidestepAngleDeg" mapstructure:"sidestepAngleDeg"`
	VelocityWeight    float64    `json:"velocityWeight" mapstructure:"velocityWeight"`
	LerpSpeed         float64    `json:"lerpSpeed" mapstructure:"lerpSpeed"`
	LiftHeight        float64    `json:"liftHeight" mapstructure:"liftHeight"`
	SlideSpeed        float64    `json:"slideSpeed" mapstructure:"slideSpeed"`
}

// LegConfig is one leg. Root, Elbow and End are rest positions in the body
// frame.
type LegConfig struct {
	Name         string     `json:"name" mapstructure:"name"`
	Root         mgl64.Vec3 `json:"root" mapstructure:"root"`
	Elbow        mgl64.Vec3 `json:"elbow" mapstructure:"elbow"`
	End          mgl64.Vec3 `json:"end" mapstructure:"end"`
	AttachOffset mgl64.Vec3 `json:"attachOffset" mapstructure:"attachOffset"`
	LockWrist    bool       `json:"lockWrist" mapstructure:"lockWrist"`
	Foot         FootConfig `json:"foot" mapstructure:"foot"`
}

// LoggingConfig selects the log level; MECH_LOG_LEVEL still wins.
type LoggingConfig struct {
	Level string `json:"level" mapstructure:"level"`
}

// DefaultConfig returns a one tonne biped on flat ground stepped at 50 Hz.
func DefaultConfig() *Config {
	m := mech.DefaultConfig()
	a := align.DefaultConfig()

	return &Config{
		Simulation: SimulationConfig{
			PhysicsStep:   0.02,
			MaxFrameDelta: 0.25,
			Gravity:       physics.DefaultGravity,
			GroundHeight:  0,
			GroundLayer:   int(physics.LayerGround),
		},
		Body: BodyConfig{
			Mass:    1000,
			Inertia: 500,
			Radius:  1,
			Spawn:   mgl64.Vec3{0, 3, 0},
		},
		Alignment: AlignmentConfig{
			Axes:               []string{"up", "forward"},
			PositionGain:       a.PositionGain,
			PositionDamping:    a.PositionDamping,
			RotationGain:       6000,
			RotationDamping:    1500,
			MaxAngularSpeedDeg: mgl64.RadToDeg(a.MaxAngularSpeed),
		},
		Mech: MechConfig{
			MaxHealth:           m.MaxHealth,
			MoveForce:           m.MoveForce,
			MaxMove:             m.MaxMove,
			MoveDamping:         m.MoveDamping,
			AirborneMoveDamping: m.AirborneMoveDamping,
			TurnMode:            m.TurnMode.String(),
			TurnTorque:          m.TurnTorque,
			MaxTurnSpeedDeg:     mgl64.RadToDeg(m.MaxTurnSpeed),
			TurnDamping:         m.TurnDamping,
			TurnSpeedDeg:        mgl64.RadToDeg(m.TurnSpeed),
			MaxTurnDeg:          mgl64.RadToDeg(m.MaxTurn),
			AirborneTurnDamping: m.AirborneTurnDamping,
			JumpForce:           m.JumpForce,
			BoostForce:          m.BoostForce,
			MaxFuel:             m.MaxFuel,
			BoostCost:           m.BoostCost,
			GravityResistance:   m.GravityResistance,
		},
		Hips: HipsConfig{VelocityThreshold: gait.DefaultHipsThreshold},
		Legs: []LegConfig{
			defaultLeg("left", -0.3),
			defaultLeg("right", 0.3),
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

func defaultLeg(name string, side float64) LegConfig {
	g := gait.DefaultConfig()
	return LegConfig{
		Name:  name,
		Root:  mgl64.Vec3{side, 0.6, 0},
		Elbow: mgl64.Vec3{side, -0.3, 0.4},
		End:   mgl64.Vec3{side, -1, 0},
		Foot: FootConfig{
			DefaultOffset:     mgl64.Vec3{side, -1, 0},
			Threshold:         g.Threshold,
			SidestepThreshold: g.SidestepThreshold,
			SidestepAngleDeg:  mgl64.RadToDeg(g.SidestepAngle),
			VelocityWeight:    g.VelocityWeight,
			LerpSpeed:         g.LerpSpeed,
			LiftHeight:        g.LiftHeight,
			SlideSpeed:        g.SlideSpeed,
		},
	}
}

// Load reads the built-in defaults, merges the file at path on top (JSON,
// YAML or TOML by extension; empty path means defaults only) and applies
// MECH_ environment overrides. The result is validated.
func Load(path string) (*Config, error) {
	v := viper.New()

	defaults, err := json.Marshal(DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal defaults: %w", err)
	}
	v.SetConfigType("json")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, fmt.Errorf("failed to read defaults: %w", err)
	}

	if path != "" {
		if ext := strings.TrimPrefix(filepath.Ext(path), "."); ext != "" {
			v.SetConfigType(ext)
		}
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SaveConfig writes cfg to path as indented JSON.
func SaveConfig(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks every section, including the conversions into the package
// configs, and reports all problems in one error.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	sim := c.Simulation
	if !(sim.PhysicsStep > 0) || sim.PhysicsStep > 1 {
		add("simulation.physicsStep must be within (0,1], got %v", sim.PhysicsStep)
	}
	if !(sim.MaxFrameDelta >= sim.PhysicsStep) {
		add("simulation.maxFrameDelta must be >= physicsStep, got %v", sim.MaxFrameDelta)
	}
	if !physics.IsFinite(sim.Gravity) {
		add("simulation.gravity must be finite")
	}

	if !(c.Body.Mass > 0) {
		add("body.mass must be positive, got %v", c.Body.Mass)
	}
	if !(c.Body.Inertia > 0) {
		add("body.inertia must be positive, got %v", c.Body.Inertia)
	}
	if !(c.Body.Radius > 0) {
		add("body.radius must be positive, got %v", c.Body.Radius)
	}
	if !physics.IsFinite(c.Body.Spawn) {
		add("body.spawn must be finite")
	}

	if _, err := c.ToAlignment(); err != nil {
		add("alignment: %v", err)
	}
	if _, err := c.ToMech(); err != nil {
		add("mech: %v", err)
	}
	if c.Hips.VelocityThreshold < 0 {
		add("hips.velocityThreshold must be >= 0, got %v", c.Hips.VelocityThreshold)
	}

	if len(c.Legs) != 2 {
		add("exactly two legs are required, got %d", len(c.Legs))
	}
	seen := make(map[string]bool)
	for i, leg := range c.Legs {
		if leg.Name == "" {
			add("legs[%d].name must be set", i)
		} else if seen[leg.Name] {
			add("legs[%d].name %q is duplicated", i, leg.Name)
		}
		seen[leg.Name] = true

		if _, err := ik.NewSolver(leg.ToChain(physics.Pose{Rotation: mgl64.QuatIdent()}), leg.ToSolver()); err != nil {
			add("legs[%d]: %v", i, err)
		}
		if err := leg.ToGait().Validate(); err != nil {
			add("legs[%d]: %v", i, err)
		}
	}

	if _, ok := logging.ParseLevel(c.Logging.Level); !ok && c.Logging.Level != "" {
		add("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// ToAlignment converts the alignment section.
func (c *Config) ToAlignment() (align.Config, error) {
	a := c.Alignment
	axes, err := align.ParseAxes(a.Axes)
	if err != nil {
		return align.Config{}, err
	}

	cfg := align.Config{
		Axes:            axes,
		PositionGain:    a.PositionGain,
		PositionDamping: a.PositionDamping,
		MaxForce:        a.MaxForce,
		RotationGain:    a.RotationGain,
		RotationDamping: a.RotationDamping,
		MaxTorque:       a.MaxTorque,
		MaxAngularSpeed: mgl64.DegToRad(a.MaxAngularSpeedDeg),
		Gravity:         c.Simulation.Gravity,
	}
	if cone := a.ForbiddenCone; cone != nil {
		cfg.ForbiddenCone = &align.ForbiddenCone{
			Anchor:    cone.Anchor,
			HalfAngle: mgl64.DegToRad(cone.HalfAngleDeg),
		}
	}
	return cfg, cfg.Validate()
}

// ToMech converts the mech section.
func (c *Config) ToMech() (mech.Config, error) {
	m := c.Mech
	mode, err := mech.ParseTurnMode(m.TurnMode)
	if err != nil {
		return mech.Config{}, err
	}

	cfg := mech.Config{
		MaxHealth:           m.MaxHealth,
		MoveForce:           m.MoveForce,
		MaxMove:             m.MaxMove,
		MoveDamping:         m.MoveDamping,
		AirborneMoveDamping: m.AirborneMoveDamping,
		TurnMode:            mode,
		TurnTorque:          m.TurnTorque,
		MaxTurnSpeed:        mgl64.DegToRad(m.MaxTurnSpeedDeg),
		TurnDamping:         m.TurnDamping,
		TurnSpeed:           mgl64.DegToRad(m.TurnSpeedDeg),
		MaxTurn:             mgl64.DegToRad(m.MaxTurnDeg),
		AirborneTurnDamping: m.AirborneTurnDamping,
		JumpForce:           m.JumpForce,
		BoostForce:          m.BoostForce,
		MaxFuel:             m.MaxFuel,
		BoostCost:           m.BoostCost,
		GravityResistance:   m.GravityResistance,
		GroundLayer:         physics.Layer(c.Simulation.GroundLayer),
	}
	return cfg, cfg.Validate()
}

// LogLevel resolves the effective log level.
func (c *Config) LogLevel() slog.Level {
	return logging.LevelFor(c.Logging.Level)
}

// ToChain places the leg's rest nodes in world space under body.
func (l LegConfig) ToChain(body physics.Pose) ik.Chain {
	node := func(local mgl64.Vec3) physics.Pose {
		return physics.NewPose(body.TransformPoint(local), body.Rotation)
	}
	return ik.Chain{
		Root:  node(l.Root),
		Elbow: node(l.Elbow),
		End:   node(l.End),
	}
}

// ToSolver returns the leg's solver options. Legs bend around the body's
// right axis.
func (l LegConfig) ToSolver() ik.Config {
	return ik.Config{
		BendAxis:     physics.Right,
		AttachOffset: l.AttachOffset,
		LockWrist:    l.LockWrist,
	}
}

// ToGait converts the leg's foot section.
func (l LegConfig) ToGait() gait.Config {
	f := l.Foot
	return gait.Config{
		DefaultOffset:     f.DefaultOffset,
		Threshold:         f.Threshold,
		SidestepThreshold: f.SidestepThreshold,
		SidestepAngle:     mgl64.DegToRad(f.SidestepAngleDeg),
		VelocityWeight:    f.VelocityWeight,
		LerpSpeed:         f.LerpSpeed,
		LiftHeight:        f.LiftHeight,
		SlideSpeed:        f.SlideSpeed,
	}
}
