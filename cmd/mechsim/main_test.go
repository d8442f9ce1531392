package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/opd-ai/go-mech/pkg/config"
	"github.com/opd-ai/go-mech/pkg/engine"
	"github.com/opd-ai/go-mech/pkg/logging"
)

func TestParseOptions(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
		check   func(t *testing.T, o options)
	}{
		{
			name: "defaults",
			check: func(t *testing.T, o options) {
				if o.seconds != 20 || o.realtime || o.frame != time.Second/60 || o.configPath != "" {
					t.Errorf("unexpected defaults %+v", o)
				}
			},
		},
		{
			name: "all flags",
			args: []string{"-c", "mech.yaml", "--seconds", "5", "--realtime", "--frame", "10ms", "--health-addr", ":9090", "--view"},
			check: func(t *testing.T, o options) {
				if o.configPath != "mech.yaml" || o.seconds != 5 || !o.realtime || o.frame != 10*time.Millisecond || o.healthAddr != ":9090" || !o.view {
					t.Errorf("flags not parsed: %+v", o)
				}
			},
		},
		{name: "write default without path", args: []string{"--write-default"}, wantErr: true},
		{name: "zero seconds", args: []string{"--seconds", "0"}, wantErr: true},
		{name: "negative frame", args: []string{"--frame", "-1s"}, wantErr: true},
		{name: "unknown flag", args: []string{"--warp"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := parseOptions(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseOptions(%v) error = %v, wantErr %v", tt.args, err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, o)
			}
		})
	}
}

func TestRun_WriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mech.json")
	var out bytes.Buffer

	err := run(context.Background(), options{configPath: path, writeDefault: true, seconds: 1, frame: time.Second / 60}, &out)
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("written config does not load: %v", err)
	}
	if cfg.Mech.MaxHealth != config.DefaultConfig().Mech.MaxHealth {
		t.Error("written config differs from defaults")
	}
}

func TestRun_ScriptedScenario(t *testing.T) {
	t.Setenv(logging.LevelEnvVar, "info")
	var out bytes.Buffer

	err := run(context.Background(), options{seconds: 30, frame: time.Second / 60}, &out)
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}

	log := out.String()
	for _, phase := range []string{"land", "walk", "turn", "jump", "boost", "settle", "damage"} {
		if !strings.Contains(log, `"phase":"`+phase+`"`) {
			t.Errorf("log has no summary for phase %s", phase)
		}
	}
	for _, want := range []string{"rig destroyed", "Scenario finished", `"phases":7`} {
		if !strings.Contains(log, want) {
			t.Errorf("log missing %q", want)
		}
	}
}

func TestRun_View(t *testing.T) {
	var out bytes.Buffer

	err := run(context.Background(), options{seconds: 2, frame: time.Second / 60, view: true}, &out)
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}

	border := "+" + strings.Repeat("-", viewWidth) + "+"
	if got := strings.Count(out.String(), border); got < 2 {
		t.Errorf("expected at least one framed view, found %d borders", got)
	}
	if !strings.Contains(out.String(), "P") || !strings.Contains(out.String(), "S") {
		t.Error("view should show the pilot and the sentinel")
	}
}

func TestScenario_Phases(t *testing.T) {
	sim, err := engine.NewSimulation(config.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("NewSimulation() error = %v", err)
	}
	defer sim.Close()

	script, err := newScenario(sim, logging.NewDiscardLogger())
	if err != nil {
		t.Fatalf("newScenario() error = %v", err)
	}

	const dt = 1.0 / 60
	ctx := context.Background()
	for i := 0; i < 60*30 && !script.Done(); i++ {
		script.Frame(ctx, dt)
		sim.Advance(dt)
	}
	if !script.Done() {
		t.Fatal("scenario did not finish")
	}

	byName := make(map[string]phaseSummary)
	for _, s := range script.summaries {
		byName[s.Phase] = s
	}

	if s := byName["land"].State; s.Airborne {
		t.Error("pilot should have landed during the first phase")
	}
	walk := byName["walk"]
	if walk.State.Position.Z() < 3 || walk.Footfalls == 0 {
		t.Errorf("walk phase ended at %v with %d footfalls", walk.State.Position, walk.Footfalls)
	}
	if byName["turn"].State.YawDeg <= byName["walk"].State.YawDeg {
		t.Errorf("turn phase should yaw right: %v -> %v", byName["walk"].State.YawDeg, byName["turn"].State.YawDeg)
	}
	if fuel := byName["boost"].State.Fuel; fuel >= sim.Config.Mech.MaxFuel {
		t.Errorf("boost should burn fuel, have %v", fuel)
	}
	if settle := byName["settle"].State; settle.Airborne {
		t.Error("pilot should be back on the ground after settling")
	}
	damage := byName["damage"]
	if !damage.State.Dead || damage.State.Health > 0 {
		t.Errorf("pilot should die in the damage phase: %+v", damage.State)
	}
	if script.sentinel.Mech().Dead() {
		t.Error("sentinel should survive")
	}
}
