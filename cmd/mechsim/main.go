// cmd/mechsim/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/opd-ai/go-mech/pkg/config"
	"github.com/opd-ai/go-mech/pkg/engine"
	"github.com/opd-ai/go-mech/pkg/health"
	"github.com/opd-ai/go-mech/pkg/logging"
	"github.com/opd-ai/go-mech/pkg/render"
)

// Size of the --view frame; each cell is half a meter.
const (
	viewWidth  = 60
	viewHeight = 20
	viewScale  = 0.5
)

type options struct {
	configPath   string
	writeDefault bool
	seconds      float64
	realtime     bool
	frame        time.Duration
	healthAddr   string
	maxMemoryMB  int64
	view         bool
}

func parseOptions(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("mechsim", flag.ContinueOnError)
	fs.StringVarP(&opts.configPath, "config", "c", "", "Path to a JSON, YAML or TOML configuration file")
	fs.BoolVar(&opts.writeDefault, "write-default", false, "Write the default configuration to --config and exit")
	fs.Float64Var(&opts.seconds, "seconds", 20, "Simulated seconds to run before stopping")
	fs.BoolVar(&opts.realtime, "realtime", false, "Pace frames against the wall clock")
	fs.DurationVar(&opts.frame, "frame", time.Second/60, "Frame period")
	fs.StringVar(&opts.healthAddr, "health-addr", "", "Serve /health and /ready on this address in realtime mode")
	fs.Int64Var(&opts.maxMemoryMB, "max-memory-mb", 500, "Heap limit reported by /ready")
	fs.BoolVar(&opts.view, "view", false, "Draw a top-down view of the rigs after every phase")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	if opts.writeDefault && opts.configPath == "" {
		return opts, errors.New("--write-default needs --config")
	}
	if !(opts.seconds > 0) {
		return opts, fmt.Errorf("--seconds must be positive, got %v", opts.seconds)
	}
	if opts.frame <= 0 {
		return opts, fmt.Errorf("--frame must be positive, got %v", opts.frame)
	}
	return opts, nil
}

func main() {
	opts, err := parseOptions(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	logger := logging.NewLogger()
	ctx := logging.WithCorrelationID(context.Background(), "")
	if err != nil {
		logger.Error(ctx, "Invalid arguments", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdout); err != nil {
		logger.Error(ctx, "Simulation failed", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, out io.Writer) error {
	if opts.writeDefault {
		if err := config.SaveConfig(config.DefaultConfig(), opts.configPath); err != nil {
			return logging.WrapError(err, "writing default configuration to %s", opts.configPath)
		}
		logging.NewLoggerWithWriter(out, logging.LevelFor("")).Info(ctx,
			"Created default configuration file", "config_path", opts.configPath)
		return nil
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	logger := logging.NewLoggerWithWriter(out, cfg.LogLevel())

	sim, err := engine.NewSimulation(cfg, logger)
	if err != nil {
		return err
	}
	defer sim.Close()

	script, err := newScenario(sim, logger)
	if err != nil {
		return err
	}
	if opts.view {
		script.view = render.NewTerminalRenderer(viewWidth, viewHeight, viewScale)
		script.out = out
	}

	logger.Info(ctx, "Starting scenario",
		"config_path", opts.configPath,
		"seconds", opts.seconds,
		"realtime", opts.realtime,
		"run_id", sim.RunID(),
	)

	if opts.realtime {
		err = runRealtime(ctx, opts, sim, script, logger)
	} else {
		runFixed(ctx, opts, sim, script)
	}
	script.Finish(ctx)

	logger.Info(ctx, "Scenario finished",
		"phases", len(script.summaries),
		"ticks", sim.Tick(),
		"elapsed", sim.Elapsed(),
	)
	return err
}

// runFixed advances with a constant frame delta as fast as possible.
func runFixed(ctx context.Context, opts options, sim *engine.Simulation, script *scenario) {
	dt := opts.frame.Seconds()
	for !script.Done() && sim.Elapsed() < opts.seconds && ctx.Err() == nil {
		script.Frame(ctx, dt)
		sim.Advance(dt)
	}
}

// runRealtime paces frames with the wall clock and optionally serves health
// probes while running.
func runRealtime(ctx context.Context, opts options, sim *engine.Simulation, script *scenario, logger *logging.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(opts.seconds*float64(time.Second)))
	defer cancel()

	if opts.healthAddr != "" {
		checker := health.NewChecker()
		checker.AddCheck(health.NewProgressCheck(sim.Tick, 10*opts.frame+time.Second))
		checker.AddCheck(health.NewRigCheck(sim.Snapshot))
		checker.AddCheck(health.NewMemoryCheck(opts.maxMemoryMB, nil))

		server := &http.Server{
			Addr:         opts.healthAddr,
			Handler:      checker.Handler(),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info(ctx, "Starting health check server", "address", opts.healthAddr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error(ctx, "Health check server failed", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Error(ctx, "Health check server shutdown failed", err)
			}
		}()
	}

	err := sim.Run(ctx, opts.frame, func(dt float64) {
		script.Frame(ctx, dt)
		if script.Done() {
			cancel()
		}
	})
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
