// pkg/engine/telemetry.go
package engine

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/opd-ai/go-mech/pkg/engine"

type telemetry struct {
	steps        metric.Int64Counter
	clamped      metric.Int64Counter
	rigs         metric.Int64ObservableGauge
	registration metric.Registration
}

func newTelemetry(s *Simulation) (*telemetry, error) {
	m := otel.Meter(instrumentationName)
	t := &telemetry{}

	var err error
	t.steps, err = m.Int64Counter(
		"mech.simulation.steps",
		metric.WithDescription("Fixed physics steps taken"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating step counter: %w", err)
	}

	t.clamped, err = m.Int64Counter(
		"mech.simulation.frames_clamped",
		metric.WithDescription("Frames whose delta exceeded the maximum"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating clamp counter: %w", err)
	}

	t.rigs, err = m.Int64ObservableGauge(
		"mech.simulation.rigs",
		metric.WithDescription("Live rigs"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating rig gauge: %w", err)
	}

	// Collection may run on another goroutine, so it takes the read lock.
	t.registration, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			s.lock.RLock()
			n := len(s.rigs)
			s.lock.RUnlock()
			o.ObserveInt64(t.rigs, int64(n))
			return nil
		},
		t.rigs,
	)
	if err != nil {
		return nil, fmt.Errorf("registering rig callback: %w", err)
	}
	return t, nil
}

func (t *telemetry) recordStep() {
	t.steps.Add(context.Background(), 1)
}

func (t *telemetry) recordClamp() {
	t.clamped.Add(context.Background(), 1)
}

func (t *telemetry) close() error {
	if t.registration == nil {
		return nil
	}
	err := t.registration.Unregister()
	t.registration = nil
	return err
}
