package mech

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/opd-ai/go-mech/pkg/mech"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

// telemetry holds the instruments of one controller. The global provider is a
// no-op unless the host installs one.
type telemetry struct {
	damageTaken  metric.Float64Counter
	deaths       metric.Int64Counter
	fuelConsumed metric.Float64Counter
	jumps        metric.Int64Counter

	levels       metric.Float64ObservableGauge
	registration metric.Registration
}

func newTelemetry(c *Controller) (*telemetry, error) {
	m := meter()
	t := &telemetry{}

	var err error

	t.damageTaken, err = m.Float64Counter(
		"mech.damage.taken",
		metric.WithDescription("Damage absorbed by mechs"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating damage counter: %w", err)
	}

	t.deaths, err = m.Int64Counter(
		"mech.deaths",
		metric.WithDescription("Mechs destroyed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating death counter: %w", err)
	}

	t.fuelConsumed, err = m.Float64Counter(
		"mech.fuel.consumed",
		metric.WithDescription("Boost fuel burned"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating fuel counter: %w", err)
	}

	t.jumps, err = m.Int64Counter(
		"mech.jumps",
		metric.WithDescription("Jumps started from the ground"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating jump counter: %w", err)
	}

	t.levels, err = m.Float64ObservableGauge(
		"mech.resource.level",
		metric.WithDescription("Current health and fuel"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resource gauge: %w", err)
	}

	t.registration, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveFloat64(t.levels, c.health.Value(),
				metric.WithAttributes(attribute.String("resource", "health")))
			o.ObserveFloat64(t.levels, c.fuel.Value(),
				metric.WithAttributes(attribute.String("resource", "fuel")))
			return nil
		},
		t.levels,
	)
	if err != nil {
		return nil, fmt.Errorf("registering resource callback: %w", err)
	}

	return t, nil
}

func (t *telemetry) recordDamage(amount float64, kind DamageKind) {
	t.damageTaken.Add(context.Background(), amount,
		metric.WithAttributes(attribute.String("kind", kind.String())))
}

func (t *telemetry) recordDeath(kind DamageKind) {
	t.deaths.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("kind", kind.String())))
}

func (t *telemetry) recordFuel(amount float64) {
	if amount > 0 {
		t.fuelConsumed.Add(context.Background(), amount)
	}
}

func (t *telemetry) recordJump() {
	t.jumps.Add(context.Background(), 1)
}

func (t *telemetry) close() error {
	if t.registration == nil {
		return nil
	}
	err := t.registration.Unregister()
	t.registration = nil
	return err
}
