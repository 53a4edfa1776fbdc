// Package orchestrator runs the safety guard, the schedule resolver and the
// runtime accumulator against one wrapped device.
package orchestrator

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Agrid-Dev/thermoguard/internal/hvac"
	"github.com/Agrid-Dev/thermoguard/internal/ports"
	"github.com/Agrid-Dev/thermoguard/internal/safety"
	"github.com/Agrid-Dev/thermoguard/internal/schedule"
	"github.com/Agrid-Dev/thermoguard/internal/usage"
)

const (
	DefaultInterval = time.Minute
	storeTimeout    = 3 * time.Second
)

type Options struct {
	DeviceID string
	Device   ports.Device
	Safety   safety.Config
	Schedule schedule.Schedule
	// Usage defaults to an in-memory accumulator.
	Usage    *usage.Accumulator
	Notifier safety.Notifier
	Clock    func() time.Time
	Log      *zap.SugaredLogger
}

type Orchestrator struct {
	mu sync.Mutex

	id       string
	device   ports.Device
	notifier safety.Notifier
	guard    *safety.Guard
	resolver *schedule.Resolver
	usage    *usage.Accumulator
	now      func() time.Time
	log      *zap.SugaredLogger

	last    hvac.Observation
	seen    bool
	pending *hvac.Directive
}

func New(opts Options) (*Orchestrator, error) {
	if opts.Device == nil {
		return nil, ErrNoDevice
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	guard, err := safety.New(opts.Safety, opts.DeviceID, opts.Notifier, log)
	if err != nil {
		return nil, err
	}
	acc := opts.Usage
	if acc == nil {
		acc = usage.New(opts.DeviceID, nil, nil, log)
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Orchestrator{
		id:       opts.DeviceID,
		device:   opts.Device,
		notifier: opts.Notifier,
		guard:    guard,
		resolver: schedule.NewResolver(opts.Schedule, log),
		usage:    acc,
		now:      clock,
		log:      log,
	}, nil
}

// Restore loads today's runtime totals. Failures leave a fresh day.
func (o *Orchestrator) Restore(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.usage.Restore(ctx, o.now()); err != nil {
		o.log.Warnw("orchestrator: runtime totals not restored, starting fresh", "device_id", o.id, "error", err)
	}
}

// Run evaluates on every interval and on every observation received until
// ctx is done.
func (o *Orchestrator) Run(ctx context.Context, interval time.Duration, observations <-chan hvac.Observation) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	o.Restore(ctx)

	saved := make(chan struct{})
	go func() {
		defer close(saved)
		o.usage.Run(ctx)
	}()

	o.Tick(o.now())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			<-saved
			o.flush()
			return ctx.Err()
		case <-ticker.C:
			o.Tick(o.now())
		case obs, ok := <-observations:
			if !ok {
				observations = nil
				continue
			}
			o.Observe(obs)
		}
	}
}

// Tick reads the device and runs one evaluation at now.
func (o *Orchestrator) Tick(now time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tick(now)
}

// Observe handles a state change pushed by the device.
func (o *Orchestrator) Observe(obs hvac.Observation) {
	o.mu.Lock()
	defer o.mu.Unlock()
	now := obs.Timestamp
	if now.IsZero() {
		now = o.now()
	}
	o.process(obs, now)
}

func (o *Orchestrator) SetSetpoint(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ErrInvalidSetpoint
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.manual(hvac.Directive{Temperature: hvac.FloatPtr(v), Source: hvac.SourceManual})
}

func (o *Orchestrator) SetMode(m hvac.Mode) error {
	if !m.Valid() {
		return fmt.Errorf("%w: %v", hvac.ErrInvalidMode, m)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.manual(hvac.Directive{Mode: hvac.ModePtr(m), Source: hvac.SourceManual})
}

// ClearOverride hands control back to the schedule immediately.
func (o *Orchestrator) ClearOverride() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.resolver.ClearOverride()
	o.tick(o.now())
}

// Reconfigure swaps the engines whose configuration changed; the other one
// keeps its state. A replaced guard that was holding the device turns it off
// again before the new guard looks at it. A replaced schedule drops the
// override window.
func (o *Orchestrator) Reconfigure(cfg safety.Config, s schedule.Schedule) error {
	guard, err := safety.New(cfg, o.id, o.notifier, o.log)
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	safetyChanged := !cfg.Equal(o.guard.Config())
	scheduleChanged := !s.Equal(o.resolver.Schedule())
	if !safetyChanged && !scheduleChanged {
		o.log.Debugw("orchestrator: configuration unchanged", "device_id", o.id)
		return nil
	}

	now := o.now()
	if safetyChanged {
		temp := math.NaN()
		if o.last.Temperature != nil {
			temp = *o.last.Temperature
		}
		if o.guard.Release(temp, now, safety.ReasonReplaced) {
			o.apply(hvac.Directive{Mode: hvac.ModePtr(hvac.ModeOff), Source: hvac.SourceSafety})
		}
		o.guard = guard
	}
	if scheduleChanged {
		o.resolver = schedule.NewResolver(s, o.log)
	}
	o.log.Infow("orchestrator: configuration replaced", "device_id", o.id,
		"safety_changed", safetyChanged, "schedule_changed", scheduleChanged,
		"safety_enabled", cfg.Enabled(), "schedule_empty", s.Empty())
	o.tick(now)
	return nil
}

func (o *Orchestrator) Status() ports.Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.now()
	cfg := o.guard.Config()
	st := ports.Status{
		DeviceID:            o.id,
		AmbientTemperature:  o.last.Temperature,
		TemperatureSetpoint: o.last.Setpoint,
		Mode:                o.last.Mode,
		Action:              o.last.Action,
		ObservedAt:          o.last.Timestamp,
		Safety: ports.SafetyStatus{
			State:      o.guard.State().String(),
			MinTemp:    cfg.MinTemp,
			MaxTemp:    cfg.MaxTemp,
			Hysteresis: cfg.Hysteresis,
		},
		HeatingHoursToday: o.usage.HeatingHours(now),
		CoolingHoursToday: o.usage.CoolingHours(now),
	}
	if ov := o.resolver.Override(); ov.Active {
		since := ov.Since
		st.Override = ports.OverrideStatus{Active: true, Since: &since}
		if !ov.ExpiresAt.IsZero() {
			exp := ov.ExpiresAt
			st.Override.ExpiresAt = &exp
		}
	}
	return st
}

func (o *Orchestrator) tick(now time.Time) {
	obs := o.device.Observe()
	if obs.Timestamp.IsZero() {
		obs.Timestamp = now
	}
	o.process(obs, now)
}

func (o *Orchestrator) process(obs hvac.Observation, now time.Time) {
	o.usage.Observe(obs.Action, obs.Timestamp)

	// A reading older than the one already handled only counts for runtime.
	if o.seen && !obs.Timestamp.IsZero() && obs.Timestamp.Before(o.last.Timestamp) {
		o.log.Debugw("orchestrator: stale observation ignored", "device_id", o.id, "at", obs.Timestamp, "last", o.last.Timestamp)
		return
	}

	switch {
	case o.seen && o.changedByOthers(obs):
		o.pending = nil
		o.log.Infow("orchestrator: manual change detected", "device_id", o.id, "mode", obs.Mode.String())
		o.resolver.OpenOverride(now)
	case o.pending != nil && o.pending.SatisfiedBy(obs.Mode, obs.Setpoint):
		o.pending = nil
	}
	o.last, o.seen = obs, true

	o.evaluate(now)
}

// changedByOthers reports a mode or setpoint change that no directive of
// ours explains.
func (o *Orchestrator) changedByOthers(obs hvac.Observation) bool {
	if obs.Mode == o.last.Mode && hvac.SameSetpoint(obs.Setpoint, o.last.Setpoint) {
		return false
	}
	return o.pending == nil || !o.pending.SatisfiedBy(obs.Mode, obs.Setpoint)
}

func (o *Orchestrator) evaluate(now time.Time) {
	if t := o.last.Temperature; t != nil {
		off := o.last.Mode == hvac.ModeOff || o.guard.Forcing(o.last.Mode)
		if d, ok := o.guard.Evaluate(*t, off, now); ok {
			o.apply(d)
			return
		}
	} else {
		o.log.Debugw("orchestrator: no temperature reading, safety skipped", "device_id", o.id)
	}

	// While the guard holds the device the schedule stays quiet.
	if d, ok := o.guard.Directive(); ok {
		o.apply(d)
		return
	}

	if d, ok := o.resolver.Evaluate(now); ok {
		o.apply(d)
	}
}

func (o *Orchestrator) apply(d hvac.Directive) {
	if cur := o.device.Observe(); d.SatisfiedBy(cur.Mode, cur.Setpoint) {
		return
	}
	if err := o.device.Apply(d); err != nil {
		o.log.Warnw("orchestrator: device rejected directive", "device_id", o.id, "directive", d.String(), "error", err)
		return
	}
	o.log.Infow("orchestrator: directive applied", "device_id", o.id, "directive", d.String())
	o.pending = &d
}

func (o *Orchestrator) manual(d hvac.Directive) error {
	if err := o.device.Apply(d); err != nil {
		return fmt.Errorf("apply %s: %w", d, err)
	}
	now := o.now()
	o.pending = &d
	o.resolver.OpenOverride(now)
	o.tick(now)
	return nil
}

// flush writes what the background writer left behind. It runs after the
// loop has stopped, so it may wait on the store.
func (o *Orchestrator) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := o.usage.Flush(ctx); err != nil {
		o.log.Warnw("orchestrator: runtime totals not saved on shutdown", "device_id", o.id, "error", err)
	}
}
