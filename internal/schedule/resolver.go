// Package schedule resolves which time-of-day event is in effect and keeps
// track of manual override windows.
package schedule

import (
	"time"

	"go.uber.org/zap"

	"github.com/Agrid-Dev/thermoguard/internal/hvac"
)

// lookbackDays bounds the backward search for the active event. Seven
// days reach the same weekday one week earlier.
const lookbackDays = 7

// Override suspends schedule-driven control after a manual change. A zero
// ExpiresAt means the window only closes through ClearOverride.
type Override struct {
	Active    bool
	Since     time.Time
	ExpiresAt time.Time
}

type Resolver struct {
	sched    Schedule
	override Override
	log      *zap.SugaredLogger
}

func NewResolver(s Schedule, log *zap.SugaredLogger) *Resolver {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Resolver{sched: s, log: log}
}

func (r *Resolver) Schedule() Schedule { return r.sched }

func (r *Resolver) Override() Override { return r.override }

// Current returns the most recent event at or before now, looking back up
// to a week, along with the instant it fired.
func (r *Resolver) Current(now time.Time) (Event, time.Time, bool) {
	for i := 0; i <= lookbackDays; i++ {
		day := now.AddDate(0, 0, -i)
		evs := r.sched.EventsOn(day.Weekday())
		for j := len(evs) - 1; j >= 0; j-- {
			at := evs[j].At.On(day)
			if at.After(now) {
				continue
			}
			return evs[j], at, true
		}
	}
	return Event{}, time.Time{}, false
}

// Next returns the first event strictly after now, wrapping across days
// and weeks.
func (r *Resolver) Next(now time.Time) (Event, time.Time, bool) {
	for i := 0; i <= lookbackDays; i++ {
		day := now.AddDate(0, 0, i)
		for _, ev := range r.sched.EventsOn(day.Weekday()) {
			at := ev.At.On(day)
			if at.After(now) {
				return ev, at, true
			}
		}
	}
	return Event{}, time.Time{}, false
}

// Evaluate returns the directive of the event in effect at now, or false
// when nothing is scheduled or a manual override holds.
func (r *Resolver) Evaluate(now time.Time) (hvac.Directive, bool) {
	r.expire(now)

	ev, _, ok := r.Current(now)
	if !ok {
		return hvac.Directive{}, false
	}
	if r.override.Active {
		return hvac.Directive{}, false
	}

	d := ev.Directive()
	return d, !d.IsZero()
}

// OpenOverride starts a manual override lasting until the next scheduled
// event. Without a schedule there is nothing to override.
func (r *Resolver) OpenOverride(now time.Time) Override {
	if r.sched.Empty() {
		return r.override
	}
	o := Override{Active: true, Since: now}
	if _, at, ok := r.Next(now); ok {
		o.ExpiresAt = at
	}
	r.override = o
	r.log.Infow("schedule: manual override opened", "expires_at", o.ExpiresAt)
	return o
}

func (r *Resolver) ClearOverride() {
	if r.override.Active {
		r.log.Infow("schedule: manual override cleared")
	}
	r.override = Override{}
}

func (r *Resolver) expire(now time.Time) {
	if !r.override.Active || r.override.ExpiresAt.IsZero() {
		return
	}
	if now.Before(r.override.ExpiresAt) {
		return
	}
	r.log.Infow("schedule: manual override expired", "expires_at", r.override.ExpiresAt)
	r.override = Override{}
}
