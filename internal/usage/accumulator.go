// Package usage keeps daily heating and cooling runtime totals for one
// device.
package usage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Agrid-Dev/thermoguard/internal/hvac"
	"github.com/Agrid-Dev/thermoguard/internal/ports"
)

const dateLayout = "2006-01-02"

// Day is the live runtime record for one local calendar day.
type Day struct {
	Date            time.Time
	HeatingSeconds  float64
	CoolingSeconds  float64
	LastActivity    hvac.Action
	LastObservation time.Time
}

type record struct {
	Date           string  `json:"date"`
	HeatingSeconds float64 `json:"heating_seconds"`
	CoolingSeconds float64 `json:"cooling_seconds"`
}

// Key is the store key holding a device's runtime record.
func Key(deviceID string) string { return "runtime/" + deviceID }

type Accumulator struct {
	key   string
	store ports.Store
	loc   *time.Location
	log   *zap.SugaredLogger

	day Day
	w   *writer
}

// New builds an accumulator. A nil store keeps totals in memory only and a
// nil loc means time.Local.
func New(deviceID string, store ports.Store, loc *time.Location, log *zap.SugaredLogger) *Accumulator {
	if loc == nil {
		loc = time.Local
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	a := &Accumulator{key: Key(deviceID), store: store, loc: loc, log: log}
	if store != nil {
		a.w = newWriter(store, a.key, log)
	}
	return a
}

func (a *Accumulator) Day() Day { return a.day }

// Dirty reports whether the last write to the store failed.
func (a *Accumulator) Dirty() bool { return a.w != nil && a.w.isDirty() }

// Run saves records in the background until ctx is done. Without Run,
// records only reach the store through Flush.
func (a *Accumulator) Run(ctx context.Context) {
	if a.w == nil {
		return
	}
	a.w.run(ctx)
}

// Restore loads today's totals from the store. Whatever goes wrong, the
// accumulator ends up on a usable day: the stored one when it is today,
// otherwise a fresh one.
func (a *Accumulator) Restore(ctx context.Context, now time.Time) error {
	a.day = Day{Date: a.dayOf(now)}
	if a.store == nil {
		return nil
	}

	b, err := a.store.Load(ctx, a.key)
	if errors.Is(err, ports.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load %s: %w", a.key, err)
	}

	var rec record
	if err := json.Unmarshal(b, &rec); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	date, err := time.ParseInLocation(dateLayout, rec.Date, a.loc)
	if err != nil {
		return fmt.Errorf("%w: date %q", ErrCorruptRecord, rec.Date)
	}
	if rec.HeatingSeconds < 0 || rec.CoolingSeconds < 0 {
		return fmt.Errorf("%w: negative totals", ErrCorruptRecord)
	}
	if !date.Equal(a.day.Date) {
		a.log.Infow("usage: stored record is stale, starting fresh day", "key", a.key, "stored_date", rec.Date)
		return nil
	}

	a.day.HeatingSeconds = rec.HeatingSeconds
	a.day.CoolingSeconds = rec.CoolingSeconds
	return nil
}

// Observe credits the time since the previous observation to the activity
// that was in effect during it, then records the new activity. The store
// write is queued, never awaited.
func (a *Accumulator) Observe(activity hvac.Action, at time.Time) {
	if at.IsZero() {
		a.log.Warnw("usage: observation without timestamp, activity updated only", "key", a.key, "activity", activity.String())
		a.day.LastActivity = activity
		return
	}
	at = at.In(a.loc)

	last := a.day.LastObservation
	switch {
	case last.IsZero():
		if day := a.dayOf(at); !day.Equal(a.day.Date) {
			a.day = Day{Date: day}
		}
	case !at.After(last):
		if at.Before(last) {
			a.log.Warnw("usage: non-monotonic timestamp, counted as zero elapsed", "key", a.key, "at", at, "last", last)
		}
		a.day.LastActivity = activity
		return
	default:
		a.advance(last, at)
	}

	a.day.LastActivity = activity
	a.day.LastObservation = at
	a.persist()
}

// advance credits [from, to) to the current activity, splitting at every
// local midnight crossed.
func (a *Accumulator) advance(from, to time.Time) {
	cursor := from
	for {
		midnight := a.dayOf(cursor).AddDate(0, 0, 1)
		if to.Before(midnight) {
			a.credit(to.Sub(cursor))
			return
		}
		a.credit(midnight.Sub(cursor))
		a.persist()
		a.day = Day{Date: midnight, LastActivity: a.day.LastActivity, LastObservation: midnight}
		cursor = midnight
	}
}

func (a *Accumulator) credit(d time.Duration) {
	switch a.day.LastActivity {
	case hvac.ActionHeating:
		a.day.HeatingSeconds += d.Seconds()
	case hvac.ActionCooling:
		a.day.CoolingSeconds += d.Seconds()
	}
}

// HeatingHours returns today's heating total. A record from an earlier day
// reads as zero.
func (a *Accumulator) HeatingHours(now time.Time) float64 {
	if !a.current(now) {
		return 0
	}
	return a.day.HeatingSeconds / 3600
}

func (a *Accumulator) CoolingHours(now time.Time) float64 {
	if !a.current(now) {
		return 0
	}
	return a.day.CoolingSeconds / 3600
}

// Flush writes every queued record now.
func (a *Accumulator) Flush(ctx context.Context) error {
	if a.w == nil {
		return nil
	}
	return a.w.drain(ctx)
}

func (a *Accumulator) current(now time.Time) bool {
	return !a.day.Date.IsZero() && !a.dayOf(now).After(a.day.Date)
}

func (a *Accumulator) persist() {
	if a.w == nil {
		return
	}
	date := a.day.Date.Format(dateLayout)
	b, err := json.Marshal(record{
		Date:           date,
		HeatingSeconds: a.day.HeatingSeconds,
		CoolingSeconds: a.day.CoolingSeconds,
	})
	if err != nil {
		a.log.Errorw("usage: encode record", "key", a.key, "error", err)
		return
	}
	a.w.submit(date, b)
}

func (a *Accumulator) dayOf(t time.Time) time.Time {
	y, m, d := t.In(a.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, a.loc)
}
