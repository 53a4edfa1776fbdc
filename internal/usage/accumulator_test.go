package usage

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/Agrid-Dev/thermoguard/internal/hvac"
	"github.com/Agrid-Dev/thermoguard/internal/testutil"
)

var ctx = context.Background()

func at(day, hour, minute int) time.Time {
	return time.Date(2026, time.January, day, hour, minute, 0, 0, time.UTC)
}

func newAcc(t *testing.T, store *testutil.FakeStore, now time.Time) *Accumulator {
	t.Helper()
	a := New("dev", store, time.UTC, nil)
	if err := a.Restore(ctx, now); err != nil {
		t.Fatalf("Restore() failed: %v", err)
	}
	return a
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestHeatingHourIsCredited(t *testing.T) {
	a := newAcc(t, nil, at(12, 8, 0))
	a.Observe(hvac.ActionHeating, at(12, 8, 0))
	a.Observe(hvac.ActionIdle, at(12, 9, 0))

	if got := a.Day().HeatingSeconds; got != 3600 {
		t.Fatalf("heating seconds = %v, want 3600", got)
	}
	if got := a.HeatingHours(at(12, 9, 0)); !approx(got, 1) {
		t.Fatalf("HeatingHours = %v, want 1", got)
	}
	if a.Day().CoolingSeconds != 0 {
		t.Fatal("cooling must stay at zero")
	}
}

func TestElapsedGoesToPreviousActivity(t *testing.T) {
	a := newAcc(t, nil, at(12, 8, 0))
	a.Observe(hvac.ActionIdle, at(12, 8, 0))
	a.Observe(hvac.ActionCooling, at(12, 8, 30))
	a.Observe(hvac.ActionHeating, at(12, 9, 0))

	d := a.Day()
	if d.HeatingSeconds != 0 || d.CoolingSeconds != 1800 {
		t.Fatalf("unexpected totals heat=%v cool=%v", d.HeatingSeconds, d.CoolingSeconds)
	}
}

func TestMidnightSplit(t *testing.T) {
	store := testutil.NewFakeStore()
	a := newAcc(t, store, at(12, 23, 0))
	a.Observe(hvac.ActionHeating, at(12, 23, 50))
	a.Observe(hvac.ActionHeating, at(13, 0, 10))

	d := a.Day()
	if !d.Date.Equal(at(13, 0, 0)) {
		t.Fatalf("expected rollover to the 13th, got %v", d.Date)
	}
	if d.HeatingSeconds != 600 {
		t.Fatalf("post-midnight heating = %v, want 600", d.HeatingSeconds)
	}

	if err := a.Flush(ctx); err != nil {
		t.Fatalf("Flush() failed: %v", err)
	}
	want := []record{
		{Date: "2026-01-12", HeatingSeconds: 600},
		{Date: "2026-01-13", HeatingSeconds: 600},
	}
	if len(store.History) != len(want) {
		t.Fatalf("got %d saves, want %d", len(store.History), len(want))
	}
	for i, w := range want {
		var rec record
		if err := json.Unmarshal(store.History[i], &rec); err != nil {
			t.Fatalf("save %d not decodable: %v", i, err)
		}
		if rec != w {
			t.Fatalf("save %d = %+v, want %+v", i, rec, w)
		}
	}
}

func TestMultiDayGap(t *testing.T) {
	a := newAcc(t, nil, at(12, 22, 0))
	a.Observe(hvac.ActionCooling, at(12, 22, 0))
	a.Observe(hvac.ActionIdle, at(15, 6, 0))

	d := a.Day()
	if !d.Date.Equal(at(15, 0, 0)) || d.CoolingSeconds != 6*3600 {
		t.Fatalf("unexpected day %+v", d)
	}
}

func TestNonMonotonicTimestampAddsNothing(t *testing.T) {
	a := newAcc(t, nil, at(12, 8, 0))
	a.Observe(hvac.ActionHeating, at(12, 8, 0))
	a.Observe(hvac.ActionHeating, at(12, 9, 0))
	a.Observe(hvac.ActionIdle, at(12, 7, 0))

	d := a.Day()
	if d.HeatingSeconds != 3600 {
		t.Fatalf("totals must not change, got %v", d.HeatingSeconds)
	}
	if !d.LastObservation.Equal(at(12, 9, 0)) {
		t.Fatalf("clock must not move backwards, got %v", d.LastObservation)
	}
	if d.LastActivity != hvac.ActionIdle {
		t.Fatalf("activity should still be updated, got %v", d.LastActivity)
	}
}

func TestMissingTimestampUpdatesActivityOnly(t *testing.T) {
	a := newAcc(t, nil, at(12, 8, 0))
	a.Observe(hvac.ActionHeating, at(12, 8, 0))
	a.Observe(hvac.ActionCooling, time.Time{})
	a.Observe(hvac.ActionIdle, at(12, 8, 10))

	d := a.Day()
	if d.HeatingSeconds != 0 || d.CoolingSeconds != 600 {
		t.Fatalf("unexpected totals heat=%v cool=%v", d.HeatingSeconds, d.CoolingSeconds)
	}
}

func TestObserveIsIdempotent(t *testing.T) {
	a := newAcc(t, nil, at(12, 8, 0))
	a.Observe(hvac.ActionHeating, at(12, 8, 0))
	a.Observe(hvac.ActionHeating, at(12, 8, 30))
	before := a.Day()
	a.Observe(hvac.ActionHeating, at(12, 8, 30))
	if a.Day() != before {
		t.Fatalf("second identical observe changed state: %+v -> %+v", before, a.Day())
	}
}

func TestPersistsRecord(t *testing.T) {
	store := testutil.NewFakeStore()
	a := newAcc(t, store, at(12, 8, 0))
	a.Observe(hvac.ActionHeating, at(12, 8, 0))
	a.Observe(hvac.ActionIdle, at(12, 8, 30))
	if _, ok := store.Data[Key("dev")]; ok {
		t.Fatal("nothing is written before the writer runs")
	}
	if err := a.Flush(ctx); err != nil {
		t.Fatalf("Flush() failed: %v", err)
	}

	var rec record
	if err := json.Unmarshal(store.Data[Key("dev")], &rec); err != nil {
		t.Fatalf("stored record not decodable: %v", err)
	}
	if rec.Date != "2026-01-12" || rec.HeatingSeconds != 1800 || rec.CoolingSeconds != 0 {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestFailedWriteIsRetried(t *testing.T) {
	store := testutil.NewFakeStore()
	a := newAcc(t, store, at(12, 8, 0))
	store.SaveErr = errors.New("disk full")

	a.Observe(hvac.ActionHeating, at(12, 8, 0))
	a.Observe(hvac.ActionIdle, at(12, 9, 0))
	if err := a.Flush(ctx); err == nil {
		t.Fatal("expected the write to fail")
	}
	if !a.Dirty() {
		t.Fatal("expected dirty after failed write")
	}
	if a.HeatingHours(at(12, 9, 0)) != 1 {
		t.Fatal("totals must keep accumulating in memory")
	}

	store.SaveErr = nil
	if err := a.Flush(ctx); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if a.Dirty() {
		t.Fatal("expected clean after successful retry")
	}
	var rec record
	if err := json.Unmarshal(store.Data[Key("dev")], &rec); err != nil || rec.HeatingSeconds != 3600 {
		t.Fatalf("unexpected record %+v err=%v", rec, err)
	}
}

func TestObserveDoesNotWaitForStore(t *testing.T) {
	store := testutil.NewFakeStore()
	store.Block = make(chan struct{})
	a := newAcc(t, store, at(12, 8, 0))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go a.Run(runCtx)

	start := time.Now()
	for i := range 10 {
		a.Observe(hvac.ActionHeating, at(12, 8, i))
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("Observe blocked on the store for %v", elapsed)
	}

	close(store.Block)
	deadline := time.After(time.Second)
	for {
		if b, ok := store.Get(Key("dev")); ok {
			var rec record
			if err := json.Unmarshal(b, &rec); err == nil && rec.HeatingSeconds == 540 {
				return
			}
		}
		select {
		case <-deadline:
			t.Fatal("latest record never reached the store")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestRestore(t *testing.T) {
	tests := []struct {
		name     string
		stored   string
		loadErr  error
		wantHeat float64
		wantErr  bool
	}{
		{"same day", `{"date":"2026-01-12","heating_seconds":7200,"cooling_seconds":0}`, nil, 7200, false},
		{"stale day", `{"date":"2026-01-11","heating_seconds":7200,"cooling_seconds":0}`, nil, 0, false},
		{"absent", "", nil, 0, false},
		{"corrupt", `{not json`, nil, 0, true},
		{"read failure", "", errors.New("io"), 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := testutil.NewFakeStore()
			if tt.stored != "" {
				store.Data[Key("dev")] = []byte(tt.stored)
			}
			store.LoadErr = tt.loadErr

			a := New("dev", store, time.UTC, nil)
			err := a.Restore(ctx, at(12, 10, 0))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Restore() err=%v wantErr=%v", err, tt.wantErr)
			}
			d := a.Day()
			if !d.Date.Equal(at(12, 0, 0)) {
				t.Fatalf("expected today's date, got %v", d.Date)
			}
			if d.HeatingSeconds != tt.wantHeat {
				t.Fatalf("heating = %v, want %v", d.HeatingSeconds, tt.wantHeat)
			}
		})
	}
}

func TestHoursReadZeroOnLaterDay(t *testing.T) {
	a := newAcc(t, nil, at(12, 8, 0))
	a.Observe(hvac.ActionCooling, at(12, 8, 0))
	a.Observe(hvac.ActionCooling, at(12, 10, 0))

	if got := a.CoolingHours(at(12, 23, 0)); !approx(got, 2) {
		t.Fatalf("CoolingHours same day = %v", got)
	}
	if got := a.CoolingHours(at(13, 0, 5)); got != 0 {
		t.Fatalf("CoolingHours next day = %v, want 0", got)
	}
}
