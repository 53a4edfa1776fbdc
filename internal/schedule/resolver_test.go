package schedule

import (
	"errors"
	"testing"
	"time"

	"github.com/Agrid-Dev/thermoguard/internal/hvac"
)

// 2026-01-12 is a Monday.
func at(day, hour, minute int) time.Time {
	return time.Date(2026, time.January, day, hour, minute, 0, 0, time.UTC)
}

func fp(v float64) *float64 { return &v }

func sp(s string) *string { return &s }

func mustParse(t *testing.T, raw map[string][]RawEvent) Schedule {
	t.Helper()
	s, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	return s
}

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		in      string
		want    TimeOfDay
		wantErr error
	}{
		{"06:30", TimeOfDay{6, 30}, nil},
		{"00:00", TimeOfDay{0, 0}, nil},
		{"23:59", TimeOfDay{23, 59}, nil},
		{" 7:05 ", TimeOfDay{7, 5}, nil},
		{"24:00", TimeOfDay{}, ErrInvalidTime},
		{"12:60", TimeOfDay{}, ErrInvalidTime},
		{"noon", TimeOfDay{}, ErrInvalidTime},
		{"", TimeOfDay{}, ErrMissingTime},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimeOfDay(tt.in)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ParseTimeOfDay(%q) error = %v, want %v", tt.in, err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Fatalf("ParseTimeOfDay(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseRejectsWholeScheduleOnError(t *testing.T) {
	raw := map[string][]RawEvent{
		"monday":  {{Time: "06:00", Temperature: fp(20)}},
		"funday":  {{Time: "07:00", Temperature: fp(20)}},
		"tuesday": {{Time: "25:00", Temperature: fp(20)}, {Time: "08:00"}},
		"friday":  {{Time: "08:00", HVACMode: sp("turbo")}},
	}

	s, err := Parse(raw)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []error{ErrInvalidKey, ErrInvalidTime, ErrEmptyEvent, hvac.ErrInvalidMode} {
		if !errors.Is(err, want) {
			t.Errorf("expected joined error to contain %v, got %v", want, err)
		}
	}
	if !s.Empty() {
		t.Fatal("rejected schedule must be empty")
	}
}

func TestParseEmpty(t *testing.T) {
	s, err := Parse(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !s.Empty() {
		t.Fatal("expected empty schedule")
	}
}

func TestParseYAML(t *testing.T) {
	doc := []byte(`
weekday:
  - time: "06:30"
    temperature: 21
  - time: "22:00"
    temperature: 17
    hvac_mode: heat
Saturday:
  - time: "09:00"
    hvac_mode: "off"
`)
	s, err := ParseYAML(doc)
	if err != nil {
		t.Fatalf("ParseYAML() failed: %v", err)
	}
	mon := s.EventsOn(time.Monday)
	if len(mon) != 2 || mon[1].Mode == nil || *mon[1].Mode != hvac.ModeHeat {
		t.Fatalf("unexpected monday events %+v", mon)
	}
	sat := s.EventsOn(time.Saturday)
	if len(sat) != 1 || *sat[0].Mode != hvac.ModeOff {
		t.Fatalf("unexpected saturday events %+v", sat)
	}
	if len(s.EventsOn(time.Sunday)) != 0 {
		t.Fatal("sunday should have no events")
	}
}

func TestParseJSONMalformed(t *testing.T) {
	if _, err := ParseJSON([]byte(`{"monday": 3}`)); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestEventsOnMergesAliasSorted(t *testing.T) {
	s := mustParse(t, map[string][]RawEvent{
		"weekday": {{Time: "22:00", Temperature: fp(17)}, {Time: "06:00", Temperature: fp(20)}},
		"monday":  {{Time: "12:00", Temperature: fp(19)}, {Time: "06:00", Temperature: fp(22)}},
	})

	evs := s.EventsOn(time.Monday)
	want := []float64{20, 22, 19, 17}
	if len(evs) != len(want) {
		t.Fatalf("got %d events, want %d", len(evs), len(want))
	}
	for i, w := range want {
		if *evs[i].Temperature != w {
			t.Errorf("event %d temperature = %v, want %v", i, *evs[i].Temperature, w)
		}
	}
}

func TestCurrentPicksLatestPastEvent(t *testing.T) {
	s := mustParse(t, map[string][]RawEvent{
		"monday": {
			{Time: "06:00", Temperature: fp(20)},
			{Time: "06:30", Temperature: fp(21)},
			{Time: "22:00", Temperature: fp(17)},
		},
	})
	r := NewResolver(s, nil)

	ev, fired, ok := r.Current(at(12, 7, 0))
	if !ok || *ev.Temperature != 21 || !fired.Equal(at(12, 6, 30)) {
		t.Fatalf("Current() = %+v at %v ok=%v", ev, fired, ok)
	}

	ev, _, ok = r.Current(at(12, 6, 30))
	if !ok || *ev.Temperature != 21 {
		t.Fatalf("event at exactly now should apply, got %+v", ev)
	}
}

func TestCurrentLooksBackToPreviousDays(t *testing.T) {
	s := mustParse(t, map[string][]RawEvent{
		"monday": {{Time: "22:00", Temperature: fp(17)}},
	})
	r := NewResolver(s, nil)

	// Thursday: Monday 22:00 is still in effect.
	ev, fired, ok := r.Current(at(15, 8, 0))
	if !ok || *ev.Temperature != 17 || !fired.Equal(at(12, 22, 0)) {
		t.Fatalf("Current() = %+v at %v ok=%v", ev, fired, ok)
	}

	// Monday before 22:00: last week's event.
	_, fired, ok = r.Current(at(12, 8, 0))
	if !ok || !fired.Equal(at(5, 22, 0)) {
		t.Fatalf("expected last week's event, got %v ok=%v", fired, ok)
	}
}

func TestWeekdayAliasMatchesEveryWorkday(t *testing.T) {
	s := mustParse(t, map[string][]RawEvent{
		"weekday": {{Time: "07:00", Temperature: fp(21)}},
		"weekend": {{Time: "09:00", Temperature: fp(19)}},
	})
	r := NewResolver(s, nil)

	for day := 12; day <= 16; day++ {
		d, ok := r.Evaluate(at(day, 7, 0))
		if !ok || *d.Temperature != 21 {
			t.Fatalf("day %d: expected weekday event, got %v ok=%v", day, d, ok)
		}
	}
	d, ok := r.Evaluate(at(17, 10, 0))
	if !ok || *d.Temperature != 19 {
		t.Fatalf("saturday: expected weekend event, got %v", d)
	}
	// Saturday 08:00: weekend event not yet, Friday 07:00 still holds.
	d, ok = r.Evaluate(at(17, 8, 0))
	if !ok || *d.Temperature != 21 {
		t.Fatalf("saturday morning: expected friday event, got %v", d)
	}
}

func TestNext(t *testing.T) {
	s := mustParse(t, map[string][]RawEvent{
		"monday": {{Time: "06:00", Temperature: fp(20)}, {Time: "22:00", Temperature: fp(17)}},
	})
	r := NewResolver(s, nil)

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"later today", at(12, 10, 0), at(12, 22, 0)},
		{"strictly after", at(12, 22, 0), at(19, 6, 0)},
		{"wraps week", at(14, 9, 0), at(19, 6, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, got, ok := r.Next(tt.now)
			if !ok || !got.Equal(tt.want) {
				t.Fatalf("Next(%v) = %v ok=%v, want %v", tt.now, got, ok, tt.want)
			}
		})
	}
}

func TestEmptyScheduleEvaluatesToNothing(t *testing.T) {
	r := NewResolver(Schedule{}, nil)
	if _, ok := r.Evaluate(at(12, 12, 0)); ok {
		t.Fatal("expected no directive")
	}
	if o := r.OpenOverride(at(12, 12, 0)); o.Active {
		t.Fatal("no override without a schedule")
	}
}

func TestOverrideSuppressesUntilNextEvent(t *testing.T) {
	s := mustParse(t, map[string][]RawEvent{
		"monday": {{Time: "06:00", Temperature: fp(20)}, {Time: "22:00", Temperature: fp(17)}},
	})
	r := NewResolver(s, nil)

	o := r.OpenOverride(at(12, 10, 0))
	if !o.Active || !o.ExpiresAt.Equal(at(12, 22, 0)) {
		t.Fatalf("unexpected override %+v", o)
	}

	for _, now := range []time.Time{at(12, 10, 0), at(12, 15, 0), at(12, 21, 59)} {
		if d, ok := r.Evaluate(now); ok {
			t.Fatalf("override should suppress at %v, got %v", now, d)
		}
	}

	d, ok := r.Evaluate(at(12, 22, 0))
	if !ok || *d.Temperature != 17 || d.Source != hvac.SourceSchedule {
		t.Fatalf("expected 22:00 event after expiry, got %v ok=%v", d, ok)
	}
	if r.Override().Active {
		t.Fatal("override should have expired")
	}
}

func TestClearOverride(t *testing.T) {
	s := mustParse(t, map[string][]RawEvent{
		"weekday": {{Time: "06:00", Temperature: fp(20)}},
	})
	r := NewResolver(s, nil)
	r.OpenOverride(at(12, 10, 0))
	r.ClearOverride()

	d, ok := r.Evaluate(at(12, 10, 1))
	if !ok || *d.Temperature != 20 {
		t.Fatalf("expected schedule to resume, got %v ok=%v", d, ok)
	}
}

func TestRawRoundTrip(t *testing.T) {
	s := mustParse(t, map[string][]RawEvent{
		"weekend": {{Time: "9:00", HVACMode: sp("COOL")}},
	})
	raw := s.Raw()
	evs := raw["weekend"]
	if len(evs) != 1 || evs[0].Time != "09:00" || evs[0].HVACMode == nil || *evs[0].HVACMode != "cool" {
		t.Fatalf("unexpected raw form %+v", raw)
	}
	if _, err := Parse(raw); err != nil {
		t.Fatalf("raw form must parse again: %v", err)
	}
}
