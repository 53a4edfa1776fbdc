package schedule

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/Agrid-Dev/thermoguard/internal/hvac"
)

// Key selects the days an event applies to.
type Key int

const (
	KeyUnknown Key = iota
	KeyMonday
	KeyTuesday
	KeyWednesday
	KeyThursday
	KeyFriday
	KeySaturday
	KeySunday
	KeyWeekday
	KeyWeekend
)

var keyNames = map[Key]string{
	KeyMonday:    "monday",
	KeyTuesday:   "tuesday",
	KeyWednesday: "wednesday",
	KeyThursday:  "thursday",
	KeyFriday:    "friday",
	KeySaturday:  "saturday",
	KeySunday:    "sunday",
	KeyWeekday:   "weekday",
	KeyWeekend:   "weekend",
}

func (k Key) String() string {
	if s, ok := keyNames[k]; ok {
		return s
	}
	return "unknown"
}

func ParseKey(s string) (Key, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range keyNames {
		if name == s {
			return k, nil
		}
	}
	return KeyUnknown, fmt.Errorf("%w: %q", ErrInvalidKey, s)
}

// keysFor returns the explicit key and the alias group of a weekday.
func keysFor(d time.Weekday) (day Key, group Key) {
	switch d {
	case time.Monday:
		return KeyMonday, KeyWeekday
	case time.Tuesday:
		return KeyTuesday, KeyWeekday
	case time.Wednesday:
		return KeyWednesday, KeyWeekday
	case time.Thursday:
		return KeyThursday, KeyWeekday
	case time.Friday:
		return KeyFriday, KeyWeekday
	case time.Saturday:
		return KeySaturday, KeyWeekend
	default:
		return KeySunday, KeyWeekend
	}
}

// TimeOfDay is a local wall-clock time with minute resolution.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return TimeOfDay{}, ErrMissingTime
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t TimeOfDay) minutes() int { return t.Hour*60 + t.Minute }

// On places t on the calendar day of date, in date's location.
func (t TimeOfDay) On(date time.Time) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, t.Hour, t.Minute, 0, 0, date.Location())
}

type Event struct {
	Key         Key
	At          TimeOfDay
	Temperature *float64
	Mode        *hvac.Mode
}

// Directive builds the device change an event asks for.
func (e Event) Directive() hvac.Directive {
	d := hvac.Directive{Source: hvac.SourceSchedule}
	if e.Temperature != nil {
		d.Temperature = hvac.FloatPtr(*e.Temperature)
	}
	if e.Mode != nil {
		d.Mode = hvac.ModePtr(*e.Mode)
	}
	return d
}

// Schedule maps weekday keys to events sorted by time.
type Schedule struct {
	events map[Key][]Event
}

func (s Schedule) Empty() bool {
	for _, evs := range s.events {
		if len(evs) > 0 {
			return false
		}
	}
	return true
}

// Equal reports whether both schedules hold the same events under the same
// keys.
func (s Schedule) Equal(o Schedule) bool {
	if s.Empty() || o.Empty() {
		return s.Empty() && o.Empty()
	}
	return reflect.DeepEqual(s.nonEmpty(), o.nonEmpty())
}

func (s Schedule) nonEmpty() map[Key][]Event {
	out := make(map[Key][]Event, len(s.events))
	for k, evs := range s.events {
		if len(evs) > 0 {
			out[k] = evs
		}
	}
	return out
}

// EventsOn returns the events that apply on weekday d: those keyed to d
// merged with those keyed to its alias group, sorted by time. On equal
// times the explicit day comes last so it wins.
func (s Schedule) EventsOn(d time.Weekday) []Event {
	day, group := keysFor(d)
	out := make([]Event, 0, len(s.events[day])+len(s.events[group]))
	out = append(out, s.events[group]...)
	out = append(out, s.events[day]...)
	sortEvents(out)
	return out
}

// Raw converts the schedule back to its wire format.
func (s Schedule) Raw() map[string][]RawEvent {
	out := make(map[string][]RawEvent, len(s.events))
	for k, evs := range s.events {
		list := make([]RawEvent, 0, len(evs))
		for _, e := range evs {
			re := RawEvent{Time: e.At.String(), Temperature: e.Temperature}
			if e.Mode != nil {
				m := e.Mode.String()
				re.HVACMode = &m
			}
			list = append(list, re)
		}
		out[k.String()] = list
	}
	return out
}
