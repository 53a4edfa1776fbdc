package schedule

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Agrid-Dev/thermoguard/internal/hvac"
)

// RawEvent is the wire form of one schedule entry.
type RawEvent struct {
	Time        string   `json:"time" yaml:"time" koanf:"time"`
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty" koanf:"temperature"`
	HVACMode    *string  `json:"hvac_mode,omitempty" yaml:"hvac_mode,omitempty" koanf:"hvac_mode"`
}

// Parse validates a raw schedule. Every malformed entry is reported and
// any error rejects the whole schedule.
func Parse(raw map[string][]RawEvent) (Schedule, error) {
	s := Schedule{events: make(map[Key][]Event)}

	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	slices.Sort(names)

	var errs []error
	for _, name := range names {
		key, err := ParseKey(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for i, re := range raw[name] {
			ev, err := parseEvent(key, re)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s[%d]: %w", name, i, err))
				continue
			}
			s.events[key] = append(s.events[key], ev)
		}
	}
	if len(errs) > 0 {
		return Schedule{}, errors.Join(errs...)
	}

	for k := range s.events {
		sortEvents(s.events[k])
	}
	return s, nil
}

func parseEvent(key Key, re RawEvent) (Event, error) {
	at, err := ParseTimeOfDay(re.Time)
	if err != nil {
		return Event{}, err
	}
	if re.Temperature == nil && re.HVACMode == nil {
		return Event{}, ErrEmptyEvent
	}

	ev := Event{Key: key, At: at}
	if re.Temperature != nil {
		if math.IsNaN(*re.Temperature) || math.IsInf(*re.Temperature, 0) {
			return Event{}, ErrInvalidTemperature
		}
		ev.Temperature = hvac.FloatPtr(*re.Temperature)
	}
	if re.HVACMode != nil {
		m, err := hvac.ParseMode(strings.ToLower(strings.TrimSpace(*re.HVACMode)))
		if err != nil {
			return Event{}, err
		}
		ev.Mode = &m
	}
	return ev, nil
}

func ParseYAML(b []byte) (Schedule, error) {
	var raw map[string][]RawEvent
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return Schedule{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return Parse(raw)
}

func ParseJSON(b []byte) (Schedule, error) {
	var raw map[string][]RawEvent
	if err := json.Unmarshal(b, &raw); err != nil {
		return Schedule{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return Parse(raw)
}

func sortEvents(evs []Event) {
	sort.SliceStable(evs, func(i, j int) bool {
		return evs[i].At.minutes() < evs[j].At.minutes()
	})
}
