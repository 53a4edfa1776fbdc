// Package notify delivers safety events to their sinks.
package notify

import (
	"sync"

	"go.uber.org/zap"

	"github.com/Agrid-Dev/thermoguard/internal/safety"
)

// Log writes every safety event to the logger.
type Log struct {
	log *zap.SugaredLogger
}

func NewLog(log *zap.SugaredLogger) *Log {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Log{log: log}
}

func (l *Log) Notify(e safety.Event) {
	l.log.Warnw("safety event",
		"id", e.ID,
		"device_id", e.DeviceID,
		"kind", string(e.Kind),
		"direction", e.Direction.String(),
		"trigger_temperature", e.TriggerTemperature,
		"timestamp", e.Timestamp,
		"reason", e.Reason,
	)
}

// Fanout forwards each event to every sink in registration order. Sinks
// can be added after the fanout has been handed to a guard.
type Fanout struct {
	mu    sync.RWMutex
	sinks []safety.Notifier
}

func NewFanout(sinks ...safety.Notifier) *Fanout {
	f := &Fanout{}
	for _, s := range sinks {
		f.Add(s)
	}
	return f
}

func (f *Fanout) Add(n safety.Notifier) {
	if n == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks = append(f.sinks, n)
}

func (f *Fanout) Notify(e safety.Event) {
	f.mu.RLock()
	sinks := append([]safety.Notifier(nil), f.sinks...)
	f.mu.RUnlock()
	for _, n := range sinks {
		n.Notify(e)
	}
}
