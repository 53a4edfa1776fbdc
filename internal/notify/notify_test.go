package notify

import (
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Agrid-Dev/thermoguard/internal/safety"
	"github.com/Agrid-Dev/thermoguard/internal/testutil"
)

func sample() safety.Event {
	return safety.Event{
		ID:                 "evt-1",
		DeviceID:           "dev",
		Kind:               safety.EventActivated,
		Direction:          safety.DirectionHeat,
		TriggerTemperature: 4.5,
		Timestamp:          time.Date(2026, time.January, 12, 3, 0, 0, 0, time.UTC),
		Reason:             safety.ReasonThreshold,
	}
}

func TestLogWritesFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	NewLog(zap.New(core).Sugar()).Notify(sample())

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["kind"] != "activated" || fields["direction"] != "heat" || fields["id"] != "evt-1" {
		t.Fatalf("unexpected fields %v", fields)
	}
}

func TestFanoutDeliversToAll(t *testing.T) {
	a, b, late := &testutil.Recorder{}, &testutil.Recorder{}, &testutil.Recorder{}
	f := NewFanout(a, nil, b)
	f.Notify(sample())
	f.Add(late)
	f.Notify(sample())
	if a.Len() != 2 || b.Len() != 2 || late.Len() != 1 {
		t.Fatalf("unexpected deliveries a=%d b=%d late=%d", a.Len(), b.Len(), late.Len())
	}
}
