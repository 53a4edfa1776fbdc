package app

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/Agrid-Dev/thermoguard/internal/hvac"
	"github.com/Agrid-Dev/thermoguard/internal/orchestrator"
	"github.com/Agrid-Dev/thermoguard/internal/testutil"
)

func TestOpenPersistence(t *testing.T) {
	mem, err := OpenPersistence(StoreConfig{Kind: StoreMemory}, nil)
	if err != nil || mem.Store == nil || mem.Events != nil {
		t.Fatalf("memory: %+v err=%v", mem, err)
	}

	sq, err := OpenPersistence(StoreConfig{Kind: StoreSQLite, Path: filepath.Join(t.TempDir(), "tg.db")}, nil)
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	defer func() { _ = sq.Close() }()
	if sq.Store == nil || sq.Events == nil {
		t.Fatalf("sqlite must provide a store and an event log: %+v", sq)
	}

	if _, err := OpenPersistence(StoreConfig{Kind: "redis"}, nil); !errors.Is(err, ErrUnknownStore) {
		t.Fatalf("expected ErrUnknownStore, got %v", err)
	}
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	a := l.Addr().String()
	_ = l.Close()
	return a
}

func TestRunStopsCleanlyOnCancel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store = StoreConfig{Kind: StoreMemory}
	cfg.Controllers.HTTP.Addr = freeAddr(t)
	cfg.Regulator.Interval = 10 * time.Millisecond
	cfg.EvaluationInterval = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(200*time.Millisecond, cancel)

	if err := Run(ctx, cfg, "", zaptest.NewLogger(t).Sugar()); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestRunReportsControllerFailure(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = l.Close() }()

	cfg := DefaultConfig()
	cfg.Store = StoreConfig{Kind: StoreMemory}
	cfg.Controllers.HTTP.Addr = l.Addr().String()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := Run(ctx, cfg, "", zaptest.NewLogger(t).Sugar()); err == nil {
		t.Fatal("expected the busy port to stop Run")
	}
}

func TestReloadAppliesSafety(t *testing.T) {
	dev := testutil.NewFakeDevice(6, hvac.ModeOff)
	o, err := orchestrator.New(orchestrator.Options{DeviceID: "d", Device: dev})
	if err != nil {
		t.Fatal(err)
	}
	current := DefaultConfig()

	// A rejected reload keeps the device untouched.
	reload(o, current, Config{}, errors.New("bad yaml"), zaptest.NewLogger(t).Sugar())
	if len(dev.Applied) != 0 {
		t.Fatalf("expected no directive, got %v", dev.Applied)
	}

	next := DefaultConfig()
	next.Safety.MinTemp = hvac.FloatPtr(7)
	reload(o, current, next, nil, zaptest.NewLogger(t).Sugar())

	d, ok := dev.Last()
	if !ok || d.Mode == nil || *d.Mode != hvac.ModeHeat || *d.Temperature != 7 {
		t.Fatalf("expected forced heat at 7, got %v ok=%v", d, ok)
	}
	if st := o.Status(); st.Safety.MinTemp == nil || *st.Safety.MinTemp != 7 {
		t.Fatalf("status must report the new bound, got %+v", st.Safety)
	}
}
