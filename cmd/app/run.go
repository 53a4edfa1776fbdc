package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	httpctrl "github.com/Agrid-Dev/thermoguard/internal/controllers/http"
	modbusctrl "github.com/Agrid-Dev/thermoguard/internal/controllers/modbus"
	mqttctrl "github.com/Agrid-Dev/thermoguard/internal/controllers/mqtt"
	"github.com/Agrid-Dev/thermoguard/internal/device"
	"github.com/Agrid-Dev/thermoguard/internal/notify"
	"github.com/Agrid-Dev/thermoguard/internal/orchestrator"
	"github.com/Agrid-Dev/thermoguard/internal/ports"
	"github.com/Agrid-Dev/thermoguard/internal/store"
	"github.com/Agrid-Dev/thermoguard/internal/thermostat"
	"github.com/Agrid-Dev/thermoguard/internal/usage"
)

// Persistence is the storage selected by StoreConfig. Events is nil unless
// the store can record safety events.
type Persistence struct {
	Store  ports.Store
	Events *store.EventLog
	closer io.Closer
}

func (p Persistence) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer.Close()
}

func OpenPersistence(cfg StoreConfig, log *zap.SugaredLogger) (Persistence, error) {
	switch cfg.Kind {
	case StoreMemory:
		return Persistence{Store: store.NewMemory()}, nil
	case StoreFile:
		return Persistence{Store: store.NewFile(cfg.Path)}, nil
	case StoreSQLite:
		db, err := store.OpenSQLite(cfg.Path)
		if err != nil {
			return Persistence{}, err
		}
		return Persistence{
			Store:  store.NewSQLite(db),
			Events: store.NewEventLog(db, log),
			closer: db,
		}, nil
	default:
		return Persistence{}, fmt.Errorf("%w %q", ErrUnknownStore, cfg.Kind)
	}
}

// Run wires the device, the orchestrator and every enabled controller, and
// blocks until ctx is done or one of them fails. When configPath is set,
// edits to safety bounds and the schedule are applied live.
func Run(ctx context.Context, cfg Config, configPath string, log *zap.SugaredLogger) error {
	p, err := OpenPersistence(cfg.Store, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			log.Warnw("close store", "error", err)
		}
	}()

	fan := notify.NewFanout(notify.NewLog(log))
	var events ports.EventLog
	if p.Events != nil {
		fan.Add(p.Events)
		events = p.Events
	}

	snap, err := cfg.Snapshot()
	if err != nil {
		return err
	}
	th, err := thermostat.New(snap, cfg.RegulatorParams(), cfg.HeatLossParams())
	if err != nil {
		return fmt.Errorf("thermostat: %w", err)
	}
	sched, err := cfg.ParsedSchedule()
	if err != nil {
		return fmt.Errorf("schedule: %w", err)
	}
	orch, err := orchestrator.New(orchestrator.Options{
		DeviceID: cfg.DeviceID,
		Device:   th,
		Safety:   cfg.SafetyConfig(),
		Schedule: sched,
		Usage:    usage.New(cfg.DeviceID, p.Store, time.Local, log),
		Notifier: fan,
		Log:      log,
	})
	if err != nil {
		return err
	}
	dev := device.New(cfg.DeviceID, th, orch)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g := &group{cancel: cancel, log: log}
	if p.Events != nil {
		g.Go(ctx, "events", p.Events.Run)
	}
	g.Go(ctx, "device", func(ctx context.Context) error {
		return dev.Run(ctx, cfg.Regulator.Interval, cfg.EvaluationInterval)
	})

	if c := cfg.Controllers.HTTP; c.Enabled {
		srv := httpctrl.New(orch, events, c.Addr, log)
		log.Infow("http controller enabled", "addr", c.Addr)
		g.Go(ctx, "http", srv.Run)
	}
	if c := cfg.Controllers.MQTT; c.Enabled {
		mc, err := mqttctrl.New(orch, mqttctrl.Config{
			DeviceID:        cfg.DeviceID,
			BrokerURL:       c.BrokerURL,
			ClientID:        c.ClientID,
			BaseTopic:       c.BaseTopic,
			QoS:             c.QoS,
			RetainStatus:    c.RetainStatus,
			PublishInterval: c.PublishInterval,
			Username:        c.Username,
			Password:        c.Password,
		}, log)
		if err != nil {
			cancel()
			g.Wait()
			return err
		}
		fan.Add(mc)
		log.Infow("mqtt controller enabled", "broker", c.BrokerURL)
		g.Go(ctx, "mqtt", mc.Run)
	}
	if c := cfg.Controllers.Modbus; c.Enabled {
		mb, err := modbusctrl.New(orch, modbusctrl.Config{
			DeviceID: cfg.DeviceID,
			Addr:     c.Addr,
			UnitID:   c.UnitID,
		}, log)
		if err != nil {
			cancel()
			g.Wait()
			return err
		}
		g.Go(ctx, "modbus", mb.Run)
	}

	if configPath != "" {
		stop, err := Watch(configPath, func(next Config, err error) {
			reload(orch, cfg, next, err, log)
		})
		if err != nil {
			log.Warnw("config watch disabled", "path", configPath, "error", err)
		} else {
			defer func() { _ = stop() }()
		}
	}

	return g.Wait()
}

// reload swaps safety bounds and the schedule. Everything else needs a
// restart.
func reload(o *orchestrator.Orchestrator, current, next Config, err error, log *zap.SugaredLogger) {
	if err != nil {
		log.Errorw("config reload rejected, keeping current configuration", "error", err)
		return
	}
	if next.DeviceID != current.DeviceID {
		log.Warnw("device_id change ignored until restart", "current", current.DeviceID, "next", next.DeviceID)
	}
	sched, err := next.ParsedSchedule()
	if err != nil {
		log.Errorw("config reload rejected, keeping current configuration", "error", err)
		return
	}
	if err := o.Reconfigure(next.SafetyConfig(), sched); err != nil {
		log.Errorw("config reload rejected, keeping current configuration", "error", err)
		return
	}
	log.Infow("configuration reloaded")
}

// group runs named loops and cancels the rest when one fails.
type group struct {
	cancel context.CancelFunc
	log    *zap.SugaredLogger

	errc  chan error
	count int
}

func (g *group) Go(ctx context.Context, name string, fn func(context.Context) error) {
	if g.errc == nil {
		g.errc = make(chan error, 8)
	}
	g.count++
	go func() {
		err := fn(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			g.log.Errorw("component stopped", "component", name, "error", err)
			g.cancel()
			g.errc <- fmt.Errorf("%s: %w", name, err)
			return
		}
		g.errc <- nil
	}()
}

// Wait returns the first failure once every loop has stopped.
func (g *group) Wait() error {
	var first error
	for range g.count {
		if err := <-g.errc; err != nil && first == nil {
			first = err
		}
	}
	return first
}
