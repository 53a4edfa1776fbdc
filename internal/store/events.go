package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Agrid-Dev/thermoguard/internal/safety"
)

const (
	defaultListLimit = 100
	appendTimeout    = 3 * time.Second
	queueSize        = 64

	// Fixed width so text order matches time order.
	timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// EventLog records safety notifications in the safety_events table.
// Notifications are queued and written by Run.
type EventLog struct {
	db    *sql.DB
	log   *zap.SugaredLogger
	queue chan safety.Event
}

func NewEventLog(db *sql.DB, log *zap.SugaredLogger) *EventLog {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &EventLog{db: db, log: log, queue: make(chan safety.Event, queueSize)}
}

// Append inserts an event. Missing id or timestamp are filled in.
func (l *EventLog) Append(ctx context.Context, e safety.Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO safety_events (id, device_id, occurred_at, kind, direction, trigger_temperature, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID,
		e.DeviceID,
		e.Timestamp.UTC().Format(timestampLayout),
		string(e.Kind),
		e.Direction.String(),
		e.TriggerTemperature,
		e.Reason,
	)
	if err != nil {
		return fmt.Errorf("insert safety event: %w", err)
	}
	return nil
}

// Notify implements safety.Notifier. It never waits on the database; when
// the queue is full the event is dropped and logged.
func (l *EventLog) Notify(e safety.Event) {
	select {
	case l.queue <- e:
	default:
		l.log.Warnw("store: safety event queue full, event dropped", "id", e.ID, "kind", string(e.Kind))
	}
}

// Run writes queued events until ctx is done, then writes what is left.
func (l *EventLog) Run(ctx context.Context) error {
	for {
		select {
		case e := <-l.queue:
			l.write(e)
		case <-ctx.Done():
			for {
				select {
				case e := <-l.queue:
					l.write(e)
				default:
					return ctx.Err()
				}
			}
		}
	}
}

func (l *EventLog) write(e safety.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
	defer cancel()
	if err := l.Append(ctx, e); err != nil {
		l.log.Warnw("store: could not record safety event", "id", e.ID, "error", err)
	}
}

// List returns the most recent events first.
func (l *EventLog) List(ctx context.Context, limit int) ([]safety.Event, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, device_id, occurred_at, kind, direction, trigger_temperature, reason
		FROM safety_events
		ORDER BY occurred_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query safety events: %w", err)
	}
	defer rows.Close()

	out := make([]safety.Event, 0, limit)
	for rows.Next() {
		var (
			e         safety.Event
			occurred  string
			kind      string
			direction string
		)
		if err := rows.Scan(&e.ID, &e.DeviceID, &occurred, &kind, &direction, &e.TriggerTemperature, &e.Reason); err != nil {
			return nil, fmt.Errorf("scan safety event: %w", err)
		}
		if e.Timestamp, err = time.Parse(timestampLayout, occurred); err != nil {
			return nil, fmt.Errorf("safety event %s: bad timestamp %q: %w", e.ID, occurred, err)
		}
		if e.Direction, err = safety.ParseDirection(direction); err != nil {
			return nil, fmt.Errorf("safety event %s: %w", e.ID, err)
		}
		e.Kind = safety.EventKind(kind)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
