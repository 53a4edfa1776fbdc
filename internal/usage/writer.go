package usage

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Agrid-Dev/thermoguard/internal/ports"
)

const saveTimeout = 3 * time.Second

type pending struct {
	date string
	data []byte
	seq  uint64
}

// writer saves encoded records off the caller's goroutine. Records are
// written oldest day first; a newer record for the same day replaces the
// queued one.
type writer struct {
	store ports.Store
	key   string
	log   *zap.SugaredLogger
	wake  chan struct{}

	mu    sync.Mutex
	queue []pending
	seq   uint64
	dirty bool

	saveMu sync.Mutex
}

func newWriter(store ports.Store, key string, log *zap.SugaredLogger) *writer {
	return &writer{store: store, key: key, log: log, wake: make(chan struct{}, 1)}
}

// submit never blocks.
func (w *writer) submit(date string, data []byte) {
	w.mu.Lock()
	w.seq++
	if n := len(w.queue); n > 0 && w.queue[n-1].date == date {
		w.queue[n-1].data, w.queue[n-1].seq = data, w.seq
	} else {
		w.queue = append(w.queue, pending{date: date, data: data, seq: w.seq})
	}
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// drain saves queued records until the queue is empty or a save fails. A
// failed record stays queued for the next attempt.
func (w *writer) drain(ctx context.Context) error {
	w.saveMu.Lock()
	defer w.saveMu.Unlock()

	for {
		w.mu.Lock()
		if len(w.queue) == 0 {
			w.dirty = false
			w.mu.Unlock()
			return nil
		}
		head := w.queue[0]
		w.mu.Unlock()

		if err := w.store.Save(ctx, w.key, head.data); err != nil {
			w.mu.Lock()
			w.dirty = true
			w.mu.Unlock()
			return err
		}

		w.mu.Lock()
		if len(w.queue) > 0 && w.queue[0].seq == head.seq {
			w.queue = w.queue[1:]
		}
		w.mu.Unlock()
	}
}

func (w *writer) isDirty() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dirty
}

func (w *writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.wake:
		}
		sctx, cancel := context.WithTimeout(ctx, saveTimeout)
		if err := w.drain(sctx); err != nil {
			w.log.Warnw("usage: save failed, will retry", "key", w.key, "error", err)
		}
		cancel()
	}
}
