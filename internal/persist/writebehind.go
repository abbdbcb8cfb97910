package persist

import (
	"context"
	"sync"
	"time"

	"tournethub/coordinator/internal/logging"
)

const defaultQueueDepth = 1024

// record is one pending write.
type record struct {
	kind    string
	id      string
	payload any
}

// WriteBehind drains snapshotted entities to the storage collaborator on a
// worker pool sized independently of connection count. Handlers enqueue a
// snapshot and move on; they never hold entity locks across a storage call.
type WriteBehind struct {
	log   *logging.Logger
	store Store
	queue chan record
	wg    sync.WaitGroup

	closeOnce sync.Once
}

// NewWriteBehind starts the worker pool against the given store.
func NewWriteBehind(store Store, workers int, logger *logging.Logger) *WriteBehind {
	if logger == nil {
		logger = logging.L()
	}
	if workers <= 0 {
		workers = 1
	}
	w := &WriteBehind{
		log:   logger,
		store: store,
		queue: make(chan record, defaultQueueDepth),
	}
	for i := 0; i < workers; i++ {
		w.wg.Add(1)
		go w.drain()
	}
	return w
}

// Enqueue schedules a snapshot for persistence. A saturated queue drops the
// write with a warning; live state stays the source of truth either way.
func (w *WriteBehind) Enqueue(kind, id string, payload any) {
	if w == nil || w.store == nil {
		return
	}
	select {
	case w.queue <- record{kind: kind, id: id, payload: payload}:
	default:
		w.log.Warn("persistence queue saturated, dropping write",
			logging.String("kind", kind), logging.String("id", id))
	}
}

func (w *WriteBehind) drain() {
	defer w.wg.Done()
	for item := range w.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := w.store.Save(ctx, item.kind, item.id, item.payload)
		if err != nil {
			// One immediate retry covers transient collaborator hiccups.
			err = w.store.Save(ctx, item.kind, item.id, item.payload)
		}
		cancel()
		if err != nil {
			w.log.Error("persistence write failed",
				logging.String("kind", item.kind),
				logging.String("id", item.id),
				logging.Error(err))
		}
	}
}

// Close drains outstanding writes and stops the workers.
func (w *WriteBehind) Close() {
	if w == nil {
		return
	}
	w.closeOnce.Do(func() {
		close(w.queue)
		w.wg.Wait()
	})
}
