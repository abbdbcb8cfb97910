package journal

import (
	"sync"
	"time"

	"tournethub/coordinator/internal/logging"
	"tournethub/coordinator/internal/state"
)

// Recorder drains the store change stream into a journal and cuts periodic
// full snapshots so rebuilds never replay the whole event log.
type Recorder struct {
	log      *logging.Logger
	journal  *Journal
	store    *state.Store
	sub      *state.Subscription
	interval time.Duration
	done     chan struct{}
	wg       sync.WaitGroup

	mu           sync.Mutex
	appended     uint64
	snapshots    uint64
	lastSnapshot time.Time
}

// RecorderStats summarises recorder health for monitoring endpoints.
type RecorderStats struct {
	AppendedEvents uint64
	Snapshots      uint64
	LastSnapshot   time.Time
	DroppedEvents  uint64
}

// NewRecorder subscribes to the store and begins journalling in the background.
func NewRecorder(journal *Journal, store *state.Store, interval time.Duration, logger *logging.Logger) *Recorder {
	if logger == nil {
		logger = logging.L()
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	recorder := &Recorder{
		log:      logger,
		journal:  journal,
		store:    store,
		sub:      store.Subscribe("journal", 1024),
		interval: interval,
		done:     make(chan struct{}),
	}
	recorder.wg.Add(1)
	go recorder.run()
	return recorder
}

func (r *Recorder) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-r.sub.Events():
			if !ok {
				return
			}
			//1.- Append in stream order; a failed write is logged rather than halting dispatch.
			if err := r.journal.Append(event); err != nil {
				r.log.Error("journal append failed", logging.Error(err), logging.Uint64("seq", event.Seq))
				continue
			}
			r.mu.Lock()
			r.appended++
			r.mu.Unlock()
		case <-ticker.C:
			r.snapshot()
		case <-r.done:
			return
		}
	}
}

func (r *Recorder) snapshot() {
	path, err := r.journal.Snapshot(r.store.Export())
	if err != nil {
		r.log.Error("journal snapshot failed", logging.Error(err))
		return
	}
	r.mu.Lock()
	r.snapshots++
	r.lastSnapshot = time.Now().UTC()
	r.mu.Unlock()
	r.log.Info("journal snapshot written", logging.String("path", path))
}

// Stats reports recorder progress for the introspection endpoints.
func (r *Recorder) Stats() RecorderStats {
	if r == nil {
		return RecorderStats{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return RecorderStats{
		AppendedEvents: r.appended,
		Snapshots:      r.snapshots,
		LastSnapshot:   r.lastSnapshot,
		DroppedEvents:  r.sub.Dropped(),
	}
}

// Close stops the drain loop, cuts a final snapshot and closes the journal.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	r.sub.Close()
	close(r.done)
	r.wg.Wait()

	//1.- A final snapshot captures whatever the closing stream delivered.
	r.snapshot()
	return r.journal.Close()
}
