package state

import (
	"sync"

	"tournethub/coordinator/internal/logging"
)

// subscriber holds one consumer's buffered delivery channel.
type subscriber struct {
	id      string
	ch      chan ChangeEvent
	dropped uint64
}

// Subscription exposes the ordered change-event channel for one consumer.
type Subscription struct {
	id    string
	store *Store
	ch    <-chan ChangeEvent
	once  sync.Once
}

// Subscribe attaches a consumer to the change-event stream. Events arrive in
// mutation order; a consumer that cannot keep up loses events rather than
// stalling mutations, with the loss counted and logged.
func (s *Store) Subscribe(id string, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 64
	}
	sub := &subscriber{id: id, ch: make(chan ChangeEvent, buffer)}
	s.seqMu.Lock()
	s.subs[id] = sub
	s.seqMu.Unlock()
	return &Subscription{id: id, store: s, ch: sub.ch}
}

// Events returns the delivery channel. It closes when the subscription does.
func (sub *Subscription) Events() <-chan ChangeEvent {
	if sub == nil {
		return nil
	}
	return sub.ch
}

// Close detaches the consumer and closes its channel.
func (sub *Subscription) Close() {
	if sub == nil || sub.store == nil {
		return
	}
	sub.once.Do(func() {
		sub.store.seqMu.Lock()
		if state, ok := sub.store.subs[sub.id]; ok {
			delete(sub.store.subs, sub.id)
			close(state.ch)
		}
		sub.store.seqMu.Unlock()
	})
}

// Dropped reports how many events the consumer lost to backpressure.
func (sub *Subscription) Dropped() uint64 {
	if sub == nil || sub.store == nil {
		return 0
	}
	sub.store.seqMu.Lock()
	defer sub.store.seqMu.Unlock()
	if state, ok := sub.store.subs[sub.id]; ok {
		return state.dropped
	}
	return 0
}

// emit assigns the next sequence number and fans the event out. Sequence
// assignment and enqueue happen under one lock so every subscriber sees
// events in mutation order.
func (s *Store) emit(event ChangeEvent) {
	s.seqMu.Lock()
	s.seq++
	event.Seq = s.seq
	for _, sub := range s.subs {
		select {
		case sub.ch <- event:
		default:
			sub.dropped++
			if sub.dropped%64 == 1 {
				s.log.Warn("change-event subscriber overflowing",
					logging.String("subscriber", sub.id),
					logging.Uint64("dropped", sub.dropped))
			}
		}
	}
	s.seqMu.Unlock()
}

// Seq reports the latest assigned mutation sequence.
func (s *Store) Seq() uint64 {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	return s.seq
}
