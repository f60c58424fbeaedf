package progress

import (
	"sync"
	"sync/atomic"

	"mealgen/internal/domain"
)

// Subscription is one consumer of a batch's progress stream. When the
// consumer falls behind, the oldest queued snapshot is dropped so the
// producer never waits.
type Subscription struct {
	ch        chan domain.ProgressSnapshot
	tracker   *Tracker
	batchID   string
	closeOnce sync.Once
	closed    bool
	dropped   atomic.Int64
}

// Events returns the snapshot stream. It is closed when the batch finishes
// or the subscription is closed.
func (s *Subscription) Events() <-chan domain.ProgressSnapshot {
	return s.ch
}

// BatchID returns the batch this subscription follows.
func (s *Subscription) BatchID() string { return s.batchID }

// Dropped reports how many snapshots were discarded for this subscriber.
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.tracker.unsubscribe(s)
}

// push must be called with the owning entry locked.
func (s *Subscription) push(snap domain.ProgressSnapshot) {
	if s.closed {
		return
	}
	for {
		select {
		case s.ch <- snap:
			return
		default:
		}
		select {
		case <-s.ch:
			s.dropped.Add(1)
		default:
		}
	}
}

// closeLocked must be called with the owning entry locked.
func (s *Subscription) closeLocked() {
	s.closeOnce.Do(func() {
		s.closed = true
		close(s.ch)
	})
}
