package progress

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"mealgen/internal/domain"
	"mealgen/internal/infra"
)

// Mirror receives every published snapshot and answers lookups for batches
// that are no longer held in memory.
type Mirror interface {
	Save(ctx context.Context, snap domain.ProgressSnapshot) error
	Load(ctx context.Context, batchID string) (domain.ProgressSnapshot, error)
}

// Options configures a Tracker.
type Options struct {
	// Buffer is the per-subscriber channel capacity.
	Buffer int
	// Retention is how long terminal batches stay in memory.
	Retention time.Duration
	Mirror    Mirror
	Logger    infra.Logger
	Now       func() time.Time
}

// Tracker holds the progress of every batch in this process. It never
// changes a batch on its own; the coordinator drives every transition.
type Tracker struct {
	mu        sync.RWMutex
	jobs      map[string]*entry
	buffer    int
	retention time.Duration
	logger    infra.Logger
	now       func() time.Time

	// Mirror writes are coalesced to the newest snapshot per batch, so a slow
	// mirror delays state but never loses the terminal snapshot.
	mirror        Mirror
	mirrorMu      sync.Mutex
	mirrorPending map[string]domain.ProgressSnapshot
	mirrorWake    chan struct{}
	mirrorClosed  bool
	mirrorWG      sync.WaitGroup
}

type entry struct {
	mu         sync.Mutex
	snap       domain.ProgressSnapshot
	subs       map[*Subscription]struct{}
	finishedAt time.Time
	// mirrored is set once the terminal snapshot reached the mirror.
	mirrored bool
}

func NewTracker(opts Options) *Tracker {
	if opts.Buffer < 1 {
		opts.Buffer = 16
	}
	if opts.Retention <= 0 {
		opts.Retention = time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	t := &Tracker{
		jobs:      make(map[string]*entry),
		buffer:    opts.Buffer,
		retention: opts.Retention,
		logger:    opts.Logger.With().Str("component", "progress").Logger(),
		now:       opts.Now,
		mirror:    opts.Mirror,
	}
	if t.mirror != nil {
		t.mirrorPending = make(map[string]domain.ProgressSnapshot)
		t.mirrorWake = make(chan struct{}, 1)
		t.mirrorWG.Add(1)
		go t.mirrorLoop()
	}
	return t
}

// CreateJob registers a new batch and returns its id.
func (t *Tracker) CreateJob(totalItems, totalChunks int) string {
	id := uuid.NewString()
	now := t.now().UTC()
	agents := make(map[domain.AgentName]domain.AgentStatus, len(domain.AgentNames))
	for _, name := range domain.AgentNames {
		agents[name] = domain.AgentStatus{State: domain.AgentIdle}
	}
	e := &entry{
		snap: domain.ProgressSnapshot{
			BatchID:      id,
			Status:       domain.BatchStatusPlanning,
			Phase:        domain.PhasePlanning,
			CurrentChunk: -1,
			TotalChunks:  totalChunks,
			TotalItems:   totalItems,
			Agents:       agents,
			Chunks:       []domain.ChunkProgress{},
			Errors:       []domain.ErrorEntry{},
			StartedAt:    now,
			UpdatedAt:    now,
			Version:      1,
		},
		subs: make(map[*Subscription]struct{}),
	}

	t.mu.Lock()
	t.jobs[id] = e
	t.mu.Unlock()

	t.publishMirror(e.snap.Clone())
	return id
}

func (t *Tracker) get(id string) (*entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.jobs[id]
	return e, ok
}

// Update applies fn to the batch snapshot and pushes the result to every
// subscriber. Once a batch reaches a terminal phase further updates fail
// with domain.ErrBatchTerminal.
func (t *Tracker) Update(id string, fn func(*domain.ProgressSnapshot)) (domain.ProgressSnapshot, error) {
	e, ok := t.get(id)
	if !ok {
		return domain.ProgressSnapshot{}, fmt.Errorf("batch %s: %w", id, domain.ErrNotFound)
	}

	e.mu.Lock()
	if e.snap.Phase.Terminal() {
		out := e.snap.Clone()
		e.mu.Unlock()
		return out, fmt.Errorf("batch %s: %w", id, domain.ErrBatchTerminal)
	}

	fn(&e.snap)
	now := t.now().UTC()
	e.snap.BatchID = id
	e.snap.Version++
	e.snap.UpdatedAt = now
	if e.snap.ItemsCompleted > e.snap.TotalItems {
		e.snap.ItemsCompleted = e.snap.TotalItems
	}
	terminal := e.snap.Phase.Terminal()
	if terminal {
		if e.snap.CompletedAt == nil {
			e.snap.CompletedAt = &now
		}
		e.finishedAt = now
	}

	out := e.snap.Clone()
	for sub := range e.subs {
		sub.push(out.Clone())
		if terminal {
			sub.closeLocked()
		}
	}
	if terminal {
		e.subs = make(map[*Subscription]struct{})
	}
	e.mu.Unlock()

	t.publishMirror(out.Clone())
	return out, nil
}

// Snapshot returns a copy of the batch progress. Batches already pruned from
// memory are looked up in the mirror when one is configured.
func (t *Tracker) Snapshot(ctx context.Context, id string) (domain.ProgressSnapshot, error) {
	if e, ok := t.get(id); ok {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.snap.Clone(), nil
	}
	if t.mirror == nil {
		return domain.ProgressSnapshot{}, fmt.Errorf("batch %s: %w", id, domain.ErrNotFound)
	}
	snap, err := t.mirror.Load(ctx, id)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			t.logger.Warn().Err(err).Str("batch_id", id).Msg("progress mirror lookup failed")
		}
		return domain.ProgressSnapshot{}, fmt.Errorf("batch %s: %w", id, domain.ErrNotFound)
	}
	return snap, nil
}

// Subscribe returns a stream that starts with the current snapshot and then
// receives every update. The stream closes after the terminal snapshot or on
// Close. Subscribing to a finished batch yields its final snapshot and closes.
func (t *Tracker) Subscribe(ctx context.Context, id string) (*Subscription, error) {
	sub := &Subscription{
		ch:      make(chan domain.ProgressSnapshot, t.buffer),
		tracker: t,
		batchID: id,
	}

	e, ok := t.get(id)
	if !ok {
		snap, err := t.Snapshot(ctx, id)
		if err != nil {
			return nil, err
		}
		sub.push(snap)
		sub.closeLocked()
		return sub, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	sub.push(e.snap.Clone())
	if e.snap.Phase.Terminal() {
		sub.closeLocked()
		return sub, nil
	}
	e.subs[sub] = struct{}{}
	return sub, nil
}

func (t *Tracker) unsubscribe(sub *Subscription) {
	e, ok := t.get(sub.batchID)
	if !ok {
		sub.closeLocked()
		return
	}
	e.mu.Lock()
	delete(e.subs, sub)
	sub.closeLocked()
	e.mu.Unlock()
}

// Prune drops terminal batches finished longer than the retention window ago
// and returns how many were removed. With a mirror configured, a batch stays
// in memory until its terminal snapshot has been mirrored; the snapshot is
// queued again so a mirror that recovers catches up.
func (t *Tracker) Prune() int {
	cutoff := t.now().UTC().Add(-t.retention)
	var unmirrored []domain.ProgressSnapshot
	removed := 0

	t.mu.Lock()
	for id, e := range t.jobs {
		e.mu.Lock()
		expired := !e.finishedAt.IsZero() && e.finishedAt.Before(cutoff)
		keep := t.mirror != nil && !e.mirrored
		if expired && keep {
			unmirrored = append(unmirrored, e.snap.Clone())
		}
		e.mu.Unlock()
		if expired && !keep {
			delete(t.jobs, id)
			removed++
		}
	}
	t.mu.Unlock()

	for _, snap := range unmirrored {
		t.publishMirror(snap)
	}
	return removed
}

// RunJanitor prunes expired batches every interval until ctx is done.
func (t *Tracker) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := t.Prune(); n > 0 {
				t.logger.Debug().Int("pruned", n).Msg("pruned finished batches")
			}
		}
	}
}

// Close stops the mirror writer after flushing pending snapshots.
func (t *Tracker) Close() {
	if t.mirror == nil {
		return
	}
	t.mirrorMu.Lock()
	t.mirrorClosed = true
	t.mirrorMu.Unlock()
	t.wakeMirror()
	t.mirrorWG.Wait()
}

func (t *Tracker) publishMirror(snap domain.ProgressSnapshot) {
	if t.mirror == nil {
		return
	}
	t.mirrorMu.Lock()
	if t.mirrorClosed {
		t.mirrorMu.Unlock()
		return
	}
	if prev, ok := t.mirrorPending[snap.BatchID]; !ok || prev.Version <= snap.Version {
		t.mirrorPending[snap.BatchID] = snap
	}
	t.mirrorMu.Unlock()
	t.wakeMirror()
}

func (t *Tracker) wakeMirror() {
	select {
	case t.mirrorWake <- struct{}{}:
	default:
	}
}

func (t *Tracker) mirrorLoop() {
	defer t.mirrorWG.Done()
	for {
		t.mirrorMu.Lock()
		pending := t.mirrorPending
		t.mirrorPending = make(map[string]domain.ProgressSnapshot)
		closed := t.mirrorClosed
		t.mirrorMu.Unlock()

		for _, snap := range pending {
			t.saveMirror(snap)
		}
		if len(pending) > 0 {
			continue
		}
		if closed {
			return
		}
		<-t.mirrorWake
	}
}

func (t *Tracker) saveMirror(snap domain.ProgressSnapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := t.mirror.Save(ctx, snap); err != nil {
		t.logger.Warn().Err(err).Str("batch_id", snap.BatchID).Int64("version", snap.Version).Msg("progress mirror save failed")
		return
	}
	if !snap.Phase.Terminal() {
		return
	}
	if e, ok := t.get(snap.BatchID); ok {
		e.mu.Lock()
		e.mirrored = true
		e.mu.Unlock()
	}
}
