package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"mealgen/internal/domain"
	"mealgen/internal/infra"
	"mealgen/internal/progress"
)

// ErrShuttingDown is returned by Start once Shutdown has begun.
var ErrShuttingDown = errors.New("pipeline: coordinator is shutting down")

// Options configures a Coordinator.
type Options struct {
	// ChunkSize applies when a request does not set one.
	ChunkSize int
	Logger    infra.Logger
	// AbortGrace bounds how long Shutdown waits for runs to unwind after it
	// aborts their in-flight calls.
	AbortGrace time.Duration
}

// Coordinator runs batches through the agents. Each batch gets its own
// goroutine and batchRun; the tracker and the agents' metrics registry are
// the only state shared between batches.
type Coordinator struct {
	agents    Agents
	tracker   *progress.Tracker
	chunkSize  int
	abortGrace time.Duration
	logger     infra.Logger
	now        func() time.Time

	baseCtx context.Context
	stop    context.CancelFunc

	mu     sync.Mutex
	runs   map[string]*batchRun
	closed bool
	wg     sync.WaitGroup

	// beforeChunk runs ahead of the cancellation check for every chunk.
	beforeChunk func(batchID string, chunk int)
}

func New(a Agents, tracker *progress.Tracker, opts Options) *Coordinator {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = domain.DefaultChunkSize
	}
	if opts.AbortGrace <= 0 {
		opts.AbortGrace = 5 * time.Second
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Coordinator{
		agents:    a,
		tracker:   tracker,
		chunkSize:  opts.ChunkSize,
		abortGrace: opts.AbortGrace,
		logger:     opts.Logger.With().Str("component", "coordinator").Logger(),
		now:        time.Now,
		baseCtx:    ctx,
		stop:       stop,
		runs:       make(map[string]*batchRun),
	}
}

// Start validates req and launches the batch in the background. The returned
// batch id is the key for every other call.
func (c *Coordinator) Start(ctx context.Context, req domain.BatchRequest) (domain.Batch, error) {
	req = req.Normalize(c.chunkSize)
	if err := req.Validate(); err != nil {
		return domain.Batch{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.Batch{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return domain.Batch{}, ErrShuttingDown
	}

	id := c.tracker.CreateJob(req.Count, req.ChunkCount())
	run := newBatchRun(domain.Batch{
		ID:        id,
		Request:   req,
		Status:    domain.BatchStatusPlanning,
		CreatedAt: c.now().UTC(),
	}, c.logger)
	batch := run.batch
	c.runs[id] = run
	c.wg.Add(1)
	go c.execute(c.baseCtx, run)

	run.logger.Info().Int("count", req.Count).Int("chunk_size", req.ChunkSize).Msg("batch started")
	return batch, nil
}

// Snapshot returns the latest progress of a batch.
func (c *Coordinator) Snapshot(ctx context.Context, id string) (domain.ProgressSnapshot, error) {
	return c.tracker.Snapshot(ctx, id)
}

// Subscribe streams progress of a batch.
func (c *Coordinator) Subscribe(ctx context.Context, id string) (*progress.Subscription, error) {
	return c.tracker.Subscribe(ctx, id)
}

// Cancel asks a running batch to stop before its next chunk. It returns false
// when the batch is unknown or already finished.
func (c *Coordinator) Cancel(id string) bool {
	c.mu.Lock()
	run, ok := c.runs[id]
	c.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case <-run.done:
		return false
	default:
	}
	if snap, err := c.tracker.Snapshot(context.Background(), id); err == nil && snap.Phase.Terminal() {
		return false
	}
	if run.cancelled.CompareAndSwap(false, true) {
		run.logger.Info().Msg("cancellation requested")
	}
	return true
}

// Wait blocks until the batch finishes or ctx is done.
func (c *Coordinator) Wait(ctx context.Context, id string) error {
	c.mu.Lock()
	run, ok := c.runs[id]
	c.mu.Unlock()
	if !ok {
		_, err := c.tracker.Snapshot(ctx, id)
		return err
	}
	select {
	case <-run.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting batches and cancels the running ones at their next
// chunk boundary. When ctx expires first, in-flight calls are aborted and
// Shutdown still waits up to AbortGrace for the runs to return, so callers can
// release the pool and tracker afterwards.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	runs := make([]*batchRun, 0, len(c.runs))
	for _, run := range c.runs {
		runs = append(runs, run)
	}
	c.mu.Unlock()

	for _, run := range runs {
		run.cancelled.Store(true)
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		c.stop()
		return nil
	case <-ctx.Done():
		c.stop()
		select {
		case <-done:
		case <-time.After(c.abortGrace):
			c.logger.Warn().Int("batches", len(runs)).Msg("batches still running after abort")
		}
		return fmt.Errorf("pipeline shutdown: %w", ctx.Err())
	}
}

func (c *Coordinator) execute(ctx context.Context, run *batchRun) {
	defer c.wg.Done()
	defer func() {
		c.mu.Lock()
		delete(c.runs, run.batch.ID)
		c.mu.Unlock()
		close(run.done)
	}()
	defer func() {
		if r := recover(); r != nil {
			run.logger.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("batch run panicked")
			c.update(run, func(s *domain.ProgressSnapshot, at time.Time) {
				s.Errors = append(s.Errors, domain.ErrorEntry{
					Stage:      s.Phase,
					ChunkIndex: s.CurrentChunk,
					ItemIndex:  -1,
					Message:    fmt.Sprintf("internal error: %v", r),
					At:         at,
				})
			})
			c.finish(run, domain.BatchStatusFailed)
		}
	}()

	c.runBatch(ctx, run)
}

// update applies fn to the batch snapshot with a single timestamp.
func (c *Coordinator) update(run *batchRun, fn func(s *domain.ProgressSnapshot, at time.Time)) {
	at := c.now().UTC()
	if _, err := c.tracker.Update(run.batch.ID, func(s *domain.ProgressSnapshot) { fn(s, at) }); err != nil {
		run.logger.Debug().Err(err).Msg("progress update ignored")
	}
}

func (c *Coordinator) finish(run *batchRun, status domain.BatchStatus) {
	now := c.now().UTC()
	run.batch.Status = status
	run.batch.CompletedAt = &now

	phase := domain.PhaseDone
	switch status {
	case domain.BatchStatusFailed:
		phase = domain.PhaseFailed
	case domain.BatchStatusCancelled:
		phase = domain.PhaseCancelled
	}

	var final domain.ProgressSnapshot
	c.update(run, func(s *domain.ProgressSnapshot, at time.Time) {
		s.Status = status
		s.Phase = phase
		s.CompletedAt = &now
		for name, st := range s.Agents {
			if st.State == domain.AgentWorking {
				st.State = domain.AgentIdle
				s.Agents[name] = st
			}
		}
		final = *s
	})

	run.logger.Info().
		Str("status", string(status)).
		Int("completed", final.ItemsCompleted).
		Int("failed", final.ItemsFailed).
		Int("degraded", final.ItemsDegraded).
		Dur("elapsed", now.Sub(run.batch.CreatedAt)).
		Msg("batch finished")
}
