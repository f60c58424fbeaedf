package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"mealgen/internal/agents"
	"mealgen/internal/domain"
	"mealgen/internal/infra"
)

// batchRun is the state owned by one batch goroutine.
type batchRun struct {
	batch     domain.Batch
	cancelled atomic.Bool
	done      chan struct{}
	logger    infra.Logger
}

func newBatchRun(batch domain.Batch, logger infra.Logger) *batchRun {
	return &batchRun{
		batch:  batch,
		done:   make(chan struct{}),
		logger: logger.With().Str("batch_id", batch.ID).Logger(),
	}
}

func (c *Coordinator) runBatch(ctx context.Context, run *batchRun) {
	id := run.batch.ID
	req := run.batch.Request

	c.update(run, func(s *domain.ProgressSnapshot, at time.Time) {
		markAgent(s, domain.AgentConcept, domain.AgentWorking, "", at)
	})
	concepts, err := c.agents.Concept.Plan(ctx, id, req)
	if err != nil {
		run.logger.Error().Err(err).Msg("concept planning failed")
		c.update(run, func(s *domain.ProgressSnapshot, at time.Time) {
			markAgent(s, domain.AgentConcept, domain.AgentError, err.Error(), at)
			s.Errors = append(s.Errors, domain.ErrorEntry{
				Stage:      domain.PhasePlanning,
				ChunkIndex: -1,
				ItemIndex:  -1,
				Message:    err.Error(),
				At:         at,
			})
		})
		c.finish(run, domain.BatchStatusFailed)
		return
	}

	chunks := agents.Chunk(concepts, req.ChunkSize)
	run.batch.Status = domain.BatchStatusRunning
	c.update(run, func(s *domain.ProgressSnapshot, at time.Time) {
		s.Status = domain.BatchStatusRunning
		s.TotalChunks = len(chunks)
		s.Chunks = make([]domain.ChunkProgress, len(chunks))
		for i, ch := range chunks {
			s.Chunks[i] = domain.ChunkProgress{Index: ch.Index, Size: len(ch.Concepts), State: domain.ChunkPending}
		}
		markAgent(s, domain.AgentConcept, domain.AgentComplete, "", at)
	})

	for _, chunk := range chunks {
		if c.beforeChunk != nil {
			c.beforeChunk(id, chunk.Index)
		}
		if run.cancelled.Load() || ctx.Err() != nil {
			run.logger.Info().Int("chunk", chunk.Index).Msg("batch cancelled before chunk")
			c.update(run, func(s *domain.ProgressSnapshot, at time.Time) {
				for i := chunk.Index; i < len(s.Chunks); i++ {
					s.Chunks[i].State = domain.ChunkSkipped
				}
			})
			c.finish(run, domain.BatchStatusCancelled)
			return
		}
		c.processChunk(ctx, run, chunk)
	}
	// A cancel accepted while the last chunk ran still ends the batch as
	// cancelled; that chunk's items stay persisted.
	if run.cancelled.Load() {
		run.logger.Info().Msg("batch cancelled during final chunk")
		c.finish(run, domain.BatchStatusCancelled)
		return
	}
	c.finish(run, domain.BatchStatusCompleted)
}

// processChunk takes one chunk through validation, media, storage and
// persistence. Failures stay inside the chunk.
func (c *Coordinator) processChunk(ctx context.Context, run *batchRun, chunk domain.Chunk) {
	req := run.batch.Request
	idx := chunk.Index
	logger := run.logger.With().Int("chunk", idx).Logger()

	c.update(run, func(s *domain.ProgressSnapshot, at time.Time) {
		s.CurrentChunk = idx
		s.Phase = domain.PhaseValidating
		if cp := chunkAt(s, idx); cp != nil {
			cp.State = domain.ChunkRunning
		}
		markAgent(s, domain.AgentValidation, domain.AgentWorking, "", at)
	})
	items, failures := c.validateChunk(ctx, run, chunk)
	c.update(run, func(s *domain.ProgressSnapshot, at time.Time) {
		s.ItemsFailed += len(failures)
		for _, f := range failures {
			f.At = at
			s.Errors = append(s.Errors, f)
		}
		if cp := chunkAt(s, idx); cp != nil {
			cp.Failed += len(failures)
			if len(items) == 0 {
				cp.State = domain.ChunkFailed
			}
		}
		markAgent(s, domain.AgentValidation, agentOutcome(failures), lastMessage(failures), at)
	})
	if len(items) == 0 {
		logger.Warn().Int("failed", len(failures)).Msg("no valid items in chunk")
		return
	}

	c.update(run, func(s *domain.ProgressSnapshot, at time.Time) {
		s.Phase = domain.PhaseImaging
		markAgent(s, domain.AgentMedia, domain.AgentWorking, "", at)
	})
	var degraded []domain.ErrorEntry
	if req.Features.GenerateMediaEnabled() {
		for i, res := range c.agents.Media.GenerateAll(ctx, items) {
			items[i] = res.Item
			if res.Degraded {
				degraded = append(degraded, itemError(domain.PhaseImaging, res.Item, res.Err))
			}
		}
	} else {
		for i := range items {
			items[i] = c.agents.Media.Placeholder(items[i])
		}
	}
	c.update(run, func(s *domain.ProgressSnapshot, at time.Time) {
		s.ItemsDegraded += len(degraded)
		for _, d := range degraded {
			d.At = at
			s.Errors = append(s.Errors, d)
		}
		markAgent(s, domain.AgentMedia, agentOutcome(degraded), lastMessage(degraded), at)
	})

	if req.Features.StoreMediaEnabled() {
		c.update(run, func(s *domain.ProgressSnapshot, at time.Time) {
			s.Phase = domain.PhaseStoring
			markAgent(s, domain.AgentStorage, domain.AgentWorking, "", at)
		})
		var fallbacks []domain.ErrorEntry
		for i, res := range c.agents.Storage.StoreAll(ctx, items) {
			items[i] = res.Item
			if res.Fallback {
				fallbacks = append(fallbacks, itemError(domain.PhaseStoring, res.Item, res.Err))
			}
		}
		c.update(run, func(s *domain.ProgressSnapshot, at time.Time) {
			s.ItemsDegraded += len(fallbacks)
			for _, f := range fallbacks {
				f.At = at
				s.Errors = append(s.Errors, f)
			}
			markAgent(s, domain.AgentStorage, agentOutcome(fallbacks), lastMessage(fallbacks), at)
		})
	} else {
		for i := range items {
			items[i] = agents.Unstored(items[i])
		}
	}

	c.update(run, func(s *domain.ProgressSnapshot, at time.Time) {
		s.Phase = domain.PhasePersisting
		markAgent(s, domain.AgentPersistence, domain.AgentWorking, "", at)
	})
	persisted, err := c.agents.Persistence.PersistChunk(ctx, run.batch.ID, idx, items)
	if err != nil {
		logger.Error().Err(err).Int("items", len(items)).Msg("chunk persistence failed")
		c.update(run, func(s *domain.ProgressSnapshot, at time.Time) {
			for _, item := range items {
				e := itemError(domain.PhasePersisting, item, err)
				e.At = at
				s.Errors = append(s.Errors, e)
			}
			s.ItemsFailed += len(items)
			if cp := chunkAt(s, idx); cp != nil {
				cp.Failed += len(items)
				cp.State = domain.ChunkFailed
			}
			markAgent(s, domain.AgentPersistence, domain.AgentError, err.Error(), at)
		})
		return
	}

	c.update(run, func(s *domain.ProgressSnapshot, at time.Time) {
		s.ItemsCompleted += len(persisted)
		if cp := chunkAt(s, idx); cp != nil {
			cp.Persisted = len(persisted)
			cp.State = domain.ChunkPersisted
		}
		markAgent(s, domain.AgentPersistence, domain.AgentComplete, "", at)
	})
	logger.Info().Int("persisted", len(persisted)).Int("failed", len(failures)).Int("degraded", len(degraded)).Msg("chunk done")
}

// validateChunk drafts and validates every concept. Items that cannot be
// drafted or fail identity checks are returned as error entries.
func (c *Coordinator) validateChunk(ctx context.Context, run *batchRun, chunk domain.Chunk) ([]domain.GeneratedItem, []domain.ErrorEntry) {
	req := run.batch.Request
	items := make([]domain.GeneratedItem, 0, len(chunk.Concepts))
	var failures []domain.ErrorEntry

	for _, concept := range chunk.Concepts {
		draft, err := c.agents.Drafter.Draft(ctx, run.batch.ID, concept)
		if err != nil {
			failures = append(failures, domain.ErrorEntry{
				Stage:      domain.PhaseValidating,
				ChunkIndex: chunk.Index,
				ItemIndex:  concept.Index,
				ItemName:   concept.Name,
				Message:    fmt.Sprintf("draft: %v", err),
			})
			continue
		}
		draft.BatchID = run.batch.ID
		draft.ChunkIndex = chunk.Index
		draft.Index = concept.Index
		draft.Concept = concept

		var item domain.GeneratedItem
		if req.Features.ValidateEnabled() {
			item, err = c.agents.Validation.Validate(ctx, draft, req.Targets)
		} else {
			item, err = c.agents.Validation.ValidateIdentity(ctx, draft)
		}
		if err != nil {
			failures = append(failures, itemError(domain.PhaseValidating, draft, err))
			continue
		}
		items = append(items, item)
	}
	return items, failures
}

func itemError(stage domain.Phase, item domain.GeneratedItem, err error) domain.ErrorEntry {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	name := item.Name
	if name == "" {
		name = item.Concept.Name
	}
	return domain.ErrorEntry{
		Stage:      stage,
		ChunkIndex: item.ChunkIndex,
		ItemIndex:  item.Index,
		ItemName:   name,
		Message:    msg,
	}
}

func chunkAt(s *domain.ProgressSnapshot, idx int) *domain.ChunkProgress {
	if idx < 0 || idx >= len(s.Chunks) {
		return nil
	}
	return &s.Chunks[idx]
}

func markAgent(s *domain.ProgressSnapshot, name domain.AgentName, state domain.AgentState, msg string, at time.Time) {
	if s.Agents == nil {
		s.Agents = make(map[domain.AgentName]domain.AgentStatus)
	}
	t := at
	s.Agents[name] = domain.AgentStatus{State: state, LastOperationAt: &t, Error: msg}
}

func agentOutcome(entries []domain.ErrorEntry) domain.AgentState {
	if len(entries) > 0 {
		return domain.AgentError
	}
	return domain.AgentComplete
}

func lastMessage(entries []domain.ErrorEntry) string {
	if len(entries) == 0 {
		return ""
	}
	return entries[len(entries)-1].Message
}
