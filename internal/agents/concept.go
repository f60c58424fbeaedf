package agents

import (
	"context"
	"fmt"

	"mealgen/internal/domain"
	"mealgen/internal/providers/planner"
)

// ConceptAgent plans the concepts of a batch.
type ConceptAgent struct {
	worker *Worker
	source planner.Source
	// MaxDiversityAttempts caps replacement candidates; zero means 3x the item count.
	MaxDiversityAttempts int
}

func NewConceptAgent(worker *Worker, source planner.Source) *ConceptAgent {
	return &ConceptAgent{worker: worker, source: source}
}

// Plan returns exactly req.Count concepts in batch order. Concepts sharing a
// category and main ingredient are replaced while the diversity budget lasts;
// after that the duplicates are kept. Any error here fails the whole batch.
func (a *ConceptAgent) Plan(ctx context.Context, batchID string, req domain.BatchRequest) ([]domain.ItemConcept, error) {
	logger := a.worker.Logger().With().Str("batch_id", batchID).Str("source", a.source.Name()).Logger()

	budget := a.MaxDiversityAttempts
	if budget <= 0 {
		budget = 3 * req.Count
	}

	propose := func(round, count int, avoid []string) ([]domain.ItemConcept, error) {
		return Run(ctx, a.worker, "propose", func(ctx context.Context) ([]domain.ItemConcept, error) {
			return a.source.Propose(ctx, planner.Request{
				BatchID: batchID,
				Batch:   req,
				Count:   count,
				Round:   round,
				Avoid:   avoid,
			})
		})
	}

	initial, err := propose(0, req.Count, nil)
	if err != nil {
		return nil, fmt.Errorf("propose concepts: %w", err)
	}

	taken := make(map[string]bool, req.Count)
	var accepted, duplicates []domain.ItemConcept
	accept := func(candidates []domain.ItemConcept) {
		for _, c := range candidates {
			if len(accepted) == req.Count {
				return
			}
			key := c.DiversityKey()
			if taken[key] {
				duplicates = append(duplicates, c)
				continue
			}
			taken[key] = true
			accepted = append(accepted, c)
		}
	}
	accept(initial)

	for round := 1; len(accepted) < req.Count && budget > 0; round++ {
		ask := req.Count - len(accepted)
		if ask > budget {
			ask = budget
		}
		avoid := make([]string, 0, len(taken))
		for key := range taken {
			avoid = append(avoid, key)
		}
		candidates, err := propose(round, ask, avoid)
		if err != nil {
			logger.Warn().Err(err).Int("round", round).Msg("replacement proposal failed, keeping duplicates")
			break
		}
		spent := len(candidates)
		if spent == 0 {
			spent = ask
		}
		budget -= spent
		accept(candidates)
	}

	if len(accepted) < req.Count {
		missing := req.Count - len(accepted)
		if missing > len(duplicates) {
			return nil, fmt.Errorf("concept source returned %d of %d concepts", len(accepted)+len(duplicates), req.Count)
		}
		logger.Warn().Int("duplicates", missing).Msg("diversity budget exhausted, allowing duplicate concepts")
		accepted = append(accepted, duplicates[:missing]...)
	}

	out := make([]domain.ItemConcept, len(accepted))
	for i, c := range accepted {
		c.Index = i
		if c.Targets == (domain.Targets{}) {
			c.Targets = req.Targets
		}
		if c.Seed == "" {
			c.Seed = fmt.Sprintf("A %s %s built around %s.", c.Cuisine, c.Category, c.MainIngredient)
		}
		out[i] = c
	}
	logger.Info().Int("concepts", len(out)).Msg("concepts planned")
	return out, nil
}

// Chunk splits concepts into consecutive groups of size; the last group may
// be shorter. The result is ceil(len/size) chunks.
func Chunk(concepts []domain.ItemConcept, size int) []domain.Chunk {
	if size <= 0 {
		size = domain.DefaultChunkSize
	}
	chunks := make([]domain.Chunk, 0, (len(concepts)+size-1)/size)
	for start := 0; start < len(concepts); start += size {
		end := start + size
		if end > len(concepts) {
			end = len(concepts)
		}
		chunks = append(chunks, domain.Chunk{
			Index:    len(chunks),
			Concepts: append([]domain.ItemConcept(nil), concepts[start:end]...),
		})
	}
	return chunks
}
