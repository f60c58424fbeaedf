package agents

import (
	"context"
	"fmt"

	"mealgen/internal/domain"
)

// PersistenceAgent writes finished chunks to the item store.
type PersistenceAgent struct {
	worker *Worker
	store  domain.ItemStore
}

func NewPersistenceAgent(worker *Worker, store domain.ItemStore) *PersistenceAgent {
	return &PersistenceAgent{worker: worker, store: store}
}

// PersistChunk stores all items in one transaction and returns copies
// carrying their persisted ids. On error nothing from the chunk is stored.
func (a *PersistenceAgent) PersistChunk(ctx context.Context, batchID string, chunkIndex int, items []domain.GeneratedItem) ([]domain.GeneratedItem, error) {
	if len(items) == 0 {
		return nil, nil
	}
	record := domain.ChunkRecord{
		BatchID:    batchID,
		ChunkIndex: chunkIndex,
		Items:      make([]domain.GeneratedItem, len(items)),
	}
	for i, item := range items {
		item.BatchID = batchID
		item.ChunkIndex = chunkIndex
		item.Media.Data = nil
		record.Items[i] = item
	}

	ids, err := Run(ctx, a.worker, "persist_chunk", func(ctx context.Context) ([]string, error) {
		ids, err := a.store.SaveChunk(ctx, record)
		if err != nil {
			return nil, err
		}
		if len(ids) != len(record.Items) {
			return nil, Permanent(fmt.Errorf("store returned %d ids for %d items", len(ids), len(record.Items)))
		}
		return ids, nil
	})
	if err != nil {
		return nil, fmt.Errorf("persist chunk %d: %w", chunkIndex, err)
	}

	out := record.Items
	for i := range out {
		out[i].PersistedID = ids[i]
	}
	a.worker.Logger().Debug().Str("batch_id", batchID).Int("chunk", chunkIndex).Int("items", len(out)).Msg("chunk persisted")
	return out, nil
}
