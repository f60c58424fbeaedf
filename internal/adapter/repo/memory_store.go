package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"mealgen/internal/domain"
)

// MemoryItemStore keeps items in process memory. It backs the service when no
// DATABASE_URL is configured and doubles as a test fake.
type MemoryItemStore struct {
	mu    sync.RWMutex
	items map[string][]domain.GeneratedItem

	// FailChunk, when set, makes SaveChunk fail for matching chunks.
	FailChunk func(domain.ChunkRecord) error
}

func NewMemoryItemStore() *MemoryItemStore {
	return &MemoryItemStore{items: make(map[string][]domain.GeneratedItem)}
}

func (s *MemoryItemStore) SaveChunk(ctx context.Context, chunk domain.ChunkRecord) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.FailChunk != nil {
		if err := s.FailChunk(chunk); err != nil {
			return nil, err
		}
	}
	now := time.Now().UTC()
	ids := make([]string, 0, len(chunk.Items))
	stored := make([]domain.GeneratedItem, 0, len(chunk.Items))
	for _, item := range chunk.Items {
		id := uuid.NewString()
		item.PersistedID = id
		item.CreatedAt = now
		ids = append(ids, id)
		stored = append(stored, item)
	}

	s.mu.Lock()
	s.items[chunk.BatchID] = append(s.items[chunk.BatchID], stored...)
	s.mu.Unlock()
	return ids, nil
}

func (s *MemoryItemStore) ListByBatch(ctx context.Context, batchID string) ([]domain.GeneratedItem, error) {
	s.mu.RLock()
	out := append([]domain.GeneratedItem(nil), s.items[batchID]...)
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ChunkIndex != out[j].ChunkIndex {
			return out[i].ChunkIndex < out[j].ChunkIndex
		}
		return out[i].Index < out[j].Index
	})
	return out, nil
}

// Count returns the number of items stored for a batch.
func (s *MemoryItemStore) Count(batchID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items[batchID])
}

var _ domain.ItemStore = (*MemoryItemStore)(nil)
