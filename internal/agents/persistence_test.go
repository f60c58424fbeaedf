package agents

import (
	"context"
	"errors"
	"testing"

	"mealgen/internal/adapter/repo"
	"mealgen/internal/domain"
)

func TestPersistChunkAssignsIDs(t *testing.T) {
	w, _ := newTestWorker(domain.AgentPersistence, 3)
	store := repo.NewMemoryItemStore()
	agent := NewPersistenceAgent(w, store)

	items := []domain.GeneratedItem{sampleItem(5, "A"), sampleItem(6, "B")}
	items[0].Media.Data = []byte{1, 2, 3}

	got, err := agent.PersistChunk(context.Background(), "batch-1", 1, items)
	if err != nil {
		t.Fatalf("PersistChunk returned error: %v", err)
	}
	if len(got) != 2 || got[0].PersistedID == "" || got[1].PersistedID == "" {
		t.Fatalf("ids not assigned: %+v", got)
	}
	if got[0].Media.Data != nil {
		t.Fatal("media bytes must not reach the store")
	}
	if items[0].PersistedID != "" {
		t.Fatal("input slice was mutated")
	}
	if n := store.Count("batch-1"); n != 2 {
		t.Fatalf("store holds %d items, want 2", n)
	}
}

func TestPersistChunkRetriesThenFails(t *testing.T) {
	w, _ := newTestWorker(domain.AgentPersistence, 3)
	store := repo.NewMemoryItemStore()
	attempts := 0
	store.FailChunk = func(rec domain.ChunkRecord) error {
		attempts++
		return errors.New("connection reset")
	}
	agent := NewPersistenceAgent(w, store)

	_, err := agent.PersistChunk(context.Background(), "batch-1", 2, []domain.GeneratedItem{sampleItem(10, "A")})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
	if n := store.Count("batch-1"); n != 0 {
		t.Fatalf("failed chunk left %d items behind", n)
	}
}

func TestPersistChunkEmptyIsNoop(t *testing.T) {
	w, _ := newTestWorker(domain.AgentPersistence, 3)
	agent := NewPersistenceAgent(w, repo.NewMemoryItemStore())

	got, err := agent.PersistChunk(context.Background(), "batch-1", 0, nil)
	if err != nil || got != nil {
		t.Fatalf("got %v, %v", got, err)
	}
	if m := w.Metrics().Get(domain.AgentPersistence); m.AttemptCount != 0 {
		t.Fatalf("empty chunk touched the store: %+v", m)
	}
}
