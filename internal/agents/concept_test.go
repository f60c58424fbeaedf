package agents

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"mealgen/internal/domain"
	"mealgen/internal/providers/planner"
)

type stubSource struct {
	propose func(req planner.Request) ([]domain.ItemConcept, error)
	calls   []planner.Request
}

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) Propose(_ context.Context, req planner.Request) ([]domain.ItemConcept, error) {
	s.calls = append(s.calls, req)
	return s.propose(req)
}

func concept(category, ingredient string) domain.ItemConcept {
	return domain.ItemConcept{
		Name:           fmt.Sprintf("%s %s", ingredient, category),
		Category:       category,
		Cuisine:        "italian",
		MainIngredient: ingredient,
	}
}

func TestPlanReplacesDuplicates(t *testing.T) {
	src := &stubSource{propose: func(req planner.Request) ([]domain.ItemConcept, error) {
		if req.Round == 0 {
			return []domain.ItemConcept{
				concept("lunch", "chicken"),
				concept("lunch", "chicken"),
				concept("dinner", "salmon"),
			}, nil
		}
		return []domain.ItemConcept{concept("breakfast", "oats")}, nil
	}}
	w, _ := newTestWorker(domain.AgentConcept, 3)
	agent := NewConceptAgent(w, src)

	got, err := agent.Plan(context.Background(), "b1", domain.BatchRequest{Count: 3, ChunkSize: 5})
	if err != nil {
		t.Fatalf("Plan returned error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	seen := map[string]bool{}
	for i, c := range got {
		if c.Index != i {
			t.Fatalf("concept %d has index %d", i, c.Index)
		}
		if seen[c.DiversityKey()] {
			t.Fatalf("duplicate key %s survived", c.DiversityKey())
		}
		seen[c.DiversityKey()] = true
		if c.Seed == "" {
			t.Fatalf("concept %d missing seed", i)
		}
	}
	if len(src.calls) != 2 || len(src.calls[1].Avoid) != 2 {
		t.Fatalf("expected one replacement round avoiding 2 keys, got %+v", src.calls)
	}
}

func TestPlanKeepsDuplicatesWhenBudgetExhausted(t *testing.T) {
	src := &stubSource{propose: func(req planner.Request) ([]domain.ItemConcept, error) {
		out := make([]domain.ItemConcept, req.Count)
		for i := range out {
			out[i] = concept("snack", "almonds")
		}
		return out, nil
	}}
	w, _ := newTestWorker(domain.AgentConcept, 3)
	agent := NewConceptAgent(w, src)
	agent.MaxDiversityAttempts = 4

	got, err := agent.Plan(context.Background(), "b1", domain.BatchRequest{Count: 4, ChunkSize: 2})
	if err != nil {
		t.Fatalf("Plan returned error: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("len = %d, want 4", len(got))
	}
	replacements := 0
	for _, call := range src.calls[1:] {
		replacements += call.Count
	}
	if replacements > 4 {
		t.Fatalf("replacement budget exceeded: %d", replacements)
	}
}

func TestPlanFailsWhenSourceFails(t *testing.T) {
	src := &stubSource{propose: func(planner.Request) ([]domain.ItemConcept, error) {
		return nil, Permanent(errors.New("model refused"))
	}}
	w, _ := newTestWorker(domain.AgentConcept, 3)
	agent := NewConceptAgent(w, src)

	if _, err := agent.Plan(context.Background(), "b1", domain.BatchRequest{Count: 2, ChunkSize: 2}); err == nil {
		t.Fatal("expected planning error")
	}
	if len(src.calls) != 1 {
		t.Fatalf("permanent failure retried %d times", len(src.calls))
	}
}

func TestPlanWithCatalogSourceIsDeterministic(t *testing.T) {
	req := domain.BatchRequest{Count: 12, ChunkSize: 5}
	plan := func() []domain.ItemConcept {
		w, _ := newTestWorker(domain.AgentConcept, 1)
		got, err := NewConceptAgent(w, planner.NewCatalogSource()).Plan(context.Background(), "batch-fixed", req)
		if err != nil {
			t.Fatalf("Plan returned error: %v", err)
		}
		return got
	}
	a, b := plan(), plan()
	if len(a) != 12 || len(b) != 12 {
		t.Fatalf("unexpected lengths %d and %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Name != b[i].Name || a[i].DiversityKey() != b[i].DiversityKey() {
			t.Fatalf("concept %d differs between runs: %q vs %q", i, a[i].Name, b[i].Name)
		}
	}
}

func TestChunkSplitsInOrder(t *testing.T) {
	concepts := make([]domain.ItemConcept, 12)
	for i := range concepts {
		concepts[i].Index = i
	}
	chunks := Chunk(concepts, 5)
	sizes := []int{5, 5, 2}
	if len(chunks) != len(sizes) {
		t.Fatalf("got %d chunks, want %d", len(chunks), len(sizes))
	}
	next := 0
	for i, c := range chunks {
		if c.Index != i || len(c.Concepts) != sizes[i] {
			t.Fatalf("chunk %d: index=%d size=%d", i, c.Index, len(c.Concepts))
		}
		for _, con := range c.Concepts {
			if con.Index != next {
				t.Fatalf("concept order broken at %d", next)
			}
			next++
		}
	}
}
