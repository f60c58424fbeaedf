package agents

import (
	"context"
	"time"

	"mealgen/internal/domain"
	"mealgen/internal/infra"
)

// newTestWorker returns a worker that never sleeps between attempts.
func newTestWorker(name domain.AgentName, attempts int) (*Worker, *[]time.Duration) {
	policy := DefaultRetryPolicy()
	policy.MaxAttempts = attempts
	w := NewWorker(name, policy, NewMetricsRegistry(nil), infra.NopLogger())
	var slept []time.Duration
	w.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return w, &slept
}

func sampleItem(index int, name string) domain.GeneratedItem {
	return domain.GeneratedItem{
		BatchID:     "batch-1",
		ChunkIndex:  index / 5,
		Index:       index,
		Name:        name,
		Category:    domain.CategoryLunch,
		Cuisine:     "thai",
		Description: "Bright and quick.",
		Servings:    2,
		PrepMinutes: 15,
		Nutrition:   domain.Nutrition{Calories: 520, Protein: 30, Carbs: 45, Fat: 18, Fiber: 6},
		Ingredients: []domain.Ingredient{{Name: "chicken", Quantity: 200, Unit: "g"}},
		Concept: domain.ItemConcept{
			Index:          index,
			Name:           name,
			Category:       domain.CategoryLunch,
			MainIngredient: "chicken",
			Seed:           "A thai lunch bowl built around chicken.",
		},
	}
}
