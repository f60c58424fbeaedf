package planner

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"

	"mealgen/internal/domain"
)

// Drafter turns a concept into a raw recipe. Its output is unvalidated and
// may fall outside the batch targets.
type Drafter interface {
	Draft(ctx context.Context, batchID string, concept domain.ItemConcept) (domain.GeneratedItem, error)
}

// StaticDrafter drafts recipes from the catalog profiles. The same batch id
// and concept always produce the same recipe.
type StaticDrafter struct{}

func NewStaticDrafter() *StaticDrafter {
	return &StaticDrafter{}
}

func (d *StaticDrafter) Draft(ctx context.Context, batchID string, concept domain.ItemConcept) (domain.GeneratedItem, error) {
	if err := ctx.Err(); err != nil {
		return domain.GeneratedItem{}, err
	}
	ing, ok := LookupIngredient(concept.MainIngredient)
	if !ok {
		ing = genericIngredient
		if name := strings.TrimSpace(concept.MainIngredient); name != "" {
			ing.Name = strings.ToLower(name)
		}
	}
	st := styleFor(concept.Category, concept.Name)
	j := jitter(batchID, concept)

	item := domain.GeneratedItem{
		BatchID:     batchID,
		Index:       concept.Index,
		Concept:     concept,
		Name:        concept.Name,
		Category:    concept.Category,
		Cuisine:     concept.Cuisine,
		PrepMinutes: st.PrepMinutes,
		CookMinutes: st.CookMinutes,
		Servings:    2,
		Nutrition: domain.Nutrition{
			Calories: round1((ing.Calories + st.Calories) * j),
			Protein:  round1(ing.Protein * j),
			Carbs:    round1((ing.Carbs + st.Carbs) * j),
			Fat:      round1((ing.Fat + st.Fat) * j),
			Fiber:    round1(ing.Fiber),
		},
		Tags:        []string{strings.ToLower(concept.Cuisine), concept.Category, st.Name},
		DietaryTags: DietaryTags(ing.Kind),
	}
	if seed := strings.TrimSpace(concept.Seed); seed != "" {
		item.Description = fmt.Sprintf("%s Ready in about %d minutes.", seed, st.PrepMinutes+st.CookMinutes)
	}

	item.Ingredients = append(item.Ingredients, domain.Ingredient{Name: ing.Name, Quantity: 150, Unit: "g"})
	for _, p := range ing.Pairings {
		item.Ingredients = append(item.Ingredients, domain.Ingredient{Name: p, Quantity: 30, Unit: "g"})
	}
	item.Ingredients = append(item.Ingredients,
		domain.Ingredient{Name: "olive oil", Quantity: 1, Unit: "tbsp"},
		domain.Ingredient{Name: "salt", Quantity: 1, Unit: "pinch"},
	)
	for _, step := range st.Steps {
		if strings.Contains(step, "%s") {
			step = fmt.Sprintf(step, ing.Name)
		}
		item.Instructions = append(item.Instructions, step)
	}
	return item, nil
}

var _ Drafter = (*StaticDrafter)(nil)

// jitter spreads macros by +/-15% so drafted batches are not uniform.
func jitter(batchID string, concept domain.ItemConcept) float64 {
	h := fnv.New32a()
	_, _ = fmt.Fprintf(h, "%s|%d|%s", batchID, concept.Index, concept.Name)
	return 0.85 + float64(h.Sum32()%3001)/10000
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
