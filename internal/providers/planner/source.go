package planner

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand/v2"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"mealgen/internal/domain"
)

// ErrNoIngredients is returned when dietary filters exclude the whole catalog.
var ErrNoIngredients = errors.New("planner: dietary filters leave no ingredients")

// Request asks a Source for Count concept candidates.
type Request struct {
	BatchID string
	Batch   domain.BatchRequest
	Count   int
	// Offset is the batch position of the first requested concept.
	Offset int
	// Round is zero for the initial proposal and increments for replacements.
	Round int
	// Avoid holds diversity keys already taken in the batch.
	Avoid []string
}

// Source proposes item concepts. Implementations need not guarantee
// diversity; the concept agent rejects and replaces duplicates.
type Source interface {
	Propose(ctx context.Context, req Request) ([]domain.ItemConcept, error)
	Name() string
}

// CatalogSource builds concepts from the built-in ingredient and style
// catalog. Output is deterministic for a given batch id and round.
type CatalogSource struct{}

func NewCatalogSource() *CatalogSource {
	return &CatalogSource{}
}

func (c *CatalogSource) Name() string { return "catalog" }

func (c *CatalogSource) Propose(ctx context.Context, req Request) ([]domain.ItemConcept, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Count <= 0 {
		return nil, nil
	}
	pool := AllowedIngredients(req.Batch.Dietary)
	if len(pool) == 0 {
		return nil, ErrNoIngredients
	}
	categories := req.Batch.Categories
	if len(categories) == 0 {
		categories = domain.Categories
	}
	cuisines := req.Batch.Cuisines
	if len(cuisines) == 0 {
		cuisines = defaultCuisines
	}

	rng := rand.New(rand.NewPCG(seedFor(req.BatchID), uint64(req.Round)))
	title := cases.Title(language.English)
	taken := make(map[string]bool, len(req.Avoid)+req.Count)
	for _, key := range req.Avoid {
		taken[key] = true
	}

	out := make([]domain.ItemConcept, 0, req.Count)
	for i := 0; i < req.Count; i++ {
		category := categories[(req.Offset+i)%len(categories)]
		if req.Round > 0 {
			category = categories[rng.IntN(len(categories))]
		}

		var ing Ingredient
		for try := 0; try < 4; try++ {
			ing = pool[rng.IntN(len(pool))]
			if !taken[category+"|"+ing.Name] {
				break
			}
		}
		taken[category+"|"+ing.Name] = true

		list := styles[category]
		st := genericStyle
		if len(list) > 0 {
			st = list[rng.IntN(len(list))]
		}
		cuisine := cuisines[rng.IntN(len(cuisines))]

		out = append(out, domain.ItemConcept{
			Index:          req.Offset + i,
			Name:           title.String(fmt.Sprintf("%s %s %s", cuisine, ing.Name, st.Name)),
			Category:       category,
			Cuisine:        cuisine,
			MainIngredient: ing.Name,
			Targets:        req.Batch.Targets,
			Seed:           fmt.Sprintf("A %s %s %s built around %s.", cuisine, category, st.Name, ing.Name),
		})
	}
	return out, nil
}

var _ Source = (*CatalogSource)(nil)

func seedFor(batchID string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(batchID))
	return h.Sum64()
}
