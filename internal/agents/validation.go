package agents

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"mealgen/internal/domain"
)

// Sanity bounds used when neither the batch nor the concept sets a target.
var (
	defaultCalories    = domain.Between(50, 2000)
	defaultProtein     = domain.Between(0, 150)
	defaultCarbs       = domain.Between(0, 300)
	defaultFat         = domain.Between(0, 150)
	defaultFiber       = domain.Between(0, 80)
	defaultPrepMinutes = domain.Between(1, 240)
)

// ValidationAgent checks drafted items and fixes what it can instead of
// rejecting them.
type ValidationAgent struct {
	worker *Worker
}

func NewValidationAgent(worker *Worker) *ValidationAgent {
	return &ValidationAgent{worker: worker}
}

// Validate returns a corrected copy of item. Numeric fields outside their
// range are clamped and recorded as adjustments. An item without a name is
// unrecoverable: the returned error wraps domain.ErrMissingIdentity and is
// never retried.
func (a *ValidationAgent) Validate(ctx context.Context, item domain.GeneratedItem, targets domain.Targets) (domain.GeneratedItem, error) {
	return Run(ctx, a.worker, "validate", func(ctx context.Context) (domain.GeneratedItem, error) {
		out, err := checkIdentity(item)
		if err != nil {
			return domain.GeneratedItem{}, err
		}
		fixStructure(&out)
		clampNumbers(&out, targets)
		return out, nil
	})
}

// ValidateIdentity runs only the identity check and list defaults. Used when
// a batch disables full validation.
func (a *ValidationAgent) ValidateIdentity(ctx context.Context, item domain.GeneratedItem) (domain.GeneratedItem, error) {
	return Run(ctx, a.worker, "validate_identity", func(ctx context.Context) (domain.GeneratedItem, error) {
		out, err := checkIdentity(item)
		if err != nil {
			return domain.GeneratedItem{}, err
		}
		defaultLists(&out)
		return out, nil
	})
}

func checkIdentity(item domain.GeneratedItem) (domain.GeneratedItem, error) {
	name := strings.Join(strings.Fields(item.Name), " ")
	if name == "" {
		return domain.GeneratedItem{}, Permanent(fmt.Errorf("%w: item %d", domain.ErrMissingIdentity, item.Index))
	}
	out := cloneItem(item)
	out.Name = name
	return out, nil
}

func fixStructure(item *domain.GeneratedItem) {
	defaultLists(item)

	category := strings.ToLower(strings.TrimSpace(item.Category))
	if !domain.IsCategory(category) {
		fallback := strings.ToLower(strings.TrimSpace(item.Concept.Category))
		if !domain.IsCategory(fallback) {
			fallback = domain.CategoryDinner
		}
		item.Adjustments = append(item.Adjustments, domain.Adjustment{
			Field: "category", From: item.Category, To: fallback, Reason: "unknown_category",
		})
		category = fallback
	}
	item.Category = category

	if strings.TrimSpace(item.Description) == "" {
		desc := strings.TrimSpace(item.Concept.Seed)
		if desc == "" {
			desc = fmt.Sprintf("%s, a %s dish.", item.Name, category)
		}
		item.Description = desc
		item.Adjustments = append(item.Adjustments, domain.Adjustment{
			Field: "description", To: desc, Reason: "missing_description",
		})
	}
	if item.Servings < 1 {
		item.Adjustments = append(item.Adjustments, domain.Adjustment{
			Field: "servings", From: strconv.Itoa(item.Servings), To: "1", Reason: "out_of_range",
		})
		item.Servings = 1
	}
	if item.CookMinutes < 0 {
		item.Adjustments = append(item.Adjustments, domain.Adjustment{
			Field: "cookMinutes", From: strconv.Itoa(item.CookMinutes), To: "0", Reason: "out_of_range",
		})
		item.CookMinutes = 0
	}
	item.Tags = dedupeLower(item.Tags)
	item.DietaryTags = dedupeLower(item.DietaryTags)
}

func defaultLists(item *domain.GeneratedItem) {
	if item.Ingredients == nil {
		item.Ingredients = []domain.Ingredient{}
	}
	if item.Instructions == nil {
		item.Instructions = []string{}
	}
	if item.Tags == nil {
		item.Tags = []string{}
	}
	if item.DietaryTags == nil {
		item.DietaryTags = []string{}
	}
}

func clampNumbers(item *domain.GeneratedItem, targets domain.Targets) {
	concept := item.Concept.Targets
	n := &item.Nutrition
	clampField(item, "nutrition.calories", &n.Calories, pickRange(targets.Calories, concept.Calories, defaultCalories))
	clampField(item, "nutrition.protein", &n.Protein, pickRange(targets.Protein, concept.Protein, defaultProtein))
	clampField(item, "nutrition.carbs", &n.Carbs, pickRange(targets.Carbs, concept.Carbs, defaultCarbs))
	clampField(item, "nutrition.fat", &n.Fat, pickRange(targets.Fat, concept.Fat, defaultFat))
	clampField(item, "nutrition.fiber", &n.Fiber, defaultFiber)

	prep := float64(item.PrepMinutes)
	clampField(item, "prepMinutes", &prep, pickRange(targets.PrepMinutes, concept.PrepMinutes, defaultPrepMinutes))
	item.PrepMinutes = int(prep)
}

func clampField(item *domain.GeneratedItem, field string, v *float64, r domain.Range) {
	if r.Contains(*v) {
		return
	}
	clamped := r.Clamp(*v)
	item.Adjustments = append(item.Adjustments, domain.Adjustment{
		Field:  field,
		From:   strconv.FormatFloat(*v, 'f', -1, 64),
		To:     strconv.FormatFloat(clamped, 'f', -1, 64),
		Reason: "out_of_range",
	})
	*v = clamped
}

func pickRange(batch, concept *domain.Range, fallback domain.Range) domain.Range {
	if batch != nil {
		return *batch
	}
	if concept != nil {
		return *concept
	}
	return fallback
}

func dedupeLower(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, v := range in {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// cloneItem copies the slices so a stage never mutates its input.
func cloneItem(item domain.GeneratedItem) domain.GeneratedItem {
	out := item
	if item.Ingredients != nil {
		out.Ingredients = append([]domain.Ingredient{}, item.Ingredients...)
	}
	if item.Instructions != nil {
		out.Instructions = append([]string{}, item.Instructions...)
	}
	if item.Tags != nil {
		out.Tags = append([]string{}, item.Tags...)
	}
	if item.DietaryTags != nil {
		out.DietaryTags = append([]string{}, item.DietaryTags...)
	}
	if item.Adjustments != nil {
		out.Adjustments = append([]domain.Adjustment{}, item.Adjustments...)
	}
	if item.Media.Data != nil {
		out.Media.Data = append([]byte(nil), item.Media.Data...)
	}
	return out
}
