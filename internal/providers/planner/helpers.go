package planner

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"mealgen/internal/domain"
)

type modelConceptPayload struct {
	Items []modelConcept `json:"items"`
}

type modelConcept struct {
	Name           string `json:"name"`
	Category       string `json:"category"`
	Cuisine        string `json:"cuisine"`
	MainIngredient string `json:"mainIngredient"`
	Description    string `json:"description"`
}

func buildProposalPrompt(req Request) string {
	b := req.Batch
	categories := b.Categories
	if len(categories) == 0 {
		categories = domain.Categories
	}
	sb := &strings.Builder{}
	fmt.Fprintf(sb, "Propose %d distinct meal ideas for a recipe catalogue. Respond strictly with JSON matching this schema: ", req.Count)
	sb.WriteString(`{"items":[{"name":string,"category":string,"cuisine":string,"mainIngredient":string,"description":string}]}`)
	fmt.Fprintf(sb, ". category must be one of %s.", strings.Join(categories, ", "))
	if len(b.Cuisines) > 0 {
		fmt.Fprintf(sb, " Use only these cuisines: %s.", strings.Join(b.Cuisines, ", "))
	}
	if len(b.Dietary) > 0 {
		fmt.Fprintf(sb, " Every meal must be %s.", strings.Join(b.Dietary, " and "))
	}
	if t := b.Targets.Calories; t != nil {
		if max, ok := t.Upper(); ok {
			fmt.Fprintf(sb, " Aim for %.0f-%.0f kcal per serving.", t.Min, max)
		} else {
			fmt.Fprintf(sb, " Aim for at least %.0f kcal per serving.", t.Min)
		}
	}
	if len(req.Avoid) > 0 {
		fmt.Fprintf(sb, " Do not reuse these category|mainIngredient pairs: %s.", strings.Join(req.Avoid, "; "))
	}
	fmt.Fprintf(sb, " Each combination of category and main ingredient must be unique. variation=%d.", req.Round)
	return sb.String()
}

func conceptsFromPayload(items []modelConcept, req Request) []domain.ItemConcept {
	categories := req.Batch.Categories
	if len(categories) == 0 {
		categories = domain.Categories
	}
	out := make([]domain.ItemConcept, 0, len(items))
	for i, it := range items {
		if len(out) == req.Count {
			break
		}
		name := coalesce(it.Name)
		if name == "" {
			continue
		}
		category := strings.ToLower(strings.TrimSpace(it.Category))
		if !containsString(categories, category) {
			category = categories[(req.Offset+i)%len(categories)]
		}
		out = append(out, domain.ItemConcept{
			Index:          req.Offset + len(out),
			Name:           name,
			Category:       category,
			Cuisine:        strings.ToLower(coalesce(it.Cuisine)),
			MainIngredient: strings.ToLower(coalesce(it.MainIngredient, name)),
			Targets:        req.Batch.Targets,
			Seed:           coalesce(it.Description),
		})
	}
	return out
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func coalesce(values ...string) string {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			return v
		}
	}
	return ""
}

func parseModelPayload[T any](raw string) (T, error) {
	var zero T
	cleaned := extractJSONFragment(raw)
	if cleaned == "" {
		return zero, errors.New("empty payload")
	}
	var decoded T
	if err := json.Unmarshal([]byte(cleaned), &decoded); err != nil {
		return zero, err
	}
	return decoded, nil
}

func extractJSONFragment(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}
	text = trimCodeFence(text)
	start := strings.IndexAny(text, "{[")
	end := strings.LastIndexAny(text, "]}")
	if start >= 0 && end >= start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

func trimCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```JSON")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}
