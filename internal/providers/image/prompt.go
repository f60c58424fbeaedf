package image

import (
	"fmt"
	"strings"
)

// DefaultNegativePrompt captures undesirable artefacts we want the model to avoid.
const DefaultNegativePrompt = "low quality, blurry, distorted, washed out, text artefacts, watermark, hands, cutlery clutter"

// MealPrompt is the item identity an image prompt is derived from.
type MealPrompt struct {
	Name        string
	Category    string
	Cuisine     string
	Description string
	Ingredients []string
}

// BuildMealPrompt converts an item's identity into a natural language
// instruction for text-to-image models.
func BuildMealPrompt(p MealPrompt) string {
	var lines []string

	name := strings.TrimSpace(p.Name)
	if name != "" {
		lines = append(lines, fmt.Sprintf("Professional food photograph of %q.", name))
	} else {
		lines = append(lines, "Professional food photograph of a plated meal.")
	}

	var details []string
	if cuisine := strings.TrimSpace(p.Cuisine); cuisine != "" {
		details = append(details, cuisine+" cuisine")
	}
	if category := strings.TrimSpace(p.Category); category != "" {
		details = append(details, "served as "+category)
	}
	if len(details) > 0 {
		lines = append(lines, "Dish context: "+strings.Join(details, ", ")+".")
	}

	if desc := strings.TrimSpace(p.Description); desc != "" {
		lines = append(lines, fmt.Sprintf("Description: %s.", strings.TrimRight(desc, ".")))
	}

	if len(p.Ingredients) > 0 {
		var visible []string
		for _, ing := range p.Ingredients {
			if ing = strings.TrimSpace(ing); ing != "" {
				visible = append(visible, ing)
			}
			if len(visible) == 5 {
				break
			}
		}
		if len(visible) > 0 {
			lines = append(lines, "Visible ingredients: "+strings.Join(visible, ", ")+".")
		}
	}

	lines = append(lines, "Overhead three-quarter angle, natural window light, shallow depth of field, neutral table setting.")
	lines = append(lines, "Ensure the plate looks appetising, freshly cooked and ready for a recipe card.")

	return strings.Join(lines, "\n")
}

// AspectRatioSize maps an aspect ratio string to the DashScope supported size token.
func AspectRatioSize(aspect string) string {
	switch strings.TrimSpace(aspect) {
	case "16:9":
		return "1664*928"
	case "4:3":
		return "1472*1104"
	case "3:4":
		return "1140*1472"
	case "9:16":
		return "928*1664"
	default:
		return "1328*1328"
	}
}
