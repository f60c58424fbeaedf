package planner

import "strings"

// Ingredient kinds used for dietary filtering.
const (
	KindMeat    = "meat"
	KindPoultry = "poultry"
	KindSeafood = "seafood"
	KindEgg     = "egg"
	KindDairy   = "dairy"
	KindPlant   = "plant"
)

// Ingredient is a main ingredient with per-serving macros of its portion.
type Ingredient struct {
	Name     string
	Kind     string
	Calories float64
	Protein  float64
	Carbs    float64
	Fat      float64
	Fiber    float64
	Pairings []string
}

type style struct {
	Name        string
	Calories    float64
	Carbs       float64
	Fat         float64
	PrepMinutes int
	CookMinutes int
	Steps       []string
}

var ingredients = []Ingredient{
	{Name: "chicken", Kind: KindPoultry, Calories: 250, Protein: 38, Carbs: 0, Fat: 10, Fiber: 0, Pairings: []string{"garlic", "lemon", "thyme"}},
	{Name: "turkey", Kind: KindPoultry, Calories: 220, Protein: 34, Carbs: 0, Fat: 8, Fiber: 0, Pairings: []string{"sage", "onion", "celery"}},
	{Name: "beef", Kind: KindMeat, Calories: 320, Protein: 34, Carbs: 0, Fat: 20, Fiber: 0, Pairings: []string{"shallot", "black pepper", "rosemary"}},
	{Name: "pork", Kind: KindMeat, Calories: 290, Protein: 32, Carbs: 0, Fat: 17, Fiber: 0, Pairings: []string{"ginger", "scallion", "apple"}},
	{Name: "salmon", Kind: KindSeafood, Calories: 300, Protein: 31, Carbs: 0, Fat: 19, Fiber: 0, Pairings: []string{"dill", "lemon", "cucumber"}},
	{Name: "cod", Kind: KindSeafood, Calories: 160, Protein: 35, Carbs: 0, Fat: 2, Fiber: 0, Pairings: []string{"parsley", "tomato", "capers"}},
	{Name: "shrimp", Kind: KindSeafood, Calories: 150, Protein: 30, Carbs: 1, Fat: 2, Fiber: 0, Pairings: []string{"garlic", "chili", "lime"}},
	{Name: "tuna", Kind: KindSeafood, Calories: 190, Protein: 40, Carbs: 0, Fat: 2, Fiber: 0, Pairings: []string{"sesame", "avocado", "scallion"}},
	{Name: "eggs", Kind: KindEgg, Calories: 180, Protein: 13, Carbs: 1, Fat: 13, Fiber: 0, Pairings: []string{"chives", "spinach", "tomato"}},
	{Name: "greek yogurt", Kind: KindDairy, Calories: 150, Protein: 17, Carbs: 8, Fat: 5, Fiber: 0, Pairings: []string{"honey", "walnuts", "berries"}},
	{Name: "halloumi", Kind: KindDairy, Calories: 270, Protein: 18, Carbs: 2, Fat: 21, Fiber: 0, Pairings: []string{"mint", "watermelon", "lemon"}},
	{Name: "tofu", Kind: KindPlant, Calories: 180, Protein: 20, Carbs: 5, Fat: 10, Fiber: 2, Pairings: []string{"soy sauce", "ginger", "bok choy"}},
	{Name: "tempeh", Kind: KindPlant, Calories: 230, Protein: 22, Carbs: 11, Fat: 12, Fiber: 6, Pairings: []string{"peanut", "lime", "cabbage"}},
	{Name: "lentils", Kind: KindPlant, Calories: 230, Protein: 18, Carbs: 40, Fat: 1, Fiber: 16, Pairings: []string{"cumin", "carrot", "onion"}},
	{Name: "chickpeas", Kind: KindPlant, Calories: 270, Protein: 15, Carbs: 45, Fat: 4, Fiber: 12, Pairings: []string{"tahini", "paprika", "parsley"}},
	{Name: "black beans", Kind: KindPlant, Calories: 230, Protein: 15, Carbs: 41, Fat: 1, Fiber: 15, Pairings: []string{"corn", "cilantro", "lime"}},
	{Name: "quinoa", Kind: KindPlant, Calories: 220, Protein: 8, Carbs: 39, Fat: 4, Fiber: 5, Pairings: []string{"cucumber", "herbs", "lemon"}},
	{Name: "oats", Kind: KindPlant, Calories: 150, Protein: 5, Carbs: 27, Fat: 3, Fiber: 4, Pairings: []string{"cinnamon", "banana", "almonds"}},
	{Name: "mushrooms", Kind: KindPlant, Calories: 60, Protein: 5, Carbs: 8, Fat: 1, Fiber: 3, Pairings: []string{"thyme", "garlic", "shallot"}},
	{Name: "sweet potato", Kind: KindPlant, Calories: 180, Protein: 4, Carbs: 41, Fat: 0, Fiber: 7, Pairings: []string{"smoked paprika", "kale", "pecans"}},
	{Name: "cauliflower", Kind: KindPlant, Calories: 80, Protein: 6, Carbs: 15, Fat: 1, Fiber: 6, Pairings: []string{"turmeric", "raisins", "coriander"}},
	{Name: "eggplant", Kind: KindPlant, Calories: 90, Protein: 3, Carbs: 20, Fat: 1, Fiber: 9, Pairings: []string{"miso", "sesame", "scallion"}},
	{Name: "spinach", Kind: KindPlant, Calories: 40, Protein: 5, Carbs: 6, Fat: 1, Fiber: 4, Pairings: []string{"garlic", "nutmeg", "pine nuts"}},
	{Name: "avocado", Kind: KindPlant, Calories: 240, Protein: 3, Carbs: 13, Fat: 22, Fiber: 10, Pairings: []string{"lime", "chili flakes", "radish"}},
	{Name: "berries", Kind: KindPlant, Calories: 85, Protein: 1, Carbs: 21, Fat: 0, Fiber: 5, Pairings: []string{"mint", "vanilla", "lemon zest"}},
}

var genericIngredient = Ingredient{Name: "seasonal vegetables", Kind: KindPlant, Calories: 120, Protein: 6, Carbs: 18, Fat: 3, Fiber: 6, Pairings: []string{"olive oil", "herbs", "lemon"}}

var styles = map[string][]style{
	"breakfast": {
		{Name: "scramble", Calories: 90, Carbs: 4, Fat: 7, PrepMinutes: 5, CookMinutes: 8, Steps: []string{"Whisk or chop the %s with the aromatics.", "Cook gently in a non-stick pan until just set.", "Season and serve warm with toast or greens."}},
		{Name: "porridge bowl", Calories: 160, Carbs: 28, Fat: 3, PrepMinutes: 5, CookMinutes: 10, Steps: []string{"Simmer the grains with milk or water until creamy.", "Fold in the %s.", "Top with the pairings and serve."}},
		{Name: "breakfast wrap", Calories: 180, Carbs: 26, Fat: 5, PrepMinutes: 10, CookMinutes: 8, Steps: []string{"Warm the tortilla.", "Saute the %s with the pairings.", "Roll tightly and toast seam side down."}},
		{Name: "frittata", Calories: 120, Carbs: 3, Fat: 9, PrepMinutes: 10, CookMinutes: 20, Steps: []string{"Heat the oven to 190C.", "Layer the %s and pairings in an ovenproof pan.", "Pour over the egg mixture and bake until golden."}},
	},
	"lunch": {
		{Name: "grain bowl", Calories: 200, Carbs: 35, Fat: 6, PrepMinutes: 15, CookMinutes: 15, Steps: []string{"Cook the grains and let them cool slightly.", "Roast or sear the %s.", "Assemble with the pairings and dress."}},
		{Name: "salad", Calories: 110, Carbs: 10, Fat: 8, PrepMinutes: 15, CookMinutes: 5, Steps: []string{"Prepare the greens and pairings.", "Cook or slice the %s.", "Toss with dressing just before serving."}},
		{Name: "soup", Calories: 90, Carbs: 14, Fat: 3, PrepMinutes: 10, CookMinutes: 30, Steps: []string{"Sweat the aromatics in a pot.", "Add the %s and stock and simmer until tender.", "Blend partially and adjust seasoning."}},
		{Name: "wrap", Calories: 190, Carbs: 28, Fat: 6, PrepMinutes: 10, CookMinutes: 10, Steps: []string{"Cook the %s with spices.", "Layer onto the flatbread with the pairings.", "Roll and slice in half."}},
	},
	"dinner": {
		{Name: "stir-fry", Calories: 150, Carbs: 30, Fat: 7, PrepMinutes: 15, CookMinutes: 12, Steps: []string{"Prepare the sauce.", "Stir-fry the %s over high heat.", "Add the pairings and sauce and toss until glossy."}},
		{Name: "curry", Calories: 210, Carbs: 20, Fat: 13, PrepMinutes: 15, CookMinutes: 30, Steps: []string{"Bloom the spices in oil.", "Add the %s and coat well.", "Simmer with coconut milk or tomatoes until thick."}},
		{Name: "sheet-pan roast", Calories: 140, Carbs: 18, Fat: 8, PrepMinutes: 10, CookMinutes: 35, Steps: []string{"Heat the oven to 210C.", "Toss the %s and pairings with oil and spices.", "Roast until caramelised at the edges."}},
		{Name: "skillet", Calories: 130, Carbs: 15, Fat: 8, PrepMinutes: 10, CookMinutes: 20, Steps: []string{"Sear the %s in a hot skillet.", "Add the pairings and a splash of stock.", "Cover and cook until done."}},
	},
	"snack": {
		{Name: "bites", Calories: 60, Carbs: 8, Fat: 3, PrepMinutes: 15, CookMinutes: 10, Steps: []string{"Combine the %s with binders and seasoning.", "Shape into small bites.", "Bake until firm."}},
		{Name: "dip", Calories: 70, Carbs: 6, Fat: 5, PrepMinutes: 10, CookMinutes: 0, Steps: []string{"Blend the %s with the pairings until smooth.", "Season to taste.", "Serve with crudites."}},
		{Name: "skewers", Calories: 40, Carbs: 4, Fat: 2, PrepMinutes: 15, CookMinutes: 8, Steps: []string{"Cut the %s into even pieces.", "Thread onto skewers with the pairings.", "Grill briefly on each side."}},
	},
	"dessert": {
		{Name: "parfait", Calories: 120, Carbs: 22, Fat: 3, PrepMinutes: 10, CookMinutes: 0, Steps: []string{"Layer the %s in glasses.", "Alternate with the pairings.", "Chill for ten minutes."}},
		{Name: "crumble", Calories: 200, Carbs: 30, Fat: 8, PrepMinutes: 15, CookMinutes: 30, Steps: []string{"Heat the oven to 180C.", "Spread the %s in a baking dish and top with crumble.", "Bake until bubbling."}},
		{Name: "pudding", Calories: 150, Carbs: 24, Fat: 5, PrepMinutes: 10, CookMinutes: 15, Steps: []string{"Warm the base with sweetener.", "Stir in the %s.", "Set in the fridge before serving."}},
	},
}

var genericStyle = style{Name: "plate", Calories: 120, Carbs: 20, Fat: 5, PrepMinutes: 15, CookMinutes: 20, Steps: []string{"Prepare the %s.", "Cook with the pairings until done.", "Plate and serve."}}

var defaultCuisines = []string{"mediterranean", "mexican", "japanese", "thai", "indian", "italian", "korean", "middle eastern", "indonesian", "american"}

// excludedKinds maps a dietary preference to the ingredient kinds it rules out.
var excludedKinds = map[string][]string{
	"vegetarian":  {KindMeat, KindPoultry, KindSeafood},
	"vegan":       {KindMeat, KindPoultry, KindSeafood, KindEgg, KindDairy},
	"pescatarian": {KindMeat, KindPoultry},
	"dairy-free":  {KindDairy},
	"egg-free":    {KindEgg},
}

// LookupIngredient returns the catalog profile for name, if known.
func LookupIngredient(name string) (Ingredient, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, ing := range ingredients {
		if ing.Name == name {
			return ing, true
		}
	}
	return Ingredient{}, false
}

// AllowedIngredients filters the catalog by dietary preferences.
func AllowedIngredients(dietary []string) []Ingredient {
	excluded := map[string]bool{}
	for _, d := range dietary {
		for _, kind := range excludedKinds[strings.ToLower(strings.TrimSpace(d))] {
			excluded[kind] = true
		}
	}
	out := make([]Ingredient, 0, len(ingredients))
	for _, ing := range ingredients {
		if !excluded[ing.Kind] {
			out = append(out, ing)
		}
	}
	return out
}

// DietaryTags derives the diets an ingredient kind satisfies.
func DietaryTags(kind string) []string {
	switch kind {
	case KindPlant:
		return []string{"vegan", "vegetarian", "dairy-free"}
	case KindEgg:
		return []string{"vegetarian", "dairy-free"}
	case KindDairy:
		return []string{"vegetarian"}
	case KindSeafood:
		return []string{"pescatarian", "dairy-free"}
	default:
		return []string{"dairy-free"}
	}
}

func styleFor(category, name string) style {
	list := styles[category]
	lower := strings.ToLower(name)
	for _, s := range list {
		if strings.HasSuffix(lower, s.Name) {
			return s
		}
	}
	if len(list) > 0 {
		return list[0]
	}
	return genericStyle
}
