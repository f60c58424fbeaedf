package domain

import "time"

// MediaSource tells where an item's media reference came from.
type MediaSource string

const (
	MediaSourceNone        MediaSource = ""
	MediaSourceProvider    MediaSource = "provider"
	MediaSourcePlaceholder MediaSource = "placeholder"
	MediaSourceStored      MediaSource = "stored"
)

// Media is the image attached to a generated item.
type Media struct {
	URL         string      `json:"url"`
	Source      MediaSource `json:"source"`
	ProviderURL string      `json:"providerUrl,omitempty"`
	Format      string      `json:"format,omitempty"`
	Width       int         `json:"width,omitempty"`
	Height      int         `json:"height,omitempty"`
	// Data holds provider bytes until the storage stage uploads them.
	Data []byte `json:"-"`
}

// Nutrition holds per-serving macros.
type Nutrition struct {
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
	Fiber    float64 `json:"fiber"`
}

// Ingredient is one line of a recipe.
type Ingredient struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
}

// Adjustment records an automatic correction applied during validation.
type Adjustment struct {
	Field  string `json:"field"`
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason"`
}

// GeneratedItem is built up stage by stage; each stage returns a new value.
type GeneratedItem struct {
	ID           string       `json:"id"`
	BatchID      string       `json:"batchId"`
	ChunkIndex   int          `json:"chunkIndex"`
	Index        int          `json:"index"`
	Concept      ItemConcept  `json:"concept"`
	Name         string       `json:"name"`
	Description  string       `json:"description"`
	Category     string       `json:"category"`
	Cuisine      string       `json:"cuisine"`
	Nutrition    Nutrition    `json:"nutrition"`
	PrepMinutes  int          `json:"prepMinutes"`
	CookMinutes  int          `json:"cookMinutes"`
	Servings     int          `json:"servings"`
	Ingredients  []Ingredient `json:"ingredients"`
	Instructions []string     `json:"instructions"`
	Tags         []string     `json:"tags"`
	DietaryTags  []string     `json:"dietaryTags"`
	Media        Media        `json:"media"`
	Adjustments  []Adjustment `json:"adjustments,omitempty"`
	PersistedID  string       `json:"persistedId,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
}

// HasMedia reports whether the item carries any media reference.
func (i GeneratedItem) HasMedia() bool {
	return i.Media.URL != ""
}

// ChunkRecord is the unit handed to an ItemStore.
type ChunkRecord struct {
	BatchID    string
	ChunkIndex int
	Items      []GeneratedItem
}
