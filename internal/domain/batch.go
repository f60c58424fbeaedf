package domain

import (
	"fmt"
	"strings"
	"time"
)

const (
	// MinItemCount and MaxItemCount bound a single batch.
	MinItemCount = 1
	MaxItemCount = 100
	// DefaultChunkSize bounds per-chunk transaction size and provider exposure.
	DefaultChunkSize = 5
	MaxChunkSize     = 25
)

// Meal categories accepted in BatchRequest.Categories.
const (
	CategoryBreakfast = "breakfast"
	CategoryLunch     = "lunch"
	CategoryDinner    = "dinner"
	CategorySnack     = "snack"
	CategoryDessert   = "dessert"
)

// Categories lists every supported meal category in planning order.
var Categories = []string{CategoryBreakfast, CategoryLunch, CategoryDinner, CategorySnack, CategoryDessert}

// IsCategory reports whether c is a supported meal category.
func IsCategory(c string) bool {
	for _, known := range Categories {
		if known == c {
			return true
		}
	}
	return false
}

// Range is an inclusive numeric interval. A nil Max means unbounded above;
// an explicit zero is a real bound.
type Range struct {
	Min float64  `json:"min"`
	Max *float64 `json:"max,omitempty"`
}

// Between returns the closed interval [min, max].
func Between(min, max float64) Range {
	return Range{Min: min, Max: &max}
}

// AtLeast returns the interval [min, +inf).
func AtLeast(min float64) Range {
	return Range{Min: min}
}

// Upper returns the upper bound and whether one is set.
func (r Range) Upper() (float64, bool) {
	if r.Max == nil {
		return 0, false
	}
	return *r.Max, true
}

// Contains reports whether v lies inside the range.
func (r Range) Contains(v float64) bool {
	if v < r.Min {
		return false
	}
	max, ok := r.Upper()
	return !ok || v <= max
}

// Clamp forces v into the range.
func (r Range) Clamp(v float64) float64 {
	if v < r.Min {
		return r.Min
	}
	if max, ok := r.Upper(); ok && v > max {
		return max
	}
	return v
}

// Targets are the numeric constraints a batch asks every item to satisfy.
type Targets struct {
	Calories    *Range `json:"calories,omitempty"`
	Protein     *Range `json:"protein,omitempty"`
	Carbs       *Range `json:"carbs,omitempty"`
	Fat         *Range `json:"fat,omitempty"`
	PrepMinutes *Range `json:"prepMinutes,omitempty"`
}

// FeatureFlags toggle optional pipeline stages. Nil means enabled.
type FeatureFlags struct {
	GenerateMedia *bool `json:"generateMedia,omitempty"`
	StoreMedia    *bool `json:"storeMedia,omitempty"`
	Validate      *bool `json:"validate,omitempty"`
}

func enabled(b *bool) bool { return b == nil || *b }

func (f FeatureFlags) GenerateMediaEnabled() bool { return enabled(f.GenerateMedia) }
func (f FeatureFlags) StoreMediaEnabled() bool    { return enabled(f.StoreMedia) }
func (f FeatureFlags) ValidateEnabled() bool      { return enabled(f.Validate) }

// BatchRequest describes one top-level generation request.
type BatchRequest struct {
	Count      int          `json:"count"`
	ChunkSize  int          `json:"chunkSize,omitempty"`
	Categories []string     `json:"categories,omitempty"`
	Cuisines   []string     `json:"cuisines,omitempty"`
	Dietary    []string     `json:"dietary,omitempty"`
	Targets    Targets      `json:"targets"`
	Features   FeatureFlags `json:"features"`
}

// Normalize returns a cleaned copy of the request with defaults applied.
// The receiver is left untouched so callers can keep the original payload.
func (r BatchRequest) Normalize(defaultChunkSize int) BatchRequest {
	out := r
	if out.ChunkSize <= 0 {
		out.ChunkSize = defaultChunkSize
	}
	if out.ChunkSize <= 0 {
		out.ChunkSize = DefaultChunkSize
	}
	out.Categories = normalizeList(r.Categories)
	out.Cuisines = normalizeList(r.Cuisines)
	out.Dietary = normalizeList(r.Dietary)
	return out
}

// Validate checks the request against the batch limits.
func (r BatchRequest) Validate() error {
	if r.Count < MinItemCount || r.Count > MaxItemCount {
		return fmt.Errorf("%w: count must be between %d and %d", ErrInvalidRequest, MinItemCount, MaxItemCount)
	}
	if r.ChunkSize < 1 || r.ChunkSize > MaxChunkSize {
		return fmt.Errorf("%w: chunkSize must be between 1 and %d", ErrInvalidRequest, MaxChunkSize)
	}
	for _, c := range r.Categories {
		if !IsCategory(c) {
			return fmt.Errorf("%w: unknown category %q", ErrInvalidRequest, c)
		}
	}
	for name, rg := range map[string]*Range{
		"calories":    r.Targets.Calories,
		"protein":     r.Targets.Protein,
		"carbs":       r.Targets.Carbs,
		"fat":         r.Targets.Fat,
		"prepMinutes": r.Targets.PrepMinutes,
	} {
		if rg == nil {
			continue
		}
		if max, ok := rg.Upper(); rg.Min < 0 || (ok && max < rg.Min) {
			return fmt.Errorf("%w: invalid %s range", ErrInvalidRequest, name)
		}
	}
	return nil
}

// ChunkCount is ceil(Count / ChunkSize).
func (r BatchRequest) ChunkCount() int {
	if r.ChunkSize <= 0 || r.Count <= 0 {
		return 0
	}
	return (r.Count + r.ChunkSize - 1) / r.ChunkSize
}

func normalizeList(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
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

// BatchStatus enumerates batch lifecycle states.
type BatchStatus string

const (
	BatchStatusPlanning  BatchStatus = "planning"
	BatchStatusRunning   BatchStatus = "running"
	BatchStatusCompleted BatchStatus = "completed"
	BatchStatusFailed    BatchStatus = "failed"
	BatchStatusCancelled BatchStatus = "cancelled"
)

// Terminal reports whether no further transitions can happen.
func (s BatchStatus) Terminal() bool {
	return s == BatchStatusCompleted || s == BatchStatusFailed || s == BatchStatusCancelled
}

// Batch is one generation run.
type Batch struct {
	ID          string       `json:"batchId"`
	Request     BatchRequest `json:"request"`
	Status      BatchStatus  `json:"status"`
	CreatedAt   time.Time    `json:"createdAt"`
	CompletedAt *time.Time   `json:"completedAt,omitempty"`
}

// ItemConcept is the planning description of a single meal.
type ItemConcept struct {
	Index          int     `json:"index"`
	Name           string  `json:"name"`
	Category       string  `json:"category"`
	Cuisine        string  `json:"cuisine"`
	MainIngredient string  `json:"mainIngredient"`
	Targets        Targets `json:"targets"`
	Seed           string  `json:"seed"`
}

// DiversityKey identifies concepts that count as duplicates within a batch.
func (c ItemConcept) DiversityKey() string {
	return strings.ToLower(strings.TrimSpace(c.Category)) + "|" + strings.ToLower(strings.TrimSpace(c.MainIngredient))
}

// Chunk is an ordered slice of concepts persisted together.
type Chunk struct {
	Index    int           `json:"index"`
	Concepts []ItemConcept `json:"concepts"`
}
