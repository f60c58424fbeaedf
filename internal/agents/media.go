package agents

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"mealgen/internal/domain"
	"mealgen/internal/providers/image"
)

// MediaResult is the outcome of generating media for one item. Item always
// carries a media reference; Err is the provider failure behind a placeholder.
type MediaResult struct {
	Item     domain.GeneratedItem
	Degraded bool
	Err      error
}

// MediaAgent requests one image per item and degrades to a placeholder.
type MediaAgent struct {
	worker          *Worker
	generator       image.Generator
	placeholderBase string
	concurrency     int
}

func NewMediaAgent(worker *Worker, generator image.Generator, placeholderBase string, concurrency int) *MediaAgent {
	if concurrency < 1 {
		concurrency = 5
	}
	return &MediaAgent{
		worker:          worker,
		generator:       generator,
		placeholderBase: strings.TrimRight(placeholderBase, "/"),
		concurrency:     concurrency,
	}
}

// PlaceholderURL derives a stable placeholder from the item's normalised name
// and category. Reruns of the same item always get the same URL.
func PlaceholderURL(base string, item domain.GeneratedItem) string {
	name := strings.ToLower(strings.Join(strings.Fields(item.Name), " "))
	category := strings.ToLower(strings.TrimSpace(item.Category))
	sum := sha256.Sum256([]byte(name + "|" + category))
	return fmt.Sprintf("%s/%s.png", strings.TrimRight(base, "/"), hex.EncodeToString(sum[:8]))
}

// Placeholder returns a copy of item pointing at its placeholder image.
func (a *MediaAgent) Placeholder(item domain.GeneratedItem) domain.GeneratedItem {
	out := cloneItem(item)
	out.Media = domain.Media{
		URL:    PlaceholderURL(a.placeholderBase, item),
		Source: domain.MediaSourcePlaceholder,
		Format: "image/png",
	}
	return out
}

// Generate calls the provider once per attempt under the worker's retry
// policy. Non-transient provider errors are not retried.
func (a *MediaAgent) Generate(ctx context.Context, item domain.GeneratedItem) MediaResult {
	prompt := image.BuildMealPrompt(image.MealPrompt{
		Name:        item.Name,
		Category:    item.Category,
		Cuisine:     item.Cuisine,
		Description: item.Description,
		Ingredients: ingredientNames(item.Ingredients),
	})
	req := image.Request{
		Prompt:         prompt,
		NegativePrompt: image.DefaultNegativePrompt,
		RequestID:      fmt.Sprintf("%s/%d", item.BatchID, item.Index),
	}

	res, err := Run(ctx, a.worker, "generate_image", func(ctx context.Context) (*image.Result, error) {
		r, err := a.generator.Generate(ctx, req)
		if err != nil {
			if !image.IsTransient(err) {
				return nil, Permanent(err)
			}
			return nil, err
		}
		if r == nil || (r.URL == "" && len(r.Data) == 0) {
			return nil, Permanent(errors.New("provider returned no image"))
		}
		return r, nil
	})
	if err != nil {
		a.worker.Logger().Warn().Err(err).
			Str("batch_id", item.BatchID).
			Int("item", item.Index).
			Msg("image generation failed, using placeholder")
		return MediaResult{
			Item:     a.Placeholder(item),
			Degraded: true,
			Err:      fmt.Errorf("%w: %v", domain.ErrProviderFailure, err),
		}
	}

	out := cloneItem(item)
	// Inline-only results point at the placeholder until storage uploads them.
	ref := res.URL
	if ref == "" {
		ref = PlaceholderURL(a.placeholderBase, item)
	}
	out.Media = domain.Media{
		URL:         ref,
		Source:      domain.MediaSourceProvider,
		ProviderURL: res.URL,
		Format:      res.Format,
		Width:       res.Width,
		Height:      res.Height,
		Data:        res.Data,
	}
	return MediaResult{Item: out}
}

// GenerateAll runs Generate for every item with at most the configured number
// of provider calls in flight. Results keep the input order.
func (a *MediaAgent) GenerateAll(ctx context.Context, items []domain.GeneratedItem) []MediaResult {
	start := time.Now()
	results := make([]MediaResult, len(items))
	var g errgroup.Group
	g.SetLimit(a.concurrency)
	for i, item := range items {
		g.Go(func() error {
			results[i] = a.Generate(ctx, item)
			return nil
		})
	}
	_ = g.Wait()
	a.worker.Metrics().RecordBatch(a.worker.Name(), len(items), time.Since(start))
	return results
}

func ingredientNames(in []domain.Ingredient) []string {
	out := make([]string, 0, len(in))
	for _, ing := range in {
		out = append(out, ing.Name)
	}
	return out
}
