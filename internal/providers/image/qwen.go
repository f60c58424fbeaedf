package image

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"mealgen/internal/providers/qwen"
)

type qwenImageClient interface {
	GenerateImage(context.Context, qwen.ImageRequest) (*qwen.ImageAsset, error)
	HasCredentials() bool
	Model() string
}

// QwenGenerator calls DashScope's Qwen image model. When the client has no
// credentials it hands the request to the fallback generator instead.
type QwenGenerator struct {
	client   qwenImageClient
	fallback Generator
}

// NewQwenGenerator wires a Qwen client with an optional fallback generator.
func NewQwenGenerator(client qwenImageClient, fallback Generator) *QwenGenerator {
	return &QwenGenerator{client: client, fallback: fallback}
}

// Generate fulfils the Generator interface. Provider errors are returned as-is
// so the caller's retry policy can classify them with IsTransient.
func (g *QwenGenerator) Generate(ctx context.Context, req Request) (*Result, error) {
	if g == nil {
		return nil, fmt.Errorf("qwen generator not configured")
	}
	if g.client == nil || !g.client.HasCredentials() {
		if g.fallback != nil {
			return g.fallback.Generate(ctx, req)
		}
		return nil, qwen.ErrMissingAPIKey
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, errors.New("image prompt is required")
	}
	seed := req.Seed
	if seed <= 0 {
		seed = deterministicSeed(req.RequestID, prompt)
	}
	asset, err := g.client.GenerateImage(ctx, qwen.ImageRequest{
		Prompt:         prompt,
		NegativePrompt: strings.TrimSpace(req.NegativePrompt),
		Size:           AspectRatioSize(req.AspectRatio),
		Seed:           seed,
		RequestID:      req.RequestID,
	})
	if err != nil {
		return nil, err
	}
	return &Result{
		URL:      asset.URL,
		Format:   formatFromURL(asset.URL),
		Width:    asset.Width,
		Height:   asset.Height,
		Provider: "qwen:" + g.client.Model(),
	}, nil
}

func (g *QwenGenerator) String() string {
	if g == nil || g.client == nil {
		return "qwen"
	}
	return g.client.Model()
}

var _ Generator = (*QwenGenerator)(nil)

func deterministicSeed(values ...any) int {
	if len(values) == 0 {
		return 0
	}
	var parts []string
	for _, v := range values {
		parts = append(parts, fmt.Sprint(v))
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	n := binary.BigEndian.Uint32(sum[:4])
	value := int(n % 2147483647)
	if value <= 0 {
		fallback := binary.BigEndian.Uint32(sum[4:8]) % 2147483647
		if fallback == 0 {
			fallback = 1
		}
		value = int(fallback)
	}
	return value
}

func formatFromURL(raw string) string {
	path := strings.ToLower(raw)
	if idx := strings.IndexAny(path, "?#"); idx >= 0 {
		path = path[:idx]
	}
	switch {
	case strings.HasSuffix(path, ".jpg"), strings.HasSuffix(path, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(path, ".webp"):
		return "image/webp"
	default:
		return "image/png"
	}
}
