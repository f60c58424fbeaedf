package image

import (
	"context"
	"errors"
	"net"
	"strings"

	"mealgen/internal/providers/qwen"
)

// Request describes one image to render.
type Request struct {
	Prompt         string
	NegativePrompt string
	AspectRatio    string
	// Seed keeps reruns of the same item close to each other; zero lets the provider pick.
	Seed      int
	RequestID string
}

// Result is a generated image. Providers either host the image (URL) or
// return the bytes inline (Data); some do both.
type Result struct {
	URL      string
	Data     []byte
	Format   string
	Width    int
	Height   int
	Provider string
}

// Generator is the contract implemented by all image providers.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Result, error)
}

// IsTransient reports whether a provider error is likely to clear on retry:
// timeouts, rate limits and upstream 5xx answers.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr *qwen.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	if msg == "" {
		return false
	}
	if strings.Contains(msg, "internalerror") || strings.Contains(msg, "internal error") {
		return true
	}
	if strings.Contains(msg, "service unavailable") || strings.Contains(msg, "server unavailable") {
		return true
	}
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "rate limit") {
		return true
	}
	return false
}
