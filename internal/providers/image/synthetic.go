package image

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	stdimage "image"
	"image/color"
	"image/png"
	"time"
)

// Synthetic renders a flat swatch whose colour is derived from the prompt. It
// stands in for a real provider in development and when no API key is set.
type Synthetic struct {
	Size  int
	Delay time.Duration
}

func NewSynthetic() *Synthetic {
	return &Synthetic{Size: 64}
}

func (s *Synthetic) Generate(ctx context.Context, req Request) (*Result, error) {
	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	size := s.Size
	if size <= 0 {
		size = 64
	}
	sum := sha256.Sum256([]byte(req.Prompt))
	fill := color.RGBA{R: sum[0], G: sum[1], B: sum[2], A: 0xff}

	img := stdimage.NewRGBA(stdimage.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.Set(x, y, fill)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("synthetic: encode png: %w", err)
	}
	return &Result{
		Data:     buf.Bytes(),
		Format:   "image/png",
		Width:    size,
		Height:   size,
		Provider: "synthetic",
	}, nil
}

var _ Generator = (*Synthetic)(nil)
