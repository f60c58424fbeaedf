package qwen

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGenerateImagePayload(t *testing.T) {
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/services/aigc/multimodal-generation/generation" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test" {
			t.Errorf("Authorization = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"output": map[string]any{
				"choices": []any{
					map[string]any{
						"message": map[string]any{
							"content": []any{
								map[string]any{"image": "https://example.com/generated/out.png"},
							},
						},
					},
				},
			},
			"usage":      map[string]any{"width": 1024, "height": 1024},
			"request_id": "req-123",
		})
	}))
	defer srv.Close()

	client, err := NewClient(Options{APIKey: "test", BaseURL: srv.URL, PromptExtend: true})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	asset, err := client.GenerateImage(context.Background(), ImageRequest{
		Prompt:         "grilled salmon bowl",
		NegativePrompt: "blurry",
		Seed:           42,
	})
	if err != nil {
		t.Fatalf("generate image: %v", err)
	}
	if asset.URL != "https://example.com/generated/out.png" {
		t.Fatalf("url = %q", asset.URL)
	}
	if asset.Width != 1024 || asset.RequestID != "req-123" {
		t.Fatalf("unexpected asset %+v", asset)
	}

	params := payload["parameters"].(map[string]any)
	if params["size"] != "1328*1328" {
		t.Fatalf("size = %v, want default", params["size"])
	}
	if params["seed"] != float64(42) {
		t.Fatalf("seed = %v, want 42", params["seed"])
	}
	if params["prompt_extend"] != true {
		t.Fatalf("prompt_extend = %v", params["prompt_extend"])
	}
	if params["negative_prompt"] != "blurry" {
		t.Fatalf("negative_prompt = %v", params["negative_prompt"])
	}
}

func TestGenerateImageAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"code":"Throttling.RateQuota","message":"Requests rate limit exceeded"}`))
	}))
	defer srv.Close()

	client, _ := NewClient(Options{APIKey: "test", BaseURL: srv.URL})
	_, err := client.GenerateImage(context.Background(), ImageRequest{Prompt: "soup"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if !apiErr.Temporary() {
		t.Fatal("rate limit should be temporary")
	}
}

func TestGenerateImageContentPolicyIsNotTemporary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":"DataInspectionFailed","message":"Input data may contain inappropriate content."}`))
	}))
	defer srv.Close()

	client, _ := NewClient(Options{APIKey: "test", BaseURL: srv.URL})
	_, err := client.GenerateImage(context.Background(), ImageRequest{Prompt: "soup"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Temporary() {
		t.Fatal("content policy rejection should not be temporary")
	}
}

func TestGenerateImageRequiresKey(t *testing.T) {
	client, _ := NewClient(Options{})
	if _, err := client.GenerateImage(context.Background(), ImageRequest{Prompt: "soup"}); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}
