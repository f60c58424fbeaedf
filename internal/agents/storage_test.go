package agents

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mealgen/internal/domain"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)

type stubObjectStore struct {
	mu       sync.Mutex
	puts     map[string]string
	fail     error
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
}

func (s *stubObjectStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		peak := s.peak.Load()
		if n <= peak || s.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.fail != nil {
		return "", s.fail
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.puts == nil {
		s.puts = map[string]string{}
	}
	s.puts[key] = contentType
	return "https://cdn.example.com/" + key, nil
}

func providerItem(index int, url string) domain.GeneratedItem {
	item := sampleItem(index, "Dish")
	item.Media = domain.Media{URL: url, ProviderURL: url, Source: domain.MediaSourceProvider}
	return item
}

func TestStoreUploadsProviderMedia(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(pngBytes)
	}))
	defer srv.Close()

	w, _ := newTestWorker(domain.AgentStorage, 3)
	store := &stubObjectStore{}
	agent := NewStorageAgent(w, store, srv.Client(), time.Second, 2)

	item := providerItem(6, srv.URL+"/img")
	item.ChunkIndex = 1
	res := agent.Store(context.Background(), item)
	if res.Fallback || res.Err != nil {
		t.Fatalf("unexpected fallback: %+v", res)
	}
	if res.Item.Media.URL != "https://cdn.example.com/meals/batch-1/1/6.png" {
		t.Fatalf("URL = %q", res.Item.Media.URL)
	}
	if res.Item.Media.Source != domain.MediaSourceStored {
		t.Fatalf("Source = %q", res.Item.Media.Source)
	}
	if res.Item.Media.ProviderURL != item.Media.ProviderURL {
		t.Fatalf("ProviderURL lost: %q", res.Item.Media.ProviderURL)
	}
	if store.puts["meals/batch-1/1/6.png"] != "image/png" {
		t.Fatalf("puts = %#v", store.puts)
	}
}

func TestStoreFallsBackToProviderURL(t *testing.T) {
	w, _ := newTestWorker(domain.AgentStorage, 2)
	store := &stubObjectStore{fail: errors.New("bucket unavailable")}
	agent := NewStorageAgent(w, store, nil, time.Second, 2)

	item := providerItem(0, "https://provider.example.com/0.png")
	item.Media.Data = pngBytes
	res := agent.Store(context.Background(), item)
	if !res.Fallback || res.Err == nil {
		t.Fatalf("expected fallback, got %+v", res)
	}
	if res.Item.Media.URL != "https://provider.example.com/0.png" {
		t.Fatalf("URL = %q", res.Item.Media.URL)
	}
	if res.Item.Media.Data != nil {
		t.Fatal("inline bytes should be dropped after the storage stage")
	}
	if m := w.Metrics().Get(domain.AgentStorage); m.AttemptCount != 2 || m.ErrorCount != 1 {
		t.Fatalf("unexpected metrics %+v", m)
	}
}

func TestStoreFallsBackToPlaceholderForInlineMedia(t *testing.T) {
	w, _ := newTestWorker(domain.AgentStorage, 1)
	agent := NewStorageAgent(w, &stubObjectStore{fail: errors.New("bucket unavailable")}, nil, time.Second, 1)

	item := sampleItem(0, "Dish")
	placeholder := PlaceholderURL("https://placehold.example.com", item)
	item.Media = domain.Media{URL: placeholder, Source: domain.MediaSourceProvider, Format: "image/png", Data: pngBytes}

	res := agent.Store(context.Background(), item)
	if !res.Fallback {
		t.Fatalf("expected fallback, got %+v", res)
	}
	if res.Item.Media.URL != placeholder || res.Item.Media.Source != domain.MediaSourcePlaceholder {
		t.Fatalf("media = %+v", res.Item.Media)
	}
	if res.Item.Media.Data != nil {
		t.Fatal("inline bytes should be dropped")
	}
}

func TestUnstored(t *testing.T) {
	hosted := providerItem(0, "https://provider.example.com/0.png")
	hosted.Media.Data = pngBytes
	if got := Unstored(hosted).Media; got.URL != hosted.Media.ProviderURL || got.Source != domain.MediaSourceProvider || got.Data != nil {
		t.Fatalf("hosted media = %+v", got)
	}

	inline := sampleItem(1, "Dish")
	inline.Media = domain.Media{URL: "https://placehold.example.com/x.png", Source: domain.MediaSourceProvider, Data: pngBytes}
	if got := Unstored(inline).Media; got.URL != inline.Media.URL || got.Source != domain.MediaSourcePlaceholder || got.Data != nil {
		t.Fatalf("inline media = %+v", got)
	}

	placeholder := sampleItem(2, "Dish")
	placeholder.Media = domain.Media{URL: "https://placehold.example.com/y.png", Source: domain.MediaSourcePlaceholder}
	if got := Unstored(placeholder).Media; got.URL != placeholder.Media.URL || got.Source != domain.MediaSourcePlaceholder {
		t.Fatalf("placeholder media changed: %+v", got)
	}
}

// hangingStore never completes a Put on its own.
type hangingStore struct{ calls atomic.Int32 }

func (s *hangingStore) Put(ctx context.Context, _ string, _ []byte, _ string) (string, error) {
	s.calls.Add(1)
	<-ctx.Done()
	return "", ctx.Err()
}

func TestStoreTimesOutEachUpload(t *testing.T) {
	w, slept := newTestWorker(domain.AgentStorage, 2)
	store := &hangingStore{}
	agent := NewStorageAgent(w, store, nil, 25*time.Millisecond, 1)

	item := providerItem(2, "https://provider.example.com/2.png")
	item.Media.Data = pngBytes

	begin := time.Now()
	res := agent.Store(context.Background(), item)
	elapsed := time.Since(begin)

	if !res.Fallback || !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Fatalf("expected timeout fallback, got %+v", res)
	}
	if res.Item.Media.URL != item.Media.ProviderURL || res.Item.Media.Source != domain.MediaSourceProvider {
		t.Fatalf("media = %+v", res.Item.Media)
	}
	if got := store.calls.Load(); got != 2 {
		t.Fatalf("Put called %d times, want 2", got)
	}
	if len(*slept) != 1 {
		t.Fatalf("expected one backoff between attempts, got %v", *slept)
	}
	if elapsed > time.Second {
		t.Fatalf("Store took %s with a 25ms upload timeout", elapsed)
	}
}

func TestStoreRejectsNonImageWithoutRetry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body>not an image</body></html>"))
	}))
	defer srv.Close()

	w, _ := newTestWorker(domain.AgentStorage, 3)
	agent := NewStorageAgent(w, &stubObjectStore{}, srv.Client(), time.Second, 1)

	res := agent.Store(context.Background(), providerItem(0, srv.URL))
	if !res.Fallback {
		t.Fatalf("expected fallback, got %+v", res)
	}
	if m := w.Metrics().Get(domain.AgentStorage); m.AttemptCount != 1 {
		t.Fatalf("AttemptCount = %d, want 1", m.AttemptCount)
	}
}

func TestStoreSkipsPlaceholders(t *testing.T) {
	w, _ := newTestWorker(domain.AgentStorage, 3)
	store := &stubObjectStore{}
	agent := NewStorageAgent(w, store, nil, time.Second, 1)

	item := sampleItem(0, "Dish")
	item.Media = domain.Media{URL: "https://placehold.example.com/x.png", Source: domain.MediaSourcePlaceholder}
	res := agent.Store(context.Background(), item)
	if !res.Skipped || res.Item.Media.URL != item.Media.URL {
		t.Fatalf("placeholder should pass through: %+v", res)
	}
	if len(store.puts) != 0 {
		t.Fatal("placeholder was uploaded")
	}
}

func TestStoreAllBoundsConcurrency(t *testing.T) {
	w, _ := newTestWorker(domain.AgentStorage, 1)
	store := &stubObjectStore{delay: 5 * time.Millisecond}
	agent := NewStorageAgent(w, store, nil, time.Second, 2)

	items := make([]domain.GeneratedItem, 8)
	for i := range items {
		items[i] = providerItem(i, "https://provider.example.com/x.png")
		items[i].Media.Data = pngBytes
	}
	results := agent.StoreAll(context.Background(), items)
	for i, r := range results {
		if r.Item.Index != i || r.Item.Media.Source != domain.MediaSourceStored {
			t.Fatalf("result %d: %+v", i, r.Item.Media)
		}
	}
	if peak := store.peak.Load(); peak > 2 {
		t.Fatalf("peak uploads %d exceeds limit 2", peak)
	}
	if len(store.puts) != 8 {
		t.Fatalf("stored %d objects, want 8", len(store.puts))
	}
}
