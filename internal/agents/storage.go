package agents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/semaphore"

	"mealgen/internal/domain"
)

const maxMediaBytes = 20 << 20

// StorageResult is the outcome of storing one item's media.
type StorageResult struct {
	Item domain.GeneratedItem
	// Fallback means the upload failed and the provider URL was kept.
	Fallback bool
	// Skipped means there was nothing to upload (placeholder or no media).
	Skipped bool
	Err     error
}

// StorageAgent copies provider-hosted media into the object store.
type StorageAgent struct {
	worker      *Worker
	store       domain.ObjectStore
	client      *http.Client
	timeout     time.Duration
	concurrency int64
}

func NewStorageAgent(worker *Worker, store domain.ObjectStore, client *http.Client, timeout time.Duration, concurrency int) *StorageAgent {
	if client == nil {
		client = &http.Client{}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if concurrency < 1 {
		concurrency = 5
	}
	return &StorageAgent{
		worker:      worker,
		store:       store,
		client:      client,
		timeout:     timeout,
		concurrency: int64(concurrency),
	}
}

// StorageKey is meals/<batch>/<chunk>/<item><ext>.
func StorageKey(item domain.GeneratedItem, ext string) string {
	if ext == "" {
		ext = ".png"
	}
	return fmt.Sprintf("meals/%s/%d/%d%s", item.BatchID, item.ChunkIndex, item.Index, ext)
}

// Store uploads the item's provider media. Each attempt gets the per-upload
// timeout. On failure the provider URL stays as the media reference.
func (a *StorageAgent) Store(ctx context.Context, item domain.GeneratedItem) StorageResult {
	if item.Media.Source != domain.MediaSourceProvider {
		return StorageResult{Item: item, Skipped: true}
	}
	out := cloneItem(item)

	var contentType string
	url, err := Run(ctx, a.worker, "upload", func(ctx context.Context) (string, error) {
		uctx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()

		data, err := a.fetch(uctx, out.Media)
		if err != nil {
			return "", err
		}
		mt := mimetype.Detect(data)
		if !strings.HasPrefix(mt.String(), "image/") {
			return "", Permanent(fmt.Errorf("media is %s, not an image", mt.String()))
		}
		contentType = mt.String()
		return a.store.Put(uctx, StorageKey(out, mt.Extension()), data, contentType)
	})
	if err != nil {
		a.worker.Logger().Warn().Err(err).
			Str("batch_id", item.BatchID).
			Int("item", item.Index).
			Msg("media upload failed, keeping provider url")
		return a.fallback(out, err)
	}

	out.Media.URL = url
	out.Media.Source = domain.MediaSourceStored
	out.Media.Format = contentType
	out.Media.Data = nil
	return StorageResult{Item: out}
}

// StoreAll stores every item with at most the configured number of uploads in
// flight. Results keep the input order.
func (a *StorageAgent) StoreAll(ctx context.Context, items []domain.GeneratedItem) []StorageResult {
	start := time.Now()
	results := make([]StorageResult, len(items))
	sem := semaphore.NewWeighted(a.concurrency)
	var wg sync.WaitGroup
	for i, item := range items {
		if item.Media.Source != domain.MediaSourceProvider {
			results[i] = StorageResult{Item: item, Skipped: true}
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = a.fallback(cloneItem(item), err)
			continue
		}
		wg.Add(1)
		go func(i int, item domain.GeneratedItem) {
			defer wg.Done()
			defer sem.Release(1)
			results[i] = a.Store(ctx, item)
		}(i, item)
	}
	wg.Wait()
	a.worker.Metrics().RecordBatch(a.worker.Name(), len(items), time.Since(start))
	return results
}

func (a *StorageAgent) fallback(item domain.GeneratedItem, err error) StorageResult {
	return StorageResult{Item: Unstored(item), Fallback: true, Err: err}
}

// Unstored settles an item's media when it is persisted without an upload.
// Hosted media keeps the provider URL. Media that only existed inline falls
// back to its placeholder reference. Inline bytes are always dropped.
func Unstored(item domain.GeneratedItem) domain.GeneratedItem {
	switch {
	case item.Media.ProviderURL != "":
		item.Media.URL = item.Media.ProviderURL
	case item.Media.Source == domain.MediaSourceProvider:
		item.Media.Source = domain.MediaSourcePlaceholder
	}
	item.Media.Data = nil
	return item
}

func (a *StorageAgent) fetch(ctx context.Context, media domain.Media) ([]byte, error) {
	if len(media.Data) > 0 {
		return media.Data, nil
	}
	src := strings.TrimSpace(media.ProviderURL)
	if src == "" {
		return nil, Permanent(errors.New("media has neither data nor provider url"))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, Permanent(fmt.Errorf("build download request: %w", err))
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download media: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		err := fmt.Errorf("download status %d", resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, Permanent(err)
		}
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read media: %w", err)
	}
	if len(data) > maxMediaBytes {
		return nil, Permanent(fmt.Errorf("media exceeds %d bytes", maxMediaBytes))
	}
	return data, nil
}
