package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mealgen/internal/domain"
	"mealgen/internal/infra"
)

func testConfig(t *testing.T) *infra.Config {
	t.Helper()
	return &infra.Config{
		AppEnv:             "test",
		StoragePath:        t.TempDir(),
		StorageBaseURL:     "http://localhost:8080/static",
		PlaceholderBaseURL: "https://placehold.example.com/meals",
		ImageProvider:      "synthetic",
		ConceptProvider:    "catalog",
		ChunkSize:          2,
		MaxAttempts:        1,
		MediaConcurrency:   2,
		UploadTimeout:      5 * time.Second,
		ProgressBuffer:     8,
		ProgressRetention:  time.Minute,
	}
}

func TestBuildRunsBatchEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	rt, err := Build(context.Background(), cfg, infra.NopLogger())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer rt.Close()

	if rt.Pool != nil {
		t.Fatalf("expected no database pool without DATABASE_URL")
	}
	if err := rt.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	batch, err := rt.Coordinator.Start(context.Background(), domain.BatchRequest{Count: 3})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := rt.Coordinator.Wait(ctx, batch.ID); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	snap, err := rt.Tracker.Snapshot(ctx, batch.ID)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Status != domain.BatchStatusCompleted {
		t.Fatalf("status = %s, errors = %+v", snap.Status, snap.Errors)
	}
	if snap.TotalChunks != 2 || snap.ItemsCompleted != 3 {
		t.Fatalf("unexpected snapshot: chunks=%d completed=%d", snap.TotalChunks, snap.ItemsCompleted)
	}

	items, err := rt.Items.ListByBatch(ctx, batch.ID)
	if err != nil {
		t.Fatalf("ListByBatch: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("stored %d items, want 3", len(items))
	}
	for _, item := range items {
		if item.Media.Source != domain.MediaSourceStored {
			t.Fatalf("item %d media source = %q", item.Index, item.Media.Source)
		}
		if !strings.HasPrefix(item.Media.URL, cfg.StorageBaseURL+"/meals/"+batch.ID+"/") {
			t.Fatalf("item %d url = %q", item.Index, item.Media.URL)
		}
		rel := strings.TrimPrefix(item.Media.URL, cfg.StorageBaseURL+"/")
		if _, err := os.Stat(filepath.Join(rt.Files.BasePath(), filepath.FromSlash(rel))); err != nil {
			t.Fatalf("stored file missing for item %d: %v", item.Index, err)
		}
	}

	metrics := rt.Metrics.Snapshot()
	if metrics[domain.AgentPersistence].OperationCount != 2 {
		t.Fatalf("persistence operations = %d, want 2", metrics[domain.AgentPersistence].OperationCount)
	}
}

func TestBuildRejectsBadRedisURL(t *testing.T) {
	cfg := testConfig(t)
	cfg.ProgressRedisURL = "not-a-redis-url"
	if _, err := Build(context.Background(), cfg, infra.NopLogger()); err == nil {
		t.Fatalf("expected error for invalid redis url")
	}
}

func TestShutdownRejectsNewBatches(t *testing.T) {
	rt, err := Build(context.Background(), testConfig(t), infra.NopLogger())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rt.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if _, err := rt.Coordinator.Start(context.Background(), domain.BatchRequest{Count: 1}); err == nil {
		t.Fatalf("expected Start to fail after shutdown")
	}
}
