package pipeline

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"mealgen/internal/adapter/repo"
	"mealgen/internal/agents"
	"mealgen/internal/domain"
	"mealgen/internal/infra"
	"mealgen/internal/progress"
	"mealgen/internal/providers/image"
	"mealgen/internal/providers/planner"
)

const placeholderBase = "https://placehold.example.com/meals"

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)

type scriptedImages struct {
	mu     sync.Mutex
	failOn map[int]bool
	calls  int
}

func (g *scriptedImages) Generate(_ context.Context, req image.Request) (*image.Result, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	for idx := range g.failOn {
		if strings.HasSuffix(req.RequestID, "/"+strconv.Itoa(idx)) {
			return nil, errors.New("upstream timeout")
		}
	}
	return &image.Result{URL: "https://provider.example.com/" + req.RequestID + ".png", Data: pngBytes, Format: "image/png"}, nil
}

type memoryObjects struct {
	mu   sync.Mutex
	keys []string
}

func (m *memoryObjects) Put(_ context.Context, key string, _ []byte, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, key)
	return "https://cdn.example.com/" + key, nil
}

type failingSource struct{}

func (failingSource) Name() string { return "failing" }

func (failingSource) Propose(context.Context, planner.Request) ([]domain.ItemConcept, error) {
	return nil, agents.Permanent(errors.New("planner unavailable"))
}

type funcDrafter func(ctx context.Context, batchID string, c domain.ItemConcept) (domain.GeneratedItem, error)

func (f funcDrafter) Draft(ctx context.Context, batchID string, c domain.ItemConcept) (domain.GeneratedItem, error) {
	return f(ctx, batchID, c)
}

type harness struct {
	coord   *Coordinator
	tracker *progress.Tracker
	items   *repo.MemoryItemStore
	images  *scriptedImages
	objects *memoryObjects
	metrics *agents.MetricsRegistry
}

type harnessOption func(*Deps)

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	h := &harness{
		tracker: progress.NewTracker(progress.Options{Buffer: 64, Logger: infra.NopLogger()}),
		items:   repo.NewMemoryItemStore(),
		images:  &scriptedImages{failOn: map[int]bool{}},
		objects: &memoryObjects{},
		metrics: agents.NewMetricsRegistry(nil),
	}
	deps := Deps{
		Metrics:          h.metrics,
		Policy:           agents.RetryPolicy{MaxAttempts: 2, Multiplier: 2},
		Logger:           infra.NopLogger(),
		Source:           planner.NewCatalogSource(),
		Images:           h.images,
		Objects:          h.objects,
		Items:            h.items,
		PlaceholderBase:  placeholderBase,
		MediaConcurrency: 3,
		UploadTimeout:    time.Second,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	h.coord = New(NewAgents(deps), h.tracker, Options{ChunkSize: 5, Logger: infra.NopLogger()})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.coord.Shutdown(ctx)
		h.tracker.Close()
	})
	return h
}

func (h *harness) run(t *testing.T, req domain.BatchRequest) domain.ProgressSnapshot {
	t.Helper()
	batch, err := h.coord.Start(context.Background(), req)
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.coord.Wait(ctx, batch.ID); err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}
	snap, err := h.coord.Snapshot(ctx, batch.ID)
	if err != nil {
		t.Fatalf("Snapshot returned error: %v", err)
	}
	return snap
}

func assertConserved(t *testing.T, snap domain.ProgressSnapshot) {
	t.Helper()
	if snap.ItemsCompleted+snap.ItemsFailed != snap.TotalItems {
		t.Fatalf("completed %d + failed %d != total %d", snap.ItemsCompleted, snap.ItemsFailed, snap.TotalItems)
	}
}

func TestCoordinatorDegradesFailedMediaButCompletesBatch(t *testing.T) {
	h := newHarness(t)
	h.images.failOn[7] = true

	snap := h.run(t, domain.BatchRequest{Count: 12, ChunkSize: 5})
	if snap.Phase != domain.PhaseDone || snap.Status != domain.BatchStatusCompleted {
		t.Fatalf("phase=%s status=%s", snap.Phase, snap.Status)
	}
	if snap.ItemsCompleted != 12 || snap.ItemsFailed != 0 || snap.ItemsDegraded != 1 {
		t.Fatalf("completed=%d failed=%d degraded=%d", snap.ItemsCompleted, snap.ItemsFailed, snap.ItemsDegraded)
	}
	sizes := []int{5, 5, 2}
	if len(snap.Chunks) != len(sizes) {
		t.Fatalf("chunks = %+v", snap.Chunks)
	}
	for i, cp := range snap.Chunks {
		if cp.Size != sizes[i] || cp.State != domain.ChunkPersisted || cp.Persisted != sizes[i] {
			t.Fatalf("chunk %d = %+v", i, cp)
		}
	}

	stored, err := h.items.ListByBatch(context.Background(), snap.BatchID)
	if err != nil {
		t.Fatalf("ListByBatch returned error: %v", err)
	}
	if len(stored) != 12 {
		t.Fatalf("stored %d items, want 12", len(stored))
	}
	for _, item := range stored {
		if !item.HasMedia() {
			t.Fatalf("item %d persisted without media", item.Index)
		}
		if item.Index == 7 {
			if item.Media.Source != domain.MediaSourcePlaceholder {
				t.Fatalf("item 7 media source = %s", item.Media.Source)
			}
			if item.Media.URL != agents.PlaceholderURL(placeholderBase, item) {
				t.Fatalf("item 7 placeholder = %q", item.Media.URL)
			}
		} else if item.Media.Source != domain.MediaSourceStored {
			t.Fatalf("item %d media source = %s", item.Index, item.Media.Source)
		}
	}
	if len(snap.Errors) != 1 || snap.Errors[0].Stage != domain.PhaseImaging || snap.Errors[0].ItemIndex != 7 {
		t.Fatalf("errors = %+v", snap.Errors)
	}
}

func TestCoordinatorIsolatesChunkPersistenceFailure(t *testing.T) {
	h := newHarness(t)
	h.items.FailChunk = func(rec domain.ChunkRecord) error {
		if rec.ChunkIndex == 1 {
			return errors.New("deadlock detected")
		}
		return nil
	}

	snap := h.run(t, domain.BatchRequest{Count: 20, ChunkSize: 5})
	if snap.Phase != domain.PhaseDone {
		t.Fatalf("phase = %s", snap.Phase)
	}
	assertConserved(t, snap)
	if snap.ItemsCompleted != 15 || snap.ItemsFailed != 5 {
		t.Fatalf("completed=%d failed=%d", snap.ItemsCompleted, snap.ItemsFailed)
	}
	want := []domain.ChunkState{domain.ChunkPersisted, domain.ChunkFailed, domain.ChunkPersisted, domain.ChunkPersisted}
	for i, st := range want {
		if snap.Chunks[i].State != st {
			t.Fatalf("chunk %d state = %s, want %s", i, snap.Chunks[i].State, st)
		}
	}
	persistErrors := 0
	for _, e := range snap.Errors {
		if e.Stage == domain.PhasePersisting {
			persistErrors++
			if e.ChunkIndex != 1 {
				t.Fatalf("persist error on chunk %d", e.ChunkIndex)
			}
		}
	}
	if persistErrors != 5 {
		t.Fatalf("persist errors = %d, want 5", persistErrors)
	}

	stored, _ := h.items.ListByBatch(context.Background(), snap.BatchID)
	for _, item := range stored {
		if item.ChunkIndex == 1 {
			t.Fatalf("item %d from failed chunk was stored", item.Index)
		}
	}
	if len(stored) != 15 {
		t.Fatalf("stored %d items, want 15", len(stored))
	}
}

func TestCoordinatorCancelBeforeThirdChunk(t *testing.T) {
	h := newHarness(t)
	h.coord.beforeChunk = func(batchID string, chunk int) {
		if chunk == 2 && !h.coord.Cancel(batchID) {
			t.Errorf("Cancel(%s) = false for a running batch", batchID)
		}
	}

	snap := h.run(t, domain.BatchRequest{Count: 25, ChunkSize: 5})
	if snap.Phase != domain.PhaseCancelled || snap.Status != domain.BatchStatusCancelled {
		t.Fatalf("phase=%s status=%s", snap.Phase, snap.Status)
	}
	if snap.ItemsCompleted != 10 {
		t.Fatalf("completed = %d, want 10", snap.ItemsCompleted)
	}
	for i, cp := range snap.Chunks {
		want := domain.ChunkPersisted
		if i >= 2 {
			want = domain.ChunkSkipped
		}
		if cp.State != want {
			t.Fatalf("chunk %d state = %s, want %s", i, cp.State, want)
		}
	}
	if n := h.items.Count(snap.BatchID); n != 10 {
		t.Fatalf("stored %d items, want 10", n)
	}
	if h.coord.Cancel(snap.BatchID) {
		t.Fatal("Cancel accepted for a finished batch")
	}
}

func TestCancelDuringFinalChunkEndsCancelled(t *testing.T) {
	static := planner.NewStaticDrafter()
	var h *harness
	accepted := false
	h = newHarness(t, func(d *Deps) {
		d.Drafter = funcDrafter(func(ctx context.Context, batchID string, c domain.ItemConcept) (domain.GeneratedItem, error) {
			if c.Index == 3 {
				accepted = h.coord.Cancel(batchID)
			}
			return static.Draft(ctx, batchID, c)
		})
	})

	snap := h.run(t, domain.BatchRequest{Count: 4, ChunkSize: 2})
	if !accepted {
		t.Fatal("Cancel rejected while the final chunk was running")
	}
	if snap.Phase != domain.PhaseCancelled || snap.Status != domain.BatchStatusCancelled {
		t.Fatalf("phase=%s status=%s", snap.Phase, snap.Status)
	}
	if snap.ItemsCompleted != 4 || h.items.Count(snap.BatchID) != 4 {
		t.Fatalf("completed=%d stored=%d", snap.ItemsCompleted, h.items.Count(snap.BatchID))
	}
}

func TestCoordinatorPlanningFailureFailsBatch(t *testing.T) {
	h := newHarness(t, func(d *Deps) { d.Source = failingSource{} })

	snap := h.run(t, domain.BatchRequest{Count: 8, ChunkSize: 4})
	if snap.Phase != domain.PhaseFailed || snap.Status != domain.BatchStatusFailed {
		t.Fatalf("phase=%s status=%s", snap.Phase, snap.Status)
	}
	if len(snap.Errors) != 1 || snap.Errors[0].Stage != domain.PhasePlanning {
		t.Fatalf("errors = %+v", snap.Errors)
	}
	if snap.Agents[domain.AgentConcept].State != domain.AgentError {
		t.Fatalf("concept agent state = %s", snap.Agents[domain.AgentConcept].State)
	}
	if h.images.calls != 0 || h.items.Count(snap.BatchID) != 0 {
		t.Fatal("chunks were attempted after planning failed")
	}
}

func TestCoordinatorExcludesItemsMissingName(t *testing.T) {
	static := planner.NewStaticDrafter()
	h := newHarness(t, func(d *Deps) {
		d.Drafter = funcDrafter(func(ctx context.Context, batchID string, c domain.ItemConcept) (domain.GeneratedItem, error) {
			item, err := static.Draft(ctx, batchID, c)
			if c.Index == 3 {
				item.Name = ""
			}
			return item, err
		})
	})

	snap := h.run(t, domain.BatchRequest{Count: 7, ChunkSize: 5})
	assertConserved(t, snap)
	if snap.ItemsFailed != 1 || snap.ItemsCompleted != 6 {
		t.Fatalf("completed=%d failed=%d", snap.ItemsCompleted, snap.ItemsFailed)
	}
	if snap.Errors[0].Stage != domain.PhaseValidating || snap.Errors[0].ItemIndex != 3 {
		t.Fatalf("errors = %+v", snap.Errors)
	}
	if !strings.Contains(snap.Errors[0].Message, domain.ErrMissingIdentity.Error()) {
		t.Fatalf("message = %q", snap.Errors[0].Message)
	}
}

func TestCoordinatorRecoversFromPanics(t *testing.T) {
	h := newHarness(t, func(d *Deps) {
		d.Drafter = funcDrafter(func(context.Context, string, domain.ItemConcept) (domain.GeneratedItem, error) {
			panic("drafter exploded")
		})
	})

	snap := h.run(t, domain.BatchRequest{Count: 3})
	if snap.Phase != domain.PhaseFailed {
		t.Fatalf("phase = %s", snap.Phase)
	}
	last := snap.Errors[len(snap.Errors)-1]
	if !strings.Contains(last.Message, "drafter exploded") {
		t.Fatalf("panic not recorded: %+v", last)
	}
}

func TestCoordinatorSkipsDisabledMediaStages(t *testing.T) {
	h := newHarness(t)
	off := false

	snap := h.run(t, domain.BatchRequest{Count: 4, Features: domain.FeatureFlags{GenerateMedia: &off, StoreMedia: &off}})
	if snap.ItemsCompleted != 4 {
		t.Fatalf("completed = %d", snap.ItemsCompleted)
	}
	if h.images.calls != 0 || len(h.objects.keys) != 0 {
		t.Fatalf("media stages ran: images=%d uploads=%d", h.images.calls, len(h.objects.keys))
	}
	stored, _ := h.items.ListByBatch(context.Background(), snap.BatchID)
	for _, item := range stored {
		if item.Media.Source != domain.MediaSourcePlaceholder {
			t.Fatalf("item %d media = %+v", item.Index, item.Media)
		}
	}
}

func TestInlineMediaIsNotPersistedAsDataURI(t *testing.T) {
	h := newHarness(t, func(d *Deps) { d.Images = image.NewSynthetic() })
	off := false

	snap := h.run(t, domain.BatchRequest{Count: 3, Features: domain.FeatureFlags{StoreMedia: &off}})
	if snap.ItemsCompleted != 3 {
		t.Fatalf("completed = %d", snap.ItemsCompleted)
	}
	stored, _ := h.items.ListByBatch(context.Background(), snap.BatchID)
	if len(stored) != 3 {
		t.Fatalf("stored = %d", len(stored))
	}
	for _, item := range stored {
		if strings.HasPrefix(item.Media.URL, "data:") || !strings.HasPrefix(item.Media.URL, placeholderBase) {
			t.Fatalf("item %d url = %.40q", item.Index, item.Media.URL)
		}
		if item.Media.Source != domain.MediaSourcePlaceholder || item.Media.Data != nil {
			t.Fatalf("item %d media = %+v", item.Index, item.Media)
		}
	}
}

func TestSubscribeAfterBatchFinished(t *testing.T) {
	h := newHarness(t)
	snap := h.run(t, domain.BatchRequest{Count: 2})

	sub, err := h.coord.Subscribe(context.Background(), snap.BatchID)
	if err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}
	got, ok := <-sub.Events()
	if !ok || got.Phase != domain.PhaseDone || got.ItemsCompleted != 2 {
		t.Fatalf("final snapshot = %+v ok=%v", got, ok)
	}
	if _, ok := <-sub.Events(); ok {
		t.Fatal("stream not closed after final snapshot")
	}
}

func TestStreamEndsWithTerminalSnapshot(t *testing.T) {
	h := newHarness(t)
	gate := make(chan struct{})
	h.coord.beforeChunk = func(string, int) { <-gate }

	batch, err := h.coord.Start(context.Background(), domain.BatchRequest{Count: 6, ChunkSize: 3})
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	sub, err := h.coord.Subscribe(context.Background(), batch.ID)
	if err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}
	close(gate)

	var last domain.ProgressSnapshot
	for snap := range sub.Events() {
		if snap.ItemsCompleted > snap.TotalItems {
			t.Fatalf("completed %d exceeds total %d", snap.ItemsCompleted, snap.TotalItems)
		}
		last = snap
	}
	if last.Phase != domain.PhaseDone || last.ItemsCompleted != 6 {
		t.Fatalf("last snapshot = %+v", last)
	}
}

func TestStartRejectsInvalidRequests(t *testing.T) {
	h := newHarness(t)
	for _, req := range []domain.BatchRequest{
		{Count: 0},
		{Count: 101},
		{Count: 5, ChunkSize: 30},
		{Count: 5, Categories: []string{"brunch"}},
	} {
		if _, err := h.coord.Start(context.Background(), req); !errors.Is(err, domain.ErrInvalidRequest) {
			t.Fatalf("Start(%+v) error = %v, want ErrInvalidRequest", req, err)
		}
	}
}

func TestCancelUnknownBatch(t *testing.T) {
	h := newHarness(t)
	if h.coord.Cancel("nope") {
		t.Fatal("Cancel accepted an unknown batch")
	}
	if err := h.coord.Wait(context.Background(), "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Wait error = %v, want ErrNotFound", err)
	}
}

func TestShutdownRejectsNewBatches(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.coord.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown returned error: %v", err)
	}
	if _, err := h.coord.Start(context.Background(), domain.BatchRequest{Count: 1}); !errors.Is(err, ErrShuttingDown) {
		t.Fatalf("Start after shutdown error = %v", err)
	}
}

// blockingImages holds every call until its context is cancelled.
type blockingImages struct{ started chan struct{} }

func (g *blockingImages) Generate(ctx context.Context, _ image.Request) (*image.Result, error) {
	select {
	case g.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestShutdownAbortsInFlightCallsAndWaitsForRuns(t *testing.T) {
	images := &blockingImages{started: make(chan struct{}, 1)}
	h := newHarness(t, func(d *Deps) { d.Images = images })
	if _, err := h.coord.Start(context.Background(), domain.BatchRequest{Count: 3}); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	select {
	case <-images.started:
	case <-time.After(2 * time.Second):
		t.Fatal("image generation never started")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	begin := time.Now()
	if err := h.coord.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Shutdown error = %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(begin); elapsed > 3*time.Second {
		t.Fatalf("Shutdown took %s", elapsed)
	}
	h.coord.mu.Lock()
	running := len(h.coord.runs)
	h.coord.mu.Unlock()
	if running != 0 {
		t.Fatalf("%d runs still active after Shutdown returned", running)
	}
}

func TestAgentMetricsAccumulateAcrossBatches(t *testing.T) {
	h := newHarness(t)
	h.run(t, domain.BatchRequest{Count: 3})
	h.run(t, domain.BatchRequest{Count: 2})

	m := h.metrics.Get(domain.AgentPersistence)
	if m.OperationCount != 2 {
		t.Fatalf("persistence operations = %d, want 2", m.OperationCount)
	}
	if v := h.metrics.Get(domain.AgentValidation); v.OperationCount != 5 {
		t.Fatalf("validation operations = %d, want 5", v.OperationCount)
	}
}
