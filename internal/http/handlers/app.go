package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"mealgen/internal/domain"
	"mealgen/internal/infra"
	"mealgen/internal/progress"
)

// BatchService is the part of the pipeline coordinator the HTTP layer uses.
type BatchService interface {
	Start(ctx context.Context, req domain.BatchRequest) (domain.Batch, error)
	Snapshot(ctx context.Context, id string) (domain.ProgressSnapshot, error)
	Subscribe(ctx context.Context, id string) (*progress.Subscription, error)
	Cancel(id string) bool
}

// MetricsSource reports cumulative per-agent metrics.
type MetricsSource interface {
	Snapshot() map[domain.AgentName]domain.AgentMetrics
}

type App struct {
	Batches BatchService
	Metrics MetricsSource
	Items   domain.ItemStore
	// Objects enables image files in batch exports; nil exports items.json only.
	Objects ObjectReader
	Logger  infra.Logger
	// Heartbeat is the comment interval on progress streams.
	Heartbeat time.Duration
	// Ping checks backing services for the health endpoint; nil means healthy.
	Ping func(ctx context.Context) error

	closing   chan struct{}
	closeOnce sync.Once
}

func NewApp(batches BatchService, metrics MetricsSource, items domain.ItemStore, logger infra.Logger) *App {
	return &App{
		Batches:   batches,
		Metrics:   metrics,
		Items:     items,
		Logger:    logger,
		Heartbeat: 15 * time.Second,
		closing:   make(chan struct{}),
	}
}

// CloseStreams ends every open progress stream. The server calls it when
// shutdown starts so it does not wait on streams of running batches.
func (a *App) CloseStreams() {
	a.closeOnce.Do(func() { close(a.closing) })
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, errorResponse{Error: errCode, Message: message})
}
