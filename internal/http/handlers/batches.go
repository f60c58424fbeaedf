package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"mealgen/internal/domain"
	"mealgen/internal/pipeline"
)

const maxRequestBody = 1 << 20

type generateResponse struct {
	BatchID     string `json:"batchId"`
	Count       int    `json:"count"`
	ChunkSize   int    `json:"chunkSize"`
	TotalChunks int    `json:"totalChunks"`
	Started     bool   `json:"started"`
}

type cancelResponse struct {
	BatchID   string `json:"batchId"`
	Cancelled bool   `json:"cancelled"`
}

type itemsResponse struct {
	BatchID string                 `json:"batchId"`
	Items   []domain.GeneratedItem `json:"items"`
}

// Generate starts a batch and answers before any work is done.
func (a *App) Generate(w http.ResponseWriter, r *http.Request) {
	var req domain.BatchRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	batch, err := a.Batches.Start(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidRequest):
			a.error(w, http.StatusBadRequest, "invalid_request", err.Error())
		case errors.Is(err, pipeline.ErrShuttingDown):
			a.error(w, http.StatusServiceUnavailable, "unavailable", "service is shutting down")
		default:
			a.Logger.Error().Err(err).Msg("start batch failed")
			a.error(w, http.StatusInternalServerError, "internal", "failed to start batch")
		}
		return
	}
	a.json(w, http.StatusAccepted, generateResponse{
		BatchID:     batch.ID,
		Count:       batch.Request.Count,
		ChunkSize:   batch.Request.ChunkSize,
		TotalChunks: batch.Request.ChunkCount(),
		Started:     true,
	})
}

// Progress returns the latest snapshot of a batch.
func (a *App) Progress(w http.ResponseWriter, r *http.Request) {
	id, ok := a.batchID(w, r)
	if !ok {
		return
	}
	snap, err := a.Batches.Snapshot(r.Context(), id)
	if err != nil {
		a.lookupError(w, err)
		return
	}
	a.json(w, http.StatusOK, snap)
}

// Cancel requests cooperative cancellation. cancelled is false when the batch
// already finished.
func (a *App) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := a.batchID(w, r)
	if !ok {
		return
	}
	if _, err := a.Batches.Snapshot(r.Context(), id); err != nil {
		a.lookupError(w, err)
		return
	}
	a.json(w, http.StatusOK, cancelResponse{BatchID: id, Cancelled: a.Batches.Cancel(id)})
}

// BatchItems lists the persisted items of a batch in batch order.
func (a *App) BatchItems(w http.ResponseWriter, r *http.Request) {
	id, ok := a.batchID(w, r)
	if !ok {
		return
	}
	items, err := a.Items.ListByBatch(r.Context(), id)
	if err != nil {
		a.Logger.Error().Err(err).Str("batch_id", id).Msg("list items failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load items")
		return
	}
	if items == nil {
		items = []domain.GeneratedItem{}
	}
	a.json(w, http.StatusOK, itemsResponse{BatchID: id, Items: items})
}

func (a *App) batchID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "batchId"))
	if id == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "batchId required")
		return "", false
	}
	return id, true
}

func (a *App) lookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		a.error(w, http.StatusNotFound, "not_found", "batch not found")
		return
	}
	a.Logger.Error().Err(err).Msg("batch lookup failed")
	a.error(w, http.StatusInternalServerError, "internal", "failed to load batch")
}
