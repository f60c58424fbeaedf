package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path"

	"mealgen/internal/domain"
	"mealgen/pkg/zip"
)

// ObjectReader reads back media the pipeline stored.
type ObjectReader interface {
	KeyFromURL(url string) (string, bool)
	Read(ctx context.Context, key string) ([]byte, error)
}

// ExportBatch downloads a batch as a zip holding items.json plus every image
// that was uploaded to our own storage. Provider and placeholder URLs stay as
// references inside items.json.
func (a *App) ExportBatch(w http.ResponseWriter, r *http.Request) {
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
	if len(items) == 0 {
		if _, err := a.Batches.Snapshot(r.Context(), id); err != nil {
			a.lookupError(w, err)
			return
		}
		items = []domain.GeneratedItem{}
	}

	manifest, err := json.MarshalIndent(itemsResponse{BatchID: id, Items: items}, "", "  ")
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to encode items")
		return
	}
	assets := []zip.Asset{{Filename: "items.json", Data: manifest}}
	if a.Objects != nil {
		for _, item := range items {
			if item.Media.Source != domain.MediaSourceStored {
				continue
			}
			key, ok := a.Objects.KeyFromURL(item.Media.URL)
			if !ok {
				continue
			}
			data, err := a.Objects.Read(r.Context(), key)
			if err != nil {
				a.Logger.Warn().Err(err).Str("batch_id", id).Int("item_index", item.Index).Msg("export: stored media unreadable")
				continue
			}
			assets = append(assets, zip.Asset{
				Filename: fmt.Sprintf("images/%02d-%s", item.Index, path.Base(key)),
				Modified: item.CreatedAt,
				Data:     data,
			})
		}
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=batch-%s.zip", id))
	w.WriteHeader(http.StatusOK)
	if err := zip.Write(w, assets); err != nil {
		a.Logger.Error().Err(err).Str("batch_id", id).Msg("export: write archive failed")
	}
}
