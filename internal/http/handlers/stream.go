package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"mealgen/internal/domain"
)

// ProgressStream pushes every snapshot of a batch as a server-sent event.
// A new connection always starts with the latest snapshot, so clients can
// reconnect without losing the final state. The stream ends after the
// terminal snapshot, when the client goes away or when the server shuts down.
func (a *App) ProgressStream(w http.ResponseWriter, r *http.Request) {
	id, ok := a.batchID(w, r)
	if !ok {
		return
	}
	sub, err := a.Batches.Subscribe(r.Context(), id)
	if err != nil {
		a.lookupError(w, err)
		return
	}
	defer sub.Close()

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		a.Logger.Error().Err(err).Msg("progress stream: response does not support flushing")
		return
	}

	interval := a.Heartbeat
	if interval <= 0 {
		interval = 15 * time.Second
	}
	heartbeat := time.NewTicker(interval)
	defer heartbeat.Stop()

	logger := a.Logger.With().Str("batch_id", id).Logger()
	for {
		select {
		case <-r.Context().Done():
			logger.Debug().Msg("progress stream client disconnected")
			return
		case <-a.closing:
			logger.Debug().Msg("progress stream closed for shutdown")
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case snap, open := <-sub.Events():
			if !open {
				return
			}
			if err := writeEvent(w, snap); err != nil {
				logger.Debug().Err(err).Msg("progress stream write failed")
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, snap domain.ProgressSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", snap.Version, payload)
	return err
}
