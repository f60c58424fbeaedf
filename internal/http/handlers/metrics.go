package handlers

import (
	"net/http"
	"time"

	"mealgen/internal/domain"
)

type metricsResponse struct {
	Agents      map[domain.AgentName]domain.AgentMetrics `json:"agents"`
	GeneratedAt time.Time                                `json:"generatedAt"`
}

// AgentMetrics reports cumulative per-agent counters for the process.
func (a *App) AgentMetrics(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, metricsResponse{
		Agents:      a.Metrics.Snapshot(),
		GeneratedAt: time.Now().UTC(),
	})
}
