package api

import (
	"net/http"

	"cantrace/internal/stats"
)

// StatsAPI handles HTTP API requests for capture-session statistics
type StatsAPI struct {
	collector *stats.Collector
}

// NewStatsAPI creates a new statistics API handler
func NewStatsAPI(collector *stats.Collector) *StatsAPI {
	return &StatsAPI{collector: collector}
}

// GetSessionStats retrieves the latest session statistics sample
// GET /api/stats/session
func (api *StatsAPI) GetSessionStats(w http.ResponseWriter, r *http.Request) {
	if api.collector == nil {
		respondWithError(w, http.StatusServiceUnavailable, "statistics collector not running")
		return
	}

	respondWithJSON(w, http.StatusOK, api.collector.Latest())
}
