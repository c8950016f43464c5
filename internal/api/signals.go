package api

import (
	"fmt"
	"net/http"
	"time"

	"cantrace/internal/database/influxdb"
)

// SignalAPI handles HTTP API requests for decoded signal history
type SignalAPI struct {
	influx *influxdb.Writer
}

// NewSignalAPI creates a new signal history API handler
func NewSignalAPI(influx *influxdb.Writer) *SignalAPI {
	return &SignalAPI{influx: influx}
}

// GetHistory retrieves the time series of one decoded signal
// GET /api/signals/history?signal=State_of_Charger_SOC&start_time=2024-01-01T00:00:00Z&end_time=2024-01-02T00:00:00Z&limit=100
func (api *SignalAPI) GetHistory(w http.ResponseWriter, r *http.Request) {
	if api.influx == nil {
		respondWithError(w, http.StatusServiceUnavailable, "signal history store not configured")
		return
	}

	signalName := r.URL.Query().Get("signal")
	if signalName == "" {
		respondWithError(w, http.StatusBadRequest, "signal parameter is required")
		return
	}

	params, err := parseQueryParams(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	end := time.Now()
	if params.EndTime != nil {
		end = *params.EndTime
	}
	start := end.Add(-1 * time.Hour)
	if params.StartTime != nil {
		start = *params.StartTime
	}

	points, err := api.influx.QueryHistory(r.Context(), signalName, start, end, params.Limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Query failed: %v", err))
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"signal": signalName,
		"count":  len(points),
		"points": points,
	})
}
