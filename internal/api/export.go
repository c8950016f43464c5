package api

import (
	"fmt"
	"net/http"
	"time"

	"cantrace/internal/catalog"
	"cantrace/internal/engine"
	"cantrace/internal/export"
)

// ExportAPI serves trace and decoded-CSV downloads of the frame log
type ExportAPI struct {
	engine  *engine.Engine
	catalog *catalog.Catalog
}

// NewExportAPI creates a new export API handler
func NewExportAPI(eng *engine.Engine, cat *catalog.Catalog) *ExportAPI {
	return &ExportAPI{engine: eng, catalog: cat}
}

// DownloadTrace streams the frame log as a trace file, optionally
// filtered by identifier.
// GET /api/export/trace?can_id=0x123
func (api *ExportAPI) DownloadTrace(w http.ResponseWriter, r *http.Request) {
	params, err := parseQueryParams(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	frames := api.engine.Log()
	if params.CANID != nil {
		frames = export.FilterByID(frames, *params.CANID)
	}

	filename := fmt.Sprintf("capture_%s.trc", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	if err := export.Trace(w, frames, api.engine.SessionStart()); err != nil {
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Export failed: %v", err))
	}
}

// DownloadCSV streams the catalog-decoded frame log as CSV.
// GET /api/export/csv
func (api *ExportAPI) DownloadCSV(w http.ResponseWriter, r *http.Request) {
	frames := api.engine.Log()

	filename := fmt.Sprintf("decoded_%s.csv", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	if err := export.DecodedCSV(w, frames, api.catalog); err != nil {
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Export failed: %v", err))
	}
}
