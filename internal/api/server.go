package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"cantrace/internal/catalog"
	"cantrace/internal/database/influxdb"
	"cantrace/internal/engine"
	"cantrace/internal/stats"
)

// Server represents the HTTP API server
type Server struct {
	server   *http.Server
	frames   *FrameAPI
	exports  *ExportAPI
	statsAPI *StatsAPI
	signals  *SignalAPI
	live     *LiveHub
	logger   *slog.Logger
}

// ServerConfig holds API server configuration
type ServerConfig struct {
	Port int
}

// NewServer creates a new API server over a live capture engine. influx
// may be nil; the signal-history endpoint then reports unavailable.
func NewServer(config ServerConfig, eng *engine.Engine, cat *catalog.Catalog, collector *stats.Collector, influx *influxdb.Writer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	server := &Server{
		frames:   NewFrameAPI(eng, cat),
		exports:  NewExportAPI(eng, cat),
		statsAPI: NewStatsAPI(collector),
		signals:  NewSignalAPI(influx),
		live:     NewLiveHub(cat, logger),
		logger:   logger,
	}

	// Setup HTTP router
	mux := http.NewServeMux()
	server.setupRoutes(mux)

	// Create HTTP server
	server.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Port),
		Handler:      loggingMiddleware(logger, corsMiddleware(mux)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server
}

// LiveSink returns the websocket hub so the engine can feed it flushed
// batches.
func (s *Server) LiveSink() *LiveHub {
	return s.live
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes(mux *http.ServeMux) {
	// Root endpoint
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)

	// Frame endpoints
	mux.HandleFunc("/api/frames/latest", s.frames.GetLatest)
	mux.HandleFunc("/api/frames/log", s.frames.GetLog)
	mux.HandleFunc("/api/catalog/messages", s.frames.GetCatalogMessages)

	// Export downloads
	mux.HandleFunc("/api/export/trace", s.exports.DownloadTrace)
	mux.HandleFunc("/api/export/csv", s.exports.DownloadCSV)

	// Session statistics and decoded signal history
	mux.HandleFunc("/api/stats/session", s.statsAPI.GetSessionStats)
	mux.HandleFunc("/api/signals/history", s.signals.GetHistory)

	// Live stream
	mux.HandleFunc("/api/live", s.live.ServeWS)
}

// handleRoot returns API information
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	info := map[string]any{
		"name":    "CAN Capture API Server",
		"version": "1.0.0",
		"endpoints": map[string]any{
			"health": "/health",
			"frames": map[string]string{
				"latest":  "/api/frames/latest",
				"log":     "/api/frames/log?can_id=0x123&limit=100&offset=0",
				"catalog": "/api/catalog/messages",
			},
			"export": map[string]string{
				"trace": "/api/export/trace?can_id=0x123 - Downloads trace file",
				"csv":   "/api/export/csv - Downloads decoded CSV",
			},
			"stats":   "/api/stats/session",
			"signals": "/api/signals/history?signal=State_of_Charger_SOC&start_time=2024-01-01T00:00:00Z&limit=100",
			"live":    "/api/live (websocket)",
		},
	}

	respondWithJSON(w, http.StatusOK, info)
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{
		"status":    "healthy",
		"timestamp": time.Now(),
		"session": map[string]any{
			"state":  s.frames.engine.State().String(),
			"frames": s.frames.engine.TotalFrames(),
		},
	}

	respondWithJSON(w, http.StatusOK, health)
}

// Start starts the API server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP API server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Stop gracefully stops the API server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping API server")
	s.live.CloseAll()
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug("request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
			"duration", time.Since(start),
		)
	})
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		// Handle preflight requests
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
