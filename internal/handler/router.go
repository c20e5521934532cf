package handler

import (
	"net/http"

	"github.com/jukasdrj/shelfscan/pkg/middleware"
)

// Router handles HTTP routing
type Router struct {
	scanHandler     *ScanHandler
	progressHandler *ProgressHandler
	healthHandler   *HealthHandler
	corsConfig      middleware.CORSConfig
}

// NewRouter creates a new router
func NewRouter(
	scanHandler *ScanHandler,
	progressHandler *ProgressHandler,
	healthHandler *HealthHandler,
	corsConfig middleware.CORSConfig,
) *Router {
	return &Router{
		scanHandler:     scanHandler,
		progressHandler: progressHandler,
		healthHandler:   healthHandler,
		corsConfig:      corsConfig,
	}
}

// Handler returns the configured HTTP handler with middleware
func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health endpoints (no middleware)
	mux.HandleFunc("/health", rt.healthHandler.Health)
	mux.HandleFunc("/ready", rt.healthHandler.Ready)

	// Scan endpoints
	mux.HandleFunc("/scan", rt.handleScan)
	mux.HandleFunc("/scan/batch", rt.handleBatch)
	mux.HandleFunc("/scan/cancel", rt.handleCancel)
	mux.HandleFunc("/scan/ready/", rt.handleReady)
	mux.HandleFunc("/scan/status/", rt.handleStatus)
	mux.HandleFunc("/scan/progress/", rt.handleProgress)

	// Apply middleware (CORS first to handle preflight requests)
	handler := middleware.CORS(rt.corsConfig)(mux)
	handler = middleware.Recovery(handler)
	handler = middleware.Logging(handler)
	handler = middleware.CorrelationID(handler)

	return handler
}

func (rt *Router) handleScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	rt.scanHandler.Scan(w, r)
}

func (rt *Router) handleBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	rt.scanHandler.Batch(w, r)
}

func (rt *Router) handleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	rt.scanHandler.Cancel(w, r)
}

func (rt *Router) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	rt.scanHandler.Ready(w, r)
}

func (rt *Router) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	rt.scanHandler.Status(w, r)
}

func (rt *Router) handleProgress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	rt.progressHandler.Stream(w, r)
}
