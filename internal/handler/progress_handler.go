package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jukasdrj/shelfscan/internal/model"
	"github.com/jukasdrj/shelfscan/internal/progress"
	"github.com/jukasdrj/shelfscan/internal/service"
)

// ProgressHandler streams progress events for one job over Server-Sent
// Events. Delivery is best-effort: a listener that connects late has missed
// earlier events for good and polls the status endpoint instead.
type ProgressHandler struct {
	orchestrator *service.Orchestrator
	hub          *progress.Hub
}

// NewProgressHandler creates a progress stream handler
func NewProgressHandler(orchestrator *service.Orchestrator, hub *progress.Hub) *ProgressHandler {
	return &ProgressHandler{
		orchestrator: orchestrator,
		hub:          hub,
	}
}

// Stream handles GET /scan/progress/{jobId}
func (h *ProgressHandler) Stream(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimPrefix(r.URL.Path, "/scan/progress/")
	if !validJobID(jobID) {
		writeError(w, http.StatusBadRequest, "Malformed job ID")
		return
	}

	record, err := h.orchestrator.Status(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, model.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "Job not found or expired")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if record.Stage.Terminal() {
		writeError(w, http.StatusNotFound, "Job already finished; poll the status endpoint for the result")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming is not supported")
		return
	}

	// The pipeline creates the channel before the client ever learns the
	// jobID, so an absent channel means the job finished after the status
	// read above. Creating a fresh one here would strand the listener.
	ch, ok := h.hub.Get(jobID)
	if !ok {
		writeError(w, http.StatusNotFound, "Job already finished; poll the status endpoint for the result")
		return
	}
	conn, err := ch.Attach()
	if err != nil {
		writeError(w, http.StatusNotFound, "Progress channel already closed")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	slog.Debug("Progress listener attached", "job_id", jobID)

	for {
		select {
		case event, open := <-conn.Events():
			if !open {
				// Channel closed: the final event (with the close reason)
				// has already been delivered.
				return
			}
			if err := writeSSE(w, event); err != nil {
				ch.Detach(conn)
				return
			}
			flusher.Flush()

		case <-r.Context().Done():
			ch.Detach(conn)
			slog.Debug("Progress listener disconnected", "job_id", jobID)
			return
		}
	}
}

func writeSSE(w http.ResponseWriter, event model.ProgressEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	return err
}
