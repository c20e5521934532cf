package handler

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jukasdrj/shelfscan/internal/model"
	"github.com/jukasdrj/shelfscan/internal/service"
)

// ScanHandler handles the scan job endpoints
type ScanHandler struct {
	orchestrator  *service.Orchestrator
	maxImageBytes int64
	estimateMin   int
	estimateMax   int
}

// NewScanHandler creates a scan handler
func NewScanHandler(orchestrator *service.Orchestrator, maxImageBytes int64, estimateMin, estimateMax int) *ScanHandler {
	return &ScanHandler{
		orchestrator:  orchestrator,
		maxImageBytes: maxImageBytes,
		estimateMin:   estimateMin,
		estimateMax:   estimateMax,
	}
}

// ScanResponse is the body of a successful scan submission
type ScanResponse struct {
	JobID          string   `json:"jobId"`
	Stages         []string `json:"stages"`
	EstimatedRange [2]int   `json:"estimatedRange"`
}

// StatusResponse is the body of a status poll
type StatusResponse struct {
	Stage         model.Stage       `json:"stage"`
	ElapsedTime   float64           `json:"elapsedTime"`
	BooksDetected int               `json:"booksDetected"`
	Result        *model.ScanResult `json:"result,omitempty"`
	Error         string            `json:"error,omitempty"`
}

// BatchImage is one entry of a batch scan request. Index is a pointer so a
// missing index can be told apart from index 0.
type BatchImage struct {
	Index *int   `json:"index"`
	Data  string `json:"data"`
}

// BatchRequest is the body of a batch scan submission
type BatchRequest struct {
	JobID  string       `json:"jobId"`
	Images []BatchImage `json:"images"`
}

// BatchResponse is the body of an accepted batch submission
type BatchResponse struct {
	JobID       string `json:"jobId"`
	TotalPhotos int    `json:"totalPhotos"`
	Status      string `json:"status"`
}

// CancelRequest is the body of a cancel request
type CancelRequest struct {
	JobID string `json:"jobId"`
}

// Scan handles POST /scan: raw image bytes in, 202 with a job ID out.
// Background processing does not start emitting progress until the client
// attaches to the progress stream and signals readiness.
func (h *ScanHandler) Scan(w http.ResponseWriter, r *http.Request) {
	// Read one byte past the limit so oversized input is detected without
	// buffering an unbounded body.
	image, err := io.ReadAll(io.LimitReader(r.Body, h.maxImageBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read image body")
		return
	}
	if int64(len(image)) > h.maxImageBytes {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Image exceeds maximum size of %d bytes", h.maxImageBytes))
		return
	}

	record, err := h.orchestrator.StartScan(r.Context(), image)
	if err != nil {
		h.writeScanError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, ScanResponse{
		JobID: record.JobID,
		Stages: []string{
			string(model.StageWaitingForChannel),
			string(model.StageAnalyzing),
			string(model.StageEnriching),
			string(model.StageComplete),
		},
		EstimatedRange: [2]int{h.estimateMin, h.estimateMax},
	})
}

// Ready handles POST /scan/ready/{jobId}. Idempotent: signaling readiness
// twice is a no-op the second time.
func (h *ScanHandler) Ready(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimPrefix(r.URL.Path, "/scan/ready/")
	if !validJobID(jobID) {
		writeError(w, http.StatusBadRequest, "Malformed job ID")
		return
	}

	if err := h.orchestrator.SignalReady(r.Context(), jobID); err != nil {
		if errors.Is(err, model.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "Job not found or expired")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Status handles GET /scan/status/{jobId}
func (h *ScanHandler) Status(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimPrefix(r.URL.Path, "/scan/status/")
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

	writeJSON(w, http.StatusOK, StatusResponse{
		Stage:         record.Stage,
		ElapsedTime:   record.Elapsed().Seconds(),
		BooksDetected: record.BooksDetected,
		Result:        record.Result,
		Error:         record.Error,
	})
}

// Batch handles POST /scan/batch
func (h *ScanHandler) Batch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.JobID == "" {
		writeError(w, http.StatusBadRequest, "jobId is required")
		return
	}
	if !validJobID(req.JobID) {
		writeError(w, http.StatusBadRequest, "Malformed job ID")
		return
	}
	if len(req.Images) == 0 {
		writeError(w, http.StatusBadRequest, "images is required and must not be empty")
		return
	}

	photos := make([]service.Photo, 0, len(req.Images))
	for _, image := range req.Images {
		if image.Index == nil || image.Data == "" {
			writeError(w, http.StatusBadRequest, "Each image must include both index and data")
			return
		}
		data, err := base64.StdEncoding.DecodeString(image.Data)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Image %d is not valid base64", *image.Index))
			return
		}
		photos = append(photos, service.Photo{Index: *image.Index, Data: data})
	}

	record, err := h.orchestrator.StartBatch(r.Context(), req.JobID, photos)
	if err != nil {
		h.writeScanError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, BatchResponse{
		JobID:       record.JobID,
		TotalPhotos: record.TotalPhotos,
		Status:      "accepted",
	})
}

// Cancel handles POST /scan/cancel
func (h *ScanHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.JobID == "" {
		writeError(w, http.StatusBadRequest, "jobId is required")
		return
	}

	if err := h.orchestrator.Cancel(r.Context(), req.JobID); err != nil {
		if errors.Is(err, model.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "Job not found or expired")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"jobId":  req.JobID,
		"status": string(model.StageCanceled),
	})
}

// writeScanError maps service validation errors to client responses
func (h *ScanHandler) writeScanError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrEmptyImage),
		errors.Is(err, service.ErrImageTooLarge),
		errors.Is(err, service.ErrNoPhotos),
		errors.Is(err, service.ErrTooManyPhotos),
		errors.Is(err, service.ErrMalformedPhoto),
		errors.Is(err, service.ErrDuplicatePhotoIndex):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
