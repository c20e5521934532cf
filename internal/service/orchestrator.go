package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jukasdrj/shelfscan/internal/model"
	"github.com/jukasdrj/shelfscan/internal/progress"
)

// Stage progress anchors. Enrichment sub-progress is mapped into the span
// between the enriching anchor and 0.7, so a fully enriched batch lands on
// 0.7 before the final 1.0.
const (
	progressAnalyzing = 0.1
	progressEnriching = 0.3
	enrichSpan        = 0.4
	progressComplete  = 1.0
)

// JobStore is the narrow contract the orchestrator needs from the job
// record store. The Mongo implementation lives in internal/database; tests
// use an in-memory one.
type JobStore interface {
	Create(ctx context.Context, record *model.JobRecord, ttl time.Duration) error
	Get(ctx context.Context, jobID string) (*model.JobRecord, error)
	// Merge applies a partial update and refreshes the TTL. Returns false
	// when the record is absent — a valid outcome callers tolerate silently.
	Merge(ctx context.Context, jobID string, update model.JobUpdate) (bool, error)
}

// SpineDetector locates book spines in an image
type SpineDetector interface {
	Detect(ctx context.Context, image []byte) ([]model.Detection, []model.Suggestion, error)
}

// BatchEnricher attaches bibliographic metadata to a batch of detections
type BatchEnricher interface {
	EnrichBatch(ctx context.Context, jobID string, detections []model.Detection, progress ProgressFunc, opts EnrichOptions) (BatchResult, error)
}

// OrchestratorConfig holds the orchestrator's tuning knobs
type OrchestratorConfig struct {
	JobTTL             time.Duration
	ReadyPollInterval  time.Duration
	ReadyTimeout       time.Duration
	MinConfidence      float64
	MaxImageBytes      int64
	MaxBatchPhotos     int
	MaxConcurrentScans int
}

// Orchestrator owns a scan job end to end: it creates the job record, waits
// for the client's readiness signal, runs detection and enrichment, streams
// progress into the job's channel, and finalizes the record. It is the only
// component with outbound calls to the detection and enrichment services;
// both are leaves that never call back.
type Orchestrator struct {
	store    JobStore
	hub      *progress.Hub
	detector SpineDetector
	enricher BatchEnricher
	cfg      OrchestratorConfig

	// sem bounds the number of scan pipelines running at once
	sem chan struct{}
}

// NewOrchestrator creates a scan orchestrator
func NewOrchestrator(store JobStore, hub *progress.Hub, detector SpineDetector, enricher BatchEnricher, cfg OrchestratorConfig) *Orchestrator {
	if cfg.MaxConcurrentScans <= 0 {
		cfg.MaxConcurrentScans = 32
	}
	return &Orchestrator{
		store:    store,
		hub:      hub,
		detector: detector,
		enricher: enricher,
		cfg:      cfg,
		sem:      make(chan struct{}, cfg.MaxConcurrentScans),
	}
}

// StartScan validates the image, creates the job record, and schedules the
// background pipeline. It returns before any processing begins; the pipeline
// will not emit progress until it observes the client's readiness signal or
// the readiness timeout elapses.
func (o *Orchestrator) StartScan(ctx context.Context, image []byte) (*model.JobRecord, error) {
	if len(image) == 0 {
		return nil, ErrEmptyImage
	}
	if int64(len(image)) > o.cfg.MaxImageBytes {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrImageTooLarge, len(image), o.cfg.MaxImageBytes)
	}

	record := o.newRecord()
	if err := o.store.Create(ctx, record, o.cfg.JobTTL); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	o.hub.GetOrCreate(record.JobID)

	slog.Info("Scan job created",
		"job_id", record.JobID,
		"image_bytes", len(image),
	)

	// The pipeline outlives the triggering request, so it runs on a
	// detached context.
	go o.runScan(record.JobID, image)

	return record, nil
}

// SignalReady marks the job's progress channel as ready. Idempotent: the
// second signal for the same job is a no-op. Returns model.ErrJobNotFound
// when the record has already expired.
func (o *Orchestrator) SignalReady(ctx context.Context, jobID string) error {
	record, err := o.store.Get(ctx, jobID)
	if err != nil {
		return err
	}

	if ch, ok := o.hub.Get(jobID); ok {
		ch.MarkReady()
	}

	if record.ChannelReady {
		return nil
	}

	now := time.Now().UTC()
	ready := true
	matched, err := o.store.Merge(ctx, jobID, model.JobUpdate{
		ChannelReady:   &ready,
		ChannelReadyAt: &now,
	})
	if err != nil {
		return err
	}
	if !matched {
		// Expired between the read and the write
		return model.ErrJobNotFound
	}

	slog.Info("Progress channel ready", "job_id", jobID)
	return nil
}

// Status returns the current job record
func (o *Orchestrator) Status(ctx context.Context, jobID string) (*model.JobRecord, error) {
	return o.store.Get(ctx, jobID)
}

// Cancel requests cooperative cancellation of a job. The running pipeline
// checks the record at coarse boundaries and stops before starting the next
// unit of work; anything already in flight finishes. Canceling a job that
// already reached a terminal stage is a no-op.
func (o *Orchestrator) Cancel(ctx context.Context, jobID string) error {
	record, err := o.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if record.Stage.Terminal() {
		return nil
	}

	canceled := model.StageCanceled
	if _, err := o.store.Merge(ctx, jobID, model.JobUpdate{Stage: &canceled}); err != nil {
		return err
	}

	slog.Info("Scan job canceled", "job_id", jobID, "previous_stage", record.Stage)
	return nil
}

// runScan is the background pipeline for a single-photo scan
func (o *Orchestrator) runScan(jobID string, image []byte) {
	ctx := context.Background()

	o.sem <- struct{}{}
	defer func() { <-o.sem }()

	ch := o.hub.GetOrCreate(jobID)

	o.waitForChannelReady(ctx, jobID)

	if !o.advanceStage(ctx, jobID, model.StageAnalyzing, model.JobUpdate{}) {
		o.abandon(ctx, jobID, ch)
		return
	}
	ch.Push(model.ProgressEvent{
		Progress:      progressAnalyzing,
		CurrentStatus: "Analyzing bookshelf photo",
	})

	detections, suggestions, err := o.detector.Detect(ctx, image)
	if err != nil {
		o.failJob(ctx, jobID, ch, "detection_failed", err)
		return
	}

	booksDetected := len(detections)
	if !o.advanceStage(ctx, jobID, model.StageEnriching, model.JobUpdate{BooksDetected: &booksDetected}) {
		o.abandon(ctx, jobID, ch)
		return
	}
	ch.Push(model.ProgressEvent{
		Progress:      progressEnriching,
		TotalItems:    booksDetected,
		CurrentStatus: fmt.Sprintf("Detected %d book spines", booksDetected),
		BooksFound:    booksDetected,
	})

	_, err = o.enricher.EnrichBatch(ctx, jobID, detections, func(event model.ProgressEvent) {
		event.Progress = progressEnriching + event.Progress*enrichSpan
		event.BooksFound = booksDetected
		ch.Push(event)
	}, EnrichOptions{MinConfidence: o.cfg.MinConfidence})
	if err != nil {
		o.failJob(ctx, jobID, ch, "enrichment_failed", err)
		return
	}

	result := &model.ScanResult{
		Books:           detections,
		Suggestions:     suggestions,
		PhotosProcessed: 1,
		CompletedAt:     time.Now().UTC(),
	}
	photos := 1
	if !o.advanceStage(ctx, jobID, model.StageComplete, model.JobUpdate{Result: result, PhotosProcessed: &photos}) {
		o.abandon(ctx, jobID, ch)
		return
	}

	ch.Push(model.ProgressEvent{
		Progress:       progressComplete,
		ProcessedItems: booksDetected,
		TotalItems:     booksDetected,
		CurrentStatus:  "Scan complete",
		BooksFound:     booksDetected,
	})
	ch.Close("Scan complete")
	o.hub.Remove(jobID)

	slog.Info("Scan job completed",
		"job_id", jobID,
		"books_detected", booksDetected,
	)
}

// waitForChannelReady polls the job record until the client signals
// readiness or the timeout elapses. Proceeding on timeout is deliberate:
// a misbehaving or old client must never stall the job — progress pushes
// degrade to no-ops and the client falls back to polling the record.
func (o *Orchestrator) waitForChannelReady(ctx context.Context, jobID string) {
	deadline := time.Now().Add(o.cfg.ReadyTimeout)
	ticker := time.NewTicker(o.cfg.ReadyPollInterval)
	defer ticker.Stop()

	for {
		record, err := o.store.Get(ctx, jobID)
		if err != nil {
			// Record already gone; nothing to wait for
			return
		}
		if record.ChannelReady {
			return
		}
		if time.Now().After(deadline) {
			slog.Warn("Readiness wait timed out, proceeding without a live listener",
				"job_id", jobID,
				"timeout", o.cfg.ReadyTimeout,
			)
			return
		}
		<-ticker.C
	}
}

// advanceStage merges a stage transition into the record. Returns false when
// the record is gone or already terminal (canceled under the pipeline).
func (o *Orchestrator) advanceStage(ctx context.Context, jobID string, stage model.Stage, update model.JobUpdate) bool {
	update.Stage = &stage
	matched, err := o.store.Merge(ctx, jobID, update)
	if err != nil {
		slog.Error("Failed to update job stage",
			"job_id", jobID,
			"stage", stage,
			"error", err.Error(),
		)
		return false
	}
	return matched
}

// abandon closes out a pipeline whose record was canceled or expired
// underneath it.
func (o *Orchestrator) abandon(ctx context.Context, jobID string, ch *progress.Channel) {
	record, err := o.store.Get(ctx, jobID)
	switch {
	case err != nil:
		ch.Close("Job expired")
	case record.Stage == model.StageCanceled:
		ch.Close("Scan canceled")
	default:
		ch.Close("Scan stopped")
	}
	o.hub.Remove(jobID)

	slog.Info("Scan pipeline abandoned", "job_id", jobID)
}

// failJob moves the record to the error stage, pushes a final error event
// best-effort, and closes the channel with the failure reason.
func (o *Orchestrator) failJob(ctx context.Context, jobID string, ch *progress.Channel, errType string, cause error) {
	slog.Error("Scan job failed",
		"job_id", jobID,
		"error_type", errType,
		"error", cause.Error(),
	)

	stage := model.StageError
	msg := cause.Error()
	if _, err := o.store.Merge(ctx, jobID, model.JobUpdate{
		Stage:     &stage,
		Error:     &msg,
		ErrorType: &errType,
	}); err != nil {
		slog.Error("Failed to record job failure", "job_id", jobID, "error", err.Error())
	}

	ch.Push(model.ProgressEvent{
		Progress:      progressComplete,
		CurrentStatus: "Scan failed",
		Error:         msg,
	})
	ch.Close("Scan failed: " + msg)
	o.hub.Remove(jobID)
}

// newRecord builds a fresh job record in the waiting stage
func (o *Orchestrator) newRecord() *model.JobRecord {
	now := time.Now().UTC()
	return &model.JobRecord{
		JobID:       uuid.New().String(),
		Stage:       model.StageWaitingForChannel,
		StartTime:   now,
		LastUpdated: now,
	}
}
