package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jukasdrj/shelfscan/internal/model"
)

// Photo is one image in a batch scan. Index preserves the order the client
// captured the photos in.
type Photo struct {
	Index int
	Data  []byte
}

// StartBatch validates the batch, creates the job record under the
// client-supplied job ID, and schedules the background coordinator. Photos
// are processed sequentially in index order, one detection→enrichment cycle
// each, with one progress event per completed photo.
func (o *Orchestrator) StartBatch(ctx context.Context, jobID string, photos []Photo) (*model.JobRecord, error) {
	if len(photos) == 0 {
		return nil, ErrNoPhotos
	}
	if len(photos) > o.cfg.MaxBatchPhotos {
		return nil, fmt.Errorf("%w: maximum %d photos per batch", ErrTooManyPhotos, o.cfg.MaxBatchPhotos)
	}

	seen := make(map[int]struct{}, len(photos))
	for _, photo := range photos {
		if len(photo.Data) == 0 {
			return nil, ErrMalformedPhoto
		}
		if int64(len(photo.Data)) > o.cfg.MaxImageBytes {
			return nil, fmt.Errorf("%w: photo %d is %d bytes (limit %d)", ErrImageTooLarge, photo.Index, len(photo.Data), o.cfg.MaxImageBytes)
		}
		if _, dup := seen[photo.Index]; dup {
			return nil, fmt.Errorf("%w: index %d", ErrDuplicatePhotoIndex, photo.Index)
		}
		seen[photo.Index] = struct{}{}
	}

	ordered := make([]Photo, len(photos))
	copy(ordered, photos)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	record := o.newRecord()
	record.JobID = jobID
	record.TotalPhotos = len(ordered)
	if err := o.store.Create(ctx, record, o.cfg.JobTTL); err != nil {
		return nil, fmt.Errorf("failed to create batch job: %w", err)
	}

	o.hub.GetOrCreate(jobID)

	slog.Info("Batch scan job created",
		"job_id", jobID,
		"total_photos", len(ordered),
	)

	go o.runBatch(jobID, ordered)

	return record, nil
}

// runBatch is the background coordinator for a multi-photo scan. Before each
// photo it re-reads the job record and stops if the job was canceled; the
// photo already in flight is allowed to finish.
func (o *Orchestrator) runBatch(jobID string, photos []Photo) {
	ctx := context.Background()

	o.sem <- struct{}{}
	defer func() { <-o.sem }()

	ch := o.hub.GetOrCreate(jobID)
	total := len(photos)

	o.waitForChannelReady(ctx, jobID)

	if !o.advanceStage(ctx, jobID, model.StageAnalyzing, model.JobUpdate{}) {
		o.abandon(ctx, jobID, ch)
		return
	}
	ch.Push(model.ProgressEvent{
		TotalItems:    total,
		CurrentStatus: fmt.Sprintf("Scanning %d photos", total),
	})

	// Non-nil so an empty batch result serializes as lists, not null
	books := []model.Detection{}
	suggestions := []model.Suggestion{}

	for done, photo := range photos {
		record, err := o.store.Get(ctx, jobID)
		if err != nil {
			ch.Close("Job expired")
			o.hub.Remove(jobID)
			return
		}
		if record.Stage == model.StageCanceled {
			ch.Push(model.ProgressEvent{
				Progress:       float64(done) / float64(total),
				ProcessedItems: done,
				TotalItems:     total,
				CurrentStatus:  fmt.Sprintf("Scan canceled after %d of %d photos", done, total),
				BooksFound:     len(books),
			})
			ch.Close("Scan canceled")
			o.hub.Remove(jobID)

			slog.Info("Batch scan canceled",
				"job_id", jobID,
				"photos_processed", done,
				"total_photos", total,
			)
			return
		}

		detections, photoSuggestions, err := o.detector.Detect(ctx, photo.Data)
		if err != nil {
			o.failJob(ctx, jobID, ch, "detection_failed", fmt.Errorf("photo %d: %w", photo.Index, err))
			return
		}

		if _, err := o.enricher.EnrichBatch(ctx, jobID, detections, nil, EnrichOptions{MinConfidence: o.cfg.MinConfidence}); err != nil {
			o.failJob(ctx, jobID, ch, "enrichment_failed", fmt.Errorf("photo %d: %w", photo.Index, err))
			return
		}

		books = append(books, detections...)
		suggestions = append(suggestions, photoSuggestions...)

		processed := done + 1
		booksFound := len(books)
		if matched, err := o.store.Merge(ctx, jobID, model.JobUpdate{
			PhotosProcessed: &processed,
			BooksDetected:   &booksFound,
		}); err != nil || !matched {
			o.abandon(ctx, jobID, ch)
			return
		}

		ch.Push(model.ProgressEvent{
			Progress:       float64(processed) / float64(total),
			ProcessedItems: processed,
			TotalItems:     total,
			CurrentStatus:  fmt.Sprintf("Processed photo %d of %d", processed, total),
			BooksFound:     booksFound,
		})
	}

	result := &model.ScanResult{
		Books:           books,
		Suggestions:     suggestions,
		PhotosProcessed: total,
		CompletedAt:     time.Now().UTC(),
	}
	booksFound := len(books)
	if !o.advanceStage(ctx, jobID, model.StageComplete, model.JobUpdate{Result: result, BooksDetected: &booksFound}) {
		o.abandon(ctx, jobID, ch)
		return
	}

	ch.Push(model.ProgressEvent{
		Progress:       progressComplete,
		ProcessedItems: total,
		TotalItems:     total,
		CurrentStatus:  "Scan complete",
		BooksFound:     booksFound,
	})
	ch.Close("Scan complete")
	o.hub.Remove(jobID)

	slog.Info("Batch scan completed",
		"job_id", jobID,
		"total_photos", total,
		"books_detected", booksFound,
	)
}
