package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jukasdrj/shelfscan/internal/model"
	"github.com/jukasdrj/shelfscan/internal/provider"
)

// ProgressFunc receives one progress event after every enriched item. It is
// supplied by the caller and opaque to the enricher — the enricher has no
// reference to the orchestrator or the progress channel, which keeps the
// service dependency graph a strict DAG.
type ProgressFunc func(event model.ProgressEvent)

// MetadataLookup resolves a (title, author) pair to a bibliographic edition
type MetadataLookup interface {
	Lookup(ctx context.Context, title, author string) (*provider.Edition, error)
}

// EnrichOptions tunes a single enrichment batch
type EnrichOptions struct {
	// MinConfidence is the floor below which a detection is marked skipped
	// without any provider call.
	MinConfidence float64
}

// BatchResult summarizes one enrichment batch
type BatchResult struct {
	ProcessedCount int
	TotalCount     int
	EnrichedCount  int
}

// Enricher attaches bibliographic metadata to detections
type Enricher struct {
	lookup MetadataLookup
}

// NewEnricher creates an enrichment service over the given lookup adapter
func NewEnricher(lookup MetadataLookup) *Enricher {
	return &Enricher{lookup: lookup}
}

// EnrichBatch processes detections strictly in order, mutating each one's
// Enrichment in place. Per-item lookup failures are recorded on the item and
// iteration continues; only a whole-batch failure (context cancellation)
// aborts, reporting the error through the callback once before returning it.
func (e *Enricher) EnrichBatch(ctx context.Context, jobID string, detections []model.Detection, progress ProgressFunc, opts EnrichOptions) (BatchResult, error) {
	result := BatchResult{TotalCount: len(detections)}

	if len(detections) == 0 {
		return result, nil
	}

	slog.Info("Starting enrichment batch",
		"job_id", jobID,
		"total_items", result.TotalCount,
		"min_confidence", opts.MinConfidence,
	)

	start := time.Now()

	for i := range detections {
		if err := ctx.Err(); err != nil {
			batchErr := fmt.Errorf("enrichment batch aborted after %d of %d items: %w", result.ProcessedCount, result.TotalCount, err)
			if progress != nil {
				progress(model.ProgressEvent{
					Progress:       float64(result.ProcessedCount) / float64(result.TotalCount),
					ProcessedItems: result.ProcessedCount,
					TotalItems:     result.TotalCount,
					CurrentStatus:  "Enrichment aborted",
					Error:          batchErr.Error(),
				})
			}
			return result, batchErr
		}

		det := &detections[i]
		e.enrichOne(ctx, jobID, det, opts)
		if det.Enrichment.Status == model.EnrichmentSuccess {
			result.EnrichedCount++
		}
		result.ProcessedCount++

		if progress != nil {
			progress(model.ProgressEvent{
				Progress:       float64(result.ProcessedCount) / float64(result.TotalCount),
				ProcessedItems: result.ProcessedCount,
				TotalItems:     result.TotalCount,
				CurrentStatus:  enrichStatusLine(det, result.ProcessedCount, result.TotalCount),
			})
		}
	}

	slog.Info("Enrichment batch completed",
		"job_id", jobID,
		"processed", result.ProcessedCount,
		"enriched", result.EnrichedCount,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return result, nil
}

// enrichOne resolves a single detection. Detections below the confidence
// threshold, and unreadable spines, are skipped without a provider call.
func (e *Enricher) enrichOne(ctx context.Context, jobID string, det *model.Detection, opts EnrichOptions) {
	if !det.Readable() || det.Confidence < opts.MinConfidence {
		det.Enrichment = &model.Enrichment{Status: model.EnrichmentSkipped}
		return
	}

	author := ""
	if det.Author != nil {
		author = *det.Author
	}

	edition, err := e.lookup.Lookup(ctx, *det.Title, author)
	if err != nil {
		if errors.Is(err, provider.ErrNotFound) {
			det.Enrichment = &model.Enrichment{Status: model.EnrichmentNotFound}
			return
		}

		slog.Warn("Enrichment lookup failed for item",
			"job_id", jobID,
			"title", *det.Title,
			"error", err.Error(),
		)
		det.Enrichment = &model.Enrichment{
			Status: model.EnrichmentError,
			Error:  err.Error(),
		}
		return
	}

	det.Enrichment = &model.Enrichment{
		Status:    model.EnrichmentSuccess,
		ISBN:      edition.ISBN,
		CoverURL:  edition.CoverURL,
		Publisher: edition.Publisher,
		PageCount: edition.PageCount,
		Subjects:  edition.Subjects,
		Provider:  edition.Provider,
	}
}

func enrichStatusLine(det *model.Detection, processed, total int) string {
	if det.Readable() {
		return fmt.Sprintf("Enriched %q (%d/%d)", *det.Title, processed, total)
	}
	return fmt.Sprintf("Skipped unreadable spine (%d/%d)", processed, total)
}
