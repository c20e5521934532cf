package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jukasdrj/shelfscan/internal/model"
)

// Detector calls the external vision inference API to locate book spines in
// an image. The inference model itself is an opaque collaborator; this
// service bounds the input, bounds the call, and normalizes the response.
type Detector struct {
	httpClient    *http.Client
	apiURL        string
	timeout       time.Duration
	maxImageBytes int64
	// lowConfidence is the readability floor used for the local
	// low-readability suggestion; mirrors the enrichment threshold.
	lowConfidence float64
}

// DetectorConfig holds detection service configuration
type DetectorConfig struct {
	APIURL        string
	Timeout       time.Duration
	MaxImageBytes int64
	LowConfidence float64
}

// NewDetector creates a detection service
func NewDetector(httpClient *http.Client, cfg DetectorConfig) *Detector {
	return &Detector{
		httpClient:    httpClient,
		apiURL:        cfg.APIURL,
		timeout:       cfg.Timeout,
		maxImageBytes: cfg.MaxImageBytes,
		lowConfidence: cfg.LowConfidence,
	}
}

// detectionResponse is the wire shape of the inference API response
type detectionResponse struct {
	Detections []struct {
		Title       string  `json:"title"`
		Author      string  `json:"author"`
		Confidence  float64 `json:"confidence"`
		BoundingBox struct {
			X1 float64 `json:"x1"`
			Y1 float64 `json:"y1"`
			X2 float64 `json:"x2"`
			Y2 float64 `json:"y2"`
		} `json:"bounding_box"`
	} `json:"detections"`
	QualityIssues []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"quality_issues"`
}

// Detect locates book spines in the image. Oversized input is rejected,
// never truncated. The inference call carries its own timeout; hitting it
// is a failure, not a hang. A spine whose text could not be read comes back
// as a detection with nil title/author and confidence 0.0.
func (d *Detector) Detect(ctx context.Context, image []byte) ([]model.Detection, []model.Suggestion, error) {
	if len(image) == 0 {
		return nil, nil, ErrEmptyImage
	}
	if int64(len(image)) > d.maxImageBytes {
		return nil, nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrImageTooLarge, len(image), d.maxImageBytes)
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, d.apiURL, bytes.NewReader(image))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create detection request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("detection request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("detection API returned status %d", resp.StatusCode)
	}

	// Limit response reads to 4MB
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read detection response: %w", err)
	}

	var wire detectionResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, nil, fmt.Errorf("failed to parse detection response: %w", err)
	}

	detections := make([]model.Detection, 0, len(wire.Detections))
	unreadable := 0
	for _, raw := range wire.Detections {
		det := model.Detection{
			Confidence: raw.Confidence,
			BoundingBox: model.BoundingBox{
				X1: raw.BoundingBox.X1,
				Y1: raw.BoundingBox.Y1,
				X2: raw.BoundingBox.X2,
				Y2: raw.BoundingBox.Y2,
			},
		}

		if raw.Title == "" {
			// Spine located but text unreadable: keep it, unresolved
			det.Confidence = 0.0
			unreadable++
		} else {
			title := raw.Title
			det.Title = &title
			if raw.Author != "" {
				author := raw.Author
				det.Author = &author
			}
			if raw.Confidence < d.lowConfidence {
				unreadable++
			}
		}

		detections = append(detections, det)
	}

	suggestions := d.buildSuggestions(wire, detections, unreadable)

	slog.Info("Detection completed",
		"detections", len(detections),
		"unreadable", unreadable,
		"suggestions", len(suggestions),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return detections, suggestions, nil
}

// knownQualityIssues are the quality problems the inference API may flag
var knownQualityIssues = map[string]struct{}{
	"blur":             {},
	"glare":            {},
	"distance":         {},
	"multiple_shelves": {},
	"lighting":         {},
	"angle":            {},
	"edge_cutoff":      {},
}

// buildSuggestions passes through the quality issues the inference API
// flagged and adds a local low-readability suggestion when most spines
// could not be resolved. A clean scan yields an empty list.
func (d *Detector) buildSuggestions(wire detectionResponse, detections []model.Detection, unreadable int) []model.Suggestion {
	suggestions := make([]model.Suggestion, 0, len(wire.QualityIssues)+1)

	for _, issue := range wire.QualityIssues {
		if _, known := knownQualityIssues[issue.Code]; !known {
			slog.Debug("Ignoring unknown quality issue", "code", issue.Code)
			continue
		}
		message := issue.Message
		if message == "" {
			message = fmt.Sprintf("Image quality issue detected: %s", issue.Code)
		}
		suggestions = append(suggestions, model.Suggestion{
			Code:    issue.Code,
			Message: message,
		})
	}

	if len(detections) > 0 && unreadable*2 > len(detections) {
		suggestions = append(suggestions, model.Suggestion{
			Code:    "low_readability",
			Message: "Most spine text could not be read. Try moving closer and holding the camera parallel to the shelf.",
		})
	}

	return suggestions
}
