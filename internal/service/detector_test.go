package service

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jukasdrj/shelfscan/internal/model"
)

func newTestDetector(t *testing.T, handler http.HandlerFunc) *Detector {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewDetector(server.Client(), DetectorConfig{
		APIURL:        server.URL,
		Timeout:       5 * time.Second,
		MaxImageBytes: 1024,
		LowConfidence: 0.5,
	})
}

func TestDetectRejectsEmptyImage(t *testing.T) {
	detector := newTestDetector(t, func(w http.ResponseWriter, r *http.Request) {})

	_, _, err := detector.Detect(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyImage)
}

func TestDetectRejectsOversizedImage(t *testing.T) {
	detector := newTestDetector(t, func(w http.ResponseWriter, r *http.Request) {})

	_, _, err := detector.Detect(context.Background(), make([]byte, 2048))
	assert.ErrorIs(t, err, ErrImageTooLarge)
}

func TestDetectNormalizesResponse(t *testing.T) {
	detector := newTestDetector(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/octet-stream", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Equal(t, []byte{0xAA, 0xBB}, body)

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"detections": [
				{"title": "Dune", "author": "Frank Herbert", "confidence": 0.92,
				 "bounding_box": {"x1": 0.1, "y1": 0.2, "x2": 0.3, "y2": 0.9}},
				{"title": "", "author": "", "confidence": 0.41,
				 "bounding_box": {"x1": 0.4, "y1": 0.2, "x2": 0.5, "y2": 0.9}}
			],
			"quality_issues": []
		}`)
	})

	detections, suggestions, err := detector.Detect(context.Background(), []byte{0xAA, 0xBB})
	require.NoError(t, err)
	require.Len(t, detections, 2)

	require.NotNil(t, detections[0].Title)
	assert.Equal(t, "Dune", *detections[0].Title)
	require.NotNil(t, detections[0].Author)
	assert.Equal(t, "Frank Herbert", *detections[0].Author)
	assert.Equal(t, 0.92, detections[0].Confidence)
	assert.Equal(t, model.BoundingBox{X1: 0.1, Y1: 0.2, X2: 0.3, Y2: 0.9}, detections[0].BoundingBox)

	// Unreadable spine is kept, with nil text and zeroed confidence
	assert.Nil(t, detections[1].Title)
	assert.Nil(t, detections[1].Author)
	assert.Equal(t, 0.0, detections[1].Confidence)

	// One of two unreadable does not trip the low-readability suggestion
	assert.Empty(t, suggestions)
}

func TestDetectPassesThroughKnownQualityIssues(t *testing.T) {
	detector := newTestDetector(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{
			"detections": [{"title": "Dune", "confidence": 0.9, "bounding_box": {}}],
			"quality_issues": [
				{"code": "blur", "message": "Image is blurry"},
				{"code": "glare", "message": ""},
				{"code": "alien_issue", "message": "ignored"}
			]
		}`)
	})

	_, suggestions, err := detector.Detect(context.Background(), []byte{0x01})
	require.NoError(t, err)
	require.Len(t, suggestions, 2)

	assert.Equal(t, "blur", suggestions[0].Code)
	assert.Equal(t, "Image is blurry", suggestions[0].Message)

	// Missing message gets a generated one; unknown codes are dropped
	assert.Equal(t, "glare", suggestions[1].Code)
	assert.NotEmpty(t, suggestions[1].Message)
}

func TestDetectAddsLowReadabilitySuggestion(t *testing.T) {
	detector := newTestDetector(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{
			"detections": [
				{"title": "", "confidence": 0.0, "bounding_box": {}},
				{"title": "", "confidence": 0.0, "bounding_box": {}},
				{"title": "Dune", "confidence": 0.9, "bounding_box": {}}
			],
			"quality_issues": []
		}`)
	})

	_, suggestions, err := detector.Detect(context.Background(), []byte{0x01})
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
	assert.Equal(t, "low_readability", suggestions[0].Code)
}

func TestDetectCountsLowConfidenceAsUnreadable(t *testing.T) {
	detector := newTestDetector(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{
			"detections": [
				{"title": "Maybe Dune", "confidence": 0.2, "bounding_box": {}}
			],
			"quality_issues": []
		}`)
	})

	detections, suggestions, err := detector.Detect(context.Background(), []byte{0x01})
	require.NoError(t, err)

	// Readable text is kept even at low confidence
	require.NotNil(t, detections[0].Title)
	assert.Equal(t, 0.2, detections[0].Confidence)

	require.Len(t, suggestions, 1)
	assert.Equal(t, "low_readability", suggestions[0].Code)
}

func TestDetectSurfacesNonOKStatus(t *testing.T) {
	detector := newTestDetector(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, _, err := detector.Detect(context.Background(), []byte{0x01})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestDetectSurfacesMalformedResponse(t *testing.T) {
	detector := newTestDetector(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `not json`)
	})

	_, _, err := detector.Detect(context.Background(), []byte{0x01})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse")
}
