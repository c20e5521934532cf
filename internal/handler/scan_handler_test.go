package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jukasdrj/shelfscan/internal/model"
	"github.com/jukasdrj/shelfscan/internal/progress"
	"github.com/jukasdrj/shelfscan/internal/service"
)

// stubStore is a minimal in-memory job store for handler tests
type stubStore struct {
	mu      sync.Mutex
	records map[string]*model.JobRecord
}

func newStubStore() *stubStore {
	return &stubStore{records: make(map[string]*model.JobRecord)}
}

func (s *stubStore) Create(ctx context.Context, record *model.JobRecord, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *record
	s.records[record.JobID] = &clone
	return nil
}

func (s *stubStore) Get(ctx context.Context, jobID string) (*model.JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[jobID]
	if !ok {
		return nil, model.ErrJobNotFound
	}
	clone := *record
	return &clone, nil
}

func (s *stubStore) Merge(ctx context.Context, jobID string, update model.JobUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[jobID]
	if !ok {
		return false, nil
	}
	if update.Stage != nil {
		if record.Stage.Terminal() {
			return false, nil
		}
		record.Stage = *update.Stage
	}
	if update.ChannelReady != nil {
		record.ChannelReady = *update.ChannelReady
	}
	if update.BooksDetected != nil {
		record.BooksDetected = *update.BooksDetected
	}
	if update.PhotosProcessed != nil {
		record.PhotosProcessed = *update.PhotosProcessed
	}
	if update.Result != nil {
		record.Result = update.Result
	}
	if update.Error != nil {
		record.Error = *update.Error
	}
	record.LastUpdated = time.Now().UTC()
	return true, nil
}

type noopDetector struct{}

func (noopDetector) Detect(ctx context.Context, image []byte) ([]model.Detection, []model.Suggestion, error) {
	return nil, nil, nil
}

type noopEnricher struct{}

func (noopEnricher) EnrichBatch(ctx context.Context, jobID string, detections []model.Detection, progress service.ProgressFunc, opts service.EnrichOptions) (service.BatchResult, error) {
	return service.BatchResult{}, nil
}

func newTestScanHandler(t *testing.T) (*ScanHandler, *stubStore) {
	t.Helper()

	store := newStubStore()
	orchestrator := service.NewOrchestrator(store, progress.NewHub(), noopDetector{}, noopEnricher{}, service.OrchestratorConfig{
		JobTTL:             time.Minute,
		ReadyPollInterval:  time.Millisecond,
		ReadyTimeout:       10 * time.Millisecond,
		MaxImageBytes:      1024,
		MaxBatchPhotos:     5,
		MaxConcurrentScans: 4,
	})
	return NewScanHandler(orchestrator, 1024, 5, 30), store
}

func seedRecord(t *testing.T, store *stubStore, jobID string, stage model.Stage) {
	t.Helper()

	now := time.Now().UTC()
	err := store.Create(context.Background(), &model.JobRecord{
		JobID:       jobID,
		Stage:       stage,
		StartTime:   now,
		LastUpdated: now,
	}, time.Minute)
	require.NoError(t, err)
}

func TestScanAcceptsImage(t *testing.T) {
	h, _ := newTestScanHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/scan", bytes.NewReader([]byte{0xFF, 0xD8, 0xFF}))
	rec := httptest.NewRecorder()
	h.Scan(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp ScanResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotEmpty(t, resp.JobID)
	assert.Equal(t, [2]int{5, 30}, resp.EstimatedRange)
	assert.Contains(t, resp.Stages, string(model.StageWaitingForChannel))
	assert.Contains(t, resp.Stages, string(model.StageComplete))
}

func TestScanRejectsEmptyBody(t *testing.T) {
	h, _ := newTestScanHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/scan", bytes.NewReader(nil))
	rec := httptest.NewRecorder()
	h.Scan(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScanRejectsOversizedBody(t *testing.T) {
	h, _ := newTestScanHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/scan", bytes.NewReader(make([]byte, 2048)))
	rec := httptest.NewRecorder()
	h.Scan(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "maximum size")
}

func TestReadySignalsChannel(t *testing.T) {
	h, store := newTestScanHandler(t)
	seedRecord(t, store, "job-ready", model.StageWaitingForChannel)

	req := httptest.NewRequest(http.MethodPost, "/scan/ready/job-ready", nil)
	rec := httptest.NewRecorder()
	h.Ready(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)

	record, err := store.Get(context.Background(), "job-ready")
	require.NoError(t, err)
	assert.True(t, record.ChannelReady)
}

func TestReadyUnknownJob(t *testing.T) {
	h, _ := newTestScanHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/scan/ready/expired-job", nil)
	rec := httptest.NewRecorder()
	h.Ready(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReadyMalformedJobID(t *testing.T) {
	h, _ := newTestScanHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/scan/ready/bad%20id!", nil)
	rec := httptest.NewRecorder()
	h.Ready(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusReturnsRecord(t *testing.T) {
	h, store := newTestScanHandler(t)
	seedRecord(t, store, "job-status", model.StageEnriching)

	booksDetected := 7
	_, err := store.Merge(context.Background(), "job-status", model.JobUpdate{BooksDetected: &booksDetected})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/scan/status/job-status", nil)
	rec := httptest.NewRecorder()
	h.Status(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, model.StageEnriching, resp.Stage)
	assert.Equal(t, 7, resp.BooksDetected)
	assert.GreaterOrEqual(t, resp.ElapsedTime, 0.0)
}

func TestStatusUnknownJob(t *testing.T) {
	h, _ := newTestScanHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/scan/status/missing-job", nil)
	rec := httptest.NewRecorder()
	h.Status(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func batchBody(t *testing.T, jobID string, count int) *bytes.Reader {
	t.Helper()

	images := make([]BatchImage, count)
	for i := range images {
		index := i
		images[i] = BatchImage{
			Index: &index,
			Data:  base64.StdEncoding.EncodeToString([]byte{byte(i)}),
		}
	}
	payload, err := json.Marshal(BatchRequest{JobID: jobID, Images: images})
	require.NoError(t, err)
	return bytes.NewReader(payload)
}

func TestBatchAcceptsPhotos(t *testing.T) {
	h, _ := newTestScanHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/scan/batch", batchBody(t, "batch-job", 3))
	rec := httptest.NewRecorder()
	h.Batch(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp BatchResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "batch-job", resp.JobID)
	assert.Equal(t, 3, resp.TotalPhotos)
	assert.Equal(t, "accepted", resp.Status)
}

func TestBatchAcceptsExactlyMaxPhotos(t *testing.T) {
	h, _ := newTestScanHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/scan/batch", batchBody(t, "batch-job", 5))
	rec := httptest.NewRecorder()
	h.Batch(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp BatchResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 5, resp.TotalPhotos)
}

func TestBatchRejectsOverCap(t *testing.T) {
	h, _ := newTestScanHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/scan/batch", batchBody(t, "batch-job", 6))
	rec := httptest.NewRecorder()
	h.Batch(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "maximum 5 photos")
}

func TestBatchRequiresJobID(t *testing.T) {
	h, _ := newTestScanHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/scan/batch", batchBody(t, "", 1))
	rec := httptest.NewRecorder()
	h.Batch(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "jobId is required")
}

func TestBatchRequiresImages(t *testing.T) {
	h, _ := newTestScanHandler(t)

	payload, err := json.Marshal(BatchRequest{JobID: "batch-job"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/scan/batch", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	h.Batch(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBatchRejectsImageWithoutIndex(t *testing.T) {
	h, _ := newTestScanHandler(t)

	body := `{"jobId": "batch-job", "images": [{"data": "AQ=="}]}`
	req := httptest.NewRequest(http.MethodPost, "/scan/batch", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Batch(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "index and data")
}

func TestBatchRejectsInvalidBase64(t *testing.T) {
	h, _ := newTestScanHandler(t)

	body := `{"jobId": "batch-job", "images": [{"index": 0, "data": "not base64!!"}]}`
	req := httptest.NewRequest(http.MethodPost, "/scan/batch", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Batch(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "base64")
}

func TestBatchRejectsDuplicateIndexes(t *testing.T) {
	h, _ := newTestScanHandler(t)

	body := `{"jobId": "batch-job", "images": [{"index": 1, "data": "AQ=="}, {"index": 1, "data": "Ag=="}]}`
	req := httptest.NewRequest(http.MethodPost, "/scan/batch", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Batch(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "duplicate")
}

func TestCancelRunningJob(t *testing.T) {
	h, store := newTestScanHandler(t)
	seedRecord(t, store, "job-cancel", model.StageAnalyzing)

	body := `{"jobId": "job-cancel"}`
	req := httptest.NewRequest(http.MethodPost, "/scan/cancel", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Cancel(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "canceled")

	record, err := store.Get(context.Background(), "job-cancel")
	require.NoError(t, err)
	assert.Equal(t, model.StageCanceled, record.Stage)
}

func TestCancelUnknownJob(t *testing.T) {
	h, _ := newTestScanHandler(t)

	body := `{"jobId": "missing-job"}`
	req := httptest.NewRequest(http.MethodPost, "/scan/cancel", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Cancel(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelRequiresJobID(t *testing.T) {
	h, _ := newTestScanHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/scan/cancel", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.Cancel(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
