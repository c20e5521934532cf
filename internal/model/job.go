package model

import (
	"errors"
	"time"
)

// ErrJobNotFound is returned when a job record is absent from the store,
// either because it never existed or because its TTL expired.
var ErrJobNotFound = errors.New("job not found")

// Stage represents the lifecycle stage of a scan job
type Stage string

const (
	StageWaitingForChannel Stage = "waiting_for_channel"
	StageAnalyzing         Stage = "analyzing"
	StageEnriching         Stage = "enriching"
	StageComplete          Stage = "complete"
	StageCanceled          Stage = "canceled"
	StageError             Stage = "error"
)

// Terminal reports whether the stage is final. A terminal stage is never
// overwritten by a later stage transition.
func (s Stage) Terminal() bool {
	return s == StageComplete || s == StageCanceled || s == StageError
}

// TerminalStages lists all terminal stages, in the order they were introduced.
func TerminalStages() []Stage {
	return []Stage{StageComplete, StageCanceled, StageError}
}

// JobRecord is the single source of truth for one scan job. It lives in the
// job store under its job_id with a bounded TTL, refreshed on every write.
type JobRecord struct {
	JobID           string      `json:"job_id" bson:"job_id"`
	Stage           Stage       `json:"stage" bson:"stage"`
	ChannelReady    bool        `json:"channel_ready" bson:"channel_ready"`
	ChannelReadyAt  *time.Time  `json:"channel_ready_at,omitempty" bson:"channel_ready_at,omitempty"`
	StartTime       time.Time   `json:"start_time" bson:"start_time"`
	LastUpdated     time.Time   `json:"last_updated" bson:"last_updated"`
	BooksDetected   int         `json:"books_detected" bson:"books_detected"`
	TotalPhotos     int         `json:"total_photos,omitempty" bson:"total_photos,omitempty"`
	PhotosProcessed int         `json:"photos_processed,omitempty" bson:"photos_processed,omitempty"`
	Result          *ScanResult `json:"result,omitempty" bson:"result,omitempty"`
	Error           string      `json:"error,omitempty" bson:"error,omitempty"`
	ErrorType       string      `json:"error_type,omitempty" bson:"error_type,omitempty"`
	ExpiresAt       time.Time   `json:"-" bson:"expires_at"`
}

// Elapsed returns how long the job has been running, or how long it ran
// if it already reached a terminal stage.
func (j *JobRecord) Elapsed() time.Duration {
	if j.Stage.Terminal() {
		return j.LastUpdated.Sub(j.StartTime)
	}
	return time.Since(j.StartTime)
}

// JobUpdate carries a partial update for a job record. Nil fields are left
// untouched by a merge. A Stage update never demotes a terminal record.
type JobUpdate struct {
	Stage           *Stage
	ChannelReady    *bool
	ChannelReadyAt  *time.Time
	BooksDetected   *int
	PhotosProcessed *int
	Result          *ScanResult
	Error           *string
	ErrorType       *string
}
