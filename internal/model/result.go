package model

import "time"

// ScanResult is the final payload of a completed scan: every detection with
// its enrichment attached, plus any image-quality suggestions gathered along
// the way. Present on the job record only when the stage is complete.
type ScanResult struct {
	Books           []Detection  `json:"books" bson:"books"`
	Suggestions     []Suggestion `json:"suggestions" bson:"suggestions"`
	PhotosProcessed int          `json:"photos_processed" bson:"photos_processed"`
	CompletedAt     time.Time    `json:"completed_at" bson:"completed_at"`
}
