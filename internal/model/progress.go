package model

// ProgressEvent is an ephemeral progress message fanned out to listeners of
// a job's progress channel. Events are never persisted and never replayed;
// a listener that connects late polls the job record instead.
type ProgressEvent struct {
	Progress       float64 `json:"progress"`
	ProcessedItems int     `json:"processed_items"`
	TotalItems     int     `json:"total_items"`
	CurrentStatus  string  `json:"current_status"`
	BooksFound     int     `json:"books_found,omitempty"`
	Error          string  `json:"error,omitempty"`
}
