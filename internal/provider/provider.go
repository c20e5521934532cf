// Package provider contains the external bibliographic search adapters.
// Each adapter calls one third-party API and normalizes its response into
// the common Edition shape. Adapters are leaves: they know nothing about
// jobs, channels, or progress.
package provider

import (
	"context"
	"errors"
)

// ErrNotFound indicates the provider answered but had no matching edition.
// Distinct from transport errors so callers can tell "no result" apart
// from "lookup failed".
var ErrNotFound = errors.New("no matching edition found")

// Edition is the normalized bibliographic record returned by every provider
type Edition struct {
	ISBN      string   `json:"isbn,omitempty"`
	CoverURL  string   `json:"cover_url,omitempty"`
	Publisher string   `json:"publisher,omitempty"`
	PageCount int      `json:"page_count,omitempty"`
	Subjects  []string `json:"subjects,omitempty"`
	Provider  string   `json:"provider"`
}

// Searcher is one bibliographic search provider
type Searcher interface {
	// Search looks up an edition by title and author. Returns ErrNotFound
	// when the provider had no match; any other error is a transport or
	// protocol failure.
	Search(ctx context.Context, title, author string) (*Edition, error)

	// Name identifies the provider in results and logs
	Name() string
}
