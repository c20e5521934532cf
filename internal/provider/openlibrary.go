package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
)

// OpenLibrary searches the Open Library search API
type OpenLibrary struct {
	httpClient *http.Client
	baseURL    string
}

// NewOpenLibrary creates an Open Library search adapter
func NewOpenLibrary(httpClient *http.Client, baseURL string) *OpenLibrary {
	return &OpenLibrary{
		httpClient: httpClient,
		baseURL:    baseURL,
	}
}

// Name identifies the provider
func (o *OpenLibrary) Name() string {
	return "open_library"
}

// Search queries the search API by title and author and normalizes the
// first document into an Edition.
func (o *OpenLibrary) Search(ctx context.Context, title, author string) (*Edition, error) {
	params := url.Values{}
	params.Set("title", title)
	if author != "" {
		params.Set("author", author)
	}
	params.Set("limit", "1")
	params.Set("fields", "isbn,cover_i,publisher,number_of_pages_median,subject")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open library request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("open library returned status %d", resp.StatusCode)
	}

	// Limit response reads to 1MB
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return nil, fmt.Errorf("failed to read open library response: %w", err)
	}

	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse open library response: %w", err)
	}

	if lookupInt(doc, "$.numFound") == 0 {
		return nil, ErrNotFound
	}

	edition := &Edition{
		Publisher: firstString(lookupStrings(doc, "$.docs[0].publisher", 1)),
		PageCount: lookupInt(doc, "$.docs[0].number_of_pages_median"),
		Subjects:  lookupStrings(doc, "$.docs[0].subject", 5),
		Provider:  o.Name(),
	}

	// Prefer a 13-digit ISBN when the document lists several
	for _, isbn := range lookupStrings(doc, "$.docs[0].isbn", 0) {
		if edition.ISBN == "" {
			edition.ISBN = isbn
		}
		if len(isbn) == 13 {
			edition.ISBN = isbn
			break
		}
	}

	if coverID := lookupInt(doc, "$.docs[0].cover_i"); coverID > 0 {
		edition.CoverURL = fmt.Sprintf("https://covers.openlibrary.org/b/id/%d-M.jpg", coverID)
	}

	slog.Debug("Open Library lookup completed",
		"title", title,
		"author", author,
		"isbn", edition.ISBN,
	)

	return edition, nil
}

func firstString(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
