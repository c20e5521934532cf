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

// GoogleBooks searches the Google Books volumes API
type GoogleBooks struct {
	httpClient *http.Client
	baseURL    string
}

// NewGoogleBooks creates a Google Books search adapter
func NewGoogleBooks(httpClient *http.Client, baseURL string) *GoogleBooks {
	return &GoogleBooks{
		httpClient: httpClient,
		baseURL:    baseURL,
	}
}

// Name identifies the provider
func (g *GoogleBooks) Name() string {
	return "google_books"
}

// Search queries the volumes API by title and author and normalizes the
// first hit into an Edition.
func (g *GoogleBooks) Search(ctx context.Context, title, author string) (*Edition, error) {
	query := fmt.Sprintf("intitle:%s", title)
	if author != "" {
		query += fmt.Sprintf(" inauthor:%s", author)
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("maxResults", "1")
	params.Set("printType", "books")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("google books request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google books returned status %d", resp.StatusCode)
	}

	// Limit response reads to 1MB
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return nil, fmt.Errorf("failed to read google books response: %w", err)
	}

	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse google books response: %w", err)
	}

	if lookupInt(doc, "$.totalItems") == 0 {
		return nil, ErrNotFound
	}

	edition := &Edition{
		ISBN:      g.extractISBN(doc),
		CoverURL:  lookupString(doc, "$.items[0].volumeInfo.imageLinks.thumbnail"),
		Publisher: lookupString(doc, "$.items[0].volumeInfo.publisher"),
		PageCount: lookupInt(doc, "$.items[0].volumeInfo.pageCount"),
		Subjects:  lookupStrings(doc, "$.items[0].volumeInfo.categories", 5),
		Provider:  g.Name(),
	}

	slog.Debug("Google Books lookup completed",
		"title", title,
		"author", author,
		"isbn", edition.ISBN,
	)

	return edition, nil
}

// extractISBN pulls the ISBN-13 from the identifier list, falling back to
// ISBN-10 when no 13-digit identifier is present.
func (g *GoogleBooks) extractISBN(doc interface{}) string {
	identifiers := lookupSlice(doc, "$.items[0].volumeInfo.industryIdentifiers")

	var isbn10 string
	for _, raw := range identifiers {
		entry, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		idType, _ := entry["type"].(string)
		idValue, _ := entry["identifier"].(string)

		switch idType {
		case "ISBN_13":
			return idValue
		case "ISBN_10":
			isbn10 = idValue
		}
	}
	return isbn10
}
