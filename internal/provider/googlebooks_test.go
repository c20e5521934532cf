package provider

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGoogleBooksServer(t *testing.T, handler http.HandlerFunc) *GoogleBooks {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewGoogleBooks(server.Client(), server.URL)
}

func TestGoogleBooksSearchNormalizesFirstHit(t *testing.T) {
	gb := newGoogleBooksServer(t, func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		assert.Equal(t, "intitle:Dune inauthor:Frank Herbert", query.Get("q"))
		assert.Equal(t, "1", query.Get("maxResults"))

		io.WriteString(w, `{
			"totalItems": 1,
			"items": [{
				"volumeInfo": {
					"publisher": "Ace",
					"pageCount": 688,
					"categories": ["Fiction", "Science Fiction"],
					"imageLinks": {"thumbnail": "http://books.google.com/thumb.jpg"},
					"industryIdentifiers": [
						{"type": "ISBN_10", "identifier": "0441013597"},
						{"type": "ISBN_13", "identifier": "9780441013593"}
					]
				}
			}]
		}`)
	})

	edition, err := gb.Search(context.Background(), "Dune", "Frank Herbert")
	require.NoError(t, err)

	assert.Equal(t, "9780441013593", edition.ISBN)
	assert.Equal(t, "Ace", edition.Publisher)
	assert.Equal(t, 688, edition.PageCount)
	assert.Equal(t, []string{"Fiction", "Science Fiction"}, edition.Subjects)
	assert.Equal(t, "http://books.google.com/thumb.jpg", edition.CoverURL)
	assert.Equal(t, "google_books", edition.Provider)
}

func TestGoogleBooksSearchFallsBackToISBN10(t *testing.T) {
	gb := newGoogleBooksServer(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{
			"totalItems": 1,
			"items": [{
				"volumeInfo": {
					"industryIdentifiers": [
						{"type": "ISBN_10", "identifier": "0441013597"}
					]
				}
			}]
		}`)
	})

	edition, err := gb.Search(context.Background(), "Dune", "")
	require.NoError(t, err)
	assert.Equal(t, "0441013597", edition.ISBN)
}

func TestGoogleBooksSearchNoResults(t *testing.T) {
	gb := newGoogleBooksServer(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"totalItems": 0}`)
	})

	_, err := gb.Search(context.Background(), "Nonexistent", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGoogleBooksSearchServerError(t *testing.T) {
	gb := newGoogleBooksServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := gb.Search(context.Background(), "Dune", "")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "429")
}
