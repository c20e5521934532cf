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

func newOpenLibraryServer(t *testing.T, handler http.HandlerFunc) *OpenLibrary {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewOpenLibrary(server.Client(), server.URL)
}

func TestOpenLibrarySearchNormalizesFirstHit(t *testing.T) {
	ol := newOpenLibraryServer(t, func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		assert.Equal(t, "Dune", query.Get("title"))
		assert.Equal(t, "Frank Herbert", query.Get("author"))
		assert.Equal(t, "1", query.Get("limit"))

		io.WriteString(w, `{
			"numFound": 1,
			"docs": [{
				"isbn": ["0441013597", "9780441013593"],
				"cover_i": 12345,
				"publisher": ["Ace", "Chilton"],
				"number_of_pages_median": 688,
				"subject": ["Science fiction", "Deserts"]
			}]
		}`)
	})

	edition, err := ol.Search(context.Background(), "Dune", "Frank Herbert")
	require.NoError(t, err)

	// 13-digit ISBN wins over the 10-digit one listed first
	assert.Equal(t, "9780441013593", edition.ISBN)
	assert.Equal(t, "Ace", edition.Publisher)
	assert.Equal(t, 688, edition.PageCount)
	assert.Equal(t, []string{"Science fiction", "Deserts"}, edition.Subjects)
	assert.Equal(t, "https://covers.openlibrary.org/b/id/12345-M.jpg", edition.CoverURL)
	assert.Equal(t, "open_library", edition.Provider)
}

func TestOpenLibrarySearchWithoutCoverOrISBN13(t *testing.T) {
	ol := newOpenLibraryServer(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{
			"numFound": 1,
			"docs": [{
				"isbn": ["0441013597"]
			}]
		}`)
	})

	edition, err := ol.Search(context.Background(), "Dune", "")
	require.NoError(t, err)
	assert.Equal(t, "0441013597", edition.ISBN)
	assert.Empty(t, edition.CoverURL)
}

func TestOpenLibrarySearchNoResults(t *testing.T) {
	ol := newOpenLibraryServer(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"numFound": 0, "docs": []}`)
	})

	_, err := ol.Search(context.Background(), "Nonexistent", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpenLibrarySearchServerError(t *testing.T) {
	ol := newOpenLibraryServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := ol.Search(context.Background(), "Dune", "")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
