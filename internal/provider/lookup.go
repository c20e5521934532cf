package provider

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// cacheEntry distinguishes a cached hit from a cached miss so a title that
// no provider knows is not re-queried on every shelf it appears on.
type cacheEntry struct {
	edition  *Edition
	notFound bool
}

// Adapter fronts the configured search providers. It tries them in order,
// returns the first hit, caches results in memory, and collapses concurrent
// identical lookups into a single provider call — the same spine often
// appears in several photos of one shelf.
type Adapter struct {
	searchers []Searcher
	group     singleflight.Group

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// NewAdapter creates a combined lookup adapter over the given providers,
// consulted in order.
func NewAdapter(searchers ...Searcher) *Adapter {
	return &Adapter{
		searchers: searchers,
		cache:     make(map[string]cacheEntry),
	}
}

// Lookup resolves (title, author) to an Edition. Returns ErrNotFound when
// every provider answered without a match; returns the last transport error
// when no provider could answer at all.
func (a *Adapter) Lookup(ctx context.Context, title, author string) (*Edition, error) {
	key := cacheKey(title, author)

	a.mu.RLock()
	entry, cached := a.cache[key]
	a.mu.RUnlock()
	if cached {
		if entry.notFound {
			return nil, ErrNotFound
		}
		return entry.edition, nil
	}

	result, err, _ := a.group.Do(key, func() (interface{}, error) {
		return a.search(ctx, title, author)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			a.store(key, cacheEntry{notFound: true})
		}
		return nil, err
	}

	edition := result.(*Edition)
	a.store(key, cacheEntry{edition: edition})
	return edition, nil
}

// search consults the providers in order
func (a *Adapter) search(ctx context.Context, title, author string) (*Edition, error) {
	var lastErr error = ErrNotFound

	for _, searcher := range a.searchers {
		edition, err := searcher.Search(ctx, title, author)
		if err == nil {
			return edition, nil
		}
		if errors.Is(err, ErrNotFound) {
			continue
		}

		slog.Warn("Provider lookup failed, trying next provider",
			"provider", searcher.Name(),
			"title", title,
			"error", err.Error(),
		)
		lastErr = err
	}

	return nil, lastErr
}

func (a *Adapter) store(key string, entry cacheEntry) {
	a.mu.Lock()
	a.cache[key] = entry
	a.mu.Unlock()
}

func cacheKey(title, author string) string {
	return strings.ToLower(strings.TrimSpace(title)) + "|" + strings.ToLower(strings.TrimSpace(author))
}
