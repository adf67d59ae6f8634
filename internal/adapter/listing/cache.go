package listing

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jgivc/treemirror/internal/entity"
)

type fetcher interface {
	Fetch(ctx context.Context, dirURL string) ([]entity.Entry, error)
}

// cachedFetcher remembers successful listings, so a second pass over the
// same directories is served without requests. Failures are not cached.
type cachedFetcher struct {
	next  fetcher
	cache *lru.Cache[string, []entity.Entry]
	log   *slog.Logger
}

func NewCachedFetcher(next fetcher, size int, log *slog.Logger) (*cachedFetcher, error) {
	cache, err := lru.New[string, []entity.Entry](size)
	if err != nil {
		return nil, fmt.Errorf("cannot create listing cache: %w", err)
	}

	return &cachedFetcher{
		next:  next,
		cache: cache,
		log:   log.With(slog.String("item", "CachedFetcher")),
	}, nil
}

func (c *cachedFetcher) Fetch(ctx context.Context, dirURL string) ([]entity.Entry, error) {
	if entries, ok := c.cache.Get(dirURL); ok {
		c.log.Debug("Cache hit", slog.String("url", dirURL))

		return slices.Clone(entries), nil
	}

	entries, err := c.next.Fetch(ctx, dirURL)
	if err != nil {
		return nil, err
	}

	c.cache.Add(dirURL, slices.Clone(entries))

	return entries, nil
}

func (c *cachedFetcher) Len() int {
	return c.cache.Len()
}
