package deadline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joseph-ayodele/exams-tracker/internal/cache"
	"github.com/joseph-ayodele/exams-tracker/internal/common"
	"github.com/joseph-ayodele/exams-tracker/internal/entity"
)

// CacheKeyPrefix namespaces catalog entries; invalidate it after a catalog import.
const CacheKeyPrefix = cacheNamespace + ":"

const cacheNamespace = "catalog"

var notFoundMarker = []byte("null")

// CachedCatalog memoizes lookups, including misses. Lookup errors are never cached
// and cache failures fall through to the underlying catalog.
type CachedCatalog struct {
	next   Catalog
	cache  cache.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedCatalog(next Catalog, c cache.Client, ttl time.Duration, logger *slog.Logger) *CachedCatalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedCatalog{next: next, cache: c, ttl: ttl, logger: logger}
}

func (c *CachedCatalog) FindByTerminology(ctx context.Context, name string) (*entity.Procedure, error) {
	key := cache.Key(cacheNamespace, strings.ToLower(name))

	if b, err := c.cache.Get(ctx, key); err == nil {
		if string(b) == string(notFoundMarker) {
			return nil, fmt.Errorf("procedure %q: %w", name, common.ErrNotFound)
		}
		var p entity.Procedure
		if err := json.Unmarshal(b, &p); err == nil {
			return &p, nil
		}
		c.logger.Warn("discarding corrupt cache entry", "key", key)
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		c.logger.Warn("cache get failed", "key", key, "error", err)
	}

	proc, err := c.next.FindByTerminology(ctx, name)
	switch {
	case err == nil && proc != nil:
		if b, mErr := json.Marshal(proc); mErr == nil {
			c.store(ctx, key, b)
		}
	case err == nil, errors.Is(err, common.ErrNotFound):
		c.store(ctx, key, notFoundMarker)
	}
	return proc, err
}

func (c *CachedCatalog) store(ctx context.Context, key string, b []byte) {
	if err := c.cache.Set(ctx, key, b, c.ttl); err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}
