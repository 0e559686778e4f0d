package schema

import (
	"io"
	"log/slog"
	"reflect"
	"sync"

	"github.com/solatis/qengine/internal/datatype"
)

// Cache memoizes one Index per root type.
//
// A miss builds outside the lock; when two callers race on the same type the
// first insert wins and the other build is dropped, so every caller observes
// the same *Index afterwards. Failed builds are not cached.
type Cache struct {
	mu      sync.RWMutex
	indices map[reflect.Type]*Index
	logger  *slog.Logger
}

// NewCache creates an empty cache. A nil logger discards output.
func NewCache(logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Cache{
		indices: make(map[reflect.Type]*Index),
		logger:  logger,
	}
}

// GetOrBuild returns the index for t, building it on first use.
func (c *Cache) GetOrBuild(t reflect.Type) (*Index, error) {
	if t == nil {
		return Build(t)
	}
	key := datatype.Indirect(t)

	c.mu.RLock()
	idx, ok := c.indices[key]
	c.mu.RUnlock()
	if ok {
		return idx, nil
	}

	built, err := Build(key)
	if err != nil {
		c.logger.Warn("schema index build failed", "type", key.String(), "error", err)
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if idx, ok := c.indices[key]; ok {
		c.logger.Debug("schema index built concurrently, keeping first", "type", key.String())
		return idx, nil
	}
	c.indices[key] = built
	c.logger.Debug("schema index built", "type", key.String(), "fields", built.Len())
	return built, nil
}

// For is GetOrBuild on the dynamic type of sample.
func (c *Cache) For(sample any) (*Index, error) {
	return c.GetOrBuild(reflect.TypeOf(sample))
}

// Warm builds indices for every sample, stopping at the first failure.
func (c *Cache) Warm(samples ...any) error {
	for _, s := range samples {
		if _, err := c.For(s); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of cached indices.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.indices)
}
