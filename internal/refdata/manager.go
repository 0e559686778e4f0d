// Package refdata provides named reference lists for query operands.
//
// A list is either static, registered with Put, or external, described by an
// ExternalList and read through a loader connection on demand. External
// results are cached with a per-list TTL in a shared LRU; a list longer than
// its CacheCapacity is returned but never cached. Fetches of one list are
// serialized: callers that missed together wait for the first fetch and
// reuse its result when it was cached. A list that is not cacheable, or is
// over capacity, is fetched again by every waiting caller in turn.
package refdata

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/solatis/qengine/internal/datatype"
	"github.com/solatis/qengine/internal/loader"
	"github.com/solatis/qengine/internal/types"
)

// Defaults applied when a Manager or ExternalList leaves them unset.
const (
	DefaultCacheSize    = 256
	DefaultCacheTimeout = 10 * time.Minute
)

// Loaders supplies query loaders by connection name and kind.
type Loaders interface {
	Loader(name, kind string) (loader.QueryLoader, error)
}

// ExternalList describes a reference list read from a data store.
type ExternalList struct {
	Name       string
	Elem       datatype.Basic
	Connection string
	Kind       string
	Query      string
	Params     []any

	Cacheable bool
	// CacheTimeout is the entry lifetime; zero uses the manager default.
	CacheTimeout time.Duration
	// CacheCapacity is the longest list that is cached; zero means no bound.
	CacheCapacity int
}

// Manager resolves reference lists by name.
type Manager struct {
	loaders        Loaders
	defaultTimeout time.Duration
	logger         *slog.Logger
	now            func() time.Time

	mu       sync.Mutex
	static   map[string][]any
	external map[string]ExternalList
	cache    *lruCache
	fetching map[string]*sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithCacheSize bounds the number of cached external lists.
func WithCacheSize(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.cache = newLruCache(n)
		}
	}
}

// WithDefaultTimeout sets the TTL for lists that declare none.
func WithDefaultTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.defaultTimeout = d
		}
	}
}

// WithLogger sets the manager logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithClock replaces time.Now for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a manager reading external lists through loaders, which
// may be nil when only static lists are used.
func NewManager(loaders Loaders, opts ...Option) *Manager {
	m := &Manager{
		loaders:        loaders,
		defaultTimeout: DefaultCacheTimeout,
		now:            time.Now,
		static:         make(map[string][]any),
		external:       make(map[string]ExternalList),
		cache:          newLruCache(DefaultCacheSize),
		fetching:       make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// Put registers a static list, replacing any list of the same name.
func (m *Manager) Put(name string, values []any) {
	cp := append([]any(nil), values...)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.external, name)
	m.cache.remove(name)
	m.static[name] = cp
}

// RegisterExternal registers an external list, replacing any list of the same name.
func (m *Manager) RegisterExternal(l ExternalList) error {
	switch {
	case l.Name == "":
		return &types.ConfigurationError{Component: "refdata", Message: "external list has no name", Err: types.ErrMissingOperand}
	case l.Elem == nil:
		return &types.ConfigurationError{Component: "refdata", Message: "external list " + l.Name + " has no data type", Err: types.ErrMissingOperand}
	case l.Connection == "" || l.Query == "":
		return &types.ConfigurationError{Component: "refdata", Message: "external list " + l.Name + " needs a connection and a query", Err: types.ErrMissingOperand}
	}
	if l.Kind == "" {
		l.Kind = loader.KindSQL
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.static, l.Name)
	m.cache.remove(l.Name)
	m.external[l.Name] = l
	return nil
}

// Has reports whether a list of that name is registered.
func (m *Manager) Has(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, s := m.static[name]
	_, e := m.external[name]
	return s || e
}

// Invalidate drops the cached copy of an external list.
func (m *Manager) Invalidate(name string) {
	m.mu.Lock()
	m.cache.remove(name)
	m.mu.Unlock()
}

// InvalidateAll drops every cached external list.
func (m *Manager) InvalidateAll() {
	m.mu.Lock()
	m.cache.clear()
	m.mu.Unlock()
}

// Cached returns the number of cached external lists.
func (m *Manager) Cached() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cache.len()
}

// Get returns the members of the named list. The returned slice must not be
// modified.
func (m *Manager) Get(ctx context.Context, name string) ([]any, error) {
	m.mu.Lock()
	if values, ok := m.static[name]; ok {
		m.mu.Unlock()
		return values, nil
	}
	desc, ok := m.external[name]
	if !ok {
		m.mu.Unlock()
		return nil, &types.ConfigurationError{Component: "refdata", Message: "reference list " + name, Err: types.ErrReferenceNotFound}
	}
	if values, hit := m.cache.get(name, m.now()); hit {
		m.mu.Unlock()
		m.logger.Debug("reference list cache hit", "name", name)
		return values, nil
	}
	lock := m.fetching[name]
	if lock == nil {
		lock = &sync.Mutex{}
		m.fetching[name] = lock
	}
	m.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()

	// Another caller may have populated the entry while we waited.
	m.mu.Lock()
	values, hit := m.cache.get(name, m.now())
	m.mu.Unlock()
	if hit {
		return values, nil
	}

	values, err := m.fetch(ctx, desc)
	if err != nil {
		return nil, err
	}
	if desc.Cacheable && (desc.CacheCapacity <= 0 || len(values) <= desc.CacheCapacity) {
		ttl := desc.CacheTimeout
		if ttl <= 0 {
			ttl = m.defaultTimeout
		}
		m.mu.Lock()
		// Skip the insert if the list was replaced during the fetch.
		if cur, ok := m.external[name]; ok && sameSource(cur, desc) {
			m.cache.add(name, values, m.now().Add(ttl))
		}
		m.mu.Unlock()
	}
	return values, nil
}

func (m *Manager) fetch(ctx context.Context, l ExternalList) ([]any, error) {
	if m.loaders == nil {
		return nil, &types.ConfigurationError{
			Component: "refdata",
			Message:   "Data Store connection not found: [" + l.Connection + "][" + l.Kind + "]",
			Err:       types.ErrConnectionNotFound,
		}
	}
	ld, err := m.loaders.Loader(l.Connection, l.Kind)
	if err != nil {
		return nil, err
	}
	start := m.now()
	values, err := ld.Read(ctx, l.Query, l.Elem, l.Params...)
	if err != nil {
		return nil, fmt.Errorf("loading reference list %s: %w", l.Name, err)
	}
	m.logger.Info("reference list loaded", "name", l.Name, "connection", l.Connection, "rows", len(values), "elapsed", m.now().Sub(start))
	return values, nil
}

func sameSource(a, b ExternalList) bool {
	return a.Connection == b.Connection && a.Kind == b.Kind && a.Query == b.Query
}
