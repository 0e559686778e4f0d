package rules

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/solatis/qengine/internal/loader"
	"github.com/solatis/qengine/internal/schema"
	"github.com/solatis/qengine/internal/types"
)

// DocumentType is the query type for schemaless map[string]any documents.
const DocumentType = "document"

// References supplies named reference lists.
type References interface {
	Get(ctx context.Context, name string) ([]any, error)
}

// Loaders supplies query loaders by connection name and kind.
type Loaders interface {
	Loader(name, kind string) (loader.QueryLoader, error)
}

// Engine owns the state shared by every evaluation: the schema cache, the
// registered query types and the external collaborators. It replaces
// process-wide singletons; independent engines share nothing.
type Engine struct {
	schemas *schema.Cache
	refs    References
	loaders Loaders
	limits  types.Limits
	logger  *slog.Logger

	mu         sync.RWMutex
	registered map[string]reflect.Type
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithSchemaCache shares an existing schema cache.
func WithSchemaCache(c *schema.Cache) Option {
	return func(e *Engine) { e.schemas = c }
}

// WithReferences sets the reference list source.
func WithReferences(r References) Option {
	return func(e *Engine) { e.refs = r }
}

// WithLoaders sets the connection registry used by query outputs.
func WithLoaders(l Loaders) Option {
	return func(e *Engine) { e.loaders = l }
}

// WithLimits overrides the default resource limits. Zero fields keep their defaults.
func WithLimits(l types.Limits) Option {
	return func(e *Engine) {
		if l.MaxPathDepth > 0 {
			e.limits.MaxPathDepth = l.MaxPathDepth
		}
		if l.MaxTreeDepth > 0 {
			e.limits.MaxTreeDepth = l.MaxTreeDepth
		}
		if l.MaxCollectionValues > 0 {
			e.limits.MaxCollectionValues = l.MaxCollectionValues
		}
	}
}

// NewEngine creates an engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		limits:     types.DefaultLimits(),
		registered: make(map[string]reflect.Type),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if e.schemas == nil {
		e.schemas = schema.NewCache(e.logger)
	}
	return e
}

// Schemas returns the engine's schema cache.
func (e *Engine) Schemas() *schema.Cache { return e.schemas }

// Limits returns the effective resource limits.
func (e *Engine) Limits() types.Limits { return e.limits }

// RegisterType makes sample's struct type available to definitions under
// name. The schema index is built immediately so a bad type fails here.
func (e *Engine) RegisterType(name string, sample any) error {
	key := strings.TrimSpace(name)
	if key == "" || strings.EqualFold(key, DocumentType) {
		return fmt.Errorf("type name %q is reserved", name)
	}
	t := reflect.TypeOf(sample)
	idx, err := e.schemas.GetOrBuild(t)
	if err != nil {
		return fmt.Errorf("registering %s: %w", key, err)
	}

	e.mu.Lock()
	e.registered[key] = idx.Root()
	e.mu.Unlock()

	e.logger.Debug("query type registered", "name", key, "type", idx.Root().String(), "fields", idx.Len())
	return nil
}

// TypeNames lists registered type names, sorted.
func (e *Engine) TypeNames() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.registered))
	for n := range e.registered {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Index returns the schema index for a registered type name. Document
// queries have no index and return nil without error.
func (e *Engine) Index(typeName string) (*schema.Index, error) {
	key := strings.TrimSpace(typeName)
	if key == "" || strings.EqualFold(key, DocumentType) {
		return nil, nil
	}
	e.mu.RLock()
	t, ok := e.registered[key]
	e.mu.RUnlock()
	if !ok {
		return nil, types.NewValidationError(key, types.ErrUnknownQueryType, "registered types are %v", e.TypeNames())
	}
	return e.schemas.GetOrBuild(t)
}

// NewQuery starts a query over a registered type, or over documents when
// typeName is empty or "document".
func (e *Engine) NewQuery(name, typeName string) (*Query, error) {
	idx, err := e.Index(typeName)
	if err != nil {
		return nil, err
	}
	q := NewQuery(name, idx)
	q.typeName = strings.TrimSpace(typeName)
	return q, nil
}

// QueryFor starts a query over sample's type without registering it.
func (e *Engine) QueryFor(name string, sample any) (*Query, error) {
	idx, err := e.schemas.For(sample)
	if err != nil {
		return nil, err
	}
	return NewQuery(name, idx), nil
}

// Evaluate runs q against instance.
func (e *Engine) Evaluate(ctx context.Context, q *Query, instance any) (bool, error) {
	return q.Evaluate(ctx, e, instance)
}

// Env builds an evaluation environment bound to the engine.
func (e *Engine) Env(ctx context.Context, params types.Parameters) *Env {
	return NewEnv(ctx, e, params)
}
