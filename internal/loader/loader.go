// Package loader provides named data-store connections for query operands.
//
// A QueryLoader runs a single-column query and returns its rows coerced to
// one basic DataType. Loaders are registered under a (name, kind) pair; the
// kind selects the implementation ("sql" for database/sql through sqlx,
// "pgx" for a native PostgreSQL pool).
package loader

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/solatis/qengine/internal/datatype"
	"github.com/solatis/qengine/internal/types"
)

// Connection kinds.
const (
	KindSQL = "sql"
	KindPgx = "pgx"
)

// QueryLoader reads one column of values from a data store.
type QueryLoader interface {
	// Read runs query with params and coerces every row to elem. NULL rows
	// are dropped.
	Read(ctx context.Context, query string, elem datatype.Basic, params ...any) ([]any, error)
	Close() error
}

// Connection describes one configured data store.
type Connection struct {
	Name string `mapstructure:"name" yaml:"name"`
	Kind string `mapstructure:"kind" yaml:"kind"`
	URL  string `mapstructure:"url" yaml:"url"`
}

type key struct {
	name string
	kind string
}

// Registry holds loaders by connection name and kind.
type Registry struct {
	mu      sync.RWMutex
	loaders map[key]QueryLoader
	logger  *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{loaders: make(map[key]QueryLoader), logger: logger}
}

// Register adds ld under name and kind, replacing and closing any previous loader.
func (r *Registry) Register(name, kind string, ld QueryLoader) {
	k := key{name: name, kind: normalizeKind(kind)}
	r.mu.Lock()
	prev := r.loaders[k]
	r.loaders[k] = ld
	r.mu.Unlock()

	if prev != nil && prev != ld {
		if err := prev.Close(); err != nil {
			r.logger.Warn("closing replaced loader", "name", name, "kind", k.kind, "error", err)
		}
	}
	r.logger.Debug("loader registered", "name", name, "kind", k.kind)
}

// Open connects c and registers the resulting loader.
func (r *Registry) Open(ctx context.Context, c Connection) error {
	var (
		ld  QueryLoader
		err error
	)
	switch normalizeKind(c.Kind) {
	case KindSQL:
		ld, err = OpenSQL(c.URL)
	case KindPgx:
		ld, err = OpenPgx(ctx, c.URL)
	default:
		return &types.ConfigurationError{
			Component: "loader",
			Message:   fmt.Sprintf("connection %s has kind %q", c.Name, c.Kind),
			Err:       types.ErrUnknownConnectionKind,
		}
	}
	if err != nil {
		return &types.ConfigurationError{Component: "loader", Message: "connection " + c.Name, Err: err}
	}
	r.Register(c.Name, c.Kind, ld)
	return nil
}

// Loader returns the loader for name and kind.
func (r *Registry) Loader(name, kind string) (QueryLoader, error) {
	k := key{name: name, kind: normalizeKind(kind)}
	r.mu.RLock()
	ld, ok := r.loaders[k]
	r.mu.RUnlock()
	if !ok {
		return nil, &types.ConfigurationError{
			Component: "loader",
			Message:   "Data Store connection not found: [" + name + "][" + k.kind + "]",
			Err:       types.ErrConnectionNotFound,
		}
	}
	return ld, nil
}

// Names lists registered connections as "name@kind", sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.loaders))
	for k := range r.loaders {
		out = append(out, k.name+"@"+k.kind)
	}
	sort.Strings(out)
	return out
}

// Close closes every loader and empties the registry.
func (r *Registry) Close() error {
	r.mu.Lock()
	loaders := r.loaders
	r.loaders = make(map[key]QueryLoader)
	r.mu.Unlock()

	var result *multierror.Error
	for k, ld := range loaders {
		if err := ld.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("closing %s@%s: %w", k.name, k.kind, err))
		}
	}
	return result.ErrorOrNil()
}

func normalizeKind(kind string) string {
	k := strings.ToLower(strings.TrimSpace(kind))
	if k == "" {
		return KindSQL
	}
	return k
}

// coerceRow converts one scanned cell to elem. Drivers return text columns
// as []byte.
func coerceRow(raw any, elem datatype.Basic) (any, bool, error) {
	if b, ok := raw.([]byte); ok {
		raw = string(b)
	}
	res, err := datatype.Coerce(raw, elem)
	if err != nil {
		return nil, false, err
	}
	return res.Value, !res.IsNull, nil
}
