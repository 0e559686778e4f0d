// Package store persists query definitions, parameter definitions and
// external reference-list descriptors in the definitions database.
//
// Definitions are stored as msgpack blobs; everything else is plain columns.
// All statements live in internal/core/db/queries.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/solatis/qengine/internal/core/db"
	"github.com/solatis/qengine/internal/datatype"
	"github.com/solatis/qengine/internal/loader"
	"github.com/solatis/qengine/internal/refdata"
	"github.com/solatis/qengine/internal/rules"
	"github.com/solatis/qengine/internal/types"
)

// ErrNotFound is returned when a named record does not exist.
var ErrNotFound = errors.New("not found")

// Store reads and writes definitions.
type Store struct {
	q   *db.Queries
	now func() time.Time
}

// New prepares the named statements for database. The schema must already
// be migrated.
func New(database *sqlx.DB) (*Store, error) {
	q, err := db.LoadQueries(database)
	if err != nil {
		return nil, err
	}
	return &Store{q: q, now: time.Now}, nil
}

func (s *Store) millis() int64 { return s.now().UnixMilli() }

// QueryInfo summarizes a stored query.
type QueryInfo struct {
	ID        types.QueryID `db:"id"`
	Name      string        `db:"name"`
	TypeName  string        `db:"type_name"`
	CreatedAt int64         `db:"created_at"`
	UpdatedAt int64         `db:"updated_at"`
}

// Created returns the creation time.
func (i QueryInfo) Created() time.Time { return time.UnixMilli(i.CreatedAt) }

// Updated returns the time of the last save.
func (i QueryInfo) Updated() time.Time { return time.UnixMilli(i.UpdatedAt) }

type queryRow struct {
	QueryInfo
	Definition []byte `db:"definition"`
}

// SaveQuery stores def under its name, replacing an earlier definition of
// the same name. The definition is not compiled here; callers that need a
// valid query compile it first.
func (s *Store) SaveQuery(ctx context.Context, def *types.Definition) error {
	if def == nil || def.Name == "" {
		return fmt.Errorf("save query: %w: name", types.ErrMissingOperand)
	}
	blob, err := rules.EncodeDefinition(def, rules.FormatMsgpack)
	if err != nil {
		return fmt.Errorf("save query %s: %w", def.Name, err)
	}
	now := s.millis()
	if _, err := s.q.Exec(ctx, "upsert-query", string(types.NewQueryID()), def.Name, def.Type, blob, now, now); err != nil {
		return fmt.Errorf("save query %s: %w", def.Name, err)
	}
	return nil
}

// LoadQuery returns the stored definition called name.
func (s *Store) LoadQuery(ctx context.Context, name string) (*types.Definition, error) {
	var row queryRow
	if err := s.q.Get(ctx, "get-query", &row, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("query %s: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("load query %s: %w", name, err)
	}
	def, err := rules.DecodeDefinition(row.Definition, rules.FormatMsgpack)
	if err != nil {
		return nil, fmt.Errorf("load query %s: %w", name, err)
	}
	return def, nil
}

// ListQueries lists stored queries by name.
func (s *Store) ListQueries(ctx context.Context) ([]QueryInfo, error) {
	var out []QueryInfo
	if err := s.q.Select(ctx, "list-queries", &out); err != nil {
		return nil, fmt.Errorf("list queries: %w", err)
	}
	return out, nil
}

// DeleteQuery removes a stored query; a missing name is ErrNotFound.
func (s *Store) DeleteQuery(ctx context.Context, name string) error {
	return s.delete(ctx, "delete-query", "query", name)
}

func (s *Store) delete(ctx context.Context, stmt, what, name string) error {
	res, err := s.q.Exec(ctx, stmt, name)
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", what, name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s %s: %w", what, name, ErrNotFound)
	}
	return nil
}

// Parameter is a named, typed query parameter.
type Parameter struct {
	ID       string
	Name     string
	DataType datatype.Basic
	// Dynamic parameters may be overridden per evaluation.
	Dynamic     bool
	Default     string
	Description string
}

type parameterRow struct {
	ID          string         `db:"id"`
	Name        string         `db:"name"`
	DataType    string         `db:"data_type"`
	Dynamic     bool           `db:"is_dynamic"`
	Default     sql.NullString `db:"default_value"`
	Description string         `db:"description"`
}

// SaveParameter creates or replaces the parameter called p.Name.
func (s *Store) SaveParameter(ctx context.Context, p Parameter) error {
	if p.Name == "" || p.DataType == nil {
		return fmt.Errorf("save parameter: %w: name and data type", types.ErrMissingOperand)
	}
	if p.Default != "" {
		if _, err := p.DataType.FromString(p.Default); err != nil {
			return fmt.Errorf("save parameter %s: default: %w", p.Name, err)
		}
	}
	def := sql.NullString{String: p.Default, Valid: p.Default != ""}
	_, err := s.q.Exec(ctx, "upsert-parameter",
		types.NewRowID(), p.Name, p.DataType.Name(), p.Dynamic, def, p.Description, s.millis())
	if err != nil {
		return fmt.Errorf("save parameter %s: %w", p.Name, err)
	}
	return nil
}

// ListParameters lists stored parameters by name.
func (s *Store) ListParameters(ctx context.Context) ([]Parameter, error) {
	var rows []parameterRow
	if err := s.q.Select(ctx, "list-parameters", &rows); err != nil {
		return nil, fmt.Errorf("list parameters: %w", err)
	}
	out := make([]Parameter, 0, len(rows))
	for _, r := range rows {
		dt, err := datatype.ParseBasic(r.DataType)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", r.Name, err)
		}
		out = append(out, Parameter{
			ID:          r.ID,
			Name:        r.Name,
			DataType:    dt,
			Dynamic:     r.Dynamic,
			Default:     r.Default.String,
			Description: r.Description,
		})
	}
	return out, nil
}

// DeleteParameter removes a stored parameter.
func (s *Store) DeleteParameter(ctx context.Context, name string) error {
	return s.delete(ctx, "delete-parameter", "parameter", name)
}

// ParameterPolicy returns the default values of the stored parameters that
// have one, and the names of those that may not be overridden per request.
func (s *Store) ParameterPolicy(ctx context.Context) (types.Parameters, []string, error) {
	params, err := s.ListParameters(ctx)
	if err != nil {
		return nil, nil, err
	}
	defaults := types.Parameters{}
	var static []string
	for _, p := range params {
		if p.Default != "" {
			defaults[p.Name] = p.Default
		}
		if !p.Dynamic {
			static = append(static, p.Name)
		}
	}
	return defaults, static, nil
}

type externalListRow struct {
	ID            string `db:"id"`
	Name          string `db:"name"`
	DataType      string `db:"data_type"`
	Connection    string `db:"connection"`
	Kind          string `db:"kind"`
	Query         string `db:"query_text"`
	Cacheable     bool   `db:"cacheable"`
	CacheTimeout  int64  `db:"cache_timeout_ms"`
	CacheCapacity int    `db:"cache_capacity"`
}

// SaveExternalList creates or replaces the descriptor called l.Name. Query
// parameters are not persisted.
func (s *Store) SaveExternalList(ctx context.Context, l refdata.ExternalList) error {
	if l.Name == "" || l.Elem == nil || l.Connection == "" || l.Query == "" {
		return fmt.Errorf("save external list: %w: name, type, connection and query", types.ErrMissingOperand)
	}
	if l.CacheTimeout < 0 || l.CacheCapacity < 0 {
		return fmt.Errorf("save external list %s: negative cache settings", l.Name)
	}
	kind := l.Kind
	if kind == "" {
		kind = loader.KindSQL
	}
	_, err := s.q.Exec(ctx, "upsert-external-list",
		types.NewRowID(), l.Name, l.Elem.Name(), l.Connection, kind, l.Query,
		l.Cacheable, l.CacheTimeout.Milliseconds(), l.CacheCapacity, s.millis())
	if err != nil {
		return fmt.Errorf("save external list %s: %w", l.Name, err)
	}
	return nil
}

// ListExternalLists lists stored descriptors by name.
func (s *Store) ListExternalLists(ctx context.Context) ([]refdata.ExternalList, error) {
	var rows []externalListRow
	if err := s.q.Select(ctx, "list-external-lists", &rows); err != nil {
		return nil, fmt.Errorf("list external lists: %w", err)
	}
	out := make([]refdata.ExternalList, 0, len(rows))
	for _, r := range rows {
		elem, err := datatype.ParseBasic(r.DataType)
		if err != nil {
			return nil, fmt.Errorf("external list %s: %w", r.Name, err)
		}
		out = append(out, refdata.ExternalList{
			Name:          r.Name,
			Elem:          elem,
			Connection:    r.Connection,
			Kind:          r.Kind,
			Query:         r.Query,
			Cacheable:     r.Cacheable,
			CacheTimeout:  time.Duration(r.CacheTimeout) * time.Millisecond,
			CacheCapacity: r.CacheCapacity,
		})
	}
	return out, nil
}

// DeleteExternalList removes a stored descriptor.
func (s *Store) DeleteExternalList(ctx context.Context, name string) error {
	return s.delete(ctx, "delete-external-list", "external list", name)
}

// RegisterExternalLists loads every stored descriptor into m and returns how
// many were registered.
func (s *Store) RegisterExternalLists(ctx context.Context, m *refdata.Manager) (int, error) {
	lists, err := s.ListExternalLists(ctx)
	if err != nil {
		return 0, err
	}
	for _, l := range lists {
		if err := m.RegisterExternal(l); err != nil {
			return 0, err
		}
	}
	return len(lists), nil
}
