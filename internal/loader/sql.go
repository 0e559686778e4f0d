package loader

import (
	"context"
	"sync/atomic"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/solatis/qengine/internal/core/db"
	"github.com/solatis/qengine/internal/datatype"
	"github.com/solatis/qengine/internal/types"
)

// SQLLoader reads through database/sql via sqlx. Query text uses ?
// placeholders, rebound for the driver.
type SQLLoader struct {
	db     *sqlx.DB
	owned  bool
	closed atomic.Bool
}

// NewSQL wraps an open database. Close does not close db.
func NewSQL(db *sqlx.DB) *SQLLoader {
	return &SQLLoader{db: db}
}

// OpenSQL connects to a sqlite:// or postgres:// URL.
func OpenSQL(url string) (*SQLLoader, error) {
	conn, err := db.Open(url)
	if err != nil {
		return nil, err
	}
	return &SQLLoader{db: conn, owned: true}, nil
}

func (l *SQLLoader) Read(ctx context.Context, query string, elem datatype.Basic, params ...any) ([]any, error) {
	if l.closed.Load() {
		return nil, types.ErrLoaderClosed
	}
	rows, err := l.db.QueryxContext(ctx, l.db.Rebind(query), params...)
	if err != nil {
		return nil, errors.Wrapf(err, "query %q", query)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "reading columns")
	}
	if len(cols) != 1 {
		return nil, errors.Errorf("query %q returns %d columns, want 1", query, len(cols))
	}

	var out []any
	for rows.Next() {
		var raw any
		if err := rows.Scan(&raw); err != nil {
			return nil, errors.Wrap(err, "scanning row")
		}
		v, ok, err := coerceRow(raw, elem)
		if err != nil {
			return nil, errors.Wrapf(err, "row %d", len(out)+1)
		}
		if ok {
			out = append(out, v)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating rows")
	}
	return out, nil
}

func (l *SQLLoader) Close() error {
	if l.closed.Swap(true) || !l.owned {
		return nil
	}
	return l.db.Close()
}
