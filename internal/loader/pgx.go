package loader

import (
	"context"
	"sync/atomic"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/solatis/qengine/internal/datatype"
	"github.com/solatis/qengine/internal/types"
)

// PgxLoader reads from PostgreSQL through a pgx pool. Query text uses $n
// placeholders.
type PgxLoader struct {
	pool   *pgxpool.Pool
	closed atomic.Bool
}

// OpenPgx creates a pool for a postgres:// connection string.
func OpenPgx(ctx context.Context, connString string) (*PgxLoader, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, errors.Wrap(err, "creating pgx pool")
	}
	return &PgxLoader{pool: pool}, nil
}

func (l *PgxLoader) Read(ctx context.Context, query string, elem datatype.Basic, params ...any) ([]any, error) {
	if l.closed.Load() {
		return nil, types.ErrLoaderClosed
	}
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "acquiring connection")
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, query, params...)
	if err != nil {
		return nil, errors.Wrapf(err, "query %q", query)
	}
	defer rows.Close()

	if n := len(rows.FieldDescriptions()); n != 1 {
		return nil, errors.Errorf("query %q returns %d columns, want 1", query, n)
	}

	var out []any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, errors.Wrap(err, "decoding row")
		}
		v, ok, err := coerceRow(vals[0], elem)
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

func (l *PgxLoader) Close() error {
	if !l.closed.Swap(true) {
		l.pool.Close()
	}
	return nil
}
