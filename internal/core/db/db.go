// Package db opens the definitions store and the sql-kind reference
// connections, applies embedded migrations and serves named queries.
//
// SQLite and PostgreSQL are supported through sqlx. Migrations and queries
// ship inside the binary as embedded .sql files.
package db

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Driver names as registered with database/sql.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Pool limits per process. Reference connections share the same budget.
const (
	maxOpenConns    = 16
	maxIdleConns    = 4
	connMaxIdleTime = 5 * time.Minute
	connMaxLifetime = 30 * time.Minute
)

const memory = ":memory:"

// driverFor maps a database URL to a driver name and data source.
// sqlite://file.db is relative, sqlite:///abs/file.db is absolute and
// sqlite://:memory: opens a private in-memory database.
func driverFor(dbURL string) (string, string, error) {
	if rest, ok := strings.CutPrefix(dbURL, "sqlite://"); ok && strings.HasPrefix(rest, memory) {
		return DriverSQLite, rest, nil
	}

	u, err := url.Parse(dbURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid database URL: %w", err)
	}

	switch u.Scheme {
	case "sqlite", "sqlite3":
		source := u.Path
		if u.Host != "" {
			source = u.Host + u.Path
		}
		if source == "" && u.Opaque != "" {
			source = u.Opaque
		}
		if u.RawQuery != "" {
			source += "?" + u.RawQuery
		}
		return DriverSQLite, source, nil
	case "postgres", "postgresql":
		return DriverPostgres, dbURL, nil
	default:
		return "", "", fmt.Errorf("unsupported database scheme: %s (expected sqlite or postgres)", u.Scheme)
	}
}

// Open connects to dbURL and configures the pool.
func Open(dbURL string) (*sqlx.DB, error) {
	return OpenContext(context.Background(), dbURL)
}

// OpenContext is Open with a context bounding the initial ping.
func OpenContext(ctx context.Context, dbURL string) (*sqlx.DB, error) {
	driver, source, err := driverFor(dbURL)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxIdleTime(connMaxIdleTime)
	db.SetConnMaxLifetime(connMaxLifetime)
	if driver == DriverSQLite && source == memory {
		// every pooled connection would see its own empty database
		db.SetMaxOpenConns(1)
		db.SetConnMaxIdleTime(0)
		db.SetConnMaxLifetime(0)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
