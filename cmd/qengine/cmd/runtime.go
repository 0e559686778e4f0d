package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/jmoiron/sqlx"
	"gopkg.in/yaml.v3"

	"github.com/solatis/qengine/internal/core/config"
	"github.com/solatis/qengine/internal/core/db"
	"github.com/solatis/qengine/internal/core/store"
	"github.com/solatis/qengine/internal/loader"
	"github.com/solatis/qengine/internal/refdata"
	"github.com/solatis/qengine/internal/rules"
	"github.com/solatis/qengine/internal/types"
)

// runtime is the wired engine shared by evaluate and serve.
type runtime struct {
	engine  *rules.Engine
	loaders *loader.Registry
	refs    *refdata.Manager
	db      *sqlx.DB
	store   *store.Store
}

// openRuntime opens every configured connection and, when withStore is set,
// the definitions store whose external lists are registered for reference
// operands.
func openRuntime(ctx context.Context, cfg *config.Config, withStore bool) (*runtime, error) {
	logger := slog.Default()
	rt := &runtime{loaders: loader.NewRegistry(logger)}

	for _, c := range cfg.Connections {
		if err := rt.loaders.Open(ctx, c); err != nil {
			rt.Close()
			return nil, err
		}
		logger.Info("connection opened", "name", c.Name, "kind", c.Kind)
	}

	rt.refs = refdata.NewManager(rt.loaders,
		refdata.WithCacheSize(cfg.RefData.CacheSize),
		refdata.WithDefaultTimeout(cfg.RefData.DefaultTimeout),
		refdata.WithLogger(logger),
	)
	rt.engine = rules.NewEngine(
		rules.WithLimits(cfg.Limits),
		rules.WithLoaders(rt.loaders),
		rules.WithReferences(rt.refs),
		rules.WithLogger(logger),
	)

	if !withStore {
		return rt, nil
	}
	st, database, err := openStore(ctx, cfg.Database.URL)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.db, rt.store = database, st

	n, err := st.RegisterExternalLists(ctx, rt.refs)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to register external lists: %w", err)
	}
	logger.Info("external lists registered", "count", n)
	return rt, nil
}

// openStore opens the definitions database and refuses to work on a schema
// with pending migrations.
func openStore(ctx context.Context, url string) (*store.Store, *sqlx.DB, error) {
	database, err := db.OpenContext(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	statuses, err := db.MigrateStatus(ctx, database)
	if err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("failed to check migrations: %w", err)
	}
	for _, s := range statuses {
		if !s.Applied {
			database.Close()
			return nil, nil, fmt.Errorf("migration %s not applied - run 'qengine migrate' first", s.ID)
		}
	}
	st, err := store.New(database)
	if err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("failed to load queries: %w", err)
	}
	return st, database, nil
}

func (rt *runtime) Close() error {
	var result error
	if rt.loaders != nil {
		if err := rt.loaders.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if rt.db != nil {
		if err := rt.db.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result
}

// readDefinition decodes a definition file; the format follows the extension.
func readDefinition(path string) (*types.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return rules.DecodeDefinition(data, rules.FormatFromPath(path))
}

// readDocument decodes a JSON (.json) or YAML file into generic values.
func readDocument(path string) (any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc any
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &doc)
	} else {
		err = yaml.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return doc, nil
}

// documents treats a top-level list as a batch and anything else as one document.
func documents(doc any) []any {
	if list, ok := doc.([]any); ok {
		return list
	}
	return []any{doc}
}

// parseParams turns repeated name=value flags into parameters.
func parseParams(pairs []string) (types.Parameters, error) {
	out := types.Parameters{}
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid --param %q (expected name=value)", p)
		}
		out[strings.TrimSpace(name)] = value
	}
	return out, nil
}
