package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solatis/qengine/internal/core/db"
	"github.com/solatis/qengine/internal/datatype"
	"github.com/solatis/qengine/internal/loader"
	"github.com/solatis/qengine/internal/refdata"
	"github.com/solatis/qengine/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.Open("sqlite://:memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	_, err = db.MigrateUp(context.Background(), database)
	require.NoError(t, err)

	s, err := New(database)
	require.NoError(t, err)
	return s
}

func adults() *types.Definition {
	return &types.Definition{
		Name:       "adults",
		Type:       "person",
		Parameters: map[string]string{"minAge": "18"},
		Condition: &types.Node{And: []*types.Node{
			{Op: "eq", Type: "string", Left: "`field:name`", Right: "`const:Ann`"},
			{Op: "gte", Type: "long", Left: "`field:age`", Right: "`param:minAge`", OnMissing: "fail"},
		}},
	}
}

func TestStore_Queries(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	s.now = func() time.Time { return time.UnixMilli(1000) }

	require.NoError(t, s.SaveQuery(ctx, adults()))

	got, err := s.LoadQuery(ctx, "adults")
	require.NoError(t, err)
	assert.Equal(t, adults(), got)

	// Saving again under the same name replaces the definition.
	s.now = func() time.Time { return time.UnixMilli(2000) }
	changed := adults()
	changed.Type = "robot"
	require.NoError(t, s.SaveQuery(ctx, changed))
	require.NoError(t, s.SaveQuery(ctx, &types.Definition{Name: "all", Condition: &types.Node{Op: "exists", Left: "`field:id`"}}))

	list, err := s.ListQueries(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "adults", list[0].Name)
	assert.Equal(t, "robot", list[0].TypeName)
	assert.Equal(t, time.UnixMilli(1000), list[0].Created())
	assert.Equal(t, time.UnixMilli(2000), list[0].Updated())
	id, err := uuid.Parse(string(list[0].ID))
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())
	assert.Equal(t, "all", list[1].Name)

	require.NoError(t, s.DeleteQuery(ctx, "all"))
	_, err = s.LoadQuery(ctx, "all")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteQuery(ctx, "all"), ErrNotFound)

	assert.ErrorIs(t, s.SaveQuery(ctx, &types.Definition{}), types.ErrMissingOperand)
}

func TestStore_Parameters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SaveParameter(ctx, Parameter{Name: "minAge", DataType: datatype.Long, Dynamic: true, Default: "18", Description: "lower bound"}))
	require.NoError(t, s.SaveParameter(ctx, Parameter{Name: "country", DataType: datatype.String}))
	require.NoError(t, s.SaveParameter(ctx, Parameter{Name: "minAge", DataType: datatype.Integer, Dynamic: false, Default: "21"}))

	params, err := s.ListParameters(ctx)
	require.NoError(t, err)
	require.Len(t, params, 2)

	assert.Equal(t, "country", params[0].Name)
	assert.Equal(t, "", params[0].Default)
	assert.True(t, datatype.SameType(datatype.String, params[0].DataType))

	assert.Equal(t, "minAge", params[1].Name)
	assert.True(t, datatype.SameType(datatype.Integer, params[1].DataType))
	assert.False(t, params[1].Dynamic)
	assert.Equal(t, "21", params[1].Default)
	assert.NotEmpty(t, params[1].ID)

	defaults, static, err := s.ParameterPolicy(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.Parameters{"minAge": "21"}, defaults)
	assert.Equal(t, []string{"country", "minAge"}, static)

	err = s.SaveParameter(ctx, Parameter{Name: "bad", DataType: datatype.Long, Default: "many"})
	assert.ErrorIs(t, err, types.ErrCoercionFailed)
	assert.ErrorIs(t, s.SaveParameter(ctx, Parameter{Name: "untyped"}), types.ErrMissingOperand)

	require.NoError(t, s.DeleteParameter(ctx, "country"))
	assert.ErrorIs(t, s.DeleteParameter(ctx, "country"), ErrNotFound)
}

func TestStore_ExternalLists(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	blocked := refdata.ExternalList{
		Name:          "blocked",
		Elem:          datatype.String,
		Connection:    "main",
		Query:         "SELECT code FROM blocked",
		Cacheable:     true,
		CacheTimeout:  90 * time.Second,
		CacheCapacity: 100,
	}
	require.NoError(t, s.SaveExternalList(ctx, blocked))
	require.NoError(t, s.SaveExternalList(ctx, refdata.ExternalList{
		Name: "limits", Elem: datatype.Long, Connection: "reporting", Kind: loader.KindPgx, Query: "SELECT n FROM limits",
	}))

	lists, err := s.ListExternalLists(ctx)
	require.NoError(t, err)
	require.Len(t, lists, 2)

	got := lists[0]
	assert.Equal(t, "blocked", got.Name)
	assert.True(t, datatype.SameType(datatype.String, got.Elem))
	assert.Equal(t, loader.KindSQL, got.Kind, "empty kind is stored as sql")
	assert.Equal(t, blocked.Query, got.Query)
	assert.True(t, got.Cacheable)
	assert.Equal(t, 90*time.Second, got.CacheTimeout)
	assert.Equal(t, 100, got.CacheCapacity)

	assert.Equal(t, loader.KindPgx, lists[1].Kind)
	assert.False(t, lists[1].Cacheable)

	mgr := refdata.NewManager(loader.NewRegistry(nil))
	n, err := s.RegisterExternalLists(ctx, mgr)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, mgr.Has("blocked"))
	assert.True(t, mgr.Has("limits"))

	assert.ErrorIs(t, s.SaveExternalList(ctx, refdata.ExternalList{Name: "x"}), types.ErrMissingOperand)
	require.NoError(t, s.DeleteExternalList(ctx, "limits"))
	assert.ErrorIs(t, s.DeleteExternalList(ctx, "limits"), ErrNotFound)
}
