package refdata

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solatis/qengine/internal/datatype"
	"github.com/solatis/qengine/internal/loader"
	"github.com/solatis/qengine/internal/types"
)

type countingLoader struct {
	calls  atomic.Int32
	values []any
	err    error
	gate   chan struct{}
}

func (c *countingLoader) Read(ctx context.Context, query string, elem datatype.Basic, params ...any) ([]any, error) {
	c.calls.Add(1)
	if c.gate != nil {
		<-c.gate
	}
	return c.values, c.err
}

func (c *countingLoader) Close() error { return nil }

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func setup(t *testing.T, ld loader.QueryLoader, opts ...Option) *Manager {
	t.Helper()
	reg := loader.NewRegistry(nil)
	reg.Register("main", loader.KindSQL, ld)
	return NewManager(reg, opts...)
}

func blocked(cacheable bool) ExternalList {
	return ExternalList{
		Name:       "blocked",
		Elem:       datatype.String,
		Connection: "main",
		Query:      "SELECT code FROM blocked",
		Cacheable:  cacheable,
	}
}

func TestManager_Static(t *testing.T) {
	m := NewManager(nil)
	src := []any{"a", "b"}
	m.Put("letters", src)
	src[0] = "z"

	got, err := m.Get(context.Background(), "letters")
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, got)
	assert.True(t, m.Has("letters"))
	assert.False(t, m.Has("digits"))

	_, err = m.Get(context.Background(), "digits")
	assert.ErrorIs(t, err, types.ErrReferenceNotFound)
	assert.True(t, types.IsConfiguration(err))
}

func TestManager_ExternalCached(t *testing.T) {
	ld := &countingLoader{values: []any{"x", "y"}}
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	m := setup(t, ld, WithClock(clock.now), WithDefaultTimeout(time.Minute))
	require.NoError(t, m.RegisterExternal(blocked(true)))

	for i := 0; i < 3; i++ {
		got, err := m.Get(context.Background(), "blocked")
		require.NoError(t, err)
		assert.Equal(t, []any{"x", "y"}, got)
	}
	assert.EqualValues(t, 1, ld.calls.Load())
	assert.Equal(t, 1, m.Cached())

	clock.advance(2 * time.Minute)
	_, err := m.Get(context.Background(), "blocked")
	require.NoError(t, err)
	assert.EqualValues(t, 2, ld.calls.Load(), "expired entry is refetched")

	m.Invalidate("blocked")
	_, err = m.Get(context.Background(), "blocked")
	require.NoError(t, err)
	assert.EqualValues(t, 3, ld.calls.Load())
}

func TestManager_NotCacheable(t *testing.T) {
	ld := &countingLoader{values: []any{"x"}}
	m := setup(t, ld)
	require.NoError(t, m.RegisterExternal(blocked(false)))

	for i := 0; i < 2; i++ {
		_, err := m.Get(context.Background(), "blocked")
		require.NoError(t, err)
	}
	assert.EqualValues(t, 2, ld.calls.Load())
	assert.Zero(t, m.Cached())
}

func TestManager_OverCapacityNotCached(t *testing.T) {
	ld := &countingLoader{values: []any{"a", "b", "c"}}
	m := setup(t, ld)
	l := blocked(true)
	l.CacheCapacity = 2
	require.NoError(t, m.RegisterExternal(l))

	got, err := m.Get(context.Background(), "blocked")
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Zero(t, m.Cached())
}

func TestManager_LRUEviction(t *testing.T) {
	ld := &countingLoader{values: []any{"x"}}
	m := setup(t, ld, WithCacheSize(1))
	a, b := blocked(true), blocked(true)
	b.Name = "other"
	require.NoError(t, m.RegisterExternal(a))
	require.NoError(t, m.RegisterExternal(b))

	ctx := context.Background()
	_, _ = m.Get(ctx, "blocked")
	_, _ = m.Get(ctx, "other")
	_, _ = m.Get(ctx, "blocked")
	assert.EqualValues(t, 3, ld.calls.Load())
	assert.Equal(t, 1, m.Cached())
}

func TestManager_ConcurrentMissFetchesOnce(t *testing.T) {
	ld := &countingLoader{values: []any{"x"}, gate: make(chan struct{})}
	m := setup(t, ld)
	require.NoError(t, m.RegisterExternal(blocked(true)))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := m.Get(context.Background(), "blocked")
			assert.NoError(t, err)
			assert.Equal(t, []any{"x"}, got)
		}()
	}
	// Let the single in-flight fetch finish.
	for ld.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	close(ld.gate)
	wg.Wait()
	assert.EqualValues(t, 1, ld.calls.Load())
}

// overlapLoader records how many reads ran at the same time.
type overlapLoader struct {
	calls    atomic.Int32
	inflight atomic.Int32
	peak     atomic.Int32
}

func (o *overlapLoader) Read(ctx context.Context, query string, elem datatype.Basic, params ...any) ([]any, error) {
	o.calls.Add(1)
	n := o.inflight.Add(1)
	defer o.inflight.Add(-1)
	for {
		p := o.peak.Load()
		if n <= p || o.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(time.Millisecond)
	return []any{"x"}, nil
}

func (o *overlapLoader) Close() error { return nil }

func TestManager_ConcurrentMissNotCacheable(t *testing.T) {
	ld := &overlapLoader{}
	m := setup(t, ld)
	require.NoError(t, m.RegisterExternal(blocked(false)))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Get(context.Background(), "blocked")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 8, ld.calls.Load(), "every caller fetches an uncacheable list")
	assert.EqualValues(t, 1, ld.peak.Load(), "fetches of one list do not overlap")
	assert.Zero(t, m.Cached())
}

func TestManager_Errors(t *testing.T) {
	t.Run("no loaders", func(t *testing.T) {
		m := NewManager(nil)
		require.NoError(t, m.RegisterExternal(blocked(true)))
		_, err := m.Get(context.Background(), "blocked")
		assert.ErrorIs(t, err, types.ErrConnectionNotFound)
		assert.Contains(t, err.Error(), "Data Store connection not found: [main][sql]")
	})

	t.Run("unknown connection", func(t *testing.T) {
		m := setup(t, &countingLoader{})
		l := blocked(true)
		l.Connection = "replica"
		require.NoError(t, m.RegisterExternal(l))
		_, err := m.Get(context.Background(), "blocked")
		assert.True(t, types.IsConfiguration(err))
	})

	t.Run("loader failure not cached", func(t *testing.T) {
		boom := errors.New("boom")
		ld := &countingLoader{err: boom}
		m := setup(t, ld)
		require.NoError(t, m.RegisterExternal(blocked(true)))
		_, err := m.Get(context.Background(), "blocked")
		assert.ErrorIs(t, err, boom)
		assert.Zero(t, m.Cached())
	})

	t.Run("bad descriptor", func(t *testing.T) {
		m := NewManager(nil)
		assert.Error(t, m.RegisterExternal(ExternalList{Name: "x"}))
		assert.Error(t, m.RegisterExternal(ExternalList{Name: "x", Elem: datatype.String}))
		assert.Error(t, m.RegisterExternal(ExternalList{Elem: datatype.String, Connection: "c", Query: "q"}))
	})
}

func TestManager_PutReplacesExternal(t *testing.T) {
	ld := &countingLoader{values: []any{"x"}}
	m := setup(t, ld)
	require.NoError(t, m.RegisterExternal(blocked(true)))
	_, err := m.Get(context.Background(), "blocked")
	require.NoError(t, err)

	m.Put("blocked", []any{"static"})
	got, err := m.Get(context.Background(), "blocked")
	require.NoError(t, err)
	assert.Equal(t, []any{"static"}, got)
	assert.Zero(t, m.Cached())
}
