package state

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/meridianlabs-ai/deepresearch/internal/research"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewStore(rdb, time.Hour, zaptest.NewLogger(t)), mr
}

func TestSaveAndLoad(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	st := research.NewState("run-1", "what is quantum computing", time.Now().UTC())
	st.CurrentStep = research.StepExecuting
	st.Iteration = 1
	require.NoError(t, store.Save(ctx, st))

	got, err := store.Load(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, "what is quantum computing", got.Query)
	assert.Equal(t, research.StepExecuting, got.CurrentStep)
	assert.Equal(t, 1, got.Iteration)
}

func TestLoadMissingRun(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSnapshotExpires(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, research.NewState("run-1", "q", time.Now())))
	mr.FastForward(2 * time.Hour)

	_, err := store.Load(ctx, "run-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecentOrdersAndDeduplicates(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"run-1", "run-2", "run-1"} {
		require.NoError(t, store.Save(ctx, research.NewState(id, "q", time.Now())))
	}

	ids, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"run-1", "run-2"}, ids)
}

func TestDelete(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, research.NewState("run-1", "q", time.Now())))
	require.NoError(t, store.Delete(ctx, "run-1"))

	_, err := store.Load(ctx, "run-1")
	assert.ErrorIs(t, err, ErrNotFound)

	ids, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, ids)
}
