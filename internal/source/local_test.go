package source

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aversant/checker/internal/repository"
)

func setupLocalSource(t *testing.T) (*repository.Store, *LocalSource) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := repository.NewStore(client, zap.NewNop())
	return store, NewLocalSource(store, 60, zap.NewNop())
}

func TestLocalSource_ExactName(t *testing.T) {
	store, src := setupLocalSource(t)
	ctx := context.Background()

	require.NoError(t, store.SaveMetricValue(ctx, "srv.cpu", 120, 1.5))
	require.NoError(t, store.SaveMetricValue(ctx, "srv.cpu", 240, 3.5))

	reqCtx := NewRequestContext(100, 300)
	series, err := src.EvaluateTarget(ctx, reqCtx, "srv.cpu")

	require.NoError(t, err)
	require.Len(t, series, 1)
	s := series[0]
	assert.Equal(t, "srv.cpu", s.Name)
	assert.Equal(t, int64(60), s.Start)
	assert.Equal(t, int64(60), s.Step)
	require.Len(t, s.Values, 5)

	require.NotNil(t, s.ValueAt(120))
	assert.Equal(t, 1.5, *s.ValueAt(120))
	assert.Nil(t, s.ValueAt(180))
	require.NotNil(t, s.ValueAt(240))
	assert.Equal(t, 3.5, *s.ValueAt(240))

	assert.Equal(t, []string{"srv.cpu"}, reqCtx.Metrics())
}

func TestLocalSource_UnknownMetricResolvesToNothing(t *testing.T) {
	_, src := setupLocalSource(t)

	reqCtx := NewRequestContext(100, 300)
	series, err := src.EvaluateTarget(context.Background(), reqCtx, "srv.cpu")

	require.NoError(t, err)
	assert.Empty(t, series)
	assert.Empty(t, reqCtx.Metrics())
}

func TestLocalSource_Wildcard(t *testing.T) {
	store, src := setupLocalSource(t)
	ctx := context.Background()

	require.NoError(t, store.SaveMetricValue(ctx, "srv.cpu", 120, 1))
	require.NoError(t, store.SaveMetricValue(ctx, "srv.mem", 120, 2))
	require.NoError(t, store.SaveMetricValue(ctx, "other.cpu", 120, 3))

	reqCtx := NewRequestContext(100, 300)
	series, err := src.EvaluateTarget(ctx, reqCtx, "srv.*")

	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, "srv.cpu", series[0].Name)
	assert.Equal(t, "srv.mem", series[1].Name)
	assert.Equal(t, []string{"srv.cpu", "srv.mem"}, reqCtx.Metrics())
}

func TestLocalSource_WildcardDoesNotCrossDots(t *testing.T) {
	store, src := setupLocalSource(t)
	ctx := context.Background()

	require.NoError(t, store.SaveMetricValue(ctx, "srv.a.cpu", 120, 1))
	require.NoError(t, store.SaveMetricValue(ctx, "srv.cpu", 120, 2))

	reqCtx := NewRequestContext(100, 300)
	series, err := src.EvaluateTarget(ctx, reqCtx, "srv.*")

	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Equal(t, "srv.cpu", series[0].Name)
}

func TestLocalSource_EmptyTarget(t *testing.T) {
	_, src := setupLocalSource(t)

	_, err := src.EvaluateTarget(context.Background(), NewRequestContext(0, 100), "")
	assert.Error(t, err)
}

func TestMatchTarget(t *testing.T) {
	tests := []struct {
		pattern string
		name    string
		want    bool
	}{
		{"srv.cpu", "srv.cpu", true},
		{"srv.*", "srv.cpu", true},
		{"srv.*", "srv.a.cpu", false},
		{"*.cpu", "srv.cpu", true},
		{"srv.cpu?", "srv.cpu1", true},
		{"srv.[ab].cpu", "srv.a.cpu", true},
		{"srv.[ab].cpu", "srv.c.cpu", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, matchTarget(tt.pattern, tt.name),
			"pattern %q name %q", tt.pattern, tt.name)
	}
}
