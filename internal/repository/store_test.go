package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aversant/checker/internal/models"
)

func setupTestStore(t *testing.T) (*miniredis.Miniredis, *Store) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, NewStore(client, zap.NewNop())
}

func floatPtr(v float64) *float64 { return &v }

func TestStore_TriggerRoundTrip(t *testing.T) {
	_, store := setupTestStore(t)
	ctx := context.Background()

	trigger := &models.Trigger{
		ID:         "trigger-1",
		Name:       "cpu high",
		Targets:    []string{"srv.cpu"},
		ErrorValue: floatPtr(90),
		TTL:        600,
		Tags:       []string{"prod"},
	}
	require.NoError(t, store.SaveTrigger(ctx, trigger))

	loaded, err := store.GetTrigger(ctx, "trigger-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "trigger-1", loaded.ID)
	assert.Equal(t, []string{"srv.cpu"}, loaded.Targets)
	assert.Equal(t, int64(600), loaded.TTL)
	require.NotNil(t, loaded.ErrorValue)
	assert.Equal(t, 90.0, *loaded.ErrorValue)

	ids, err := store.GetTriggerIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"trigger-1"}, ids)
}

func TestStore_GetTrigger_NotFoundIsNil(t *testing.T) {
	_, store := setupTestStore(t)

	trigger, err := store.GetTrigger(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, trigger)
}

func TestStore_DeleteTrigger(t *testing.T) {
	_, store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveTrigger(ctx, &models.Trigger{ID: "trigger-1"}))
	require.NoError(t, store.SetTriggerLastCheck(ctx, "trigger-1", models.NewCheckData(models.StateOK, 100)))
	require.NoError(t, store.DeleteTrigger(ctx, "trigger-1"))

	trigger, err := store.GetTrigger(ctx, "trigger-1")
	require.NoError(t, err)
	assert.Nil(t, trigger)

	check, err := store.GetTriggerLastCheck(ctx, "trigger-1")
	require.NoError(t, err)
	assert.Nil(t, check)

	ids, err := store.GetTriggerIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestStore_TagMaintenance(t *testing.T) {
	_, store := setupTestStore(t)
	ctx := context.Background()

	tag, err := store.GetTag(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, tag.Maintenance)

	require.NoError(t, store.SetTagMaintenance(ctx, "prod", true))
	tag, err = store.GetTag(ctx, "prod")
	require.NoError(t, err)
	assert.True(t, tag.Maintenance)

	require.NoError(t, store.SetTagMaintenance(ctx, "prod", false))
	tag, err = store.GetTag(ctx, "prod")
	require.NoError(t, err)
	assert.False(t, tag.Maintenance)
}

func TestStore_LastCheckRoundTrip(t *testing.T) {
	_, store := setupTestStore(t)
	ctx := context.Background()

	check, err := store.GetTriggerLastCheck(ctx, "trigger-1")
	require.NoError(t, err)
	assert.Nil(t, check)

	saved := models.NewCheckData(models.StateOK, 1000)
	saved.Metrics["srv.cpu"] = &models.MetricState{
		State:     models.StateERROR,
		Timestamp: 940,
		Value:     floatPtr(95),
	}
	require.NoError(t, store.SetTriggerLastCheck(ctx, "trigger-1", saved))

	loaded, err := store.GetTriggerLastCheck(ctx, "trigger-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, models.StateOK, loaded.State)
	assert.Equal(t, int64(1000), loaded.Timestamp)
	require.Contains(t, loaded.Metrics, "srv.cpu")
	assert.Equal(t, models.StateERROR, loaded.Metrics["srv.cpu"].State)
	require.NotNil(t, loaded.Metrics["srv.cpu"].Value)
	assert.Equal(t, 95.0, *loaded.Metrics["srv.cpu"].Value)
}

func TestStore_EventQueue(t *testing.T) {
	_, store := setupTestStore(t)
	ctx := context.Background()

	event, err := store.PopEvent(ctx)
	require.NoError(t, err)
	assert.Nil(t, event)

	first := &models.Event{
		TriggerID: "trigger-1",
		Metric:    "srv.cpu",
		State:     models.StateERROR,
		OldState:  models.StateOK,
		Timestamp: 1000,
		Value:     floatPtr(95),
	}
	second := &models.Event{
		TriggerID: "trigger-1",
		State:     models.StateOK,
		OldState:  models.StateERROR,
		Timestamp: 1060,
	}
	require.NoError(t, store.PushEvent(ctx, first))
	require.NoError(t, store.PushEvent(ctx, second))

	count, err := store.EventCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	// FIFO: the first pushed event comes out first.
	popped, err := store.PopEvent(ctx)
	require.NoError(t, err)
	require.NotNil(t, popped)
	assert.Equal(t, models.StateERROR, popped.State)
	assert.Equal(t, "srv.cpu", popped.Metric)
	require.NotNil(t, popped.Value)
	assert.Equal(t, 95.0, *popped.Value)

	popped, err = store.PopEvent(ctx)
	require.NoError(t, err)
	require.NotNil(t, popped)
	assert.Equal(t, models.StateOK, popped.State)
	assert.Nil(t, popped.Value)
}

func TestStore_MetricValues(t *testing.T) {
	_, store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveMetricValue(ctx, "srv.cpu", 100, 1.5))
	require.NoError(t, store.SaveMetricValue(ctx, "srv.cpu", 160, -2.25))
	require.NoError(t, store.SaveMetricValue(ctx, "srv.cpu", 220, 3))

	values, err := store.GetMetricValues(ctx, "srv.cpu", 100, 160)
	require.NoError(t, err)
	require.Len(t, values, 2)
	assert.Equal(t, MetricValue{Timestamp: 100, Value: 1.5}, values[0])
	assert.Equal(t, MetricValue{Timestamp: 160, Value: -2.25}, values[1])

	known, err := store.HasMetric(ctx, "srv.cpu")
	require.NoError(t, err)
	assert.True(t, known)

	known, err = store.HasMetric(ctx, "srv.mem")
	require.NoError(t, err)
	assert.False(t, known)
}

func TestStore_GetTargetsSorted(t *testing.T) {
	_, store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveMetricValue(ctx, "srv.mem", 100, 1))
	require.NoError(t, store.SaveMetricValue(ctx, "srv.cpu", 100, 1))

	targets, err := store.GetTargets(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"srv.cpu", "srv.mem"}, targets)
}

func TestStore_CleanupMetricValues(t *testing.T) {
	_, store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveMetricValue(ctx, "srv.cpu", 100, 1))
	require.NoError(t, store.SaveMetricValue(ctx, "srv.cpu", 200, 2))
	require.NoError(t, store.SaveMetricValue(ctx, "srv.cpu", 300, 3))

	require.NoError(t, store.CleanupMetricValues(ctx, "srv.cpu", 200, "srv.cpu", 60))

	values, err := store.GetMetricValues(ctx, "srv.cpu", 0, 1000)
	require.NoError(t, err)
	require.Len(t, values, 2)
	assert.Equal(t, int64(200), values[0].Timestamp)
	assert.Equal(t, int64(300), values[1].Timestamp)
}

func TestStore_CleanupMetricValues_DedupedPerCacheKey(t *testing.T) {
	_, store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveMetricValue(ctx, "srv.cpu", 100, 1))
	require.NoError(t, store.CleanupMetricValues(ctx, "srv.cpu", 50, "srv.cpu", 60))

	// A second cleanup within the cache window is skipped entirely.
	require.NoError(t, store.SaveMetricValue(ctx, "srv.cpu", 110, 1))
	require.NoError(t, store.CleanupMetricValues(ctx, "srv.cpu", 500, "srv.cpu", 60))

	values, err := store.GetMetricValues(ctx, "srv.cpu", 0, 1000)
	require.NoError(t, err)
	assert.Len(t, values, 2, "values survive the deduplicated cleanup")

	// Without a cache key the eviction always runs.
	require.NoError(t, store.CleanupMetricValues(ctx, "srv.cpu", 500, "", 0))
	values, err = store.GetMetricValues(ctx, "srv.cpu", 0, 1000)
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestStore_CleanupMetricValues_RunsAgainAfterExpiry(t *testing.T) {
	mr, store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveMetricValue(ctx, "srv.cpu", 100, 1))
	require.NoError(t, store.CleanupMetricValues(ctx, "srv.cpu", 50, "srv.cpu", 60))

	mr.FastForward(61 * time.Second)

	require.NoError(t, store.CleanupMetricValues(ctx, "srv.cpu", 500, "srv.cpu", 60))
	values, err := store.GetMetricValues(ctx, "srv.cpu", 0, 1000)
	require.NoError(t, err)
	assert.Empty(t, values)
}
