package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/aversant/checker/internal/models"
)

// Key layout. Everything the checker persists lives under "checker:".
const (
	triggerKeyPrefix    = "checker:trigger:"
	triggerIndexKey     = "checker:triggers"
	tagKeyPrefix        = "checker:tag:"
	lastCheckKeySuffix  = ":last-check"
	eventsKey           = "checker:events"
	metricDataKeyPrefix = "checker:metric:data:"
	metricIndexKey      = "checker:metrics"
	cleanupKeyPrefix    = "checker:cleanup:"
)

// Store is the Redis-backed persistence layer: trigger definitions,
// tag maintenance flags, last-check snapshots, the event queue and raw
// metric-value retention.
type Store struct {
	client *redis.Client
	logger *zap.Logger
}

// NewStore creates a store over an established Redis client.
func NewStore(client *redis.Client, logger *zap.Logger) *Store {
	return &Store{
		client: client,
		logger: logger,
	}
}

func triggerKey(id string) string   { return triggerKeyPrefix + id }
func lastCheckKey(id string) string { return triggerKeyPrefix + id + lastCheckKeySuffix }
func tagKey(name string) string     { return tagKeyPrefix + name }
func metricDataKey(name string) string {
	return metricDataKeyPrefix + name
}

// GetTrigger loads a trigger definition. A deleted trigger is not an
// error: the result is (nil, nil).
func (s *Store) GetTrigger(ctx context.Context, id string) (*models.Trigger, error) {
	if id == "" {
		return nil, fmt.Errorf("trigger id is required")
	}
	val, err := s.client.Get(ctx, triggerKey(id)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trigger %s: %w", id, err)
	}
	var trigger models.Trigger
	if err := json.Unmarshal([]byte(val), &trigger); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trigger %s: %w", id, err)
	}
	trigger.ID = id
	return &trigger, nil
}

// SaveTrigger stores a trigger definition and indexes its ID.
func (s *Store) SaveTrigger(ctx context.Context, trigger *models.Trigger) error {
	if trigger == nil || trigger.ID == "" {
		return fmt.Errorf("trigger with id is required")
	}
	data, err := json.Marshal(trigger)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger %s: %w", trigger.ID, err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, triggerKey(trigger.ID), data, 0)
	pipe.SAdd(ctx, triggerIndexKey, trigger.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save trigger %s: %w", trigger.ID, err)
	}
	return nil
}

// DeleteTrigger removes a trigger definition, its snapshot and its
// index entry.
func (s *Store) DeleteTrigger(ctx context.Context, id string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, triggerKey(id))
	pipe.Del(ctx, lastCheckKey(id))
	pipe.SRem(ctx, triggerIndexKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete trigger %s: %w", id, err)
	}
	return nil
}

// GetTriggerIDs returns all known trigger IDs, sorted.
func (s *Store) GetTriggerIDs(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, triggerIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get trigger ids: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// GetTag returns the flags stored for a tag. An unknown tag has zero
// flags.
func (s *Store) GetTag(ctx context.Context, name string) (models.TagData, error) {
	val, err := s.client.Get(ctx, tagKey(name)).Result()
	if err == redis.Nil {
		return models.TagData{}, nil
	}
	if err != nil {
		return models.TagData{}, fmt.Errorf("failed to get tag %s: %w", name, err)
	}
	var tag models.TagData
	if err := json.Unmarshal([]byte(val), &tag); err != nil {
		return models.TagData{}, fmt.Errorf("failed to unmarshal tag %s: %w", name, err)
	}
	return tag, nil
}

// SetTagMaintenance flips the maintenance flag on a tag.
func (s *Store) SetTagMaintenance(ctx context.Context, name string, maintenance bool) error {
	data, err := json.Marshal(models.TagData{Maintenance: maintenance})
	if err != nil {
		return fmt.Errorf("failed to marshal tag %s: %w", name, err)
	}
	if err := s.client.Set(ctx, tagKey(name), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set tag %s: %w", name, err)
	}
	return nil
}

// GetTriggerLastCheck loads the persisted snapshot for a trigger, or
// (nil, nil) when the trigger was never checked.
func (s *Store) GetTriggerLastCheck(ctx context.Context, id string) (*models.CheckData, error) {
	val, err := s.client.Get(ctx, lastCheckKey(id)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last check for trigger %s: %w", id, err)
	}
	var check models.CheckData
	if err := json.Unmarshal([]byte(val), &check); err != nil {
		return nil, fmt.Errorf("failed to unmarshal last check for trigger %s: %w", id, err)
	}
	if check.Metrics == nil {
		check.Metrics = make(map[string]*models.MetricState)
	}
	return &check, nil
}

// SetTriggerLastCheck persists the snapshot produced by one check.
func (s *Store) SetTriggerLastCheck(ctx context.Context, id string, check *models.CheckData) error {
	if check == nil {
		return fmt.Errorf("check data is required")
	}
	data, err := json.Marshal(check)
	if err != nil {
		return fmt.Errorf("failed to marshal last check for trigger %s: %w", id, err)
	}
	if err := s.client.Set(ctx, lastCheckKey(id), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set last check for trigger %s: %w", id, err)
	}
	return nil
}

// PushEvent appends an event to the notification queue.
func (s *Store) PushEvent(ctx context.Context, event *models.Event) error {
	if event == nil {
		return fmt.Errorf("event is required")
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := s.client.LPush(ctx, eventsKey, data).Err(); err != nil {
		return fmt.Errorf("failed to push event: %w", err)
	}
	return nil
}

// PopEvent takes the oldest queued event, or (nil, nil) when the queue
// is empty.
func (s *Store) PopEvent(ctx context.Context) (*models.Event, error) {
	val, err := s.client.RPop(ctx, eventsKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pop event: %w", err)
	}
	var event models.Event
	if err := json.Unmarshal([]byte(val), &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return &event, nil
}

// EventCount returns the number of queued events.
func (s *Store) EventCount(ctx context.Context) (int64, error) {
	count, err := s.client.LLen(ctx, eventsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

// MetricValue is one retained raw sample of a metric.
type MetricValue struct {
	Timestamp int64
	Value     float64
}

// SaveMetricValue retains one raw sample and indexes the metric name.
func (s *Store) SaveMetricValue(ctx context.Context, metric string, ts int64, value float64) error {
	if metric == "" {
		return fmt.Errorf("metric name is required")
	}
	member := fmt.Sprintf("%d:%s", ts, strconv.FormatFloat(value, 'f', -1, 64))
	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, metricDataKey(metric), &redis.Z{Score: float64(ts), Member: member})
	pipe.SAdd(ctx, metricIndexKey, metric)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save value for metric %s: %w", metric, err)
	}
	return nil
}

// GetMetricValues returns retained samples of a metric with timestamps
// in [from, until], oldest first.
func (s *Store) GetMetricValues(ctx context.Context, metric string, from, until int64) ([]MetricValue, error) {
	members, err := s.client.ZRangeByScore(ctx, metricDataKey(metric), &redis.ZRangeBy{
		Min: strconv.FormatInt(from, 10),
		Max: strconv.FormatInt(until, 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get values for metric %s: %w", metric, err)
	}
	values := make([]MetricValue, 0, len(members))
	for _, member := range members {
		parts := strings.SplitN(member, ":", 2)
		if len(parts) != 2 {
			continue
		}
		ts, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			continue
		}
		value, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			continue
		}
		values = append(values, MetricValue{Timestamp: ts, Value: value})
	}
	return values, nil
}

// HasMetric reports whether the metric name is indexed.
func (s *Store) HasMetric(ctx context.Context, metric string) (bool, error) {
	known, err := s.client.SIsMember(ctx, metricIndexKey, metric).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check metric %s: %w", metric, err)
	}
	return known, nil
}

// CleanupMetricValues evicts retained samples strictly older than
// olderThan. The eviction is deduplicated per cacheKey: at most one
// eviction per cacheTTL seconds, since many triggers share metrics
// within one check interval. Skipping is a throughput optimization,
// not a correctness requirement.
func (s *Store) CleanupMetricValues(ctx context.Context, metric string, olderThan int64, cacheKey string, cacheTTL int64) error {
	if cacheKey != "" && cacheTTL > 0 {
		acquired, err := s.client.SetNX(ctx, cleanupKeyPrefix+cacheKey, "1",
			time.Duration(cacheTTL)*time.Second).Result()
		if err != nil {
			return fmt.Errorf("failed to acquire cleanup lock for %s: %w", metric, err)
		}
		if !acquired {
			return nil
		}
	}
	err := s.client.ZRemRangeByScore(ctx, metricDataKey(metric),
		"-inf", "("+strconv.FormatInt(olderThan, 10)).Err()
	if err != nil {
		return fmt.Errorf("failed to cleanup values for metric %s: %w", metric, err)
	}
	return nil
}

// GetTargets returns all known metric names, sorted.
func (s *Store) GetTargets(ctx context.Context) ([]string, error) {
	metrics, err := s.client.SMembers(ctx, metricIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get targets: %w", err)
	}
	sort.Strings(metrics)
	return metrics, nil
}
