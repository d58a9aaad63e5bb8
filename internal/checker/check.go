package checker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/aversant/checker/internal/expression"
	"github.com/aversant/checker/internal/models"
	"github.com/aversant/checker/internal/source"
)

// CheckOptions tune one invocation. Zero values select the defaults:
// Now = wall clock, From = the persisted watermark, CacheTTL = 60s.
type CheckOptions struct {
	Now      int64
	From     int64
	CacheTTL int64
}

// Check runs one check invocation for triggerID. A missing trigger is a
// benign no-op. Evaluation failures are contained: they surface as a
// persisted EXCEPTION state, not as a returned error. Errors are only
// returned when the store itself fails around the invocation.
func (c *Checker) Check(ctx context.Context, triggerID string, opts CheckOptions) error {
	now := opts.Now
	if now == 0 {
		now = time.Now().Unix()
	}
	cacheTTL := opts.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = defaultCacheTTL
	}

	c.logger.Debug("Checking trigger", zap.String("trigger_id", triggerID))

	trigger, err := c.store.GetTrigger(ctx, triggerID)
	if err != nil {
		return err
	}
	if trigger == nil {
		// Deleted concurrently; nothing to persist.
		c.logger.Debug("Trigger not found, skipping check",
			zap.String("trigger_id", triggerID),
		)
		return nil
	}

	maintenance := false
	for _, tag := range trigger.Tags {
		tagData, err := c.store.GetTag(ctx, tag)
		if err != nil {
			return err
		}
		if tagData.Maintenance {
			maintenance = true
			break
		}
	}

	lastCheck, err := c.store.GetTriggerLastCheck(ctx, triggerID)
	if err != nil {
		return err
	}
	fromTime := opts.From
	if lastCheck == nil {
		watermark := fromTime
		if watermark == 0 {
			watermark = now
		}
		lastCheck = models.NewCheckData(models.StateNODATA, watermark-checkPointGap)
	}
	if fromTime == 0 {
		fromTime = lastCheck.Timestamp
	}

	reqCtx := source.NewRequestContext(fromTime-checkPointGap, now)
	check := models.NewCheckData(models.StateOK, now)

	if err := c.evaluate(ctx, trigger, lastCheck, maintenance, reqCtx, now, cacheTTL, check); err != nil {
		c.logger.Error("Trigger evaluation failed",
			zap.String("trigger_id", triggerID),
			zap.Error(err),
		)
		check.State = models.StateEXCEPTION
		check.Message = "Trigger evaluation exception"
		if cmpErr := c.compareTriggerState(ctx, trigger, maintenance, check, lastCheck, now); cmpErr != nil {
			c.logger.Error("Failed to compare trigger state",
				zap.String("trigger_id", triggerID),
				zap.Error(cmpErr),
			)
		}
	}

	if err := c.store.SetTriggerLastCheck(ctx, triggerID, check); err != nil {
		return fmt.Errorf("failed to persist check for trigger %s: %w", triggerID, err)
	}
	return nil
}

// evaluate performs the fetch, cleanup fan-out and per-series window
// walk. Any returned error forces the invocation into the EXCEPTION
// state.
func (c *Checker) evaluate(
	ctx context.Context,
	trigger *models.Trigger,
	lastCheck *models.CheckData,
	maintenance bool,
	reqCtx *source.RequestContext,
	now int64,
	cacheTTL int64,
	check *models.CheckData,
) error {
	triggerSeries, err := c.fetchTriggerSeries(ctx, reqCtx, trigger, lastCheck)
	if err != nil {
		return err
	}

	for _, metric := range reqCtx.Metrics() {
		if err := c.store.CleanupMetricValues(ctx, metric, now-c.metricsTTL, metric, cacheTTL); err != nil {
			return err
		}
	}

	if len(triggerSeries["t1"]) == 0 {
		if trigger.TTL != 0 {
			check.State = trigger.StaleState()
			check.Message = "Trigger has no metrics"
			return c.compareTriggerState(ctx, trigger, maintenance, check, lastCheck, now)
		}
		return nil
	}

	for _, t1 := range triggerSeries["t1"] {
		if err := c.walkSeries(ctx, trigger, maintenance, triggerSeries, t1, lastCheck, now, check); err != nil {
			return err
		}
	}
	return nil
}

// walkSeries walks one primary series over the candidate timestamps
// from its start to now, evaluating every aligned point past the
// watermark and applying staleness transitions. The snapshot holds a
// pointer to the walked state, so progress made before a failure stays
// in the persisted snapshot, matching the events already flushed.
func (c *Checker) walkSeries(
	ctx context.Context,
	trigger *models.Trigger,
	maintenance bool,
	triggerSeries map[string][]*seededSeries,
	t1 *seededSeries,
	lastCheck *models.CheckData,
	now int64,
	check *models.CheckData,
) error {
	step := t1.series.Step
	if step <= 0 {
		return fmt.Errorf("series %s has invalid step %d", t1.series.Name, step)
	}

	metricState := t1.seed
	ms := &metricState
	last := &statePair{state: t1.seed.State, suppressed: t1.seed.Suppressed}
	check.Metrics[t1.series.Name] = ms

	for v := t1.series.Start; v < now+step; v += step {
		if v <= t1.seed.Timestamp {
			continue
		}

		if trigger.TTL != 0 && v+trigger.TTL < lastCheck.Timestamp {
			c.logger.Info("Metric TTL expired",
				zap.String("trigger_id", trigger.ID),
				zap.String("metric", t1.series.Name),
				zap.Int64("timestamp", v),
			)
			ms.State = trigger.StaleState()
			ms.Timestamp = v + trigger.TTL
			ms.Value = nil
			if err := c.compareState(ctx, trigger, maintenance, ms, last, v+trigger.TTL, t1.series.Name); err != nil {
				return err
			}
			continue
		}

		values := make(map[string]float64, len(triggerSeries))
		aligned := true
		for n := 1; n <= len(triggerSeries); n++ {
			name := "t" + strconv.Itoa(n)
			s := t1.series
			if n > 1 {
				s = triggerSeries[name][0].series
			}
			value := s.ValueAt(v)
			if value == nil {
				// No sample yet; re-attempted once the watermark advances.
				aligned = false
				break
			}
			values[name] = *value
		}
		if !aligned {
			continue
		}

		t1Value := values["t1"]
		state, err := c.expression.Evaluate(trigger.Expression, expression.Params{
			TargetValues:  values,
			WarnValue:     trigger.WarnValue,
			ErrorValue:    trigger.ErrorValue,
			PreviousState: ms.State,
		})
		if err != nil {
			return err
		}
		ms.State = state
		ms.Value = &t1Value
		ms.Timestamp = v
		if err := c.compareState(ctx, trigger, maintenance, ms, last, v, t1.series.Name); err != nil {
			return err
		}
	}

	// A metric that stopped reporting entirely goes stale after the walk.
	if trigger.TTL != 0 && ms.Timestamp+trigger.TTL < lastCheck.Timestamp {
		c.logger.Info("Metric TTL expired after walk",
			zap.String("trigger_id", trigger.ID),
			zap.String("metric", t1.series.Name),
			zap.Int64("timestamp", ms.Timestamp),
		)
		ms.State = trigger.StaleState()
		ms.Timestamp += trigger.TTL
		ms.Value = nil
		if err := c.compareState(ctx, trigger, maintenance, ms, last, ms.Timestamp, t1.series.Name); err != nil {
			return err
		}
	}
	return nil
}
