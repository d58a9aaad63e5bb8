package checker

import (
	"context"

	"go.uber.org/zap"

	"github.com/aversant/checker/internal/models"
)

// statePair is the running last-state of one comparison scope, either a
// single metric or the whole trigger. The suppressed flag stays at its
// seeded value for the lifetime of a walk; only the state advances.
type statePair struct {
	state      models.State
	suppressed bool
}

// compareState decides whether the transition from last to current is
// notifiable and, if so, emits an event unless maintenance or the
// trigger schedule suppresses it. A still-abnormal state whose previous
// transition was suppressed is re-attempted on every point, so one
// suppressed sample never silences an incident for good. The running
// last state is advanced unconditionally; only emission is gated.
func (c *Checker) compareState(
	ctx context.Context,
	trigger *models.Trigger,
	maintenance bool,
	current *models.MetricState,
	last *statePair,
	timestamp int64,
	metric string,
) error {
	notifiable := current.State != last.state ||
		(last.suppressed && current.State != models.StateOK)
	if notifiable {
		current.EventTimestamp = timestamp
		event := &models.Event{
			TriggerID: trigger.ID,
			Metric:    metric,
			State:     current.State,
			OldState:  last.state,
			Timestamp: timestamp,
			Value:     current.Value,
		}

		switch {
		case !trigger.Schedule.Allows(timestamp):
			current.Suppressed = true
			c.logger.Info("Event suppressed by trigger schedule",
				zap.String("trigger_id", trigger.ID),
				zap.String("metric", metric),
				zap.String("state", string(current.State)),
			)
		case maintenance:
			current.Suppressed = true
			c.logger.Info("Event suppressed by maintenance",
				zap.String("trigger_id", trigger.ID),
				zap.String("metric", metric),
				zap.String("state", string(current.State)),
			)
		default:
			c.logger.Info("Writing new event",
				zap.String("trigger_id", trigger.ID),
				zap.String("metric", metric),
				zap.String("old_state", string(last.state)),
				zap.String("state", string(current.State)),
				zap.Int64("timestamp", timestamp),
			)
			if err := c.store.PushEvent(ctx, event); err != nil {
				return err
			}
			c.archiveEvent(ctx, event)
			current.Suppressed = false
		}
	}
	last.state = current.State
	return nil
}

// compareTriggerState runs the comparator at trigger scope, viewing the
// snapshot's state and suppressed flag as the uniform state pair.
func (c *Checker) compareTriggerState(
	ctx context.Context,
	trigger *models.Trigger,
	maintenance bool,
	check *models.CheckData,
	lastCheck *models.CheckData,
	timestamp int64,
) error {
	current := models.MetricState{State: check.State, Timestamp: check.Timestamp}
	last := statePair{state: lastCheck.State, suppressed: lastCheck.Suppressed}
	if err := c.compareState(ctx, trigger, maintenance, &current, &last, timestamp, ""); err != nil {
		return err
	}
	check.Suppressed = current.Suppressed
	check.EventTimestamp = current.EventTimestamp
	return nil
}

// archiveEvent mirrors a pushed event into the relational archive.
// Archive failures are logged, never fatal for the check.
func (c *Checker) archiveEvent(ctx context.Context, event *models.Event) {
	if c.archive == nil {
		return
	}
	if _, err := c.archive.CreateEvent(ctx, event); err != nil {
		c.logger.Error("Failed to archive event",
			zap.String("trigger_id", event.TriggerID),
			zap.String("metric", event.Metric),
			zap.Error(err),
		)
	}
}
