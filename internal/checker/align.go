package checker

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aversant/checker/internal/models"
	"github.com/aversant/checker/internal/source"
)

// seededSeries pairs a fetched series with the last-state seed it is
// walked against. The seed is the snapshot entry for the series name,
// or a synthetic NODATA state at the series start.
type seededSeries struct {
	series *models.TimeSeries
	seed   models.MetricState
}

// fetchTriggerSeries resolves every trigger target over the request
// window and keys the results "t1".."tN". The primary target may
// produce any number of series; every secondary target must produce
// exactly one, anything else is a configuration error that fails the
// invocation.
func (c *Checker) fetchTriggerSeries(
	ctx context.Context,
	reqCtx *source.RequestContext,
	trigger *models.Trigger,
	lastCheck *models.CheckData,
) (map[string][]*seededSeries, error) {
	result := make(map[string][]*seededSeries, len(trigger.Targets))

	for i, target := range trigger.Targets {
		targetNumber := i + 1
		series, err := c.source.EvaluateTarget(ctx, reqCtx, target)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate target t%d: %w", targetNumber, err)
		}
		if targetNumber > 1 {
			if len(series) == 0 {
				return nil, fmt.Errorf("target t%d has no timeseries", targetNumber)
			}
			if len(series) > 1 {
				return nil, fmt.Errorf("target t%d has more than one timeseries", targetNumber)
			}
		}

		seeded := make([]*seededSeries, 0, len(series))
		for _, s := range series {
			seeded = append(seeded, &seededSeries{
				series: s,
				seed:   lastCheck.MetricSeed(s.Name, s.Start),
			})
		}
		result["t"+strconv.Itoa(targetNumber)] = seeded
	}
	return result, nil
}
