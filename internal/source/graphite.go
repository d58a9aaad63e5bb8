package source

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/aversant/checker/internal/models"
)

const defaultGraphiteStep = 60

// GraphiteSource fetches series from a remote Graphite render API.
type GraphiteSource struct {
	client *resty.Client
	logger *zap.Logger
}

// NewGraphiteSource creates a source against baseURL (e.g.
// "http://graphite:8080").
func NewGraphiteSource(baseURL string, timeout time.Duration, logger *zap.Logger) *GraphiteSource {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout)
	return &GraphiteSource{
		client: client,
		logger: logger,
	}
}

// renderSeries is one series in the render API's JSON response.
// Datapoints are [value, timestamp] pairs; value may be null.
type renderSeries struct {
	Target     string       `json:"target"`
	Datapoints [][]*float64 `json:"datapoints"`
}

// EvaluateTarget resolves target via GET /render.
func (s *GraphiteSource) EvaluateTarget(ctx context.Context, reqCtx *RequestContext, target string) ([]*models.TimeSeries, error) {
	if target == "" {
		return nil, fmt.Errorf("target is required")
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"target": target,
			"from":   strconv.FormatInt(reqCtx.From, 10),
			"until":  strconv.FormatInt(reqCtx.Until, 10),
			"format": "json",
		}).
		Get("/render")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch target %q: %w", target, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("failed to fetch target %q: render API returned %s", target, resp.Status())
	}

	var rendered []renderSeries
	if err := json.Unmarshal(resp.Body(), &rendered); err != nil {
		return nil, fmt.Errorf("failed to decode render response for target %q: %w", target, err)
	}

	series := make([]*models.TimeSeries, 0, len(rendered))
	for _, r := range rendered {
		converted, err := convertRenderSeries(r)
		if err != nil {
			return nil, fmt.Errorf("failed to convert series %q: %w", r.Target, err)
		}
		reqCtx.RecordMetric(r.Target)
		series = append(series, converted)
	}
	return series, nil
}

func convertRenderSeries(r renderSeries) (*models.TimeSeries, error) {
	series := &models.TimeSeries{
		Name: r.Target,
		Step: defaultGraphiteStep,
	}
	for i, dp := range r.Datapoints {
		if len(dp) != 2 || dp[1] == nil {
			return nil, fmt.Errorf("malformed datapoint at index %d", i)
		}
		ts := int64(*dp[1])
		if i == 0 {
			series.Start = ts
		} else if i == 1 && ts > series.Start {
			series.Step = ts - series.Start
		}
		series.Values = append(series.Values, dp[0])
	}
	return series, nil
}
