package source

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/aversant/checker/internal/models"
	"github.com/aversant/checker/internal/repository"
)

// LocalSource serves series from the store's raw metric-value retention.
// A target is a metric name, optionally with graphite-style wildcards
// per dot-separated segment.
type LocalSource struct {
	store  *repository.Store
	step   int64
	logger *zap.Logger
}

// NewLocalSource creates a local source. step is the slot width in
// seconds applied when aligning raw samples.
func NewLocalSource(store *repository.Store, step int64, logger *zap.Logger) *LocalSource {
	if step <= 0 {
		step = 60
	}
	return &LocalSource{
		store:  store,
		step:   step,
		logger: logger,
	}
}

// EvaluateTarget resolves target into aligned series, one per matched
// metric name, sorted by name. Unknown names resolve to no series.
func (s *LocalSource) EvaluateTarget(ctx context.Context, reqCtx *RequestContext, target string) ([]*models.TimeSeries, error) {
	names, err := s.resolve(ctx, target)
	if err != nil {
		return nil, err
	}

	series := make([]*models.TimeSeries, 0, len(names))
	for _, name := range names {
		reqCtx.RecordMetric(name)
		values, err := s.store.GetMetricValues(ctx, name, reqCtx.From, reqCtx.Until)
		if err != nil {
			return nil, err
		}
		series = append(series, s.alignValues(name, reqCtx, values))
	}
	return series, nil
}

func (s *LocalSource) resolve(ctx context.Context, target string) ([]string, error) {
	if target == "" {
		return nil, fmt.Errorf("target is required")
	}
	if !strings.ContainsAny(target, "*?[") {
		known, err := s.store.HasMetric(ctx, target)
		if err != nil {
			return nil, err
		}
		if !known {
			return nil, nil
		}
		return []string{target}, nil
	}

	all, err := s.store.GetTargets(ctx)
	if err != nil {
		return nil, err
	}
	matched := make([]string, 0, len(all))
	for _, name := range all {
		if matchTarget(target, name) {
			matched = append(matched, name)
		}
	}
	sort.Strings(matched)
	return matched, nil
}

// alignValues slots raw samples into a series covering the request
// window. Later samples win within one slot.
func (s *LocalSource) alignValues(name string, reqCtx *RequestContext, values []repository.MetricValue) *models.TimeSeries {
	start := reqCtx.From - reqCtx.From%s.step
	length := (reqCtx.Until-start)/s.step + 1
	if length < 1 {
		length = 1
	}
	series := &models.TimeSeries{
		Name:   name,
		Start:  start,
		Step:   s.step,
		Values: make([]*float64, length),
	}
	for _, v := range values {
		idx := (v.Timestamp - start) / s.step
		if idx < 0 || idx >= length {
			continue
		}
		value := v.Value
		series.Values[idx] = &value
	}
	return series
}

// matchTarget matches graphite-style patterns segment by segment, so a
// wildcard never crosses a dot.
func matchTarget(pattern, name string) bool {
	patternParts := strings.Split(pattern, ".")
	nameParts := strings.Split(name, ".")
	if len(patternParts) != len(nameParts) {
		return false
	}
	for i := range patternParts {
		ok, err := path.Match(patternParts[i], nameParts[i])
		if err != nil || !ok {
			return false
		}
	}
	return true
}
