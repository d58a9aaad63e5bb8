// Package source resolves trigger target expressions into named time
// series, either from the store's local metric retention or from a
// remote Graphite render API.
package source

import (
	"context"
	"sort"
	"sync"

	"github.com/aversant/checker/internal/models"
)

// Source resolves one target expression into zero or more series over
// the context's request window.
type Source interface {
	EvaluateTarget(ctx context.Context, reqCtx *RequestContext, target string) ([]*models.TimeSeries, error)
}

// RequestContext is the fetch window of one check invocation. It also
// accumulates the raw metric names touched while resolving targets, so
// the checker can fan out retention cleanup afterwards.
type RequestContext struct {
	From  int64
	Until int64

	mu      sync.Mutex
	metrics map[string]struct{}
}

// NewRequestContext creates a request context for [from, until].
func NewRequestContext(from, until int64) *RequestContext {
	return &RequestContext{
		From:    from,
		Until:   until,
		metrics: make(map[string]struct{}),
	}
}

// RecordMetric remembers a raw metric name touched by a fetch.
func (rc *RequestContext) RecordMetric(name string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.metrics[name] = struct{}{}
}

// Metrics returns the touched metric names, sorted.
func (rc *RequestContext) Metrics() []string {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	names := make([]string, 0, len(rc.metrics))
	for name := range rc.metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
