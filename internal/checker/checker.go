// Package checker evaluates triggers: it fetches and aligns the target
// series, walks the evaluation window point by point, applies the
// trigger expression, tracks per-metric state and emits state-change
// events subject to maintenance and schedule suppression.
package checker

import (
	"go.uber.org/zap"

	"github.com/aversant/checker/internal/expression"
	"github.com/aversant/checker/internal/repository"
	"github.com/aversant/checker/internal/source"
)

const (
	// defaultMetricsTTL bounds how long raw metric values are retained.
	defaultMetricsTTL = 3600
	// defaultCacheTTL dedups retention cleanup across triggers sharing
	// a metric.
	defaultCacheTTL = 60
	// checkPointGap is the lookback absorbing source latency and jitter.
	checkPointGap = 600
)

// Checker runs trigger checks. Invocations for different trigger IDs
// may run concurrently; the caller must serialize invocations for the
// same trigger ID.
type Checker struct {
	store      *repository.Store
	source     source.Source
	expression *expression.Evaluator
	archive    *repository.EventArchive // optional
	metricsTTL int64
	logger     *zap.Logger
}

// New creates a checker. archive may be nil; metricsTTL <= 0 selects
// the default retention bound.
func New(
	store *repository.Store,
	src source.Source,
	eval *expression.Evaluator,
	archive *repository.EventArchive,
	metricsTTL int64,
	logger *zap.Logger,
) *Checker {
	if metricsTTL <= 0 {
		metricsTTL = defaultMetricsTTL
	}
	return &Checker{
		store:      store,
		source:     src,
		expression: eval,
		archive:    archive,
		metricsTTL: metricsTTL,
		logger:     logger,
	}
}
