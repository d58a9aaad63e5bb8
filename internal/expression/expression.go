package expression

import (
	"fmt"
	"sync"

	"github.com/Knetic/govaluate"

	"github.com/aversant/checker/internal/models"
)

// Params are the named values supplied to a trigger expression.
// TargetValues maps "t1".."tN" to the aligned sample values.
type Params struct {
	TargetValues  map[string]float64
	WarnValue     *float64
	ErrorValue    *float64
	PreviousState models.State
}

// Evaluator turns a trigger formula plus named values into a state.
// Triggers without a formula fall back to plain warn/error thresholds
// on t1. Parsed formulas are cached per expression string.
type Evaluator struct {
	mu    sync.Mutex
	cache map[string]*govaluate.EvaluableExpression
}

// NewEvaluator creates an expression evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{cache: make(map[string]*govaluate.EvaluableExpression)}
}

// Evaluate computes the state for one data point. expr may be empty, in
// which case at least one of warn/error thresholds must be set.
func (e *Evaluator) Evaluate(expr string, params Params) (models.State, error) {
	if expr == "" {
		return thresholdState(params)
	}

	parsed, err := e.parse(expr)
	if err != nil {
		return "", err
	}

	values := map[string]interface{}{
		"OK":         string(models.StateOK),
		"WARN":       string(models.StateWARN),
		"WARNING":    string(models.StateWARN),
		"ERROR":      string(models.StateERROR),
		"NODATA":     string(models.StateNODATA),
		"PREV_STATE": string(params.PreviousState),
	}
	for name, value := range params.TargetValues {
		values[name] = value
	}
	if params.WarnValue != nil {
		values["warn_value"] = *params.WarnValue
	}
	if params.ErrorValue != nil {
		values["error_value"] = *params.ErrorValue
	}

	result, err := parsed.Evaluate(values)
	if err != nil {
		return "", fmt.Errorf("failed to evaluate expression: %w", err)
	}

	state, ok := result.(string)
	if !ok || !models.State(state).IsValid() {
		return "", fmt.Errorf("expression result %v is not a valid state", result)
	}
	return models.State(state), nil
}

func (e *Evaluator) parse(expr string) (*govaluate.EvaluableExpression, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if parsed, ok := e.cache[expr]; ok {
		return parsed, nil
	}
	parsed, err := govaluate.NewEvaluableExpression(expr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse expression %q: %w", expr, err)
	}
	e.cache[expr] = parsed
	return parsed, nil
}

// thresholdState applies the default warn/error threshold rules to t1.
// Thresholds are rising (value >= threshold fires) unless warn is above
// error, in which case they are falling (value <= threshold fires).
func thresholdState(params Params) (models.State, error) {
	value, ok := params.TargetValues["t1"]
	if !ok {
		return "", fmt.Errorf("no value for t1")
	}
	warn, errVal := params.WarnValue, params.ErrorValue
	if warn == nil && errVal == nil {
		return "", fmt.Errorf("trigger has no expression and no warn/error thresholds")
	}

	falling := warn != nil && errVal != nil && *warn > *errVal
	if falling {
		switch {
		case value <= *errVal:
			return models.StateERROR, nil
		case value <= *warn:
			return models.StateWARN, nil
		}
		return models.StateOK, nil
	}
	if errVal != nil && value >= *errVal {
		return models.StateERROR, nil
	}
	if warn != nil && value >= *warn {
		return models.StateWARN, nil
	}
	return models.StateOK, nil
}
