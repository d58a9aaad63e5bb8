package models

// MetricState is the last evaluated state of a single metric.
type MetricState struct {
	State          State    `json:"state"`
	Timestamp      int64    `json:"timestamp"`
	Value          *float64 `json:"value,omitempty"`
	Suppressed     bool     `json:"suppressed,omitempty"`
	EventTimestamp int64    `json:"event_timestamp,omitempty"`
}

// CheckData is the persisted snapshot of one trigger check. Timestamp is
// the watermark up to which evaluation has durably progressed.
type CheckData struct {
	Metrics        map[string]*MetricState `json:"metrics"`
	State          State                   `json:"state"`
	Timestamp      int64                   `json:"timestamp"`
	EventTimestamp int64                   `json:"event_timestamp,omitempty"`
	Suppressed     bool                    `json:"suppressed,omitempty"`
	Message        string                  `json:"msg,omitempty"`
}

// NewCheckData returns an empty snapshot at the given state and watermark.
func NewCheckData(state State, timestamp int64) *CheckData {
	return &CheckData{
		Metrics:   make(map[string]*MetricState),
		State:     state,
		Timestamp: timestamp,
	}
}

// MetricSeed returns the stored state for metric name, or a synthetic
// NODATA seed at defaultTimestamp when the metric has not been seen yet.
func (c *CheckData) MetricSeed(name string, defaultTimestamp int64) MetricState {
	if m, ok := c.Metrics[name]; ok && m != nil {
		return *m
	}
	return MetricState{State: StateNODATA, Timestamp: defaultTimestamp}
}
