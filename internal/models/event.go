package models

// Event is a notifiable state transition, appended to the store's event
// queue. Metric is empty for trigger-level transitions (no-metrics and
// evaluation-exception paths).
type Event struct {
	TriggerID string   `json:"trigger_id"`
	Metric    string   `json:"metric,omitempty"`
	State     State    `json:"state"`
	OldState  State    `json:"old_state"`
	Timestamp int64    `json:"timestamp"`
	Value     *float64 `json:"value,omitempty"`
}
