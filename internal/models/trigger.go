package models

import "time"

// Trigger is a user-defined alerting condition over one or more
// time-series targets. Loaded fresh from the store on every check and
// treated as immutable for that invocation.
type Trigger struct {
	ID         string        `json:"id"`
	Name       string        `json:"name,omitempty"`
	Targets    []string      `json:"targets"`
	Expression string        `json:"expression,omitempty"`
	WarnValue  *float64      `json:"warn_value,omitempty"`
	ErrorValue *float64      `json:"error_value,omitempty"`
	TTL        int64         `json:"ttl,omitempty"` // seconds; 0 disables staleness handling
	TTLState   State         `json:"ttl_state,omitempty"`
	Schedule   *ScheduleData `json:"sched,omitempty"`
	Tags       []string      `json:"tags,omitempty"`
}

// StaleState returns the state a stale or absent metric falls into.
func (t *Trigger) StaleState() State {
	if t.TTLState == "" {
		return StateNODATA
	}
	return t.TTLState
}

// ScheduleDay is one weekday's enabled flag. Days are ordered
// Monday-first, matching the stored schedule layout.
type ScheduleDay struct {
	Name    string `json:"name,omitempty"`
	Enabled bool   `json:"enabled"`
}

// ScheduleData is a recurring weekly time-of-day window during which
// notifications are allowed. Offsets are minutes.
type ScheduleData struct {
	TimezoneOffset int64         `json:"tzOffset"`
	StartOffset    int64         `json:"startOffset"`
	EndOffset      int64         `json:"endOffset"`
	Days           []ScheduleDay `json:"days"`
}

// Allows reports whether ts (unix seconds) falls inside the schedule
// window. A nil schedule always allows.
func (s *ScheduleData) Allows(ts int64) bool {
	if s == nil {
		return true
	}
	local := ts - ts%60 - s.TimezoneOffset*60
	// Go weeks start on Sunday, the schedule is Monday-first.
	weekday := (int(time.Unix(local, 0).UTC().Weekday()) + 6) % 7
	if weekday >= len(s.Days) || !s.Days[weekday].Enabled {
		return false
	}
	dayStart := local - local%86400
	start := dayStart + s.StartOffset*60
	end := dayStart + s.EndOffset*60
	return local >= start && local <= end
}
