package models

// TimeSeries is one named series produced by a series source: samples at
// Start, Start+Step, Start+2*Step, ... where a nil value means the slot
// has no data. Fetched fresh every check, never cached by the checker.
type TimeSeries struct {
	Name   string
	Start  int64 // unix seconds of the first slot
	Step   int64 // seconds between slots
	Values []*float64
}

// ValueAt returns the sample covering timestamp ts, or nil when the
// series has no data there (before Start, past the end, or an empty
// slot).
func (t *TimeSeries) ValueAt(ts int64) *float64 {
	if t.Step <= 0 {
		return nil
	}
	idx := (ts - t.Start) / t.Step
	if idx < 0 || idx >= int64(len(t.Values)) {
		return nil
	}
	return t.Values[idx]
}
