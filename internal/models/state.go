package models

// State classifies the health of a metric or trigger at a point in time.
type State string

const (
	StateOK        State = "OK"
	StateWARN      State = "WARN"
	StateERROR     State = "ERROR"
	StateNODATA    State = "NODATA"
	StateEXCEPTION State = "EXCEPTION"
)

// IsValid reports whether s is one of the known states.
func (s State) IsValid() bool {
	switch s {
	case StateOK, StateWARN, StateERROR, StateNODATA, StateEXCEPTION:
		return true
	}
	return false
}
