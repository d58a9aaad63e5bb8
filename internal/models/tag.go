package models

// TagData carries store-side flags attached to a tag name. A trigger is
// in maintenance when any of its tags has Maintenance set.
type TagData struct {
	Maintenance bool `json:"maintenance,omitempty"`
}
