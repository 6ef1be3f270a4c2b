package models

// RoleAll is the sentinel editor role meaning anyone with write
// access to the record may edit it in this state.
const RoleAll = "All"

// WorkflowState is one named stage a record can sit in. Each state
// maps to exactly one docstatus value; several states may share the
// same docstatus with different editor roles.
type WorkflowState struct {
	Name          string    `json:"name"            validate:"required"`
	DocStatus     DocStatus `json:"docstatus"       validate:"min=0,max=2"`
	AllowEditRole string    `json:"allow_edit_role"`
	UpdateField   string    `json:"update_field,omitempty"`
	UpdateValue   any       `json:"update_value,omitempty"`
	Optional      bool      `json:"optional,omitempty"`
	NotifyOnEntry bool      `json:"notify_on_entry,omitempty"`
	Initial       bool      `json:"initial,omitempty"`
}

// HasSideEffect reports whether entering this state updates a record
// field in addition to the state change itself.
func (s *WorkflowState) HasSideEffect() bool {
	return s.UpdateField != ""
}
