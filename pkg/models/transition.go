package models

// Transition is a directed, role-gated edge between two workflow
// states, triggered by a named action. The (FromState, Action) pair is
// unique within a definition; resolution by action name is therefore
// unambiguous.
type Transition struct {
	FromState         string `json:"from_state"         validate:"required"`
	ToState           string `json:"to_state"           validate:"required"`
	Action            string `json:"action"             validate:"required"`
	AllowedRole       string `json:"allowed_role"`
	AllowSelfApproval bool   `json:"allow_self_approval,omitempty"`
	Condition         string `json:"condition,omitempty"`
}
