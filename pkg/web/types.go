// Package web provides HTTP handlers and REST API endpoints for the
// workflow service.
package web

import "github.com/docflow/docflow/pkg/models"

// CreateRecordRequest is the request body for creating a record. The
// record starts in the workflow's initial draft state; state and
// docstatus are never writable through the API.
type CreateRecordRequest struct {
	Fields map[string]any `json:"fields"`
}

// TransitionResponse is the discovery view of one executable
// transition.
type TransitionResponse struct {
	Action  string `json:"action"`
	ToState string `json:"to_state"`
}

// DefinitionResponse is the read view of a workflow definition.
type DefinitionResponse struct {
	RecordType  string                  `json:"record_type"`
	States      []*models.WorkflowState `json:"states"`
	Transitions []*models.Transition    `json:"transitions"`
	Unreachable []string                `json:"unreachable_states,omitempty"`
}
