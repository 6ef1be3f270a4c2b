package models

import "fmt"

// DocStatus is the three-valued submission status underlying every
// workflow state. It only ever moves forward: Draft to Submitted,
// Submitted to Cancelled. Cancelled is terminal.
type DocStatus int

const (
	DocStatusDraft     DocStatus = 0
	DocStatusSubmitted DocStatus = 1
	DocStatusCancelled DocStatus = 2
)

var docStatusNames = map[DocStatus]string{
	DocStatusDraft:     "draft",
	DocStatusSubmitted: "submitted",
	DocStatusCancelled: "cancelled",
}

func (d DocStatus) String() string {
	name, ok := docStatusNames[d]
	if !ok {
		return fmt.Sprintf("docstatus(%d)", int(d))
	}

	return name
}

// Valid reports whether d is one of the three defined values.
func (d DocStatus) Valid() bool {
	_, ok := docStatusNames[d]

	return ok
}

// LegalEdge reports whether a transition may move a record from one
// docstatus to another. Staying on the same value is always legal.
// The only legal value changes are Draft to Submitted and Submitted
// to Cancelled; cancellation must pass through Submitted, a submitted
// record can never revert to Draft, and nothing leaves Cancelled.
func LegalEdge(from, to DocStatus) bool {
	if from == DocStatusCancelled {
		return false
	}

	if from == to {
		return true
	}

	switch {
	case from == DocStatusDraft && to == DocStatusSubmitted:
		return true
	case from == DocStatusSubmitted && to == DocStatusCancelled:
		return true
	default:
		return false
	}
}
