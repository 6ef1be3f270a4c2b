package models_test

import (
	"testing"

	"github.com/docflow/docflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func approvalStates() []*models.WorkflowState {
	return []*models.WorkflowState{
		{Name: "Draft", DocStatus: models.DocStatusDraft, AllowEditRole: models.RoleAll},
		{Name: "Pending Approval", DocStatus: models.DocStatusDraft, AllowEditRole: "Manager"},
		{Name: "Approved", DocStatus: models.DocStatusSubmitted, AllowEditRole: "Manager"},
		{Name: "Rejected", DocStatus: models.DocStatusDraft, AllowEditRole: "Manager"},
	}
}

func approvalTransitions() []*models.Transition {
	return []*models.Transition{
		{FromState: "Draft", ToState: "Pending Approval", Action: "submit"},
		{FromState: "Pending Approval", ToState: "Approved", Action: "approve", AllowedRole: "Manager"},
		{FromState: "Pending Approval", ToState: "Rejected", Action: "reject", AllowedRole: "Manager"},
	}
}

func TestLoadDefinition(t *testing.T) {
	def, err := models.LoadDefinition("purchase_order", approvalStates(), approvalTransitions())
	require.NoError(t, err)

	assert.Equal(t, "purchase_order", def.RecordType)
	assert.Equal(t, "Draft", def.InitialState().Name)
	assert.Empty(t, def.Unreachable)

	tr := def.FindTransition("Pending Approval", "approve")
	require.NotNil(t, tr)
	assert.Equal(t, "Approved", tr.ToState)

	assert.Nil(t, def.FindTransition("Pending Approval", "frobnicate"))
	assert.Nil(t, def.FindTransition("Approved", "approve"))

	assert.Len(t, def.TransitionsFrom("Pending Approval"), 2)
}

func TestLoadDefinitionDuplicateState(t *testing.T) {
	states := approvalStates()
	states = append(states, &models.WorkflowState{Name: "Draft", DocStatus: models.DocStatusDraft})

	_, err := models.LoadDefinition("purchase_order", states, nil)
	require.ErrorIs(t, err, models.ErrDuplicateState)
}

func TestLoadDefinitionDuplicateAction(t *testing.T) {
	transitions := approvalTransitions()
	transitions = append(transitions, &models.Transition{
		FromState: "Pending Approval", ToState: "Rejected", Action: "approve", AllowedRole: "Director",
	})

	_, err := models.LoadDefinition("purchase_order", approvalStates(), transitions)
	require.ErrorIs(t, err, models.ErrDuplicateAction)
}

func TestLoadDefinitionDanglingReference(t *testing.T) {
	transitions := append(approvalTransitions(), &models.Transition{
		FromState: "Approved", ToState: "Archived", Action: "archive",
	})

	_, err := models.LoadDefinition("purchase_order", approvalStates(), transitions)
	require.ErrorIs(t, err, models.ErrDanglingReference)
}

func TestLoadDefinitionRejectsDraftToCancelled(t *testing.T) {
	states := append(approvalStates(), &models.WorkflowState{
		Name: "Cancelled", DocStatus: models.DocStatusCancelled,
	})
	transitions := append(approvalTransitions(), &models.Transition{
		FromState: "Draft", ToState: "Cancelled", Action: "cancel",
	})

	_, err := models.LoadDefinition("purchase_order", states, transitions)
	require.ErrorIs(t, err, models.ErrInvalidDocstatusEdge)
}

func TestLoadDefinitionRejectsSubmittedToDraft(t *testing.T) {
	transitions := append(approvalTransitions(), &models.Transition{
		FromState: "Approved", ToState: "Draft", Action: "reopen",
	})

	_, err := models.LoadDefinition("purchase_order", approvalStates(), transitions)
	require.ErrorIs(t, err, models.ErrInvalidDocstatusEdge)
}

func TestLoadDefinitionRejectsEdgeOutOfCancelled(t *testing.T) {
	states := append(approvalStates(), &models.WorkflowState{
		Name: "Cancelled", DocStatus: models.DocStatusCancelled,
	})
	transitions := append(approvalTransitions(),
		&models.Transition{FromState: "Approved", ToState: "Cancelled", Action: "cancel"},
		&models.Transition{FromState: "Cancelled", ToState: "Draft", Action: "revive"},
	)

	_, err := models.LoadDefinition("purchase_order", states, transitions)
	require.ErrorIs(t, err, models.ErrInvalidDocstatusEdge)
}

func TestLoadDefinitionInitialState(t *testing.T) {
	t.Run("no draft state", func(t *testing.T) {
		states := []*models.WorkflowState{
			{Name: "Approved", DocStatus: models.DocStatusSubmitted},
		}

		_, err := models.LoadDefinition("purchase_order", states, nil)
		require.ErrorIs(t, err, models.ErrMissingInitialState)
	})

	t.Run("explicit initial flag wins over declaration order", func(t *testing.T) {
		states := []*models.WorkflowState{
			{Name: "Parked", DocStatus: models.DocStatusDraft},
			{Name: "Draft", DocStatus: models.DocStatusDraft, Initial: true},
		}

		def, err := models.LoadDefinition("purchase_order", states, nil)
		require.NoError(t, err)
		assert.Equal(t, "Draft", def.InitialState().Name)
	})

	t.Run("two initial flags", func(t *testing.T) {
		states := []*models.WorkflowState{
			{Name: "Draft", DocStatus: models.DocStatusDraft, Initial: true},
			{Name: "Parked", DocStatus: models.DocStatusDraft, Initial: true},
		}

		_, err := models.LoadDefinition("purchase_order", states, nil)
		require.ErrorIs(t, err, models.ErrMultipleInitialState)
	})

	t.Run("initial flag on submitted state", func(t *testing.T) {
		states := []*models.WorkflowState{
			{Name: "Draft", DocStatus: models.DocStatusDraft},
			{Name: "Approved", DocStatus: models.DocStatusSubmitted, Initial: true},
		}

		_, err := models.LoadDefinition("purchase_order", states, nil)
		require.ErrorIs(t, err, models.ErrMissingInitialState)
	})
}

func TestLoadDefinitionFlagsUnreachableStates(t *testing.T) {
	states := append(approvalStates(), &models.WorkflowState{
		Name: "Archived", DocStatus: models.DocStatusDraft,
	})

	def, err := models.LoadDefinition("purchase_order", states, approvalTransitions())
	require.NoError(t, err)

	assert.Equal(t, []string{"Archived"}, def.Unreachable)
}

func TestDefaultStateFor(t *testing.T) {
	def, err := models.LoadDefinition("purchase_order", approvalStates(), approvalTransitions())
	require.NoError(t, err)

	assert.Equal(t, "Draft", def.DefaultStateFor(models.DocStatusDraft).Name)
	assert.Equal(t, "Approved", def.DefaultStateFor(models.DocStatusSubmitted).Name)
	assert.Nil(t, def.DefaultStateFor(models.DocStatusCancelled))
}

func TestRecordClone(t *testing.T) {
	record := &models.Record{
		Type:   "purchase_order",
		ID:     "po-1",
		Fields: map[string]any{"amount": 500.0},
	}

	clone := record.Clone()
	clone.Fields["amount"] = 900.0
	clone.Comments = append(clone.Comments, models.Comment{Author: "alice", Text: "bumped"})

	assert.Equal(t, 500.0, record.Fields["amount"])
	assert.Empty(t, record.Comments)
}
