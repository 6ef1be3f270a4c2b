package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docflow/docflow/pkg/condition"
	"github.com/docflow/docflow/pkg/models"
	"github.com/docflow/docflow/pkg/notifier"
	"github.com/docflow/docflow/pkg/permission"
	"github.com/docflow/docflow/pkg/recordstore"
	"github.com/docflow/docflow/pkg/recordstore/file"
	"github.com/docflow/docflow/pkg/registry"
)

var (
	anyone  = models.Identity{ID: "alice", Roles: []string{"Employee"}}
	manager = models.Identity{ID: "bob", Roles: []string{"Manager"}}
)

func approvalDefinition(t *testing.T) *models.WorkflowDefinition {
	t.Helper()

	definition, err := models.LoadDefinition("purchase_order",
		[]*models.WorkflowState{
			{Name: "Draft", DocStatus: models.DocStatusDraft, AllowEditRole: models.RoleAll},
			{Name: "PendingApproval", DocStatus: models.DocStatusDraft, AllowEditRole: "Manager"},
			{Name: "Approved", DocStatus: models.DocStatusSubmitted, AllowEditRole: "Manager", NotifyOnEntry: true},
			{Name: "Rejected", DocStatus: models.DocStatusDraft, AllowEditRole: "Manager"},
			{Name: "Cancelled", DocStatus: models.DocStatusCancelled, AllowEditRole: "Manager"},
		},
		[]*models.Transition{
			{FromState: "Draft", ToState: "PendingApproval", Action: "submit"},
			{FromState: "PendingApproval", ToState: "Approved", Action: "approve", AllowedRole: "Manager"},
			{FromState: "PendingApproval", ToState: "Rejected", Action: "reject", AllowedRole: "Manager"},
			{FromState: "Approved", ToState: "Cancelled", Action: "cancel", AllowedRole: "Manager"},
		})
	require.NoError(t, err)

	return definition
}

func setupEngine(t *testing.T, definitions ...*models.WorkflowDefinition) (*Engine, recordstore.Store) {
	t.Helper()

	store := file.NewStore(t.TempDir())
	t.Cleanup(func() { _ = store.Close(context.Background()) })

	reg := registry.NewRegistry(slog.Default())
	for _, definition := range definitions {
		reg.Register(definition)
	}

	eng := NewEngine(reg,
		store,
		condition.NewEvaluator(condition.DefaultTimeout),
		permission.NewResolver(),
		notifier.NopNotifier{},
		slog.Default(),
		nil)

	return eng, store
}

func TestApplyMovesRecordThroughWorkflow(t *testing.T) {
	eng, store := setupEngine(t, approvalDefinition(t))

	record, err := eng.NewRecord(t.Context(), "purchase_order", anyone, map[string]any{"amount": 250})
	require.NoError(t, err)
	assert.Equal(t, "Draft", record.State)
	assert.Equal(t, models.DocStatusDraft, record.DocStatus)

	// submit carries no role restriction, any identity may call it.
	record, err = eng.Apply(t.Context(), "purchase_order", record.ID, "submit", anyone)
	require.NoError(t, err)
	assert.Equal(t, "PendingApproval", record.State)
	assert.Equal(t, models.DocStatusDraft, record.DocStatus)

	record, err = eng.Apply(t.Context(), "purchase_order", record.ID, "approve", manager)
	require.NoError(t, err)
	assert.Equal(t, "Approved", record.State)
	assert.Equal(t, models.DocStatusSubmitted, record.DocStatus)

	// Round trip through the store shows the same state.
	stored, err := store.Get(t.Context(), "purchase_order", record.ID)
	require.NoError(t, err)
	assert.Equal(t, "Approved", stored.State)
	assert.Equal(t, models.DocStatusSubmitted, stored.DocStatus)
}

func TestApplyUnauthorizedLeavesRecordUnchanged(t *testing.T) {
	eng, store := setupEngine(t, approvalDefinition(t))

	record, err := eng.NewRecord(t.Context(), "purchase_order", anyone, nil)
	require.NoError(t, err)

	record, err = eng.Apply(t.Context(), "purchase_order", record.ID, "submit", anyone)
	require.NoError(t, err)

	_, err = eng.Apply(t.Context(), "purchase_order", record.ID, "approve", anyone)
	assert.ErrorIs(t, err, ErrUnauthorized)

	stored, err := store.Get(t.Context(), "purchase_order", record.ID)
	require.NoError(t, err)
	assert.Equal(t, "PendingApproval", stored.State)
	assert.Equal(t, record.Version, stored.Version)
}

func TestApplyTerminalState(t *testing.T) {
	eng, store := setupEngine(t, approvalDefinition(t))

	record, err := eng.NewRecord(t.Context(), "purchase_order", anyone, nil)
	require.NoError(t, err)

	for _, step := range []struct {
		action   string
		identity models.Identity
	}{
		{"submit", anyone},
		{"approve", manager},
		{"cancel", manager},
	} {
		record, err = eng.Apply(t.Context(), "purchase_order", record.ID, step.action, step.identity)
		require.NoError(t, err)
	}

	assert.Equal(t, models.DocStatusCancelled, record.DocStatus)

	for _, action := range []string{"submit", "approve", "reject", "cancel"} {
		_, err = eng.Apply(t.Context(), "purchase_order", record.ID, action, manager)
		assert.ErrorIs(t, err, ErrTerminalState)
	}

	stored, err := store.Get(t.Context(), "purchase_order", record.ID)
	require.NoError(t, err)
	assert.Equal(t, record.Version, stored.Version)

	available, err := eng.AvailableTransitions(t.Context(), "purchase_order", record.ID, manager)
	require.NoError(t, err)
	assert.Empty(t, available)
}

func TestApplyUnknownAction(t *testing.T) {
	eng, _ := setupEngine(t, approvalDefinition(t))

	record, err := eng.NewRecord(t.Context(), "purchase_order", anyone, nil)
	require.NoError(t, err)

	_, err = eng.Apply(t.Context(), "purchase_order", record.ID, "approve", manager)
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestApplyNoWorkflowDefined(t *testing.T) {
	eng, _ := setupEngine(t)

	_, err := eng.Apply(t.Context(), "invoice", "inv-1", "submit", anyone)
	assert.ErrorIs(t, err, ErrNoWorkflowDefined)
}

func TestApplyConditionNotMet(t *testing.T) {
	definition, err := models.LoadDefinition("purchase_order",
		[]*models.WorkflowState{
			{Name: "Draft", DocStatus: models.DocStatusDraft},
			{Name: "Approved", DocStatus: models.DocStatusSubmitted},
		},
		[]*models.Transition{
			{FromState: "Draft", ToState: "Approved", Action: "approve", Condition: "record.amount > 1000"},
		})
	require.NoError(t, err)

	eng, _ := setupEngine(t, definition)

	record, err := eng.NewRecord(t.Context(), "purchase_order", anyone, map[string]any{"amount": 500})
	require.NoError(t, err)

	available, err := eng.AvailableTransitions(t.Context(), "purchase_order", record.ID, anyone)
	require.NoError(t, err)
	assert.Empty(t, available)

	_, err = eng.Apply(t.Context(), "purchase_order", record.ID, "approve", anyone)
	assert.ErrorIs(t, err, ErrConditionNotMet)
}

func TestApplyConditionEvaluationErrorFailsClosed(t *testing.T) {
	definition, err := models.LoadDefinition("purchase_order",
		[]*models.WorkflowState{
			{Name: "Draft", DocStatus: models.DocStatusDraft},
			{Name: "Approved", DocStatus: models.DocStatusSubmitted},
		},
		[]*models.Transition{
			{FromState: "Draft", ToState: "Approved", Action: "approve", Condition: "record.amount >"},
		})
	require.NoError(t, err)

	eng, _ := setupEngine(t, definition)

	record, err := eng.NewRecord(t.Context(), "purchase_order", anyone, map[string]any{"amount": 5000})
	require.NoError(t, err)

	_, err = eng.Apply(t.Context(), "purchase_order", record.ID, "approve", anyone)
	assert.ErrorIs(t, err, ErrConditionNotMet)
}

func TestApplySideEffectAndAuditComment(t *testing.T) {
	definition, err := models.LoadDefinition("purchase_order",
		[]*models.WorkflowState{
			{Name: "Draft", DocStatus: models.DocStatusDraft},
			{Name: "Approved", DocStatus: models.DocStatusSubmitted, UpdateField: "approved", UpdateValue: true},
		},
		[]*models.Transition{
			{FromState: "Draft", ToState: "Approved", Action: "approve", AllowedRole: "Manager"},
		})
	require.NoError(t, err)

	eng, _ := setupEngine(t, definition)

	record, err := eng.NewRecord(t.Context(), "purchase_order", anyone, map[string]any{"amount": 100})
	require.NoError(t, err)

	record, err = eng.Apply(t.Context(), "purchase_order", record.ID, "approve", manager)
	require.NoError(t, err)

	assert.Equal(t, true, record.Fields["approved"])
	require.Len(t, record.Comments, 1)
	assert.Equal(t, "bob", record.Comments[0].Author)
	assert.Equal(t, "approve: Draft -> Approved", record.Comments[0].Text)
}

func TestAvailableTransitionsMatchApply(t *testing.T) {
	eng, _ := setupEngine(t, approvalDefinition(t))

	record, err := eng.NewRecord(t.Context(), "purchase_order", anyone, nil)
	require.NoError(t, err)

	record, err = eng.Apply(t.Context(), "purchase_order", record.ID, "submit", anyone)
	require.NoError(t, err)

	available, err := eng.AvailableTransitions(t.Context(), "purchase_order", record.ID, manager)
	require.NoError(t, err)
	require.Len(t, available, 2)

	// Every offered transition succeeds when applied to the unchanged
	// record. Re-create the record each round to keep it unchanged.
	for _, transition := range available {
		fresh, err := eng.NewRecord(t.Context(), "purchase_order", anyone, nil)
		require.NoError(t, err)

		fresh, err = eng.Apply(t.Context(), "purchase_order", fresh.ID, "submit", anyone)
		require.NoError(t, err)

		applied, err := eng.Apply(t.Context(), "purchase_order", fresh.ID, transition.Action, manager)
		require.NoError(t, err)
		assert.Equal(t, transition.ToState, applied.State)
	}

	// The employee identity sees nothing from PendingApproval.
	available, err = eng.AvailableTransitions(t.Context(), "purchase_order", record.ID, anyone)
	require.NoError(t, err)
	assert.Empty(t, available)
}

func TestConcurrentApplyExactlyOneWinner(t *testing.T) {
	eng, _ := setupEngine(t, approvalDefinition(t))

	record, err := eng.NewRecord(t.Context(), "purchase_order", anyone, nil)
	require.NoError(t, err)

	record, err = eng.Apply(t.Context(), "purchase_order", record.ID, "submit", anyone)
	require.NoError(t, err)

	var wg sync.WaitGroup

	errs := make([]error, 2)
	actions := []string{"approve", "reject"}

	for i := range actions {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, errs[i] = eng.Apply(context.Background(), "purchase_order", record.ID, actions[i], manager)
		}()
	}

	wg.Wait()

	var succeeded, rejected int

	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case recordstore.IsConcurrentModification(err),
			errors.Is(err, ErrUnknownAction),
			recordstore.IsValidation(err):
			rejected++
		default:
			t.Fatalf("unexpected error class: %v", err)
		}
	}

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, rejected)
}

func TestAmend(t *testing.T) {
	eng, _ := setupEngine(t, approvalDefinition(t))

	record, err := eng.NewRecord(t.Context(), "purchase_order", anyone, map[string]any{"amount": 42.0})
	require.NoError(t, err)

	// Amending a non-cancelled record is rejected.
	_, err = eng.Amend(t.Context(), "purchase_order", record.ID, anyone)
	assert.ErrorIs(t, err, ErrNotAmendable)

	for _, step := range []struct {
		action   string
		identity models.Identity
	}{
		{"submit", anyone},
		{"approve", manager},
		{"cancel", manager},
	} {
		record, err = eng.Apply(t.Context(), "purchase_order", record.ID, step.action, step.identity)
		require.NoError(t, err)
	}

	amended, err := eng.Amend(t.Context(), "purchase_order", record.ID, anyone)
	require.NoError(t, err)

	assert.NotEqual(t, record.ID, amended.ID)
	assert.Equal(t, record.ID, amended.AmendedFrom)
	assert.Equal(t, "Draft", amended.State)
	assert.Equal(t, models.DocStatusDraft, amended.DocStatus)
	assert.Equal(t, "alice", amended.Owner)
	assert.Equal(t, 42.0, amended.Fields["amount"])
	assert.Empty(t, amended.Comments)
}

func TestDefaultStateFor(t *testing.T) {
	eng, _ := setupEngine(t, approvalDefinition(t))

	draft, err := eng.DefaultStateFor("purchase_order", models.DocStatusDraft)
	require.NoError(t, err)
	assert.Equal(t, "Draft", draft.Name)

	submitted, err := eng.DefaultStateFor("purchase_order", models.DocStatusSubmitted)
	require.NoError(t, err)
	assert.Equal(t, "Approved", submitted.Name)
}
