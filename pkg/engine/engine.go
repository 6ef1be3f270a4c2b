// Package engine implements the workflow transition engine. The engine
// is stateless: all record state lives in the record store, all
// workflow structure in the definition registry, so a single engine
// serves concurrent requests for distinct records without locking.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/docflow/docflow/pkg/condition"
	"github.com/docflow/docflow/pkg/models"
	"github.com/docflow/docflow/pkg/notifier"
	"github.com/docflow/docflow/pkg/otelhelper"
	"github.com/docflow/docflow/pkg/permission"
	"github.com/docflow/docflow/pkg/recordstore"
	"github.com/docflow/docflow/pkg/registry"
)

type Engine struct {
	registry    *registry.Registry
	store       recordstore.Store
	conditions  *condition.Evaluator
	permissions *permission.Resolver
	notifier    notifier.Notifier
	logger      *slog.Logger
	tracer      trace.Tracer
}

func NewEngine(
	reg *registry.Registry,
	store recordstore.Store,
	conditions *condition.Evaluator,
	permissions *permission.Resolver,
	n notifier.Notifier,
	logger *slog.Logger,
	tracer trace.Tracer,
) *Engine {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("engine")
	}

	if n == nil {
		n = notifier.NopNotifier{}
	}

	return &Engine{
		registry:    reg,
		store:       store,
		conditions:  conditions,
		permissions: permissions,
		notifier:    n,
		logger:      logger.With("module", "engine"),
		tracer:      tracer,
	}
}

// Apply executes the named action on a record on behalf of identity.
// Validation happens entirely before any mutation; the staged state
// change, side-effect field and audit comment are persisted as one
// unit through the store's versioned write.
func (e *Engine) Apply(ctx context.Context, recordType, recordID, action string, identity models.Identity) (*models.Record, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.apply",
		attribute.String(otelhelper.RecordTypeKey, recordType),
		attribute.String(otelhelper.RecordIDKey, recordID),
		attribute.String(otelhelper.ActionKey, action),
		attribute.String(otelhelper.ActorIDKey, identity.ID),
	)
	defer span.End()

	fail := func(err error) (*models.Record, error) {
		transitionErr := &TransitionError{RecordType: recordType, RecordID: recordID, Action: action, Err: err}
		otelhelper.SetError(span, transitionErr)

		return nil, transitionErr
	}

	definition, err := e.registry.DefinitionFor(recordType)
	if err != nil {
		return fail(ErrNoWorkflowDefined)
	}

	record, err := e.store.Get(ctx, recordType, recordID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	if record.DocStatus == models.DocStatusCancelled {
		return fail(ErrTerminalState)
	}

	current := e.effectiveState(definition, record)
	if current == nil {
		return fail(fmt.Errorf("%w: record state %q has no declared counterpart", ErrInvariantViolation, record.State))
	}

	transition := definition.FindTransition(current.Name, action)
	if transition == nil {
		return fail(fmt.Errorf("%w: %q from state %q", ErrUnknownAction, action, current.Name))
	}

	if !e.permissions.CanExecute(transition, record, identity) {
		return fail(ErrUnauthorized)
	}

	env := condition.NewEnv(record.Fields, current.Name, record.Owner, identity.ID, identity.Roles)

	allowed, err := e.conditions.Evaluate(ctx, transition.Condition, env)
	if err != nil {
		// Fail closed: an expression that cannot be evaluated never
		// grants the transition.
		e.logger.WarnContext(ctx, "Condition evaluation failed",
			"record_type", recordType,
			"record_id", recordID,
			"action", action,
			"error", err)

		return fail(fmt.Errorf("%w: %v", ErrConditionNotMet, err))
	}

	if !allowed {
		return fail(ErrConditionNotMet)
	}

	next := definition.State(transition.ToState)
	if next == nil || !models.LegalEdge(current.DocStatus, next.DocStatus) {
		return fail(fmt.Errorf("%w: %s -> %s", ErrInvariantViolation, transition.FromState, transition.ToState))
	}

	staged := e.stage(record, next, action, current.Name, identity)

	updated, err := e.persist(ctx, staged, current.DocStatus, next.DocStatus)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	e.notifier.Transitioned(ctx, updated, action, current.Name, next.Name, identity.ID)

	if next.NotifyOnEntry {
		e.notifier.StateEntered(ctx, updated, next.Name, identity.ID)
	}

	e.logger.InfoContext(ctx, "Transition applied",
		"record_type", recordType,
		"record_id", recordID,
		"action", action,
		"from_state", current.Name,
		"to_state", next.Name,
		"actor", identity.ID)

	return updated, nil
}

// AvailableTransitions lists every transition identity could execute
// on the record right now. It runs the same permission and condition
// checks as Apply, so an offered transition succeeds unless the record
// changed in between.
func (e *Engine) AvailableTransitions(ctx context.Context, recordType, recordID string, identity models.Identity) ([]*models.Transition, error) {
	definition, err := e.registry.DefinitionFor(recordType)
	if err != nil {
		return nil, &TransitionError{RecordType: recordType, RecordID: recordID, Err: ErrNoWorkflowDefined}
	}

	record, err := e.store.Get(ctx, recordType, recordID)
	if err != nil {
		return nil, err
	}

	if record.DocStatus == models.DocStatusCancelled {
		return []*models.Transition{}, nil
	}

	current := e.effectiveState(definition, record)
	if current == nil {
		return []*models.Transition{}, nil
	}

	available := make([]*models.Transition, 0)

	for _, transition := range definition.TransitionsFrom(current.Name) {
		if !e.permissions.CanExecute(transition, record, identity) {
			continue
		}

		env := condition.NewEnv(record.Fields, current.Name, record.Owner, identity.ID, identity.Roles)

		allowed, err := e.conditions.Evaluate(ctx, transition.Condition, env)
		if err != nil || !allowed {
			continue
		}

		available = append(available, transition)
	}

	return available, nil
}

// NewRecord instantiates a record of the given type in the workflow's
// initial state, owned by identity.
func (e *Engine) NewRecord(ctx context.Context, recordType string, identity models.Identity, fields map[string]any) (*models.Record, error) {
	definition, err := e.registry.DefinitionFor(recordType)
	if err != nil {
		return nil, &TransitionError{RecordType: recordType, Err: ErrNoWorkflowDefined}
	}

	initial := definition.InitialState()

	if fields == nil {
		fields = make(map[string]any)
	}

	record := &models.Record{
		Type:      recordType,
		ID:        uuid.NewString(),
		State:     initial.Name,
		DocStatus: models.DocStatusDraft,
		Owner:     identity.ID,
		Fields:    fields,
	}

	created, err := e.store.Create(ctx, record)
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "Record created",
		"record_type", recordType,
		"record_id", created.ID,
		"state", created.State,
		"owner", identity.ID)

	return created, nil
}

// Amend copies a cancelled record into a fresh draft linked back to
// the original through AmendedFrom. The original stays untouched.
func (e *Engine) Amend(ctx context.Context, recordType, recordID string, identity models.Identity) (*models.Record, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.amend",
		attribute.String(otelhelper.RecordTypeKey, recordType),
		attribute.String(otelhelper.RecordIDKey, recordID),
		attribute.String(otelhelper.ActorIDKey, identity.ID),
	)
	defer span.End()

	definition, err := e.registry.DefinitionFor(recordType)
	if err != nil {
		return nil, &TransitionError{RecordType: recordType, RecordID: recordID, Err: ErrNoWorkflowDefined}
	}

	original, err := e.store.Get(ctx, recordType, recordID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	if original.DocStatus != models.DocStatusCancelled {
		transitionErr := &TransitionError{RecordType: recordType, RecordID: recordID, Err: ErrNotAmendable}
		otelhelper.SetError(span, transitionErr)

		return nil, transitionErr
	}

	initial := definition.DefaultStateFor(models.DocStatusDraft)

	draft := original.Clone()
	draft.ID = uuid.NewString()
	draft.State = initial.Name
	draft.DocStatus = models.DocStatusDraft
	draft.Owner = identity.ID
	draft.Comments = nil
	draft.AmendedFrom = original.ID
	draft.Version = 0

	created, err := e.store.Create(ctx, draft)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	e.notifier.Amended(ctx, original, created, identity.ID)

	e.logger.InfoContext(ctx, "Record amended",
		"record_type", recordType,
		"record_id", recordID,
		"amended_id", created.ID,
		"actor", identity.ID)

	return created, nil
}

// DefaultStateFor returns the first-declared state of the record type
// carrying the given docstatus.
func (e *Engine) DefaultStateFor(recordType string, status models.DocStatus) (*models.WorkflowState, error) {
	definition, err := e.registry.DefinitionFor(recordType)
	if err != nil {
		return nil, &TransitionError{RecordType: recordType, Err: ErrNoWorkflowDefined}
	}

	state := definition.DefaultStateFor(status)
	if state == nil {
		return nil, &TransitionError{
			RecordType: recordType,
			Err:        fmt.Errorf("%w: no state with docstatus %s", ErrInvariantViolation, status),
		}
	}

	return state, nil
}

// effectiveState resolves the declared state a record currently sits
// in. A record naming an undeclared state (the definition changed
// underneath it) falls back to the first-declared state of its
// docstatus, never to a state of a different docstatus.
func (e *Engine) effectiveState(definition *models.WorkflowDefinition, record *models.Record) *models.WorkflowState {
	if state := definition.State(record.State); state != nil && state.DocStatus == record.DocStatus {
		return state
	}

	return definition.DefaultStateFor(record.DocStatus)
}

func (e *Engine) stage(record *models.Record, next *models.WorkflowState, action, fromState string, identity models.Identity) *models.Record {
	staged := record.Clone()
	staged.State = next.Name

	if next.HasSideEffect() {
		staged.Fields[next.UpdateField] = next.UpdateValue
	}

	staged.Comments = append(staged.Comments, models.Comment{
		Author:    identity.ID,
		Text:      fmt.Sprintf("%s: %s -> %s", action, fromState, next.Name),
		CreatedAt: time.Now().UTC(),
	})

	return staged
}

func (e *Engine) persist(ctx context.Context, staged *models.Record, from, to models.DocStatus) (*models.Record, error) {
	switch {
	case from == to:
		return e.store.Save(ctx, staged)
	case from == models.DocStatusDraft && to == models.DocStatusSubmitted:
		return e.store.Submit(ctx, staged)
	default:
		return e.store.Cancel(ctx, staged)
	}
}
