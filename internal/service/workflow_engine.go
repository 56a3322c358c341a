package service

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pesio-ai/be-doc-workflows/internal/errors"
	"github.com/pesio-ai/be-doc-workflows/internal/logger"
	"github.com/pesio-ai/be-doc-workflows/internal/metrics"
	"github.com/pesio-ai/be-doc-workflows/internal/repository"
)

const tracerName = "github.com/pesio-ai/be-doc-workflows/internal/service"

// WorkflowEngine drives document workflows through their templates.
type WorkflowEngine struct {
	catalog  Catalog
	store    WorkflowStore
	history  HistoryStore
	gate     *ValidationGate
	resolver *AssignmentResolver
	notifier Notifier
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	log      *logger.Logger
	now      func() time.Time
}

// NewWorkflowEngine creates a new WorkflowEngine. notifier and m may be nil.
func NewWorkflowEngine(
	catalog Catalog,
	access StageAccess,
	store WorkflowStore,
	history HistoryStore,
	users UserDirectory,
	notifier Notifier,
	m *metrics.Metrics,
	log *logger.Logger,
) *WorkflowEngine {
	return &WorkflowEngine{
		catalog:  catalog,
		store:    store,
		history:  history,
		gate:     NewValidationGate(catalog, access),
		resolver: NewAssignmentResolver(access, users, m, log),
		notifier: notifier,
		metrics:  m,
		tracer:   otel.Tracer(tracerName),
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ── Requests ──────────────────────────────────────────────────────────────────

// StartWorkflowRequest enters a document into a workflow. TemplateID is
// optional; without it the active template bound to DocumentType is used.
type StartWorkflowRequest struct {
	DocumentID   string
	DocumentType string
	TemplateID   string
	InitiatedBy  string
	Comments     *string
}

// ProcessActionRequest submits an action against a document workflow.
type ProcessActionRequest struct {
	DocumentWorkflowID string
	ActionID           string
	Actor              ActorContext
	Comments           *string
	Attachments        []string
}

// ── Workflow creation ─────────────────────────────────────────────────────────

// StartWorkflow creates a document workflow at its template's lowest-order
// stage, recording the submission and, when one resolves, the first
// assignment.
func (e *WorkflowEngine) StartWorkflow(ctx context.Context, req *StartWorkflowRequest) (*repository.DocumentWorkflow, error) {
	ctx, span := e.tracer.Start(ctx, "WorkflowEngine.StartWorkflow", trace.WithAttributes(
		attribute.String("document.id", req.DocumentID),
		attribute.String("document.type", req.DocumentType),
	))
	defer span.End()

	wf, err := e.startWorkflow(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return wf, nil
}

func (e *WorkflowEngine) startWorkflow(ctx context.Context, req *StartWorkflowRequest) (*repository.DocumentWorkflow, error) {
	if req.DocumentID == "" {
		return nil, errors.InvalidInput("document_id", "document id is required")
	}
	if req.InitiatedBy == "" {
		return nil, errors.InvalidInput("initiated_by", "initiator is required")
	}

	tpl, err := e.resolveTemplate(ctx, req)
	if err != nil {
		return nil, err
	}

	first, err := e.catalog.GetFirstStage(ctx, tpl.ID)
	if err != nil {
		return nil, err
	}
	if first == nil {
		return nil, errors.New(errors.ErrCodeConfiguration,
			fmt.Sprintf("workflow template %s has no stages", tpl.ID))
	}

	assignee, err := e.resolver.ResolveAssignee(ctx, first.ID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	wf := &repository.DocumentWorkflow{
		DocumentID:     req.DocumentID,
		DocumentType:   tpl.DocumentType,
		TemplateID:     tpl.ID,
		CurrentStageID: &first.ID,
		Status:         repository.StatusInProgress,
		InitiatedBy:    req.InitiatedBy,
		InitiatedAt:    now,
	}

	history := []*repository.WorkflowStageHistory{{
		StageID:     first.ID,
		Action:      repository.HistoryActionSubmitted,
		ProcessedBy: req.InitiatedBy,
		AssignedTo:  assignee,
		Comments:    req.Comments,
		ProcessedAt: now,
	}}
	if assignee != nil {
		comment := "Automatically assigned on workflow submission"
		history = append(history, &repository.WorkflowStageHistory{
			StageID:     first.ID,
			Action:      repository.HistoryActionAssigned,
			ProcessedBy: req.InitiatedBy,
			AssignedTo:  assignee,
			Comments:    &comment,
			ProcessedAt: now,
		})
	}

	if err := e.store.Create(ctx, wf, history); err != nil {
		return nil, err
	}

	e.metrics.WorkflowStarted()
	e.log.Info().
		Str("workflow_id", wf.ID).
		Str("document_id", wf.DocumentID).
		Str("template_id", wf.TemplateID).
		Str("stage_id", first.ID).
		Msg("Document workflow started")

	e.publish(ctx, &WorkflowEvent{
		EventType:    EventWorkflowStarted,
		WorkflowID:   wf.ID,
		DocumentID:   wf.DocumentID,
		DocumentType: wf.DocumentType,
		TemplateID:   wf.TemplateID,
		StageID:      &first.ID,
		StageName:    first.Name,
		Assignee:     assignee,
		Action:       repository.HistoryActionSubmitted,
		ActorID:      req.InitiatedBy,
		DueAt:        stageDueAt(first, now),
		OccurredAt:   now,
	})

	return wf, nil
}

func (e *WorkflowEngine) resolveTemplate(ctx context.Context, req *StartWorkflowRequest) (*repository.WorkflowTemplate, error) {
	if req.TemplateID == "" {
		if req.DocumentType == "" {
			return nil, errors.InvalidInput("document_type", "document type or template id is required")
		}
		return e.catalog.GetTemplateByDocumentType(ctx, req.DocumentType)
	}

	tpl, err := e.catalog.GetTemplateByID(ctx, req.TemplateID)
	if err != nil {
		return nil, err
	}
	if req.DocumentType != "" && req.DocumentType != tpl.DocumentType {
		return nil, errors.InvalidInput("document_type", fmt.Sprintf(
			"template %s is bound to %q, not %q", tpl.ID, tpl.DocumentType, req.DocumentType))
	}
	return tpl, nil
}

// ── Transitions ───────────────────────────────────────────────────────────────

// transitionOutcome carries what the committed transaction produced.
type transitionOutcome struct {
	workflow  *repository.DocumentWorkflow
	fromStage *repository.WorkflowStage
	nextStage *repository.WorkflowStage
	action    *repository.WorkflowStageAction
	assignee  *string
	at        time.Time
}

// ProcessAction validates and applies an action. The workflow row is locked
// for the whole read-validate-write sequence, so of two concurrent
// submissions of the same action only the first can succeed; the second is
// validated against the new stage and fails with ACTION_MISMATCH.
//
// The target stage and its assignee depend only on the action and the
// read-only catalog, so they are resolved before the lock is taken and the
// user directory call never runs while the row is held.
func (e *WorkflowEngine) ProcessAction(ctx context.Context, req *ProcessActionRequest) (*repository.DocumentWorkflow, error) {
	ctx, span := e.tracer.Start(ctx, "WorkflowEngine.ProcessAction", trace.WithAttributes(
		attribute.String("workflow.id", req.DocumentWorkflowID),
		attribute.String("action.id", req.ActionID),
		attribute.String("actor.id", req.Actor.UserID),
	))
	defer span.End()

	if req.DocumentWorkflowID == "" {
		return nil, errors.InvalidInput("document_workflow_id", "document workflow id is required")
	}
	if req.ActionID == "" {
		return nil, errors.InvalidInput("action_id", "action id is required")
	}

	plan, planErr := e.planTransition(ctx, req.ActionID)

	var outcome *transitionOutcome
	err := e.store.InTransaction(ctx, func(tx repository.WorkflowTx) error {
		wf, err := tx.GetForUpdate(ctx, req.DocumentWorkflowID)
		if err != nil {
			return err
		}
		validated, err := e.gate.Validate(ctx, wf, req.ActionID, req.Actor)
		if err != nil {
			return err
		}
		// Reported only after validation so callers see gate errors first.
		if planErr != nil {
			return planErr
		}
		outcome, err = e.transition(ctx, tx, validated, plan, req.Comments, req.Attachments)
		return err
	})
	if err != nil {
		e.recordFailure(req, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	e.afterCommit(ctx, outcome, req.Actor)
	return outcome.workflow, nil
}

// transitionPlan is where an action leads: the next stage (nil completes
// the workflow) and that stage's default assignee.
type transitionPlan struct {
	fromStageID string
	next        *repository.WorkflowStage
	assignee    *string
}

// planTransition resolves the target stage and assignee of an action without
// touching the workflow. The gate later pins the action to the workflow's
// current stage, which makes the plan valid for the locked state.
func (e *WorkflowEngine) planTransition(ctx context.Context, actionID string) (*transitionPlan, error) {
	action, err := e.catalog.GetActionByID(ctx, actionID)
	if err != nil {
		return nil, err
	}
	stage, err := e.catalog.GetStageByID(ctx, action.StageID)
	if err != nil {
		return nil, err
	}
	next, err := e.nextStage(ctx, action, stage)
	if err != nil {
		return nil, err
	}

	plan := &transitionPlan{fromStageID: stage.ID, next: next}
	if next != nil {
		plan.assignee, err = e.resolver.ResolveAssignee(ctx, next.ID)
		if err != nil {
			return nil, err
		}
	}
	return plan, nil
}

// transition writes the ledger entries and moves the workflow along plan.
// It runs inside the caller's transaction; any error undoes every write
// made here.
func (e *WorkflowEngine) transition(
	ctx context.Context,
	tx repository.WorkflowTx,
	v *ValidatedAction,
	plan *transitionPlan,
	comments *string,
	attachments []string,
) (*transitionOutcome, error) {
	if plan.fromStageID != v.Stage.ID {
		return nil, errors.New(errors.ErrCodeInternal, fmt.Sprintf(
			"transition planned from stage %s but workflow %s is at stage %s",
			plan.fromStageID, v.Workflow.ID, v.Stage.ID))
	}
	next, assignee := plan.next, plan.assignee

	now := e.now()
	err := tx.AppendHistory(ctx, &repository.WorkflowStageHistory{
		DocumentWorkflowID: v.Workflow.ID,
		StageID:            v.Stage.ID,
		Action:             v.Action.Name,
		ProcessedBy:        v.Actor.UserID,
		AssignedTo:         assignee,
		Comments:           comments,
		Attachments:        attachments,
		ProcessedAt:        now,
	})
	if err != nil {
		return nil, err
	}

	wf := *v.Workflow
	if next != nil {
		wf.CurrentStageID = &next.ID
		wf.Status = repository.StatusInProgress
		wf.CompletedAt = nil
	} else {
		wf.CurrentStageID = nil
		wf.Status = repository.StatusCompleted
		wf.CompletedAt = &now
	}
	if err := tx.Update(ctx, &wf); err != nil {
		return nil, err
	}

	if next != nil && assignee != nil {
		comment := fmt.Sprintf("Automatically assigned after action '%s'", v.Action.Name)
		err = tx.AppendHistory(ctx, &repository.WorkflowStageHistory{
			DocumentWorkflowID: v.Workflow.ID,
			StageID:            next.ID,
			Action:             repository.HistoryActionAssigned,
			ProcessedBy:        v.Actor.UserID,
			AssignedTo:         assignee,
			Comments:           &comment,
			ProcessedAt:        now,
		})
		if err != nil {
			return nil, err
		}
	}

	return &transitionOutcome{
		workflow:  &wf,
		fromStage: v.Stage,
		nextStage: next,
		action:    v.Action,
		assignee:  assignee,
		at:        now,
	}, nil
}

// nextStage returns the action's explicit target, else the template's next
// stage by order, else nil (the workflow completes).
func (e *WorkflowEngine) nextStage(
	ctx context.Context,
	action *repository.WorkflowStageAction,
	stage *repository.WorkflowStage,
) (*repository.WorkflowStage, error) {
	if action.NextStageID != nil {
		next, err := e.catalog.GetStageByID(ctx, *action.NextStageID)
		if err != nil {
			return nil, err
		}
		if next.TemplateID != stage.TemplateID {
			return nil, errors.New(errors.ErrCodeConfiguration, fmt.Sprintf(
				"action %s targets stage %s of another template", action.ID, next.ID))
		}
		return next, nil
	}
	return e.catalog.GetNextStageByOrder(ctx, stage.TemplateID, stage.Order)
}

func (e *WorkflowEngine) afterCommit(ctx context.Context, o *transitionOutcome, actor ActorContext) {
	event := &WorkflowEvent{
		WorkflowID:   o.workflow.ID,
		DocumentID:   o.workflow.DocumentID,
		DocumentType: o.workflow.DocumentType,
		TemplateID:   o.workflow.TemplateID,
		Assignee:     o.assignee,
		Action:       o.action.Name,
		ActorID:      actor.UserID,
		OccurredAt:   o.at,
	}

	if o.nextStage == nil {
		e.metrics.Transition(o.action.Name, metrics.OutcomeCompleted)
		e.log.Info().
			Str("workflow_id", o.workflow.ID).
			Str("stage_id", o.fromStage.ID).
			Str("action", o.action.Name).
			Str("actor_id", actor.UserID).
			Msg("Document workflow completed")
		event.EventType = EventWorkflowCompleted
	} else {
		e.metrics.Transition(o.action.Name, metrics.OutcomeAdvanced)
		logEvent := e.log.Info().
			Str("workflow_id", o.workflow.ID).
			Str("from_stage_id", o.fromStage.ID).
			Str("to_stage_id", o.nextStage.ID).
			Str("action", o.action.Name).
			Str("actor_id", actor.UserID)
		if o.assignee != nil {
			logEvent = logEvent.Str("assignee", *o.assignee)
		}
		logEvent.Msg("Document workflow advanced")

		event.EventType = EventWorkflowTransitioned
		event.StageID = &o.nextStage.ID
		event.StageName = o.nextStage.Name
		event.DueAt = stageDueAt(o.nextStage, o.at)
	}

	e.publish(ctx, event)
}

// unresolvedAction labels failed attempts, whose action name may be unknown.
const unresolvedAction = "unresolved"

func (e *WorkflowEngine) recordFailure(req *ProcessActionRequest, err error) {
	code := errors.CodeOf(err)
	switch code {
	case errors.ErrCodePersistence, errors.ErrCodeInternal, errors.ErrCodeConfiguration:
		e.metrics.Transition(unresolvedAction, metrics.OutcomeFailed)
		e.log.Error().Err(err).
			Str("workflow_id", req.DocumentWorkflowID).
			Str("action_id", req.ActionID).
			Msg("Failed to process workflow action")
	default:
		e.metrics.Transition(unresolvedAction, metrics.OutcomeRejected)
		e.metrics.ValidationFailure(string(code))
		e.log.Debug().Err(err).
			Str("workflow_id", req.DocumentWorkflowID).
			Str("action_id", req.ActionID).
			Str("actor_id", req.Actor.UserID).
			Msg("Workflow action rejected")
	}
}

func (e *WorkflowEngine) publish(ctx context.Context, event *WorkflowEvent) {
	if e.notifier == nil {
		return
	}
	e.notifier.PublishWorkflowEvent(ctx, event)
}

// stageDueAt derives a reminder deadline from a stage's timeout metadata.
// The engine never enforces it.
func stageDueAt(stage *repository.WorkflowStage, entered time.Time) *time.Time {
	if stage.TimeoutDays == nil || *stage.TimeoutDays <= 0 {
		return nil
	}
	due := entered.AddDate(0, 0, *stage.TimeoutDays)
	return &due
}

// ── Query helpers ─────────────────────────────────────────────────────────────

// Validate runs the validation gate without applying the action, for callers
// that want to know whether an actor may act.
func (e *WorkflowEngine) Validate(ctx context.Context, workflowID, actionID string, actor ActorContext) (*ValidatedAction, error) {
	wf, err := e.store.GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	return e.gate.Validate(ctx, wf, actionID, actor)
}

// GetAvailableActions returns the active actions of the workflow's current
// stage. A missing or completed workflow yields an empty list, not an error.
func (e *WorkflowEngine) GetAvailableActions(ctx context.Context, workflowID string) ([]*repository.WorkflowStageAction, error) {
	wf, err := e.store.GetByID(ctx, workflowID)
	if errors.Is(err, errors.ErrCodeNotFound) {
		return []*repository.WorkflowStageAction{}, nil
	}
	if err != nil {
		return nil, err
	}
	if wf.IsCompleted() {
		return []*repository.WorkflowStageAction{}, nil
	}
	return e.catalog.GetActiveActionsByStage(ctx, *wf.CurrentStageID)
}

// GetWorkflow returns the current snapshot of a workflow.
func (e *WorkflowEngine) GetWorkflow(ctx context.Context, workflowID string) (*repository.DocumentWorkflow, error) {
	return e.store.GetByID(ctx, workflowID)
}

// GetHistory returns a workflow's ledger oldest-first.
func (e *WorkflowEngine) GetHistory(ctx context.Context, workflowID string) ([]*repository.WorkflowStageHistory, error) {
	if _, err := e.store.GetByID(ctx, workflowID); err != nil {
		return nil, err
	}
	return e.history.GetByWorkflowID(ctx, workflowID)
}
