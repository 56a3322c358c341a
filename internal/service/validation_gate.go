package service

import (
	"context"
	"fmt"
	"slices"

	"github.com/pesio-ai/be-doc-workflows/internal/errors"
	"github.com/pesio-ai/be-doc-workflows/internal/repository"
)

// ActorContext is the identity acting on a workflow, as asserted by the
// caller's authentication layer.
type ActorContext struct {
	UserID      string
	RoleCode    string
	Permissions []string
}

// HasPermission reports whether the actor holds the named permission.
func (a ActorContext) HasPermission(name string) bool {
	return slices.Contains(a.Permissions, name)
}

// ValidatedAction is the output of the validation gate and the only input
// the transition step accepts.
type ValidatedAction struct {
	Workflow *repository.DocumentWorkflow
	Stage    *repository.WorkflowStage
	Action   *repository.WorkflowStageAction
	Actor    ActorContext
}

// ValidationGate decides whether an actor may exercise an action on a
// workflow in its current state.
type ValidationGate struct {
	catalog Catalog
	access  StageAccess
}

// NewValidationGate creates a new ValidationGate.
func NewValidationGate(catalog Catalog, access StageAccess) *ValidationGate {
	return &ValidationGate{catalog: catalog, access: access}
}

// Validate checks, in order: the workflow is live, the action belongs to the
// current stage, the actor's role is eligible, and every required permission
// is held. Empty role or permission sets are unrestricted.
func (g *ValidationGate) Validate(
	ctx context.Context,
	wf *repository.DocumentWorkflow,
	actionID string,
	actor ActorContext,
) (*ValidatedAction, error) {
	if wf == nil {
		return nil, errors.New(errors.ErrCodeInvalidState, "document workflow does not exist")
	}
	if wf.IsCompleted() {
		return nil, errors.New(errors.ErrCodeInvalidState,
			fmt.Sprintf("document workflow %s is %s and has no current stage", wf.ID, wf.Status))
	}
	if actor.UserID == "" {
		return nil, errors.InvalidInput("actor_id", "actor is required")
	}

	action, err := g.catalog.GetActionByID(ctx, actionID)
	if err != nil {
		return nil, err
	}
	currentStageID := *wf.CurrentStageID
	if action.StageID != currentStageID {
		return nil, errors.New(errors.ErrCodeActionMismatch, fmt.Sprintf(
			"action %s belongs to stage %s, workflow %s is at stage %s",
			action.ID, action.StageID, wf.ID, currentStageID))
	}
	if !action.IsActive {
		return nil, errors.New(errors.ErrCodeActionMismatch,
			fmt.Sprintf("action %s is not active on stage %s", action.ID, currentStageID))
	}

	stage, err := g.catalog.GetStageByID(ctx, currentStageID)
	if err != nil {
		return nil, err
	}
	if stage.TemplateID != wf.TemplateID {
		return nil, errors.New(errors.ErrCodeInvalidState, fmt.Sprintf(
			"workflow %s current stage %s belongs to template %s, not %s",
			wf.ID, stage.ID, stage.TemplateID, wf.TemplateID))
	}

	if err := g.checkRole(ctx, stage, actor); err != nil {
		return nil, err
	}
	if err := g.checkPermissions(ctx, stage, actor); err != nil {
		return nil, err
	}

	return &ValidatedAction{Workflow: wf, Stage: stage, Action: action, Actor: actor}, nil
}

func (g *ValidationGate) checkRole(ctx context.Context, stage *repository.WorkflowStage, actor ActorContext) error {
	roles, err := g.access.GetRolesByStage(ctx, stage.ID)
	if err != nil {
		return err
	}
	if len(roles) == 0 {
		return nil
	}
	for _, role := range roles {
		if role.RoleCode == actor.RoleCode {
			return nil
		}
	}
	return errors.New(errors.ErrCodeInsufficientRole, fmt.Sprintf(
		"role %q may not act at stage %s", actor.RoleCode, stage.Name))
}

func (g *ValidationGate) checkPermissions(ctx context.Context, stage *repository.WorkflowStage, actor ActorContext) error {
	perms, err := g.access.GetPermissionsByStage(ctx, stage.ID)
	if err != nil {
		return err
	}
	for _, perm := range perms {
		if perm.IsRequired && !actor.HasPermission(perm.PermissionName) {
			return errors.New(errors.ErrCodeInsufficientPermission, fmt.Sprintf(
				"permission %q is required at stage %s", perm.PermissionName, stage.Name))
		}
	}
	return nil
}
