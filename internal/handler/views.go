package handler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-doc-workflows/internal/repository"
	"github.com/pesio-ai/be-doc-workflows/internal/service"
)

// Views are plain maps so the same shape serves JSON over HTTP and
// structpb over gRPC.

func workflowView(wf *repository.DocumentWorkflow, assignee *string) map[string]any {
	return map[string]any{
		"id":               wf.ID,
		"document_id":      wf.DocumentID,
		"document_type":    wf.DocumentType,
		"template_id":      wf.TemplateID,
		"current_stage_id": optString(wf.CurrentStageID),
		"status":           wf.Status,
		"initiated_by":     wf.InitiatedBy,
		"initiated_at":     formatTime(wf.InitiatedAt),
		"completed_at":     optTime(wf.CompletedAt),
		"updated_at":       formatTime(wf.UpdatedAt),
		"assignee":         optString(assignee),
	}
}

// workflowSnapshot renders wf with the user last assigned its current stage.
// A failed history lookup only drops the assignee.
func workflowSnapshot(ctx context.Context, engine *service.WorkflowEngine, log *zerolog.Logger, wf *repository.DocumentWorkflow) map[string]any {
	if wf.IsCompleted() {
		return workflowView(wf, nil)
	}
	history, err := engine.GetHistory(ctx, wf.ID)
	if err != nil {
		log.Warn().Err(err).Str("workflow_id", wf.ID).Msg("Failed to load history for assignee")
		return workflowView(wf, nil)
	}
	return workflowView(wf, service.LastAssignee(history, *wf.CurrentStageID))
}

func actionView(a *repository.WorkflowStageAction) map[string]any {
	return map[string]any{
		"id":            a.ID,
		"stage_id":      a.StageID,
		"name":          a.Name,
		"action_type":   a.ActionType,
		"next_stage_id": optString(a.NextStageID),
		"sort_order":    a.SortOrder,
	}
}

func actionsView(actions []*repository.WorkflowStageAction) []any {
	out := make([]any, 0, len(actions))
	for _, a := range actions {
		out = append(out, actionView(a))
	}
	return out
}

func historyView(h *repository.WorkflowStageHistory) map[string]any {
	attachments := make([]any, 0, len(h.Attachments))
	for _, a := range h.Attachments {
		attachments = append(attachments, a)
	}
	return map[string]any{
		"id":           h.ID,
		"stage_id":     h.StageID,
		"action":       h.Action,
		"processed_by": h.ProcessedBy,
		"assigned_to":  optString(h.AssignedTo),
		"comments":     optString(h.Comments),
		"attachments":  attachments,
		"processed_at": formatTime(h.ProcessedAt),
	}
}

func templateView(tpl *repository.WorkflowTemplate) map[string]any {
	stages := make([]any, 0, len(tpl.Stages))
	for _, s := range tpl.Stages {
		roles := make([]any, 0, len(s.Roles))
		for _, r := range s.Roles {
			roles = append(roles, map[string]any{"role_code": r.RoleCode, "is_required": r.IsRequired})
		}
		perms := make([]any, 0, len(s.Permissions))
		for _, p := range s.Permissions {
			perms = append(perms, map[string]any{"permission_name": p.PermissionName, "is_required": p.IsRequired})
		}
		var timeout any
		if s.TimeoutDays != nil {
			timeout = *s.TimeoutDays
		}
		stages = append(stages, map[string]any{
			"id":            s.ID,
			"name":          s.Name,
			"order":         s.Order,
			"assigned_role": optString(s.AssignedRole),
			"is_required":   s.IsRequired,
			"auto_approve":  s.AutoApprove,
			"timeout_days":  timeout,
			"actions":       actionsView(s.Actions),
			"roles":         roles,
			"permissions":   perms,
		})
	}
	return map[string]any{
		"id":            tpl.ID,
		"name":          tpl.Name,
		"document_type": tpl.DocumentType,
		"description":   optString(tpl.Description),
		"is_active":     tpl.IsActive,
		"stages":        stages,
	}
}

func optString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func optTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
