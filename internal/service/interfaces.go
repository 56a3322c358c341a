package service

import (
	"context"
	"time"

	"github.com/pesio-ai/be-doc-workflows/internal/repository"
)

// Catalog is the read-only template/stage view used by the engine.
type Catalog interface {
	GetTemplateByID(ctx context.Context, id string) (*repository.WorkflowTemplate, error)
	GetTemplateByDocumentType(ctx context.Context, documentType string) (*repository.WorkflowTemplate, error)
	GetStagesByTemplate(ctx context.Context, templateID string) ([]*repository.WorkflowStage, error)
	GetStageByID(ctx context.Context, id string) (*repository.WorkflowStage, error)
	// GetFirstStage returns nil when the template has no stages.
	GetFirstStage(ctx context.Context, templateID string) (*repository.WorkflowStage, error)
	// GetNextStageByOrder returns nil when no stage of the template has a
	// greater order.
	GetNextStageByOrder(ctx context.Context, templateID string, order int) (*repository.WorkflowStage, error)
	GetActionByID(ctx context.Context, id string) (*repository.WorkflowStageAction, error)
	GetActiveActionsByStage(ctx context.Context, stageID string) ([]*repository.WorkflowStageAction, error)
}

// StageAccess reads stage role and permission requirements.
type StageAccess interface {
	GetRolesByStage(ctx context.Context, stageID string) ([]*repository.WorkflowStageRole, error)
	GetPermissionsByStage(ctx context.Context, stageID string) ([]*repository.WorkflowStagePermission, error)
}

// UserDirectory resolves users from the external user service.
type UserDirectory interface {
	GetUsersByRoleCode(ctx context.Context, roleCode string) ([]string, error)
}

// WorkflowStore persists document workflows.
type WorkflowStore interface {
	Create(ctx context.Context, wf *repository.DocumentWorkflow, history []*repository.WorkflowStageHistory) error
	GetByID(ctx context.Context, id string) (*repository.DocumentWorkflow, error)
	InTransaction(ctx context.Context, fn func(tx repository.WorkflowTx) error) error
}

// HistoryStore reads the history ledger.
type HistoryStore interface {
	GetByWorkflowID(ctx context.Context, workflowID string) ([]*repository.WorkflowStageHistory, error)
}

// TemplateWriter persists a complete template tree.
type TemplateWriter interface {
	CreateTemplate(ctx context.Context, tpl *repository.WorkflowTemplate) error
}

// Notification event types.
const (
	EventWorkflowStarted      = "workflow_started"
	EventWorkflowTransitioned = "workflow_transitioned"
	EventWorkflowCompleted    = "workflow_completed"
)

// WorkflowEvent describes a committed change for the notification collaborator.
type WorkflowEvent struct {
	EventType    string
	WorkflowID   string
	DocumentID   string
	DocumentType string
	TemplateID   string
	StageID      *string
	StageName    string
	Assignee     *string
	Action       string
	ActorID      string
	DueAt        *time.Time
	OccurredAt   time.Time
}

// Notifier receives events after commit. Implementations must not block on
// delivery and must not fail the caller.
type Notifier interface {
	PublishWorkflowEvent(ctx context.Context, event *WorkflowEvent)
}
