package repository

import (
	"context"
	"time"
)

// ── Domain types for document workflows ──────────────────────────────────────

// Document workflow statuses. Completed is terminal.
const (
	StatusInProgress = "In Progress"
	StatusCompleted  = "Completed"
)

// History action names written by the engine itself (as opposed to the
// stage-declared action names written when a user acts).
const (
	HistoryActionSubmitted = "submitted"
	HistoryActionAssigned  = "assigned"
)

// WorkflowTemplate is a reusable approval path bound to one document type.
type WorkflowTemplate struct {
	ID           string
	Name         string
	DocumentType string
	Description  *string
	IsActive     bool
	Stages       []*WorkflowStage // populated by authoring and GetTemplateDetail only
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// WorkflowStage is one ordered step of a template.
type WorkflowStage struct {
	ID           string
	TemplateID   string
	Name         string
	Order        int
	AssignedRole *string
	IsRequired   bool
	AutoApprove  bool
	TimeoutDays  *int
	Actions      []*WorkflowStageAction     // authoring only
	Roles        []*WorkflowStageRole       // authoring only
	Permissions  []*WorkflowStagePermission // authoring only
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// WorkflowStageAction is an operation a user can take from a stage. A nil
// NextStageID means "next stage by order".
type WorkflowStageAction struct {
	ID          string
	StageID     string
	Name        string
	ActionType  string // approve | reject | return | submit | ...
	NextStageID *string
	SortOrder   int
	IsActive    bool
	CreatedAt   time.Time
}

// WorkflowStageRole makes a role code eligible to act at a stage.
type WorkflowStageRole struct {
	ID         string
	StageID    string
	RoleCode   string
	IsRequired bool
	Position   int // declaration order
}

// WorkflowStagePermission names a permission needed to act at a stage.
type WorkflowStagePermission struct {
	ID             string
	StageID        string
	PermissionName string
	IsRequired     bool
}

// DocumentWorkflow is a live instance of a template for one document.
type DocumentWorkflow struct {
	ID             string
	DocumentID     string
	DocumentType   string
	TemplateID     string
	CurrentStageID *string // nil once Completed
	Status         string
	InitiatedBy    string
	InitiatedAt    time.Time
	CompletedAt    *time.Time
	UpdatedAt      time.Time
}

// IsCompleted reports whether the workflow has reached its terminal state.
func (w *DocumentWorkflow) IsCompleted() bool {
	return w.Status == StatusCompleted || w.CurrentStageID == nil
}

// WorkflowStageHistory is one immutable ledger entry.
type WorkflowStageHistory struct {
	ID                 string
	Seq                int64
	DocumentWorkflowID string
	StageID            string
	Action             string
	ProcessedBy        string
	AssignedTo         *string
	Comments           *string
	Attachments        []string
	ProcessedAt        time.Time
}

// WorkflowTx is the transactional scope handed to the engine for one
// transition. Implementations must serialize concurrent transactions on the
// same workflow from GetForUpdate until commit.
type WorkflowTx interface {
	// GetForUpdate reads the workflow and locks it for the rest of the transaction.
	GetForUpdate(ctx context.Context, id string) (*DocumentWorkflow, error)
	// Update persists current stage, status and completion time.
	Update(ctx context.Context, wf *DocumentWorkflow) error
	// AppendHistory inserts one ledger entry.
	AppendHistory(ctx context.Context, entry *WorkflowStageHistory) error
}
