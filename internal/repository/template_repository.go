package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-doc-workflows/internal/database"
	"github.com/pesio-ai/be-doc-workflows/internal/errors"
)

// TemplateRepository is the read side of the template/stage catalog plus the
// single authoring operation that writes a full template.
type TemplateRepository struct {
	db *database.DB
}

// NewTemplateRepository creates a new TemplateRepository.
func NewTemplateRepository(db *database.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

const templateColumns = `id, name, document_type, description, is_active, created_at, updated_at`

const stageColumns = `id, template_id, name, stage_order, assigned_role,
       is_required, auto_approve, timeout_days, created_at, updated_at`

const actionColumns = `id, stage_id, name, action_type, next_stage_id, sort_order, is_active, created_at`

// GetTemplateByID retrieves a template by primary key.
func (r *TemplateRepository) GetTemplateByID(ctx context.Context, id string) (*WorkflowTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM workflow_templates WHERE id = $1`

	tpl, err := scanTemplate(r.db.QueryRow(ctx, query, id))
	if isMissingRow(err) {
		return nil, errors.NotFound("workflow_template", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodePersistence, "failed to get workflow template")
	}
	return tpl, nil
}

// GetTemplateByDocumentType returns the newest active template bound to a
// document type.
func (r *TemplateRepository) GetTemplateByDocumentType(ctx context.Context, documentType string) (*WorkflowTemplate, error) {
	query := `
		SELECT ` + templateColumns + `
		FROM workflow_templates
		WHERE document_type = $1 AND is_active
		ORDER BY created_at DESC
		LIMIT 1
	`

	tpl, err := scanTemplate(r.db.QueryRow(ctx, query, documentType))
	if isMissingRow(err) {
		return nil, errors.NotFound("workflow_template for document type", documentType)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodePersistence, "failed to get workflow template")
	}
	return tpl, nil
}

// GetStagesByTemplate returns a template's stages ordered by stage_order.
func (r *TemplateRepository) GetStagesByTemplate(ctx context.Context, templateID string) ([]*WorkflowStage, error) {
	query := `SELECT ` + stageColumns + ` FROM workflow_stages WHERE template_id = $1 ORDER BY stage_order ASC`

	rows, err := r.db.Query(ctx, query, templateID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodePersistence, "failed to get workflow stages")
	}
	defer rows.Close()

	var stages []*WorkflowStage
	for rows.Next() {
		stage, err := scanStage(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodePersistence, "failed to scan workflow stage")
		}
		stages = append(stages, stage)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodePersistence, "failed to read workflow stages")
	}
	return stages, nil
}

// GetStageByID retrieves a stage by primary key.
func (r *TemplateRepository) GetStageByID(ctx context.Context, id string) (*WorkflowStage, error) {
	query := `SELECT ` + stageColumns + ` FROM workflow_stages WHERE id = $1`

	stage, err := scanStage(r.db.QueryRow(ctx, query, id))
	if isMissingRow(err) {
		return nil, errors.NotFound("workflow_stage", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodePersistence, "failed to get workflow stage")
	}
	return stage, nil
}

// GetFirstStage returns the lowest-order stage of a template, or nil when the
// template has no stages.
func (r *TemplateRepository) GetFirstStage(ctx context.Context, templateID string) (*WorkflowStage, error) {
	return r.firstStageAfter(ctx, templateID, 0)
}

// GetNextStageByOrder returns the stage of the same template with the
// smallest order strictly greater than order, or nil when there is none.
// Two stages tying on that order is reported as a configuration error.
func (r *TemplateRepository) GetNextStageByOrder(ctx context.Context, templateID string, order int) (*WorkflowStage, error) {
	return r.firstStageAfter(ctx, templateID, order)
}

func (r *TemplateRepository) firstStageAfter(ctx context.Context, templateID string, order int) (*WorkflowStage, error) {
	query := `
		SELECT ` + stageColumns + `
		FROM workflow_stages
		WHERE template_id = $1 AND stage_order > $2
		ORDER BY stage_order ASC
		LIMIT 2
	`

	rows, err := r.db.Query(ctx, query, templateID, order)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodePersistence, "failed to get next workflow stage")
	}
	defer rows.Close()

	var candidates []*WorkflowStage
	for rows.Next() {
		stage, err := scanStage(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodePersistence, "failed to scan workflow stage")
		}
		candidates = append(candidates, stage)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodePersistence, "failed to read workflow stages")
	}

	return pickNextStage(templateID, candidates)
}

// pickNextStage chooses the head of an order-sorted candidate list, refusing
// to break a tie on the minimum order.
func pickNextStage(templateID string, sorted []*WorkflowStage) (*WorkflowStage, error) {
	if len(sorted) == 0 {
		return nil, nil
	}
	if len(sorted) > 1 && sorted[0].Order == sorted[1].Order {
		return nil, errors.New(errors.ErrCodeConfiguration, fmt.Sprintf(
			"template %s has stages %s and %s sharing order %d",
			templateID, sorted[0].ID, sorted[1].ID, sorted[0].Order))
	}
	return sorted[0], nil
}

// GetActionByID retrieves a stage action by primary key.
func (r *TemplateRepository) GetActionByID(ctx context.Context, id string) (*WorkflowStageAction, error) {
	query := `SELECT ` + actionColumns + ` FROM workflow_stage_actions WHERE id = $1`

	action, err := scanAction(r.db.QueryRow(ctx, query, id))
	if isMissingRow(err) {
		return nil, errors.NotFound("workflow_stage_action", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodePersistence, "failed to get workflow stage action")
	}
	return action, nil
}

// GetActiveActionsByStage returns the active actions declared on a stage in
// display order.
func (r *TemplateRepository) GetActiveActionsByStage(ctx context.Context, stageID string) ([]*WorkflowStageAction, error) {
	query := `
		SELECT ` + actionColumns + `
		FROM workflow_stage_actions
		WHERE stage_id = $1 AND is_active
		ORDER BY sort_order ASC, name ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, stageID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodePersistence, "failed to get stage actions")
	}
	defer rows.Close()

	actions := []*WorkflowStageAction{}
	for rows.Next() {
		action, err := scanAction(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodePersistence, "failed to scan stage action")
		}
		actions = append(actions, action)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodePersistence, "failed to read stage actions")
	}
	return actions, nil
}

// CreateTemplate inserts a template with all of its stages, actions, roles and
// permissions in one transaction. Missing IDs are generated up front so that
// actions can reference sibling stages as their explicit next stage.
func (r *TemplateRepository) CreateTemplate(ctx context.Context, tpl *WorkflowTemplate) error {
	AssignTemplateIDs(tpl)

	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO workflow_templates (id, name, document_type, description, is_active)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING created_at, updated_at
		`, tpl.ID, tpl.Name, tpl.DocumentType, tpl.Description, tpl.IsActive,
		).Scan(&tpl.CreatedAt, &tpl.UpdatedAt)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodePersistence, "failed to create workflow template")
		}

		// Stages first: actions may point at any stage of the template.
		for _, stage := range tpl.Stages {
			err := tx.QueryRow(ctx, `
				INSERT INTO workflow_stages
				    (id, template_id, name, stage_order, assigned_role,
				     is_required, auto_approve, timeout_days)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				RETURNING created_at, updated_at
			`, stage.ID, tpl.ID, stage.Name, stage.Order, stage.AssignedRole,
				stage.IsRequired, stage.AutoApprove, stage.TimeoutDays,
			).Scan(&stage.CreatedAt, &stage.UpdatedAt)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodePersistence, "failed to create workflow stage")
			}
		}

		for _, stage := range tpl.Stages {
			for _, action := range stage.Actions {
				err := tx.QueryRow(ctx, `
					INSERT INTO workflow_stage_actions
					    (id, stage_id, name, action_type, next_stage_id, sort_order, is_active)
					VALUES ($1, $2, $3, $4, $5, $6, $7)
					RETURNING created_at
				`, action.ID, stage.ID, action.Name, action.ActionType,
					action.NextStageID, action.SortOrder, action.IsActive,
				).Scan(&action.CreatedAt)
				if err != nil {
					return errors.Wrap(err, errors.ErrCodePersistence, "failed to create stage action")
				}
			}
			for _, role := range stage.Roles {
				_, err := tx.Exec(ctx, `
					INSERT INTO workflow_stage_roles (id, stage_id, role_code, is_required, position)
					VALUES ($1, $2, $3, $4, $5)
				`, role.ID, stage.ID, role.RoleCode, role.IsRequired, role.Position)
				if err != nil {
					return errors.Wrap(err, errors.ErrCodePersistence, "failed to create stage role")
				}
			}
			for _, perm := range stage.Permissions {
				_, err := tx.Exec(ctx, `
					INSERT INTO workflow_stage_permissions (id, stage_id, permission_name, is_required)
					VALUES ($1, $2, $3, $4)
				`, perm.ID, stage.ID, perm.PermissionName, perm.IsRequired)
				if err != nil {
					return errors.Wrap(err, errors.ErrCodePersistence, "failed to create stage permission")
				}
			}
		}
		return nil
	})
	return errors.Persistence(err, "failed to create workflow template")
}

// AssignTemplateIDs fills empty IDs on a template tree and links children to
// their parents.
func AssignTemplateIDs(tpl *WorkflowTemplate) {
	if tpl.ID == "" {
		tpl.ID = uuid.NewString()
	}
	for _, stage := range tpl.Stages {
		if stage.ID == "" {
			stage.ID = uuid.NewString()
		}
		stage.TemplateID = tpl.ID
		for _, action := range stage.Actions {
			if action.ID == "" {
				action.ID = uuid.NewString()
			}
			action.StageID = stage.ID
		}
		for i, role := range stage.Roles {
			if role.ID == "" {
				role.ID = uuid.NewString()
			}
			role.StageID = stage.ID
			role.Position = i
		}
		for _, perm := range stage.Permissions {
			if perm.ID == "" {
				perm.ID = uuid.NewString()
			}
			perm.StageID = stage.ID
		}
	}
}

// ── scan helpers ──────────────────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row rowScanner) (*WorkflowTemplate, error) {
	t := &WorkflowTemplate{}
	err := row.Scan(
		&t.ID,
		&t.Name,
		&t.DocumentType,
		&t.Description,
		&t.IsActive,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func scanStage(row rowScanner) (*WorkflowStage, error) {
	s := &WorkflowStage{}
	err := row.Scan(
		&s.ID,
		&s.TemplateID,
		&s.Name,
		&s.Order,
		&s.AssignedRole,
		&s.IsRequired,
		&s.AutoApprove,
		&s.TimeoutDays,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func scanAction(row rowScanner) (*WorkflowStageAction, error) {
	a := &WorkflowStageAction{}
	err := row.Scan(
		&a.ID,
		&a.StageID,
		&a.Name,
		&a.ActionType,
		&a.NextStageID,
		&a.SortOrder,
		&a.IsActive,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}
