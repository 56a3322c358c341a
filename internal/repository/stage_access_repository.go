package repository

import (
	"context"

	"github.com/pesio-ai/be-doc-workflows/internal/database"
	"github.com/pesio-ai/be-doc-workflows/internal/errors"
)

// StageAccessRepository reads the role and permission requirements of stages.
type StageAccessRepository struct {
	db *database.DB
}

// NewStageAccessRepository creates a new StageAccessRepository.
func NewStageAccessRepository(db *database.DB) *StageAccessRepository {
	return &StageAccessRepository{db: db}
}

// GetRolesByStage returns the eligible role codes of a stage in declaration order.
func (r *StageAccessRepository) GetRolesByStage(ctx context.Context, stageID string) ([]*WorkflowStageRole, error) {
	query := `
		SELECT id, stage_id, role_code, is_required, position
		FROM workflow_stage_roles
		WHERE stage_id = $1
		ORDER BY position ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, stageID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodePersistence, "failed to get stage roles")
	}
	defer rows.Close()

	var roles []*WorkflowStageRole
	for rows.Next() {
		role := &WorkflowStageRole{}
		if err := rows.Scan(&role.ID, &role.StageID, &role.RoleCode, &role.IsRequired, &role.Position); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodePersistence, "failed to scan stage role")
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodePersistence, "failed to read stage roles")
	}
	return roles, nil
}

// GetPermissionsByStage returns the permission requirements of a stage.
func (r *StageAccessRepository) GetPermissionsByStage(ctx context.Context, stageID string) ([]*WorkflowStagePermission, error) {
	query := `
		SELECT id, stage_id, permission_name, is_required
		FROM workflow_stage_permissions
		WHERE stage_id = $1
		ORDER BY permission_name ASC
	`

	rows, err := r.db.Query(ctx, query, stageID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodePersistence, "failed to get stage permissions")
	}
	defer rows.Close()

	var perms []*WorkflowStagePermission
	for rows.Next() {
		p := &WorkflowStagePermission{}
		if err := rows.Scan(&p.ID, &p.StageID, &p.PermissionName, &p.IsRequired); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodePersistence, "failed to scan stage permission")
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodePersistence, "failed to read stage permissions")
	}
	return perms, nil
}
