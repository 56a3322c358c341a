package service

import (
	"context"
	"slices"

	"github.com/pesio-ai/be-doc-workflows/internal/logger"
	"github.com/pesio-ai/be-doc-workflows/internal/metrics"
)

// AssignmentResolver picks the default assignee for a stage.
//
// Policy: take the stage's first declared role, list the users holding it,
// and pick the smallest user ID. Required/optional flags on roles are not
// consulted. This is a deterministic first-match, not load balancing.
type AssignmentResolver struct {
	access StageAccess
	users   UserDirectory
	metrics *metrics.Metrics
	log     *logger.Logger
}

// NewAssignmentResolver creates a new AssignmentResolver. m may be nil.
func NewAssignmentResolver(access StageAccess, users UserDirectory, m *metrics.Metrics, log *logger.Logger) *AssignmentResolver {
	return &AssignmentResolver{access: access, users: users, metrics: m, log: log}
}

// ResolveAssignee returns the default assignee for stageID, or nil when the
// stage declares no roles or nobody holds the first one. A failing user
// directory leaves the stage unassigned rather than blocking the transition;
// it is logged and counted in docworkflows_assignment_failures_total.
func (r *AssignmentResolver) ResolveAssignee(ctx context.Context, stageID string) (*string, error) {
	roles, err := r.access.GetRolesByStage(ctx, stageID)
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 || r.users == nil {
		return nil, nil
	}

	roleCode := roles[0].RoleCode
	users, err := r.users.GetUsersByRoleCode(ctx, roleCode)
	if err != nil {
		r.metrics.AssignmentFailure(roleCode)
		r.log.Warn().Err(err).
			Str("stage_id", stageID).
			Str("role", roleCode).
			Msg("Could not fetch users for role; stage will be unassigned")
		return nil, nil
	}

	users = slices.DeleteFunc(slices.Clone(users), func(id string) bool { return id == "" })
	if len(users) == 0 {
		return nil, nil
	}
	slices.Sort(users)
	assignee := users[0]
	return &assignee, nil
}
