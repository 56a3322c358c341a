package service

import (
	"context"
	stderrors "errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-doc-workflows/internal/logger"
	"github.com/pesio-ai/be-doc-workflows/internal/metrics"
	"github.com/pesio-ai/be-doc-workflows/internal/repository"
	"github.com/pesio-ai/be-doc-workflows/internal/repository/memory"
)

type failingDirectory struct{}

func (failingDirectory) GetUsersByRoleCode(context.Context, string) ([]string, error) {
	return nil, stderrors.New("user service unavailable")
}

func resolverStages(t *testing.T, store *memory.Store) (multi, open *repository.WorkflowStage) {
	t.Helper()
	multi = &repository.WorkflowStage{
		Name: "Review", Order: 1,
		Roles: []*repository.WorkflowStageRole{
			{RoleCode: "REVIEWER", IsRequired: false},
			{RoleCode: "CHAIR", IsRequired: true},
		},
	}
	open = &repository.WorkflowStage{Name: "Open", Order: 2}
	tpl := &repository.WorkflowTemplate{
		Name: "Course", DocumentType: "course",
		Stages: []*repository.WorkflowStage{multi, open},
	}
	require.NoError(t, store.CreateTemplate(context.Background(), tpl))
	return multi, open
}

func TestResolveAssigneeUsesFirstDeclaredRole(t *testing.T) {
	store := memory.New()
	multi, _ := resolverStages(t, store)
	users := memory.NewDirectory(map[string][]string{
		"REVIEWER": {"zoe", "", "amir", "maya"},
		"CHAIR":    {"aaron"},
	})

	r := NewAssignmentResolver(store, users, nil, logger.Nop())
	got, err := r.ResolveAssignee(context.Background(), multi.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "amir", *got, "first role wins even when a later role is required")
}

func TestResolveAssigneeNoCandidates(t *testing.T) {
	store := memory.New()
	multi, open := resolverStages(t, store)
	ctx := context.Background()

	r := NewAssignmentResolver(store, memory.NewDirectory(nil), nil, logger.Nop())

	got, err := r.ResolveAssignee(ctx, open.ID)
	require.NoError(t, err)
	assert.Nil(t, got, "stage without roles")

	got, err = r.ResolveAssignee(ctx, multi.ID)
	require.NoError(t, err)
	assert.Nil(t, got, "nobody holds the first role")
}

func TestResolveAssigneeDirectoryFailureLeavesUnassigned(t *testing.T) {
	store := memory.New()
	multi, _ := resolverStages(t, store)

	m := metrics.New()
	r := NewAssignmentResolver(store, failingDirectory{}, m, logger.Nop())
	got, err := r.ResolveAssignee(context.Background(), multi.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `docworkflows_assignment_failures_total{role="REVIEWER"} 1`)
}

func TestResolveAssigneeDoesNotReorderDirectoryResult(t *testing.T) {
	store := memory.New()
	multi, _ := resolverStages(t, store)
	users := memory.NewDirectory(map[string][]string{"REVIEWER": {"b", "a"}})

	r := NewAssignmentResolver(store, users, nil, logger.Nop())
	_, err := r.ResolveAssignee(context.Background(), multi.ID)
	require.NoError(t, err)

	again, err := users.GetUsersByRoleCode(context.Background(), "REVIEWER")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, again)
}
