package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-doc-workflows/internal/errors"
	"github.com/pesio-ai/be-doc-workflows/internal/logger"
	"github.com/pesio-ai/be-doc-workflows/internal/repository"
	"github.com/pesio-ai/be-doc-workflows/internal/repository/memory"
)

func validTemplate() *repository.WorkflowTemplate {
	return &repository.WorkflowTemplate{
		Name: "Syllabus approval", DocumentType: "syllabus", IsActive: true,
		Stages: []*repository.WorkflowStage{
			{
				ID: "draft", Name: "Draft", Order: 1,
				Actions: []*repository.WorkflowStageAction{
					{Name: "submit", IsActive: true},
					{Name: "fast-track", IsActive: true, NextStageID: ptr("publish")},
				},
				Roles: []*repository.WorkflowStageRole{{RoleCode: "FACULTY", IsRequired: true}},
			},
			{
				ID: "publish", Name: "Publish", Order: 2,
				Actions:     []*repository.WorkflowStageAction{{Name: "publish", IsActive: true}},
				Permissions: []*repository.WorkflowStagePermission{{PermissionName: "syllabus.publish", IsRequired: true}},
			},
		},
	}
}

func ptr[T any](v T) *T { return &v }

func TestValidateTemplate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*repository.WorkflowTemplate)
		code   errors.Code
	}{
		{"valid", func(*repository.WorkflowTemplate) {}, ""},
		{"missing name", func(tpl *repository.WorkflowTemplate) { tpl.Name = " " }, errors.ErrCodeInvalidInput},
		{"missing document type", func(tpl *repository.WorkflowTemplate) { tpl.DocumentType = "" }, errors.ErrCodeInvalidInput},
		{"no stages", func(tpl *repository.WorkflowTemplate) { tpl.Stages = nil }, errors.ErrCodeConfiguration},
		{"tied orders", func(tpl *repository.WorkflowTemplate) { tpl.Stages[1].Order = 1 }, errors.ErrCodeConfiguration},
		{"zero order", func(tpl *repository.WorkflowTemplate) { tpl.Stages[0].Order = 0 }, errors.ErrCodeConfiguration},
		{"unnamed stage", func(tpl *repository.WorkflowTemplate) { tpl.Stages[1].Name = "" }, errors.ErrCodeConfiguration},
		{"negative timeout", func(tpl *repository.WorkflowTemplate) { tpl.Stages[1].TimeoutDays = ptr(-1) }, errors.ErrCodeConfiguration},
		{"unnamed action", func(tpl *repository.WorkflowTemplate) { tpl.Stages[0].Actions[0].Name = "" }, errors.ErrCodeConfiguration},
		{"next stage outside template", func(tpl *repository.WorkflowTemplate) {
			tpl.Stages[0].Actions[1].NextStageID = ptr("elsewhere")
		}, errors.ErrCodeConfiguration},
		{"empty role code", func(tpl *repository.WorkflowTemplate) { tpl.Stages[0].Roles[0].RoleCode = "" }, errors.ErrCodeConfiguration},
		{"empty permission", func(tpl *repository.WorkflowTemplate) {
			tpl.Stages[1].Permissions[0].PermissionName = ""
		}, errors.ErrCodeConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tpl := validTemplate()
			tt.mutate(tpl)
			assert.Equal(t, tt.code, errors.CodeOf(ValidateTemplate(tpl)))
		})
	}
}

func TestCreateTemplateAndDetail(t *testing.T) {
	store := memory.New()
	svc := NewTemplateService(store, store, store, logger.Nop())
	ctx := context.Background()

	created, err := svc.CreateTemplate(ctx, validTemplate())
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	detail, err := svc.GetTemplateDetail(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, detail.Stages, 2)
	assert.Equal(t, "Draft", detail.Stages[0].Name)
	assert.Len(t, detail.Stages[0].Actions, 2)
	require.Len(t, detail.Stages[0].Roles, 1)
	assert.Equal(t, "FACULTY", detail.Stages[0].Roles[0].RoleCode)
	require.Len(t, detail.Stages[1].Permissions, 1)

	first, err := store.GetFirstStage(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "draft", first.ID)
}

func TestCreateTemplateRejectsInvalid(t *testing.T) {
	store := memory.New()
	svc := NewTemplateService(store, store, store, logger.Nop())

	tpl := validTemplate()
	tpl.Stages[1].Order = 1
	_, err := svc.CreateTemplate(context.Background(), tpl)
	assert.True(t, errors.Is(err, errors.ErrCodeConfiguration))

	_, err = store.GetTemplateByID(context.Background(), tpl.ID)
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound), "nothing is stored")

	_, err = svc.CreateTemplate(context.Background(), nil)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
}

func TestGetTemplateDetailNotFound(t *testing.T) {
	store := memory.New()
	svc := NewTemplateService(store, store, store, logger.Nop())
	_, err := svc.GetTemplateDetail(context.Background(), "missing")
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))
}
