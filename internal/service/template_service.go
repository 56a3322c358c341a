package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/pesio-ai/be-doc-workflows/internal/errors"
	"github.com/pesio-ai/be-doc-workflows/internal/logger"
	"github.com/pesio-ai/be-doc-workflows/internal/repository"
)

// TemplateService handles workflow template authoring.
type TemplateService struct {
	catalog Catalog
	access  StageAccess
	writer  TemplateWriter
	log     *logger.Logger
}

// NewTemplateService creates a new TemplateService.
func NewTemplateService(catalog Catalog, access StageAccess, writer TemplateWriter, log *logger.Logger) *TemplateService {
	return &TemplateService{catalog: catalog, access: access, writer: writer, log: log}
}

// CreateTemplate validates and stores a complete template tree.
func (s *TemplateService) CreateTemplate(ctx context.Context, tpl *repository.WorkflowTemplate) (*repository.WorkflowTemplate, error) {
	if tpl == nil {
		return nil, errors.InvalidInput("template", "template is required")
	}
	repository.AssignTemplateIDs(tpl)

	if err := ValidateTemplate(tpl); err != nil {
		return nil, err
	}
	if err := s.writer.CreateTemplate(ctx, tpl); err != nil {
		s.log.Error().Err(err).Str("template_id", tpl.ID).Msg("Failed to create workflow template")
		return nil, err
	}

	s.log.Info().
		Str("template_id", tpl.ID).
		Str("document_type", tpl.DocumentType).
		Int("stages", len(tpl.Stages)).
		Msg("Workflow template created")
	return tpl, nil
}

// GetTemplateDetail loads a template with its stages and each stage's active
// actions, roles and permissions.
func (s *TemplateService) GetTemplateDetail(ctx context.Context, id string) (*repository.WorkflowTemplate, error) {
	tpl, err := s.catalog.GetTemplateByID(ctx, id)
	if err != nil {
		return nil, err
	}
	stages, err := s.catalog.GetStagesByTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, stage := range stages {
		if stage.Actions, err = s.catalog.GetActiveActionsByStage(ctx, stage.ID); err != nil {
			return nil, err
		}
		if stage.Roles, err = s.access.GetRolesByStage(ctx, stage.ID); err != nil {
			return nil, err
		}
		if stage.Permissions, err = s.access.GetPermissionsByStage(ctx, stage.ID); err != nil {
			return nil, err
		}
	}
	tpl.Stages = stages
	return tpl, nil
}

// ValidateTemplate checks a template tree before it is stored. Stage orders
// must be positive and unique so that "next stage by order" is never
// ambiguous, and explicit next stages must stay inside the template.
func ValidateTemplate(tpl *repository.WorkflowTemplate) error {
	if strings.TrimSpace(tpl.Name) == "" {
		return errors.InvalidInput("name", "template name is required")
	}
	if strings.TrimSpace(tpl.DocumentType) == "" {
		return errors.InvalidInput("document_type", "document type is required")
	}
	if len(tpl.Stages) == 0 {
		return configError("template %q has no stages", tpl.Name)
	}

	stageIDs := make(map[string]struct{}, len(tpl.Stages))
	orders := make(map[int]string, len(tpl.Stages))
	for _, stage := range tpl.Stages {
		if strings.TrimSpace(stage.Name) == "" {
			return configError("stage with order %d has no name", stage.Order)
		}
		if stage.Order <= 0 {
			return configError("stage %q has non-positive order %d", stage.Name, stage.Order)
		}
		if other, dup := orders[stage.Order]; dup {
			return configError("stages %q and %q share order %d", other, stage.Name, stage.Order)
		}
		if stage.TimeoutDays != nil && *stage.TimeoutDays < 0 {
			return configError("stage %q has negative timeout", stage.Name)
		}
		orders[stage.Order] = stage.Name
		stageIDs[stage.ID] = struct{}{}
	}

	for _, stage := range tpl.Stages {
		for _, action := range stage.Actions {
			if strings.TrimSpace(action.Name) == "" {
				return configError("stage %q has an action without a name", stage.Name)
			}
			if action.NextStageID == nil {
				continue
			}
			if _, ok := stageIDs[*action.NextStageID]; !ok {
				return configError("action %q of stage %q targets stage %s outside the template",
					action.Name, stage.Name, *action.NextStageID)
			}
		}
		for _, role := range stage.Roles {
			if strings.TrimSpace(role.RoleCode) == "" {
				return configError("stage %q has an empty role code", stage.Name)
			}
		}
		for _, perm := range stage.Permissions {
			if strings.TrimSpace(perm.PermissionName) == "" {
				return configError("stage %q has an empty permission name", stage.Name)
			}
		}
	}
	return nil
}

func configError(format string, args ...any) error {
	return errors.New(errors.ErrCodeConfiguration, fmt.Sprintf(format, args...))
}
