package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/pesio-ai/be-doc-workflows/internal/errors"
	"github.com/pesio-ai/be-doc-workflows/internal/logger"
	"github.com/pesio-ai/be-doc-workflows/internal/repository"
	"github.com/pesio-ai/be-doc-workflows/internal/service"
)

// Actor headers set by the API gateway after authentication.
const (
	HeaderUserID          = "X-User-ID"
	HeaderUserRole        = "X-User-Role"
	HeaderUserPermissions = "X-User-Permissions"
)

// HTTPHandler handles HTTP requests
type HTTPHandler struct {
	engine    *service.WorkflowEngine
	templates *service.TemplateService
	log       *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(engine *service.WorkflowEngine, templates *service.TemplateService, log *logger.Logger) *HTTPHandler {
	return &HTTPHandler{
		engine:    engine,
		templates: templates,
		log:       log,
	}
}

// Register mounts the handler's routes on mux.
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/workflows/start", h.StartWorkflow)
	mux.HandleFunc("/api/v1/workflows/actions/process", h.ProcessAction)
	mux.HandleFunc("/api/v1/workflows/get", h.GetWorkflow)
	mux.HandleFunc("/api/v1/workflows/actions", h.GetAvailableActions)
	mux.HandleFunc("/api/v1/workflows/history", h.GetHistory)
	mux.HandleFunc("/api/v1/templates", h.CreateTemplate)
	mux.HandleFunc("/api/v1/templates/get", h.GetTemplate)
}

// StartWorkflowRequest is the body of POST /api/v1/workflows/start.
type StartWorkflowRequest struct {
	DocumentID   string  `json:"document_id"`
	DocumentType string  `json:"document_type"`
	TemplateID   string  `json:"template_id"`
	Comments     *string `json:"comments"`
}

// ProcessActionRequest is the body of POST /api/v1/workflows/actions/process.
type ProcessActionRequest struct {
	DocumentWorkflowID string   `json:"document_workflow_id"`
	ActionID           string   `json:"action_id"`
	Comments           *string  `json:"comments"`
	Attachments        []string `json:"attachments"`
}

// StartWorkflow handles workflow initiation. The initiator is the caller.
func (h *HTTPHandler) StartWorkflow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req StartWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, errors.InvalidInput("body", "invalid request body"))
		return
	}

	wf, err := h.engine.StartWorkflow(r.Context(), &service.StartWorkflowRequest{
		DocumentID:   req.DocumentID,
		DocumentType: req.DocumentType,
		TemplateID:   req.TemplateID,
		InitiatedBy:  actorFromHeaders(r).UserID,
		Comments:     req.Comments,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, workflowSnapshot(r.Context(), h.engine, &h.log.Logger, wf))
}

// ProcessAction handles an action submission.
func (h *HTTPHandler) ProcessAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ProcessActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, errors.InvalidInput("body", "invalid request body"))
		return
	}

	wf, err := h.engine.ProcessAction(r.Context(), &service.ProcessActionRequest{
		DocumentWorkflowID: req.DocumentWorkflowID,
		ActionID:           req.ActionID,
		Actor:              actorFromHeaders(r),
		Comments:           req.Comments,
		Attachments:        req.Attachments,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, workflowSnapshot(r.Context(), h.engine, &h.log.Logger, wf))
}

// GetWorkflow returns a workflow snapshot.
func (h *HTTPHandler) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireGetID(w, r)
	if !ok {
		return
	}

	wf, err := h.engine.GetWorkflow(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, workflowSnapshot(r.Context(), h.engine, &h.log.Logger, wf))
}

// GetAvailableActions lists the actions of the workflow's current stage.
func (h *HTTPHandler) GetAvailableActions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireGetID(w, r)
	if !ok {
		return
	}

	actions, err := h.engine.GetAvailableActions(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"actions": actionsView(actions)})
}

// GetHistory returns the workflow's ledger and the stage path it implies.
func (h *HTTPHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireGetID(w, r)
	if !ok {
		return
	}

	history, err := h.engine.GetHistory(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	entries := make([]any, 0, len(history))
	for _, entry := range history {
		entries = append(entries, historyView(entry))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"history":    entries,
		"stage_path": service.StagePath(history),
	})
}

// CreateTemplateRequest is the body of POST /api/v1/templates. Stages may
// carry a client-chosen key that actions reference as next_stage_key.
type CreateTemplateRequest struct {
	Name         string               `json:"name"`
	DocumentType string               `json:"document_type"`
	Description  *string              `json:"description"`
	IsActive     *bool                `json:"is_active"`
	Stages       []CreateStageRequest `json:"stages"`
}

type CreateStageRequest struct {
	Key          string   `json:"key"`
	Name         string   `json:"name"`
	Order        int      `json:"order"`
	AssignedRole *string  `json:"assigned_role"`
	IsRequired   bool     `json:"is_required"`
	AutoApprove  bool     `json:"auto_approve"`
	TimeoutDays  *int     `json:"timeout_days"`
	Roles        []string `json:"roles"`
	Permissions  []string `json:"permissions"`
	Actions      []struct {
		Name         string  `json:"name"`
		ActionType   string  `json:"action_type"`
		NextStageKey *string `json:"next_stage_key"`
		SortOrder    int     `json:"sort_order"`
	} `json:"actions"`
}

// CreateTemplate handles template authoring.
func (h *HTTPHandler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req CreateTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, errors.InvalidInput("body", "invalid request body"))
		return
	}

	tpl, err := h.templates.CreateTemplate(r.Context(), req.toTemplate())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, templateView(tpl))
}

// GetTemplate returns a template with its stages.
func (h *HTTPHandler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireGetID(w, r)
	if !ok {
		return
	}

	tpl, err := h.templates.GetTemplateDetail(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, templateView(tpl))
}

func (req *CreateTemplateRequest) toTemplate() *repository.WorkflowTemplate {
	tpl := &repository.WorkflowTemplate{
		Name:         req.Name,
		DocumentType: req.DocumentType,
		Description:  req.Description,
		IsActive:     req.IsActive == nil || *req.IsActive,
	}

	keys := make(map[string]string, len(req.Stages))
	for _, s := range req.Stages {
		stage := &repository.WorkflowStage{
			ID:           uuid.NewString(),
			Name:         s.Name,
			Order:        s.Order,
			AssignedRole: s.AssignedRole,
			IsRequired:   s.IsRequired,
			AutoApprove:  s.AutoApprove,
			TimeoutDays:  s.TimeoutDays,
		}
		if s.Key != "" {
			keys[s.Key] = stage.ID
		}
		for _, code := range s.Roles {
			stage.Roles = append(stage.Roles, &repository.WorkflowStageRole{RoleCode: code, IsRequired: true})
		}
		for _, name := range s.Permissions {
			stage.Permissions = append(stage.Permissions, &repository.WorkflowStagePermission{PermissionName: name, IsRequired: true})
		}
		tpl.Stages = append(tpl.Stages, stage)
	}

	for i, s := range req.Stages {
		for _, a := range s.Actions {
			action := &repository.WorkflowStageAction{
				Name:       a.Name,
				ActionType: a.ActionType,
				SortOrder:  a.SortOrder,
				IsActive:   true,
			}
			if a.NextStageKey != nil {
				next, ok := keys[*a.NextStageKey]
				if !ok {
					// Left unresolved so template validation rejects it.
					next = *a.NextStageKey
				}
				action.NextStageID = &next
			}
			tpl.Stages[i].Actions = append(tpl.Stages[i].Actions, action)
		}
	}
	return tpl
}

// actorFromHeaders reads the caller identity asserted by the gateway.
func actorFromHeaders(r *http.Request) service.ActorContext {
	return service.ActorContext{
		UserID:      strings.TrimSpace(r.Header.Get(HeaderUserID)),
		RoleCode:    strings.TrimSpace(r.Header.Get(HeaderUserRole)),
		Permissions: splitList(r.Header.Get(HeaderUserPermissions)),
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (h *HTTPHandler) requireGetID(w http.ResponseWriter, r *http.Request) (string, bool) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return "", false
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		h.writeError(w, r, errors.InvalidInput("id", "id is required"))
		return "", false
	}
	return id, true
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := errors.CodeOf(err)
	status := errors.HTTPStatus(code)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	}
	writeJSON(w, status, map[string]any{"code": string(code), "error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
