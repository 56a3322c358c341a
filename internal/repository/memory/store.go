// Package memory is an in-memory implementation of the catalog, workflow and
// history stores. Safe for concurrent access. Intended for unit testing and
// local development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pesio-ai/be-doc-workflows/internal/errors"
	"github.com/pesio-ai/be-doc-workflows/internal/repository"
)

// Store holds templates, live workflows and the history ledger.
type Store struct {
	mu sync.RWMutex

	templates   map[string]*repository.WorkflowTemplate
	stages      map[string]*repository.WorkflowStage
	actions     map[string]*repository.WorkflowStageAction
	roles       map[string][]*repository.WorkflowStageRole       // key: stage ID
	permissions map[string][]*repository.WorkflowStagePermission // key: stage ID
	workflows   map[string]*repository.DocumentWorkflow
	history     map[string][]*repository.WorkflowStageHistory // key: workflow ID
	seq         int64

	// txMu serializes workflow transactions, standing in for row locks.
	txMu sync.Mutex

	appendErr error // returned by the next AppendHistory, then cleared
	now       func() time.Time
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		templates:   make(map[string]*repository.WorkflowTemplate),
		stages:      make(map[string]*repository.WorkflowStage),
		actions:     make(map[string]*repository.WorkflowStageAction),
		roles:       make(map[string][]*repository.WorkflowStageRole),
		permissions: make(map[string][]*repository.WorkflowStagePermission),
		workflows:   make(map[string]*repository.DocumentWorkflow),
		history:     make(map[string][]*repository.WorkflowStageHistory),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// FailNextAppend makes the next history append fail with err, so tests can
// exercise transaction rollback.
func (m *Store) FailNextAppend(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendErr = err
}

// ──────────────────────────────────────────────────
// Catalog
// ──────────────────────────────────────────────────

// CreateTemplate stores a template tree. Unlike the PostgreSQL store there is
// no unique index on stage order, so tied orders can be loaded for tests.
func (m *Store) CreateTemplate(_ context.Context, tpl *repository.WorkflowTemplate) error {
	repository.AssignTemplateIDs(tpl)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.templates[tpl.ID]; ok {
		return errors.AlreadyExists("workflow_template", tpl.ID)
	}

	now := m.now()
	tpl.CreatedAt, tpl.UpdatedAt = now, now
	t := *tpl
	t.Stages = nil
	m.templates[t.ID] = &t

	for _, stage := range tpl.Stages {
		stage.CreatedAt, stage.UpdatedAt = now, now
		s := *stage
		s.Actions, s.Roles, s.Permissions = nil, nil, nil
		m.stages[s.ID] = &s

		for _, action := range stage.Actions {
			action.CreatedAt = now
			a := *action
			m.actions[a.ID] = &a
		}
		for _, role := range stage.Roles {
			r := *role
			m.roles[stage.ID] = append(m.roles[stage.ID], &r)
		}
		for _, perm := range stage.Permissions {
			p := *perm
			m.permissions[stage.ID] = append(m.permissions[stage.ID], &p)
		}
	}
	return nil
}

func (m *Store) GetTemplateByID(_ context.Context, id string) (*repository.WorkflowTemplate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.templates[id]
	if !ok {
		return nil, errors.NotFound("workflow_template", id)
	}
	cp := *t
	return &cp, nil
}

func (m *Store) GetTemplateByDocumentType(_ context.Context, documentType string) (*repository.WorkflowTemplate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var newest *repository.WorkflowTemplate
	for _, t := range m.templates {
		if t.DocumentType != documentType || !t.IsActive {
			continue
		}
		if newest == nil || t.CreatedAt.After(newest.CreatedAt) ||
			(t.CreatedAt.Equal(newest.CreatedAt) && t.ID > newest.ID) {
			newest = t
		}
	}
	if newest == nil {
		return nil, errors.NotFound("workflow_template for document type", documentType)
	}
	cp := *newest
	return &cp, nil
}

func (m *Store) GetStagesByTemplate(_ context.Context, templateID string) ([]*repository.WorkflowStage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stagesAfterLocked(templateID, 0), nil
}

func (m *Store) GetStageByID(_ context.Context, id string) (*repository.WorkflowStage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.stages[id]
	if !ok {
		return nil, errors.NotFound("workflow_stage", id)
	}
	cp := *s
	return &cp, nil
}

func (m *Store) GetFirstStage(ctx context.Context, templateID string) (*repository.WorkflowStage, error) {
	return m.GetNextStageByOrder(ctx, templateID, 0)
}

func (m *Store) GetNextStageByOrder(_ context.Context, templateID string, order int) (*repository.WorkflowStage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	candidates := m.stagesAfterLocked(templateID, order)
	if len(candidates) == 0 {
		return nil, nil
	}
	if len(candidates) > 1 && candidates[0].Order == candidates[1].Order {
		return nil, errors.New(errors.ErrCodeConfiguration, fmt.Sprintf(
			"template %s has stages %s and %s sharing order %d",
			templateID, candidates[0].ID, candidates[1].ID, candidates[0].Order))
	}
	return candidates[0], nil
}

// stagesAfterLocked returns copies of a template's stages with order > after,
// sorted by order then ID.
func (m *Store) stagesAfterLocked(templateID string, after int) []*repository.WorkflowStage {
	var out []*repository.WorkflowStage
	for _, s := range m.stages {
		if s.TemplateID == templateID && s.Order > after {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *Store) GetActionByID(_ context.Context, id string) (*repository.WorkflowStageAction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.actions[id]
	if !ok {
		return nil, errors.NotFound("workflow_stage_action", id)
	}
	cp := *a
	return &cp, nil
}

func (m *Store) GetActiveActionsByStage(_ context.Context, stageID string) ([]*repository.WorkflowStageAction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []*repository.WorkflowStageAction{}
	for _, a := range m.actions {
		if a.StageID == stageID && a.IsActive {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Store) GetRolesByStage(_ context.Context, stageID string) ([]*repository.WorkflowStageRole, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*repository.WorkflowStageRole
	for _, r := range m.roles[stageID] {
		cp := *r
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (m *Store) GetPermissionsByStage(_ context.Context, stageID string) ([]*repository.WorkflowStagePermission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*repository.WorkflowStagePermission
	for _, p := range m.permissions[stageID] {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PermissionName < out[j].PermissionName })
	return out, nil
}

// ──────────────────────────────────────────────────
// Document workflows
// ──────────────────────────────────────────────────

func (m *Store) Create(_ context.Context, wf *repository.DocumentWorkflow, history []*repository.WorkflowStageHistory) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.workflows {
		if existing.DocumentID == wf.DocumentID && existing.TemplateID == wf.TemplateID {
			return errors.AlreadyExists("document_workflow", wf.DocumentID+"/"+wf.TemplateID)
		}
	}

	if wf.ID == "" {
		wf.ID = uuid.NewString()
	}
	wf.UpdatedAt = m.now()

	pending := make([]*repository.WorkflowStageHistory, 0, len(history))
	for _, entry := range history {
		entry.DocumentWorkflowID = wf.ID
		if err := m.prepareAppendLocked(entry); err != nil {
			return err
		}
		pending = append(pending, entry)
	}

	cp := *wf
	m.workflows[wf.ID] = &cp
	m.commitHistoryLocked(pending)
	return nil
}

func (m *Store) GetByID(_ context.Context, id string) (*repository.DocumentWorkflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wf, ok := m.workflows[id]
	if !ok {
		return nil, errors.NotFound("document_workflow", id)
	}
	cp := *wf
	return &cp, nil
}

// InTransaction runs fn with staged writes that are applied only when fn
// returns nil. Transactions are fully serialized.
func (m *Store) InTransaction(ctx context.Context, fn func(tx repository.WorkflowTx) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	tx := &memTx{store: m, updates: make(map[string]*repository.DocumentWorkflow)}
	if err := fn(tx); err != nil {
		return errors.Persistence(err, "workflow transaction failed")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, wf := range tx.updates {
		m.workflows[id] = wf
	}
	m.commitHistoryLocked(tx.history)
	return nil
}

type memTx struct {
	store   *Store
	updates map[string]*repository.DocumentWorkflow
	history []*repository.WorkflowStageHistory
}

func (t *memTx) GetForUpdate(ctx context.Context, id string) (*repository.DocumentWorkflow, error) {
	if wf, ok := t.updates[id]; ok {
		cp := *wf
		return &cp, nil
	}
	return t.store.GetByID(ctx, id)
}

func (t *memTx) Update(_ context.Context, wf *repository.DocumentWorkflow) error {
	t.store.mu.RLock()
	_, ok := t.store.workflows[wf.ID]
	now := t.store.now()
	t.store.mu.RUnlock()
	if !ok {
		return errors.NotFound("document_workflow", wf.ID)
	}

	wf.UpdatedAt = now
	cp := *wf
	t.updates[wf.ID] = &cp
	return nil
}

func (t *memTx) AppendHistory(_ context.Context, entry *repository.WorkflowStageHistory) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	if err := t.store.prepareAppendLocked(entry); err != nil {
		return err
	}
	t.history = append(t.history, entry)
	return nil
}

// prepareAppendLocked assigns identity to an entry without publishing it.
func (m *Store) prepareAppendLocked(entry *repository.WorkflowStageHistory) error {
	if m.appendErr != nil {
		err := m.appendErr
		m.appendErr = nil
		return errors.Wrap(err, errors.ErrCodePersistence, "failed to append workflow history")
	}
	m.seq++
	entry.ID = uuid.NewString()
	entry.Seq = m.seq
	if entry.ProcessedAt.IsZero() {
		entry.ProcessedAt = m.now()
	}
	return nil
}

func (m *Store) commitHistoryLocked(entries []*repository.WorkflowStageHistory) {
	for _, entry := range entries {
		cp := *entry
		m.history[entry.DocumentWorkflowID] = append(m.history[entry.DocumentWorkflowID], &cp)
	}
}

// ──────────────────────────────────────────────────
// History
// ──────────────────────────────────────────────────

func (m *Store) GetByWorkflowID(_ context.Context, workflowID string) ([]*repository.WorkflowStageHistory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*repository.WorkflowStageHistory, 0, len(m.history[workflowID]))
	for _, entry := range m.history[workflowID] {
		cp := *entry
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ProcessedAt.Equal(out[j].ProcessedAt) {
			return out[i].ProcessedAt.Before(out[j].ProcessedAt)
		}
		return out[i].Seq < out[j].Seq
	})
	return out, nil
}
