package memory

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-doc-workflows/internal/errors"
	"github.com/pesio-ai/be-doc-workflows/internal/repository"
)

func twoTemplates(t *testing.T, s *Store) (a, b *repository.WorkflowTemplate) {
	t.Helper()
	ctx := context.Background()

	a = &repository.WorkflowTemplate{
		Name: "Syllabus", DocumentType: "syllabus", IsActive: true,
		Stages: []*repository.WorkflowStage{
			{Name: "Draft", Order: 1},
			{Name: "Review", Order: 3},
		},
	}
	b = &repository.WorkflowTemplate{
		Name: "Lesson plan", DocumentType: "lesson_plan", IsActive: true,
		Stages: []*repository.WorkflowStage{
			{Name: "Draft", Order: 1},
			{Name: "Review", Order: 2},
		},
	}
	require.NoError(t, s.CreateTemplate(ctx, a))
	require.NoError(t, s.CreateTemplate(ctx, b))
	return a, b
}

func TestNextStageByOrderStaysInTemplate(t *testing.T) {
	s := New()
	ctx := context.Background()
	a, b := twoTemplates(t, s)

	next, err := s.GetNextStageByOrder(ctx, a.ID, 1)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, a.Stages[1].ID, next.ID, "gap in orders must not pull in another template's order-2 stage")

	next, err = s.GetNextStageByOrder(ctx, b.ID, 2)
	require.NoError(t, err)
	assert.Nil(t, next)

	first, err := s.GetFirstStage(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.Stages[0].ID, first.ID)
}

func TestNextStageByOrderTieIsConfigurationError(t *testing.T) {
	s := New()
	ctx := context.Background()
	tpl := &repository.WorkflowTemplate{
		Name: "Broken", DocumentType: "session",
		Stages: []*repository.WorkflowStage{
			{Name: "A", Order: 1},
			{Name: "B", Order: 2},
			{Name: "C", Order: 2},
		},
	}
	require.NoError(t, s.CreateTemplate(ctx, tpl))

	_, err := s.GetNextStageByOrder(ctx, tpl.ID, 1)
	assert.True(t, errors.Is(err, errors.ErrCodeConfiguration))
}

func TestCatalogNotFound(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.GetStageByID(ctx, "missing")
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))
	_, err = s.GetActionByID(ctx, "missing")
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))
	_, err = s.GetTemplateByID(ctx, "missing")
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))
	_, err = s.GetTemplateByDocumentType(ctx, "missing")
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))
}

func TestCreateRejectsDuplicateDocumentTemplate(t *testing.T) {
	s := New()
	ctx := context.Background()
	a, _ := twoTemplates(t, s)
	stageID := a.Stages[0].ID

	wf := &repository.DocumentWorkflow{DocumentID: "doc-1", TemplateID: a.ID, CurrentStageID: &stageID, Status: repository.StatusInProgress}
	require.NoError(t, s.Create(ctx, wf, nil))

	dup := &repository.DocumentWorkflow{DocumentID: "doc-1", TemplateID: a.ID, CurrentStageID: &stageID, Status: repository.StatusInProgress}
	err := s.Create(ctx, dup, nil)
	assert.True(t, errors.Is(err, errors.ErrCodeAlreadyExists))
}

func TestTransactionRollsBackOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	a, _ := twoTemplates(t, s)
	first, second := a.Stages[0].ID, a.Stages[1].ID

	wf := &repository.DocumentWorkflow{DocumentID: "doc-1", TemplateID: a.ID, CurrentStageID: &first, Status: repository.StatusInProgress}
	require.NoError(t, s.Create(ctx, wf, nil))

	s.FailNextAppend(stderrors.New("disk full"))
	err := s.InTransaction(ctx, func(tx repository.WorkflowTx) error {
		locked, err := tx.GetForUpdate(ctx, wf.ID)
		if err != nil {
			return err
		}
		locked.CurrentStageID = &second
		if err := tx.Update(ctx, locked); err != nil {
			return err
		}
		return tx.AppendHistory(ctx, &repository.WorkflowStageHistory{
			DocumentWorkflowID: wf.ID, StageID: first, Action: "approve", ProcessedBy: "u1",
		})
	})
	assert.True(t, errors.Is(err, errors.ErrCodePersistence))

	got, err := s.GetByID(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, first, *got.CurrentStageID)

	history, err := s.GetByWorkflowID(ctx, wf.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestHistoryOrderedByTimeThenSequence(t *testing.T) {
	s := New()
	ctx := context.Background()
	a, _ := twoTemplates(t, s)
	stageID := a.Stages[0].ID
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	wf := &repository.DocumentWorkflow{DocumentID: "doc-1", TemplateID: a.ID, CurrentStageID: &stageID, Status: repository.StatusInProgress}
	require.NoError(t, s.Create(ctx, wf, []*repository.WorkflowStageHistory{
		{StageID: stageID, Action: "second", ProcessedBy: "u", ProcessedAt: at.Add(time.Minute)},
		{StageID: stageID, Action: "first-a", ProcessedBy: "u", ProcessedAt: at},
		{StageID: stageID, Action: "first-b", ProcessedBy: "u", ProcessedAt: at},
	}))

	history, err := s.GetByWorkflowID(ctx, wf.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "first-a", history[0].Action)
	assert.Equal(t, "first-b", history[1].Action)
	assert.Equal(t, "second", history[2].Action)
}

func TestActiveActionsSortedAndFiltered(t *testing.T) {
	s := New()
	ctx := context.Background()
	tpl := &repository.WorkflowTemplate{
		Name: "Session", DocumentType: "session",
		Stages: []*repository.WorkflowStage{{
			Name: "Review", Order: 1,
			Actions: []*repository.WorkflowStageAction{
				{Name: "reject", SortOrder: 2, IsActive: true},
				{Name: "approve", SortOrder: 1, IsActive: true},
				{Name: "archive", SortOrder: 0, IsActive: false},
			},
		}},
	}
	require.NoError(t, s.CreateTemplate(ctx, tpl))

	actions, err := s.GetActiveActionsByStage(ctx, tpl.Stages[0].ID)
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, "approve", actions[0].Name)
	assert.Equal(t, "reject", actions[1].Name)
}
