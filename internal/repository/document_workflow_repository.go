package repository

import (
	"context"
	stderrors "errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pesio-ai/be-doc-workflows/internal/database"
	"github.com/pesio-ai/be-doc-workflows/internal/errors"
)

// SQLSTATE codes the repositories translate into domain errors.
const (
	pgUniqueViolation   = "23505"
	pgInvalidTextFormat = "22P02"
)

// isMissingRow reports whether a single-row lookup found nothing. An ID that
// is not a valid UUID cannot match any row, so it counts as missing too.
func isMissingRow(err error) bool {
	if stderrors.Is(err, pgx.ErrNoRows) {
		return true
	}
	var pgErr *pgconn.PgError
	return stderrors.As(err, &pgErr) && pgErr.Code == pgInvalidTextFormat
}

// DocumentWorkflowRepository manages live workflow instances. Creation and
// every transition run in a transaction together with their history rows.
type DocumentWorkflowRepository struct {
	db *database.DB
}

// NewDocumentWorkflowRepository creates a new DocumentWorkflowRepository.
func NewDocumentWorkflowRepository(db *database.DB) *DocumentWorkflowRepository {
	return &DocumentWorkflowRepository{db: db}
}

const workflowColumns = `id, document_id, document_type, template_id, current_stage_id,
       status, initiated_by, initiated_at, completed_at, updated_at`

// Create inserts a workflow and its initial history entries in one transaction.
func (r *DocumentWorkflowRepository) Create(ctx context.Context, wf *DocumentWorkflow, history []*WorkflowStageHistory) error {
	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO document_workflows
			    (document_id, document_type, template_id, current_stage_id,
			     status, initiated_by, initiated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id, updated_at
		`,
			wf.DocumentID,
			wf.DocumentType,
			wf.TemplateID,
			wf.CurrentStageID,
			wf.Status,
			wf.InitiatedBy,
			wf.InitiatedAt,
		).Scan(&wf.ID, &wf.UpdatedAt)
		if err != nil {
			var pgErr *pgconn.PgError
			if stderrors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
				return errors.AlreadyExists("document_workflow", wf.DocumentID+"/"+wf.TemplateID)
			}
			return errors.Wrap(err, errors.ErrCodePersistence, "failed to create document workflow")
		}

		for _, entry := range history {
			entry.DocumentWorkflowID = wf.ID
			if err := insertHistory(ctx, tx, entry); err != nil {
				return err
			}
		}
		return nil
	})
	return errors.Persistence(err, "failed to create document workflow")
}

// GetByID retrieves a workflow by its primary key.
func (r *DocumentWorkflowRepository) GetByID(ctx context.Context, id string) (*DocumentWorkflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM document_workflows WHERE id = $1`

	wf, err := scanWorkflow(r.db.QueryRow(ctx, query, id))
	if isMissingRow(err) {
		return nil, errors.NotFound("document_workflow", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodePersistence, "failed to get document workflow")
	}
	return wf, nil
}

// InTransaction runs fn with a WorkflowTx bound to one database transaction.
// Any error from fn rolls back the workflow update and all history inserts.
func (r *DocumentWorkflowRepository) InTransaction(ctx context.Context, fn func(tx WorkflowTx) error) error {
	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		return fn(&pgWorkflowTx{tx: tx})
	})
	return errors.Persistence(err, "workflow transaction failed")
}

// pgWorkflowTx implements WorkflowTx on a pgx transaction. GetForUpdate takes
// a row lock, so a concurrent transition on the same workflow blocks until
// this transaction ends and then reads the new state.
type pgWorkflowTx struct {
	tx pgx.Tx
}

func (t *pgWorkflowTx) GetForUpdate(ctx context.Context, id string) (*DocumentWorkflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM document_workflows WHERE id = $1 FOR UPDATE`

	wf, err := scanWorkflow(t.tx.QueryRow(ctx, query, id))
	if isMissingRow(err) {
		return nil, errors.NotFound("document_workflow", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodePersistence, "failed to lock document workflow")
	}
	return wf, nil
}

func (t *pgWorkflowTx) Update(ctx context.Context, wf *DocumentWorkflow) error {
	query := `
		UPDATE document_workflows
		SET current_stage_id = $2,
		    status           = $3,
		    completed_at     = $4,
		    updated_at       = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := t.tx.QueryRow(ctx, query, wf.ID, wf.CurrentStageID, wf.Status, wf.CompletedAt).Scan(&wf.UpdatedAt)
	if isMissingRow(err) {
		return errors.NotFound("document_workflow", wf.ID)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodePersistence, "failed to update document workflow")
	}
	return nil
}

func (t *pgWorkflowTx) AppendHistory(ctx context.Context, entry *WorkflowStageHistory) error {
	return insertHistory(ctx, t.tx, entry)
}

// ── scan helper ───────────────────────────────────────────────────────────────

func scanWorkflow(row rowScanner) (*DocumentWorkflow, error) {
	wf := &DocumentWorkflow{}
	err := row.Scan(
		&wf.ID,
		&wf.DocumentID,
		&wf.DocumentType,
		&wf.TemplateID,
		&wf.CurrentStageID,
		&wf.Status,
		&wf.InitiatedBy,
		&wf.InitiatedAt,
		&wf.CompletedAt,
		&wf.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return wf, nil
}
