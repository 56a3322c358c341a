package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-doc-workflows/internal/database"
	"github.com/pesio-ai/be-doc-workflows/internal/errors"
)

// HistoryRepository reads the stage history ledger. Inserts only happen
// inside workflow transactions; the table has an append-only trigger.
type HistoryRepository struct {
	db *database.DB
}

// NewHistoryRepository creates a new HistoryRepository.
func NewHistoryRepository(db *database.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// GetByWorkflowID returns the ledger of a workflow ordered oldest-first.
func (r *HistoryRepository) GetByWorkflowID(ctx context.Context, workflowID string) ([]*WorkflowStageHistory, error) {
	query := `
		SELECT id, seq, document_workflow_id, stage_id, action,
		       processed_by, assigned_to, comments, attachments, processed_at
		FROM workflow_stage_history
		WHERE document_workflow_id = $1
		ORDER BY processed_at ASC, seq ASC
	`

	rows, err := r.db.Query(ctx, query, workflowID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodePersistence, "failed to get workflow history")
	}
	defer rows.Close()

	entries := []*WorkflowStageHistory{}
	for rows.Next() {
		entry, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodePersistence, "failed to read workflow history")
	}
	return entries, nil
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertHistory(ctx context.Context, q rowQuerier, entry *WorkflowStageHistory) error {
	var attachmentsJSON []byte
	if len(entry.Attachments) > 0 {
		var err error
		attachmentsJSON, err = json.Marshal(entry.Attachments)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal history attachments")
		}
	}

	query := `
		INSERT INTO workflow_stage_history
		    (document_workflow_id, stage_id, action, processed_by,
		     assigned_to, comments, attachments, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, seq
	`

	err := q.QueryRow(ctx, query,
		entry.DocumentWorkflowID,
		entry.StageID,
		entry.Action,
		entry.ProcessedBy,
		entry.AssignedTo,
		entry.Comments,
		attachmentsJSON,
		entry.ProcessedAt,
	).Scan(&entry.ID, &entry.Seq)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodePersistence, "failed to append workflow history")
	}
	return nil
}

func scanHistory(row rowScanner) (*WorkflowStageHistory, error) {
	entry := &WorkflowStageHistory{}
	var attachmentsJSON []byte

	err := row.Scan(
		&entry.ID,
		&entry.Seq,
		&entry.DocumentWorkflowID,
		&entry.StageID,
		&entry.Action,
		&entry.ProcessedBy,
		&entry.AssignedTo,
		&entry.Comments,
		&attachmentsJSON,
		&entry.ProcessedAt,
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodePersistence, "failed to scan workflow history")
	}

	if attachmentsJSON != nil {
		if err := json.Unmarshal(attachmentsJSON, &entry.Attachments); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal history attachments")
		}
	}
	return entry, nil
}
