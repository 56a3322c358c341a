package service

import (
	"github.com/pesio-ai/be-doc-workflows/internal/repository"
)

// StagePath re-derives the ordered list of stages a workflow has occupied
// from its ledger. Consecutive entries on the same stage collapse into one.
// History must already be ordered oldest-first.
func StagePath(history []*repository.WorkflowStageHistory) []string {
	path := make([]string, 0, len(history))
	for _, entry := range history {
		if len(path) > 0 && path[len(path)-1] == entry.StageID {
			continue
		}
		path = append(path, entry.StageID)
	}
	return path
}

// LastAssignee returns the most recent automatic assignment to stageID, or
// nil. Action rows are skipped: their AssignedTo names the assignee of the
// stage the action moved to.
func LastAssignee(history []*repository.WorkflowStageHistory, stageID string) *string {
	for i := len(history) - 1; i >= 0; i-- {
		entry := history[i]
		if entry.Action == repository.HistoryActionAssigned &&
			entry.StageID == stageID && entry.AssignedTo != nil {
			return entry.AssignedTo
		}
	}
	return nil
}
