package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pesio-ai/be-doc-workflows/internal/repository"
)

func TestStagePath(t *testing.T) {
	rev := "rev-1"
	history := []*repository.WorkflowStageHistory{
		{StageID: "s1", Action: repository.HistoryActionSubmitted},
		{StageID: "s1", Action: repository.HistoryActionAssigned},
		{StageID: "s1", Action: "submit", AssignedTo: &rev},
		{StageID: "s2", Action: repository.HistoryActionAssigned, AssignedTo: &rev},
		{StageID: "s2", Action: "return"},
		{StageID: "s1", Action: "resubmit"},
	}

	assert.Equal(t, []string{"s1", "s2", "s1"}, StagePath(history))
	assert.Empty(t, StagePath(nil))
}

func TestLastAssignee(t *testing.T) {
	a, b := "a", "b"
	history := []*repository.WorkflowStageHistory{
		{StageID: "s1", Action: repository.HistoryActionAssigned, AssignedTo: &a},
		{StageID: "s1", Action: "submit", AssignedTo: &b},
		{StageID: "s2", Action: repository.HistoryActionAssigned, AssignedTo: &b},
	}

	assert.Equal(t, &a, LastAssignee(history, "s1"))
	assert.Equal(t, &b, LastAssignee(history, "s2"))
	assert.Nil(t, LastAssignee(history, "s3"))
}
