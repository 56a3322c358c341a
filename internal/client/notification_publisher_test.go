package client

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-doc-workflows/internal/service"
)

type published struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	msgs []published
	err  error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{subject: subject, data: data})
	return nil
}

func TestPublishWorkflowEvent(t *testing.T) {
	pub := &fakePublisher{}
	p := NewNotificationPublisher(pub, "notifications.docworkflows", zerolog.Nop())

	stageID, assignee := "s2", "rev-1"
	at := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	due := at.AddDate(0, 0, 3)
	p.PublishWorkflowEvent(context.Background(), &service.WorkflowEvent{
		EventType:    service.EventWorkflowTransitioned,
		WorkflowID:   "wf-1",
		DocumentID:   "doc-1",
		DocumentType: "syllabus",
		TemplateID:   "tpl-1",
		StageID:      &stageID,
		StageName:    "Review",
		Assignee:     &assignee,
		Action:       "submit",
		ActorID:      "fac-1",
		DueAt:        &due,
		OccurredAt:   at,
	})

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "notifications.docworkflows.workflow_transitioned", pub.msgs[0].subject)

	var got NotificationEvent
	require.NoError(t, json.Unmarshal(pub.msgs[0].data, &got))
	assert.Equal(t, []string{"rev-1"}, got.Recipients)
	assert.True(t, got.IsActionable)
	assert.Equal(t, "doc-1", got.ResourceID)
	assert.Equal(t, "Review", got.Payload["stage_name"])
	assert.Equal(t, "2026-09-04T08:00:00Z", got.Payload["due_at"])
}

func TestPublishCompletedIsNotActionable(t *testing.T) {
	pub := &fakePublisher{}
	p := NewNotificationPublisher(pub, "", zerolog.Nop())

	p.PublishWorkflowEvent(context.Background(), &service.WorkflowEvent{
		EventType: service.EventWorkflowCompleted, WorkflowID: "wf-1", DocumentID: "doc-1",
	})

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "notifications.docworkflows.workflow_completed", pub.msgs[0].subject)
	var got NotificationEvent
	require.NoError(t, json.Unmarshal(pub.msgs[0].data, &got))
	assert.False(t, got.IsActionable)
	assert.NotContains(t, got.Payload, "stage_id")
}

func TestPublishFailureIsSwallowed(t *testing.T) {
	p := NewNotificationPublisher(&fakePublisher{err: stderrors.New("nats: connection closed")}, "x", zerolog.Nop())
	assert.NotPanics(t, func() {
		p.PublishWorkflowEvent(context.Background(), &service.WorkflowEvent{EventType: service.EventWorkflowStarted})
	})

	disabled := NewNotificationPublisher(nil, "x", zerolog.Nop())
	assert.NotPanics(t, func() {
		disabled.PublishWorkflowEvent(context.Background(), &service.WorkflowEvent{EventType: service.EventWorkflowStarted})
	})
}
