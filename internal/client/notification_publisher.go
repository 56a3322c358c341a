package client

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-doc-workflows/internal/service"
)

// Publisher is the subset of *nats.Conn the notification publisher needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NotificationPublisher publishes document workflow events to NATS for
// consumption by the notifications service.
//
// Subject convention: <prefix>.<event_type>, e.g.
// notifications.docworkflows.workflow_transitioned.
//
// All publish operations are non-fatal: errors are logged but never
// propagated, so notification failures never interrupt a transition.
type NotificationPublisher struct {
	nats   Publisher
	prefix string
	log    zerolog.Logger
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventType    string         `json:"event_type"`
	ActorID      string         `json:"actor_id"`
	Recipients   []string       `json:"recipients"`
	ResourceType string         `json:"resource_type,omitempty"`
	ResourceID   string         `json:"resource_id,omitempty"`
	IsActionable bool           `json:"is_actionable,omitempty"`
	Severity     string         `json:"severity,omitempty"`
	Category     string         `json:"category,omitempty"`
	Payload      map[string]any `json:"payload,omitempty"`
	OccurredAt   time.Time      `json:"occurred_at"`
}

// NewNotificationPublisher creates a publisher. A nil nats disables publishing.
func NewNotificationPublisher(nats Publisher, prefix string, log zerolog.Logger) *NotificationPublisher {
	if prefix == "" {
		prefix = "notifications.docworkflows"
	}
	return &NotificationPublisher{nats: nats, prefix: strings.TrimSuffix(prefix, "."), log: log}
}

// PublishWorkflowEvent publishes a committed workflow change.
func (p *NotificationPublisher) PublishWorkflowEvent(ctx context.Context, event *service.WorkflowEvent) {
	if p.nats == nil || event == nil {
		return
	}

	var recipients []string
	if event.Assignee != nil {
		recipients = []string{*event.Assignee}
	}

	payload := map[string]any{
		"workflow_id":   event.WorkflowID,
		"document_id":   event.DocumentID,
		"document_type": event.DocumentType,
		"template_id":   event.TemplateID,
		"action":        event.Action,
	}
	if event.StageID != nil {
		payload["stage_id"] = *event.StageID
		payload["stage_name"] = event.StageName
	}
	if event.Assignee != nil {
		payload["assignee"] = *event.Assignee
	}
	if event.DueAt != nil {
		payload["due_at"] = event.DueAt.UTC().Format(time.RFC3339)
	}

	msg := &NotificationEvent{
		EventType:    event.EventType,
		ActorID:      event.ActorID,
		Recipients:   recipients,
		ResourceType: "document",
		ResourceID:   event.DocumentID,
		IsActionable: event.EventType != service.EventWorkflowCompleted && event.Assignee != nil,
		Severity:     "info",
		Category:     "document_workflow",
		Payload:      payload,
		OccurredAt:   event.OccurredAt,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", event.EventType).Msg("notification: failed to marshal event")
		return
	}

	subject := p.prefix + "." + event.EventType
	if err := p.nats.Publish(subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("workflow_id", event.WorkflowID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("workflow_id", event.WorkflowID).
		Int("recipients", len(recipients)).
		Msg("notification: event published")
}
