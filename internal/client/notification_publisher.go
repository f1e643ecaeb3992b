// Package client holds adapters to services outside the placement core.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-ojt-placements/internal/service"
)

// Publisher is the transport the notification publisher writes to.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// NotificationPublisher publishes student notifications to NATS JetStream
// for consumption by the notifications service.
//
// Subject convention: notifications.ojt.<kind>
//
// Publish errors are returned so the caller can surface them as warnings;
// they never undo the state change that triggered them.
type NotificationPublisher struct {
	pub Publisher
	log zerolog.Logger
	now func() time.Time
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventType    string         `json:"event_type"`
	Recipients   []string       `json:"recipients"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id,omitempty"`
	Severity     string         `json:"severity"`
	Category     string         `json:"category"`
	OccurredAt   time.Time      `json:"occurred_at"`
	Payload      map[string]any `json:"payload,omitempty"`
}

// NewNotificationPublisher creates a publisher. A nil pub disables
// publishing.
func NewNotificationPublisher(pub Publisher, log zerolog.Logger) *NotificationPublisher {
	return &NotificationPublisher{pub: pub, log: log, now: time.Now}
}

// Notify publishes one event addressed to a student.
// Subject: notifications.ojt.<kind>
func (p *NotificationPublisher) Notify(ctx context.Context, studentID, kind string, data map[string]any) error {
	if p.pub == nil || studentID == "" {
		return nil
	}

	event := &NotificationEvent{
		EventType:    kind,
		Recipients:   []string{studentID},
		ResourceType: "application",
		Severity:     severity(kind),
		Category:     "ojt_placement",
		OccurredAt:   p.now().UTC(),
		Payload:      data,
	}
	if id, ok := data["application_id"].(string); ok {
		event.ResourceID = id
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	subject := "notifications.ojt." + kind
	if err := p.pub.Publish(ctx, subject, body); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("student_id", studentID).
			Msg("notification: failed to publish NATS event")
		return err
	}

	p.log.Debug().
		Str("subject", subject).
		Str("student_id", studentID).
		Msg("notification: event published")
	return nil
}

func severity(kind string) string {
	switch kind {
	case service.NotifyRejected, service.NotifyCapacityUnavailable:
		return "warning"
	default:
		return "info"
	}
}
