package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType enumerates audit event identifiers.
type EventType string

const (
	EventLoginSucceeded    EventType = "login_succeeded"
	EventLoginFailed       EventType = "login_failed"
	EventAccessDenied      EventType = "access_denied"
	EventSigningKeyRotated EventType = "signing_key_rotated"
)

// Event is an audit record emitted by the auth layer. It never carries
// passwords or token values.
type Event struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	SubjectID string            `json:"subject_id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   map[string]string `json:"payload,omitempty"`
}

// NewEvent stamps an event with an id and the current time.
func NewEvent(eventType EventType, subjectID string, payload map[string]string) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		SubjectID: subjectID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}
