package queue

import (
	"time"

	"github.com/google/uuid"
)

// EventType is used as the routing key of a published event
type EventType string

const (
	// EventFormSubmitted is published after a submission is stored
	EventFormSubmitted EventType = "form.submitted"
	// EventUserRegistered is published after an account is created
	EventUserRegistered EventType = "user.registered"
)

// Event is the JSON message body published to the broker
type Event struct {
	ID        uuid.UUID      `json:"id"`
	Type      EventType      `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewEvent creates an event stamped with a fresh ID and the current time
func NewEvent(eventType EventType, payload map[string]any) *Event {
	if payload == nil {
		payload = make(map[string]any)
	}
	return &Event{
		ID:        uuid.New(),
		Type:      eventType,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
}
