package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	UserRegistered EventType = "user.registered"
	UserDeleted    EventType = "user.deleted"
	ProblemCreated EventType = "problem.created"
	ProblemDeleted EventType = "problem.deleted"
	RecordSaved    EventType = "record.saved"
	RecordGraded   EventType = "record.graded"
	DataRestored   EventType = "data.restored"
)

var AllEventTypes = []EventType{
	UserRegistered,
	UserDeleted,
	ProblemCreated,
	ProblemDeleted,
	RecordSaved,
	RecordGraded,
	DataRestored,
}

// Event is a domain change announced after it has been persisted.
type Event struct {
	ID         string                 `json:"id"`
	Type       EventType              `json:"type"`
	Actor      string                 `json:"actor"`
	Subject    string                 `json:"subject"`
	Data       map[string]interface{} `json:"data,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// NewEvent stamps an event with a fresh id and the current time.
func NewEvent(eventType EventType, actor, subject string, data map[string]interface{}) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		Actor:      actor,
		Subject:    subject,
		Data:       data,
		OccurredAt: time.Now().UTC(),
	}
}

func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

func Unmarshal(payload []byte) (Event, error) {
	var e Event
	err := json.Unmarshal(payload, &e)
	return e, err
}

// EventPublisher delivers domain events. Publishing is best effort: callers
// log failures and never roll back the change that produced the event.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}
