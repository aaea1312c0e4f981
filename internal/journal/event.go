package journal

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType names something that happened to a session
type EventType string

const (
	EventSessionLoaded    EventType = "session_loaded"
	EventLoadFailed       EventType = "load_failed"
	EventStageChanged     EventType = "stage_changed"
	EventCameraDenied     EventType = "camera_denied"
	EventRecordingStarted EventType = "recording_started"
	EventRecordingStopped EventType = "recording_stopped"
	EventAutoStopped      EventType = "auto_stopped"
	EventUploadSucceeded  EventType = "upload_succeeded"
	EventUploadFailed     EventType = "upload_failed"
	EventCompletionSent   EventType = "completion_sent"
	EventCompletionFailed EventType = "completion_failed"
	EventTornDown         EventType = "torn_down"
)

// Event is a single journal entry
type Event struct {
	ID         uuid.UUID `json:"id"`
	SessionID  string    `json:"session_id"`
	Token      string    `json:"token"` // always masked
	Type       EventType `json:"type"`
	QuestionID *int      `json:"question_id,omitempty"`
	Stage      string    `json:"stage"`
	Message    string    `json:"message,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewEvent creates an event with a fresh id and timestamp
func NewEvent(sessionID, token string, typ EventType, stage string) Event {
	return Event{
		ID:        uuid.New(),
		SessionID: sessionID,
		Token:     MaskToken(token),
		Type:      typ,
		Stage:     stage,
		CreatedAt: time.Now().UTC(),
	}
}

// WithQuestion sets the question id
func (e Event) WithQuestion(id int) Event {
	e.QuestionID = &id
	return e
}

// WithMessage sets the message
func (e Event) WithMessage(msg string) Event {
	e.Message = msg
	return e
}

// Sink receives journal events. Implementations must not block for long;
// wrap slow sinks with NewAsync.
type Sink interface {
	Record(ctx context.Context, e Event) error
}

// MaskToken returns first 8 characters of a token for logging
func MaskToken(token string) string {
	if len(token) < 8 {
		return "***"
	}
	return token[:8] + "..."
}
