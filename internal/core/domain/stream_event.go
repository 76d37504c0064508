package domain

// EventType identifies the kind of a wire-level stream event.
type EventType string

const (
	EventTypeMessage EventType = "message"
	EventTypeError   EventType = "error"
	EventTypeDone    EventType = "done"
)

// StreamEvent is a decoded record from the generation stream. It is consumed
// immediately and never persisted.
type StreamEvent struct {
	Type EventType

	// SpeakerID and Text are set for message events. Text may be empty for a
	// continuation fragment.
	SpeakerID string
	Text      string

	// Message is the human-readable cause for error events.
	Message string
}

// MessageEvent constructs a message event.
func MessageEvent(speakerID, text string) StreamEvent {
	return StreamEvent{Type: EventTypeMessage, SpeakerID: speakerID, Text: text}
}

// ErrorEvent constructs an error event.
func ErrorEvent(message string) StreamEvent {
	return StreamEvent{Type: EventTypeError, Message: message}
}

// DoneEvent constructs a done event.
func DoneEvent() StreamEvent {
	return StreamEvent{Type: EventTypeDone}
}
