package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tjfontaine/polyglot-debate/internal/core/domain"
)

var (
	// ErrMalformedRecord is returned when a record is not valid JSON or is
	// missing a field its type requires.
	ErrMalformedRecord = errors.New("malformed stream record")

	// ErrUnknownEventType is returned for records whose type is not one of
	// message, error or done.
	ErrUnknownEventType = errors.New("unknown stream event type")

	// ErrBlankRecord is returned for empty or whitespace-only records.
	ErrBlankRecord = errors.New("blank stream record")
)

// defaultErrorMessage is used when an error event carries no message.
const defaultErrorMessage = "unknown error occurred"

// wireRecord is the JSON shape of a single stream record.
type wireRecord struct {
	Type       string  `json:"type"`
	PanelistID string  `json:"panelistId,omitempty"`
	Text       *string `json:"text,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// Decode parses one record into a stream event.
func Decode(record string) (domain.StreamEvent, error) {
	if strings.TrimSpace(record) == "" {
		return domain.StreamEvent{}, ErrBlankRecord
	}

	var w wireRecord
	if err := json.Unmarshal([]byte(record), &w); err != nil {
		return domain.StreamEvent{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}

	switch domain.EventType(w.Type) {
	case domain.EventTypeMessage:
		if w.PanelistID == "" {
			return domain.StreamEvent{}, fmt.Errorf("%w: message without panelistId", ErrMalformedRecord)
		}
		if w.Text == nil {
			return domain.StreamEvent{}, fmt.Errorf("%w: message without text", ErrMalformedRecord)
		}
		return domain.MessageEvent(w.PanelistID, *w.Text), nil

	case domain.EventTypeError:
		msg := w.Error
		if msg == "" {
			msg = defaultErrorMessage
		}
		return domain.ErrorEvent(msg), nil

	case domain.EventTypeDone:
		return domain.DoneEvent(), nil

	case "":
		return domain.StreamEvent{}, fmt.Errorf("%w: missing type", ErrMalformedRecord)

	default:
		return domain.StreamEvent{}, fmt.Errorf("%w: %q", ErrUnknownEventType, w.Type)
	}
}

// Encode renders an event as a single record without the trailing newline.
func Encode(ev domain.StreamEvent) ([]byte, error) {
	w := wireRecord{Type: string(ev.Type)}
	switch ev.Type {
	case domain.EventTypeMessage:
		w.PanelistID = ev.SpeakerID
		text := ev.Text
		w.Text = &text
	case domain.EventTypeError:
		w.Error = ev.Message
	}
	return json.Marshal(w)
}
