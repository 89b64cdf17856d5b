package timeline

import (
	"encoding/json"

	"github.com/tOgg1/loom/internal/models"
)

// Content is the renderable payload of an event item. It is a closed set:
// Message, RedactedMessage, StateChange and Unsupported.
type Content interface {
	isContent()
}

// Message is a renderable m.room.message payload.
type Message struct {
	// MsgType is the message type (m.text, m.emote, ...).
	MsgType string

	// Body is the plain-text body.
	Body string

	// InReplyTo is set when the message references another event.
	InReplyTo *InReplyToDetails
}

func (*Message) isContent() {}

// InReplyToDetails holds the reply target reference and its lazily
// resolved details.
type InReplyToDetails struct {
	// EventID is the referenced event.
	EventID string

	// Event is the resolution state of the referenced event.
	Event Details
}

// clone returns a copy so copy-on-write item updates never alias.
func (m *Message) clone() *Message {
	out := *m
	if m.InReplyTo != nil {
		reply := *m.InReplyTo
		out.InReplyTo = &reply
	}
	return &out
}

// RedactedMessage is the content of an event whose payload was redacted.
// Only the envelope survives.
type RedactedMessage struct{}

func (*RedactedMessage) isContent() {}

// StateChange is a state event passed through for rendering, content kept
// opaque to the timeline core.
type StateChange struct {
	EventType models.EventType
	StateKey  string
	Content   json.RawMessage
}

func (*StateChange) isContent() {}

// Unsupported is the placeholder for payloads that failed to parse or have
// no renderer. Ingestion never fails on such events.
type Unsupported struct {
	EventType models.EventType
	Reason    string
}

func (*Unsupported) isContent() {}
