package timeline

import (
	"encoding/json"
	"time"

	"github.com/tOgg1/loom/internal/models"
)

// DetailsState is the resolution state of a lazily-fetched dependency.
type DetailsState int

const (
	// DetailsUnavailable means the dependency has not been requested.
	DetailsUnavailable DetailsState = iota

	// DetailsPending means a fetch is in flight.
	DetailsPending

	// DetailsReady means the dependency resolved successfully.
	DetailsReady

	// DetailsError means the fetch failed; retryable by re-requesting.
	DetailsError
)

// String returns the state name.
func (s DetailsState) String() string {
	switch s {
	case DetailsUnavailable:
		return "unavailable"
	case DetailsPending:
		return "pending"
	case DetailsReady:
		return "ready"
	case DetailsError:
		return "error"
	default:
		return "invalid"
	}
}

// Details is a four-state lazily-resolved value. Consumers must switch on
// State and handle all four states; Ready and Error are terminal until a
// new fetch is requested.
type Details struct {
	state DetailsState
	event *EmbeddedEvent
	err   error
}

// UnavailableDetails returns the not-requested state.
func UnavailableDetails() Details {
	return Details{state: DetailsUnavailable}
}

// PendingDetails returns the fetch-in-flight state.
func PendingDetails() Details {
	return Details{state: DetailsPending}
}

// ReadyDetails returns the resolved state wrapping the event.
func ReadyDetails(event *EmbeddedEvent) Details {
	return Details{state: DetailsReady, event: event}
}

// ErrorDetails returns the failed state wrapping the fetch error.
func ErrorDetails(err error) Details {
	return Details{state: DetailsError, err: err}
}

// State returns the resolution state.
func (d Details) State() DetailsState {
	return d.state
}

// Event returns the resolved event and whether the state is Ready.
func (d Details) Event() (*EmbeddedEvent, bool) {
	return d.event, d.state == DetailsReady
}

// Err returns the fetch error, or nil unless the state is Error.
func (d Details) Err() error {
	return d.err
}

// EmbeddedEvent is a resolved reply target: just enough of the referenced
// event to render it inline.
type EmbeddedEvent struct {
	EventID   string
	Sender    string
	Timestamp time.Time
	Content   Content
}

// embedEventItem builds an EmbeddedEvent from an item already in the store.
func embedEventItem(ev *EventItem) *EmbeddedEvent {
	return &EmbeddedEvent{
		EventID:   ev.EventID,
		Sender:    ev.Sender,
		Timestamp: ev.Timestamp,
		Content:   ev.Content,
	}
}

// embedRawEvent builds an EmbeddedEvent from a freshly fetched raw event.
func embedRawEvent(raw *models.RawEvent) *EmbeddedEvent {
	return &EmbeddedEvent{
		EventID:   raw.EventID,
		Sender:    raw.Sender,
		Timestamp: raw.Timestamp(),
		Content:   contentFromRaw(raw),
	}
}

// contentFromRaw converts a raw event's payload to renderable content,
// degrading to Unsupported on parse failure.
func contentFromRaw(raw *models.RawEvent) Content {
	if raw.IsRedacted() {
		return &RedactedMessage{}
	}
	switch raw.Type {
	case models.EventTypeMessage:
		content, err := models.ParseMessageContent(raw.Content)
		if err != nil {
			return &Unsupported{EventType: raw.Type, Reason: err.Error()}
		}
		msg := &Message{MsgType: content.MsgType, Body: content.Body}
		if content.RelatesTo != nil && content.RelatesTo.InReplyTo != nil {
			msg.InReplyTo = &InReplyToDetails{
				EventID: content.RelatesTo.InReplyTo.EventID,
				Event:   UnavailableDetails(),
			}
		}
		return msg
	default:
		if raw.IsState() {
			return &StateChange{
				EventType: raw.Type,
				StateKey:  *raw.StateKey,
				Content:   append(json.RawMessage(nil), raw.Content...),
			}
		}
		return &Unsupported{EventType: raw.Type, Reason: "unrenderable event type"}
	}
}
