package timeline

import (
	"encoding/json"

	"github.com/tOgg1/loom/internal/models"
)

// normalKind classifies a normalized event for the ingestion pipeline.
type normalKind int

const (
	// kindPlaceable creates (or confirms) an item in the sequence.
	kindPlaceable normalKind = iota

	// kindEdit replaces the content of its target item.
	kindEdit

	// kindReaction annotates its target item.
	kindReaction

	// kindRedaction erases its target's content or undoes a reaction.
	kindRedaction
)

// normalized is the typed internal form of one raw event, with relation
// metadata extracted.
type normalized struct {
	kind normalKind
	raw  *models.RawEvent

	// rawJSON is the original wire payload, kept on placed items.
	rawJSON json.RawMessage

	// content is the renderable payload for kindPlaceable.
	content Content

	// target is the related event ID for edit/reaction/redaction.
	target string

	// replacement is the new message content for kindEdit.
	replacement *Message

	// key is the reaction key for kindReaction.
	key string
}

// normalizeEvent converts a raw event into its typed internal form, or nil
// when the event is unrenderable and should be dropped. Parse failures of
// a message payload degrade to an Unsupported placeholder instead of
// aborting ingestion.
func (t *Timeline) normalizeEvent(raw *models.RawEvent) *normalized {
	rawJSON, err := models.EncodeEvent(raw)
	if err != nil {
		rawJSON = nil
	}
	norm := &normalized{raw: raw, rawJSON: rawJSON}

	if raw.Type == models.EventTypeRedaction {
		if raw.Redacts == "" {
			t.log.Debug().Str("event_id", raw.EventID).Msg("redaction without target dropped")
			return nil
		}
		norm.kind = kindRedaction
		norm.target = raw.Redacts
		return norm
	}

	if raw.IsRedacted() {
		norm.kind = kindPlaceable
		norm.content = &RedactedMessage{}
		return norm
	}

	switch raw.Type {
	case models.EventTypeMessage:
		return t.normalizeMessage(norm)

	case models.EventTypeReaction:
		content, err := models.ParseReactionContent(raw.Content)
		if err != nil || content.RelatesTo == nil ||
			content.RelatesTo.RelType != models.RelAnnotation ||
			content.RelatesTo.EventID == "" || content.RelatesTo.Key == "" {
			t.log.Debug().Str("event_id", raw.EventID).Msg("malformed reaction dropped")
			return nil
		}
		norm.kind = kindReaction
		norm.target = content.RelatesTo.EventID
		norm.key = content.RelatesTo.Key
		return norm

	default:
		if raw.IsState() {
			norm.kind = kindPlaceable
			norm.content = &StateChange{
				EventType: raw.Type,
				StateKey:  *raw.StateKey,
				Content:   append(json.RawMessage(nil), raw.Content...),
			}
			return norm
		}
		t.log.Debug().
			Str("type", string(raw.Type)).
			Str("event_id", raw.EventID).
			Msg("unrenderable event dropped")
		return nil
	}
}

func (t *Timeline) normalizeMessage(norm *normalized) *normalized {
	raw := norm.raw

	content, err := models.ParseMessageContent(raw.Content)
	if err != nil {
		t.log.Warn().Err(err).Str("event_id", raw.EventID).Msg("unparsable message content")
		norm.kind = kindPlaceable
		norm.content = &Unsupported{EventType: raw.Type, Reason: err.Error()}
		return norm
	}

	if rel := content.RelatesTo; rel != nil && rel.RelType == models.RelReplace {
		if content.NewContent == nil || rel.EventID == "" {
			t.log.Debug().Str("event_id", raw.EventID).Msg("malformed edit dropped")
			return nil
		}
		norm.kind = kindEdit
		norm.target = rel.EventID
		norm.replacement = &Message{
			MsgType: content.NewContent.MsgType,
			Body:    content.NewContent.Body,
		}
		return norm
	}

	msg := &Message{MsgType: content.MsgType, Body: content.Body}
	if rel := content.RelatesTo; rel != nil && rel.InReplyTo != nil && rel.InReplyTo.EventID != "" {
		msg.InReplyTo = &InReplyToDetails{
			EventID: rel.InReplyTo.EventID,
			Event:   UnavailableDetails(),
		}
	}
	norm.kind = kindPlaceable
	norm.content = msg
	return norm
}
