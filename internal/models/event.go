package models

import (
	"encoding/json"
	"time"

	"github.com/bytedance/sonic"
)

// EventType identifies the protocol type of a room event.
type EventType string

const (
	// Timeline events
	EventTypeMessage   EventType = "m.room.message"
	EventTypeReaction  EventType = "m.reaction"
	EventTypeRedaction EventType = "m.room.redaction"
	EventTypeSticker   EventType = "m.sticker"

	// State events
	EventTypeMember      EventType = "m.room.member"
	EventTypePowerLevels EventType = "m.room.power_levels"
	EventTypeRoomName    EventType = "m.room.name"
	EventTypeTopic       EventType = "m.room.topic"
	EventTypeTombstone   EventType = "m.room.tombstone"

	// Account data
	EventTypeFullyRead EventType = "m.fully_read"

	// Ephemeral
	EventTypeReceipt EventType = "m.receipt"
)

// RelType identifies how a relation event modifies its target.
type RelType string

const (
	// RelReplace marks an edit of an earlier event.
	RelReplace RelType = "m.replace"

	// RelAnnotation marks a reaction to an earlier event.
	RelAnnotation RelType = "m.annotation"
)

// Message types for m.room.message content.
const (
	MsgTypeText   = "m.text"
	MsgTypeEmote  = "m.emote"
	MsgTypeNotice = "m.notice"
	MsgTypeImage  = "m.image"
	MsgTypeFile   = "m.file"
)

// RawEvent is one room event exactly as delivered by the sync stream.
type RawEvent struct {
	// Type is the protocol event type.
	Type EventType `json:"type"`

	// EventID is the server-assigned event identifier.
	EventID string `json:"event_id,omitempty"`

	// Sender is the user ID that sent the event.
	Sender string `json:"sender,omitempty"`

	// OriginServerTS is the origin timestamp in milliseconds since the epoch.
	OriginServerTS int64 `json:"origin_server_ts,omitempty"`

	// StateKey is present (possibly empty) only on state events.
	StateKey *string `json:"state_key,omitempty"`

	// Redacts is the target event ID of an m.room.redaction event.
	Redacts string `json:"redacts,omitempty"`

	// Content is the type-specific payload, kept raw until normalized.
	Content json.RawMessage `json:"content,omitempty"`

	// Unsigned carries server-added metadata.
	Unsigned *UnsignedData `json:"unsigned,omitempty"`

	// RoomID is set on events fetched out-of-band; sync events carry the
	// room ID on the enclosing RoomUpdate instead.
	RoomID string `json:"room_id,omitempty"`
}

// UnsignedData carries server-added event metadata.
type UnsignedData struct {
	// TransactionID echoes back the client-chosen ID of a local send.
	TransactionID string `json:"transaction_id,omitempty"`

	// RedactedBecause is the redaction event, present when the event
	// arrived already redacted.
	RedactedBecause json.RawMessage `json:"redacted_because,omitempty"`
}

// Timestamp converts the origin timestamp to a time.Time in UTC.
func (e *RawEvent) Timestamp() time.Time {
	return time.UnixMilli(e.OriginServerTS).UTC()
}

// IsState reports whether the event is a state event.
func (e *RawEvent) IsState() bool {
	return e.StateKey != nil
}

// IsRedacted reports whether the event arrived already redacted.
func (e *RawEvent) IsRedacted() bool {
	return e.Unsigned != nil && len(e.Unsigned.RedactedBecause) > 0
}

// MessageContent is the parsed content of an m.room.message event.
type MessageContent struct {
	MsgType       string          `json:"msgtype,omitempty"`
	Body          string          `json:"body,omitempty"`
	Format        string          `json:"format,omitempty"`
	FormattedBody string          `json:"formatted_body,omitempty"`
	NewContent    *MessageContent `json:"m.new_content,omitempty"`
	RelatesTo     *RelatesTo      `json:"m.relates_to,omitempty"`
}

// RelatesTo describes how an event relates to another event.
type RelatesTo struct {
	RelType   RelType    `json:"rel_type,omitempty"`
	EventID   string     `json:"event_id,omitempty"`
	Key       string     `json:"key,omitempty"`
	InReplyTo *InReplyTo `json:"m.in_reply_to,omitempty"`
}

// InReplyTo references the event a message replies to.
type InReplyTo struct {
	EventID string `json:"event_id"`
}

// ReactionContent is the parsed content of an m.reaction event.
type ReactionContent struct {
	RelatesTo *RelatesTo `json:"m.relates_to,omitempty"`
}

// FullyReadContent is the parsed content of m.fully_read account data.
type FullyReadContent struct {
	EventID string `json:"event_id"`
}

// ReceiptContent maps event ID -> receipt type -> user ID -> receipt.
type ReceiptContent map[string]map[string]map[string]Receipt

// ReceiptTypeRead is the read-receipt key within ReceiptContent.
const ReceiptTypeRead = "m.read"

// Receipt is one user's read receipt on one event.
type Receipt struct {
	TS int64 `json:"ts,omitempty"`
}

// MemberContent is the parsed content of an m.room.member state event.
type MemberContent struct {
	Membership  string `json:"membership,omitempty"`
	DisplayName string `json:"displayname,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// PowerLevelsContent is the parsed content of m.room.power_levels.
type PowerLevelsContent struct {
	Users         map[string]int `json:"users,omitempty"`
	UsersDefault  int            `json:"users_default,omitempty"`
	Notifications map[string]int `json:"notifications,omitempty"`
}

// NotifyRoomThreshold returns the power level required for @room mentions.
func (c *PowerLevelsContent) NotifyRoomThreshold() int {
	if c.Notifications != nil {
		if lvl, ok := c.Notifications["room"]; ok {
			return lvl
		}
	}
	return 50
}

// UserLevel returns the effective power level of a user.
func (c *PowerLevelsContent) UserLevel(userID string) int {
	if lvl, ok := c.Users[userID]; ok {
		return lvl
	}
	return c.UsersDefault
}

// TombstoneContent is the parsed content of m.room.tombstone.
type TombstoneContent struct {
	Body            string `json:"body,omitempty"`
	ReplacementRoom string `json:"replacement_room,omitempty"`
}

// ParseMessageContent decodes m.room.message content.
func ParseMessageContent(raw json.RawMessage) (*MessageContent, error) {
	var content MessageContent
	if err := sonic.Unmarshal(raw, &content); err != nil {
		return nil, err
	}
	return &content, nil
}

// ParseReactionContent decodes m.reaction content.
func ParseReactionContent(raw json.RawMessage) (*ReactionContent, error) {
	var content ReactionContent
	if err := sonic.Unmarshal(raw, &content); err != nil {
		return nil, err
	}
	return &content, nil
}

// ParseFullyReadContent decodes m.fully_read account data content.
func ParseFullyReadContent(raw json.RawMessage) (*FullyReadContent, error) {
	var content FullyReadContent
	if err := sonic.Unmarshal(raw, &content); err != nil {
		return nil, err
	}
	return &content, nil
}

// ParseReceiptContent decodes m.receipt ephemeral content.
func ParseReceiptContent(raw json.RawMessage) (ReceiptContent, error) {
	var content ReceiptContent
	if err := sonic.Unmarshal(raw, &content); err != nil {
		return nil, err
	}
	return content, nil
}

// ParseMemberContent decodes m.room.member state content.
func ParseMemberContent(raw json.RawMessage) (*MemberContent, error) {
	var content MemberContent
	if err := sonic.Unmarshal(raw, &content); err != nil {
		return nil, err
	}
	return &content, nil
}

// ParsePowerLevelsContent decodes m.room.power_levels state content.
func ParsePowerLevelsContent(raw json.RawMessage) (*PowerLevelsContent, error) {
	var content PowerLevelsContent
	if err := sonic.Unmarshal(raw, &content); err != nil {
		return nil, err
	}
	return &content, nil
}

// EncodeEvent marshals an event back to wire JSON.
func EncodeEvent(e *RawEvent) (json.RawMessage, error) {
	data, err := sonic.Marshal(e)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}
