package roomstate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tOgg1/loom/internal/models"
)

// ApplyStateEvent upserts one state event into the current-state table.
// Non-state events are ignored with a warning rather than an error; the
// ingestion path must not fail on malformed input.
func (s *Store) ApplyStateEvent(ctx context.Context, roomID string, event *models.RawEvent) error {
	if !event.IsState() {
		s.log.Warn().
			Str("room_id", roomID).
			Str("type", string(event.Type)).
			Msg("non-state event passed to state store, ignored")
		return nil
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO room_state (room_id, type, state_key, sender, event_id, origin_server_ts, content_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(room_id, type, state_key) DO UPDATE SET
			sender = excluded.sender,
			event_id = excluded.event_id,
			origin_server_ts = excluded.origin_server_ts,
			content_json = excluded.content_json
	`,
		roomID,
		string(event.Type),
		*event.StateKey,
		event.Sender,
		event.EventID,
		event.OriginServerTS,
		string(event.Content),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert state event: %w", err)
	}
	return nil
}

// StateEvent retrieves the current state event for (type, state_key).
// Returns ErrNotFound when no such state exists.
func (s *Store) StateEvent(ctx context.Context, roomID string, eventType models.EventType, stateKey string) (*models.RawEvent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT sender, event_id, origin_server_ts, content_json
		FROM room_state
		WHERE room_id = ? AND type = ? AND state_key = ?
	`, roomID, string(eventType), stateKey)

	var sender, contentJSON string
	var eventID sql.NullString
	var ts int64
	if err := row.Scan(&sender, &eventID, &ts, &contentJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan state event: %w", err)
	}

	key := stateKey
	return &models.RawEvent{
		Type:           eventType,
		EventID:        eventID.String,
		Sender:         sender,
		OriginServerTS: ts,
		StateKey:       &key,
		Content:        []byte(contentJSON),
		RoomID:         roomID,
	}, nil
}

// Member returns the parsed membership state of a user in a room, or
// ErrNotFound when the user has no member event.
func (s *Store) Member(ctx context.Context, roomID, userID string) (*models.MemberContent, error) {
	event, err := s.StateEvent(ctx, roomID, models.EventTypeMember, userID)
	if err != nil {
		return nil, err
	}
	content, err := models.ParseMemberContent(event.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse member content: %w", err)
	}
	return content, nil
}

// PowerLevels returns the parsed power-level state of a room, or
// ErrNotFound when no power-level event has been stored.
func (s *Store) PowerLevels(ctx context.Context, roomID string) (*models.PowerLevelsContent, error) {
	event, err := s.StateEvent(ctx, roomID, models.EventTypePowerLevels, "")
	if err != nil {
		return nil, err
	}
	content, err := models.ParsePowerLevelsContent(event.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse power levels content: %w", err)
	}
	return content, nil
}

// PowerLevel returns the effective power level of a user in a room; the
// users_default level applies to users without an explicit entry, and 0
// when the room has no power-level event at all.
func (s *Store) PowerLevel(ctx context.Context, roomID, userID string) (int, error) {
	levels, err := s.PowerLevels(ctx, roomID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return levels.UserLevel(userID), nil
}
