package roomstate

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tOgg1/loom/internal/models"
)

// SetAccountData upserts one per-room account data entry.
func (s *Store) SetAccountData(ctx context.Context, roomID string, eventType models.EventType, content json.RawMessage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO room_account_data (room_id, type, content_json)
		VALUES (?, ?, ?)
		ON CONFLICT(room_id, type) DO UPDATE SET content_json = excluded.content_json
	`, roomID, string(eventType), string(content))
	if err != nil {
		return fmt.Errorf("failed to upsert account data: %w", err)
	}
	return nil
}

// AccountData retrieves one per-room account data entry, or ErrNotFound.
func (s *Store) AccountData(ctx context.Context, roomID string, eventType models.EventType) (json.RawMessage, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT content_json FROM room_account_data WHERE room_id = ? AND type = ?
	`, roomID, string(eventType))

	var contentJSON string
	if err := row.Scan(&contentJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan account data: %w", err)
	}
	return json.RawMessage(contentJSON), nil
}

// FullyRead returns the room's fully-read event ID, or empty when unset.
func (s *Store) FullyRead(ctx context.Context, roomID string) (string, error) {
	raw, err := s.AccountData(ctx, roomID, models.EventTypeFullyRead)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	content, err := models.ParseFullyReadContent(raw)
	if err != nil {
		return "", fmt.Errorf("failed to parse fully-read content: %w", err)
	}
	return content.EventID, nil
}
