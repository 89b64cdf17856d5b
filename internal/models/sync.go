package models

import "github.com/bytedance/sonic"

// RoomUpdate is one room's slice of a sync response.
type RoomUpdate struct {
	// RoomID identifies the room the update belongs to.
	RoomID string `json:"room_id"`

	// Limited marks a gapped update: the timeline slice does not connect
	// to previously delivered events. Only expected at session start.
	Limited bool `json:"limited,omitempty"`

	// Timeline holds new timeline events in server order.
	Timeline []*RawEvent `json:"timeline,omitempty"`

	// State holds state events that apply before the timeline slice.
	State []*RawEvent `json:"state,omitempty"`

	// AccountData holds per-room account data events (m.fully_read, ...).
	AccountData []*RawEvent `json:"account_data,omitempty"`

	// Ephemeral holds non-persistent events (m.receipt, typing, ...).
	Ephemeral []*RawEvent `json:"ephemeral,omitempty"`
}

// SyncResponse is one batch from the sync stream.
type SyncResponse struct {
	// NextBatch is the sync token to resume from.
	NextBatch string `json:"next_batch,omitempty"`

	// Rooms holds the per-room updates in this batch.
	Rooms []*RoomUpdate `json:"rooms,omitempty"`
}

// ParseSyncResponse decodes one sync batch from JSON.
func ParseSyncResponse(data []byte) (*SyncResponse, error) {
	var resp SyncResponse
	if err := sonic.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
