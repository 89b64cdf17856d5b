package syncer

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tOgg1/loom/internal/models"
	"github.com/tOgg1/loom/internal/roomstate"
	"github.com/tOgg1/loom/internal/timeline"
)

const (
	roomA     = "!a:example.org"
	roomB     = "!b:example.org"
	localUser = "@bob:example.org"
)

func writeSyncFile(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sync.jsonl")
	var data []byte
	for _, line := range lines {
		data = append(data, line...)
		data = append(data, '\n')
	}
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func eventIDs(items []*timeline.Item) []string {
	var out []string
	for _, item := range items {
		if ev := item.AsEvent(); ev != nil {
			out = append(out, ev.EventID)
		}
	}
	return out
}

func TestFileSourceReplaysBatches(t *testing.T) {
	path := writeSyncFile(t,
		`{"next_batch":"s1","rooms":[{"room_id":"!a:example.org"}]}`,
		``,
		`{"next_batch":"s2","rooms":[{"room_id":"!b:example.org"}]}`,
	)

	source, err := OpenFileSource(path)
	require.NoError(t, err)
	defer source.Close()

	ctx := context.Background()
	resp, err := source.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "s1", resp.NextBatch)

	resp, err = source.Next(ctx)
	require.NoError(t, err, "blank lines are skipped")
	assert.Equal(t, "s2", resp.NextBatch)

	_, err = source.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestFileSourceMalformedLine(t *testing.T) {
	path := writeSyncFile(t, `{not json}`)

	source, err := OpenFileSource(path)
	require.NoError(t, err)
	defer source.Close()

	_, err = source.Next(context.Background())
	assert.ErrorContains(t, err, "malformed sync batch")
}

func TestFileSourceContextCancelled(t *testing.T) {
	path := writeSyncFile(t, `{"next_batch":"s1"}`)

	source, err := OpenFileSource(path)
	require.NoError(t, err)
	defer source.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = source.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDispatcherRoutesRooms(t *testing.T) {
	path := writeSyncFile(t,
		`{"rooms":[`+
			`{"room_id":"!a:example.org","timeline":[{"type":"m.room.message","event_id":"$a1","sender":"@alice:example.org","origin_server_ts":1000,"content":{"msgtype":"m.text","body":"in a"}}]},`+
			`{"room_id":"!b:example.org","timeline":[{"type":"m.room.message","event_id":"$b1","sender":"@alice:example.org","origin_server_ts":2000,"content":{"msgtype":"m.text","body":"in b"}}]}`+
			`]}`,
		`{"rooms":[{"room_id":"!a:example.org","timeline":[{"type":"m.room.message","event_id":"$a2","sender":"@alice:example.org","origin_server_ts":3000,"content":{"msgtype":"m.text","body":"more a"}}]}]}`,
	)

	source, err := OpenFileSource(path)
	require.NoError(t, err)
	defer source.Close()

	dispatcher := NewDispatcher(WithLocalUser(localUser))
	require.NoError(t, dispatcher.Run(context.Background(), source))

	rooms := dispatcher.RoomIDs()
	sort.Strings(rooms)
	assert.Equal(t, []string{roomA, roomB}, rooms)

	assert.Equal(t, []string{"$a1", "$a2"}, eventIDs(dispatcher.Timeline(roomA).Items()))
	assert.Equal(t, []string{"$b1"}, eventIDs(dispatcher.Timeline(roomB).Items()))
}

func TestDispatcherFeedsStateStore(t *testing.T) {
	state, err := roomstate.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer state.Close()

	dispatcher := NewDispatcher(WithLocalUser(localUser), WithStateStore(state))

	ctx := context.Background()
	stateKey := "@alice:example.org"
	require.NoError(t, dispatcher.HandleResponse(ctx, &models.SyncResponse{
		Rooms: []*models.RoomUpdate{{
			RoomID: roomA,
			State: []*models.RawEvent{{
				Type:     models.EventTypeMember,
				EventID:  "$member",
				Sender:   stateKey,
				StateKey: &stateKey,
				Content:  []byte(`{"membership":"join","displayname":"Alice"}`),
			}},
			AccountData: []*models.RawEvent{{
				Type:    models.EventTypeFullyRead,
				Content: []byte(`{"event_id":"$somewhere"}`),
			}},
		}},
	}))

	member, err := state.Member(ctx, roomA, stateKey)
	require.NoError(t, err)
	assert.Equal(t, "Alice", member.DisplayName)

	fullyRead, err := state.FullyRead(ctx, roomA)
	require.NoError(t, err)
	assert.Equal(t, "$somewhere", fullyRead)
}

func TestDispatcherHighlightsViaState(t *testing.T) {
	state, err := roomstate.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer state.Close()

	dispatcher := NewDispatcher(WithLocalUser(localUser), WithStateStore(state))

	// State arrives in the same batch as the message; it must be applied
	// first so the highlight evaluator sees the sender's power level.
	plKey := ""
	require.NoError(t, dispatcher.HandleResponse(context.Background(), &models.SyncResponse{
		Rooms: []*models.RoomUpdate{{
			RoomID: roomA,
			State: []*models.RawEvent{{
				Type:     models.EventTypePowerLevels,
				EventID:  "$pl",
				Sender:   "@alice:example.org",
				StateKey: &plKey,
				Content:  []byte(`{"users":{"@alice:example.org":100}}`),
			}},
			Timeline: []*models.RawEvent{{
				Type:           models.EventTypeMessage,
				EventID:        "$m1",
				Sender:         "@alice:example.org",
				OriginServerTS: 1000,
				Content:        []byte(`{"msgtype":"m.text","body":"@room hello"}`),
			}},
		}},
	}))

	item, ok := dispatcher.Timeline(roomA).ItemByEventID("$m1")
	require.True(t, ok)
	assert.True(t, item.AsEvent().Highlighted)
}

func TestDispatcherSkipsRoomlessUpdate(t *testing.T) {
	dispatcher := NewDispatcher()
	require.NoError(t, dispatcher.HandleResponse(context.Background(), &models.SyncResponse{
		Rooms: []*models.RoomUpdate{{
			Timeline: []*models.RawEvent{{
				Type:           models.EventTypeMessage,
				EventID:        "$m1",
				Sender:         "@alice:example.org",
				OriginServerTS: 1000,
				Content:        []byte(`{"msgtype":"m.text","body":"nowhere"}`),
			}},
		}},
	}))
	assert.Empty(t, dispatcher.RoomIDs())
}

func TestTimelineInstanceReused(t *testing.T) {
	dispatcher := NewDispatcher()
	assert.Same(t, dispatcher.Timeline(roomA), dispatcher.Timeline(roomA))
	assert.NotSame(t, dispatcher.Timeline(roomA), dispatcher.Timeline(roomB))
}
