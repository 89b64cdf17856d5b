package timeline

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tOgg1/loom/internal/models"
)

const dayMillis = int64(24 * time.Hour / time.Millisecond)

// shape renders the sequence compactly: "D" divider, "R" marker, else the
// event ID.
func shape(items []*Item) []string {
	var out []string
	for _, item := range items {
		if v := item.AsVirtual(); v != nil {
			switch v.Kind {
			case VirtualDateDivider:
				out = append(out, "D")
			case VirtualReadMarker:
				out = append(out, "R")
			}
			continue
		}
		out = append(out, item.AsEvent().EventID)
	}
	return out
}

func fullyRead(eventID string) *models.RoomUpdate {
	return &models.RoomUpdate{
		RoomID: testRoom,
		AccountData: []*models.RawEvent{{
			Type:    models.EventTypeFullyRead,
			Content: json.RawMessage(fmt.Sprintf(`{"event_id":%q}`, eventID)),
		}},
	}
}

func TestDividerPerDay(t *testing.T) {
	tl := New(testRoom)
	tl.HandleEvents(
		textMessage("$a", alice, baseTS, "day one"),
		textMessage("$b", bob, baseTS+1000, "day one too"),
		textMessage("$c", alice, baseTS+dayMillis, "day two"),
	)

	assert.Equal(t, []string{"D", "$a", "$b", "D", "$c"}, shape(tl.Items()))
}

func TestLateEventJoinsExistingDay(t *testing.T) {
	tl := New(testRoom)
	tl.HandleEvents(
		textMessage("$b", bob, baseTS+2000, "later"),
		textMessage("$a", alice, baseTS+1000, "earlier"),
	)

	assert.Equal(t, []string{"D", "$a", "$b"}, shape(tl.Items()),
		"one divider per day, never duplicated")
}

func TestLateEventFromEarlierDay(t *testing.T) {
	tl := New(testRoom)
	tl.HandleEvents(textMessage("$b", bob, baseTS+dayMillis, "day two"))
	require.Equal(t, []string{"D", "$b"}, shape(tl.Items()))

	_, sub := tl.Subscribe()
	tl.HandleEvents(textMessage("$a", alice, baseTS, "day one"))

	assert.Equal(t, []string{"D", "$a", "D", "$b"}, shape(tl.Items()))

	// The fix-up touches only what changed; event items are not reordered.
	for _, d := range drainDiffs(sub) {
		assert.NotEqual(t, OpClear, d.Op)
	}
}

func TestDividerDatesMatchFollowingDay(t *testing.T) {
	tl := New(testRoom)
	tl.HandleEvents(
		textMessage("$a", alice, baseTS, "one"),
		textMessage("$b", bob, baseTS+dayMillis, "two"),
		textMessage("$c", alice, baseTS+2*dayMillis, "three"),
	)

	items := tl.Items()
	for i, item := range items {
		v := item.AsVirtual()
		if v == nil || v.Kind != VirtualDateDivider {
			continue
		}
		require.Less(t, i+1, len(items))
		next := items[i+1].AsEvent()
		require.NotNil(t, next, "divider directly precedes an event item")
		assert.Equal(t, dayOf(next.Timestamp), v.Date)
	}
}

func TestReadMarkerPlacement(t *testing.T) {
	tl := New(testRoom)
	tl.HandleEvents(
		textMessage("$a", alice, baseTS, "a"),
		textMessage("$b", bob, baseTS+1000, "b"),
		textMessage("$c", alice, baseTS+2000, "c"),
	)

	tl.HandleRoomUpdate(fullyRead("$b"))
	assert.Equal(t, []string{"D", "$a", "$b", "R", "$c"}, shape(tl.Items()))
}

func TestReadMarkerMovesForward(t *testing.T) {
	tl := New(testRoom)
	tl.HandleEvents(
		textMessage("$a", alice, baseTS, "a"),
		textMessage("$b", bob, baseTS+1000, "b"),
		textMessage("$c", alice, baseTS+2000, "c"),
		textMessage("$d", bob, baseTS+3000, "d"),
	)
	tl.HandleRoomUpdate(fullyRead("$a"))

	var markerID int64
	for _, item := range tl.Items() {
		if v := item.AsVirtual(); v != nil && v.Kind == VirtualReadMarker {
			markerID = item.ID()
		}
	}
	require.NotZero(t, markerID)

	tl.HandleRoomUpdate(fullyRead("$c"))
	assert.Equal(t, []string{"D", "$a", "$b", "$c", "R", "$d"}, shape(tl.Items()))

	// Moved, not recreated: the marker keeps its local identity.
	item, ok := tl.ItemByID(markerID)
	require.True(t, ok)
	assert.Equal(t, VirtualReadMarker, item.AsVirtual().Kind)
}

func TestReadMarkerOnLastEvent(t *testing.T) {
	tl := New(testRoom)
	tl.HandleEvents(
		textMessage("$a", alice, baseTS, "a"),
		textMessage("$b", bob, baseTS+1000, "b"),
	)

	tl.HandleRoomUpdate(fullyRead("$b"))
	assert.Equal(t, []string{"D", "$a", "$b"}, shape(tl.Items()),
		"a marker after the newest event carries no information")

	// A newer event arriving makes the marker meaningful.
	tl.HandleEvents(textMessage("$c", alice, baseTS+2000, "c"))
	assert.Equal(t, []string{"D", "$a", "$b", "R", "$c"}, shape(tl.Items()))
}

func TestReadMarkerUnknownEvent(t *testing.T) {
	tl := New(testRoom)
	tl.HandleEvents(textMessage("$a", alice, baseTS, "a"))

	tl.HandleRoomUpdate(fullyRead("$missing"))
	assert.Equal(t, []string{"D", "$a"}, shape(tl.Items()))
}

func TestReadMarkerRemovedWhenSupersededByUnknown(t *testing.T) {
	tl := New(testRoom)
	tl.HandleEvents(
		textMessage("$a", alice, baseTS, "a"),
		textMessage("$b", bob, baseTS+1000, "b"),
	)
	tl.HandleRoomUpdate(fullyRead("$a"))
	require.Equal(t, []string{"D", "$a", "R", "$b"}, shape(tl.Items()))

	tl.HandleRoomUpdate(fullyRead("$missing"))
	assert.Equal(t, []string{"D", "$a", "$b"}, shape(tl.Items()))
}

func TestMarkerSurvivesInsertionBefore(t *testing.T) {
	tl := New(testRoom)
	tl.HandleEvents(
		textMessage("$b", bob, baseTS+1000, "b"),
		textMessage("$c", alice, baseTS+2000, "c"),
	)
	tl.HandleRoomUpdate(fullyRead("$b"))
	require.Equal(t, []string{"D", "$b", "R", "$c"}, shape(tl.Items()))

	tl.HandleEvents(textMessage("$a", alice, baseTS, "a"))
	assert.Equal(t, []string{"D", "$a", "$b", "R", "$c"}, shape(tl.Items()))
}
