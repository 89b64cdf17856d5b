// Package push decides whether an event should be highlighted for the
// local user. It is a pure decision function over the event and locally
// stored room state; it never mutates the timeline.
package push

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tOgg1/loom/internal/logging"
	"github.com/tOgg1/loom/internal/models"
	"github.com/tOgg1/loom/internal/roomstate"
)

// StateLookup is the slice of the room-state store the evaluator needs.
type StateLookup interface {
	Member(ctx context.Context, roomID, userID string) (*models.MemberContent, error)
	PowerLevels(ctx context.Context, roomID string) (*models.PowerLevelsContent, error)
}

var _ StateLookup = (*roomstate.Store)(nil)

// Evaluator evaluates highlight rules for one room and one local user.
type Evaluator struct {
	roomID string
	userID string
	state  StateLookup
	log    zerolog.Logger
}

// New creates an evaluator. state may be nil; power-level-gated rules then
// never match.
func New(roomID, userID string, state StateLookup) *Evaluator {
	return &Evaluator{
		roomID: roomID,
		userID: userID,
		state:  state,
		log:    logging.Component("push").With().Str("room_id", roomID).Logger(),
	}
}

// IsHighlighted reports whether the event triggers a highlight for the
// local user. Own-sent events never highlight, regardless of rules.
func (e *Evaluator) IsHighlighted(event *models.RawEvent) bool {
	if event.Sender == e.userID {
		return false
	}

	// Room tombstones are highlighted by default.
	if event.Type == models.EventTypeTombstone && event.IsState() {
		return true
	}

	if event.Type != models.EventTypeMessage {
		return false
	}
	content, err := models.ParseMessageContent(event.Content)
	if err != nil {
		return false
	}
	body := content.Body
	if body == "" {
		return false
	}

	if e.mentionsLocalUser(body) {
		return true
	}
	if strings.Contains(body, "@room") && e.senderMayNotifyRoom(event.Sender) {
		return true
	}
	return false
}

// mentionsLocalUser matches the user's full ID, localpart, or stored
// display name in the message body.
func (e *Evaluator) mentionsLocalUser(body string) bool {
	if e.userID == "" {
		return false
	}
	if strings.Contains(body, e.userID) {
		return true
	}
	if localpart := localpartOf(e.userID); localpart != "" && containsWord(body, localpart) {
		return true
	}

	if e.state != nil {
		member, err := e.state.Member(context.Background(), e.roomID, e.userID)
		if err == nil && member.DisplayName != "" && containsWord(body, member.DisplayName) {
			return true
		}
	}
	return false
}

// senderMayNotifyRoom checks the sender's power level against the room's
// @room notification threshold.
func (e *Evaluator) senderMayNotifyRoom(sender string) bool {
	if e.state == nil {
		return false
	}
	levels, err := e.state.PowerLevels(context.Background(), e.roomID)
	if err != nil {
		return false
	}
	return levels.UserLevel(sender) >= levels.NotifyRoomThreshold()
}

// localpartOf extracts "alice" from "@alice:example.org".
func localpartOf(userID string) string {
	if !strings.HasPrefix(userID, "@") {
		return ""
	}
	rest := userID[1:]
	if i := strings.IndexByte(rest, ':'); i > 0 {
		return rest[:i]
	}
	return rest
}

// containsWord matches needle in haystack case-insensitively at word-ish
// boundaries, so "bob" does not match "bobsled" but matches "hey Bob!".
func containsWord(haystack, needle string) bool {
	haystack = strings.ToLower(haystack)
	needle = strings.ToLower(needle)

	for start := 0; ; {
		i := strings.Index(haystack[start:], needle)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(needle)
		beforeOK := i == 0 || !isWordByte(haystack[i-1])
		afterOK := end == len(haystack) || !isWordByte(haystack[end])
		if beforeOK && afterOK {
			return true
		}
		start = i + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9' || b == '_'
}
