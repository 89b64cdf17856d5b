// Package timeline reconciles an unordered stream of room events into a
// single ordered, continuously-updated view, and publishes every change as
// positional diffs with snapshot+replay semantics.
package timeline

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tOgg1/loom/internal/logging"
	"github.com/tOgg1/loom/internal/models"
)

// Fetcher looks up a single event out-of-band. Used only for resolving
// reply targets that are not in the timeline.
type Fetcher interface {
	FetchEvent(ctx context.Context, roomID, eventID string) (*models.RawEvent, error)
}

// Highlighter is the push-rule decision function: event in, highlighted
// out. Pure with respect to the timeline.
type Highlighter interface {
	IsHighlighted(event *models.RawEvent) bool
}

// Timeline is one room's reconciled timeline. All ingestion is serialized
// behind a single lock; detail fetches run outside it and re-enter only to
// apply their terminal state.
type Timeline struct {
	roomID      string
	userID      string
	fetcher     Fetcher
	highlighter Highlighter
	log         zerolog.Logger

	// mu serializes all ingestion and store mutation: the single logical
	// writer. Detail fetches run outside it and re-enter to apply their
	// terminal transition.
	mu    sync.Mutex
	store *store

	// eventIndex maps placed remote event IDs to local item IDs.
	eventIndex map[string]int64

	// reactionIndex maps a reaction event's own ID to the local ID of
	// the item it annotates, so redacting the reaction can find it.
	reactionIndex map[string]int64

	// pendingRelations queues relations whose target has not been placed
	// yet, keyed by target event ID, in arrival order.
	pendingRelations map[string][]*normalized

	// pendingRedactions holds redactions whose target is unknown, keyed
	// by the redacted event ID.
	pendingRedactions map[string]struct{}

	// replyIndex maps a reply target event ID to the local IDs of items
	// whose messages reference it.
	replyIndex map[string][]int64

	// inflight deduplicates detail fetches, keyed by event ID.
	inflight map[string]*fetchState

	// localEchoes maps transaction IDs to local-echo item IDs.
	localEchoes map[string]int64

	// receiptIndex maps a user ID to the local ID of the item currently
	// carrying that user's read receipt.
	receiptIndex map[string]int64

	// fullyRead is the event ID from m.fully_read account data.
	fullyRead string
}

// Option configures a Timeline.
type Option func(*Timeline)

// WithLocalUser sets the local user ID, used for own-event detection,
// edit authorization and local-echo matching.
func WithLocalUser(userID string) Option {
	return func(t *Timeline) {
		t.userID = userID
	}
}

// WithFetcher sets the out-of-band event fetcher.
func WithFetcher(f Fetcher) Option {
	return func(t *Timeline) {
		t.fetcher = f
	}
}

// WithHighlighter sets the push-rule decision function.
func WithHighlighter(h Highlighter) Option {
	return func(t *Timeline) {
		t.highlighter = h
	}
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(t *Timeline) {
		t.log = log
	}
}

// New creates an empty timeline for one room.
func New(roomID string, opts ...Option) *Timeline {
	t := &Timeline{
		roomID:            roomID,
		log:               logging.Component("timeline").With().Str("room_id", roomID).Logger(),
		eventIndex:        make(map[string]int64),
		reactionIndex:     make(map[string]int64),
		pendingRelations:  make(map[string][]*normalized),
		pendingRedactions: make(map[string]struct{}),
		replyIndex:        make(map[string][]int64),
		inflight:          make(map[string]*fetchState),
		localEchoes:       make(map[string]int64),
		receiptIndex:      make(map[string]int64),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.store = newStore()
	return t
}

// RoomID returns the room this timeline belongs to.
func (t *Timeline) RoomID() string {
	return t.roomID
}

func (t *Timeline) lock() {
	t.mu.Lock()
}

func (t *Timeline) unlock() {
	t.mu.Unlock()
}

// Subscribe returns an atomic pair: a snapshot of the current sequence and
// a stream of every diff emitted after the snapshot was taken. Folding the
// stream onto the snapshot always reproduces the live sequence.
func (t *Timeline) Subscribe() ([]*Item, *Subscription) {
	t.lock()
	defer t.unlock()

	sub := newSubscription(func(id string) {
		t.lock()
		defer t.unlock()
		t.store.detach(id)
	})
	snapshot := t.store.snapshot()
	t.store.attach(sub)
	return snapshot, sub
}

// Items returns a snapshot of the current item sequence.
func (t *Timeline) Items() []*Item {
	t.lock()
	defer t.unlock()
	return t.store.snapshot()
}

// ItemByID returns the item with the given local identifier.
func (t *Timeline) ItemByID(id int64) (*Item, bool) {
	t.lock()
	defer t.unlock()
	if i := t.store.indexOfID(id); i >= 0 {
		return t.store.at(i), true
	}
	return nil, false
}

// ItemByEventID returns the item carrying the given remote event ID.
// Virtual items and unconfirmed local echoes have no event ID and are
// never returned.
func (t *Timeline) ItemByEventID(eventID string) (*Item, bool) {
	t.lock()
	defer t.unlock()
	return t.itemByEventIDLocked(eventID)
}

func (t *Timeline) itemByEventIDLocked(eventID string) (*Item, bool) {
	id, ok := t.eventIndex[eventID]
	if !ok {
		return nil, false
	}
	if i := t.store.indexOfID(id); i >= 0 {
		return t.store.at(i), true
	}
	return nil, false
}

// HandleRoomUpdate ingests one room's slice of a sync batch: timeline
// events, account data and ephemeral receipts. Malformed events degrade to
// placeholders or no-ops; ingestion never fails.
func (t *Timeline) HandleRoomUpdate(update *models.RoomUpdate) {
	t.lock()
	defer t.unlock()

	if update.Limited {
		t.resetLocked()
	}
	for _, raw := range update.Timeline {
		t.handleTimelineEvent(raw)
	}
	for _, raw := range update.AccountData {
		t.handleAccountData(raw)
	}
	for _, raw := range update.Ephemeral {
		t.handleEphemeral(raw)
	}
}

// HandleEvents ingests timeline events without the surrounding batch
// context.
func (t *Timeline) HandleEvents(events ...*models.RawEvent) {
	t.lock()
	defer t.unlock()
	for _, raw := range events {
		t.handleTimelineEvent(raw)
	}
}

// resetLocked drops all derived state on a gapped (full-resync) update.
func (t *Timeline) resetLocked() {
	t.store.clear()
	t.eventIndex = make(map[string]int64)
	t.reactionIndex = make(map[string]int64)
	t.pendingRelations = make(map[string][]*normalized)
	t.pendingRedactions = make(map[string]struct{})
	t.replyIndex = make(map[string][]int64)
	t.localEchoes = make(map[string]int64)
	t.receiptIndex = make(map[string]int64)
	t.fullyRead = ""
}

func (t *Timeline) handleTimelineEvent(raw *models.RawEvent) {
	norm := t.normalizeEvent(raw)
	if norm == nil {
		return
	}

	switch norm.kind {
	case kindRedaction:
		t.applyRedaction(norm)
	case kindEdit, kindReaction:
		t.applyOrQueueRelation(norm)
	case kindPlaceable:
		t.placeEvent(norm)
	}
}

func (t *Timeline) handleAccountData(raw *models.RawEvent) {
	switch raw.Type {
	case models.EventTypeFullyRead:
		content, err := models.ParseFullyReadContent(raw.Content)
		if err != nil {
			t.log.Warn().Err(err).Msg("malformed m.fully_read content")
			return
		}
		t.setFullyRead(content.EventID)
	default:
		t.log.Debug().Str("type", string(raw.Type)).Msg("ignoring account data")
	}
}

func (t *Timeline) handleEphemeral(raw *models.RawEvent) {
	switch raw.Type {
	case models.EventTypeReceipt:
		content, err := models.ParseReceiptContent(raw.Content)
		if err != nil {
			t.log.Warn().Err(err).Msg("malformed m.receipt content")
			return
		}
		t.applyReceipts(content)
	default:
		t.log.Debug().Str("type", string(raw.Type)).Msg("ignoring ephemeral event")
	}
}

// placeEvent creates (or, for a confirmed local echo, updates) the item
// for a placeable event and applies everything that was waiting for it.
func (t *Timeline) placeEvent(norm *normalized) {
	raw := norm.raw

	if raw.EventID != "" {
		if _, dup := t.eventIndex[raw.EventID]; dup {
			t.log.Debug().Str("event_id", raw.EventID).Msg("duplicate event ignored")
			return
		}
	}

	// A remote echo of one of our local sends updates the echo item in
	// place, keeping its local identity and position.
	if t.confirmLocalEcho(norm) {
		return
	}

	item := &Item{
		id: t.store.newItemID(),
		event: &EventItem{
			EventID:   raw.EventID,
			Sender:    raw.Sender,
			Timestamp: raw.Timestamp(),
			Content:   norm.content,
			Own:       t.userID != "" && raw.Sender == t.userID,
			Raw:       append(json.RawMessage(nil), norm.rawJSON...),
		},
	}
	if !item.event.Own && t.highlighter != nil {
		item.event.Highlighted = t.highlighter.IsHighlighted(raw)
	}
	t.resolveReplyLocked(item)

	pos := t.insertPosForTimestamp(item.event.Timestamp)
	t.store.insert(pos, item)
	if raw.EventID != "" {
		t.eventIndex[raw.EventID] = item.id
	}

	t.afterPlacement(raw.EventID)
}

// afterPlacement applies deferred effects that were waiting on the event:
// queued relations, reply dependents, virtual item positions.
func (t *Timeline) afterPlacement(eventID string) {
	t.fixDateDividers()

	if eventID != "" {
		if _, redacted := t.pendingRedactions[eventID]; redacted {
			delete(t.pendingRedactions, eventID)
			t.redactItemByEventID(eventID)
		}
		for _, rel := range t.pendingRelations[eventID] {
			t.applyRelation(rel)
		}
		delete(t.pendingRelations, eventID)

		t.resolveReplyDependents(eventID)
	}

	t.updateReadMarker()
}

// confirmLocalEcho matches a remote event against an outstanding local
// echo by transaction ID. The echo item keeps its local identifier and
// position; it gains the remote event ID, raw payload and server
// timestamp. Returns whether the event was consumed.
func (t *Timeline) confirmLocalEcho(norm *normalized) bool {
	raw := norm.raw
	if t.userID == "" || raw.Sender != t.userID || raw.Unsigned == nil || raw.Unsigned.TransactionID == "" {
		return false
	}
	itemID, ok := t.localEchoes[raw.Unsigned.TransactionID]
	if !ok {
		return false
	}
	delete(t.localEchoes, raw.Unsigned.TransactionID)

	i := t.store.indexOfID(itemID)
	if i < 0 {
		return false
	}

	updated := t.store.at(i).clone()
	ev := updated.AsEvent()
	ev.EventID = raw.EventID
	ev.Timestamp = raw.Timestamp()
	ev.Content = norm.content
	ev.Raw = append(json.RawMessage(nil), norm.rawJSON...)
	t.store.set(i, updated)

	if raw.EventID != "" {
		t.eventIndex[raw.EventID] = itemID
	}
	t.afterPlacement(raw.EventID)

	t.log.Debug().
		Str("txn_id", raw.Unsigned.TransactionID).
		Str("event_id", raw.EventID).
		Msg("local echo confirmed")
	return true
}

// SendLocalEcho appends an optimistic own-message item before the remote
// confirmation arrives. Returns the item's stable local identifier.
func (t *Timeline) SendLocalEcho(txnID string, content *models.MessageContent) int64 {
	t.lock()
	defer t.unlock()

	msg := &Message{MsgType: content.MsgType, Body: content.Body}
	if content.RelatesTo != nil && content.RelatesTo.InReplyTo != nil {
		msg.InReplyTo = &InReplyToDetails{
			EventID: content.RelatesTo.InReplyTo.EventID,
			Event:   UnavailableDetails(),
		}
	}

	item := &Item{
		id: t.store.newItemID(),
		event: &EventItem{
			TxnID:     txnID,
			Sender:    t.userID,
			Timestamp: time.Now().UTC(),
			Content:   msg,
			Own:       true,
		},
	}
	t.resolveReplyLocked(item)
	t.localEchoes[txnID] = item.id

	t.store.pushBack(item)
	t.fixDateDividers()
	return item.id
}

// insertPosForTimestamp returns the position a new event item with the
// given timestamp belongs at: after every event item with an earlier or
// equal timestamp, so same-timestamp items keep arrival order, and real
// items never reorder relative to each other.
func (t *Timeline) insertPosForTimestamp(ts time.Time) int {
	for i := t.store.len() - 1; i >= 0; i-- {
		ev := t.store.at(i).AsEvent()
		if ev == nil {
			continue
		}
		if !ev.Timestamp.After(ts) {
			return i + 1
		}
	}
	// Earlier than every event item: in front of everything. Dividers are
	// fixed up after insertion.
	return 0
}
