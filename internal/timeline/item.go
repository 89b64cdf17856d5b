package timeline

import (
	"encoding/json"
	"time"

	"github.com/tOgg1/loom/internal/models"
)

// Item is one entry of the rendered timeline: either a real event or a
// locally synthesized virtual item. Exactly one of the two parts is set.
type Item struct {
	// id is the stable local identity, monotonically assigned and kept
	// for the item's whole lifetime even as its event ID, content or
	// position changes.
	id int64

	event   *EventItem
	virtual *VirtualItem
}

// ID returns the stable local identifier.
func (it *Item) ID() int64 {
	return it.id
}

// AsEvent returns the event part, or nil for virtual items.
func (it *Item) AsEvent() *EventItem {
	return it.event
}

// AsVirtual returns the virtual part, or nil for event items.
func (it *Item) AsVirtual() *VirtualItem {
	return it.virtual
}

// clone returns a deep-enough copy for copy-on-write mutation: the event
// part and its mutable containers are copied, content values are shared
// until replaced.
func (it *Item) clone() *Item {
	out := &Item{id: it.id}
	if it.virtual != nil {
		v := *it.virtual
		out.virtual = &v
	}
	if it.event != nil {
		ev := *it.event
		ev.Reactions = it.event.Reactions.clone()
		if it.event.Receipts != nil {
			ev.Receipts = make(map[string]models.Receipt, len(it.event.Receipts))
			for user, r := range it.event.Receipts {
				ev.Receipts[user] = r
			}
		}
		out.event = &ev
	}
	return out
}

// EventItem is the rendered form of one protocol event.
type EventItem struct {
	// EventID is the remote event ID; empty while the send is only a
	// local echo.
	EventID string

	// TxnID is the client transaction ID of a local echo, used to match
	// the confirming remote event.
	TxnID string

	// Sender is the sending user ID.
	Sender string

	// Timestamp is the origin timestamp used for ordering.
	Timestamp time.Time

	// Content is the renderable payload.
	Content Content

	// Reactions groups reactions on this item by key.
	Reactions Reactions

	// Edited is set once an edit has been applied.
	Edited bool

	// Highlighted is the push-rule decision; never set on own events.
	Highlighted bool

	// Own marks events sent by the local user.
	Own bool

	// Raw is the original wire payload, present only once the remote
	// echo has been received.
	Raw json.RawMessage

	// Receipts maps user ID to that user's read receipt on this item.
	Receipts map[string]models.Receipt
}

// IsLocalEcho reports whether the item is still awaiting its remote echo.
func (ev *EventItem) IsLocalEcho() bool {
	return ev.EventID == ""
}

// VirtualKind identifies the kind of a virtual item.
type VirtualKind int

const (
	// VirtualDateDivider marks the first item of a calendar day.
	VirtualDateDivider VirtualKind = iota

	// VirtualReadMarker marks the fully-read position.
	VirtualReadMarker
)

// VirtualItem is a locally synthesized, non-network timeline entry.
type VirtualItem struct {
	// Kind discriminates divider vs read marker.
	Kind VirtualKind

	// Date is the divider's calendar day (midnight UTC); zero for the
	// read marker.
	Date time.Time
}

// ReactionSender is one sender's reaction within a group.
type ReactionSender struct {
	// Sender is the reacting user ID.
	Sender string

	// EventID is the reaction event's own ID, needed to undo the
	// reaction when that event is redacted.
	EventID string
}

// ReactionGroup is the set of senders that reacted with one key, in
// first-seen order.
type ReactionGroup struct {
	Senders []ReactionSender
}

// Reactions is an ordered mapping from reaction key to its group. Key
// order is first-seen insertion order.
type Reactions struct {
	keys   []string
	groups map[string]*ReactionGroup
}

// Len returns the number of reaction groups.
func (r *Reactions) Len() int {
	return len(r.keys)
}

// Keys returns the reaction keys in first-seen order.
func (r *Reactions) Keys() []string {
	return r.keys
}

// Group returns the group for a key, or nil.
func (r *Reactions) Group(key string) *ReactionGroup {
	return r.groups[key]
}

// add records one sender's reaction under key. A sender reacting twice
// with the same key is kept once, first reaction event wins.
func (r *Reactions) add(key, sender, eventID string) {
	group, ok := r.groups[key]
	if !ok {
		if r.groups == nil {
			r.groups = make(map[string]*ReactionGroup)
		}
		group = &ReactionGroup{}
		r.groups[key] = group
		r.keys = append(r.keys, key)
	}
	for _, s := range group.Senders {
		if s.Sender == sender {
			return
		}
	}
	group.Senders = append(group.Senders, ReactionSender{Sender: sender, EventID: eventID})
}

// removeByEventID removes the reaction entry carrying the given reaction
// event ID, deleting its group when the sender set becomes empty. Returns
// whether anything was removed.
func (r *Reactions) removeByEventID(eventID string) bool {
	for ki, key := range r.keys {
		group := r.groups[key]
		for si, s := range group.Senders {
			if s.EventID != eventID {
				continue
			}
			group.Senders = append(group.Senders[:si], group.Senders[si+1:]...)
			if len(group.Senders) == 0 {
				delete(r.groups, key)
				r.keys = append(r.keys[:ki], r.keys[ki+1:]...)
			}
			return true
		}
	}
	return false
}

// clear drops all reaction groups.
func (r *Reactions) clear() {
	r.keys = nil
	r.groups = nil
}

// clone returns an independent copy.
func (r Reactions) clone() Reactions {
	if len(r.keys) == 0 {
		return Reactions{}
	}
	out := Reactions{
		keys:   append([]string(nil), r.keys...),
		groups: make(map[string]*ReactionGroup, len(r.groups)),
	}
	for key, group := range r.groups {
		out.groups[key] = &ReactionGroup{
			Senders: append([]ReactionSender(nil), group.Senders...),
		}
	}
	return out
}
