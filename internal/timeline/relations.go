package timeline

// applyOrQueueRelation applies an edit or reaction when its target is
// already placed, otherwise queues it by target event ID. Queued relations
// are applied in arrival order the moment the target appears.
func (t *Timeline) applyOrQueueRelation(norm *normalized) {
	// A redaction of this relation may have arrived first; the two
	// cancel out.
	if norm.raw.EventID != "" {
		if _, redacted := t.pendingRedactions[norm.raw.EventID]; redacted {
			delete(t.pendingRedactions, norm.raw.EventID)
			return
		}
	}

	if _, placed := t.eventIndex[norm.target]; placed {
		t.applyRelation(norm)
		return
	}
	t.pendingRelations[norm.target] = append(t.pendingRelations[norm.target], norm)
	t.log.Debug().
		Str("target", norm.target).
		Str("event_id", norm.raw.EventID).
		Msg("relation queued, target not placed")
}

// applyRelation applies an edit or reaction to its placed target.
func (t *Timeline) applyRelation(norm *normalized) {
	switch norm.kind {
	case kindEdit:
		t.applyEdit(norm)
	case kindReaction:
		t.applyReaction(norm)
	}
}

// applyEdit replaces the target item's content and marks it edited. Only
// the original sender may edit; anything else is a silent no-op. Identity,
// timestamp ordering and reactions are untouched.
func (t *Timeline) applyEdit(norm *normalized) {
	itemID, ok := t.eventIndex[norm.target]
	if !ok {
		return
	}
	i := t.store.indexOfID(itemID)
	if i < 0 {
		return
	}

	item := t.store.at(i)
	ev := item.AsEvent()
	if ev == nil {
		return
	}
	if ev.Sender != norm.raw.Sender {
		t.log.Debug().
			Str("target", norm.target).
			Str("sender", norm.raw.Sender).
			Msg("edit from non-original sender ignored")
		return
	}
	original, ok := ev.Content.(*Message)
	if !ok {
		// Redacted or non-message content is final.
		return
	}

	replacement := *norm.replacement
	replacement.InReplyTo = nil
	if original.InReplyTo != nil {
		reply := *original.InReplyTo
		replacement.InReplyTo = &reply
	}

	updated := item.clone()
	updated.AsEvent().Content = &replacement
	updated.AsEvent().Edited = true
	t.store.set(i, updated)
}

// applyReaction appends the sender to the reaction group keyed by the
// reaction's key on the target item.
func (t *Timeline) applyReaction(norm *normalized) {
	itemID, ok := t.eventIndex[norm.target]
	if !ok {
		return
	}
	i := t.store.indexOfID(itemID)
	if i < 0 {
		return
	}

	item := t.store.at(i)
	ev := item.AsEvent()
	if ev == nil {
		return
	}
	if _, redacted := ev.Content.(*RedactedMessage); redacted {
		return
	}

	updated := item.clone()
	updated.AsEvent().Reactions.add(norm.key, norm.raw.Sender, norm.raw.EventID)
	t.store.set(i, updated)

	if norm.raw.EventID != "" {
		t.reactionIndex[norm.raw.EventID] = itemID
	}
}

// applyRedaction routes a redaction to whatever it targets: an applied
// reaction, a placed item, a queued relation, or nothing yet (in which
// case it is remembered so a late-arriving target still converges).
// Redacting an already-redacted or unknown target never produces a diff.
func (t *Timeline) applyRedaction(norm *normalized) {
	target := norm.target

	if itemID, ok := t.reactionIndex[target]; ok {
		t.removeReaction(itemID, target)
		delete(t.reactionIndex, target)
		return
	}

	if _, ok := t.eventIndex[target]; ok {
		t.redactItemByEventID(target)
		return
	}

	if t.dropQueuedRelation(target) {
		return
	}

	t.pendingRedactions[target] = struct{}{}
}

// removeReaction deletes the single {sender, id} entry the redacted
// reaction event contributed, dropping the group if it becomes empty.
func (t *Timeline) removeReaction(itemID int64, reactionEventID string) {
	i := t.store.indexOfID(itemID)
	if i < 0 {
		return
	}
	item := t.store.at(i)
	if item.AsEvent() == nil {
		return
	}

	updated := item.clone()
	if !updated.AsEvent().Reactions.removeByEventID(reactionEventID) {
		return
	}
	t.store.set(i, updated)
}

// redactItemByEventID replaces the item's content with RedactedMessage in
// place, clears its reactions and edited flag. Idempotent: an already
// redacted item is left untouched and no diff is emitted. A known
// limitation, preserved deliberately: redacting an edit event does not
// retract an already-applied edit.
func (t *Timeline) redactItemByEventID(eventID string) {
	itemID, ok := t.eventIndex[eventID]
	if !ok {
		return
	}
	i := t.store.indexOfID(itemID)
	if i < 0 {
		return
	}

	item := t.store.at(i)
	ev := item.AsEvent()
	if ev == nil {
		return
	}
	if _, already := ev.Content.(*RedactedMessage); already {
		return
	}

	// Reaction events pointing at this item are gone with its groups.
	for _, key := range ev.Reactions.Keys() {
		for _, sender := range ev.Reactions.Group(key).Senders {
			delete(t.reactionIndex, sender.EventID)
		}
	}
	// The redacted message no longer references its reply target.
	if msg, ok := ev.Content.(*Message); ok && msg.InReplyTo != nil {
		t.dropReplyDependent(msg.InReplyTo.EventID, itemID)
	}

	updated := item.clone()
	uev := updated.AsEvent()
	uev.Content = &RedactedMessage{}
	uev.Reactions.clear()
	uev.Edited = false
	t.store.set(i, updated)
}

// dropQueuedRelation removes a not-yet-applied relation whose own event ID
// matches the redaction target. Returns whether one was found.
func (t *Timeline) dropQueuedRelation(eventID string) bool {
	for target, queue := range t.pendingRelations {
		for i, rel := range queue {
			if rel.raw.EventID != eventID {
				continue
			}
			queue = append(queue[:i], queue[i+1:]...)
			if len(queue) == 0 {
				delete(t.pendingRelations, target)
			} else {
				t.pendingRelations[target] = queue
			}
			return true
		}
	}
	return false
}
