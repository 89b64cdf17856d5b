package timeline

import "context"

// fetchState tracks one in-flight detail fetch. Every caller for the same
// event ID waits on the same done channel and observes the same outcome.
type fetchState struct {
	done chan struct{}
}

// resolveReplyLocked resolves a new item's reply target from the local
// store and registers the item as a dependent of that target. The item is
// not yet shared, so it is mutated directly.
func (t *Timeline) resolveReplyLocked(item *Item) {
	ev := item.AsEvent()
	if ev == nil {
		return
	}
	msg, ok := ev.Content.(*Message)
	if !ok || msg.InReplyTo == nil {
		return
	}

	target := msg.InReplyTo.EventID
	t.replyIndex[target] = append(t.replyIndex[target], item.id)

	if targetItem, ok := t.itemByEventIDLocked(target); ok {
		if targetEv := targetItem.AsEvent(); targetEv != nil {
			msg.InReplyTo.Event = ReadyDetails(embedEventItem(targetEv))
		}
	}
}

// resolveReplyDependents flips every item replying to the newly placed
// event to Ready, constructed from the placed item's verified content.
func (t *Timeline) resolveReplyDependents(eventID string) {
	targetItem, ok := t.itemByEventIDLocked(eventID)
	if !ok {
		return
	}
	targetEv := targetItem.AsEvent()
	if targetEv == nil {
		return
	}
	t.setReplyDetails(eventID, ReadyDetails(embedEventItem(targetEv)))
}

// setReplyDetails updates the reply resolution state of every dependent of
// the target event, emitting one Set diff per changed item.
func (t *Timeline) setReplyDetails(eventID string, details Details) {
	deps := t.replyIndex[eventID]
	kept := deps[:0]
	for _, itemID := range deps {
		i := t.store.indexOfID(itemID)
		if i < 0 {
			continue
		}
		kept = append(kept, itemID)

		item := t.store.at(i)
		ev := item.AsEvent()
		if ev == nil {
			continue
		}
		msg, ok := ev.Content.(*Message)
		if !ok || msg.InReplyTo == nil {
			continue
		}

		updated := item.clone()
		newMsg := msg.clone()
		newMsg.InReplyTo.Event = details
		updated.AsEvent().Content = newMsg
		t.store.set(i, updated)
	}
	if len(kept) == 0 {
		delete(t.replyIndex, eventID)
	} else {
		t.replyIndex[eventID] = kept
	}
}

// dropReplyDependent removes one item from a reply target's dependent set.
func (t *Timeline) dropReplyDependent(eventID string, itemID int64) {
	deps := t.replyIndex[eventID]
	for i, id := range deps {
		if id != itemID {
			continue
		}
		deps = append(deps[:i], deps[i+1:]...)
		if len(deps) == 0 {
			delete(t.replyIndex, eventID)
		} else {
			t.replyIndex[eventID] = deps
		}
		return
	}
}

// FetchDetailsForEvent resolves the given reply-target event out-of-band.
// It fails with ErrRemoteEventNotInTimeline unless some item in the
// timeline references the event as a reply target. Dependent items
// transition to Pending immediately and to Ready or Error when the fetch
// completes; a later call after Error restarts the cycle. Concurrent calls
// for the same event ID coalesce into a single fetch.
func (t *Timeline) FetchDetailsForEvent(ctx context.Context, eventID string) error {
	t.lock()

	if len(t.replyIndex[eventID]) == 0 {
		t.unlock()
		return ErrRemoteEventNotInTimeline
	}

	// Already known locally: resolve synchronously, no fetch.
	if targetItem, ok := t.itemByEventIDLocked(eventID); ok {
		if targetEv := targetItem.AsEvent(); targetEv != nil {
			t.setReplyDetails(eventID, ReadyDetails(embedEventItem(targetEv)))
			t.unlock()
			return nil
		}
	}

	if t.fetcher == nil {
		t.unlock()
		return ErrNoFetcher
	}

	// Attach to an in-flight fetch for the same event ID.
	if fs, ok := t.inflight[eventID]; ok {
		t.unlock()
		select {
		case <-fs.done:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	}

	fs := &fetchState{done: make(chan struct{})}
	t.inflight[eventID] = fs
	t.setReplyDetails(eventID, PendingDetails())
	t.unlock()

	// The fetch itself runs outside the write lock; a slow remote never
	// blocks ingestion.
	raw, err := t.fetcher.FetchEvent(ctx, t.roomID, eventID)

	t.lock()
	if err != nil {
		t.log.Debug().Err(err).Str("event_id", eventID).Msg("detail fetch failed")
		t.setReplyDetails(eventID, ErrorDetails(err))
	} else {
		t.setReplyDetails(eventID, ReadyDetails(embedRawEvent(raw)))
	}
	delete(t.inflight, eventID)
	t.unlock()
	close(fs.done)

	return nil
}
