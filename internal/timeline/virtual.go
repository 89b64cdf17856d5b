package timeline

import "time"

// dayOf truncates a timestamp to its calendar day (midnight UTC).
func dayOf(ts time.Time) time.Time {
	y, m, d := ts.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// fixDateDividers walks the sequence once and restores the divider
// invariant: exactly one divider immediately before the first event item
// of each calendar day. Only dividers that actually changed produce diffs;
// event items are never reordered.
func (t *Timeline) fixDateDividers() {
	var lastDay time.Time
	dividerPending := false

	i := 0
	for i < t.store.len() {
		item := t.store.at(i)

		if v := item.AsVirtual(); v != nil {
			if v.Kind != VirtualDateDivider {
				i++
				continue
			}
			day, ok := t.nextEventDay(i)
			if !ok || day.Equal(lastDay) || !v.Date.Equal(day) || dividerPending {
				t.store.remove(i)
				continue
			}
			dividerPending = true
			i++
			continue
		}

		ev := item.AsEvent()
		day := dayOf(ev.Timestamp)
		if !day.Equal(lastDay) {
			if !dividerPending {
				t.store.insert(i, &Item{
					id:      t.store.newItemID(),
					virtual: &VirtualItem{Kind: VirtualDateDivider, Date: day},
				})
				i++
			}
			lastDay = day
		}
		dividerPending = false
		i++
	}
}

// nextEventDay returns the calendar day of the first event item after
// index i, or false when none follows.
func (t *Timeline) nextEventDay(i int) (time.Time, bool) {
	for j := i + 1; j < t.store.len(); j++ {
		if ev := t.store.at(j).AsEvent(); ev != nil {
			return dayOf(ev.Timestamp), true
		}
	}
	return time.Time{}, false
}

// setFullyRead records the fully-read event from account data and
// repositions the read marker.
func (t *Timeline) setFullyRead(eventID string) {
	if eventID == t.fullyRead {
		return
	}
	t.fullyRead = eventID
	t.updateReadMarker()
}

// readMarkerIndex returns the current marker position, or -1.
func (t *Timeline) readMarkerIndex() int {
	for i := 0; i < t.store.len(); i++ {
		if v := t.store.at(i).AsVirtual(); v != nil && v.Kind == VirtualReadMarker {
			return i
		}
	}
	return -1
}

// updateReadMarker places the single read marker immediately after the
// fully-read item, or removes it. The marker only carries information
// strictly before the end of the known timeline: when the fully-read item
// is the newest event (or unknown), no marker is placed. An existing
// marker is moved, keeping its local identity, not recreated.
func (t *Timeline) updateReadMarker() {
	markerIdx := t.readMarkerIndex()

	refIdx := -1
	if t.fullyRead != "" {
		if itemID, ok := t.eventIndex[t.fullyRead]; ok {
			refIdx = t.store.indexOfID(itemID)
		}
	}

	hasNewer := false
	if refIdx >= 0 {
		for j := refIdx + 1; j < t.store.len(); j++ {
			if t.store.at(j).AsEvent() != nil {
				hasNewer = true
				break
			}
		}
	}

	if refIdx < 0 || !hasNewer {
		if markerIdx >= 0 {
			t.store.remove(markerIdx)
		}
		return
	}

	desired := refIdx + 1
	if markerIdx == desired {
		return
	}

	marker := &Item{
		id:      t.store.newItemID(),
		virtual: &VirtualItem{Kind: VirtualReadMarker},
	}
	if markerIdx >= 0 {
		marker = t.store.at(markerIdx)
		t.store.remove(markerIdx)
		if markerIdx < desired {
			desired--
		}
	}
	t.store.insert(desired, marker)
}
