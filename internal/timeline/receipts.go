package timeline

import "github.com/tOgg1/loom/internal/models"

// applyReceipts folds an m.receipt ephemeral payload into the items it
// references. Each user carries at most one read receipt in the timeline;
// moving it updates both the old and the new item.
func (t *Timeline) applyReceipts(content models.ReceiptContent) {
	for eventID, byType := range content {
		for user, receipt := range byType[models.ReceiptTypeRead] {
			t.applyReadReceipt(user, eventID, receipt)
		}
	}
}

func (t *Timeline) applyReadReceipt(user, eventID string, receipt models.Receipt) {
	targetID, ok := t.eventIndex[eventID]
	if !ok {
		t.log.Debug().
			Str("user", user).
			Str("event_id", eventID).
			Msg("read receipt for unknown event ignored")
		return
	}

	prevID, hadPrev := t.receiptIndex[user]
	if hadPrev && prevID == targetID {
		return
	}

	if hadPrev {
		if i := t.store.indexOfID(prevID); i >= 0 {
			updated := t.store.at(i).clone()
			delete(updated.AsEvent().Receipts, user)
			t.store.set(i, updated)
		}
	}

	i := t.store.indexOfID(targetID)
	if i < 0 {
		delete(t.receiptIndex, user)
		return
	}
	updated := t.store.at(i).clone()
	ev := updated.AsEvent()
	if ev.Receipts == nil {
		ev.Receipts = make(map[string]models.Receipt)
	}
	ev.Receipts[user] = receipt
	t.store.set(i, updated)
	t.receiptIndex[user] = targetID
}
