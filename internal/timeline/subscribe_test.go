package timeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tOgg1/loom/internal/models"
)

func TestSnapshotPlusReplayMatchesLive(t *testing.T) {
	tl := New(testRoom)
	tl.HandleEvents(
		textMessage("$m1", alice, baseTS, "one"),
		textMessage("$m2", bob, baseTS+1000, "two"),
	)

	snapshot, sub := tl.Subscribe()
	defer sub.Close()

	tl.HandleEvents(
		textMessage("$m3", alice, baseTS+2000, "three"),
		editMessage("$e1", alice, "$m1", baseTS+3000, "ONE"),
		redaction("$x1", bob, "$m2", baseTS+4000),
	)

	view := snapshot
	for {
		d, ok := sub.TryNext()
		if !ok {
			break
		}
		view = d.Apply(view)
	}

	live := tl.Items()
	require.Len(t, view, len(live))
	for i := range live {
		assert.Equal(t, live[i].ID(), view[i].ID(), "index %d", i)
		assert.Equal(t, live[i], view[i], "index %d", i)
	}
}

func TestConcurrentSubscribersConverge(t *testing.T) {
	tl := New(testRoom)

	const (
		writers        = 4
		eventsPerBatch = 25
		subscribers    = 6
	)

	type view struct {
		snapshot []*Item
		sub      *Subscription
	}
	views := make([]view, subscribers)

	var wg sync.WaitGroup
	start := make(chan struct{})

	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			<-start
			for i := 0; i < eventsPerBatch; i++ {
				// Jittered timestamps force mid-sequence inserts.
				ts := baseTS + int64((i*writers+w)%eventsPerBatch)*1000
				tl.HandleEvents(textMessage(
					fmt.Sprintf("$w%d-e%d", w, i), alice, ts, "x"))
			}
		}(w)
	}
	for s := 0; s < subscribers; s++ {
		wg.Add(1)
		go func(s int) {
			defer wg.Done()
			<-start
			// Subscribe at an arbitrary point mid-stream.
			snapshot, sub := tl.Subscribe()
			views[s] = view{snapshot: snapshot, sub: sub}
		}(s)
	}

	close(start)
	wg.Wait()

	live := tl.Items()
	for s, v := range views {
		folded := v.snapshot
		for {
			d, ok := v.sub.TryNext()
			if !ok {
				break
			}
			folded = d.Apply(folded)
		}
		v.sub.Close()

		require.Len(t, folded, len(live), "subscriber %d", s)
		for i := range live {
			assert.Equal(t, live[i].ID(), folded[i].ID(), "subscriber %d index %d", s, i)
		}
	}
}

func TestSnapshotStableUnderLaterMutation(t *testing.T) {
	tl := New(testRoom)
	tl.HandleEvents(textMessage("$m1", alice, baseTS, "hello"))

	snapshot, sub := tl.Subscribe()
	defer sub.Close()
	evs := eventItems(snapshot)
	require.Len(t, evs, 1)

	tl.HandleEvents(editMessage("$e1", alice, "$m1", baseTS+1000, "changed"))

	assert.Equal(t, "hello", messageBody(t, evs[0]),
		"items already handed out never mutate")
	assert.False(t, evs[0].Edited)
}

func TestNextBlocksUntilDiff(t *testing.T) {
	tl := New(testRoom)
	_, sub := tl.Subscribe()
	defer sub.Close()

	got := make(chan Diff, 1)
	go func() {
		d, err := sub.Next(context.Background())
		if err == nil {
			got <- d
		}
	}()

	time.Sleep(10 * time.Millisecond)
	tl.HandleEvents(textMessage("$m1", alice, baseTS, "hello"))

	select {
	case d := <-got:
		assert.Equal(t, OpPushBack, d.Op)
	case <-time.After(time.Second):
		t.Fatal("Next never woke up")
	}
}

func TestNextContextCancel(t *testing.T) {
	tl := New(testRoom)
	_, sub := tl.Subscribe()
	defer sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := sub.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNextAfterClose(t *testing.T) {
	tl := New(testRoom)
	_, sub := tl.Subscribe()
	sub.Close()

	_, err := sub.Next(context.Background())
	assert.ErrorIs(t, err, ErrSubscriptionClosed)
}

func TestCloseWakesBlockedNext(t *testing.T) {
	tl := New(testRoom)
	_, sub := tl.Subscribe()

	errCh := make(chan error, 1)
	go func() {
		_, err := sub.Next(context.Background())
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	sub.Close()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrSubscriptionClosed)
	case <-time.After(time.Second):
		t.Fatal("Next not woken by Close")
	}
}

func TestCloseIsolation(t *testing.T) {
	tl := New(testRoom)
	_, closing := tl.Subscribe()
	_, surviving := tl.Subscribe()
	defer surviving.Close()

	closing.Close()
	tl.HandleEvents(textMessage("$m1", alice, baseTS, "hello"))

	assert.Equal(t, 0, closing.Pending())
	assert.Equal(t, 2, surviving.Pending(), "divider + message")

	// Closing twice is harmless.
	closing.Close()
}

func TestPending(t *testing.T) {
	tl := New(testRoom)
	_, sub := tl.Subscribe()
	defer sub.Close()

	assert.Equal(t, 0, sub.Pending())
	tl.HandleEvents(textMessage("$m1", alice, baseTS, "hello"))
	assert.Equal(t, 2, sub.Pending())

	_, ok := sub.TryNext()
	require.True(t, ok)
	assert.Equal(t, 1, sub.Pending())
}

func TestSendLocalEchoVisibleToSubscribers(t *testing.T) {
	tl := New(testRoom, WithLocalUser(localUser))
	_, sub := tl.Subscribe()
	defer sub.Close()

	tl.SendLocalEcho("txn-1", &models.MessageContent{MsgType: models.MsgTypeText, Body: "hi"})

	var sawEcho bool
	for {
		d, ok := sub.TryNext()
		if !ok {
			break
		}
		if ev := d.Item.AsEvent(); ev != nil && ev.IsLocalEcho() {
			sawEcho = true
		}
	}
	assert.True(t, sawEcho)
}
