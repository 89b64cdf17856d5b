package syncer

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tOgg1/loom/internal/logging"
	"github.com/tOgg1/loom/internal/models"
	"github.com/tOgg1/loom/internal/push"
	"github.com/tOgg1/loom/internal/roomstate"
	"github.com/tOgg1/loom/internal/timeline"
)

// Dispatcher routes sync batches to per-room timelines. Each room's
// timeline is an independent instance; there is no cross-room locking.
type Dispatcher struct {
	userID  string
	state   *roomstate.Store
	fetcher timeline.Fetcher
	log     zerolog.Logger

	mu        sync.Mutex
	timelines map[string]*timeline.Timeline
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLocalUser sets the local user ID propagated to every timeline.
func WithLocalUser(userID string) DispatcherOption {
	return func(d *Dispatcher) {
		d.userID = userID
	}
}

// WithStateStore sets the room-state store fed from sync state events and
// consulted by the highlight evaluator.
func WithStateStore(state *roomstate.Store) DispatcherOption {
	return func(d *Dispatcher) {
		d.state = state
	}
}

// WithFetcher sets the out-of-band event fetcher propagated to timelines.
func WithFetcher(f timeline.Fetcher) DispatcherOption {
	return func(d *Dispatcher) {
		d.fetcher = f
	}
}

// NewDispatcher creates a dispatcher with no rooms yet.
func NewDispatcher(opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		log:       logging.Component("syncer"),
		timelines: make(map[string]*timeline.Timeline),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Timeline returns the room's timeline, creating it on first use.
func (d *Dispatcher) Timeline(roomID string) *timeline.Timeline {
	d.mu.Lock()
	defer d.mu.Unlock()

	tl, ok := d.timelines[roomID]
	if !ok {
		opts := []timeline.Option{
			timeline.WithLocalUser(d.userID),
		}
		if d.fetcher != nil {
			opts = append(opts, timeline.WithFetcher(d.fetcher))
		}
		if d.userID != "" {
			opts = append(opts, timeline.WithHighlighter(push.New(roomID, d.userID, d.stateLookup())))
		}
		tl = timeline.New(roomID, opts...)
		d.timelines[roomID] = tl
	}
	return tl
}

func (d *Dispatcher) stateLookup() push.StateLookup {
	if d.state == nil {
		return nil
	}
	return d.state
}

// RoomIDs returns the rooms seen so far.
func (d *Dispatcher) RoomIDs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	ids := make([]string, 0, len(d.timelines))
	for id := range d.timelines {
		ids = append(ids, id)
	}
	return ids
}

// HandleResponse applies one sync batch: state events into the state
// store, everything else into the room's timeline. State is applied first
// so highlight evaluation sees it.
func (d *Dispatcher) HandleResponse(ctx context.Context, resp *models.SyncResponse) error {
	for _, update := range resp.Rooms {
		if update.RoomID == "" {
			d.log.Warn().Msg("room update without room_id skipped")
			continue
		}

		if d.state != nil {
			for _, event := range update.State {
				if err := d.state.ApplyStateEvent(ctx, update.RoomID, event); err != nil {
					return err
				}
			}
			for _, event := range update.AccountData {
				if err := d.state.SetAccountData(ctx, update.RoomID, event.Type, event.Content); err != nil {
					return err
				}
			}
		}

		d.Timeline(update.RoomID).HandleRoomUpdate(update)
	}
	return nil
}

// Run consumes the source until it ends or the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context, src Source) error {
	for {
		resp, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := d.HandleResponse(ctx, resp); err != nil {
			return err
		}
	}
}
