package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tOgg1/loom/internal/roomstate"
	"github.com/tOgg1/loom/internal/syncer"
	"github.com/tOgg1/loom/internal/timeline"
)

var (
	tailRoomID   string
	tailSyncFile string
)

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Replay a sync stream through the timeline engine",
	Long: "Replays a JSONL sync-stream file through the reconciliation engine.\n" +
		"With --room, prints every timeline diff for that room as it is emitted;\n" +
		"otherwise prints the final reconciled timeline of each room.",
	RunE: runTail,
}

func init() {
	rootCmd.AddCommand(tailCmd)
	tailCmd.Flags().StringVar(&tailRoomID, "room", "", "room to stream diffs for")
	tailCmd.Flags().StringVar(&tailSyncFile, "file", "", "sync stream file (overrides config)")
}

func runTail(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	path := tailSyncFile
	if path == "" {
		path = cfg.Session.SyncFile
	}
	if path == "" {
		return fmt.Errorf("no sync stream file: pass --file or set session.sync_file")
	}

	source, err := syncer.OpenFileSource(path)
	if err != nil {
		return err
	}
	defer source.Close()

	state, err := roomstate.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer state.Close()

	dispatcher := syncer.NewDispatcher(
		syncer.WithLocalUser(cfg.Session.UserID),
		syncer.WithStateStore(state),
	)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if tailRoomID != "" {
		return tailRoom(ctx, dispatcher, source, tailRoomID)
	}

	if err := dispatcher.Run(ctx, source); err != nil {
		return err
	}
	rooms := dispatcher.RoomIDs()
	sort.Strings(rooms)
	for _, roomID := range rooms {
		fmt.Printf("== %s ==\n", roomID)
		for _, item := range dispatcher.Timeline(roomID).Items() {
			fmt.Println(renderItem(item))
		}
	}
	return nil
}

// tailRoom subscribes before the replay so every diff for the room is
// captured, then drains the buffered stream in order.
func tailRoom(ctx context.Context, dispatcher *syncer.Dispatcher, source syncer.Source, roomID string) error {
	_, sub := dispatcher.Timeline(roomID).Subscribe()
	defer sub.Close()

	runErr := dispatcher.Run(ctx, source)
	for {
		diff, ok := sub.TryNext()
		if !ok {
			return runErr
		}
		printDiff(diff)
	}
}

func printDiff(diff timeline.Diff) {
	switch diff.Op {
	case timeline.OpClear:
		fmt.Println("clear")
	case timeline.OpRemove:
		fmt.Printf("remove @%d\n", diff.Index)
	default:
		fmt.Printf("%s @%d %s\n", diff.Op, diff.Index, renderItem(diff.Item))
	}
}

func renderItem(item *timeline.Item) string {
	if v := item.AsVirtual(); v != nil {
		if v.Kind == timeline.VirtualReadMarker {
			return "--- read marker ---"
		}
		return fmt.Sprintf("--- %s ---", v.Date.Format("2006-01-02"))
	}

	ev := item.AsEvent()
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s: ", ev.Timestamp.Format("15:04:05"), ev.Sender)

	switch content := ev.Content.(type) {
	case *timeline.Message:
		b.WriteString(content.Body)
		if content.InReplyTo != nil {
			fmt.Fprintf(&b, " (reply to %s: %s)", content.InReplyTo.EventID, content.InReplyTo.Event.State())
		}
	case *timeline.RedactedMessage:
		b.WriteString("<redacted>")
	case *timeline.StateChange:
		fmt.Fprintf(&b, "<state %s/%s>", content.EventType, content.StateKey)
	case *timeline.Unsupported:
		fmt.Fprintf(&b, "<unsupported %s>", content.EventType)
	}

	if ev.Edited {
		b.WriteString(" (edited)")
	}
	for _, key := range ev.Reactions.Keys() {
		fmt.Fprintf(&b, " [%s x%d]", key, len(ev.Reactions.Group(key).Senders))
	}
	if ev.Highlighted {
		b.WriteString(" !")
	}
	return b.String()
}
