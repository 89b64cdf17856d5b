package timeline

import "fmt"

// DiffOp identifies one kind of positional change to the item sequence.
type DiffOp int

const (
	// OpPushBack appends an item at the end of the sequence.
	OpPushBack DiffOp = iota

	// OpInsert inserts an item at Index, shifting later items right.
	OpInsert

	// OpSet replaces the item at Index in place.
	OpSet

	// OpRemove removes the item at Index, shifting later items left.
	OpRemove

	// OpClear empties the sequence.
	OpClear
)

// String returns the operation name.
func (op DiffOp) String() string {
	switch op {
	case OpPushBack:
		return "push_back"
	case OpInsert:
		return "insert"
	case OpSet:
		return "set"
	case OpRemove:
		return "remove"
	case OpClear:
		return "clear"
	default:
		return fmt.Sprintf("unknown(%d)", int(op))
	}
}

// Diff is one positional change to the timeline item sequence. Applying a
// subscriber's diffs in order to its snapshot reproduces the live sequence.
type Diff struct {
	// Op is the kind of change.
	Op DiffOp

	// Index is the position the change applies to. Unused for OpPushBack
	// and OpClear.
	Index int

	// Item is the new item for OpPushBack, OpInsert and OpSet; nil for
	// OpRemove and OpClear.
	Item *Item
}

// Apply folds the diff into a sequence and returns the updated sequence.
func (d Diff) Apply(items []*Item) []*Item {
	switch d.Op {
	case OpPushBack:
		return append(items, d.Item)
	case OpInsert:
		items = append(items, nil)
		copy(items[d.Index+1:], items[d.Index:])
		items[d.Index] = d.Item
		return items
	case OpSet:
		items[d.Index] = d.Item
		return items
	case OpRemove:
		return append(items[:d.Index], items[d.Index+1:]...)
	case OpClear:
		return nil
	default:
		return items
	}
}
