// Package fork maintains the tree of competing branches near the head
// of the chain. Everything below the last irreversible block is pruned
// since it can never be un-applied.
package fork

import (
	"github.com/pkg/errors"

	"github.com/crescentlabs/crescent/foundation/chain/block"
)

// ErrUnlinkable is returned when a pushed block's parent is unknown.
var ErrUnlinkable = errors.New("block does not link to a known branch")

// ErrDuplicate is returned when a pushed block is already tracked.
var ErrDuplicate = errors.New("block already tracked")

// =============================================================================

// Item is a pending block linked to its predecessor.
type Item struct {
	Block block.Block
	ID    string
	prev  *Item
}

// Num returns the block number of the item.
func (i *Item) Num() uint64 {
	return i.Block.Number
}

// Prev returns the parent item, nil at the tracker's root.
func (i *Item) Prev() *Item {
	return i.prev
}

// =============================================================================

// Tracker holds all known competing block chains in memory.
type Tracker struct {
	index   map[string]*Item
	head    *Item
	maxSize uint64
}

// NewTracker constructs an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		index:   make(map[string]*Item),
		maxSize: 1024,
	}
}

// Head returns the item of the longest known branch, nil when empty.
func (t *Tracker) Head() *Item {
	return t.head
}

// Reset drops all tracked branches and seeds the tracker with the
// current head block.
func (t *Tracker) Reset(b block.Block) *Item {
	t.index = make(map[string]*Item)
	t.head = nil
	item, _ := t.PushBlock(b)
	return item
}

// SetMaxSize bounds how many block heights the tracker retains below
// its head and prunes immediately.
func (t *Tracker) SetMaxSize(n uint64) {
	t.maxSize = n
	t.prune()
}

// =============================================================================

// PushBlock links a new block into the tree. The returned boolean
// reports whether the head moved to the new block's branch: that
// happens only when the branch becomes strictly longer, so equal-height
// ties keep the existing head.
func (t *Tracker) PushBlock(b block.Block) (*Item, error) {
	id := b.ID()
	if _, exists := t.index[id]; exists {
		return nil, errors.Wrapf(ErrDuplicate, "block %d [%s]", b.Number, id[:10])
	}

	var prev *Item
	if len(t.index) > 0 {
		var linked bool
		prev, linked = t.index[b.Previous]
		if !linked {
			// The parent may be below the pruned horizon only for the
			// seeding block; everything else must link.
			return nil, errors.Wrapf(ErrUnlinkable, "block %d [%s] parent [%s]", b.Number, id[:10], b.Previous[:10])
		}
	}

	item := Item{Block: b, ID: id, prev: prev}
	t.index[id] = &item

	if t.head == nil || item.Num() > t.head.Num() {
		t.head = &item
	}

	t.prune()

	return &item, nil
}

// PopBlock moves the head back to its predecessor. The popped block
// stays in the tree so the branch can win again later.
func (t *Tracker) PopBlock() error {
	if t.head == nil {
		return errors.New("pop on empty fork tracker")
	}
	if t.head.prev == nil {
		return errors.New("cannot pop the tracker root")
	}

	t.head = t.head.prev
	return nil
}

// Remove purges a block and every descendant that builds on it. Used
// after a branch fails validation mid-switch.
func (t *Tracker) Remove(id string) {
	doomed := map[string]bool{id: true}

	// Descendants always carry higher ids in insertion order than their
	// parents, but the index is unordered; iterate to a fixed point.
	for changed := true; changed; {
		changed = false
		for itemID, item := range t.index {
			if doomed[itemID] || item.prev == nil {
				continue
			}
			if doomed[item.prev.ID] {
				doomed[itemID] = true
				changed = true
			}
		}
	}

	for itemID := range doomed {
		delete(t.index, itemID)
	}

	if t.head != nil && doomed[t.head.ID] {
		t.head = nil
		for _, item := range t.index {
			if t.head == nil || item.Num() > t.head.Num() ||
				(item.Num() == t.head.Num() && item.ID < t.head.ID) {
				t.head = item
			}
		}
	}
}

// BlockByID returns the tracked item with the given id, or nil.
func (t *Tracker) BlockByID(id string) *Item {
	return t.index[id]
}

// MainBlockByNum walks the head branch to the given height, nil when
// the height is outside the tracked window.
func (t *Tracker) MainBlockByNum(num uint64) *Item {
	for item := t.head; item != nil; item = item.prev {
		if item.Num() == num {
			return item
		}
		if item.Num() < num {
			return nil
		}
	}
	return nil
}

// =============================================================================

// FetchBranchFrom returns the two divergent tails from the given tips
// down to (excluding) their common ancestor, each ordered tip first.
func (t *Tracker) FetchBranchFrom(first string, second string) ([]*Item, []*Item, error) {
	a := t.index[first]
	b := t.index[second]
	if a == nil || b == nil {
		return nil, nil, errors.Wrap(ErrUnlinkable, "branch tip not tracked")
	}

	var branchA, branchB []*Item

	for a.Num() > b.Num() {
		branchA = append(branchA, a)
		if a.prev == nil {
			return nil, nil, errors.Wrap(ErrUnlinkable, "branches do not meet")
		}
		a = a.prev
	}
	for b.Num() > a.Num() {
		branchB = append(branchB, b)
		if b.prev == nil {
			return nil, nil, errors.Wrap(ErrUnlinkable, "branches do not meet")
		}
		b = b.prev
	}

	for a.ID != b.ID {
		branchA = append(branchA, a)
		branchB = append(branchB, b)
		if a.prev == nil || b.prev == nil {
			return nil, nil, errors.Wrap(ErrUnlinkable, "branches do not meet")
		}
		a = a.prev
		b = b.prev
	}

	return branchA, branchB, nil
}

// =============================================================================

// prune drops every item too far below the head to ever be un-applied.
func (t *Tracker) prune() {
	if t.head == nil || t.head.Num() < t.maxSize {
		return
	}

	horizon := t.head.Num() - t.maxSize + 1
	for id, item := range t.index {
		if item.Num() < horizon {
			delete(t.index, id)
		}
	}

	// Cut parent links that now point below the horizon.
	for _, item := range t.index {
		if item.prev != nil && item.prev.Num() < horizon {
			item.prev = nil
		}
	}
}
