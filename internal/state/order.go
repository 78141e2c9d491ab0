package state

import (
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
)

// Direction of a single-step move in the newest-first display.
type Direction int

const (
	// Up moves a commit one position toward the tip (newer).
	Up Direction = iota
	// Down moves a commit one position toward the root (older).
	Down
)

func (d Direction) String() string {
	if d == Up {
		return "up"
	}
	return "down"
}

// ParseDirection accepts "up"/"down" and the aliases "newer"/"older".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "up", "newer", "u", "k":
		return Up, nil
	case "down", "older", "d", "j":
		return Down, nil
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

// Order is the display permutation over snapshot slots, newest first. Slot i
// originally held snapshot commit i. Deleted commits keep their slot.
type Order struct {
	snap  *Snapshot
	slots []plumbing.Hash
}

// NewOrder returns the identity permutation.
func NewOrder(snap *Snapshot) *Order {
	return &Order{snap: snap, slots: snap.IDs()}
}

func (o *Order) Len() int { return len(o.slots) }

// At returns the occupant of a slot.
func (o *Order) At(pos int) plumbing.Hash {
	return o.slots[pos]
}

// IDs returns the occupants, newest first.
func (o *Order) IDs() []plumbing.Hash {
	return append([]plumbing.Hash(nil), o.slots...)
}

// PositionOf returns the slot currently holding id.
func (o *Order) PositionOf(id plumbing.Hash) (int, bool) {
	for i, h := range o.slots {
		if h == id {
			return i, true
		}
	}
	return 0, false
}

// Changed reports whether any commit sits outside its original slot.
func (o *Order) Changed() bool {
	for i, h := range o.slots {
		if h != o.snap.At(i).ID {
			return true
		}
	}
	return false
}

// Reordered reports whether slot pos holds a commit other than its original.
func (o *Order) Reordered(pos int) bool {
	return o.slots[pos] != o.snap.At(pos).ID
}

func (o *Order) checkPosition(pos int) error {
	if pos < 0 || pos >= len(o.slots) {
		return ErrPositionOutOfRange.New(pos, len(o.slots))
	}
	return nil
}

// Neighbor validates a one-step move of the commit at pos and returns the slot it
// would swap with. Moves that would displace a merge commit are rejected, and so
// are swaps of slots that are not a parent and its only loaded child.
func (o *Order) Neighbor(pos int, dir Direction) (int, error) {
	if err := o.checkPosition(pos); err != nil {
		return 0, err
	}
	target := pos + 1
	if dir == Up {
		target = pos - 1
	}
	if err := o.checkPosition(target); err != nil {
		return 0, err
	}

	for _, p := range []int{pos, target} {
		c, _ := o.snap.Lookup(o.slots[p])
		if c.IsMerge() {
			return 0, ErrMergeCommitUnreorderable.New(c.ShortID())
		}
	}

	newer, older := min(pos, target), max(pos, target)
	child, parent := o.snap.At(newer), o.snap.At(older)
	if len(child.Parents) != 1 || child.Parents[0] != parent.ID || o.snap.Children(parent.ID) != 1 {
		return 0, ErrNotLinearlyAdjacent.New(ShortHash(o.slots[pos]), ShortHash(o.slots[target]))
	}
	return target, nil
}

// Swap exchanges two slots. It is its own inverse.
func (o *Order) Swap(a, b int) error {
	if err := o.checkPosition(a); err != nil {
		return err
	}
	if err := o.checkPosition(b); err != nil {
		return err
	}
	o.slots[a], o.slots[b] = o.slots[b], o.slots[a]
	return nil
}

// Reset restores the original order.
func (o *Order) Reset() {
	o.slots = o.snap.IDs()
}
