package rewrite

import (
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/kurobon/retcon/internal/state"
)

// BuildPlan derives the rewrite plan from pending edits and the display order.
//
// Slots are walked oldest to newest. The range starts at the first slot that is
// deleted, holds a commit other than its original, or whose effective metadata
// differs from the original. Everything older than that is left untouched.
func BuildPlan(store *state.Store, order *state.Order) (*Plan, error) {
	snap := store.Snapshot()
	plan := &Plan{
		Branch: snap.Branch(),
		OldTip: snap.Tip(),
		Tip:    snap.Tip(),
	}

	start := -1
	for s := snap.Len() - 1; s >= 0; s-- {
		if slotChanged(store, order, s) {
			start = s
			break
		}
	}
	if start < 0 {
		plan.Base = plan.OldTip
		return plan, nil
	}

	if parents := snap.At(start).Parents; len(parents) > 0 {
		plan.Base = parents[0]
	}

	r := &parentResolver{snap: snap, store: store, order: order, memo: make(map[int][]plumbing.Hash)}

	inRange := make(map[plumbing.Hash]bool, start+1)
	for s := start; s >= 0; s-- {
		inRange[order.At(s)] = true
	}

	emitted := make(map[plumbing.Hash]bool, start+1)
	for s := start; s >= 0; s-- {
		id := order.At(s)
		orig, _ := snap.Lookup(id)

		if store.IsDeleted(id) {
			plan.Steps = append(plan.Steps, CommitSpec{Original: id, Slot: s, Action: Drop, OriginalParents: orig.Parents})
			continue
		}

		parents := r.resolve(s)
		for _, p := range parents {
			if inRange[p] && !emitted[p] {
				return nil, ErrCyclicReorder.New(orig.ShortID())
			}
		}

		eff, err := store.Effective(id)
		if err != nil {
			return nil, err
		}
		plan.Steps = append(plan.Steps, CommitSpec{
			Original:        id,
			Slot:            s,
			Action:          Pick,
			Parents:         parents,
			OriginalParents: orig.Parents,
			Author:          eff.Author,
			Committer:       eff.Committer,
			Message:         eff.Message,
			Tree:            orig.Tree,
			MetadataChanged: !eff.Matches(orig),
		})
		emitted[id] = true
	}

	if tip := order.At(0); !store.IsDeleted(tip) {
		plan.Tip = tip
	} else if parents := r.resolve(0); len(parents) > 0 {
		plan.Tip = parents[0]
	} else {
		return nil, ErrEmptyHistory.New(snap.Branch())
	}

	return plan, nil
}

func slotChanged(store *state.Store, order *state.Order, s int) bool {
	id := order.At(s)
	if store.IsDeleted(id) || order.Reordered(s) {
		return true
	}
	eff, err := store.Effective(id)
	if err != nil {
		return true
	}
	orig, _ := store.Snapshot().Lookup(id)
	return !eff.Matches(orig)
}

// parentResolver computes the parents a slot's occupant receives. The graph
// shape belongs to the slots: slot s takes the parents of the commit that
// originally sat there, each mapped to whatever now occupies that parent's slot.
// Deleted occupants are skipped by splicing in their own resolved parents.
type parentResolver struct {
	snap  *state.Snapshot
	store *state.Store
	order *state.Order
	memo  map[int][]plumbing.Hash
}

func (r *parentResolver) resolve(s int) []plumbing.Hash {
	if cached, ok := r.memo[s]; ok {
		return cached
	}

	var out []plumbing.Hash
	seen := make(map[plumbing.Hash]bool)
	add := func(h plumbing.Hash) {
		if !seen[h] {
			seen[h] = true
			out = append(out, h)
		}
	}

	for _, p := range r.snap.At(s).Parents {
		ps, ok := r.snap.Position(p)
		if !ok {
			add(p)
			continue
		}
		occupant := r.order.At(ps)
		if !r.store.IsDeleted(occupant) {
			add(occupant)
			continue
		}
		for _, q := range r.resolve(ps) {
			add(q)
		}
	}

	r.memo[s] = out
	return out
}
