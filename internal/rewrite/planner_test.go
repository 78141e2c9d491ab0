package rewrite

import (
	"context"
	"testing"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurobon/retcon/internal/state"
)

func setMessage(t *testing.T, store *state.Store, name, msg string) {
	t.Helper()
	v, err := state.ParseValue(state.FieldMessage, msg)
	require.NoError(t, err)
	_, err = store.SetField(fakeHash(name), state.FieldMessage, &v)
	require.NoError(t, err)
}

func execute(t *testing.T, store *state.Store, order *state.Order) (*Plan, plumbing.Hash, IdentityMap, *memWriter) {
	t.Helper()
	plan, err := BuildPlan(store, order)
	require.NoError(t, err)
	w := newMemWriter()
	tip, ids, err := NewRewriter(w, nil).Execute(context.Background(), plan)
	require.NoError(t, err)
	return plan, tip, ids, w
}

func TestPlanNoChanges(t *testing.T) {
	snap := linear(t, "c1", "c2", "c3")
	store := state.NewStore(snap, true)
	order := state.NewOrder(snap)

	plan, tip, ids, w := execute(t, store, order)
	assert.True(t, plan.Empty())
	assert.Equal(t, snap.Tip(), tip)
	assert.Equal(t, 0, ids.Rewritten())
	assert.Zero(t, w.writes)
}

func TestPlanEditMessage(t *testing.T) {
	snap := linear(t, "c1", "c2", "c3")
	store := state.NewStore(snap, true)
	order := state.NewOrder(snap)
	setMessage(t, store, "c2", "better message")

	plan, tip, ids, w := execute(t, store, order)

	require.Len(t, plan.Steps, 2)
	assert.Equal(t, fakeHash("c2"), plan.Steps[0].Original)
	assert.Equal(t, fakeHash("c3"), plan.Steps[1].Original)
	assert.Equal(t, fakeHash("c1"), plan.Base)

	c1, c2, c3 := fakeHash("c1"), fakeHash("c2"), fakeHash("c3")
	assert.Equal(t, c1, ids.Resolve(c1), "c1 keeps its identity")
	assert.NotEqual(t, c2, ids.Resolve(c2))
	assert.NotEqual(t, c3, ids.Resolve(c3))
	assert.Equal(t, ids.Resolve(c3), tip)

	newC3 := w.commits[tip]
	assert.Equal(t, []plumbing.Hash{ids.Resolve(c2)}, newC3.parents)
	assert.Equal(t, "c3\n", newC3.message)
	assert.Equal(t, "better message\n", w.commits[ids.Resolve(c2)].message)
	assert.Equal(t, []plumbing.Hash{c1}, w.commits[ids.Resolve(c2)].parents)
}

func TestPlanDeleteMiddle(t *testing.T) {
	snap := linear(t, "c1", "c2", "c3")
	store := state.NewStore(snap, true)
	order := state.NewOrder(snap)
	c1, c2, c3 := fakeHash("c1"), fakeHash("c2"), fakeHash("c3")
	_, err := store.ToggleDeleted(c2)
	require.NoError(t, err)

	plan, tip, ids, w := execute(t, store, order)
	assert.Equal(t, 1, plan.Drops())
	assert.Equal(t, 1, plan.Picks())

	orig3, _ := snap.Lookup(c3)
	newC3 := w.commits[tip]
	assert.Equal(t, []plumbing.Hash{c1}, newC3.parents)
	assert.Equal(t, orig3.Message, newC3.message)
	assert.True(t, orig3.Author.Equal(newC3.author))
	assert.Equal(t, orig3.Tree, newC3.tree)

	// The deleted commit's child is re-linked to the deleted commit's parent.
	orig2, _ := snap.Lookup(c2)
	assert.Equal(t, ids.Resolve(orig2.Parents[0]), newC3.parents[0])
}

func TestPlanSwap(t *testing.T) {
	snap := linear(t, "c1", "c2", "c3")
	store := state.NewStore(snap, true)
	order := state.NewOrder(snap)
	c1, c2, c3 := fakeHash("c1"), fakeHash("c2"), fakeHash("c3")

	target, err := order.Neighbor(0, state.Down)
	require.NoError(t, err)
	require.NoError(t, order.Swap(0, target))

	_, tip, ids, w := execute(t, store, order)

	assert.Equal(t, ids.Resolve(c2), tip, "c2 becomes the tip")
	newC2 := w.commits[tip]
	assert.Equal(t, []plumbing.Hash{ids.Resolve(c3)}, newC2.parents)
	newC3 := w.commits[ids.Resolve(c3)]
	assert.Equal(t, []plumbing.Hash{c1}, newC3.parents)
	assert.Equal(t, "c3\n", newC3.message)
	assert.Equal(t, "c2\n", newC2.message)
}

func TestPlanDeleteRoot(t *testing.T) {
	snap := linear(t, "c1", "c2", "c3")
	store := state.NewStore(snap, true)
	order := state.NewOrder(snap)
	_, err := store.ToggleDeleted(fakeHash("c1"))
	require.NoError(t, err)

	plan, _, ids, w := execute(t, store, order)
	assert.True(t, plan.Base.IsZero())
	assert.Empty(t, w.commits[ids.Resolve(fakeHash("c2"))].parents, "c2 becomes a root")
}

func TestPlanDeleteTip(t *testing.T) {
	snap := linear(t, "c1", "c2", "c3")
	store := state.NewStore(snap, true)
	order := state.NewOrder(snap)
	_, err := store.ToggleDeleted(fakeHash("c3"))
	require.NoError(t, err)

	plan, tip, _, w := execute(t, store, order)
	assert.Equal(t, fakeHash("c2"), plan.Tip)
	assert.Equal(t, fakeHash("c2"), tip, "tip collapses onto the untouched parent")
	assert.Zero(t, w.writes)
}

func TestPlanDeleteEverything(t *testing.T) {
	snap := linear(t, "c1", "c2")
	store := state.NewStore(snap, true)
	order := state.NewOrder(snap)
	require.NoError(t, store.SetDeleted(fakeHash("c1"), true))
	require.NoError(t, store.SetDeleted(fakeHash("c2"), true))

	_, err := BuildPlan(store, order)
	assert.True(t, ErrEmptyHistory.Is(err))
}

func TestPlanDeleteEverythingLoadedKeepsOutsideParent(t *testing.T) {
	// c1's parent "c0" was not loaded.
	snap := buildSnapshot(t,
		commitDef{name: "c2", parents: []string{"c1"}},
		commitDef{name: "c1", parents: []string{"c0"}},
	)
	store := state.NewStore(snap, true)
	order := state.NewOrder(snap)
	require.NoError(t, store.SetDeleted(fakeHash("c1"), true))
	require.NoError(t, store.SetDeleted(fakeHash("c2"), true))

	plan, err := BuildPlan(store, order)
	require.NoError(t, err)
	assert.Equal(t, fakeHash("c0"), plan.Tip)
}

func TestPlanMerge(t *testing.T) {
	// m merges c2 and side, where side branched from c1.
	snap := buildSnapshot(t,
		commitDef{name: "c3", parents: []string{"m"}},
		commitDef{name: "m", parents: []string{"c2", "side"}},
		commitDef{name: "side", parents: []string{"c1"}},
		commitDef{name: "c2", parents: []string{"c1"}},
		commitDef{name: "c1"},
	)
	c1, c2, m, side := fakeHash("c1"), fakeHash("c2"), fakeHash("m"), fakeHash("side")

	t.Run("Edit Below Merge Remaps Parent", func(t *testing.T) {
		store := state.NewStore(snap, true)
		order := state.NewOrder(snap)
		setMessage(t, store, "c2", "edited")

		_, _, ids, w := execute(t, store, order)
		newM := w.commits[ids.Resolve(m)]
		require.Len(t, newM.parents, 2, "merge parent count is preserved")
		assert.Equal(t, ids.Resolve(c2), newM.parents[0])
		assert.Equal(t, side, newM.parents[1])
	})

	t.Run("Deleting Merge Parent Splices Its Parent", func(t *testing.T) {
		store := state.NewStore(snap, true)
		order := state.NewOrder(snap)
		require.NoError(t, store.SetDeleted(side, true))

		_, _, ids, w := execute(t, store, order)
		newM := w.commits[ids.Resolve(m)]
		assert.Equal(t, []plumbing.Hash{ids.Resolve(c2), c1}, newM.parents)
	})

	t.Run("Duplicate Parents Collapse", func(t *testing.T) {
		store := state.NewStore(snap, true)
		order := state.NewOrder(snap)
		require.NoError(t, store.SetDeleted(side, true))
		require.NoError(t, store.SetDeleted(c2, true))

		_, _, ids, w := execute(t, store, order)
		assert.Equal(t, []plumbing.Hash{c1}, w.commits[ids.Resolve(m)].parents)
	})

	t.Run("Merge Never Moves", func(t *testing.T) {
		order := state.NewOrder(snap)
		_, err := order.Neighbor(1, state.Up)
		assert.True(t, state.ErrMergeCommitUnreorderable.Is(err))
		_, err = order.Neighbor(0, state.Down)
		assert.True(t, state.ErrMergeCommitUnreorderable.Is(err))
		_, err = order.Neighbor(2, state.Up)
		assert.True(t, state.ErrMergeCommitUnreorderable.Is(err))
	})
}

func TestPlanSiblingBranchesKeepShape(t *testing.T) {
	snap := buildSnapshot(t,
		commitDef{"m", []string{"a2", "b1"}},
		commitDef{"a2", []string{"a1"}},
		commitDef{"b1", []string{"base"}},
		commitDef{"a1", []string{"base"}},
		commitDef{"base", nil},
	)
	order := state.NewOrder(snap)

	_, err := order.Neighbor(1, state.Down)
	assert.True(t, state.ErrNotLinearlyAdjacent.Is(err))
	_, err = order.Neighbor(3, state.Down)
	assert.True(t, state.ErrNotLinearlyAdjacent.Is(err), "base has two children")

	store := state.NewStore(snap, true)
	setMessage(t, store, "a1", "edited a1")
	_, tip, ids, w := execute(t, store, order)

	a1, a2, b1 := ids.Resolve(fakeHash("a1")), ids.Resolve(fakeHash("a2")), fakeHash("b1")
	assert.Equal(t, []plumbing.Hash{a1}, w.commits[a2].parents)
	assert.True(t, w.isAncestor(snap, a1, a2))
	assert.Equal(t, []plumbing.Hash{a2, b1}, w.commits[tip].parents, "merge keeps its parent order")
}

func TestPlanAncestryPreserved(t *testing.T) {
	names := []string{"c1", "c2", "c3", "c4", "c5", "c6"}
	snap := linear(t, names...)
	store := state.NewStore(snap, true)
	order := state.NewOrder(snap)

	setMessage(t, store, "c2", "edited c2")
	require.NoError(t, store.SetDeleted(fakeHash("c4"), true))
	email := state.TextValue("bob@example.com")
	_, err := store.SetField(fakeHash("c5"), state.FieldAuthorEmail, &email)
	require.NoError(t, err)

	_, tip, ids, w := execute(t, store, order)

	var survivors []plumbing.Hash
	for _, n := range names {
		if n != "c4" {
			survivors = append(survivors, fakeHash(n))
		}
	}
	for i := range survivors {
		for j := i + 1; j < len(survivors); j++ {
			assert.True(t, w.isAncestor(snap, ids.Resolve(survivors[i]), ids.Resolve(survivors[j])),
				"%s should stay an ancestor of %s", survivors[i], survivors[j])
		}
	}
	assert.True(t, w.isAncestor(snap, fakeHash("c1"), tip))

	newC5 := w.commits[ids.Resolve(fakeHash("c5"))]
	assert.Equal(t, "bob@example.com", newC5.committer.Email, "committer follows author by default")
}

func TestSummarize(t *testing.T) {
	snap := linear(t, "c1", "c2", "c3", "c4", "c5", "c6", "c7", "c8")
	store := state.NewStore(snap, true)
	order := state.NewOrder(snap)
	for _, n := range []string{"c2", "c3", "c4", "c5", "c6", "c7"} {
		setMessage(t, store, n, "edited "+n)
	}
	require.NoError(t, store.SetDeleted(fakeHash("c8"), true))

	plan, err := BuildPlan(store, order)
	require.NoError(t, err)
	sum := Summarize(plan, snap)
	assert.Equal(t, 1, sum.Deleted)
	assert.Equal(t, 6, sum.Modified)
	assert.False(t, sum.Reordered)
	assert.Equal(t, []state.Field{state.FieldMessage}, sum.Changes[0].Fields)
	assert.Equal(t, fakeHash("c7"), sum.Changes[0].Commit, "newest change first")

	lines := sum.Lines()
	assert.Equal(t, "1 commit(s) will be deleted", lines[0])
	assert.Equal(t, "6 commit(s) with modified metadata", lines[1])
	assert.Equal(t, "  ... and 1 more", lines[len(lines)-1])
}
