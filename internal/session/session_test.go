package session

import (
	"context"
	"testing"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurobon/retcon/internal/git"
	"github.com/kurobon/retcon/internal/git/gittest"
	"github.com/kurobon/retcon/internal/rewrite"
	"github.com/kurobon/retcon/internal/state"
)

func newSession(t *testing.T, r *gittest.Repo) (*Session, *git.Repository) {
	t.Helper()
	repo, err := git.New(r.Repo, git.Options{})
	require.NoError(t, err)
	s, err := New(repo, Options{SyncAuthor: true})
	require.NoError(t, err)
	return s, repo
}

// c1 <- c2 <- c3
func linearSession(t *testing.T) (*Session, *gittest.Repo, []plumbing.Hash) {
	t.Helper()
	r, hashes := gittest.Linear(t, "c1", "c2", "c3")
	s, _ := newSession(t, r)
	return s, r, hashes
}

func rowIDs(rows []Row) []plumbing.Hash {
	ids := make([]plumbing.Hash, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	return ids
}

func TestApplyEditRejectsInvalidValues(t *testing.T) {
	s, _, hashes := linearSession(t)

	_, err := s.ApplyEdit(hashes[1], state.FieldAuthorEmail, "not-an-email")
	var verr *state.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, state.FieldAuthorEmail, verr.Field)

	_, err = s.ApplyEdit(plumbing.ComputeHash(plumbing.CommitObject, []byte("nope")), state.FieldMessage, "x")
	assert.True(t, state.ErrUnknownCommit.Is(err))

	assert.False(t, s.Dirty())
	undo, _ := s.History()
	assert.Zero(t, undo, "rejected edits are not recorded")
}

func TestEditUndoRedo(t *testing.T) {
	s, _, hashes := linearSession(t)

	_, err := s.ApplyEdit(hashes[1], state.FieldMessage, "reworded")
	require.NoError(t, err)
	assert.True(t, s.Dirty())
	assert.Equal(t, 1, s.Status().Modified)

	_, err = s.Undo()
	require.NoError(t, err)
	assert.False(t, s.Dirty())

	_, err = s.Undo()
	assert.True(t, state.ErrNothingToUndo.Is(err))

	_, err = s.Redo()
	require.NoError(t, err)
	rows := s.Rows()
	assert.Equal(t, "reworded\n", rows[1].Effective.Message)
	assert.True(t, rows[1].Modified)

	_, err = s.Redo()
	assert.True(t, state.ErrNothingToRedo.Is(err))
}

func TestBatchEditUndoesAsOneUnit(t *testing.T) {
	s, _, hashes := linearSession(t)

	_, err := s.ApplyBatchEdit(hashes, state.FieldAuthorName, "Bob")
	require.NoError(t, err)
	for _, r := range s.Rows() {
		assert.Equal(t, "Bob", r.Effective.Author.Name)
		assert.Equal(t, "Bob", r.Effective.Committer.Name, "committer follows author")
	}
	undo, _ := s.History()
	assert.Equal(t, 1, undo)

	_, err = s.Undo()
	require.NoError(t, err)
	for _, r := range s.Rows() {
		assert.Equal(t, "Alice", r.Effective.Author.Name)
		assert.False(t, r.Modified)
	}
	assert.False(t, s.Dirty())
}

func TestExplicitCommitterOverrideWins(t *testing.T) {
	s, _, hashes := linearSession(t)

	_, err := s.ApplyBatchEdit([]plumbing.Hash{hashes[0]}, state.FieldAuthorName, "Bob")
	require.NoError(t, err)
	_, err = s.ApplyEdit(hashes[0], state.FieldCommitterName, "Carol")
	require.NoError(t, err)

	row := s.Rows()[2]
	assert.Equal(t, "Bob", row.Effective.Author.Name)
	assert.Equal(t, "Carol", row.Effective.Committer.Name)
}

func TestFullRewind(t *testing.T) {
	s, _, hashes := linearSession(t)
	initial := s.Rows()

	_, err := s.ApplyEdit(hashes[0], state.FieldMessage, "one")
	require.NoError(t, err)
	_, err = s.ApplyEdit(hashes[0], state.FieldMessage, "two")
	require.NoError(t, err)
	_, err = s.ApplyEdit(hashes[2], state.FieldAuthorDate, "2020-05-01 08:00:00 +0200")
	require.NoError(t, err)
	_, err = s.ToggleDelete(hashes[1])
	require.NoError(t, err)
	_, err = s.MoveCommit(0, state.Down)
	require.NoError(t, err)
	_, err = s.ApplyBatchEdit(hashes, state.FieldAuthorEmail, "team@example.com")
	require.NoError(t, err)
	_, err = s.Undo()
	require.NoError(t, err)
	_, err = s.ApplyEdit(hashes[1], state.FieldCommitterName, "Dave")
	require.NoError(t, err)

	undo, _ := s.History()
	for i := 0; i < undo+2; i++ {
		_, _ = s.Undo()
	}

	assert.False(t, s.Dirty())
	assert.Equal(t, initial, s.Rows())
}

func TestToggleDeleteTwice(t *testing.T) {
	s, _, hashes := linearSession(t)
	_, err := s.MoveCommit(1, state.Up)
	require.NoError(t, err)
	before := s.Rows()

	deleted, err := s.ToggleDelete(hashes[1])
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.True(t, s.Rows()[0].Deleted)

	deleted, err = s.ToggleDelete(hashes[1])
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.Equal(t, before, s.Rows())
}

func TestMoveCommit(t *testing.T) {
	s, _, hashes := linearSession(t)

	pos, err := s.MoveCommit(2, state.Up)
	require.NoError(t, err)
	assert.Equal(t, 1, pos)
	assert.Equal(t, []plumbing.Hash{hashes[2], hashes[0], hashes[1]}, rowIDs(s.Rows()))

	_, err = s.MoveCommit(0, state.Up)
	assert.True(t, state.ErrPositionOutOfRange.Is(err))
	_, err = s.MoveCommit(7, state.Down)
	assert.True(t, state.ErrPositionOutOfRange.Is(err))

	t.Run("Filter Active", func(t *testing.T) {
		s.SetFilter("c1")
		_, err := s.MoveCommit(1, state.Down)
		assert.True(t, ErrFilterActive.Is(err))
		s.ClearFilter()
		_, err = s.MoveCommit(1, state.Down)
		assert.NoError(t, err)
	})
}

func TestMoveMergeRefused(t *testing.T) {
	r, hashes := gittest.Linear(t, "c1", "c2")
	side := r.Side(hashes[0], "side")
	r.Merge(side, "merge")
	r.Commit("c4")
	s, _ := newSession(t, r)

	rows := s.Rows()
	require.True(t, rows[1].Merge())

	_, err := s.MoveCommit(1, state.Up)
	assert.True(t, state.ErrMergeCommitUnreorderable.Is(err))
	_, err = s.MoveCommit(0, state.Down)
	assert.True(t, state.ErrMergeCommitUnreorderable.Is(err), "nothing crosses a merge")
	assert.False(t, s.Dirty())
}

func TestMoveAcrossBranchesRefused(t *testing.T) {
	r, hashes := gittest.Linear(t, "c1", "c2")
	side := r.Side(hashes[0], "side")
	r.Merge(side, "merge")
	s, _ := newSession(t, r)

	// merge, then c2 and side in either order, then c1
	rows := s.Rows()
	require.Len(t, rows, 4)
	assert.ElementsMatch(t, []plumbing.Hash{hashes[1], side}, []plumbing.Hash{rows[1].ID, rows[2].ID})

	_, err := s.MoveCommit(1, state.Down)
	assert.True(t, state.ErrNotLinearlyAdjacent.Is(err), "sibling branch tips")
	_, err = s.MoveCommit(2, state.Down)
	assert.True(t, state.ErrNotLinearlyAdjacent.Is(err), "fork point with two children")
	assert.False(t, s.Dirty())
	undo, _ := s.History()
	assert.Zero(t, undo)
}

func TestFilter(t *testing.T) {
	s, _, hashes := linearSession(t)
	_, err := s.ApplyEdit(hashes[0], state.FieldAuthorName, "Zed")
	require.NoError(t, err)

	s.SetFilter("ZED")
	visible := s.Visible()
	require.Len(t, visible, 1)
	assert.Equal(t, hashes[0], visible[0].ID)

	s.SetFilter(hashes[2].String()[:7])
	assert.Equal(t, []plumbing.Hash{hashes[2]}, rowIDs(s.Visible()))

	s.ClearFilter()
	assert.Len(t, s.Visible(), 3)
}

func TestLookup(t *testing.T) {
	s, _, hashes := linearSession(t)

	h, err := s.Lookup(hashes[0].String()[:10])
	require.NoError(t, err)
	assert.Equal(t, hashes[0], h)

	h, err = s.Lookup("main")
	require.NoError(t, err)
	assert.Equal(t, hashes[2], h)

	_, err = s.Lookup("does-not-exist")
	assert.Error(t, err)
}

func TestWriteChanges(t *testing.T) {
	s, r, hashes := linearSession(t)
	_, err := s.ApplyEdit(hashes[1], state.FieldMessage, "reworded")
	require.NoError(t, err)

	plan, sum, err := s.PreviewPlan()
	require.NoError(t, err)
	assert.Equal(t, 2, plan.Picks())
	assert.Equal(t, 1, sum.Modified)

	res, err := s.WriteChanges(context.Background(), rewrite.Options{})
	require.NoError(t, err)
	assert.NotEqual(t, hashes[2], res.NewTip)
	assert.Equal(t, res.NewTip, r.Head())

	assert.False(t, s.Dirty())
	undo, redo := s.History()
	assert.Zero(t, undo+redo)
	assert.Equal(t, res.NewTip, s.Snapshot().Tip(), "history is reloaded from the new tip")
	assert.Equal(t, hashes[0], s.Rows()[2].ID)
}

func TestWriteChangesNoOp(t *testing.T) {
	s, r, hashes := linearSession(t)

	res, err := s.WriteChanges(context.Background(), rewrite.Options{})
	require.NoError(t, err)
	assert.Equal(t, hashes[2], res.NewTip)
	assert.Equal(t, hashes[2], r.Head())
	assert.True(t, r.Ref(rewrite.BackupRef("main")).IsZero())

	t.Run("Keeps History", func(t *testing.T) {
		_, err := s.ApplyEdit(hashes[1], state.FieldMessage, "temporary")
		require.NoError(t, err)
		_, err = s.Undo()
		require.NoError(t, err)
		snap := s.Snapshot()

		_, err = s.WriteChanges(context.Background(), rewrite.Options{})
		require.NoError(t, err)
		assert.Same(t, snap, s.Snapshot(), "no reload")
		_, redo := s.History()
		assert.Equal(t, 1, redo)
		_, err = s.Redo()
		require.NoError(t, err)
		assert.True(t, s.Dirty())
	})
}

func TestWriteChangesDryRun(t *testing.T) {
	s, r, hashes := linearSession(t)
	_, err := s.ToggleDelete(hashes[1])
	require.NoError(t, err)

	res, err := s.WriteChanges(context.Background(), rewrite.Options{DryRun: true})
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.Equal(t, hashes[2], r.Head())
	assert.True(t, s.Dirty(), "dry runs keep pending changes")

	applied, err := s.WriteChanges(context.Background(), rewrite.Options{})
	require.NoError(t, err)
	assert.Equal(t, res.NewTip, applied.NewTip)
}

func TestWriteChangesRefConflictKeepsState(t *testing.T) {
	s, r, hashes := linearSession(t)
	_, err := s.ApplyEdit(hashes[0], state.FieldMessage, "first")
	require.NoError(t, err)
	_, err = s.ToggleDelete(hashes[1])
	require.NoError(t, err)

	// Someone else commits on the branch after the history was loaded.
	moved := r.Commit("c4")
	r.WriteFile("c1.txt", "c1\nlocal edit\n")

	rowsBefore := s.Rows()
	statusBefore := s.Status()

	_, err = s.WriteChanges(context.Background(), rewrite.Options{})
	require.Error(t, err)
	assert.True(t, rewrite.ErrRefUpdateConflict.Is(err))

	assert.Equal(t, moved, r.Head())
	assert.True(t, r.Ref(rewrite.BackupRef("main")).IsZero(), "backup is removed on rollback")
	assert.Equal(t, "c1\nlocal edit\n", r.ReadFile("c1.txt"), "stash is restored")
	assert.Equal(t, rowsBefore, s.Rows())
	assert.Equal(t, statusBefore, s.Status())
}

func TestRestore(t *testing.T) {
	s, r, hashes := linearSession(t)
	_, err := s.ApplyEdit(hashes[0], state.FieldMessage, "first")
	require.NoError(t, err)
	_, err = s.MoveCommit(0, state.Down)
	require.NoError(t, err)
	_, err = s.Undo()
	require.NoError(t, err)
	want := s.Rows()
	undo, redo := s.Export()

	fresh, _ := newSession(t, r)
	require.NoError(t, fresh.Restore(undo, redo))
	assert.Equal(t, want, fresh.Rows())
	_, err = fresh.Redo()
	require.NoError(t, err)
	assert.Equal(t, hashes[1], fresh.Rows()[0].ID)

	t.Run("Stale Actions", func(t *testing.T) {
		stale := []state.Action{&state.DeletionToggled{Commit: plumbing.ComputeHash(plumbing.CommitObject, []byte("gone")), New: true}}
		err := fresh.Restore(stale, nil)
		assert.True(t, state.ErrUnknownCommit.Is(err))
		assert.False(t, fresh.Dirty())
	})
}
