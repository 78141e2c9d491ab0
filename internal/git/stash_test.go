package git

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurobon/retcon/internal/git/gittest"
	"github.com/kurobon/retcon/internal/rewrite"
	"github.com/kurobon/retcon/internal/state"
)

func TestStashRoundTrip(t *testing.T) {
	r, hashes := gittest.Linear(t, "c1", "c2")
	repo := open(t, r)

	t.Run("Clean Tree", func(t *testing.T) {
		stash, err := repo.StashSave()
		require.NoError(t, err)
		assert.True(t, stash.IsZero())
	})

	r.WriteFile("c1.txt", "c1\ndirty\n")
	r.WriteFile("scratch.txt", "untracked\n")
	require.False(t, r.Clean())

	stash, err := repo.StashSave()
	require.NoError(t, err)
	require.False(t, stash.IsZero())

	assert.True(t, r.Clean())
	assert.Equal(t, "c1\n", r.ReadFile("c1.txt"))
	assert.False(t, r.Exists("scratch.txt"))
	assert.Equal(t, hashes[1], r.Head(), "branch is back where it was")
	assert.Equal(t, stash, r.Ref(StashRefName))

	require.NoError(t, repo.StashRestore(stash))
	assert.Equal(t, "c1\ndirty\n", r.ReadFile("c1.txt"))
	assert.Equal(t, "untracked\n", r.ReadFile("scratch.txt"))
	assert.True(t, r.Ref(StashRefName).IsZero(), "entry is dropped")
	assert.Equal(t, hashes[1], r.Head())
}

func TestStashKeepsFileModes(t *testing.T) {
	r := gittest.NewOnDisk(t)
	head := r.Commit("c1")
	repo := open(t, r)

	script := filepath.Join(r.Dir, "run.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\n"), 0755))
	require.NoError(t, os.Symlink("c1.txt", filepath.Join(r.Dir, "latest")))

	stash, err := repo.StashSave()
	require.NoError(t, err)
	require.False(t, stash.IsZero())
	assert.False(t, r.Exists("run.sh"))

	require.NoError(t, repo.StashRestore(stash))
	assert.Equal(t, head, r.Head())

	fi, err := os.Lstat(script)
	require.NoError(t, err)
	assert.NotZero(t, fi.Mode().Perm()&0100, "executable bit survives")

	fi, err = os.Lstat(filepath.Join(r.Dir, "latest"))
	require.NoError(t, err)
	require.NotZero(t, fi.Mode()&os.ModeSymlink, "symlink stays a link")
	target, err := os.Readlink(filepath.Join(r.Dir, "latest"))
	require.NoError(t, err)
	assert.Equal(t, "c1.txt", target)
}

func edit(t *testing.T, store *state.Store, id plumbing.Hash, f state.Field, raw string) {
	t.Helper()
	v, err := state.ParseValue(f, raw)
	require.NoError(t, err)
	_, err = store.SetField(id, f, &v)
	require.NoError(t, err)
}

func TestApplyAgainstRepository(t *testing.T) {
	r, hashes := gittest.Linear(t, "c1", "c2", "c3")
	repo := open(t, r)
	snap, err := repo.LoadHistory(0)
	require.NoError(t, err)

	store := state.NewStore(snap, true)
	edit(t, store, hashes[1], state.FieldMessage, "c2 reworded")
	plan, err := rewrite.BuildPlan(store, state.NewOrder(snap))
	require.NoError(t, err)

	r.WriteFile("c3.txt", "c3\nwork in progress\n")

	res, err := rewrite.NewApplier(repo, nil).Apply(context.Background(), plan, rewrite.Options{})
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)

	log := r.FirstParentLog()
	require.Len(t, log, 3)
	assert.Equal(t, res.NewTip, log[0].Hash)
	assert.Equal(t, "c3\n", log[0].Message)
	assert.Equal(t, "c2 reworded\n", log[1].Message)
	assert.Equal(t, hashes[0], log[2].Hash, "c1 keeps its identity")

	assert.Equal(t, hashes[2], r.Ref(rewrite.BackupRef("main")))
	assert.Equal(t, "c3\nwork in progress\n", r.ReadFile("c3.txt"), "uncommitted work survives")
}

func TestApplyDropTipSyncsWorktree(t *testing.T) {
	r, hashes := gittest.Linear(t, "c1", "c2", "c3")
	repo := open(t, r)
	snap, err := repo.LoadHistory(0)
	require.NoError(t, err)

	store := state.NewStore(snap, true)
	require.NoError(t, store.SetDeleted(hashes[2], true))
	plan, err := rewrite.BuildPlan(store, state.NewOrder(snap))
	require.NoError(t, err)

	res, err := rewrite.NewApplier(repo, nil).Apply(context.Background(), plan, rewrite.Options{})
	require.NoError(t, err)
	assert.Equal(t, hashes[1], res.NewTip)
	assert.Equal(t, hashes[1], r.Head())
	assert.False(t, r.Exists("c3.txt"))
	assert.True(t, r.Clean())

	t.Run("Restore Backup", func(t *testing.T) {
		b, err := repo.RestoreBackup("main")
		require.NoError(t, err)
		assert.Equal(t, hashes[2], b.Target)
		assert.Equal(t, hashes[2], r.Head())
		assert.True(t, r.Exists("c3.txt"))
		assert.True(t, r.Ref(rewrite.BackupRef("main")).IsZero())
	})
}
