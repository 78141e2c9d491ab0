package git

import (
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/pkg/errors"
)

const StashRefName = plumbing.ReferenceName("refs/stash")

// StashSave records the whole working tree, untracked files included, as a
// commit on refs/stash and resets the tree to HEAD. It returns the zero hash
// when there is nothing to save or the repository has no working tree.
func (r *Repository) StashSave() (plumbing.Hash, error) {
	w, err := r.repo.Worktree()
	if err == gogit.ErrIsBareRepository {
		return plumbing.ZeroHash, nil
	} else if err != nil {
		return plumbing.ZeroHash, errors.Wrap(err, "open worktree")
	}

	status, err := w.Status()
	if err != nil {
		return plumbing.ZeroHash, errors.Wrap(err, "worktree status")
	}
	if status.IsClean() {
		return plumbing.ZeroHash, nil
	}

	head, err := r.repo.Head()
	if err != nil {
		return plumbing.ZeroHash, errors.Wrap(err, "resolve HEAD")
	}

	// 1st parent is HEAD, 2nd the previous stash entry.
	parents := []plumbing.Hash{head.Hash()}
	if prev, err := r.repo.Reference(StashRefName, true); err == nil {
		parents = append(parents, prev.Hash())
	}

	if err := w.AddWithOptions(&gogit.AddOptions{All: true}); err != nil {
		return plumbing.ZeroHash, errors.Wrap(err, "stage changes for stash")
	}

	msg := "WIP on " + head.Name().Short() + ": retcon " + time.Now().Format(time.RFC3339)
	sig := r.signature()
	stash, err := w.Commit(msg, &gogit.CommitOptions{
		Parents:           parents,
		Author:            sig,
		Committer:         sig,
		AllowEmptyCommits: true,
	})
	if err != nil {
		if resetErr := w.Reset(&gogit.ResetOptions{Mode: gogit.MixedReset, Commit: head.Hash()}); resetErr != nil {
			return plumbing.ZeroHash, errors.Wrapf(err, "create stash commit (index reset also failed: %v)", resetErr)
		}
		return plumbing.ZeroHash, errors.Wrap(err, "create stash commit")
	}

	// Committing moved the branch; put it back before anything else looks at it.
	if err := w.Reset(&gogit.ResetOptions{Mode: gogit.HardReset, Commit: head.Hash()}); err != nil {
		return plumbing.ZeroHash, errors.Wrap(err, "reset worktree after stash")
	}
	if err := r.repo.Storer.SetReference(plumbing.NewHashReference(StashRefName, stash)); err != nil {
		return plumbing.ZeroHash, errors.Wrap(err, "update refs/stash")
	}

	r.log.WithField("stash", stash.String()).Debug("saved working tree")
	return stash, nil
}

// StashRestore merges a stash entry into the working tree and drops it. On a
// conflict the entry is kept and ErrConflict is returned.
func (r *Repository) StashRestore(stash plumbing.Hash) error {
	stashCommit, err := r.repo.CommitObject(stash)
	if err != nil {
		return errors.Wrapf(err, "read stash %s", stash)
	}
	if stashCommit.NumParents() == 0 {
		return errors.Errorf("invalid stash commit %s (no parents)", stash)
	}

	w, err := r.repo.Worktree()
	if err != nil {
		return errors.Wrap(err, "open worktree")
	}

	base, err := r.repo.CommitObject(stashCommit.ParentHashes[0])
	if err != nil {
		return errors.Wrap(err, "resolve stash base")
	}
	head, err := r.repo.Head()
	if err != nil {
		return errors.Wrap(err, "resolve HEAD")
	}
	ours, err := r.repo.CommitObject(head.Hash())
	if err != nil {
		return errors.Wrap(err, "read HEAD commit")
	}

	if err := Merge3Way(w, base, ours, stashCommit); err != nil {
		return err
	}

	// Leave the restored changes unstaged.
	if err := w.Reset(&gogit.ResetOptions{Mode: gogit.MixedReset, Commit: head.Hash()}); err != nil {
		return errors.Wrap(err, "unstage restored changes")
	}

	return r.dropStash(stashCommit)
}

// dropStash removes the entry if it is on top of the stash stack.
func (r *Repository) dropStash(stash *object.Commit) error {
	top, err := r.repo.Reference(StashRefName, true)
	if err != nil || top.Hash() != stash.Hash {
		return nil
	}
	if len(stash.ParentHashes) > 1 {
		return r.repo.Storer.SetReference(plumbing.NewHashReference(StashRefName, stash.ParentHashes[1]))
	}
	return r.repo.Storer.RemoveReference(StashRefName)
}

// SyncWorktree hard-resets the working tree and index to tip when branch is
// the checked out branch.
func (r *Repository) SyncWorktree(branch string, tip plumbing.Hash) error {
	head, err := r.repo.Storer.Reference(plumbing.HEAD)
	if err != nil {
		return errors.Wrap(err, "read HEAD")
	}
	if head.Type() != plumbing.SymbolicReference || head.Target() != plumbing.NewBranchReferenceName(branch) {
		return nil
	}
	w, err := r.repo.Worktree()
	if err == gogit.ErrIsBareRepository {
		return nil
	} else if err != nil {
		return errors.Wrap(err, "open worktree")
	}
	return errors.Wrap(w.Reset(&gogit.ResetOptions{Mode: gogit.HardReset, Commit: tip}), "reset worktree")
}
