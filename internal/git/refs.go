package git

import (
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/go-git/go-git/v5/storage"
	"github.com/pkg/errors"

	"github.com/kurobon/retcon/internal/rewrite"
	"github.com/kurobon/retcon/internal/state"
)

// WriteCommit encodes a commit object and stores it. Signatures are not
// carried over; a rewritten commit is always unsigned.
func (r *Repository) WriteCommit(tree plumbing.Hash, parents []plumbing.Hash, author, committer state.Signature, message string) (plumbing.Hash, error) {
	return writeCommit(r.repo.Storer, tree, parents, author, committer, message)
}

func writeCommit(s storer.EncodedObjectStorer, tree plumbing.Hash, parents []plumbing.Hash, author, committer state.Signature, message string) (plumbing.Hash, error) {
	commit := &object.Commit{
		Author:       toSignature(author),
		Committer:    toSignature(committer),
		Message:      message,
		TreeHash:     tree,
		ParentHashes: parents,
	}
	obj := s.NewEncodedObject()
	if err := commit.Encode(obj); err != nil {
		return plumbing.ZeroHash, errors.Wrap(err, "encode commit")
	}
	h, err := s.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, errors.Wrap(err, "store commit")
	}
	return h, nil
}

// CreateRef creates name at target. It never overwrites an existing ref.
func (r *Repository) CreateRef(name plumbing.ReferenceName, target plumbing.Hash) error {
	if _, err := r.repo.Storer.Reference(name); err == nil {
		return rewrite.ErrBackupRefExists.New(name)
	} else if err != plumbing.ErrReferenceNotFound {
		return errors.Wrapf(err, "read %s", name)
	}
	return errors.Wrapf(r.repo.Storer.SetReference(plumbing.NewHashReference(name, target)), "create %s", name)
}

// UpdateRef moves name from expected to target, failing if name was moved in between.
func (r *Repository) UpdateRef(name plumbing.ReferenceName, expected, target plumbing.Hash) error {
	current, err := r.repo.Storer.Reference(name)
	if err != nil {
		return errors.Wrapf(err, "read %s", name)
	}
	if current.Hash() != expected {
		return rewrite.ErrRefUpdateConflict.New(name, expected.String()[:7])
	}

	old := plumbing.NewHashReference(name, expected)
	if err := r.repo.Storer.CheckAndSetReference(plumbing.NewHashReference(name, target), old); err != nil {
		if err == storage.ErrReferenceHasChanged {
			return rewrite.ErrRefUpdateConflict.New(name, expected.String()[:7])
		}
		return errors.Wrapf(err, "update %s", name)
	}
	return nil
}

// DeleteRef removes name. Removing a missing ref is not an error.
func (r *Repository) DeleteRef(name plumbing.ReferenceName) error {
	return errors.Wrapf(r.repo.Storer.RemoveReference(name), "delete %s", name)
}

// Backup is a preserved pre-rewrite tip.
type Backup struct {
	Branch string
	Ref    plumbing.ReferenceName
	Target plumbing.Hash
}

// Backups lists the backup refs left by earlier rewrites.
func (r *Repository) Backups() ([]Backup, error) {
	iter, err := r.repo.Storer.IterReferences()
	if err != nil {
		return nil, errors.Wrap(err, "list references")
	}
	defer iter.Close()

	prefix := rewrite.BackupPrefix + "refs/heads/"
	var out []Backup
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		name := ref.Name().String()
		if ref.Type() == plumbing.HashReference && strings.HasPrefix(name, prefix) {
			out = append(out, Backup{Branch: strings.TrimPrefix(name, prefix), Ref: ref.Name(), Target: ref.Hash()})
		}
		return nil
	})
	return out, err
}

func (r *Repository) backup(branch string) (Backup, error) {
	name := rewrite.BackupRef(branch)
	ref, err := r.repo.Storer.Reference(name)
	if err == plumbing.ErrReferenceNotFound {
		return Backup{}, ErrNoBackup.New(branch)
	} else if err != nil {
		return Backup{}, errors.Wrapf(err, "read %s", name)
	}
	return Backup{Branch: branch, Ref: name, Target: ref.Hash()}, nil
}

// RestoreBackup points branch back at its backup and removes the backup.
func (r *Repository) RestoreBackup(branch string) (Backup, error) {
	b, err := r.backup(branch)
	if err != nil {
		return Backup{}, err
	}
	tip, err := r.repo.Storer.Reference(plumbing.NewBranchReferenceName(branch))
	if err != nil {
		return Backup{}, errors.Wrapf(err, "resolve branch %s", branch)
	}

	stash, err := r.StashSave()
	if err != nil {
		return Backup{}, rewrite.ErrDirtyTreeStashFailed.Wrap(err)
	}
	restore := func() {
		if stash.IsZero() {
			return
		}
		if err := r.StashRestore(stash); err != nil {
			r.log.WithError(err).Warn("could not restore stash")
		}
	}

	if err := r.UpdateRef(tip.Name(), tip.Hash(), b.Target); err != nil {
		restore()
		return Backup{}, err
	}
	if err := r.SyncWorktree(branch, b.Target); err != nil {
		r.log.WithError(err).Warn("could not sync working tree to the restored tip")
	}
	restore()
	return b, r.DeleteRef(b.Ref)
}

// DropBackup deletes the backup ref of branch.
func (r *Repository) DropBackup(branch string) (Backup, error) {
	b, err := r.backup(branch)
	if err != nil {
		return Backup{}, err
	}
	return b, r.DeleteRef(b.Ref)
}
