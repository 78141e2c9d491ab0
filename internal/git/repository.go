package git

import (
	"os"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage/filesystem"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Repository is the go-git backed storage collaborator of the rewrite engine.
// It is bound to one branch for its lifetime.
type Repository struct {
	repo   *gogit.Repository
	branch string
	log    *logrus.Entry
}

type Options struct {
	// Branch to edit. Empty means the branch HEAD points at.
	Branch string
	Log    *logrus.Entry
}

// Open discovers the repository containing path.
func Open(path string, opts Options) (*Repository, error) {
	repo, err := gogit.PlainOpenWithOptions(path, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if err == gogit.ErrRepositoryNotExists {
			return nil, ErrNotARepository.New(path)
		}
		return nil, errors.Wrapf(err, "open repository at %s", path)
	}
	return New(repo, opts)
}

// New wraps an already opened repository and validates that it can be rewritten.
func New(repo *gogit.Repository, opts Options) (*Repository, error) {
	log := opts.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	r := &Repository{repo: repo, log: log.WithField("component", "git")}

	if err := r.checkState(); err != nil {
		return nil, err
	}

	head, err := repo.Storer.Reference(plumbing.HEAD)
	if err != nil {
		return nil, errors.Wrap(err, "read HEAD")
	}
	if head.Type() != plumbing.SymbolicReference {
		return nil, ErrDetachedHead.New()
	}

	r.branch = opts.Branch
	if r.branch == "" {
		r.branch = head.Target().Short()
	}
	return r, nil
}

// Git exposes the underlying go-git repository.
func (r *Repository) Git() *gogit.Repository {
	return r.repo
}

func (r *Repository) Branch() string {
	return r.branch
}

// GitDir returns the on-disk git directory, or "" for in-memory repositories.
func (r *Repository) GitDir() string {
	fs, ok := r.repo.Storer.(*filesystem.Storage)
	if !ok {
		return ""
	}
	return fs.Filesystem().Root()
}

// HasUpstream reports whether the branch tracks a remote, in which case a
// rewrite will need a force push.
func (r *Repository) HasUpstream() bool {
	b, err := r.repo.Branch(r.branch)
	return err == nil && b.Remote != ""
}

// Tip returns the commit the branch currently points at.
func (r *Repository) Tip() (plumbing.Hash, error) {
	ref, err := r.repo.Reference(plumbing.NewBranchReferenceName(r.branch), true)
	if err != nil {
		if err == plumbing.ErrReferenceNotFound {
			return plumbing.ZeroHash, ErrNoCommits.New(r.branch)
		}
		return plumbing.ZeroHash, errors.Wrapf(err, "resolve branch %s", r.branch)
	}
	return ref.Hash(), nil
}

// inProgressMarkers are files git leaves in the git directory while a
// multi-step operation is unfinished.
var inProgressMarkers = []struct {
	path string
	op   string
}{
	{"rebase-merge", "rebase"},
	{"rebase-apply", "rebase"},
	{"MERGE_HEAD", "merge"},
	{"CHERRY_PICK_HEAD", "cherry-pick"},
	{"REVERT_HEAD", "revert"},
	{"BISECT_LOG", "bisect"},
}

func (r *Repository) checkState() error {
	fs, ok := r.repo.Storer.(*filesystem.Storage)
	if !ok {
		return nil
	}
	dot := fs.Filesystem()
	for _, m := range inProgressMarkers {
		if _, err := dot.Stat(m.path); err == nil {
			return ErrOperationInProgress.New(m.op)
		} else if !os.IsNotExist(err) {
			return errors.Wrapf(err, "stat %s", m.path)
		}
	}
	return nil
}
