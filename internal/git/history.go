package git

import (
	"strings"

	"github.com/emirpasic/gods/trees/binaryheap"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/pkg/errors"

	"github.com/kurobon/retcon/internal/state"
)

// LoadHistory walks every commit reachable from the branch tip and returns the
// newest limit of them in topological order: a commit is emitted only after
// all of its children, ties going to the newest committer date. A limit <= 0
// loads the whole history.
func (r *Repository) LoadHistory(limit int) (*state.Snapshot, error) {
	tip, err := r.Tip()
	if err != nil {
		return nil, err
	}

	commits := make(map[plumbing.Hash]*object.Commit)
	children := make(map[plumbing.Hash]int)
	pending := []plumbing.Hash{tip}
	for len(pending) > 0 {
		h := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		if _, seen := commits[h]; seen {
			continue
		}
		c, err := r.repo.CommitObject(h)
		if err != nil {
			return nil, errors.Wrapf(err, "read commit %s", h)
		}
		commits[h] = c
		for _, p := range c.ParentHashes {
			children[p]++
			pending = append(pending, p)
		}
	}

	ready := binaryheap.NewWith(newestFirst)
	ready.Push(commits[tip])

	var out []state.OriginalCommit
	for !ready.Empty() && (limit <= 0 || len(out) < limit) {
		v, _ := ready.Pop()
		c := v.(*object.Commit)
		out = append(out, toOriginal(c))
		for _, p := range c.ParentHashes {
			children[p]--
			if children[p] == 0 {
				ready.Push(commits[p])
			}
		}
	}

	r.log.WithField("commits", len(out)).Debug("loaded history")
	return state.NewSnapshot(r.branch, out)
}

// newestFirst orders the ready set of the topological walk.
func newestFirst(a, b interface{}) int {
	ca, cb := a.(*object.Commit), b.(*object.Commit)
	switch {
	case ca.Committer.When.After(cb.Committer.When):
		return -1
	case cb.Committer.When.After(ca.Committer.When):
		return 1
	}
	return strings.Compare(ca.Hash.String(), cb.Hash.String())
}

func toOriginal(c *object.Commit) state.OriginalCommit {
	return state.OriginalCommit{
		ID:        c.Hash,
		Parents:   append([]plumbing.Hash(nil), c.ParentHashes...),
		Author:    state.Signature{Name: c.Author.Name, Email: c.Author.Email, When: c.Author.When},
		Committer: state.Signature{Name: c.Committer.Name, Email: c.Committer.Email, When: c.Committer.When},
		Message:   c.Message,
		Tree:      c.TreeHash,
	}
}

func toSignature(s state.Signature) object.Signature {
	return object.Signature{Name: s.Name, Email: s.Email, When: s.When}
}

// ResolveCommit resolves a revision (branch, tag, full or abbreviated hash) to
// a commit identity.
func (r *Repository) ResolveCommit(rev string) (plumbing.Hash, error) {
	rev = strings.TrimSpace(rev)
	if h, err := r.repo.ResolveRevision(plumbing.Revision(rev)); err == nil {
		return *h, nil
	}

	if len(rev) < 4 || len(rev) >= 40 {
		return plumbing.ZeroHash, ErrRevisionNotFound.New(rev)
	}

	iter, err := r.repo.CommitObjects()
	if err != nil {
		return plumbing.ZeroHash, errors.Wrap(err, "iterate commits")
	}
	defer iter.Close()

	var match plumbing.Hash
	found := 0
	err = iter.ForEach(func(c *object.Commit) error {
		if strings.HasPrefix(c.Hash.String(), strings.ToLower(rev)) {
			match = c.Hash
			found++
		}
		return nil
	})
	if err != nil {
		return plumbing.ZeroHash, errors.Wrap(err, "iterate commits")
	}

	switch found {
	case 0:
		return plumbing.ZeroHash, ErrRevisionNotFound.New(rev)
	case 1:
		return match, nil
	}
	return plumbing.ZeroHash, ErrAmbiguousRevision.New(rev)
}
