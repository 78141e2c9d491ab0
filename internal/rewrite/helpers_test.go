package rewrite

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/require"

	"github.com/kurobon/retcon/internal/state"
)

func fakeHash(name string) plumbing.Hash {
	return plumbing.ComputeHash(plumbing.CommitObject, []byte(name))
}

var epoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.FixedZone("", -8*3600))

// commitDef declares a commit for buildSnapshot: name plus parent names.
type commitDef struct {
	name    string
	parents []string
}

// buildSnapshot takes definitions newest first. Parents not declared are
// treated as commits outside the loaded range.
func buildSnapshot(t *testing.T, defs ...commitDef) *state.Snapshot {
	t.Helper()
	commits := make([]state.OriginalCommit, len(defs))
	for i, d := range defs {
		sig := state.Signature{Name: "Alice", Email: "alice@example.com", When: epoch.Add(time.Duration(len(defs)-i) * time.Minute)}
		c := state.OriginalCommit{
			ID:        fakeHash(d.name),
			Author:    sig,
			Committer: sig,
			Message:   d.name + "\n",
			Tree:      fakeHash("tree/" + d.name),
		}
		for _, p := range d.parents {
			c.Parents = append(c.Parents, fakeHash(p))
		}
		commits[i] = c
	}
	snap, err := state.NewSnapshot("main", commits)
	require.NoError(t, err)
	return snap
}

// linear builds c3 <- c2 <- c1 style histories from oldest to newest names.
func linear(t *testing.T, names ...string) *state.Snapshot {
	t.Helper()
	defs := make([]commitDef, len(names))
	for i, name := range names {
		d := commitDef{name: name}
		if i > 0 {
			d.parents = []string{names[i-1]}
		}
		defs[len(names)-1-i] = d
	}
	return buildSnapshot(t, defs...)
}

type writtenCommit struct {
	tree      plumbing.Hash
	parents   []plumbing.Hash
	author    state.Signature
	committer state.Signature
	message   string
}

// memWriter hashes commit contents without a real object store.
type memWriter struct {
	commits map[plumbing.Hash]writtenCommit
	writes  int
	failAt  int // 1-based write that fails; 0 never fails
}

func newMemWriter() *memWriter {
	return &memWriter{commits: make(map[plumbing.Hash]writtenCommit)}
}

func (w *memWriter) WriteCommit(tree plumbing.Hash, parents []plumbing.Hash, author, committer state.Signature, message string) (plumbing.Hash, error) {
	w.writes++
	if w.failAt > 0 && w.writes == w.failAt {
		return plumbing.ZeroHash, errors.New("disk full")
	}
	body := fmt.Sprintf("%s|%v|%s|%s|%d|%s|%s|%d|%s",
		tree, parents, author.Name, author.Email, author.When.Unix(),
		committer.Name, committer.Email, committer.When.Unix(), message)
	id := plumbing.ComputeHash(plumbing.CommitObject, []byte(body))
	w.commits[id] = writtenCommit{tree: tree, parents: parents, author: author, committer: committer, message: message}
	return id, nil
}

// parentsOf returns the parents of a written commit or of an untouched original.
func (w *memWriter) parentsOf(snap *state.Snapshot, id plumbing.Hash) []plumbing.Hash {
	if c, ok := w.commits[id]; ok {
		return c.parents
	}
	if c, ok := snap.Lookup(id); ok {
		return c.Parents
	}
	return nil
}

func (w *memWriter) isAncestor(snap *state.Snapshot, ancestor, of plumbing.Hash) bool {
	stack := []plumbing.Hash{of}
	seen := map[plumbing.Hash]bool{}
	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if h == ancestor {
			return true
		}
		if seen[h] {
			continue
		}
		seen[h] = true
		stack = append(stack, w.parentsOf(snap, h)...)
	}
	return false
}

// memStorage is a Storage double that records the protocol's effects.
type memStorage struct {
	*memWriter
	refs         map[plumbing.ReferenceName]plumbing.Hash
	dirty        bool
	stashes      []plumbing.Hash
	restored     []plumbing.Hash
	synced       plumbing.Hash
	stashErr     error
	restoreErr   error
	concurrentTo plumbing.Hash // moves the branch before UpdateRef runs
}

func newMemStorage(branchTip plumbing.Hash) *memStorage {
	return &memStorage{
		memWriter: newMemWriter(),
		refs:      map[plumbing.ReferenceName]plumbing.Hash{plumbing.NewBranchReferenceName("main"): branchTip},
	}
}

func (s *memStorage) CreateRef(name plumbing.ReferenceName, target plumbing.Hash) error {
	if _, ok := s.refs[name]; ok {
		return ErrBackupRefExists.New(name)
	}
	s.refs[name] = target
	return nil
}

func (s *memStorage) UpdateRef(name plumbing.ReferenceName, expected, target plumbing.Hash) error {
	if !s.concurrentTo.IsZero() {
		s.refs[name] = s.concurrentTo
	}
	if s.refs[name] != expected {
		return ErrRefUpdateConflict.New(name, expected.String()[:7])
	}
	s.refs[name] = target
	return nil
}

func (s *memStorage) DeleteRef(name plumbing.ReferenceName) error {
	delete(s.refs, name)
	return nil
}

func (s *memStorage) StashSave() (plumbing.Hash, error) {
	if s.stashErr != nil {
		return plumbing.ZeroHash, s.stashErr
	}
	if !s.dirty {
		return plumbing.ZeroHash, nil
	}
	h := fakeHash(fmt.Sprintf("stash-%d", len(s.stashes)))
	s.stashes = append(s.stashes, h)
	s.dirty = false
	return h, nil
}

func (s *memStorage) StashRestore(stash plumbing.Hash) error {
	if s.restoreErr != nil {
		return s.restoreErr
	}
	s.restored = append(s.restored, stash)
	s.dirty = true
	return nil
}

func (s *memStorage) SyncWorktree(_ string, tip plumbing.Hash) error {
	s.synced = tip
	return nil
}

func (s *memStorage) DryRun() CommitWriter {
	return newMemWriter()
}
