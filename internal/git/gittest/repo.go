// Package gittest builds throwaway in-memory repositories for tests.
package gittest

import (
	"io"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/stretchr/testify/require"
)

// Epoch is the author date of the first commit; each commit is one minute later.
var Epoch = time.Date(2024, 1, 15, 14, 30, 0, 0, time.FixedZone("", 5*3600+30*60))

type Repo struct {
	t     testing.TB
	Dir   string // work tree of an on-disk repository, empty in memory
	FS    billy.Filesystem
	Repo  *gogit.Repository
	Tree  *gogit.Worktree
	clock time.Time
}

// New initialises an empty repository on branch main.
func New(t testing.TB) *Repo {
	t.Helper()
	fs := memfs.New()
	repo, err := gogit.InitWithOptions(memory.NewStorage(), fs, gogit.InitOptions{
		DefaultBranch: plumbing.NewBranchReferenceName("main"),
	})
	require.NoError(t, err)
	w, err := repo.Worktree()
	require.NoError(t, err)
	return &Repo{t: t, FS: fs, Repo: repo, Tree: w, clock: Epoch}
}

// NewOnDisk initialises an empty repository on branch main in a temporary directory.
func NewOnDisk(t testing.TB) *Repo {
	t.Helper()
	dir := t.TempDir()
	repo, err := gogit.PlainInitWithOptions(dir, &gogit.PlainInitOptions{
		InitOptions: gogit.InitOptions{DefaultBranch: plumbing.NewBranchReferenceName("main")},
	})
	require.NoError(t, err)
	w, err := repo.Worktree()
	require.NoError(t, err)
	return &Repo{t: t, Dir: dir, FS: w.Filesystem, Repo: repo, Tree: w, clock: Epoch}
}

// Linear creates one commit per message, oldest first, and returns their hashes.
func Linear(t testing.TB, messages ...string) (*Repo, []plumbing.Hash) {
	t.Helper()
	r := New(t)
	hashes := make([]plumbing.Hash, len(messages))
	for i, m := range messages {
		hashes[i] = r.Commit(m)
	}
	return r, hashes
}

func (r *Repo) signature() *object.Signature {
	r.clock = r.clock.Add(time.Minute)
	return &object.Signature{Name: "Alice", Email: "alice@example.com", When: r.clock}
}

// WriteFile writes content to path in the working tree without staging it.
func (r *Repo) WriteFile(path, content string) {
	r.t.Helper()
	require.NoError(r.t, util.WriteFile(r.FS, path, []byte(content), 0644))
}

// ReadFile returns the working tree content of path.
func (r *Repo) ReadFile(path string) string {
	r.t.Helper()
	f, err := r.FS.Open(path)
	require.NoError(r.t, err)
	defer f.Close()
	b, err := io.ReadAll(f)
	require.NoError(r.t, err)
	return string(b)
}

// Exists reports whether path is present in the working tree.
func (r *Repo) Exists(path string) bool {
	_, err := r.FS.Stat(path)
	return err == nil
}

// Commit writes <message>.txt and commits it on the current branch.
func (r *Repo) Commit(message string) plumbing.Hash {
	r.t.Helper()
	r.WriteFile(message+".txt", message+"\n")
	_, err := r.Tree.Add(message + ".txt")
	require.NoError(r.t, err)
	h, err := r.Tree.Commit(message+"\n", &gogit.CommitOptions{Author: r.signature()})
	require.NoError(r.t, err)
	return h
}

// Side creates a commit on top of parent without moving any ref.
func (r *Repo) Side(parent plumbing.Hash, message string) plumbing.Hash {
	r.t.Helper()
	p, err := r.Repo.CommitObject(parent)
	require.NoError(r.t, err)
	sig := r.signature()
	c := &object.Commit{
		Author:       *sig,
		Committer:    *sig,
		Message:      message + "\n",
		TreeHash:     p.TreeHash,
		ParentHashes: []plumbing.Hash{parent},
	}
	obj := r.Repo.Storer.NewEncodedObject()
	require.NoError(r.t, c.Encode(obj))
	h, err := r.Repo.Storer.SetEncodedObject(obj)
	require.NoError(r.t, err)
	return h
}

// Merge records a merge of HEAD and other on the current branch.
func (r *Repo) Merge(other plumbing.Hash, message string) plumbing.Hash {
	r.t.Helper()
	head := r.Head()
	h, err := r.Tree.Commit(message+"\n", &gogit.CommitOptions{
		Author:            r.signature(),
		Parents:           []plumbing.Hash{head, other},
		AllowEmptyCommits: true,
	})
	require.NoError(r.t, err)
	return h
}

// Head returns the commit HEAD resolves to.
func (r *Repo) Head() plumbing.Hash {
	r.t.Helper()
	ref, err := r.Repo.Head()
	require.NoError(r.t, err)
	return ref.Hash()
}

// Ref returns the target of name, or the zero hash if it does not exist.
func (r *Repo) Ref(name plumbing.ReferenceName) plumbing.Hash {
	ref, err := r.Repo.Reference(name, true)
	if err != nil {
		return plumbing.ZeroHash
	}
	return ref.Hash()
}

// CommitObject reads a commit, failing the test if it is missing.
func (r *Repo) CommitObject(h plumbing.Hash) *object.Commit {
	r.t.Helper()
	c, err := r.Repo.CommitObject(h)
	require.NoError(r.t, err)
	return c
}

// FirstParentLog returns HEAD's first-parent chain, newest first.
func (r *Repo) FirstParentLog() []*object.Commit {
	r.t.Helper()
	var out []*object.Commit
	c := r.CommitObject(r.Head())
	for {
		out = append(out, c)
		if c.NumParents() == 0 {
			return out
		}
		c = r.CommitObject(c.ParentHashes[0])
	}
}

// Clean reports whether the working tree has no changes.
func (r *Repo) Clean() bool {
	r.t.Helper()
	st, err := r.Tree.Status()
	require.NoError(r.t, err)
	return st.IsClean()
}
