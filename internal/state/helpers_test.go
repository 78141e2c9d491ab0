package state

import (
	"testing"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/require"
)

func fakeHash(name string) plumbing.Hash {
	return plumbing.ComputeHash(plumbing.CommitObject, []byte(name))
}

var baseTime = time.Date(2024, 1, 15, 14, 30, 0, 0, time.FixedZone("", 5*3600+30*60))

// linearSnapshot builds c<n> <- ... <- c1, returned newest first.
func linearSnapshot(t *testing.T, names ...string) *Snapshot {
	t.Helper()
	commits := make([]OriginalCommit, len(names))
	for i, name := range names {
		sig := Signature{Name: "Alice", Email: "alice@example.com", When: baseTime.Add(time.Duration(i) * time.Hour)}
		commits[len(names)-1-i] = OriginalCommit{
			ID:        fakeHash(name),
			Author:    sig,
			Committer: sig,
			Message:   name + "\n",
			Tree:      fakeHash("tree-" + name),
		}
		if i > 0 {
			commits[len(names)-1-i].Parents = []plumbing.Hash{fakeHash(names[i-1])}
		}
	}
	snap, err := NewSnapshot("main", commits)
	require.NoError(t, err)
	return snap
}
