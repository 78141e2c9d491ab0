package state

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
)

// Signature identifies an author or committer at a point in time.
// When keeps the original UTC offset of the commit.
type Signature struct {
	Name  string    `json:"name"`
	Email string    `json:"email"`
	When  time.Time `json:"when"`
}

// Equal compares signatures at git's resolution (whole seconds plus offset).
func (s Signature) Equal(o Signature) bool {
	return s.Name == o.Name && s.Email == o.Email && sameInstant(s.When, o.When)
}

func (s Signature) String() string {
	return fmt.Sprintf("%s <%s>", s.Name, s.Email)
}

func sameInstant(a, b time.Time) bool {
	_, aOff := a.Zone()
	_, bOff := b.Zone()
	return a.Unix() == b.Unix() && aOff == bOff
}

// OriginalCommit is a commit as loaded at session start. It is never mutated.
type OriginalCommit struct {
	ID        plumbing.Hash
	Parents   []plumbing.Hash
	Author    Signature
	Committer Signature
	Message   string
	Tree      plumbing.Hash
	// Position is the index in the loaded newest-first sequence.
	Position int
}

// IsMerge reports whether the commit has two or more parents.
func (c *OriginalCommit) IsMerge() bool {
	return len(c.Parents) > 1
}

// IsRoot reports whether the commit has no parent.
func (c *OriginalCommit) IsRoot() bool {
	return len(c.Parents) == 0
}

// ShortID returns the abbreviated hash used for display.
func (c *OriginalCommit) ShortID() string {
	return ShortHash(c.ID)
}

// Summary returns the first line of the message.
func (c *OriginalCommit) Summary() string {
	return Summary(c.Message)
}

// ShortHash abbreviates a hash to seven characters.
func ShortHash(h plumbing.Hash) string {
	return h.String()[:7]
}

// Summary returns the first line of a commit message.
func Summary(message string) string {
	line, _, _ := strings.Cut(strings.TrimLeft(message, "\n"), "\n")
	return strings.TrimSpace(line)
}

// Snapshot is an immutable view of the loaded history, newest first.
//
// The sequence is topological: every loaded parent of a commit appears after it.
type Snapshot struct {
	branch  string
	commits  []OriginalCommit
	index    map[plumbing.Hash]int
	children map[plumbing.Hash]int
}

// NewSnapshot builds a snapshot from commits ordered newest first. Positions are
// assigned from the slice order and the topological invariant is checked.
func NewSnapshot(branch string, commits []OriginalCommit) (*Snapshot, error) {
	s := &Snapshot{
		branch:  branch,
		commits:  make([]OriginalCommit, len(commits)),
		index:    make(map[plumbing.Hash]int, len(commits)),
		children: make(map[plumbing.Hash]int, len(commits)),
	}

	for i, c := range commits {
		if _, dup := s.index[c.ID]; dup {
			return nil, fmt.Errorf("snapshot: duplicate commit %s", c.ID)
		}
		c.Parents = append([]plumbing.Hash(nil), c.Parents...)
		c.Position = i
		s.commits[i] = c
		s.index[c.ID] = i
	}

	for i := range s.commits {
		for _, p := range s.commits[i].Parents {
			if pos, ok := s.index[p]; ok && pos <= i {
				return nil, fmt.Errorf("snapshot: commit %s is loaded before its child %s", ShortHash(p), s.commits[i].ShortID())
			}
			s.children[p]++
		}
	}

	return s, nil
}

// Branch returns the branch the history was loaded from.
func (s *Snapshot) Branch() string {
	return s.branch
}

// Len returns the number of loaded commits.
func (s *Snapshot) Len() int {
	return len(s.commits)
}

// At returns the commit at a newest-first position.
func (s *Snapshot) At(pos int) *OriginalCommit {
	return &s.commits[pos]
}

// Lookup finds a commit by identity.
func (s *Snapshot) Lookup(id plumbing.Hash) (*OriginalCommit, bool) {
	pos, ok := s.index[id]
	if !ok {
		return nil, false
	}
	return &s.commits[pos], true
}

// Children returns how many loaded commits name id as a parent.
func (s *Snapshot) Children(id plumbing.Hash) int {
	return s.children[id]
}

// Has reports whether id is part of the snapshot.
func (s *Snapshot) Has(id plumbing.Hash) bool {
	_, ok := s.index[id]
	return ok
}

// Position returns the newest-first position of id.
func (s *Snapshot) Position(id plumbing.Hash) (int, bool) {
	pos, ok := s.index[id]
	return pos, ok
}

// Tip returns the newest loaded commit, or the zero hash for an empty snapshot.
func (s *Snapshot) Tip() plumbing.Hash {
	if len(s.commits) == 0 {
		return plumbing.ZeroHash
	}
	return s.commits[0].ID
}

// IDs returns the loaded identities, newest first.
func (s *Snapshot) IDs() []plumbing.Hash {
	ids := make([]plumbing.Hash, len(s.commits))
	for i := range s.commits {
		ids[i] = s.commits[i].ID
	}
	return ids
}

// MatchPrefix returns the loaded identities whose hex form starts with prefix.
func (s *Snapshot) MatchPrefix(prefix string) []plumbing.Hash {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return nil
	}
	var matches []plumbing.Hash
	for i := range s.commits {
		if strings.HasPrefix(s.commits[i].ID.String(), prefix) {
			matches = append(matches, s.commits[i].ID)
		}
	}
	return matches
}
