package state

import (
	"github.com/go-git/go-git/v5/plumbing"
)

// Effective is a commit's metadata after pending edits are overlaid.
type Effective struct {
	Author    Signature
	Committer Signature
	Message   string
}

// Matches reports whether the effective metadata equals the original commit's.
func (e Effective) Matches(c *OriginalCommit) bool {
	return e.Message == c.Message && e.Author.Equal(c.Author) && e.Committer.Equal(c.Committer)
}

// Value reads one field from the effective metadata.
func (e Effective) Value(f Field) Value {
	return OriginalValue(&OriginalCommit{Author: e.Author, Committer: e.Committer, Message: e.Message}, f)
}

// ChangedFields lists the fields whose effective value differs from c.
func (e Effective) ChangedFields(c *OriginalCommit) []Field {
	var changed []Field
	for _, f := range Fields() {
		if !e.Value(f).Equal(OriginalValue(c, f)) {
			changed = append(changed, f)
		}
	}
	return changed
}

// Resolve overlays edit on c. When syncAuthor is set, a committer field with no
// override of its own follows an overridden author field. An explicit committer
// override always wins.
func Resolve(c *OriginalCommit, edit FieldEdit, syncAuthor bool) Effective {
	pick := func(f Field) Value {
		if v, ok := edit[f]; ok {
			return v
		}
		if src, ok := f.syncSource(); ok && syncAuthor {
			if v, ok := edit[src]; ok {
				return v
			}
		}
		return OriginalValue(c, f)
	}

	return Effective{
		Author: Signature{
			Name:  pick(FieldAuthorName).Text,
			Email: pick(FieldAuthorEmail).Text,
			When:  pick(FieldAuthorDate).When,
		},
		Committer: Signature{
			Name:  pick(FieldCommitterName).Text,
			Email: pick(FieldCommitterEmail).Text,
			When:  pick(FieldCommitterDate).When,
		},
		Message: pick(FieldMessage).Text,
	}
}

// Store holds pending edits and deletion flags over a snapshot. Entries exist
// only for commits that carry at least one override or are deleted.
type Store struct {
	snap       *Snapshot
	syncAuthor bool
	edits      map[plumbing.Hash]FieldEdit
	deleted    map[plumbing.Hash]bool
}

// NewStore returns an empty store. syncAuthor enables the author-to-committer
// sync policy in Effective.
func NewStore(snap *Snapshot, syncAuthor bool) *Store {
	return &Store{
		snap:       snap,
		syncAuthor: syncAuthor,
		edits:      make(map[plumbing.Hash]FieldEdit),
		deleted:    make(map[plumbing.Hash]bool),
	}
}

func (s *Store) Snapshot() *Snapshot { return s.snap }

func (s *Store) SyncAuthor() bool { return s.syncAuthor }

func (s *Store) commit(id plumbing.Hash) (*OriginalCommit, error) {
	c, ok := s.snap.Lookup(id)
	if !ok {
		return nil, ErrUnknownCommit.New(id)
	}
	return c, nil
}

// SetField sets or, for a nil value, clears an override and returns the override
// it replaced.
func (s *Store) SetField(id plumbing.Hash, f Field, v *Value) (*Value, error) {
	if _, err := s.commit(id); err != nil {
		return nil, err
	}

	prev := s.Override(id, f)
	edit := s.edits[id]
	if v == nil {
		delete(edit, f)
		if len(edit) == 0 {
			delete(s.edits, id)
		}
		return prev, nil
	}

	if edit == nil {
		edit = make(FieldEdit)
		s.edits[id] = edit
	}
	edit[f] = *v
	return prev, nil
}

// Override returns the pending override for one field, or nil.
func (s *Store) Override(id plumbing.Hash, f Field) *Value {
	v, ok := s.edits[id][f]
	if !ok {
		return nil
	}
	return &v
}

// Edits returns a copy of the overrides recorded for id.
func (s *Store) Edits(id plumbing.Hash) FieldEdit {
	return s.edits[id].Clone()
}

// ToggleDeleted flips the deletion flag and returns its previous value.
func (s *Store) ToggleDeleted(id plumbing.Hash) (bool, error) {
	prev := s.deleted[id]
	if err := s.SetDeleted(id, !prev); err != nil {
		return false, err
	}
	return prev, nil
}

// SetDeleted sets the deletion flag explicitly.
func (s *Store) SetDeleted(id plumbing.Hash, deleted bool) error {
	if _, err := s.commit(id); err != nil {
		return err
	}
	if deleted {
		s.deleted[id] = true
	} else {
		delete(s.deleted, id)
	}
	return nil
}

func (s *Store) IsDeleted(id plumbing.Hash) bool {
	return s.deleted[id]
}

// Effective returns the commit's metadata with overrides and the sync policy applied.
func (s *Store) Effective(id plumbing.Hash) (Effective, error) {
	c, err := s.commit(id)
	if err != nil {
		return Effective{}, err
	}
	return Resolve(c, s.edits[id], s.syncAuthor), nil
}

// Dirty reports whether any override or deletion is pending.
func (s *Store) Dirty() bool {
	return len(s.edits) > 0 || len(s.deleted) > 0
}

// ModifiedCount counts commits whose effective metadata differs from the original.
func (s *Store) ModifiedCount() int {
	n := 0
	for id := range s.edits {
		c, _ := s.snap.Lookup(id)
		if !Resolve(c, s.edits[id], s.syncAuthor).Matches(c) {
			n++
		}
	}
	return n
}

func (s *Store) DeletedCount() int {
	return len(s.deleted)
}

// Reset drops every pending edit and deletion.
func (s *Store) Reset() {
	s.edits = make(map[plumbing.Hash]FieldEdit)
	s.deleted = make(map[plumbing.Hash]bool)
}
