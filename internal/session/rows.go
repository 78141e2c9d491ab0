package session

import (
	"strings"

	"github.com/go-git/go-git/v5/plumbing"

	"github.com/kurobon/retcon/internal/state"
)

// Row is one line of the display: the commit occupying a position with its
// pending state applied.
type Row struct {
	Position  int
	ID        plumbing.Hash
	Original  *state.OriginalCommit
	Effective state.Effective
	Deleted   bool
	// Modified is set when the effective metadata differs from the original.
	Modified bool
	// Moved is set when the commit is not at its loaded position.
	Moved bool
}

func (r Row) Merge() bool { return r.Original.IsMerge() }

// Status counts what is pending.
type Status struct {
	Branch    string `json:"branch"`
	Loaded    int    `json:"loaded"`
	Modified  int    `json:"modified"`
	Deleted   int    `json:"deleted"`
	Reordered bool   `json:"reordered"`
	Undo      int    `json:"undo"`
	Redo      int    `json:"redo"`
	Filter    string `json:"filter,omitempty"`
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	undo, redo := s.stack.Depth()
	return Status{
		Branch:    s.snap.Branch(),
		Loaded:    s.snap.Len(),
		Modified:  s.store.ModifiedCount(),
		Deleted:   s.store.DeletedCount(),
		Reordered: s.order.Changed(),
		Undo:      undo,
		Redo:      redo,
		Filter:    s.filter,
	}
}

func (s *Session) row(pos int) Row {
	id := s.order.At(pos)
	orig, _ := s.snap.Lookup(id)
	eff, _ := s.store.Effective(id)
	return Row{
		Position:  pos,
		ID:        id,
		Original:  orig,
		Effective: eff,
		Deleted:   s.store.IsDeleted(id),
		Modified:  !eff.Matches(orig),
		Moved:     s.order.Reordered(pos),
	}
}

// Rows returns every loaded commit in display order.
func (s *Session) Rows() []Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := make([]Row, s.order.Len())
	for i := range rows {
		rows[i] = s.row(i)
	}
	return rows
}

// SetFilter narrows Visible to rows matching query. Reordering is refused
// while a filter is set.
func (s *Session) SetFilter(query string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter = strings.TrimSpace(query)
}

func (s *Session) ClearFilter() {
	s.SetFilter("")
}

// Visible returns the rows matching the filter, or every row when none is set.
func (s *Session) Visible() []Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rows []Row
	for i := 0; i < s.order.Len(); i++ {
		r := s.row(i)
		if s.filter == "" || r.matches(s.filter) {
			rows = append(rows, r)
		}
	}
	return rows
}

// matches is a case-insensitive search over author, message and short hash.
func (r Row) matches(query string) bool {
	q := strings.ToLower(query)
	for _, field := range []string{
		r.Effective.Author.Name,
		r.Effective.Author.Email,
		r.Effective.Message,
		state.ShortHash(r.ID),
	} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}
