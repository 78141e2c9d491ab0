// Package session is the editing façade over one loaded branch history. It
// owns the snapshot, the pending store, the display order and the undo stack,
// and mutates them only by recording actions.
package session

import (
	"context"
	"strings"
	"sync"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/sirupsen/logrus"
	"gopkg.in/src-d/go-errors.v1"

	"github.com/kurobon/retcon/internal/rewrite"
	"github.com/kurobon/retcon/internal/state"
)

var (
	// ErrFilterActive is returned when reordering while the view is filtered.
	ErrFilterActive = errors.NewKind("cannot reorder commits while a filter is active")
	// ErrAmbiguousCommit is returned when a prefix matches more than one loaded commit.
	ErrAmbiguousCommit = errors.NewKind("commit prefix '%s' is ambiguous")
)

// Loader reads the history of the branch being edited.
type Loader interface {
	LoadHistory(limit int) (*state.Snapshot, error)
}

// Storage is the repository a session reads from and writes to.
type Storage interface {
	Loader
	rewrite.Storage
}

// Resolver is implemented by storages that understand revision syntax.
type Resolver interface {
	ResolveCommit(rev string) (plumbing.Hash, error)
}

type Options struct {
	// Limit caps how many commits are loaded. Zero loads the whole history.
	Limit int
	// SyncAuthor makes committer fields follow edited author fields.
	SyncAuthor bool
	Log        *logrus.Entry
}

// Session holds the pending rewrite of one branch.
type Session struct {
	mu      sync.Mutex
	storage Storage
	opts    Options
	log     *logrus.Entry

	snap   *state.Snapshot
	store  *state.Store
	order  *state.Order
	stack  *state.Stack
	filter string
}

// New loads the history and returns a session with nothing pending.
func New(storage Storage, opts Options) (*Session, error) {
	log := opts.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Session{
		storage: storage,
		opts:    opts,
		log:     log.WithField("component", "session"),
		stack:   state.NewStack(),
	}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) reload() error {
	snap, err := s.storage.LoadHistory(s.opts.Limit)
	if err != nil {
		return err
	}
	s.snap = snap
	s.store = state.NewStore(snap, s.opts.SyncAuthor)
	s.order = state.NewOrder(snap)
	s.stack.Clear()
	s.log.WithFields(logrus.Fields{"branch": snap.Branch(), "commits": snap.Len()}).Debug("loaded history")
	return nil
}

func (s *Session) Snapshot() *state.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *Session) Branch() string {
	return s.Snapshot().Branch()
}

// Lookup resolves a full or abbreviated hash, or any revision the storage
// understands, to a loaded commit.
func (s *Session) Lookup(rev string) (plumbing.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch matches := s.snap.MatchPrefix(rev); len(matches) {
	case 1:
		return matches[0], nil
	case 0:
	default:
		return plumbing.ZeroHash, ErrAmbiguousCommit.New(rev)
	}

	if r, ok := s.storage.(Resolver); ok {
		h, err := r.ResolveCommit(rev)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		if s.snap.Has(h) {
			return h, nil
		}
	}
	return plumbing.ZeroHash, state.ErrUnknownCommit.New(strings.TrimSpace(rev))
}

func (s *Session) record(a state.Action) error {
	if err := a.Apply(s.store, s.order); err != nil {
		return err
	}
	s.stack.Record(a)
	s.log.WithField("action", a.Describe()).Debug("recorded")
	return nil
}

// ApplyEdit validates raw for field and records it as an override on commit.
func (s *Session) ApplyEdit(commit plumbing.Hash, field state.Field, raw string) (state.Action, error) {
	v, err := state.ParseValue(field, raw)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.snap.Has(commit) {
		return nil, state.ErrUnknownCommit.New(commit)
	}
	a := &state.FieldEditApplied{Commit: commit, Field: field, Old: s.store.Override(commit, field), New: &v}
	return a, s.record(a)
}

// ApplyBatchEdit sets the same value on several commits as one undo unit.
func (s *Session) ApplyBatchEdit(commits []plumbing.Hash, field state.Field, raw string) (state.Action, error) {
	if len(commits) == 1 {
		return s.ApplyEdit(commits[0], field, raw)
	}
	v, err := state.ParseValue(field, raw)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	batch := &state.Batch{}
	seen := make(map[plumbing.Hash]bool, len(commits))
	for _, id := range commits {
		if !s.snap.Has(id) {
			return nil, state.ErrUnknownCommit.New(id)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		value := v
		batch.Actions = append(batch.Actions, &state.FieldEditApplied{
			Commit: id, Field: field, Old: s.store.Override(id, field), New: &value,
		})
	}
	return batch, s.record(batch)
}

// ToggleDelete flips the deletion mark of commit and returns the new mark.
func (s *Session) ToggleDelete(commit plumbing.Hash) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.snap.Has(commit) {
		return false, state.ErrUnknownCommit.New(commit)
	}
	prev := s.store.IsDeleted(commit)
	return !prev, s.record(&state.DeletionToggled{Commit: commit, Old: prev, New: !prev})
}

// MoveCommit swaps the commit at position with its neighbour in dir and
// returns its new position.
func (s *Session) MoveCommit(position int, dir state.Direction) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.filter != "" {
		return position, ErrFilterActive.New()
	}
	target, err := s.order.Neighbor(position, dir)
	if err != nil {
		return position, err
	}
	if err := s.record(&state.OrderSwapped{A: position, B: target}); err != nil {
		return position, err
	}
	return target, nil
}

func (s *Session) Undo() (state.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stack.Undo(s.store, s.order)
}

func (s *Session) Redo() (state.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stack.Redo(s.store, s.order)
}

// DiscardAllPending drops every pending change, the display order and the
// undo history.
func (s *Session) DiscardAllPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.Reset()
	s.order.Reset()
	s.stack.Clear()
}

// Dirty reports whether writing would change anything the operator did.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Dirty() || s.order.Changed()
}

// PreviewPlan builds the plan a write would execute, without touching storage.
func (s *Session) PreviewPlan() (*rewrite.Plan, rewrite.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	plan, err := rewrite.BuildPlan(s.store, s.order)
	if err != nil {
		return nil, rewrite.Summary{}, err
	}
	return plan, rewrite.Summarize(plan, s.snap), nil
}

// WriteChanges applies the pending plan. On success the history is reloaded
// from the new tip and all pending state is cleared; on failure nothing
// pending is lost. A dry run or an empty plan leaves the session untouched.
func (s *Session) WriteChanges(ctx context.Context, opts rewrite.Options) (*rewrite.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	plan, err := rewrite.BuildPlan(s.store, s.order)
	if err != nil {
		return nil, err
	}
	res, err := rewrite.NewApplier(s.storage, s.log).Apply(ctx, plan, opts)
	if err != nil {
		return nil, err
	}
	if opts.DryRun || plan.Empty() {
		return res, nil
	}
	if err := s.reload(); err != nil {
		return res, err
	}
	return res, nil
}

// Export returns the recorded actions for persistence, oldest first.
func (s *Session) Export() (undo, redo []state.Action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stack.Export()
}

// Restore replays undo onto a clean session and installs both stack sides.
// If any action no longer applies the session is left clean.
func (s *Session) Restore(undo, redo []state.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.store.Reset()
	s.order.Reset()
	s.stack.Clear()
	for _, a := range undo {
		if err := a.Apply(s.store, s.order); err != nil {
			s.store.Reset()
			s.order.Reset()
			return err
		}
	}
	s.stack.Import(undo, redo)
	return nil
}

// History returns the undo and redo depth.
func (s *Session) History() (undo, redo int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stack.Depth()
}
