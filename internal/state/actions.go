package state

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
)

// Action is one reversible mutation of the pending state. Apply replays it and
// Revert applies its exact inverse.
type Action interface {
	Apply(store *Store, order *Order) error
	Revert(store *Store, order *Order) error
	Describe() string
}

// FieldEditApplied records an override change on one field.
type FieldEditApplied struct {
	Commit plumbing.Hash
	Field  Field
	Old    *Value
	New    *Value
}

func (a *FieldEditApplied) Apply(store *Store, _ *Order) error {
	_, err := store.SetField(a.Commit, a.Field, a.New)
	return err
}

func (a *FieldEditApplied) Revert(store *Store, _ *Order) error {
	_, err := store.SetField(a.Commit, a.Field, a.Old)
	return err
}

func (a *FieldEditApplied) Describe() string {
	if a.New == nil {
		return fmt.Sprintf("clear %s on %s", a.Field, ShortHash(a.Commit))
	}
	return fmt.Sprintf("set %s on %s to %q", a.Field, ShortHash(a.Commit), a.New.Display(a.Field))
}

// DeletionToggled records a change of a commit's deletion flag.
type DeletionToggled struct {
	Commit plumbing.Hash
	Old    bool
	New    bool
}

func (a *DeletionToggled) Apply(store *Store, _ *Order) error {
	return store.SetDeleted(a.Commit, a.New)
}

func (a *DeletionToggled) Revert(store *Store, _ *Order) error {
	return store.SetDeleted(a.Commit, a.Old)
}

func (a *DeletionToggled) Describe() string {
	if a.New {
		return "delete " + ShortHash(a.Commit)
	}
	return "restore " + ShortHash(a.Commit)
}

// OrderSwapped records the exchange of two display slots.
type OrderSwapped struct {
	A int
	B int
}

func (a *OrderSwapped) Apply(_ *Store, order *Order) error {
	return order.Swap(a.A, a.B)
}

func (a *OrderSwapped) Revert(_ *Store, order *Order) error {
	return order.Swap(a.A, a.B)
}

func (a *OrderSwapped) Describe() string {
	return fmt.Sprintf("swap positions %d and %d", a.A, a.B)
}

// Batch groups actions into a single undo unit. Revert runs in reverse order.
type Batch struct {
	Label   string
	Actions []Action
}

func (b *Batch) Apply(store *Store, order *Order) error {
	for _, a := range b.Actions {
		if err := a.Apply(store, order); err != nil {
			return err
		}
	}
	return nil
}

func (b *Batch) Revert(store *Store, order *Order) error {
	for i := len(b.Actions) - 1; i >= 0; i-- {
		if err := b.Actions[i].Revert(store, order); err != nil {
			return err
		}
	}
	return nil
}

func (b *Batch) Describe() string {
	if b.Label != "" {
		return b.Label
	}
	parts := make([]string, len(b.Actions))
	for i, a := range b.Actions {
		parts[i] = a.Describe()
	}
	return strings.Join(parts, "; ")
}

// Action kinds as written by MarshalAction.
const (
	KindFieldEdit = "field_edit"
	KindDeletion  = "deletion"
	KindSwap      = "swap"
	KindBatch     = "batch"
)

type actionRecord struct {
	Kind       string         `json:"kind"`
	Commit     string         `json:"commit,omitempty"`
	Field      *Field         `json:"field,omitempty"`
	Old        *Value         `json:"old,omitempty"`
	New        *Value         `json:"new,omitempty"`
	OldDeleted bool           `json:"old_deleted,omitempty"`
	NewDeleted bool           `json:"new_deleted,omitempty"`
	A          int            `json:"a,omitempty"`
	B          int            `json:"b,omitempty"`
	Label      string         `json:"label,omitempty"`
	Actions    []actionRecord `json:"actions,omitempty"`
}

func toRecord(a Action) (actionRecord, error) {
	switch a := a.(type) {
	case *FieldEditApplied:
		f := a.Field
		return actionRecord{Kind: KindFieldEdit, Commit: a.Commit.String(), Field: &f, Old: a.Old, New: a.New}, nil
	case *DeletionToggled:
		return actionRecord{Kind: KindDeletion, Commit: a.Commit.String(), OldDeleted: a.Old, NewDeleted: a.New}, nil
	case *OrderSwapped:
		return actionRecord{Kind: KindSwap, A: a.A, B: a.B}, nil
	case *Batch:
		rec := actionRecord{Kind: KindBatch, Label: a.Label}
		for _, child := range a.Actions {
			c, err := toRecord(child)
			if err != nil {
				return actionRecord{}, err
			}
			rec.Actions = append(rec.Actions, c)
		}
		return rec, nil
	}
	return actionRecord{}, fmt.Errorf("unsupported action %T", a)
}

func fromRecord(rec actionRecord) (Action, error) {
	switch rec.Kind {
	case KindFieldEdit:
		if rec.Field == nil {
			return nil, fmt.Errorf("field_edit action without field")
		}
		return &FieldEditApplied{Commit: plumbing.NewHash(rec.Commit), Field: *rec.Field, Old: rec.Old, New: rec.New}, nil
	case KindDeletion:
		return &DeletionToggled{Commit: plumbing.NewHash(rec.Commit), Old: rec.OldDeleted, New: rec.NewDeleted}, nil
	case KindSwap:
		return &OrderSwapped{A: rec.A, B: rec.B}, nil
	case KindBatch:
		b := &Batch{Label: rec.Label}
		for _, c := range rec.Actions {
			child, err := fromRecord(c)
			if err != nil {
				return nil, err
			}
			b.Actions = append(b.Actions, child)
		}
		return b, nil
	}
	return nil, fmt.Errorf("unknown action kind %q", rec.Kind)
}

// MarshalActions encodes actions as a JSON array tagged by kind.
func MarshalActions(actions []Action) ([]byte, error) {
	recs := make([]actionRecord, 0, len(actions))
	for _, a := range actions {
		rec, err := toRecord(a)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return json.Marshal(recs)
}

// UnmarshalActions decodes the output of MarshalActions.
func UnmarshalActions(data []byte) ([]Action, error) {
	var recs []actionRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, err
	}
	actions := make([]Action, 0, len(recs))
	for _, rec := range recs {
		a, err := fromRecord(rec)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, nil
}
