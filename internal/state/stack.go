package state

// Stack is the undo/redo history of applied actions.
type Stack struct {
	undo []Action
	redo []Action
}

func NewStack() *Stack {
	return &Stack{}
}

// Record pushes an action that has already been applied and clears the redo side.
func (s *Stack) Record(a Action) {
	s.undo = append(s.undo, a)
	s.redo = nil
}

// Undo reverts the most recent action. State is unchanged when there is nothing to undo.
func (s *Stack) Undo(store *Store, order *Order) (Action, error) {
	if len(s.undo) == 0 {
		return nil, ErrNothingToUndo.New()
	}
	a := s.undo[len(s.undo)-1]
	if err := a.Revert(store, order); err != nil {
		return nil, err
	}
	s.undo = s.undo[:len(s.undo)-1]
	s.redo = append(s.redo, a)
	return a, nil
}

// Redo re-applies the most recently undone action.
func (s *Stack) Redo(store *Store, order *Order) (Action, error) {
	if len(s.redo) == 0 {
		return nil, ErrNothingToRedo.New()
	}
	a := s.redo[len(s.redo)-1]
	if err := a.Apply(store, order); err != nil {
		return nil, err
	}
	s.redo = s.redo[:len(s.redo)-1]
	s.undo = append(s.undo, a)
	return a, nil
}

func (s *Stack) CanUndo() bool { return len(s.undo) > 0 }
func (s *Stack) CanRedo() bool { return len(s.redo) > 0 }

// Depth returns the sizes of the undo and redo sides.
func (s *Stack) Depth() (undo, redo int) {
	return len(s.undo), len(s.redo)
}

func (s *Stack) Clear() {
	s.undo = nil
	s.redo = nil
}

// Export returns copies of both sides, oldest first.
func (s *Stack) Export() (undo, redo []Action) {
	return append([]Action(nil), s.undo...), append([]Action(nil), s.redo...)
}

// Import replaces the stack contents without applying anything.
func (s *Stack) Import(undo, redo []Action) {
	s.undo = append([]Action(nil), undo...)
	s.redo = append([]Action(nil), redo...)
}
