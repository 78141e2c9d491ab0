package rewrite

import (
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"

	"github.com/kurobon/retcon/internal/state"
)

// StepAction is what the rewriter does with one slot of the range.
type StepAction int

const (
	Pick StepAction = iota
	Drop
)

func (a StepAction) String() string {
	if a == Drop {
		return "drop"
	}
	return "pick"
}

// CommitSpec describes one commit of the rewrite range.
type CommitSpec struct {
	Original plumbing.Hash
	Slot     int
	Action   StepAction
	// Parents are original identities, resolved through the IdentityMap at execution.
	Parents         []plumbing.Hash
	OriginalParents []plumbing.Hash
	Author          state.Signature
	Committer       state.Signature
	Message         string
	Tree            plumbing.Hash
	// MetadataChanged is set when the effective metadata differs from the original.
	MetadataChanged bool
}

// Plan is the ordered, oldest-first list of steps that produces the new history.
type Plan struct {
	Branch string
	OldTip plumbing.Hash
	// Base is the first commit below the range, or the zero hash when the range
	// reaches a root.
	Base  plumbing.Hash
	Steps []CommitSpec
	// Tip is the original identity whose mapping becomes the new branch tip.
	Tip plumbing.Hash
}

// Empty reports whether applying the plan would change nothing.
func (p *Plan) Empty() bool {
	return len(p.Steps) == 0
}

func (p *Plan) count(a StepAction) int {
	n := 0
	for _, s := range p.Steps {
		if s.Action == a {
			n++
		}
	}
	return n
}

func (p *Plan) Picks() int { return p.count(Pick) }
func (p *Plan) Drops() int { return p.count(Drop) }

// IdentityMap maps original commit identities to rewritten ones.
type IdentityMap map[plumbing.Hash]plumbing.Hash

// Resolve returns the rewritten identity of h, or h itself when it was not rewritten.
func (m IdentityMap) Resolve(h plumbing.Hash) plumbing.Hash {
	if mapped, ok := m[h]; ok {
		return mapped
	}
	return h
}

// Rewritten counts entries that map to a different identity.
func (m IdentityMap) Rewritten() int {
	n := 0
	for from, to := range m {
		if from != to {
			n++
		}
	}
	return n
}

// CommitChange lists the fields a pick changes on one commit.
type CommitChange struct {
	Commit plumbing.Hash
	Fields []state.Field
}

// Summary is the human-facing description of a plan.
type Summary struct {
	Deleted   int
	Modified  int
	Reordered bool
	Changes   []CommitChange
}

const summaryDetailLimit = 5

// Summarize compares each step of the plan with the snapshot it was built from.
// Changes are listed newest first.
func Summarize(plan *Plan, snap *state.Snapshot) Summary {
	var sum Summary
	for i := len(plan.Steps) - 1; i >= 0; i-- {
		step := plan.Steps[i]
		if snap.At(step.Slot).ID != step.Original {
			sum.Reordered = true
		}
		if step.Action == Drop {
			sum.Deleted++
			continue
		}
		if !step.MetadataChanged {
			continue
		}
		orig, _ := snap.Lookup(step.Original)
		eff := state.Effective{Author: step.Author, Committer: step.Committer, Message: step.Message}
		sum.Modified++
		sum.Changes = append(sum.Changes, CommitChange{Commit: step.Original, Fields: eff.ChangedFields(orig)})
	}
	return sum
}

// Lines renders the summary for confirmation prompts.
func (s Summary) Lines() []string {
	var lines []string
	if s.Deleted > 0 {
		lines = append(lines, fmt.Sprintf("%d commit(s) will be deleted", s.Deleted))
	}
	if s.Modified > 0 {
		lines = append(lines, fmt.Sprintf("%d commit(s) with modified metadata", s.Modified))
	}
	if s.Reordered {
		lines = append(lines, "Commit order has been changed")
	}
	for i, c := range s.Changes {
		if i == summaryDetailLimit {
			lines = append(lines, fmt.Sprintf("  ... and %d more", len(s.Changes)-summaryDetailLimit))
			break
		}
		names := make([]string, len(c.Fields))
		for j, f := range c.Fields {
			names[j] = strings.ReplaceAll(f.String(), "_", " ")
		}
		lines = append(lines, fmt.Sprintf("  %s - %s", state.ShortHash(c.Commit), strings.Join(names, ", ")))
	}
	return lines
}
