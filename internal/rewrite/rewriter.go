package rewrite

import (
	"context"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/sirupsen/logrus"

	"github.com/kurobon/retcon/internal/state"
)

// CommitWriter persists a new commit object and returns its identity.
type CommitWriter interface {
	WriteCommit(tree plumbing.Hash, parents []plumbing.Hash, author, committer state.Signature, message string) (plumbing.Hash, error)
}

// Rewriter replays a plan onto a CommitWriter.
type Rewriter struct {
	writer CommitWriter
	log    *logrus.Entry
}

func NewRewriter(writer CommitWriter, log *logrus.Entry) *Rewriter {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Rewriter{writer: writer, log: log.WithField("component", "rewriter")}
}

// Execute writes every pick of the plan in order and returns the new tip with the
// identity map. A pick whose resolved parents and metadata equal the original
// keeps its identity and is not written. On a write failure the partial map is
// returned together with a *RewriteError.
func (r *Rewriter) Execute(ctx context.Context, plan *Plan) (plumbing.Hash, IdentityMap, error) {
	ids := make(IdentityMap, len(plan.Steps)+1)
	if !plan.Base.IsZero() {
		ids[plan.Base] = plan.Base
	}

	for _, step := range plan.Steps {
		if step.Action == Drop {
			r.log.WithField("commit", step.Original.String()).Debug("dropping commit")
			continue
		}
		if err := ctx.Err(); err != nil {
			return plumbing.ZeroHash, ids, &RewriteError{At: step.Original, Cause: err}
		}

		parents := make([]plumbing.Hash, len(step.Parents))
		for i, p := range step.Parents {
			parents[i] = ids.Resolve(p)
		}

		if !step.MetadataChanged && sameHashes(parents, step.OriginalParents) {
			ids[step.Original] = step.Original
			continue
		}

		newID, err := r.writer.WriteCommit(step.Tree, parents, step.Author, step.Committer, step.Message)
		if err != nil {
			return plumbing.ZeroHash, ids, &RewriteError{At: step.Original, Cause: err}
		}
		ids[step.Original] = newID
		r.log.WithFields(logrus.Fields{
			"old": step.Original.String(),
			"new": newID.String(),
		}).Debug("rewrote commit")
	}

	return ids.Resolve(plan.Tip), ids, nil
}

func sameHashes(a, b []plumbing.Hash) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
