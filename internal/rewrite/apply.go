package rewrite

import (
	"context"
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/sirupsen/logrus"
)

// BackupPrefix is where the pre-rewrite tip of each branch is kept.
const BackupPrefix = "refs/original/"

// BackupRef returns the backup reference name for a branch.
func BackupRef(branch string) plumbing.ReferenceName {
	return plumbing.ReferenceName(BackupPrefix + plumbing.NewBranchReferenceName(branch).String())
}

// Storage is everything the apply protocol needs from the repository.
type Storage interface {
	CommitWriter
	CreateRef(name plumbing.ReferenceName, target plumbing.Hash) error
	// UpdateRef moves name to target only if it still points at expected.
	UpdateRef(name plumbing.ReferenceName, expected, target plumbing.Hash) error
	DeleteRef(name plumbing.ReferenceName) error
	// StashSave stashes uncommitted changes and returns the stash commit, or the
	// zero hash when the working tree is clean.
	StashSave() (plumbing.Hash, error)
	StashRestore(stash plumbing.Hash) error
}

// WorktreeSyncer is implemented by storages whose working tree must follow the
// branch after its ref moves.
type WorktreeSyncer interface {
	SyncWorktree(branch string, tip plumbing.Hash) error
}

// DryRunner is implemented by storages that can hand out a writer whose objects
// are discarded.
type DryRunner interface {
	DryRun() CommitWriter
}

type Options struct {
	// DryRun executes the rewrite against a throwaway object store and touches no refs.
	DryRun bool
}

// Result describes a finished apply.
type Result struct {
	Branch     string
	OldTip     plumbing.Hash
	NewTip     plumbing.Hash
	Backup     plumbing.ReferenceName
	Stash      plumbing.Hash
	Identities IdentityMap
	DryRun     bool
	// Warnings are non-fatal problems, such as a stash that could not be restored.
	Warnings []error
}

// Applier runs the transactional apply protocol.
type Applier struct {
	storage Storage
	log     *logrus.Entry
}

func NewApplier(storage Storage, log *logrus.Entry) *Applier {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Applier{storage: storage, log: log.WithField("component", "apply")}
}

// Apply commits a plan to the repository:
//
//  1. stash uncommitted changes
//  2. create the backup ref at the old tip
//  3. write the rewritten commits
//  4. move the branch with a compare-and-swap
//  5. restore the stash
//
// A failure in steps 3 or 4 deletes the backup and restores the stash. ctx is
// only consulted before step 2.
func (a *Applier) Apply(ctx context.Context, plan *Plan, opts Options) (*Result, error) {
	res := &Result{
		Branch: plan.Branch,
		OldTip: plan.OldTip,
		NewTip: plan.OldTip,
		DryRun: opts.DryRun,
	}
	if plan.Empty() {
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if opts.DryRun {
		return a.dryRun(ctx, plan, res)
	}

	log := a.log.WithFields(logrus.Fields{"branch": plan.Branch, "old_tip": plan.OldTip.String()})

	// 1. Stash
	stash, err := a.storage.StashSave()
	if err != nil {
		return nil, ErrDirtyTreeStashFailed.Wrap(err)
	}
	res.Stash = stash
	if !stash.IsZero() {
		log = log.WithField("stash", stash.String())
		log.Debug("stashed uncommitted changes")
	}
	if err := ctx.Err(); err != nil {
		a.restoreStash(log, stash)
		return nil, err
	}

	// 2. Backup
	backup := BackupRef(plan.Branch)
	if err := a.storage.CreateRef(backup, plan.OldTip); err != nil {
		a.restoreStash(log, stash)
		if ErrBackupRefExists.Is(err) {
			return nil, err
		}
		return nil, fmt.Errorf("create backup ref %s: %w", backup, err)
	}
	res.Backup = backup
	log.WithField("backup", backup.String()).Debug("created backup ref")

	// From here on the protocol runs to success or rollback.
	ctx = context.WithoutCancel(ctx)

	// 3. Rewrite
	newTip, ids, err := NewRewriter(a.storage, a.log).Execute(ctx, plan)
	if err != nil {
		a.rollback(log, backup, stash)
		return nil, err
	}
	res.NewTip = newTip
	res.Identities = ids
	log = log.WithField("new_tip", newTip.String())

	// 4. Move the branch
	branchRef := plumbing.NewBranchReferenceName(plan.Branch)
	if err := a.storage.UpdateRef(branchRef, plan.OldTip, newTip); err != nil {
		a.rollback(log, backup, stash)
		if ErrRefUpdateConflict.Is(err) {
			return nil, err
		}
		return nil, ErrRefUpdateConflict.Wrap(err, branchRef, plan.OldTip.String()[:7])
	}
	log.Debug("updated branch ref")

	if syncer, ok := a.storage.(WorktreeSyncer); ok {
		if err := syncer.SyncWorktree(plan.Branch, newTip); err != nil {
			log.WithError(err).Warn("could not sync working tree to the new tip")
			res.Warnings = append(res.Warnings, fmt.Errorf("sync working tree: %w", err))
		}
	}

	// 5. Restore the stash
	if !stash.IsZero() {
		if err := a.storage.StashRestore(stash); err != nil {
			log.WithError(err).Warn("stash restore failed")
			res.Warnings = append(res.Warnings, ErrStashRestoreFailed.Wrap(err, stash.String()[:7]))
		}
	}

	log.WithField("rewritten", ids.Rewritten()).Info("history rewritten")
	return res, nil
}

func (a *Applier) dryRun(ctx context.Context, plan *Plan, res *Result) (*Result, error) {
	runner, ok := a.storage.(DryRunner)
	if !ok {
		return nil, fmt.Errorf("storage does not support dry runs")
	}
	newTip, ids, err := NewRewriter(runner.DryRun(), a.log).Execute(ctx, plan)
	if err != nil {
		return nil, err
	}
	res.NewTip = newTip
	res.Identities = ids
	return res, nil
}

func (a *Applier) rollback(log *logrus.Entry, backup plumbing.ReferenceName, stash plumbing.Hash) {
	log.Warn("rolling back")
	if err := a.storage.DeleteRef(backup); err != nil {
		log.WithError(err).Warn("could not delete backup ref during rollback")
	}
	a.restoreStash(log, stash)
}

func (a *Applier) restoreStash(log *logrus.Entry, stash plumbing.Hash) {
	if stash.IsZero() {
		return
	}
	if err := a.storage.StashRestore(stash); err != nil {
		log.WithError(err).Warn("could not restore stash")
	}
}
