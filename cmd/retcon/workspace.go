package main

import (
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kurobon/retcon/internal/config"
	"github.com/kurobon/retcon/internal/git"
	"github.com/kurobon/retcon/internal/journal"
	"github.com/kurobon/retcon/internal/session"
	"github.com/kurobon/retcon/internal/state"
)

// workspace is one CLI invocation's view of the repository: the session with
// its journaled undo history replayed.
type workspace struct {
	cfg     *config.Config
	repo    *git.Repository
	sess    *session.Session
	journal *journal.Journal
	loaded  *state.Snapshot
	log     *logrus.Entry
}

func openWorkspace(cmd *cobra.Command, g *globalFlags) (*workspace, error) {
	cfg, err := g.load(cmd)
	if err != nil {
		return nil, err
	}
	log := logrus.WithField("app", "retcon")

	repo, err := git.Open(g.repo, git.Options{Branch: cfg.Branch, Log: log})
	if err != nil {
		return nil, err
	}
	sess, err := session.New(repo, session.Options{
		Limit:      cfg.Limit,
		SyncAuthor: cfg.SyncAuthorToCommitter,
		Log:        log,
	})
	if err != nil {
		return nil, err
	}

	w := &workspace{cfg: cfg, repo: repo, sess: sess, loaded: sess.Snapshot(), log: log}
	path := cfg.JournalPath(repo.GitDir(), journal.FileName)
	if path == "" {
		return w, nil
	}
	if w.journal, err = journal.Open(path); err != nil {
		return nil, err
	}

	entry, found, err := w.journal.Load(w.loaded)
	if err != nil {
		log.WithError(err).Warn("ignoring unreadable journal entry")
		return w, nil
	}
	if found {
		if err := sess.Restore(entry.Undo, entry.Redo); err != nil {
			log.WithError(err).Warn("ignoring journal entry that no longer applies")
		}
	}
	return w, nil
}

// close persists the undo history. After a write the entry of the old history
// is dropped.
func (w *workspace) close() error {
	if w.journal == nil {
		return nil
	}
	defer w.journal.Close()

	current := w.sess.Snapshot()
	if current != w.loaded {
		if err := w.journal.Delete(w.loaded); err != nil {
			return err
		}
	}
	undo, redo := w.sess.Export()
	if len(undo) == 0 && len(redo) == 0 {
		return w.journal.Delete(current)
	}
	return w.journal.Save(current, undo, redo)
}

// run opens the workspace, runs fn and saves the journal even when fn fails.
func run(cmd *cobra.Command, g *globalFlags, fn func(w *workspace) error) error {
	w, err := openWorkspace(cmd, g)
	if err != nil {
		return err
	}
	runErr := fn(w)
	if err := w.close(); err != nil && runErr == nil {
		return err
	}
	return runErr
}

// resolve maps user input to loaded commit identities.
func (w *workspace) resolve(revs []string) ([]plumbing.Hash, error) {
	ids := make([]plumbing.Hash, 0, len(revs))
	for _, rev := range revs {
		id, err := w.sess.Lookup(rev)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
