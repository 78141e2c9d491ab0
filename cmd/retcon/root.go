package main

import (
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kurobon/retcon/internal/config"
)

type globalFlags struct {
	repo       string
	branch     string
	limit      int
	separate   bool
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "retcon",
		Short: "Edit, delete and reorder commits of a branch",
		Long: `retcon rewrites the history of the current branch.

Changes are staged first: edit metadata, delete commits and move them up or
down. Pending changes survive between invocations and can be undone. Nothing
touches the repository until "retcon write", which keeps a backup of the old
tip under refs/original/ and stashes uncommitted work around the rewrite.

Examples:
  retcon log
  retcon edit 1a2b3c4 author-email alice@example.com
  retcon edit author-name "Alice" --commit 1a2b3c4 --commit 5d6e7f8
  retcon delete 5d6e7f8
  retcon move 3 up
  retcon status
  retcon write`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.repo, "repo", ".", "path to the repository")
	pf.StringVar(&g.branch, "branch", "", "branch to edit (default: the checked out branch)")
	pf.IntVarP(&g.limit, "limit", "n", -1, "number of commits to load, 0 for all")
	pf.BoolVarP(&g.separate, "separate-author-committer", "s", false, "do not copy author edits to the committer")
	pf.StringVar(&g.configPath, "config", "", "config file (default: <repo>/"+config.FileName+")")
	pf.StringVar(&g.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(
		newLogCmd(g),
		newEditCmd(g),
		newDeleteCmd(g),
		newMoveCmd(g),
		newUndoCmd(g),
		newRedoCmd(g),
		newStatusCmd(g),
		newWriteCmd(g),
		newDiscardCmd(g),
		newBackupCmd(g),
		newServeCmd(g),
	)
	return root
}

// load resolves the configuration: file, then environment, then flags.
func (g *globalFlags) load(cmd *cobra.Command) (*config.Config, error) {
	path := g.configPath
	if path == "" {
		path = filepath.Join(g.repo, config.FileName)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("branch") {
		cfg.Branch = g.branch
	}
	if flags.Changed("limit") && g.limit >= 0 {
		cfg.Limit = g.limit
	}
	if flags.Changed("separate-author-committer") {
		cfg.SyncAuthorToCommitter = !g.separate
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = g.logLevel
	}

	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(lvl)
	}
	return cfg, nil
}
