package main

import (
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kurobon/retcon/internal/git"
	"github.com/kurobon/retcon/internal/server"
	"github.com/kurobon/retcon/internal/session"
	"github.com/kurobon/retcon/internal/state"
)

func openRepository(cmd *cobra.Command, g *globalFlags) (*git.Repository, error) {
	cfg, err := g.load(cmd)
	if err != nil {
		return nil, err
	}
	return git.Open(g.repo, git.Options{Branch: cfg.Branch, Log: logrus.WithField("app", "retcon")})
}

func newBackupCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Manage the refs/original/ backups left by rewrites",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List backups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, err := openRepository(cmd, g)
			if err != nil {
				return err
			}
			backups, err := repo.Backups()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(backups) == 0 {
				fmt.Fprintln(out, "No backups")
			}
			for _, b := range backups {
				fmt.Fprintf(out, "%-20s %s %s\n", b.Branch, hashColor.Sprint(state.ShortHash(b.Target)), dimColor.Sprint(b.Ref))
			}
			return nil
		},
	}

	branchArg := func(repo *git.Repository, args []string) string {
		if len(args) == 1 {
			return args[0]
		}
		return repo.Branch()
	}

	restore := &cobra.Command{
		Use:   "restore [branch]",
		Short: "Reset a branch to its backup and remove the backup",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := openRepository(cmd, g)
			if err != nil {
				return err
			}
			b, err := repo.RestoreBackup(branchArg(repo, args))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s reset to %s\n", b.Branch, hashColor.Sprint(state.ShortHash(b.Target)))
			return nil
		},
	}

	drop := &cobra.Command{
		Use:   "drop [branch]",
		Short: "Delete the backup of a branch",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := openRepository(cmd, g)
			if err != nil {
				return err
			}
			b, err := repo.DropBackup(branchArg(repo, args))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "dropped %s (was %s)\n", b.Ref, state.ShortHash(b.Target))
			return nil
		},
	}

	cmd.AddCommand(list, restore, drop)
	return cmd
}

func newServeCmd(g *globalFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("listen") {
				cfg.ListenAddr = addr
			}
			log := logrus.WithField("app", "retcon")
			open := func(path string) (session.Storage, error) {
				return git.Open(path, git.Options{Branch: cfg.Branch, Log: log})
			}
			srv := server.NewServer(open, session.Options{
				Limit:      cfg.Limit,
				SyncAuthor: cfg.SyncAuthorToCommitter,
				Log:        log,
			}, log)
			log.Infof("Server listening on %s", cfg.ListenAddr)
			return http.ListenAndServe(cfg.ListenAddr, srv)
		},
	}
	cmd.Flags().StringVar(&addr, "listen", "", "address to listen on")
	return cmd
}
