package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kurobon/retcon/internal/rewrite"
	"github.com/kurobon/retcon/internal/state"
)

func newLogCmd(g *globalFlags) *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the loaded history with pending changes applied",
		Long: `Show the loaded commits, newest first, with pending changes applied.

Markers: D deleted, M metadata changed, R moved, ⑂ merge commit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, g, func(w *workspace) error {
				w.sess.SetFilter(filter)
				printRows(cmd.OutOrStdout(), w.sess.Visible())
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&filter, "grep", "g", "", "only show commits whose author, message or hash matches")
	return cmd
}

func fieldHelp() string {
	names := make([]string, 0, len(state.Fields()))
	for _, f := range state.Fields() {
		names = append(names, f.String())
	}
	return strings.Join(names, ", ")
}

func newEditCmd(g *globalFlags) *cobra.Command {
	var commits []string
	cmd := &cobra.Command{
		Use:   "edit [commit] <field> <value>",
		Short: "Stage a metadata edit",
		Long: `Stage a new value for one metadata field.

Fields: ` + fieldHelp() + `.
Dates use "YYYY-MM-DD HH:MM:SS +ZZZZ"; the offset may be omitted for UTC.

Pass --commit several times to apply the same value to many commits as a
single undoable edit.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 3 {
				commits = append([]string{args[0]}, commits...)
				args = args[1:]
			}
			if len(commits) == 0 {
				return fmt.Errorf("no commit given")
			}
			field, err := state.ParseField(args[0])
			if err != nil {
				return err
			}
			return run(cmd, g, func(w *workspace) error {
				ids, err := w.resolve(commits)
				if err != nil {
					return err
				}
				a, err := w.sess.ApplyBatchEdit(ids, field, args[1])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), describe(a))
				return nil
			})
		},
	}
	cmd.Flags().StringArrayVarP(&commits, "commit", "c", nil, "commit to edit (repeatable)")
	return cmd
}

func newDeleteCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <commit>...",
		Short: "Toggle the deletion mark of commits",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, g, func(w *workspace) error {
				ids, err := w.resolve(args)
				if err != nil {
					return err
				}
				for _, id := range ids {
					deleted, err := w.sess.ToggleDelete(id)
					if err != nil {
						return err
					}
					verb := "restored"
					if deleted {
						verb = "marked for deletion"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", state.ShortHash(id), verb)
				}
				return nil
			})
		},
	}
}

func newMoveCmd(g *globalFlags) *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "move <position> <up|down>",
		Short: "Move the commit at a position one step newer (up) or older (down)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pos, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid position %q", args[0])
			}
			dir, err := state.ParseDirection(args[1])
			if err != nil {
				return err
			}
			return run(cmd, g, func(w *workspace) error {
				for i := 0; i < steps; i++ {
					if pos, err = w.sess.MoveCommit(pos, dir); err != nil {
						return err
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "now at position %d\n", pos)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 1, "number of single-step moves")
	return cmd
}

func newUndoCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "undo",
		Short: "Undo the last staged change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, g, func(w *workspace) error {
				a, err := w.sess.Undo()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "undid:", describe(a))
				return nil
			})
		},
	}
}

func newRedoCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "redo",
		Short: "Redo the last undone change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, g, func(w *workspace) error {
				a, err := w.sess.Redo()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "redid:", describe(a))
				return nil
			})
		},
	}
}

func newStatusCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Aliases: []string{"preview"},
		Short:   "Show pending changes and the rewrite they would produce",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, g, func(w *workspace) error {
				out := cmd.OutOrStdout()
				printStatus(out, w.sess.Status())
				plan, sum, err := w.sess.PreviewPlan()
				if err != nil {
					return err
				}
				printPlan(out, plan, sum)
				return nil
			})
		},
	}
}

func newWriteCmd(g *globalFlags) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "write",
		Short: "Rewrite the branch with the pending changes",
		Long: `Rewrite the branch with the pending changes.

Uncommitted work is stashed for the duration of the rewrite and restored
afterwards. The previous tip is kept at refs/original/refs/heads/<branch>;
"retcon backup restore" puts it back. A branch that tracks a remote will
need a force push afterwards.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, g, func(w *workspace) error {
				out := cmd.OutOrStdout()
				if w.repo.HasUpstream() && !dryRun {
					warnColor.Fprintf(out, "warning: %s tracks a remote; pushing the rewrite will need --force\n", w.repo.Branch())
				}
				res, err := w.sess.WriteChanges(cmd.Context(), rewrite.Options{DryRun: dryRun})
				if err != nil {
					return err
				}
				printResult(out, res)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "compute the new identities without touching the repository")
	return cmd
}

func newDiscardCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "discard",
		Short: "Drop every pending change and the undo history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, g, func(w *workspace) error {
				w.sess.DiscardAllPending()
				fmt.Fprintln(cmd.OutOrStdout(), "Discarded all pending changes")
				return nil
			})
		},
	}
}
