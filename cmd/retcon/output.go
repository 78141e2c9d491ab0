package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/kurobon/retcon/internal/rewrite"
	"github.com/kurobon/retcon/internal/session"
	"github.com/kurobon/retcon/internal/state"
)

var (
	hashColor    = color.New(color.FgYellow)
	deletedColor = color.New(color.FgRed)
	changedColor = color.New(color.FgGreen)
	movedColor   = color.New(color.FgCyan)
	dimColor     = color.New(color.Faint)
	warnColor    = color.New(color.FgYellow, color.Bold)
)

// markers renders the D/M/R/merge flags of a row as a fixed-width column.
func markers(r session.Row) string {
	flag := func(set bool, c *color.Color, s string) string {
		if !set {
			return " "
		}
		return c.Sprint(s)
	}
	return flag(r.Deleted, deletedColor, "D") +
		flag(r.Modified, changedColor, "M") +
		flag(r.Moved, movedColor, "R") +
		flag(r.Merge(), dimColor, "⑂")
}

func printRows(out io.Writer, rows []session.Row) {
	for _, r := range rows {
		e := r.Effective
		summary := state.Summary(e.Message)
		if r.Deleted {
			summary = deletedColor.Sprint(summary)
		}
		fmt.Fprintf(out, "%3d %s %s %-14s %s %s\n",
			r.Position,
			hashColor.Sprint(state.ShortHash(r.ID)),
			markers(r),
			humanize.Time(e.Author.When),
			dimColor.Sprintf("%s <%s>", e.Author.Name, e.Author.Email),
			summary,
		)
	}
}

func printStatus(out io.Writer, st session.Status) {
	fmt.Fprintf(out, "On branch %s, %s loaded\n", st.Branch, plural(st.Loaded, "commit"))
	if st.Filter != "" {
		fmt.Fprintf(out, "Filter: %q\n", st.Filter)
	}
	if st.Modified == 0 && st.Deleted == 0 && !st.Reordered {
		fmt.Fprintln(out, "No pending changes")
	}
	if st.Undo > 0 || st.Redo > 0 {
		fmt.Fprintf(out, "%s to undo, %s to redo\n", plural(st.Undo, "action"), plural(st.Redo, "action"))
	}
}

func printPlan(out io.Writer, plan *rewrite.Plan, sum rewrite.Summary) {
	if plan.Empty() {
		return
	}
	for _, line := range sum.Lines() {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintf(out, "\nRewrite plan (oldest first), %s and %s:\n",
		plural(plan.Picks(), "pick"), plural(plan.Drops(), "drop"))
	for _, step := range plan.Steps {
		action := changedColor.Sprint("pick")
		if step.Action == rewrite.Drop {
			action = deletedColor.Sprint("drop")
		}
		fmt.Fprintf(out, "  %s %s %s\n", action, hashColor.Sprint(state.ShortHash(step.Original)), state.Summary(step.Message))
	}
}

func printResult(out io.Writer, res *rewrite.Result) {
	if res.OldTip == res.NewTip {
		fmt.Fprintln(out, "Nothing to write")
		return
	}
	verb := "Rewrote"
	if res.DryRun {
		verb = "Would rewrite"
	}
	fmt.Fprintf(out, "%s %s: %s -> %s (%s)\n", verb, res.Branch,
		hashColor.Sprint(state.ShortHash(res.OldTip)),
		hashColor.Sprint(state.ShortHash(res.NewTip)),
		plural(res.Identities.Rewritten(), "new commit"))
	if res.Backup != "" {
		fmt.Fprintf(out, "Previous tip kept at %s\n", res.Backup)
	}
	for _, w := range res.Warnings {
		warnColor.Fprintf(out, "warning: %v\n", w)
	}
}

func plural(n int, noun string) string {
	s := humanize.Comma(int64(n)) + " " + noun
	if n != 1 {
		s += "s"
	}
	return s
}

func describe(a state.Action) string {
	return strings.TrimSpace(a.Describe())
}
