package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ChamsBouzaiene/autocoder/internal/config"
	"github.com/ChamsBouzaiene/autocoder/internal/session"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect recorded runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs of this repository, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		repoRoot, store, err := openRunStore()
		if err != nil {
			return err
		}
		runs, err := store.List(repoRoot)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no runs")
			return nil
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSTOP\tUPDATED\tTITLE")
		for _, r := range runs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.StopReason, r.UpdatedAt.Local().Format(time.DateTime), r.Title)
		}
		return tw.Flush()
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Print a recorded run as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repoRoot, store, err := openRunStore()
		if err != nil {
			return err
		}
		run, err := store.Load(args[0], repoRoot)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), run)
	},
}

func init() {
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
}

func openRunStore() (string, *session.Store, error) {
	repoRoot, err := resolveRepoRoot(rootFlags.repo)
	if err != nil {
		return "", nil, err
	}
	cfg, err := config.Load(repoRoot)
	if err != nil {
		return "", nil, err
	}
	return repoRoot, session.NewStore(cfg.SessionsDir()), nil
}
