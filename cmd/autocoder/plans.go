package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/ChamsBouzaiene/autocoder/internal/plans"
)

var plansFlags struct {
	status string
	json   bool
}

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "List and decide implementation plans",
	Long: `List and decide the implementation plans proposed by agent runs.

Plans live in the repository's data directory, so a run waiting for approval
picks up a decision made here from another terminal.`,
}

var plansListCmd = &cobra.Command{
	Use:   "list",
	Short: "List plans, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withPlanStore(cmd.Context(), func(store *plans.SQLiteStore) error {
			status := plans.Status(plansFlags.status)
			if status != "" && !status.Valid() {
				return fmt.Errorf("unknown status %q", plansFlags.status)
			}
			ps, err := store.List(cmd.Context(), status)
			if err != nil {
				return err
			}
			if plansFlags.json {
				return writeJSON(cmd.OutOrStdout(), ps)
			}
			return printPlans(cmd.OutOrStdout(), ps)
		})
	},
}

var plansShowCmd = &cobra.Command{
	Use:   "show <plan-id>",
	Short: "Show one plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPlanStore(cmd.Context(), func(store *plans.SQLiteStore) error {
			p, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), p)
		})
	},
}

var plansApproveCmd = &cobra.Command{
	Use:   "approve <plan-id>",
	Short: "Approve a pending plan",
	Args:  cobra.ExactArgs(1),
	RunE:  decidePlan(plans.StatusApproved),
}

var plansRejectCmd = &cobra.Command{
	Use:   "reject <plan-id>",
	Short: "Reject a plan",
	Args:  cobra.ExactArgs(1),
	RunE:  decidePlan(plans.StatusRejected),
}

func init() {
	plansListCmd.Flags().StringVar(&plansFlags.status, "status", "", "Only plans with this status (pending, approved, executing, rejected)")
	plansListCmd.Flags().BoolVar(&plansFlags.json, "json", false, "Print JSON")

	plansCmd.AddCommand(plansListCmd)
	plansCmd.AddCommand(plansShowCmd)
	plansCmd.AddCommand(plansApproveCmd)
	plansCmd.AddCommand(plansRejectCmd)
}

func decidePlan(status plans.Status) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return withPlanStore(cmd.Context(), func(store *plans.SQLiteStore) error {
			if err := store.SetStatus(cmd.Context(), args[0], status); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "plan %s %s\n", args[0], status)
			return nil
		})
	}
}

func withPlanStore(ctx context.Context, fn func(*plans.SQLiteStore) error) error {
	env, err := prepareRuntimeEnv(ctx, rootFlags.repo, "", os.Stderr)
	if err != nil {
		return err
	}
	defer env.Close()
	return fn(env.Plans)
}

func printPlans(w io.Writer, ps []plans.Plan) error {
	if len(ps) == 0 {
		_, err := fmt.Fprintln(w, "no plans")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tCREATED\tFILES\tTITLE")
	for _, p := range ps {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			p.ID, p.Status, p.CreatedAt.Local().Format(time.DateTime), strings.Join(p.Files, ","), p.Title)
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
