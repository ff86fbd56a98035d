package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/brunobiangulo/vistag/store"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs [run-id]",
	Short: "Inspect the audit store",
	Long: `Without arguments, lists recent runs and totals. With a run ID, prints the
run and every branch call (instruction and raw response) as JSON.

Requires audit_db_path in the config or VISTAG_AUDIT_DB.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRuns,
}

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "Number of runs to list")
}

func runRuns(cmd *cobra.Command, args []string) error {
	path := cfg.AuditPath()
	if path == "" {
		return fmt.Errorf("no audit store configured (set audit_db_path or VISTAG_AUDIT_DB)")
	}
	s, err := store.New(path)
	if err != nil {
		return err
	}
	defer s.Close()
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		run, err := s.GetRun(ctx, args[0])
		if err != nil {
			return fmt.Errorf("run %s: %w", args[0], err)
		}
		calls, err := s.BranchCalls(ctx, args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(map[string]any{"run": run, "branch_calls": calls})
	}

	runs, err := s.ListRuns(ctx, runsLimit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tCREATED\tSTATUS\tTAGS\tCOST\tELAPSED\tIMAGE")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%.4f\t%.2fs\t%s\n",
			r.ID, r.CreatedAt.Local().Format("2006-01-02 15:04:05"), r.Status, r.TagCount,
			r.TotalCost, float64(r.ElapsedMS)/1000, shorten(r.ImageRef, 60))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	st, err := s.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d runs (%d succeeded), %d branch calls, total cost %.4f\n",
		st.Runs, st.Succeeded, st.BranchCalls, st.TotalCost)
	return nil
}

// shorten keeps data URLs from flooding the table.
func shorten(s string, n int) string {
	if strings.HasPrefix(s, "data:") {
		s, _, _ = strings.Cut(s, ",")
		return s + ",..."
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return "..." + string(r[len(r)-n+3:])
}
