package main

import (
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/treekeep/treekeep/internal/engine"
	"github.com/treekeep/treekeep/internal/output"
	"github.com/treekeep/treekeep/internal/protocol"
	"github.com/treekeep/treekeep/internal/ui"
)

func newScanCmd() *cobra.Command {
	var (
		pretty     bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:     "scan [request]",
		Short:   "Report live worktrees and tracking drift",
		GroupID: GroupOps,
		Args:    cobra.MaximumNArgs(1),
		Long: `Scan the repository's worktrees and report branch, path, dirty and
merge state, ledger drift (missing and extra rows), the resolved
protected-branch set, and advisory recommendations.

Scan is read-only: it never removes anything and never mutates the
ledger. At a terminal the report renders as a table; use --json to
force the JSON envelope, or --pretty to force the table.`,
		Example: `  treekeep scan
  treekeep scan --json
  treekeep scan '{"repo_root":"/path/to/repo"}'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			payload, err := readPayload(cmd, args)
			if err != nil {
				return err
			}
			var req engine.ScanRequest
			if err := protocol.DecodeRequest(payload, &req); err != nil {
				return err
			}

			env, err := engine.Prepare(ctx, currentConfig(), req.Common)
			if err != nil {
				return emit(ctx, protocol.Fail(err))
			}

			res, err := env.Scan(ctx, req)
			if err != nil {
				return emit(ctx, protocol.Fail(err))
			}

			if pretty || (!jsonOutput && isatty.IsTerminal(os.Stdout.Fd())) {
				printScanTable(cmd, res)
				return nil
			}
			return emit(ctx, protocol.Ok(res))
		},
	}

	cmd.Flags().BoolVar(&pretty, "pretty", false, "Render a table instead of the JSON envelope")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Force the JSON envelope even at a terminal")
	cmd.MarkFlagsMutuallyExclusive("pretty", "json")

	return cmd
}

func printScanTable(cmd *cobra.Command, res *engine.ScanResult) {
	out := output.FromContext(cmd.Context())

	if len(res.Worktrees) == 0 {
		out.Println("No worktrees found")
	} else {
		headers := []string{"BRANCH", "PATH", "DIRTY", "MERGED", "STATUS"}
		var rows [][]string
		for _, wt := range res.Worktrees {
			dirty := ""
			if wt.Dirty {
				dirty = "*"
			}
			merged := ""
			if wt.Merged {
				merged = "yes"
			}
			status := string(wt.Status)
			if !wt.Tracked {
				status = "untracked"
			}
			rows = append(rows, []string{wt.Branch, wt.Path, dirty, merged, status})
		}
		out.Print(ui.RenderTable(headers, rows))
	}

	if len(res.TrackingMissingRows) > 0 {
		out.Printf("Untracked worktrees: %s\n", strings.Join(res.TrackingMissingRows, ", "))
	}
	if len(res.TrackingExtraRows) > 0 {
		out.Printf("Stale ledger rows: %s\n", strings.Join(res.TrackingExtraRows, ", "))
	}
	for _, rec := range res.Recommendations {
		out.Printf("  - %s\n", rec)
	}
}
