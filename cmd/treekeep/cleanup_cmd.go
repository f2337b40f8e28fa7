package main

import (
	"github.com/spf13/cobra"

	"github.com/treekeep/treekeep/internal/engine"
	"github.com/treekeep/treekeep/internal/protocol"
)

func newCleanupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "cleanup [request]",
		Short:   "Remove finished worktrees and their branches",
		GroupID: GroupOps,
		Args:    cobra.MaximumNArgs(1),
		Long: `Remove worktrees whose branches are merged into the integration
branch and have no unique commits. Without a "branch" field the whole
repository is processed; worktree failures are collected per outcome
and never abort the batch.

Protected branches are never deleted; at most their worktree is
removed. Dirty worktrees are skipped, unmerged branches are skipped.
The protected-branch set must resolve or cleanup refuses to run.

In single-branch mode, "require_clean": false forces past the dirty
check. It requires the caller's prior explicit approval and is ignored
in batch mode.`,
		Example: `  treekeep cleanup
  treekeep cleanup '{"branch":"feature/login"}'
  treekeep cleanup '{"branch":"feature/spike","require_clean":false}'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			payload, err := readPayload(cmd, args)
			if err != nil {
				return err
			}
			var req engine.CleanupRequest
			if err := protocol.DecodeRequest(payload, &req); err != nil {
				return err
			}

			env, err := engine.Prepare(ctx, currentConfig(), req.Common)
			if err != nil {
				return emit(ctx, protocol.Fail(err))
			}

			res, err := env.Cleanup(ctx, req)
			if err != nil {
				return emit(ctx, protocol.Fail(err))
			}
			return emit(ctx, protocol.Ok(res))
		},
	}

	return cmd
}
