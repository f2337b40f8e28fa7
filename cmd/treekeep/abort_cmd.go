package main

import (
	"github.com/spf13/cobra"

	"github.com/treekeep/treekeep/internal/engine"
	"github.com/treekeep/treekeep/internal/protocol"
)

func newAbortCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "abort [request]",
		Short:   "Force-discard a worktree, bypassing merge checks",
		GroupID: GroupOps,
		Args:    cobra.MaximumNArgs(1),
		Long: `Discard a worktree regardless of merge state. Uncommitted changes
require "approved": true or the operation refuses. Branch deletion
(local and remote) happens only when explicitly requested and never for
a protected branch; aborting a protected branch's worktree requires
"keep_branch_ack": true acknowledging the branch is preserved.

The ledger record is marked abandoned, keeping an audit trail of the
discarded work.`,
		Example: `  treekeep abort '{"branch":"feature/spike"}'
  treekeep abort '{"branch":"feature/spike","approved":true,"delete_branch":true,"delete_remote":true}'
  treekeep abort '{"branch":"develop","keep_branch_ack":true}'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			payload, err := readPayload(cmd, args)
			if err != nil {
				return err
			}
			var req engine.AbortRequest
			if err := protocol.DecodeRequest(payload, &req); err != nil {
				return err
			}

			env, err := engine.Prepare(ctx, currentConfig(), req.Common)
			if err != nil {
				return emit(ctx, protocol.Fail(err))
			}

			res, err := env.Abort(ctx, req)
			if err != nil {
				return emit(ctx, protocol.Fail(err))
			}
			return emit(ctx, protocol.Ok(res))
		},
	}

	return cmd
}
