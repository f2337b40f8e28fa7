package main

import (
	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/treekeep/treekeep/internal/engine"
	"github.com/treekeep/treekeep/internal/log"
	"github.com/treekeep/treekeep/internal/protocol"
)

func newCreateCmd() *cobra.Command {
	var copyPath bool

	cmd := &cobra.Command{
		Use:     "create [request]",
		Short:   "Create a worktree for a branch",
		GroupID: GroupOps,
		Args:    cobra.MaximumNArgs(1),
		Long: `Create a worktree for a branch at the mandated path layout
<worktree_base>/<branch> (slashes in the branch become dashes).

Existing local or remote branches are checked out as-is; unknown
branches are created from the requested base. The new worktree is
recorded in the tracking ledger with its purpose and owner.`,
		Example: `  treekeep create '{"branch":"feature/login","base":"develop","purpose":"login rework","owner":"ana"}'
  echo '{"branch":"hotfix/crash","base":"main","purpose":"crash fix","owner":"ben"}' | treekeep create -
  treekeep create --copy-path '{"branch":"feature/x","base":"main","purpose":"spike","owner":"ana"}'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			payload, err := readPayload(cmd, args)
			if err != nil {
				return err
			}
			var req engine.CreateRequest
			if err := protocol.DecodeRequest(payload, &req); err != nil {
				return err
			}

			env, err := engine.Prepare(ctx, currentConfig(), req.Common)
			if err != nil {
				return emit(ctx, protocol.Fail(err))
			}

			res, err := env.Create(ctx, req)
			if err != nil {
				return emit(ctx, protocol.Fail(err))
			}

			if copyPath {
				if cerr := clipboard.WriteAll(res.Path); cerr != nil {
					log.FromContext(ctx).Debug("clipboard unavailable", "err", cerr)
				}
			}

			return emit(ctx, protocol.Ok(res))
		},
	}

	cmd.Flags().BoolVar(&copyPath, "copy-path", false, "Copy the new worktree path to the clipboard")

	return cmd
}
