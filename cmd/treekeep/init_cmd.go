package main

import (
	"github.com/spf13/cobra"

	"github.com/treekeep/treekeep/internal/config"
	"github.com/treekeep/treekeep/internal/output"
)

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:     "init",
		Short:   "Write a commented default config file",
		GroupID: GroupConfig,
		Args:    cobra.NoArgs,
		Long: `Write a commented default config to ~/.config/treekeep/config.toml.
The file documents worktree_base, tracking, protected_branches, and the
[git_flow] section. Refuses to overwrite an existing config unless
--force is given.`,
		Example: `  treekeep init
  treekeep init --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.Init(force)
			if err != nil {
				return err
			}
			output.FromContext(cmd.Context()).Printf("Wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing config file")

	return cmd
}
