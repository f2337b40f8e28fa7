package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/treekeep/treekeep/internal/config"
	"github.com/treekeep/treekeep/internal/git"
	"github.com/treekeep/treekeep/internal/log"
	"github.com/treekeep/treekeep/internal/output"
)

var (
	// Global flags
	verbose bool
	quiet   bool

	// Shared state injected into commands
	cfg *config.Config
)

// Command group IDs for organizing help output
const (
	GroupOps    = "ops"
	GroupConfig = "config"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "treekeep",
	Short: "Git worktree lifecycle manager",
	Long: `treekeep creates, scans, cleans up, and aborts git worktrees while
enforcing protected-branch rules and keeping a per-repo tracking ledger
synchronized with actual git state.

Operations take one JSON request (as an argument, or "-" to read stdin)
and print one JSON result envelope to stdout:

  {"success": bool, "data": {...}|null, "error": {...}|null}

Exit codes: 0 on success, 1 when the operation failed and an error
envelope was printed, 2 on a malformed invocation.`,
	SilenceUsage:               true,
	SilenceErrors:              true,
	SuggestionsMinimumDistance: 2, // Enable typo suggestions
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip git check for completion and help commands
		if cmd.Name() == "completion" || cmd.Name() == "__complete" || cmd.Name() == "help" {
			return nil
		}

		if verbose && quiet {
			return fmt.Errorf("--verbose and --quiet are mutually exclusive")
		}

		// Flags are parsed only at execute time, so the context logger
		// is built here, not in Execute.
		cmd.SetContext(log.WithLogger(cmd.Context(), log.New(os.Stderr, verbose, quiet)))

		return git.CheckGit()
	},
	// Run is not set - shows help when no subcommand provided
}

// errOpFailed marks an operation that already printed its failure
// envelope; Execute turns it into exit code 1 instead of 2.
var errOpFailed = errors.New("operation failed")

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	loadedCfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	cfg = &loadedCfg

	// Create context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Default logger for pre-parse paths (help, usage errors);
	// PersistentPreRunE rebuilds it with the parsed flags.
	ctx = log.WithLogger(ctx, log.New(os.Stderr, false, false))

	// Add output printer (stdout for primary data)
	ctx = output.WithPrinter(ctx, os.Stdout)

	rootCmd.SetContext(ctx)

	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errOpFailed) {
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Run 'treekeep -h' for help")
		os.Exit(2)
	}
}

// currentConfig returns the loaded config or defaults when none loaded.
func currentConfig() config.Config {
	if cfg != nil {
		return *cfg
	}
	return config.Default()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show git commands being executed")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress all log output")
	rootCmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	// Version flag
	rootCmd.Version = versionString()
	rootCmd.SetVersionTemplate("{{.Version}}\n")

	rootCmd.AddGroup(
		&cobra.Group{ID: GroupOps, Title: "Operations:"},
		&cobra.Group{ID: GroupConfig, Title: "Configuration Commands:"},
	)

	rootCmd.AddCommand(newCreateCmd())
	rootCmd.AddCommand(newScanCmd())
	rootCmd.AddCommand(newCleanupCmd())
	rootCmd.AddCommand(newAbortCmd())

	rootCmd.AddCommand(newInitCmd())
}
