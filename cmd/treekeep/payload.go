package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/treekeep/treekeep/internal/output"
	"github.com/treekeep/treekeep/internal/protocol"
)

// readPayload returns the JSON request for an operation: the single
// positional argument, stdin when the argument is "-", or empty when no
// argument is given (batch operations accept "{}").
func readPayload(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 {
		return nil, nil
	}
	if args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read request from stdin: %w", err)
		}
		return data, nil
	}
	return []byte(args[0]), nil
}

// emit prints the result envelope to stdout. A failure envelope maps to
// errOpFailed so the process exits 1, distinct from exit 2 for
// malformed invocations.
func emit(ctx context.Context, res protocol.Result) error {
	if err := res.Write(output.FromContext(ctx).Writer()); err != nil {
		fmt.Fprintf(os.Stderr, "treekeep: write result: %v\n", err)
		return errOpFailed
	}
	if !res.Success {
		return errOpFailed
	}
	return nil
}
