package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/treekeep/treekeep/internal/output"
	"github.com/treekeep/treekeep/internal/protocol"
)

func TestReadPayload(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		args  []string
		stdin string
		want  string
	}{
		{name: "no args", args: nil, want: ""},
		{name: "inline json", args: []string{`{"branch":"x"}`}, want: `{"branch":"x"}`},
		{name: "stdin dash", args: []string{"-"}, stdin: `{"branch":"y"}`, want: `{"branch":"y"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := &cobra.Command{}
			cmd.SetIn(strings.NewReader(tt.stdin))
			got, err := readPayload(cmd, tt.args)
			if err != nil {
				t.Fatalf("readPayload = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("readPayload = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEmitSuccess(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	ctx := output.WithPrinter(context.Background(), &buf)

	if err := emit(ctx, protocol.Ok(map[string]string{"k": "v"})); err != nil {
		t.Fatalf("emit = %v", err)
	}
	if !strings.Contains(buf.String(), `"success": true`) {
		t.Errorf("output = %s", buf.String())
	}
}

func TestEmitFailureMapsToOpFailed(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	ctx := output.WithPrinter(context.Background(), &buf)

	err := emit(ctx, protocol.Fail(protocol.NewError(protocol.CodeWorktreeDirty, true, "dirty")))
	if !errors.Is(err, errOpFailed) {
		t.Fatalf("emit failure = %v, want errOpFailed", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"success": false`) || !strings.Contains(out, "WORKTREE.DIRTY") {
		t.Errorf("output = %s", out)
	}
}
