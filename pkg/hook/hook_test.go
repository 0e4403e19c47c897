package hook_test

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"testing"

	"github.com/ostorelabs/ostore-backup/pkg/hints"
	"github.com/ostorelabs/ostore-backup/pkg/hook"
)

// TestHelperProcess is a helper for testing exec.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for i, arg := range args {
		if arg == "--" {
			args = args[i+1:]
			break
		}
	}
	if len(args) > 0 && strings.Contains(args[0], "fail") {
		os.Exit(1)
	}
	os.Exit(0)
}

// mockCommand re-invokes the test binary as the hook command.
func mockCommand(ctx context.Context, name string, arg ...string) *exec.Cmd {
	// The executor wraps the command in a shell (`sh -c` or `cmd /C`);
	// extract the actual command line.
	var cmdLine string
	if len(arg) > 1 && (arg[0] == "-c" || arg[0] == "/C") {
		cmdLine = strings.Join(arg[1:], " ")
	} else {
		cmdLine = name + " " + strings.Join(arg, " ")
	}

	cs := []string{"-test.run=TestHelperProcess", "--", cmdLine}
	cmd := exec.CommandContext(ctx, os.Args[0], cs...)
	cmd.Env = []string{"GO_WANT_HELPER_PROCESS=1"}
	return cmd
}

func TestExecutor(t *testing.T) {
	tests := []struct {
		name          string
		plan          *hook.Plan
		phase         string // "pre" or "post"
		wantErr       error
		errorContains string
	}{
		{
			name: "Pre-hook success",
			plan: &hook.Plan{
				Enabled:           true,
				PreBackupCommands: []string{"echo pre-hook-works"},
			},
			phase: "pre",
		},
		{
			name: "Post-hook success",
			plan: &hook.Plan{
				Enabled:            true,
				PostBackupCommands: []string{"echo post-hook-works"},
			},
			phase: "post",
		},
		{
			name: "Pre-hook failure with FailFast",
			plan: &hook.Plan{
				Enabled:           true,
				PreBackupCommands: []string{"fail this"},
				FailFast:          true,
			},
			phase:         "pre",
			errorContains: "command 'fail this' failed",
		},
		{
			name: "Pre-hook failure without FailFast",
			plan: &hook.Plan{
				Enabled:           true,
				PreBackupCommands: []string{"fail this"},
			},
			phase: "pre",
		},
		{
			name:    "Disabled plan",
			plan:    &hook.Plan{PreBackupCommands: []string{"echo never"}},
			phase:   "pre",
			wantErr: hook.ErrDisabled,
		},
		{
			name:    "Nothing to execute",
			plan:    &hook.Plan{Enabled: true},
			phase:   "pre",
			wantErr: hook.ErrNothingToExecute,
		},
		{
			name: "Dry run skips execution",
			plan: &hook.Plan{
				Enabled:           true,
				PreBackupCommands: []string{"fail this"},
				FailFast:          true,
				DryRun:            true,
			},
			phase: "pre",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := hook.NewExecutor(mockCommand)

			var err error
			if tc.phase == "pre" {
				err = e.RunPre(context.Background(), tc.plan)
			} else {
				err = e.RunPost(context.Background(), tc.plan)
			}

			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("Expected %v, got %v", tc.wantErr, err)
				}
				if !hints.IsHint(err) {
					t.Errorf("Expected a hint error, got %v", err)
				}
				return
			}
			if tc.errorContains != "" {
				if err == nil || !strings.Contains(err.Error(), tc.errorContains) {
					t.Fatalf("Expected error containing %q, got %v", tc.errorContains, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected success, got %v", err)
			}
		})
	}
}
