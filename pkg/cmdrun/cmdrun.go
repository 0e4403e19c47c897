// Package cmdrun executes shell commands locally or on a remote host over
// ssh, capturing exit status and output.
//
// It is the single choke point for every external command the application
// dispatches, so destination operations behave identically for local paths
// and for remote `host:path` destinations.
package cmdrun

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"

	"github.com/ostorelabs/ostore-backup/pkg/plog"
)

// Runner executes an argument vector and reports whether it exited
// successfully, along with its captured stdout.
//
// Run never returns an error: callers interpret success. A command that
// could not even be launched (missing executable, permission) also reports
// success=false; the distinction is visible in the debug trace only.
type Runner interface {
	Run(ctx context.Context, argv []string) (success bool, stdout string)
}

// ExecRunner is the production Runner backed by os/exec. If Remote is
// non-empty, every argument vector is prefixed with `ssh <remote>` before
// dispatch.
type ExecRunner struct {
	remote string

	// commandContext allows mocking os/exec for testing.
	commandContext func(ctx context.Context, name string, arg ...string) *exec.Cmd
}

// Statically assert that *ExecRunner implements the Runner interface.
var _ Runner = (*ExecRunner)(nil)

// New creates an ExecRunner. remote may be empty for local execution.
func New(remote string) *ExecRunner {
	return &ExecRunner{
		remote:         remote,
		commandContext: exec.CommandContext,
	}
}

// Remote returns the configured remote host, or "" for local execution.
func (r *ExecRunner) Remote() string {
	return r.remote
}

// Run dispatches argv and captures its outcome.
func (r *ExecRunner) Run(ctx context.Context, argv []string) (bool, string) {
	allArgs := argv
	if r.remote != "" {
		allArgs = append([]string{"ssh", r.remote}, argv...)
	}

	cmd := r.commandContext(ctx, allArgs[0], allArgs[1:]...)

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err := cmd.Run()

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			// The command never ran (executable missing, permission, canceled
			// context). Callers still just see success=false.
			exitCode = -1
			plog.Debug("Command failed to launch", "command", strings.Join(allArgs, " "), "error", err)
		}
	}

	plog.Debug("Command executed",
		"command", strings.Join(allArgs, " "),
		"exitCode", exitCode,
		"stdout", stdoutBuf.String(),
		"stderr", stderrBuf.String(),
	)

	return err == nil, stdoutBuf.String()
}
