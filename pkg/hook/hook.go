// Package hook runs user-configured shell commands around a backup cycle,
// typically to quiesce or resume the application writing to the store.
package hook

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/ostorelabs/ostore-backup/pkg/hints"
	"github.com/ostorelabs/ostore-backup/pkg/plog"
)

var ErrNothingToExecute = hints.New("nothing to execute")
var ErrDisabled = hints.New("hook execution is disabled")

// Plan describes the hook commands for one backup run.
type Plan struct {
	Enabled bool

	PreBackupCommands  []string
	PostBackupCommands []string

	// Global Flags
	DryRun   bool
	FailFast bool
}

type Executor struct {
	// commandContext allows mocking os/exec for testing hooks.
	commandContext func(ctx context.Context, name string, arg ...string) *exec.Cmd
}

// NewExecutor creates an Executor; pass exec.CommandContext outside of tests.
func NewExecutor(commandContext func(ctx context.Context, name string, arg ...string) *exec.Cmd) *Executor {
	return &Executor{
		commandContext: commandContext,
	}
}

// RunPre executes the pre-backup commands. A failure aborts the cycle when
// the plan is fail-fast; the pre hook is where writers get quiesced, so
// fail-fast is the sensible default for it.
func (e *Executor) RunPre(ctx context.Context, p *Plan) error {
	return e.run(ctx, "Pre-Backup", p, p.PreBackupCommands)
}

// RunPost executes the post-backup commands. Post hooks run even after a
// failed cycle so writers get resumed.
func (e *Executor) RunPost(ctx context.Context, p *Plan) error {
	return e.run(ctx, "Post-Backup", p, p.PostBackupCommands)
}

func (e *Executor) run(ctx context.Context, phase string, p *Plan, commands []string) error {
	if !p.Enabled {
		return ErrDisabled
	}
	if len(commands) <= 0 {
		return ErrNothingToExecute
	}

	plog.Info(fmt.Sprintf("Running %s hook commands", phase))

	for _, hookCommand := range commands {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if p.DryRun {
			plog.Notice("[DRY RUN] Executing command", "command", hookCommand)
			continue
		}
		plog.Info("Executing command", "command", hookCommand)

		cmd := e.createCommand(ctx, hookCommand)

		// Pipe output through for visibility
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			// Context cancellation can surface as a plain command error from
			// cmd.Wait(); report the more specific cause.
			if ctx.Err() == context.Canceled {
				return context.Canceled
			}
			if p.FailFast {
				return fmt.Errorf("command '%s' failed: %w", hookCommand, err)
			}
			plog.Warn("Hook command failed", "command", hookCommand, "error", err)
		}
	}
	return nil
}
