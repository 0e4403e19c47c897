package cmd

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/ostorelabs/ostore-backup/pkg/buildinfo"
	"github.com/ostorelabs/ostore-backup/pkg/cmdrun"
	"github.com/ostorelabs/ostore-backup/pkg/cycle"
	"github.com/ostorelabs/ostore-backup/pkg/destination"
	"github.com/ostorelabs/ostore-backup/pkg/flagparse"
	"github.com/ostorelabs/ostore-backup/pkg/hints"
	"github.com/ostorelabs/ostore-backup/pkg/hook"
	"github.com/ostorelabs/ostore-backup/pkg/ostore"
	"github.com/ostorelabs/ostore-backup/pkg/plog"
	"github.com/ostorelabs/ostore-backup/pkg/preflight"
	"github.com/ostorelabs/ostore-backup/pkg/transfer"
	"github.com/ostorelabs/ostore-backup/pkg/util"
)

// RunBackup handles the logic for one backup cycle.
func RunBackup(ctx context.Context, flagMap map[string]interface{}) error {
	runConfig, err := resolveConfig(flagparse.Backup, flagMap, true)
	if err != nil {
		return err
	}

	containerPath, err := util.ExpandPath(runConfig.Container)
	if err != nil {
		return fmt.Errorf("container path invalid: %w", err)
	}

	dest, err := destination.Parse(runConfig.Destination)
	if err != nil {
		return err
	}

	// Friendlier construction-time errors than the first failing command.
	if err := preflight.CheckContainerAccessible(containerPath); err != nil {
		return err
	}
	if dest.Remote == "" {
		if err := preflight.CheckDestinationAccessible(dest.Path); err != nil {
			return err
		}
		if !runConfig.Runtime.DryRun {
			if err := preflight.CheckDestinationWritable(dest.Path); err != nil {
				return err
			}
		}
	}

	container, err := ostore.Open(containerPath)
	if err != nil {
		return err
	}

	// Destination commands run through the remote shell when the destination
	// is remote; rsync itself always runs locally.
	destRunner := cmdrun.New(dest.Remote)
	localRunner := cmdrun.New("")

	mgr, err := destination.New(runConfig.Destination, runConfig.Keep, runConfig.Exes, destRunner, runConfig.Runtime.DryRun)
	if err != nil {
		return err
	}
	if err := mgr.Validate(ctx); err != nil {
		return err
	}

	syncer := transfer.New(mgr.Exe(destination.TransferTool), dest.Remote, localRunner, runConfig.Runtime.DryRun)
	producer := ostore.NewProducer(container, syncer)
	controller := cycle.New(mgr, producer.Produce)

	executor := hook.NewExecutor(exec.CommandContext)
	prePlan := &hook.Plan{
		Enabled:            runConfig.Hooks.Enabled,
		PreBackupCommands:  runConfig.Hooks.PreBackup,
		PostBackupCommands: runConfig.Hooks.PostBackup,
		DryRun:             runConfig.Runtime.DryRun,
		FailFast:           runConfig.Hooks.FailFast,
	}

	if err := executor.RunPre(ctx, prePlan); err != nil {
		switch {
		case hints.Is(err, hook.ErrDisabled):
			plog.Debug("Pre-backup hooks are disabled")
		case hints.IsHint(err):
			plog.Debug("Skipping pre-backup hooks", "reason", err)
		default:
			return fmt.Errorf("pre-backup hook failed: %w", err)
		}
	}

	// Post hooks resume whatever the pre hooks quiesced, so they run even
	// after a failed cycle and their failures never mask the cycle outcome.
	defer func() {
		postPlan := *prePlan
		postPlan.FailFast = false
		if err := executor.RunPost(ctx, &postPlan); err != nil && !hints.IsHint(err) {
			plog.Warn("Post-backup hook failed", "error", err)
		}
	}()

	result, err := controller.Run(ctx)
	if err != nil {
		return err
	}

	plog.Info(buildinfo.Name+" finished successfully.",
		"backup", result.Folder.Name,
		"linkUpdated", result.LinkUpdated,
		"deleted", len(result.Deleted),
		"duration", result.Duration.Round(durationPrecision))
	return nil
}
