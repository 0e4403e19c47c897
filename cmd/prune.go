package cmd

import (
	"context"
	"fmt"

	"github.com/ostorelabs/ostore-backup/pkg/buildinfo"
	"github.com/ostorelabs/ostore-backup/pkg/cmdrun"
	"github.com/ostorelabs/ostore-backup/pkg/destination"
	"github.com/ostorelabs/ostore-backup/pkg/flagparse"
	"github.com/ostorelabs/ostore-backup/pkg/plog"
)

// RunPrune handles the logic for the prune command.
func RunPrune(ctx context.Context, flagMap map[string]interface{}) error {
	runConfig, err := resolveConfig(flagparse.Prune, flagMap, false)
	if err != nil {
		return err
	}

	dest, err := destination.Parse(runConfig.Destination)
	if err != nil {
		return err
	}
	destRunner := cmdrun.New(dest.Remote)

	mgr, err := destination.New(runConfig.Destination, runConfig.Keep, runConfig.Exes, destRunner, runConfig.Runtime.DryRun)
	if err != nil {
		return err
	}

	if !runConfig.Runtime.DryRun && !runConfig.Runtime.Force {
		fmt.Printf("This operation will permanently delete outdated backups at '%s',\n", dest)
		fmt.Printf("keeping the newest backup plus %d historical one(s).\n", runConfig.Keep)
		if !PromptForConfirmation("Are you sure you want to continue?", false) {
			plog.Info(buildinfo.Name + " prune operation canceled.")
			return nil
		}
	}

	deleted, failed, err := mgr.Prune(ctx)
	if err != nil {
		return err
	}
	if len(failed) > 0 {
		plog.Warn("Some backups couldn't be deleted.", "failed", len(failed))
	}

	plog.Info(buildinfo.Name+" prune finished.", "deleted", len(deleted))
	return nil
}
