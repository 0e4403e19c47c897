package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ostorelabs/ostore-backup/pkg/buildinfo"
	"github.com/ostorelabs/ostore-backup/pkg/config"
	"github.com/ostorelabs/ostore-backup/pkg/flagparse"
	"github.com/ostorelabs/ostore-backup/pkg/plog"
)

// RunInit handles the logic for the 'init' command: it writes the config
// file the other commands run from. An existing file is used as the base so
// re-running init with a few flags updates only those settings.
func RunInit(ctx context.Context, flagMap map[string]interface{}) error {
	configPath, _ := flagMap["config"].(string)
	if configPath == "" {
		configPath = config.ConfigFileName
	}
	absConfigPath, err := filepath.Abs(configPath)
	if err != nil {
		return fmt.Errorf("could not determine absolute config path for %s: %w", configPath, err)
	}

	baseConfig := config.NewDefault()
	exists := false
	if _, err := os.Stat(absConfigPath); err == nil {
		exists = true
		loaded, err := config.Load(absConfigPath)
		if err != nil {
			plog.Warn("Could not load existing configuration, starting from defaults.", "reason", err)
		} else {
			baseConfig = loaded
		}
	}

	runConfig := config.MergeConfigWithFlags(flagparse.Init, baseConfig, flagMap)

	if runConfig.Runtime.DryRun {
		plog.Notice("[DRY RUN] INIT", "path", absConfigPath)
		return nil
	}

	if exists && !runConfig.Runtime.Force {
		fmt.Printf("Configuration file already exists at %s.\n", absConfigPath)
		if !PromptForConfirmation("Overwrite it?", false) {
			plog.Info(buildinfo.Name + " init operation canceled.")
			return nil
		}
	}

	return config.Generate(runConfig, absConfigPath)
}
