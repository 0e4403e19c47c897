package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/ostorelabs/ostore-backup/pkg/config"
	"github.com/ostorelabs/ostore-backup/pkg/flagparse"
	"github.com/ostorelabs/ostore-backup/pkg/plog"
)

const durationPrecision = time.Millisecond

// resolveConfig builds the effective configuration for one command: load the
// optional config file, overlay explicitly-set flags, validate and apply the
// log level.
func resolveConfig(command flagparse.Command, flagMap map[string]interface{}, checkContainer bool) (config.Config, error) {
	configPath, _ := flagMap["config"].(string)

	loadedConfig, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load configuration: %w", err)
	}

	runConfig := config.MergeConfigWithFlags(command, loadedConfig, flagMap)

	if err := runConfig.Validate(checkContainer); err != nil {
		return config.Config{}, err
	}

	plog.SetLevel(plog.LevelFromString(runConfig.LogLevel))
	runConfig.LogSummary()
	return runConfig, nil
}

// PromptForConfirmation asks the user a yes/no question on stdin.
func PromptForConfirmation(prompt string, defaultYes bool) bool {
	suffix := "[y/N]"
	if defaultYes {
		suffix = "[Y/n]"
	}
	fmt.Printf("%s %s: ", prompt, suffix)

	var response string
	_, _ = fmt.Scanln(&response)
	response = strings.ToLower(strings.TrimSpace(response))

	if response == "" {
		return defaultYes
	}
	return response == "y" || response == "yes"
}
