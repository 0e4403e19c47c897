//go:build !windows

package preflight

import (
	"fmt"
	"os"
	"strings"
	"syscall"
)

// validateMountPoint checks if the path resides on the root filesystem. If
// it does, the backup drive is assumed NOT mounted (ghost detection).
func validateMountPoint(path string) error {
	// Backups into the user's home or the temp dir are intentional and live
	// on the system disk by definition.
	homeDir, _ := os.UserHomeDir()
	if homeDir != "" && strings.HasPrefix(path, homeDir) {
		return nil
	}
	if strings.HasPrefix(path, os.TempDir()) {
		return nil
	}

	rootInfo, err := os.Stat("/")
	if err != nil {
		return fmt.Errorf("failed to stat root: %w", err)
	}
	rootStat, ok := rootInfo.Sys().(*syscall.Stat_t)
	if !ok {
		return fmt.Errorf("unsupported platform for syscall.Stat_t")
	}

	pathInfo, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat destination path: %w", err)
	}
	pathStat, ok := pathInfo.Sys().(*syscall.Stat_t)
	if !ok {
		return fmt.Errorf("unsupported platform for syscall.Stat_t")
	}

	// Same device ID as "/" means we'd fill the system partition.
	// Exception: the user specifically targeted "/" (unlikely, but valid).
	if pathStat.Dev == rootStat.Dev && path != "/" {
		return fmt.Errorf("path '%s' is on the root filesystem (system disk). "+
			"Ensure your backup drive is mounted", path)
	}
	return nil
}
