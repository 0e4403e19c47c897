// Package preflight provides checks that run before the first backup cycle,
// ensuring the container and a local destination are in a usable state. The
// checks are stateless except for the writability probe, which creates and
// removes a temporary file.
//
// Remote destinations are validated over the remote shell instead; these
// checks only apply to paths on the local machine.
package preflight

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ostorelabs/ostore-backup/pkg/util"
)

// CheckContainerAccessible validates that the container root exists and is a
// directory.
func CheckContainerAccessible(containerPath string) error {
	info, err := os.Stat(containerPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("container directory %s does not exist", containerPath)
		}
		return fmt.Errorf("cannot stat container directory %s: %w", containerPath, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("container path %s is not a directory", containerPath)
	}
	return nil
}

// CheckDestinationAccessible ensures a local destination root is usable. It
// provides friendlier errors than letting the first transfer fail.
//
// The checks include:
//  1. If the destination exists, confirms it is a directory.
//  2. If it does not exist, confirms its parent directory is accessible.
//  3. On Unix, if the path looks like it should be a separate filesystem, it
//     verifies the device is actually mounted to avoid filling a "ghost"
//     directory on the root filesystem. The check walks up from the
//     destination to the deepest existing ancestor.
func CheckDestinationAccessible(destPath string) error {
	info, err := os.Stat(destPath)
	if os.IsNotExist(err) {
		// Destination doesn't exist yet; check the deepest existing
		// ancestor. If /mnt/backup/store doesn't exist, is /mnt/backup
		// mounted?
		ancestor := destPath
		for {
			parent := filepath.Dir(ancestor)
			if parent == ancestor {
				break // hit root
			}
			if _, err := os.Stat(parent); err == nil {
				ancestor = parent
				break
			}
			ancestor = parent
		}
		if err := validateMountPoint(ancestor); err != nil {
			return err
		}

		// The immediate parent must also be accessible so the destination
		// root can be created under it.
		parentDir := filepath.Dir(destPath)
		if _, err := os.Stat(parentDir); os.IsNotExist(err) {
			return fmt.Errorf("destination path and its parent directory do not exist: %s", parentDir)
		} else if err != nil {
			return fmt.Errorf("cannot access parent directory %s: %w", parentDir, err)
		}
		return nil
	} else if err != nil {
		return fmt.Errorf("cannot access destination path: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("destination path exists but is not a directory: %s", destPath)
	}
	return validateMountPoint(destPath)
}

// CheckDestinationWritable ensures the destination directory can be created
// and is writable by performing filesystem modifications.
func CheckDestinationWritable(destPath string) error {
	if err := os.MkdirAll(destPath, util.UserWritableDirPerms); err != nil {
		return fmt.Errorf("failed to create destination directory %s: %w", destPath, err)
	}

	tempFile := filepath.Join(destPath, ".ostore-backup-writetest.tmp")
	f, err := os.Create(tempFile)
	if err != nil {
		return fmt.Errorf("destination directory %s is not writable: %w", destPath, err)
	}
	f.Close()
	_ = os.Remove(tempFile)
	return nil
}
