package cmd

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ostorelabs/ostore-backup/pkg/cmdrun"
	"github.com/ostorelabs/ostore-backup/pkg/destination"
	"github.com/ostorelabs/ostore-backup/pkg/flagparse"
	"github.com/ostorelabs/ostore-backup/pkg/plog"
)

// sizeWorkers bounds the concurrent directory walks when computing backup
// sizes for local destinations.
const sizeWorkers = 4

// RunList handles the logic for the list command.
func RunList(ctx context.Context, flagMap map[string]interface{}) error {
	runConfig, err := resolveConfig(flagparse.List, flagMap, false)
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

	folders, err := mgr.List(ctx)
	if err != nil {
		return err
	}
	if len(folders) == 0 {
		fmt.Printf("No backups found at '%s'.\n", dest)
		return nil
	}
	sort.Slice(folders, func(i, j int) bool { return folders[i].Name < folders[j].Name })

	// Sizes are only computed for local destinations; walking a remote tree
	// per folder would mean one shell round-trip per backup.
	var sizes map[string]int64
	if dest.Remote == "" {
		sizes, err = folderSizes(ctx, folders)
		if err != nil {
			plog.Warn("Couldn't compute backup sizes.", "error", err)
		}
	}

	latest := folders[len(folders)-1].Name
	fmt.Printf("Backups at '%s' (oldest first):\n", dest)
	for _, folder := range folders {
		line := "  " + folder.Name
		if size, ok := sizes[folder.Name]; ok {
			line += fmt.Sprintf("  %8s", humanSize(size))
		}
		if folder.Name == latest {
			line += "  <- " + destination.LatestLinkName
		}
		fmt.Println(line)
	}
	fmt.Printf("%d backups total.\n", len(folders))
	return nil
}

// folderSizes walks the backup folders concurrently and sums apparent file
// sizes. Hard-linked files are counted in every backup they appear in.
func folderSizes(ctx context.Context, folders []destination.Folder) (map[string]int64, error) {
	sizes := make(map[string]int64, len(folders))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(sizeWorkers)

	for _, folder := range folders {
		folder := folder
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			var total int64
			err := filepath.WalkDir(folder.Path, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if d.Type().IsRegular() {
					info, err := d.Info()
					if err != nil {
						return err
					}
					total += info.Size()
				}
				return nil
			})
			if err != nil {
				return fmt.Errorf("walking %s: %w", folder.Path, err)
			}

			mu.Lock()
			sizes[folder.Name] = total
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sizes, nil
}

// humanSize renders a byte count in binary units.
func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
