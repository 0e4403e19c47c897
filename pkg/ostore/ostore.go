// Package ostore backs up a disk-objectstore style container: a directory
// with write-once loose entries under loose/, consolidated pack files under
// packs/ and a mutable sqlite index at packs.idx.
//
// A backup taken while the container is in use is kept consistent purely by
// transfer ordering, never by locking: every region is captured no earlier
// than anything that can reference it. Loose entries go first (write-once,
// so the index can't point at something newer than them), then a
// point-in-time snapshot of the index, then the packs (the snapshot may
// reference pack data newer than itself, which is safe because pack data is
// immutable once written), then whatever else sits at the container root.
package ostore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ostorelabs/ostore-backup/pkg/destination"
	"github.com/ostorelabs/ostore-backup/pkg/plog"
	"github.com/ostorelabs/ostore-backup/pkg/transfer"
)

const (
	looseDirName  = "loose"
	packsDirName  = "packs"
	indexFileName = "packs.idx"
)

// Container is an opened object-store container on the local filesystem.
type Container struct {
	root string
}

// Open validates that root looks like an initialized container and returns
// it. The index file must exist; a store is never valid without one.
func Open(root string) (*Container, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("could not resolve container path %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("container path '%s' is not an accessible directory", root)
	}
	c := &Container{root: abs}
	if _, err := os.Stat(c.indexPath()); err != nil {
		return nil, fmt.Errorf("'%s' is not an initialized object store: missing %s", root, indexFileName)
	}
	return c, nil
}

// Root returns the absolute container root path.
func (c *Container) Root() string {
	return c.root
}

func (c *Container) loosePath() string {
	return filepath.Join(c.root, looseDirName)
}

func (c *Container) packsPath() string {
	return filepath.Join(c.root, packsDirName)
}

func (c *Container) indexPath() string {
	return filepath.Join(c.root, indexFileName)
}

// Producer transfers one container into a staging folder, region by region,
// in the consistency-preserving order.
type Producer struct {
	container *Container
	syncer    transfer.Syncer

	// Injection points for tests.
	snapshotIndex func(src, dst string) error
	tempDir       func(dir, pattern string) (string, error)
}

// NewProducer creates a Producer for one container.
func NewProducer(container *Container, syncer transfer.Syncer) *Producer {
	return &Producer{
		container:     container,
		syncer:        syncer,
		snapshotIndex: snapshotIndex,
		tempDir:       os.MkdirTemp,
	}
}

// Produce runs the four ordered transfer steps into stagingPath. previous is
// the newest completed backup or nil; when present it provides the hard-link
// reference for each step. Safe to run while the container is being written.
func (p *Producer) Produce(ctx context.Context, stagingPath string, previous *destination.Folder) error {
	var prevRoot, prevLoose string
	if previous != nil {
		prevRoot = previous.Path
		// Loose entries link against the previous backup's loose region
		// directly, since they land inside staging under the same subpath.
		prevLoose = previous.Path + "/" + looseDirName
	}

	// Step 1: loose entries. Write-once, so capturing them before the index
	// can never leave the index pointing at missing data.
	if err := p.syncer.Sync(ctx, p.container.loosePath(), stagingPath, transfer.Options{
		LinkDest: prevLoose,
	}); err != nil {
		return err
	}
	plog.Info("Transferred loose entries.", "src", p.container.loosePath(), "dest", stagingPath)

	// Step 2: point-in-time snapshot of the index, dumped to a local
	// transient location first. Never a raw copy; the file may be written
	// concurrently.
	if err := p.transferIndexSnapshot(ctx, stagingPath, prevRoot); err != nil {
		return err
	}

	// Step 3: packs. The snapshot may reference newer pack entries than what
	// was captured here; that's acceptable since pack data is immutable.
	if err := p.syncer.Sync(ctx, p.container.packsPath(), stagingPath, transfer.Options{
		LinkDest: prevRoot,
	}); err != nil {
		return err
	}
	plog.Info("Transferred pack entries.", "src", p.container.packsPath(), "dest", stagingPath)

	// Step 4: everything else at the container root, with the regions
	// already handled excluded.
	if err := p.syncer.Sync(ctx, p.container.Root(), stagingPath, transfer.Options{
		LinkDest: prevRoot,
		Src:      transfer.EntryContents,
		Extra: []string{
			"--exclude", looseDirName,
			"--exclude", indexFileName,
			"--exclude", packsDirName,
		},
	}); err != nil {
		return err
	}
	plog.Info("Transferred container metadata.", "src", p.container.Root(), "dest", stagingPath)

	return nil
}

// transferIndexSnapshot dumps the sqlite index into a temporary directory
// and transfers the dump in place of the live file.
func (p *Producer) transferIndexSnapshot(ctx context.Context, stagingPath, prevRoot string) error {
	tempDir, err := p.tempDir("", "ostore-backup-")
	if err != nil {
		return fmt.Errorf("could not create temporary snapshot directory: %w", err)
	}
	defer os.RemoveAll(tempDir)

	snapshotPath := filepath.Join(tempDir, indexFileName)
	if err := p.snapshotIndex(p.container.indexPath(), snapshotPath); err != nil {
		return fmt.Errorf("index snapshot failed: %w", err)
	}
	if info, err := os.Stat(snapshotPath); err != nil || info.IsDir() {
		return fmt.Errorf("index snapshot '%s' failed to be created", snapshotPath)
	}
	plog.Info("Dumped the index database.", "snapshot", snapshotPath)

	if err := p.syncer.Sync(ctx, snapshotPath, stagingPath, transfer.Options{
		LinkDest: prevRoot,
	}); err != nil {
		return err
	}
	plog.Info("Transferred index snapshot.", "dest", stagingPath)
	return nil
}
