// Package transfer wraps rsync invocations for the backup engine.
//
// rsync always runs on the local machine; remote destinations are reached
// through rsync's own `host:path` addressing, never through a remote shell.
package transfer

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/ostorelabs/ostore-backup/pkg/cmdrun"
	"github.com/ostorelabs/ostore-backup/pkg/plog"
)

// SrcSemantics controls rsync's trailing-slash behavior for the source path.
type SrcSemantics int

const (
	// EntryItself copies the source directory itself into the destination.
	EntryItself SrcSemantics = iota
	// EntryContents copies the contents of the source directory into the
	// destination (rsync trailing-slash form).
	EntryContents
)

// Options modify a single Sync invocation.
type Options struct {
	// LinkDest is the corresponding subtree of a previous backup, used to
	// hard-link unchanged files instead of re-copying them. Empty disables
	// incremental linking. Local paths are resolved to absolute before use;
	// remote paths are passed through untouched.
	LinkDest string

	// Src selects whether the source directory or its contents are copied.
	Src SrcSemantics

	// DestAsDir forces the destination to be interpreted as a directory,
	// creating it if it does not exist (rsync trailing-slash form).
	DestAsDir bool

	// Extra holds additional rsync arguments, passed through verbatim and in
	// order. Exclude patterns are additive; later entries never override
	// earlier ones.
	Extra []string
}

// TransferError reports a failed rsync invocation.
type TransferError struct {
	Src  string
	Dest string
}

// Error implements the error interface for TransferError.
func (e *TransferError) Error() string {
	return fmt.Sprintf("rsync failed for: %s to %s", e.Src, e.Dest)
}

// Syncer is the transfer interface the backup producers depend on. It exists
// so producer sequencing can be tested without a real rsync binary.
type Syncer interface {
	Sync(ctx context.Context, src, dest string, opts Options) error
}

// Client invokes rsync through a local command runner.
type Client struct {
	exe    string // resolved rsync executable
	remote string // destination host, or "" for local destinations
	runner cmdrun.Runner
	dryRun bool
}

// Statically assert that *Client implements the Syncer interface.
var _ Syncer = (*Client)(nil)

// New creates a Client. runner must execute locally; remote only affects how
// the destination argument is formatted.
func New(exe, remote string, runner cmdrun.Runner, dryRun bool) *Client {
	return &Client{
		exe:    exe,
		remote: remote,
		runner: runner,
		dryRun: dryRun,
	}
}

// Sync copies src to dest, raising a TransferError on a non-zero rsync exit.
func (c *Client) Sync(ctx context.Context, src, dest string, opts Options) error {
	allArgs := []string{c.exe, "-azh", "-vv", "--no-whole-file"}
	allArgs = append(allArgs, opts.Extra...)

	if opts.LinkDest != "" {
		linkDest := opts.LinkDest
		if c.remote == "" {
			// Local link-dest paths are relative to the destination directory
			// from rsync's point of view, so resolve them first.
			abs, err := filepath.Abs(linkDest)
			if err != nil {
				return fmt.Errorf("could not resolve link-dest path %s: %w", linkDest, err)
			}
			linkDest = abs
		}
		allArgs = append(allArgs, "--link-dest="+linkDest)
	}

	srcArg := src
	if opts.Src == EntryContents {
		srcArg += "/"
	}
	allArgs = append(allArgs, srcArg)

	destArg := dest
	if opts.DestAsDir {
		destArg += "/"
	}
	if c.remote != "" {
		destArg = c.remote + ":" + destArg
	}
	allArgs = append(allArgs, destArg)

	if c.dryRun {
		plog.Notice("[DRY RUN] TRANSFER", "src", srcArg, "dest", destArg)
		return nil
	}

	if success, _ := c.runner.Run(ctx, allArgs); !success {
		return &TransferError{Src: src, Dest: dest}
	}
	return nil
}
