// Package cycle drives one full backup pass: resolve the previous backup,
// produce the new one into staging, promote it, refresh the latest-link and
// apply retention. Promotion is the only destination-visible transition; a
// cycle that aborts earlier leaves at most a partial staging folder, which
// the next cycle overwrites.
package cycle

import (
	"context"
	"fmt"
	"time"

	"github.com/ostorelabs/ostore-backup/pkg/destination"
	"github.com/ostorelabs/ostore-backup/pkg/plog"
)

// Producer creates the backup content inside the staging folder. previous is
// nil on the first-ever backup; otherwise it names the newest completed
// backup and producers use it as the hard-link reference. A returned error
// aborts the cycle before promotion.
type Producer func(ctx context.Context, stagingPath string, previous *destination.Folder) error

// Error marks a failed cycle with the stage it died in.
type Error struct {
	Stage string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("backup cycle failed during %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Result reports what a completed cycle did. It only exists for cycles that
// reached promotion.
type Result struct {
	Previous    *destination.Folder // link reference used, nil on first backup
	Folder      destination.Folder  // the newly promoted backup
	LinkUpdated bool
	Deleted     []string // pruned backup folders
	Failed      []string // folders that couldn't be pruned
	Duration    time.Duration
}

// Manager is the destination surface a cycle needs. *destination.Manager
// satisfies it.
type Manager interface {
	StagingPath() string
	Latest(ctx context.Context) (*destination.Folder, error)
	Promote(ctx context.Context) (destination.Folder, error)
	UpdateLatestLink(ctx context.Context, target destination.Folder) bool
	Prune(ctx context.Context) (deleted, failed []string, err error)
}

var _ Manager = (*destination.Manager)(nil)

// Controller runs backup cycles against one destination. It is stateless
// across runs; all durable state lives in the destination's folder set.
type Controller struct {
	mgr      Manager
	producer Producer
}

// New creates a Controller.
func New(mgr Manager, producer Producer) *Controller {
	return &Controller{mgr: mgr, producer: producer}
}

// Run executes a single backup cycle. The steps run strictly in order and
// each blocks until its external commands finish.
func (c *Controller) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	staging := c.mgr.StagingPath()

	previous, err := c.mgr.Latest(ctx)
	if err != nil {
		return nil, &Error{Stage: "previous backup resolution", Err: err}
	}
	if previous == nil {
		plog.Info("No previous backup found, creating the first full backup.")
	} else {
		plog.Info("Found previous backup to hard-link against.", "previous", previous.Name)
	}

	if err := c.producer(ctx, staging, previous); err != nil {
		// Staging may be partially populated now. That's fine: the next
		// cycle reuses and overwrites it.
		return nil, &Error{Stage: "production", Err: err}
	}

	folder, err := c.mgr.Promote(ctx)
	if err != nil {
		return nil, &Error{Stage: "promotion", Err: err}
	}

	linkUpdated := c.mgr.UpdateLatestLink(ctx, folder)

	// Retention always runs after a successful promotion, whatever the link
	// update did. Its failures never fail the cycle.
	deleted, failed, err := c.mgr.Prune(ctx)
	if err != nil {
		plog.Warn("Couldn't clean up old backups.", "error", err)
	}

	result := &Result{
		Previous:    previous,
		Folder:      folder,
		LinkUpdated: linkUpdated,
		Deleted:     deleted,
		Failed:      failed,
		Duration:    time.Since(start),
	}
	plog.Notice("Backup cycle finished.",
		"backup", folder.Name,
		"deleted", len(deleted),
		"duration", result.Duration.Round(time.Millisecond))
	return result, nil
}
