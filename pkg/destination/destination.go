// Package destination validates and manages the backup destination: a local
// directory or a remote `host:path` reached over ssh.
//
// All destination-side operations (enumeration, promotion, link update,
// deletion) are dispatched as shell commands through a cmdrun.Runner, so the
// same code path serves local and remote destinations. Destination paths are
// therefore assumed to live on a POSIX filesystem with the standard tool set
// (find, mv, ln, rm) available.
package destination

import (
	"context"
	"fmt"
	"math/rand"
	"os/exec"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/ostorelabs/ostore-backup/pkg/cmdrun"
	"github.com/ostorelabs/ostore-backup/pkg/plog"
)

const (
	// StagingFolderName is the transient working folder for an in-progress
	// backup, reused across cycles. Its name never matches the completed
	// backup pattern, so enumeration can't mistake it for a finished backup.
	StagingFolderName = "live-backup"

	// LatestLinkName is the symlink pointing at the newest completed backup.
	LatestLinkName = "last-backup"

	// TransferTool is the registry key for the file-synchronization tool.
	TransferTool = "rsync"

	// timestampFormat is the fixed-width UTC timestamp embedded in folder
	// names. Zero-padded so lexicographic order equals chronological order.
	timestampFormat = "20060102150405"

	// promoteAttempts bounds the rename retries on a folder name collision.
	promoteAttempts = 3
)

const suffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// folderNameRe matches completed backup folder names:
// backup_<14-digit-UTC-timestamp>_<4 lowercase alphanumerics>.
var folderNameRe = regexp.MustCompile(`^backup_\d{14}_[a-z0-9]{4}$`)

// Destination is a parsed backup destination.
type Destination struct {
	Remote string // optional ssh host, "" for local destinations
	Path   string // destination root directory
}

// String renders the destination back to its `[remote:]path` form.
func (d Destination) String() string {
	if d.Remote != "" {
		return d.Remote + ":" + d.Path
	}
	return d.Path
}

// Parse splits a `[remote:]path` destination string. More than one separator
// is a configuration error.
func Parse(dest string) (Destination, error) {
	parts := strings.Split(dest, ":")
	switch len(parts) {
	case 1:
		if parts[0] == "" {
			return Destination{}, &ConfigError{Reason: "destination path must not be empty"}
		}
		return Destination{Path: parts[0]}, nil
	case 2:
		if parts[0] == "" || parts[1] == "" {
			return Destination{}, &ConfigError{Reason: fmt.Sprintf("invalid destination format '%s': expected <remote>:<path>", dest)}
		}
		return Destination{Remote: parts[0], Path: parts[1]}, nil
	default:
		return Destination{}, &ConfigError{Reason: fmt.Sprintf("invalid destination format '%s': expected <remote>:<path>", dest)}
	}
}

// Folder is one completed, timestamped backup at the destination.
type Folder struct {
	Name string // backup_<timestamp>_<suffix>
	Path string // destination-root joined path
}

// Manager owns the folder set at the destination root: it enumerates
// completed backups, promotes the staging folder, maintains the latest-link
// and applies the retention policy.
type Manager struct {
	dest   Destination
	keep   int
	exes   map[string]string
	runner cmdrun.Runner
	dryRun bool

	// Injection points for tests.
	lookPath   func(file string) (string, error)
	now        func() time.Time
	randSuffix func() string
}

// New creates a Manager after checking the pure configuration inputs. The
// environment-dependent checks run in Validate.
func New(dest string, keep int, exes map[string]string, runner cmdrun.Runner, dryRun bool) (*Manager, error) {
	d, err := Parse(dest)
	if err != nil {
		return nil, err
	}
	if keep < 0 {
		return nil, &ConfigError{Reason: "keep count can't be negative"}
	}

	registry := make(map[string]string, len(exes)+1)
	for tool, exePath := range exes {
		registry[tool] = exePath
	}
	// Make sure rsync is registered so it gets validated.
	if _, ok := registry[TransferTool]; !ok {
		registry[TransferTool] = TransferTool
	}

	return &Manager{
		dest:       d,
		keep:       keep,
		exes:       registry,
		runner:     runner,
		dryRun:     dryRun,
		lookPath:   exec.LookPath,
		now:        time.Now,
		randSuffix: randomSuffix,
	}, nil
}

// Exe resolves a registered tool name to its configured executable path.
func (m *Manager) Exe(tool string) string {
	return m.exes[tool]
}

// StagingPath returns the well-known staging folder path at the destination.
func (m *Manager) StagingPath() string {
	return path.Join(m.dest.Path, StagingFolderName)
}

// Validate confirms the destination is usable: the remote host accepts
// commands, every registered executable resolves, and the destination root
// exists (creating it if absent). It must be called once before any other
// destination operation.
func (m *Manager) Validate(ctx context.Context) error {
	if m.dest.Remote != "" {
		plog.Info("Checking if remote is accessible...", "remote", m.dest.Remote)
		if success, _ := m.runner.Run(ctx, []string{"exit"}); !success {
			return &UnreachableRemoteError{Host: m.dest.Remote}
		}
		plog.Info("Remote is accessible.", "remote", m.dest.Remote)
	}

	for tool, exePath := range m.exes {
		if _, err := m.lookPath(exePath); err != nil {
			return &MissingExecutableError{Tool: tool, Path: exePath}
		}
	}

	if !m.pathExists(ctx, m.dest.Path) {
		if m.dryRun {
			plog.Notice("[DRY RUN] MKDIR", "path", m.dest.Path)
			return nil
		}
		if success, _ := m.runner.Run(ctx, []string{"mkdir", m.dest.Path}); !success {
			return &DestinationUnavailableError{Path: m.dest.Path}
		}
	}
	return nil
}

// pathExists checks for a path on the destination side.
func (m *Manager) pathExists(ctx context.Context, p string) bool {
	success, _ := m.runner.Run(ctx, []string{"[", "-e", p, "]"})
	return success
}

// List enumerates the completed backup folders at depth exactly 1 under the
// destination root. The result is unsorted; callers order it as needed.
func (m *Manager) List(ctx context.Context) ([]Folder, error) {
	success, stdout := m.runner.Run(ctx, []string{
		"find", m.dest.Path,
		"-mindepth", "1",
		"-maxdepth", "1",
		"-type", "d",
		"-name", "backup_*_*",
		"-print",
	})
	if !success {
		return nil, fmt.Errorf("existing backups determination failed for '%s'", m.dest)
	}

	var folders []Folder
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		name := path.Base(line)
		// The find glob is loose; only accept the exact timestamped pattern
		// so stray folders never become link references.
		if !folderNameRe.MatchString(name) {
			plog.Debug("Ignoring non-backup folder", "name", name)
			continue
		}
		folders = append(folders, Folder{Name: name, Path: path.Join(m.dest.Path, name)})
	}
	return folders, nil
}

// Latest returns the most recent completed backup, or nil if none exists.
// Lexicographic order of the fixed-width names equals chronological order.
func (m *Manager) Latest(ctx context.Context) (*Folder, error) {
	folders, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(folders) == 0 {
		return nil, nil
	}
	sort.Slice(folders, func(i, j int) bool { return folders[i].Name < folders[j].Name })
	latest := folders[len(folders)-1]
	return &latest, nil
}

// Promote atomically renames the staging folder to its final timestamped
// name. On a name collision it regenerates the random suffix a few times
// before giving up; a failed move raises a PromotionError.
func (m *Manager) Promote(ctx context.Context) (Folder, error) {
	staging := m.StagingPath()

	var target Folder
	nameIsFree := false
	for attempt := 0; attempt < promoteAttempts; attempt++ {
		name := "backup_" + m.now().UTC().Format(timestampFormat) + "_" + m.randSuffix()
		target = Folder{Name: name, Path: path.Join(m.dest.Path, name)}
		if !m.pathExists(ctx, target.Path) {
			nameIsFree = true
			break
		}
		plog.Warn("Backup folder name collision, regenerating suffix", "name", name)
	}
	// Moving onto an existing folder would nest the staging data inside a
	// completed backup, so give up rather than run the mv.
	if !nameIsFree {
		return Folder{}, &PromotionError{Staging: staging, Target: target.Path}
	}

	if m.dryRun {
		plog.Notice("[DRY RUN] PROMOTE", "from", staging, "to", target.Path)
		return target, nil
	}

	if success, _ := m.runner.Run(ctx, []string{"mv", staging, target.Path}); !success {
		return Folder{}, &PromotionError{Staging: staging, Target: target.Path}
	}
	plog.Info("Backup moved to final location", "from", staging, "to", target.Path)
	return target, nil
}

// UpdateLatestLink force-updates the last-backup symlink to point at the
// given folder's name. The target is relative so the destination tree stays
// portable. Failure is a warning only; symlink support is
// environment-dependent.
func (m *Manager) UpdateLatestLink(ctx context.Context, target Folder) bool {
	linkPath := path.Join(m.dest.Path, LatestLinkName)

	if m.dryRun {
		plog.Notice("[DRY RUN] LINK", "link", linkPath, "target", target.Name)
		return true
	}

	if success, _ := m.runner.Run(ctx, []string{"ln", "-sfn", target.Name, linkPath}); !success {
		plog.Warn("Couldn't update latest-backup symlink. Perhaps the filesystem doesn't support it.", "link", linkPath)
		return false
	}
	plog.Info("Updated latest-backup symlink", "link", LatestLinkName, "target", target.Name)
	return true
}

// Prune deletes the oldest completed backups, keeping the newest plus the
// configured keep count of historical ones. Per-folder failures are
// warnings; cleanup failure is never a cycle failure.
func (m *Manager) Prune(ctx context.Context) (deleted []string, failed []string, err error) {
	folders, err := m.List(ctx)
	if err != nil {
		return nil, nil, err
	}
	sort.Slice(folders, func(i, j int) bool { return folders[i].Name < folders[j].Name })

	// Keep the newest plus `keep` historical backups; delete the rest.
	cut := len(folders) - (m.keep + 1)
	if cut <= 0 {
		plog.Debug("No outdated backups to delete", "existing", len(folders), "keep", m.keep)
		return nil, nil, nil
	}

	for _, folder := range folders[:cut] {
		if m.dryRun {
			plog.Notice("[DRY RUN] DELETE", "path", folder.Path)
			deleted = append(deleted, folder.Name)
			continue
		}
		if success, _ := m.runner.Run(ctx, []string{"rm", "-rf", folder.Path}); !success {
			plog.Warn("Couldn't delete old backup", "path", folder.Path)
			failed = append(failed, folder.Name)
			continue
		}
		plog.Notice("Deleted old backup", "path", folder.Path)
		deleted = append(deleted, folder.Name)
	}
	return deleted, failed, nil
}

// randomSuffix generates the 4-character lowercase-alphanumeric folder
// suffix that disambiguates backups promoted within the same second.
func randomSuffix() string {
	b := make([]byte, 4)
	for i := range b {
		b[i] = suffixAlphabet[rand.Intn(len(suffixAlphabet))]
	}
	return string(b)
}
