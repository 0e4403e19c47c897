package ostore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/ostorelabs/ostore-backup/pkg/destination"
	"github.com/ostorelabs/ostore-backup/pkg/transfer"
)

// recordedSync captures one Sync invocation.
type recordedSync struct {
	Src  string
	Dest string
	Opts transfer.Options
}

// fakeSyncer records Sync calls and can fail a specific call.
type fakeSyncer struct {
	calls   []recordedSync
	failAt  int // 1-based call number to fail, 0 = never
	failErr error
}

func (f *fakeSyncer) Sync(ctx context.Context, src, dest string, opts transfer.Options) error {
	f.calls = append(f.calls, recordedSync{Src: src, Dest: dest, Opts: opts})
	if f.failAt == len(f.calls) {
		return f.failErr
	}
	return nil
}

// newTestContainer lays out an initialized container in a temp dir.
func newTestContainer(t *testing.T) *Container {
	t.Helper()
	root := t.TempDir()
	for _, dir := range []string{"loose", "packs"} {
		if err := os.Mkdir(filepath.Join(root, dir), 0o755); err != nil {
			t.Fatalf("Couldn't create %s: %v", dir, err)
		}
	}
	for _, file := range []string{"packs.idx", "config.json"} {
		if err := os.WriteFile(filepath.Join(root, file), []byte("x"), 0o644); err != nil {
			t.Fatalf("Couldn't create %s: %v", file, err)
		}
	}
	c, err := Open(root)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	return c
}

// newTestProducer wires a producer with the index snapshot stubbed to a
// plain file copy.
func newTestProducer(t *testing.T, c *Container, syncer transfer.Syncer) *Producer {
	t.Helper()
	p := NewProducer(c, syncer)
	p.snapshotIndex = func(src, dst string) error {
		data, err := os.ReadFile(src)
		if err != nil {
			return err
		}
		return os.WriteFile(dst, data, 0o644)
	}
	return p
}

func TestOpenRejectsMissingRoot(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("Expected error for missing container root")
	}
}

func TestOpenRejectsUninitializedStore(t *testing.T) {
	if _, err := Open(t.TempDir()); err == nil {
		t.Error("Expected error for directory without an index file")
	}
}

func TestProduceTransferOrderWithPrevious(t *testing.T) {
	c := newTestContainer(t)
	syncer := &fakeSyncer{}
	p := newTestProducer(t, c, syncer)

	previous := &destination.Folder{
		Name: "backup_20230101120000_ab12",
		Path: "/backups/backup_20230101120000_ab12",
	}

	if err := p.Produce(context.Background(), "/backups/live-backup", previous); err != nil {
		t.Fatalf("Produce() failed: %v", err)
	}
	if len(syncer.calls) != 4 {
		t.Fatalf("Expected 4 transfers, got %d: %+v", len(syncer.calls), syncer.calls)
	}

	// Step 1: loose entries, linked against the previous loose region.
	loose := syncer.calls[0]
	if loose.Src != c.loosePath() || loose.Dest != "/backups/live-backup" {
		t.Errorf("Unexpected loose transfer: %+v", loose)
	}
	if loose.Opts.LinkDest != "/backups/backup_20230101120000_ab12/loose" {
		t.Errorf("Unexpected loose link-dest %q", loose.Opts.LinkDest)
	}
	if loose.Opts.Src != transfer.EntryItself {
		t.Error("Loose region must be copied as the entry itself")
	}

	// Step 2: the index snapshot, not the live index file.
	idx := syncer.calls[1]
	if filepath.Base(idx.Src) != "packs.idx" {
		t.Errorf("Unexpected snapshot src %q", idx.Src)
	}
	if idx.Src == c.indexPath() {
		t.Error("The live index file must never be transferred directly")
	}
	if idx.Opts.LinkDest != previous.Path {
		t.Errorf("Unexpected snapshot link-dest %q", idx.Opts.LinkDest)
	}

	// Step 3: packs after the index.
	packs := syncer.calls[2]
	if packs.Src != c.packsPath() || packs.Opts.LinkDest != previous.Path {
		t.Errorf("Unexpected packs transfer: %+v", packs)
	}

	// Step 4: remaining metadata, contents-of-root with the handled regions
	// excluded.
	rest := syncer.calls[3]
	if rest.Src != c.Root() {
		t.Errorf("Unexpected metadata transfer src %q", rest.Src)
	}
	if rest.Opts.Src != transfer.EntryContents {
		t.Error("Metadata must be copied as root contents")
	}
	wantExtra := []string{"--exclude", "loose", "--exclude", "packs.idx", "--exclude", "packs"}
	if !reflect.DeepEqual(rest.Opts.Extra, wantExtra) {
		t.Errorf("Unexpected excludes %v, want %v", rest.Opts.Extra, wantExtra)
	}
}

func TestProduceFirstBackupDisablesLinking(t *testing.T) {
	c := newTestContainer(t)
	syncer := &fakeSyncer{}
	p := newTestProducer(t, c, syncer)

	if err := p.Produce(context.Background(), "/backups/live-backup", nil); err != nil {
		t.Fatalf("Produce() failed: %v", err)
	}
	for i, call := range syncer.calls {
		if call.Opts.LinkDest != "" {
			t.Errorf("Transfer %d has link-dest %q on first backup", i, call.Opts.LinkDest)
		}
	}
}

func TestProduceAbortsOnSnapshotFailure(t *testing.T) {
	c := newTestContainer(t)
	syncer := &fakeSyncer{}
	p := NewProducer(c, syncer)
	p.snapshotIndex = func(src, dst string) error {
		return errors.New("database is locked")
	}

	err := p.Produce(context.Background(), "/backups/live-backup", nil)
	if err == nil {
		t.Fatal("Expected snapshot failure to propagate")
	}
	if len(syncer.calls) != 1 {
		t.Errorf("Expected transfers to stop after the loose step, got %d calls", len(syncer.calls))
	}
}

func TestProduceAbortsOnTransferFailure(t *testing.T) {
	c := newTestContainer(t)
	syncer := &fakeSyncer{
		failAt:  1,
		failErr: &transfer.TransferError{Src: "loose", Dest: "/backups/live-backup"},
	}
	p := newTestProducer(t, c, syncer)

	err := p.Produce(context.Background(), "/backups/live-backup", nil)
	var transferErr *transfer.TransferError
	if !errors.As(err, &transferErr) {
		t.Fatalf("Expected TransferError, got %T: %v", err, err)
	}
	if len(syncer.calls) != 1 {
		t.Errorf("Expected no transfers after the failure, got %d", len(syncer.calls))
	}
}
