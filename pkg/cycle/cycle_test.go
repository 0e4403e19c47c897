package cycle

import (
	"context"
	"errors"
	"testing"

	"github.com/ostorelabs/ostore-backup/pkg/destination"
)

// fakeManager records the order of destination operations.
type fakeManager struct {
	latest     *destination.Folder
	latestErr  error
	promoted   destination.Folder
	promoteErr error
	linkOK     bool
	deleted    []string
	failed     []string

	ops []string
}

func (f *fakeManager) StagingPath() string { return "/backups/live-backup" }

func (f *fakeManager) Latest(ctx context.Context) (*destination.Folder, error) {
	f.ops = append(f.ops, "latest")
	return f.latest, f.latestErr
}

func (f *fakeManager) Promote(ctx context.Context) (destination.Folder, error) {
	f.ops = append(f.ops, "promote")
	return f.promoted, f.promoteErr
}

func (f *fakeManager) UpdateLatestLink(ctx context.Context, target destination.Folder) bool {
	f.ops = append(f.ops, "link")
	return f.linkOK
}

func (f *fakeManager) Prune(ctx context.Context) ([]string, []string, error) {
	f.ops = append(f.ops, "prune")
	return f.deleted, f.failed, nil
}

func TestRunFullCycle(t *testing.T) {
	prev := &destination.Folder{Name: "backup_20230101120000_ab12", Path: "/backups/backup_20230101120000_ab12"}
	mgr := &fakeManager{
		latest:   prev,
		promoted: destination.Folder{Name: "backup_20230102120000_cd34", Path: "/backups/backup_20230102120000_cd34"},
		linkOK:   true,
		deleted:  []string{"backup_20221231120000_zz99"},
	}

	var gotStaging string
	var gotPrevious *destination.Folder
	producer := func(ctx context.Context, staging string, previous *destination.Folder) error {
		gotStaging = staging
		gotPrevious = previous
		return nil
	}

	result, err := New(mgr, producer).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	if gotStaging != "/backups/live-backup" {
		t.Errorf("Producer got staging path %q", gotStaging)
	}
	if gotPrevious != prev {
		t.Errorf("Producer got previous %+v, want %+v", gotPrevious, prev)
	}
	if result.Folder.Name != "backup_20230102120000_cd34" {
		t.Errorf("Unexpected promoted folder %q", result.Folder.Name)
	}
	if !result.LinkUpdated {
		t.Error("Expected link update to be reported")
	}
	if len(result.Deleted) != 1 {
		t.Errorf("Expected one pruned folder, got %v", result.Deleted)
	}

	wantOps := []string{"latest", "promote", "link", "prune"}
	if len(mgr.ops) != len(wantOps) {
		t.Fatalf("Unexpected ops %v", mgr.ops)
	}
	for i, op := range wantOps {
		if mgr.ops[i] != op {
			t.Fatalf("Op %d = %q, want %q (all: %v)", i, mgr.ops[i], op, mgr.ops)
		}
	}
}

func TestRunFirstBackupHasNoPrevious(t *testing.T) {
	mgr := &fakeManager{
		promoted: destination.Folder{Name: "backup_20230102120000_cd34"},
		linkOK:   true,
	}

	var gotPrevious *destination.Folder
	called := false
	producer := func(ctx context.Context, staging string, previous *destination.Folder) error {
		called = true
		gotPrevious = previous
		return nil
	}

	result, err := New(mgr, producer).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if !called {
		t.Fatal("Producer was never invoked")
	}
	if gotPrevious != nil {
		t.Errorf("Expected nil previous on first backup, got %+v", gotPrevious)
	}
	if result.Previous != nil {
		t.Errorf("Expected nil previous in result, got %+v", result.Previous)
	}
}

func TestRunProducerFailureAbortsBeforePromotion(t *testing.T) {
	mgr := &fakeManager{}
	producerErr := errors.New("rsync blew up")
	producer := func(ctx context.Context, staging string, previous *destination.Folder) error {
		return producerErr
	}

	_, err := New(mgr, producer).Run(context.Background())

	var cycleErr *Error
	if !errors.As(err, &cycleErr) {
		t.Fatalf("Expected cycle Error, got %T: %v", err, err)
	}
	if !errors.Is(err, producerErr) {
		t.Errorf("Expected wrapped producer error, got %v", err)
	}
	for _, op := range mgr.ops {
		if op == "promote" || op == "prune" {
			t.Errorf("Operation %q must not run after producer failure (ops: %v)", op, mgr.ops)
		}
	}
}

func TestRunPromotionFailureIsFatal(t *testing.T) {
	mgr := &fakeManager{promoteErr: &destination.PromotionError{Staging: "/backups/live-backup", Target: "/backups/backup_x"}}
	producer := func(ctx context.Context, staging string, previous *destination.Folder) error { return nil }

	_, err := New(mgr, producer).Run(context.Background())

	var promErr *destination.PromotionError
	if !errors.As(err, &promErr) {
		t.Fatalf("Expected wrapped PromotionError, got %T: %v", err, err)
	}
	for _, op := range mgr.ops {
		if op == "prune" || op == "link" {
			t.Errorf("Operation %q must not run after promotion failure (ops: %v)", op, mgr.ops)
		}
	}
}

func TestRunPruneRunsEvenIfLinkUpdateFails(t *testing.T) {
	mgr := &fakeManager{
		promoted: destination.Folder{Name: "backup_20230102120000_cd34"},
		linkOK:   false,
	}
	producer := func(ctx context.Context, staging string, previous *destination.Folder) error { return nil }

	result, err := New(mgr, producer).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if result.LinkUpdated {
		t.Error("Expected link update failure to be reported")
	}

	sawPrune := false
	for _, op := range mgr.ops {
		if op == "prune" {
			sawPrune = true
		}
	}
	if !sawPrune {
		t.Errorf("Prune must run after successful promotion, ops: %v", mgr.ops)
	}
}
