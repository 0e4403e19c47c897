package cmdrun

import (
	"context"
	"os/exec"
	"testing"
)

func TestRemotePrefixing(t *testing.T) {
	var gotName string
	var gotArgs []string

	r := New("backup@nas")
	r.commandContext = func(ctx context.Context, name string, arg ...string) *exec.Cmd {
		gotName = name
		gotArgs = arg
		// Return a command that is guaranteed to exist so Run completes.
		return exec.CommandContext(ctx, "true")
	}

	r.Run(context.Background(), []string{"mkdir", "/backups"})

	if gotName != "ssh" {
		t.Errorf("Expected command name 'ssh', got %q", gotName)
	}
	if len(gotArgs) != 3 || gotArgs[0] != "backup@nas" || gotArgs[1] != "mkdir" || gotArgs[2] != "/backups" {
		t.Errorf("Unexpected remote argv: %v", gotArgs)
	}
}

func TestLocalNoPrefix(t *testing.T) {
	var gotName string

	r := New("")
	r.commandContext = func(ctx context.Context, name string, arg ...string) *exec.Cmd {
		gotName = name
		return exec.CommandContext(ctx, "true")
	}

	r.Run(context.Background(), []string{"find", "/tmp"})

	if gotName != "find" {
		t.Errorf("Expected local command to run directly, got %q", gotName)
	}
}

func TestRunCapturesOutcome(t *testing.T) {
	r := New("")

	success, stdout := r.Run(context.Background(), []string{"sh", "-c", "printf hello"})
	if !success {
		t.Error("Expected success for exit code 0")
	}
	if stdout != "hello" {
		t.Errorf("Expected stdout 'hello', got %q", stdout)
	}

	success, _ = r.Run(context.Background(), []string{"sh", "-c", "exit 3"})
	if success {
		t.Error("Expected failure for non-zero exit code")
	}
}

func TestRunLaunchFailure(t *testing.T) {
	r := New("")

	// A command that cannot be launched still surfaces as success=false.
	success, _ := r.Run(context.Background(), []string{"/nonexistent/definitely-not-a-binary"})
	if success {
		t.Error("Expected failure for unlaunchable command")
	}
}

func TestFakeRunnerScripting(t *testing.T) {
	f := NewFake()
	f.Script("find", FakeResult{Success: true, Stdout: "/a\n/b\n"})
	f.Script("rm -rf /a", FakeResult{Success: false})

	success, stdout := f.Run(context.Background(), []string{"find", "/dest", "-maxdepth", "1"})
	if !success || stdout != "/a\n/b\n" {
		t.Errorf("Unexpected scripted outcome: %v %q", success, stdout)
	}

	success, _ = f.Run(context.Background(), []string{"rm", "-rf", "/a"})
	if success {
		t.Error("Expected scripted failure for rm -rf /a")
	}

	// Unscripted commands succeed by default.
	success, _ = f.Run(context.Background(), []string{"mv", "/x", "/y"})
	if !success {
		t.Error("Expected default success for unscripted command")
	}

	if len(f.Calls()) != 3 {
		t.Errorf("Expected 3 recorded calls, got %d", len(f.Calls()))
	}
}
