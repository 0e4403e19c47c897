package cmdrun

import (
	"context"
	"strings"
	"sync"
)

// FakeResult scripts the outcome of one Run invocation on a FakeRunner.
type FakeResult struct {
	Success bool
	Stdout  string
}

// FakeRunner is a Runner for tests. It records every argument vector it
// receives and returns scripted outcomes, matched by argv prefix. Unmatched
// commands succeed with empty output.
type FakeRunner struct {
	mu      sync.Mutex
	calls   [][]string
	scripts map[string]FakeResult
}

// Statically assert that *FakeRunner implements the Runner interface.
var _ Runner = (*FakeRunner)(nil)

// NewFake creates an empty FakeRunner.
func NewFake() *FakeRunner {
	return &FakeRunner{scripts: make(map[string]FakeResult)}
}

// Script registers the outcome for any command whose space-joined argv
// starts with prefix. Later registrations win on longer prefixes.
func (f *FakeRunner) Script(prefix string, res FakeResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[prefix] = res
}

// Run records argv and returns the scripted outcome.
func (f *FakeRunner) Run(_ context.Context, argv []string) (bool, string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, append([]string(nil), argv...))

	joined := strings.Join(argv, " ")
	var bestPrefix string
	res := FakeResult{Success: true}
	for prefix, scripted := range f.scripts {
		if strings.HasPrefix(joined, prefix) && len(prefix) >= len(bestPrefix) {
			bestPrefix = prefix
			res = scripted
		}
	}
	return res.Success, res.Stdout
}

// Calls returns a copy of all recorded argument vectors, in order.
func (f *FakeRunner) Calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([][]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = append([]string(nil), c...)
	}
	return out
}
