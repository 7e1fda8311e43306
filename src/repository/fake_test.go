package repository

import (
	"context"
	"os"
	"sync"
	"time"
)

// invocation is a single call recorded by fakeRunner.
type invocation struct {
	args        []string
	credential  string
	secret      string
	credExisted bool
	start, end  time.Time
}

// fakeRunner records every call and answers with a canned result.
type fakeRunner struct {
	mu     sync.Mutex
	calls  []invocation
	result *Result
	err    error
	delay  time.Duration
}

func (f *fakeRunner) Run(ctx context.Context, args []string) (*Result, error) {
	inv := invocation{args: append([]string(nil), args...), start: time.Now()}
	for i, a := range args {
		if a == "--password-file" && i+1 < len(args) {
			inv.credential = args[i+1]
			if b, err := os.ReadFile(inv.credential); err == nil {
				inv.credExisted = true
				inv.secret = string(b)
			}
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	inv.end = time.Now()

	f.mu.Lock()
	f.calls = append(f.calls, inv)
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	if f.result == nil {
		return &Result{Succeeded: true}, nil
	}
	r := *f.result
	return &r, nil
}

func (f *fakeRunner) Calls() []invocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]invocation(nil), f.calls...)
}

var testConfig = Config{Location: "/srv/restic", Secret: "hunter2"}
