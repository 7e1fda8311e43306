package repository

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"emperror.dev/errors"
	"github.com/apex/log"
)

// Request describes a single restic invocation.
type Request struct {
	Subcommand string
	Args       []string
	ExpectJSON bool
}

// Result is the raw outcome of a restic process that ran to completion.
type Result struct {
	Succeeded bool
	ExitCode  int
	Stdout    []byte
	Stderr    []byte
}

// Runner executes restic with the given arguments and waits for it to exit.
// A process that starts and exits nonzero must be reported through Result,
// an error is reserved for processes that could not be run at all.
type Runner interface {
	Run(ctx context.Context, args []string) (*Result, error)
}

// waitDelay bounds how long Run waits for the process to exit after it was
// interrupted because its context ended. Once it passes the process is killed.
const waitDelay = 5 * time.Second

// CommandRunner runs the restic binary at Binary as a child process.
type CommandRunner struct {
	Binary string
}

// Run starts the process and buffers stdout and stderr in full. When ctx ends
// the process receives SIGINT so restic can release its repository lock.
func (r *CommandRunner) Run(ctx context.Context, args []string) (*Result, error) {
	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, r.Binary, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = waitDelay

	err := cmd.Run()
	if ctx.Err() != nil && cmd.ProcessState != nil && !cmd.ProcessState.Success() {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, newError(KindTimeout, "restic invocation timed out")
		}
		return nil, wrapError(KindCancelled, ctx.Err(), "restic invocation was cancelled")
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, wrapError(KindExecution, err, "Failed to execute restic")
		}
	}

	return &Result{
		Succeeded: cmd.ProcessState.Success(),
		ExitCode:  cmd.ProcessState.ExitCode(),
		Stdout:    stdout.Bytes(),
		Stderr:    stderr.Bytes(),
	}, nil
}

// Invoker runs restic against a repository, materializing the repository
// password for the lifetime of each process.
type Invoker struct {
	runner  Runner
	tmpDir  string
	timeout time.Duration
}

// NewInvoker returns an invoker using runner. Password files are created in
// tmpDir (empty for the system default) and every invocation is bounded by
// timeout unless it is zero.
func NewInvoker(runner Runner, tmpDir string, timeout time.Duration) *Invoker {
	return &Invoker{runner: runner, tmpDir: tmpDir, timeout: timeout}
}

// Arguments returns the full restic argument list for a request.
func Arguments(location string, passwordFile string, req Request) []string {
	args := make([]string, 0, 5+len(req.Args))
	args = append(args, "-r", location, "--password-file", passwordFile, req.Subcommand)
	return append(args, req.Args...)
}

// Invoke runs req against cfg. The process is detached from cancellation of
// ctx and runs to completion, bounded only by the invoker timeout. The
// password file is removed only after the process has exited, whatever the
// outcome.
func (i *Invoker) Invoke(ctx context.Context, cfg Config, req Request) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cred, err := Materialize(i.tmpDir, cfg.Secret)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := cred.Close(); err != nil {
			log.WithField("path", cred.Path()).WithError(err).Warn("failed to remove password file")
		}
	}()

	ctx = context.WithoutCancel(ctx)
	if i.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}

	logger := log.WithField("subcommand", req.Subcommand)
	start := time.Now()

	res, err := i.runner.Run(ctx, Arguments(cfg.Location, cred.Path(), req))
	if err != nil {
		if KindOf(err) == KindTimeout && i.timeout > 0 {
			err = newError(KindTimeout, fmt.Sprintf("restic invocation timed out after %s", i.timeout))
		}
		logger.WithError(err).Error("restic invocation failed to run")
		return nil, err
	}

	logger.WithFields(log.Fields{
		"exit_code": res.ExitCode,
		"duration":  time.Since(start).String(),
	}).Debug("restic invocation finished")
	return res, nil
}
