// Package sandbox provides isolated containers for untrusted code. A Driver
// opens a Box per execution; callers upload files into it, run commands, and
// must Close it when done.
package sandbox

import (
	"context"
	"errors"
)

// Spec describes the container a Box should be opened with. TimeLimit is the
// per-phase budget in seconds; the container itself lives TimeLimit+10 so
// teardown always wins the race against a wedged process.
type Spec struct {
	Image           string
	TimeLimit       int
	MemoryLimit     string // docker-style, e.g. "512m"
	NetworkDisabled bool
	Env             map[string]string
}

// ExecResult is the captured outcome of one command inside a Box.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Box is one live sandbox. Close is idempotent and must be called on every
// path, including panics.
type Box interface {
	// Put uploads data as a file under the working directory. Path is
	// relative to /app.
	Put(ctx context.Context, path string, data []byte) error
	// Exec runs cmd under `sh -c` in /app and waits for it to finish.
	Exec(ctx context.Context, cmd string) (ExecResult, error)
	Close() error
}

// Driver opens sandboxes.
type Driver interface {
	Open(ctx context.Context, spec Spec) (Box, error)
}

// Infrastructure failures, distinct from the program inside failing.
var (
	// ErrImageMissing means the requested image is not present on the host.
	ErrImageMissing = errors.New("sandbox: image not found")
	// ErrDaemonUnreachable means the container daemon did not answer.
	ErrDaemonUnreachable = errors.New("sandbox: daemon unreachable")
)
