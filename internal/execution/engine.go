// Package execution runs submitted programs inside sandboxes and classifies
// the outcome by exit code.
package execution

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"codejudge/internal/language"
	"codejudge/internal/logging"
	"codejudge/internal/sandbox"
)

// Exit codes produced by `timeout` and the kernel OOM killer.
const (
	exitTimeout = 124
	exitKilled  = 137
)

const stdinFile = "stdin.txt"

// Request is one program execution: the file set, the language to run it as,
// and what to feed on stdin. Zero TimeLimit/empty MemoryLimit fall back to
// the engine defaults.
type Request struct {
	Files       map[string]string
	Language    string
	Stdin       string
	TimeLimit   int
	MemoryLimit string
}

// Runner is the narrow interface the grader and handlers consume.
type Runner interface {
	Run(ctx context.Context, req Request) Result
}

// Engine executes requests on a sandbox driver using the compile-then-run
// protocol. One Run opens exactly one sandbox and always tears it down.
type Engine struct {
	driver sandbox.Driver
	log    *zap.Logger

	defaultTimeLimit   int
	defaultMemoryLimit string
	networkDisabled    bool
}

// Options carries the engine defaults taken from service configuration.
type Options struct {
	TimeLimit       int
	MemoryLimit     string
	NetworkDisabled bool
}

func NewEngine(driver sandbox.Driver, opts Options) *Engine {
	if opts.TimeLimit <= 0 {
		opts.TimeLimit = 15
	}
	if opts.MemoryLimit == "" {
		opts.MemoryLimit = "512m"
	}
	return &Engine{
		driver:             driver,
		log:                logging.L().Named("execution"),
		defaultTimeLimit:   opts.TimeLimit,
		defaultMemoryLimit: opts.MemoryLimit,
		networkDisabled:    opts.NetworkDisabled,
	}
}

// Run compiles (when the language needs it) and runs the request inside a
// fresh sandbox. Program failures come back as tagged outcomes; only
// infrastructure faults produce Internal.
func (e *Engine) Run(ctx context.Context, req Request) Result {
	profile, err := language.Lookup(req.Language)
	if err != nil {
		return Result{Outcome: Internal, Error: err.Error()}
	}

	timeLimit := req.TimeLimit
	if timeLimit <= 0 {
		timeLimit = e.defaultTimeLimit
	}
	memLimit := req.MemoryLimit
	if memLimit == "" {
		memLimit = e.defaultMemoryLimit
	}

	box, err := e.driver.Open(ctx, sandbox.Spec{
		Image:           profile.Image,
		TimeLimit:       timeLimit,
		MemoryLimit:     memLimit,
		NetworkDisabled: e.networkDisabled,
		Env:             profile.Env,
	})
	if err != nil {
		e.log.Error("sandbox open failed", zap.String("language", profile.Name), zap.Error(err))
		return Result{Outcome: Internal, Error: fmt.Sprintf("sandbox unavailable: %v", err)}
	}
	defer box.Close()

	if err := e.upload(ctx, box, profile, req); err != nil {
		return Result{Outcome: Internal, Error: err.Error()}
	}

	if profile.Compiled() {
		res, cerr := box.Exec(ctx, wrapTimeout(timeLimit, profile.Compile))
		if cerr != nil {
			return Result{Outcome: Internal, Error: fmt.Sprintf("compile exec failed: %v", cerr)}
		}
		if res.ExitCode != 0 {
			msg := strings.TrimSpace(res.Stderr)
			if msg == "" {
				msg = strings.TrimSpace(res.Stdout)
			}
			if res.ExitCode == exitTimeout {
				return Result{Outcome: Timeout}
			}
			return Result{Outcome: CompileError, Error: msg}
		}
		// Binaries produced by gcc land in /app; make sure they run.
		if profile.Name == "c" || profile.Name == "cpp" {
			if _, err := box.Exec(ctx, "chmod +x /app/main"); err != nil {
				return Result{Outcome: Internal, Error: fmt.Sprintf("chmod failed: %v", err)}
			}
		}
	}

	runCmd := wrapTimeout(timeLimit, profile.Run)
	if req.Stdin != "" {
		runCmd += " < /app/" + stdinFile
	}

	started := time.Now()
	res, rerr := box.Exec(ctx, runCmd)
	elapsed := time.Since(started).Seconds()
	if rerr != nil {
		return Result{Outcome: Internal, Error: fmt.Sprintf("run exec failed: %v", rerr), Compiled: true}
	}

	out := Result{
		Compiled:      true,
		Output:        res.Stdout,
		ExecutionTime: elapsed,
	}
	switch res.ExitCode {
	case 0:
		out.Outcome = OK
	case exitTimeout:
		out.Outcome = Timeout
	case exitKilled:
		out.Outcome = OOM
	default:
		out.Outcome = Runtime
		msg := strings.TrimSpace(res.Stderr)
		if msg == "" {
			msg = fmt.Sprintf("Runtime Error (Exit Code %d)", res.ExitCode)
		}
		out.Error = msg
	}
	return out
}

// upload places the request's files and stdin into the box. When no file
// matches the profile's entry filename, the first file (by name) is also
// uploaded under the canonical name so the run command has an entry point.
func (e *Engine) upload(ctx context.Context, box sandbox.Box, profile language.Profile, req Request) error {
	if _, ok := req.Files[profile.Filename]; !ok && len(req.Files) > 0 {
		names := make([]string, 0, len(req.Files))
		for name := range req.Files {
			names = append(names, name)
		}
		sort.Strings(names)
		entry := names[0]
		if err := box.Put(ctx, profile.Filename, []byte(req.Files[entry])); err != nil {
			return fmt.Errorf("upload %s: %w", profile.Filename, err)
		}
	}
	for name, content := range req.Files {
		if err := box.Put(ctx, name, []byte(content)); err != nil {
			return fmt.Errorf("upload %s: %w", name, err)
		}
	}
	if req.Stdin != "" {
		if err := box.Put(ctx, stdinFile, []byte(req.Stdin)); err != nil {
			return fmt.Errorf("upload stdin: %w", err)
		}
	}
	return nil
}

func wrapTimeout(seconds int, cmd string) string {
	return fmt.Sprintf("timeout %d %s", seconds, cmd)
}
