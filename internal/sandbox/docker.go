package sandbox

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-units"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"codejudge/internal/logging"
	"codejudge/internal/metrics"
)

const (
	workDir      = "/app"
	pidsLimit    = 100
	outputLimit  = 1 << 20 // bytes captured per stream
	teardownSlop = 10      // extra container lifetime past the time limit
)

// DockerDriver opens sandboxes on a Docker daemon through the SDK client.
type DockerDriver struct {
	cli    *client.Client
	log    *zap.Logger
	active int64
}

// NewDockerDriver connects to the daemon at host, or the environment default
// when host is empty.
func NewDockerDriver(host string) (*DockerDriver, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("docker client init: %w", err)
	}
	return &DockerDriver{cli: cli, log: logging.L().Named("sandbox")}, nil
}

// Active returns the number of currently open sandboxes.
func (d *DockerDriver) Active() int {
	return int(atomic.LoadInt64(&d.active))
}

// Open creates and starts a sleeping container per spec and prepares its
// working directory. The returned Box must be Closed by the caller.
func (d *DockerDriver) Open(ctx context.Context, spec Spec) (Box, error) {
	mem, err := units.RAMInBytes(spec.MemoryLimit)
	if err != nil {
		return nil, fmt.Errorf("parse memory limit %q: %w", spec.MemoryLimit, err)
	}

	env := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, k+"="+v)
	}

	networkMode := container.NetworkMode("bridge")
	if spec.NetworkDisabled {
		networkMode = "none"
	}

	lifetime := spec.TimeLimit + teardownSlop
	cfg := &container.Config{
		Image:           spec.Image,
		Cmd:             []string{"sleep", strconv.Itoa(lifetime)},
		WorkingDir:      workDir,
		User:            "root",
		Env:             env,
		NetworkDisabled: spec.NetworkDisabled,
	}
	hostCfg := &container.HostConfig{
		NetworkMode: networkMode,
		Resources: container.Resources{
			Memory:     mem,
			MemorySwap: mem, // no swap headroom past the limit
			PidsLimit:  ptr(int64(pidsLimit)),
		},
	}

	name := "judge-" + uuid.New().String()[:8]
	created, err := d.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, name)
	if err != nil {
		return nil, d.classify("create", err)
	}

	box := &dockerBox{driver: d, id: created.ID, name: name}
	atomic.AddInt64(&d.active, 1)
	metrics.Get().ActiveSandboxes.Inc()

	if err := d.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		box.Close()
		return nil, d.classify("start", err)
	}
	if _, err := box.Exec(ctx, "mkdir -p "+workDir); err != nil {
		box.Close()
		return nil, err
	}

	d.log.Debug("sandbox opened",
		zap.String("container", name),
		zap.String("image", spec.Image),
		zap.Int("lifetime_s", lifetime))
	return box, nil
}

// classify maps SDK errors onto the package's typed failures.
func (d *DockerDriver) classify(op string, err error) error {
	switch {
	case client.IsErrNotFound(err):
		return fmt.Errorf("%s: %w: %v", op, ErrImageMissing, err)
	case client.IsErrConnectionFailed(err):
		return fmt.Errorf("%s: %w: %v", op, ErrDaemonUnreachable, err)
	default:
		return fmt.Errorf("sandbox %s: %w", op, err)
	}
}

type dockerBox struct {
	driver *DockerDriver
	id     string
	name   string
	closed sync.Once
}

// Put uploads data as a single-entry tar stream extracted into /app.
func (b *dockerBox) Put(ctx context.Context, path string, data []byte) error {
	archive, err := tarball(path, data)
	if err != nil {
		return fmt.Errorf("sandbox put %s: %w", path, err)
	}
	err = b.driver.cli.CopyToContainer(ctx, b.id, workDir, archive, types.CopyToContainerOptions{})
	if err != nil {
		return b.driver.classify("put", err)
	}
	return nil
}

// Exec runs cmd under sh -c and returns its demuxed output and exit code.
// Each stream is capped at outputLimit bytes.
func (b *dockerBox) Exec(ctx context.Context, cmd string) (ExecResult, error) {
	created, err := b.driver.cli.ContainerExecCreate(ctx, b.id, container.ExecOptions{
		Cmd:          []string{"sh", "-c", cmd},
		WorkingDir:   workDir,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return ExecResult{}, b.driver.classify("exec create", err)
	}

	attach, err := b.driver.cli.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return ExecResult{}, b.driver.classify("exec attach", err)
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	_, copyErr := stdcopy.StdCopy(
		&limitedWriter{w: &stdout, limit: outputLimit},
		&limitedWriter{w: &stderr, limit: outputLimit},
		attach.Reader,
	)
	if copyErr != nil && ctx.Err() != nil {
		return ExecResult{}, fmt.Errorf("sandbox exec: %w", ctx.Err())
	}

	inspect, err := b.driver.cli.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return ExecResult{}, b.driver.classify("exec inspect", err)
	}

	return ExecResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: inspect.ExitCode,
	}, nil
}

// Close force-removes the container. Safe to call any number of times and
// from deferred panic paths; removal uses a background context so teardown
// survives caller cancellation.
func (b *dockerBox) Close() error {
	b.closed.Do(func() {
		err := b.driver.cli.ContainerRemove(context.Background(), b.id, container.RemoveOptions{Force: true})
		if err != nil && !client.IsErrNotFound(err) {
			b.driver.log.Warn("container remove failed",
				zap.String("container", b.name), zap.Error(err))
		}
		atomic.AddInt64(&b.driver.active, -1)
		metrics.Get().ActiveSandboxes.Dec()
	})
	return nil
}

// tarball wraps data as a one-entry tar archive rooted at name.
func tarball(name string, data []byte) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	hdr := &tar.Header{
		Name: name,
		Mode: 0o644,
		Size: int64(len(data)),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return nil, err
	}
	if _, err := tw.Write(data); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}

// limitedWriter discards bytes past limit but never errors, so stdcopy keeps
// draining the stream.
type limitedWriter struct {
	w       io.Writer
	limit   int
	written int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	if lw.written < lw.limit {
		remain := lw.limit - lw.written
		if remain > n {
			remain = n
		}
		if _, err := lw.w.Write(p[:remain]); err != nil {
			return 0, err
		}
		lw.written += remain
	}
	return n, nil
}

func ptr[T any](v T) *T { return &v }
