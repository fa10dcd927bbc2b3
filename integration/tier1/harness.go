//go:build integration

package tier1

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const defaultTimeout = 5 * time.Minute

// Harness builds the dirbakd binary once and runs it against scratch
// directories on the host. The backup engine needs nothing but a
// filesystem, so no container is involved.
type Harness struct {
	t   *testing.T
	bin string
}

// NewHarness creates a new test harness
func NewHarness(t *testing.T) *Harness {
	t.Helper()
	return &Harness{t: t}
}

// Build compiles the dirbakd binary into a scratch directory
func (h *Harness) Build(ctx context.Context) error {
	h.t.Helper()
	bin := filepath.Join(h.t.TempDir(), "dirbakd")
	h.t.Logf("Building %s", bin)

	cmd := exec.CommandContext(ctx, "go", "build", "-o", bin, "../../cmd/dirbakd")
	cmd.Stdout = &testWriter{t: h.t, prefix: "[build] "}
	cmd.Stderr = &testWriter{t: h.t, prefix: "[build] "}

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("go build: %w", err)
	}

	h.bin = bin
	return nil
}

// Run executes a dirbakd subcommand against the given config file and
// returns stdout, stderr and the exit code
func (h *Harness) Run(ctx context.Context, configPath string, args ...string) (string, string, int, error) {
	h.t.Helper()
	if h.bin == "" {
		return "", "", 0, fmt.Errorf("binary not built")
	}

	full := append([]string{"--config", configPath}, args...)
	cmd := exec.CommandContext(ctx, h.bin, full...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return "", "", 0, fmt.Errorf("run dirbakd: %w", err)
		}
	}

	return stdout.String(), stderr.String(), exitCode, nil
}

// MustRun executes a dirbakd subcommand and fails the test if it returns
// non-zero
func (h *Harness) MustRun(ctx context.Context, configPath string, args ...string) (string, string) {
	h.t.Helper()
	stdout, stderr, exitCode, err := h.Run(ctx, configPath, args...)
	if err != nil {
		h.t.Fatalf("run failed: %v", err)
	}
	if exitCode != 0 {
		h.t.Fatalf("command failed with exit code %d\nstdout: %s\nstderr: %s\nargs: %v",
			exitCode, stdout, stderr, args)
	}
	return stdout, stderr
}

// StartDaemon launches `dirbakd run` in the background. The returned stop
// function interrupts the daemon and waits for a clean exit.
func (h *Harness) StartDaemon(ctx context.Context, configPath string) (func() error, error) {
	h.t.Helper()
	if h.bin == "" {
		return nil, fmt.Errorf("binary not built")
	}

	cmd := exec.CommandContext(ctx, h.bin, "--config", configPath, "run")
	cmd.Stdout = &testWriter{t: h.t, prefix: "[daemon] "}
	cmd.Stderr = &testWriter{t: h.t, prefix: "[daemon] "}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start daemon: %w", err)
	}
	h.t.Logf("Daemon started: pid %d", cmd.Process.Pid)

	return func() error {
		if err := cmd.Process.Signal(os.Interrupt); err != nil {
			return fmt.Errorf("interrupt daemon: %w", err)
		}
		return cmd.Wait()
	}, nil
}

// testWriter wraps test logging for command output
type testWriter struct {
	t      *testing.T
	prefix string
}

func (w *testWriter) Write(p []byte) (n int, err error) {
	lines := strings.Split(string(p), "\n")
	for _, line := range lines {
		if line != "" {
			w.t.Log(w.prefix + line)
		}
	}
	return len(p), nil
}

var _ io.Writer = (*testWriter)(nil)
