// Package process launches and terminates the sidecar server process, and
// recognizes an orphaned process left running by a prior, crashed instance
// of the Supervisor.
package process

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	gopsutilprocess "github.com/shirou/gopsutil/v4/process"

	"github.com/browseros-org/sidecar-supervisor/internal/model"
)

// GracePeriod is how long Terminate waits for a graceful exit before
// escalating to a forced kill.
const GracePeriod = 3 * time.Second

// LaunchResult is the outcome of a successful Launch.
type LaunchResult struct {
	Cmd          *exec.Cmd
	UsedFallback bool
}

// Launch starts the sidecar using config.Paths.PrimaryExe, falling back to
// FallbackExe if the primary binary is missing or fails to start. Launch
// fails only if both attempts fail.
func Launch(ctx context.Context, config model.ServerLaunchConfig) (*LaunchResult, error) {
	args := launchArgs(config)

	if config.Paths.PrimaryExe != "" {
		if cmd, err := startProcess(ctx, config.Paths.PrimaryExe, args); err == nil {
			return &LaunchResult{Cmd: cmd, UsedFallback: false}, nil
		}
	}

	if config.Paths.FallbackExe != "" {
		if cmd, err := startProcess(ctx, config.Paths.FallbackExe, args); err == nil {
			return &LaunchResult{Cmd: cmd, UsedFallback: true}, nil
		}
	}

	return nil, fmt.Errorf("launch sidecar: both primary %q and fallback %q failed to start",
		config.Paths.PrimaryExe, config.Paths.FallbackExe)
}

func launchArgs(config model.ServerLaunchConfig) []string {
	args := []string{
		fmt.Sprintf("--cdp-port=%d", config.Ports.CDP),
		fmt.Sprintf("--mcp-port=%d", config.Ports.MCP),
		fmt.Sprintf("--extension-port=%d", config.Ports.Extension),
		fmt.Sprintf("--install-id=%s", config.Identity.InstallID),
		fmt.Sprintf("--host-version=%s", config.Identity.HostVersion),
	}
	if config.AllowRemote {
		args = append(args, "--allow-remote")
	}
	return args
}

func startProcess(ctx context.Context, exePath string, args []string) (*exec.Cmd, error) {
	if _, err := os.Stat(exePath); err != nil {
		return nil, fmt.Errorf("stat %s: %w", exePath, err)
	}
	cmd := exec.CommandContext(ctx, exePath, args...)
	detachProcessGroup(cmd)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", exePath, err)
	}
	return cmd, nil
}

// Terminate stops a running process, preferring a graceful shutdown and
// escalating to a forced kill after GracePeriod, or immediately when force
// is true. A process that has already exited is a successful terminate.
func Terminate(cmd *exec.Cmd, force bool) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	if !force {
		if err := gracefulSignal(cmd); err == nil {
			if waitWithTimeout(cmd, GracePeriod) {
				return nil
			}
		}
	}

	if err := cmd.Process.Kill(); err != nil && !isProcessAlreadyGone(err) {
		return fmt.Errorf("force-kill process: %w", err)
	}
	return nil
}

func waitWithTimeout(cmd *exec.Cmd, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		cmd.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func isProcessAlreadyGone(err error) bool {
	return err != nil && os.IsNotExist(err)
}

// IsOrphanAlive reports whether a previously recorded {pid, creationTime}
// still refers to a live process, guarding against PID reuse by comparing
// the OS-reported creation timestamp.
func IsOrphanAlive(ctx context.Context, state model.ServerState) bool {
	proc, err := gopsutilprocess.NewProcessWithContext(ctx, int32(state.PID))
	if err != nil {
		return false
	}
	running, err := proc.IsRunningWithContext(ctx)
	if err != nil || !running {
		return false
	}
	createTime, err := proc.CreateTimeWithContext(ctx)
	if err != nil {
		return false
	}
	return uint64(createTime) == state.CreationTime
}

// KillOrphan terminates a process identified only by PID (no live *exec.Cmd
// handle exists for a recovered orphan), used during Supervisor.Start's
// orphan-recovery step.
func KillOrphan(ctx context.Context, pid uint64) error {
	proc, err := gopsutilprocess.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return nil
	}
	if err := proc.TerminateWithContext(ctx); err != nil {
		return proc.KillWithContext(ctx)
	}
	return nil
}
