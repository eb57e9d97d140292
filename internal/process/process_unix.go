//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

// detachProcessGroup puts the child in its own process group so a signal
// sent to the supervisor's own group (e.g. Ctrl-C in a terminal) does not
// also reach the sidecar.
func detachProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// gracefulSignal sends SIGTERM, the POSIX request for an orderly exit.
func gracefulSignal(cmd *exec.Cmd) error {
	return cmd.Process.Signal(syscall.SIGTERM)
}
