//go:build windows

package process

import (
	"os/exec"

	"golang.org/x/sys/windows"
)

// detachProcessGroup gives the child its own process group so a console
// control event targeted at it by PID does not also reach the supervisor.
func detachProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &windows.SysProcAttr{CreationFlags: windows.CREATE_NEW_PROCESS_GROUP}
}

// gracefulSignal requests an orderly exit. The sidecar has no window to
// post WM_CLOSE to, so the Windows equivalent for a console/background
// process is a CTRL_BREAK_EVENT delivered to its process group, which the
// CREATE_NEW_PROCESS_GROUP flag in detachProcessGroup makes deliverable by
// PID rather than by broadcasting to every process in the caller's own
// console session.
func gracefulSignal(cmd *exec.Cmd) error {
	return windows.GenerateConsoleCtrlEvent(windows.CTRL_BREAK_EVENT, uint32(cmd.Process.Pid))
}
