//go:build windows

package bridge

import (
	"os"
	"os/exec"
)

// setProcAttr is a no-op on Windows; there are no process groups to set up.
func setProcAttr(cmd *exec.Cmd) {}

// sendGracefulStop terminates the provider on Windows.
// Windows does not support SIGTERM; Kill() calls TerminateProcess.
func sendGracefulStop(proc *os.Process) error {
	return proc.Kill()
}

// sendKill terminates the provider on Windows.
func sendKill(proc *os.Process) error {
	return proc.Kill()
}
