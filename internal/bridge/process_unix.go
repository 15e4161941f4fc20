//go:build !windows

package bridge

import (
	"os"
	"os/exec"
	"syscall"
)

// setProcAttr places the provider in its own process group so a
// graceful stop reaches helper processes it spawned.
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// sendGracefulStop sends SIGTERM to the provider's process group.
func sendGracefulStop(proc *os.Process) error {
	// Negative pid targets the group created by Setpgid.
	return syscall.Kill(-proc.Pid, syscall.SIGTERM)
}

// sendKill sends SIGKILL to the provider's process group.
func sendKill(proc *os.Process) error {
	return syscall.Kill(-proc.Pid, syscall.SIGKILL)
}
