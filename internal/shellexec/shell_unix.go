//go:build unix

package shellexec

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// setpgidAttr starts the shell in its own process group so that
// killProcessGroup can terminate an entire pipeline on timeout.
func setpgidAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

// killProcessGroup sends SIGKILL to the process group started for cmd, so a
// pipeline's children are reaped along with the shell itself (spec.md §5,
// "killed with SIGKILL").
func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	_ = cmd.Process.Kill()
}
