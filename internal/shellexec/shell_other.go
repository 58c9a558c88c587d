//go:build !unix

package shellexec

import (
	"os/exec"
	"syscall"
)

func setpgidAttr() *syscall.SysProcAttr {
	return nil
}

func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
}
