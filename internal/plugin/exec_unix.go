//go:build !windows

package plugin

import (
	"os/exec"
	"syscall"
)

// setProcessGroup puts the child in its own process group and rewires
// cancellation to signal the whole group, so tools that fork (test runners,
// package managers) cannot leave orphaned grandchildren behind.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
