//go:build windows

package plugin

import "os/exec"

// setProcessGroup is a no-op on Windows; CommandContext's default kill
// terminates the child, and WaitDelay bounds how long we wait for output.
func setProcessGroup(cmd *exec.Cmd) {}
