//go:build !linux

package sandbox

import "os/exec"

func setSysProcAttr(cmd *exec.Cmd) {}

func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}
