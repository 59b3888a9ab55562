//go:build unix

package detector

import (
	"os/exec"
	"syscall"
)

// isolate starts the detector in its own process group so a timeout kills
// the interpreter together with any helpers it spawned.
func isolate(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
