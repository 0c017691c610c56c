//go:build windows

package supervisor

import (
	"os"
	"os/exec"
)

func setProcessGroup(cmd *exec.Cmd) {}

// Windows has no SIGTERM; both phases kill the process.
func terminate(proc *os.Process) error {
	return proc.Kill()
}

func kill(proc *os.Process) error {
	return proc.Kill()
}

func exitSignal(ps *os.ProcessState) string {
	return ""
}
