//go:build linux

package executor

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

const (
	terminateSignal = unix.SIGTERM
	killSignal      = unix.SIGKILL
)

// setProcessGroup configures the command to run in its own process group and
// receive SIGKILL if the parent dies (Linux-only Pdeathsig).
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pgid:      0,
		Pdeathsig: syscall.SIGKILL,
	}
}

// signalGroup delivers sig to the process group led by pid. The group
// outlives its leader, so this still reaches children after the leader has
// been reaped.
func signalGroup(pid int, sig unix.Signal) error {
	if pid <= 0 {
		return nil
	}
	return unix.Kill(-pid, sig)
}
