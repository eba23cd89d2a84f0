//go:build !windows

package toolkit

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// IsolateGroup makes cmd the leader of a new process group, so that SignalGroup reaches
// every process it spawns.
func IsolateGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// SignalGroup sends sig to the process group led by p. It returns os.ErrProcessDone
// once no process of the group is left.
func SignalGroup(p *os.Process, sig syscall.Signal) error {
	err := syscall.Kill(-p.Pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		return os.ErrProcessDone
	}
	return err
}
