package toolkit

import (
	"os"
	"os/exec"
	"syscall"
)

// IsolateGroup is a no-op on windows.
func IsolateGroup(cmd *exec.Cmd) {}

// SignalGroup kills p, windows has no signals to deliver.
func SignalGroup(p *os.Process, sig syscall.Signal) error {
	return p.Kill()
}
