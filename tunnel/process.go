package tunnel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/iosmockgps/mockgps-agent/toolkit"
)

// DefaultCommand starts the pymobiledevice3 tunnel daemon.
var DefaultCommand = []string{"python3", "-m", "pymobiledevice3", "remote", "tunneld"}

// Process is a running tunnel.
type Process interface {
	// Output returns stdout and stderr merged. It reaches EOF after the process exited.
	Output() io.Reader
	// Wait blocks until the process exited.
	Wait() error
	// Terminate asks the process to exit.
	Terminate() error
	// Kill forces the process to exit.
	Kill() error
	Pid() int
}

// Launcher starts tunnel processes.
type Launcher interface {
	Launch(ctx context.Context) (Process, error)
}

// CommandLauncher runs Args as a child process in its own process group. Terminate and
// Kill reach every process of the group.
type CommandLauncher struct {
	Args []string
	// WaitDelay bounds how long Wait waits for the output of an exited tunnel, defaults to
	// toolkit.DefaultWaitDelay.
	WaitDelay time.Duration
}

// Launch starts the command. The process is not bound to ctx, it lives until it is
// terminated or exits on its own.
func (l CommandLauncher) Launch(ctx context.Context) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(l.Args) == 0 {
		return nil, errors.New("Launch: empty tunnel command")
	}
	pr, pw := io.Pipe()
	cmd := exec.Command(l.Args[0], l.Args[1:]...)
	cmd.Stdout = pw
	cmd.Stderr = pw
	toolkit.IsolateGroup(cmd)
	cmd.WaitDelay = l.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = toolkit.DefaultWaitDelay
	}
	if err := cmd.Start(); err != nil {
		pw.Close()
		return nil, fmt.Errorf("Launch: failed starting %s: %w", l.Args[0], err)
	}
	return &execProcess{cmd: cmd, output: pr, writer: pw}, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	output *io.PipeReader
	writer *io.PipeWriter
}

func (p *execProcess) Output() io.Reader {
	return p.output
}

func (p *execProcess) Wait() error {
	err := p.cmd.Wait()
	p.writer.Close()
	return err
}

func (p *execProcess) Terminate() error {
	return p.signal(syscall.SIGTERM)
}

func (p *execProcess) Kill() error {
	return p.signal(syscall.SIGKILL)
}

func (p *execProcess) signal(sig syscall.Signal) error {
	err := toolkit.SignalGroup(p.cmd.Process, sig)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func (p *execProcess) Pid() int {
	return p.cmd.Process.Pid
}
