package toolkit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
)

// Result is what a finished command wrote to its output streams.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// CommandError is returned when a command was started but did not exit cleanly.
type CommandError struct {
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("command '%s' exited with code %d", strings.Join(e.Args, " "), e.ExitCode)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ": " + stderr
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ErrorText returns the text a client should see for a failed command: the captured
// stderr if there is any, the error message otherwise.
func ErrorText(err error) string {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) && strings.TrimSpace(cmdErr.Stderr) != "" {
		return cmdErr.Stderr
	}
	return err.Error()
}

// Runner executes a program with an explicit argument vector. Implementations never
// hand the arguments to a shell.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// DefaultWaitDelay is how long Run waits for the output streams of a killed command.
const DefaultWaitDelay = 2 * time.Second

// ExecRunner runs commands as local child processes. Each command gets its own process
// group and the whole group is killed when ctx ends.
type ExecRunner struct {
	// Dir is the working directory, the current one if empty.
	Dir string
	// Env is appended to the inherited environment.
	Env []string
	// WaitDelay overrides DefaultWaitDelay.
	WaitDelay time.Duration
}

// Run starts name with args, waits for it and captures stdout and stderr.
// A non zero exit yields a *CommandError, a cancelled or expired ctx yields ctx.Err() wrapped.
func (r ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.Dir
	IsolateGroup(cmd)
	cmd.Cancel = func() error {
		return SignalGroup(cmd.Process, syscall.SIGKILL)
	}
	cmd.WaitDelay = r.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = DefaultWaitDelay
	}
	if len(r.Env) > 0 {
		cmd.Env = append(cmd.Environ(), r.Env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.WithFields(log.Fields{"cmd": name, "args": args}).Debug("running command")
	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return res, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		res.ExitCode = -1
		return res, fmt.Errorf("Run: %s did not finish: %w", name, ctxErr)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, &CommandError{
			Args:     append([]string{name}, args...),
			ExitCode: res.ExitCode,
			Stderr:   res.Stderr,
			Err:      err,
		}
	}
	return res, fmt.Errorf("Run: failed starting %s: %w", name, err)
}
