// Package tunnel supervises the toolkit's tunnel daemon and publishes the rsd address
// it prints once a device tunnel is up.
//
// The address moves through Pending, Ready and Failed. Readers either take a snapshot with
// Address or block with Await until the tunnel is resolved or their context ends. When the
// daemon exits after the address was published, the address is invalidated.
package tunnel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/iosmockgps/mockgps-agent/toolkit"
	log "github.com/sirupsen/logrus"
)

var (
	// ErrNotReady wraps every error handed to callers waiting for an address.
	ErrNotReady = errors.New("device tunnel is not established")
	// ErrMarkerNotFound means the daemon's output ended without announcing a tunnel.
	ErrMarkerNotFound = errors.New("tunnel output ended before an rsd address was printed")
	// ErrStartTimeout means no address was printed within the start timeout.
	ErrStartTimeout = errors.New("timed out waiting for the rsd address")
	// ErrExited means the daemon exited after the tunnel was up.
	ErrExited = errors.New("tunnel process exited")
	// ErrStopped means the supervisor was stopped.
	ErrStopped = errors.New("tunnel supervisor stopped")
)

// State of the published address.
type State int

const (
	StatePending State = iota
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "pending"
	}
}

// Options tune the supervisor. Zero values disable the respective behaviour.
type Options struct {
	// StartTimeout bounds the time between launch and the marker line.
	StartTimeout time.Duration
	// StopGrace is how long Stop waits after SIGTERM before killing.
	StopGrace time.Duration
	// RestartDelay relaunches the daemon this long after it exited.
	RestartDelay time.Duration
}

// Info is a snapshot of the supervisor for status output.
type Info struct {
	State     string     `json:"state"`
	Address   string     `json:"address"`
	Host      string     `json:"host,omitempty"`
	Port      int        `json:"port,omitempty"`
	Pid       int        `json:"pid,omitempty"`
	Error     string     `json:"error,omitempty"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
	Launches  int        `json:"launches"`
}

// Supervisor owns the tunnel process and the address it printed.
type Supervisor struct {
	launcher Launcher
	opts     Options

	mu        sync.Mutex
	state     State
	addr      toolkit.RSDAddress
	err       error
	changed   chan struct{}
	proc      Process
	startedAt time.Time
	launches  int
	stopping  bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewSupervisor creates a supervisor that starts tunnels with launcher.
func NewSupervisor(launcher Launcher, opts Options) *Supervisor {
	return &Supervisor{
		launcher: launcher,
		opts:     opts,
		changed:  make(chan struct{}),
	}
}

// Start launches the tunnel in the background and returns immediately.
func (s *Supervisor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		cancel()
		return
	}
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()
	go s.run(ctx)
}

func (s *Supervisor) run(ctx context.Context) {
	defer close(s.done)
	for {
		s.runOnce(ctx)
		if s.opts.RestartDelay <= 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.opts.RestartDelay):
			log.WithField("delay", s.opts.RestartDelay).Info("restarting tunnel")
		}
	}
}

func (s *Supervisor) runOnce(ctx context.Context) {
	s.reset()
	proc, err := s.launcher.Launch(ctx)
	if err != nil {
		s.fail(fmt.Errorf("error starting tunnel: %w", err))
		return
	}
	s.setProcess(proc)
	log.WithField("pid", proc.Pid()).Info("tunnel process started")

	waitErr := make(chan error, 1)
	go func() { waitErr <- proc.Wait() }()

	if s.opts.StartTimeout > 0 {
		timer := time.AfterFunc(s.opts.StartTimeout, func() {
			if s.fail(ErrStartTimeout) {
				_ = proc.Terminate()
			}
		})
		defer timer.Stop()
	}

	if err := scanOutput(proc.Output(), s.ready); err != nil {
		s.fail(err)
	}
	err = <-waitErr
	s.exited(err)
}

// Address returns the current address. It is zero unless the state is StateReady.
func (s *Supervisor) Address() (toolkit.RSDAddress, State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr, s.state
}

// Await blocks until the address is known, the tunnel failed, or ctx is done.
// All errors wrap ErrNotReady.
func (s *Supervisor) Await(ctx context.Context) (toolkit.RSDAddress, error) {
	for {
		s.mu.Lock()
		state, addr, err, changed := s.state, s.addr, s.err, s.changed
		s.mu.Unlock()

		switch state {
		case StateReady:
			return addr, nil
		case StateFailed:
			return toolkit.RSDAddress{}, fmt.Errorf("%w: %w", ErrNotReady, err)
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return toolkit.RSDAddress{}, fmt.Errorf("%w: %w", ErrNotReady, ctx.Err())
		}
	}
}

// Info returns a snapshot for status pages.
func (s *Supervisor) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := Info{
		State:    s.state.String(),
		Address:  s.addr.String(),
		Host:     s.addr.Host,
		Port:     s.addr.Port,
		Launches: s.launches,
	}
	if !s.startedAt.IsZero() {
		startedAt := s.startedAt
		info.StartedAt = &startedAt
	}
	if s.proc != nil {
		info.Pid = s.proc.Pid()
	}
	if s.err != nil {
		info.Error = s.err.Error()
	}
	return info
}

// Stop terminates the tunnel process and stops restarts. If the process does not exit
// within StopGrace it is killed.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	proc, cancel, done := s.proc, s.cancel, s.done
	s.stopping = true
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.fail(ErrStopped)
	if proc != nil {
		log.WithField("pid", proc.Pid()).Info("terminating tunnel session")
		if err := proc.Terminate(); err != nil {
			log.WithError(err).Warn("failed terminating tunnel")
		}
	}
	if s.opts.StopGrace > 0 {
		select {
		case <-done:
			return
		case <-time.After(s.opts.StopGrace):
		}
		if proc != nil {
			log.WithField("pid", proc.Pid()).Warn("tunnel did not exit in time, killing it")
			_ = proc.Kill()
		}
	}
	<-done
}

func (s *Supervisor) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StatePending
	s.addr = toolkit.RSDAddress{}
	s.err = nil
	s.launches++
	s.notifyLocked()
}

func (s *Supervisor) setProcess(p Process) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proc = p
	s.startedAt = time.Now()
	if s.stopping {
		_ = p.Terminate()
	}
}

func (s *Supervisor) ready(addr toolkit.RSDAddress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePending {
		return
	}
	s.state = StateReady
	s.addr = addr
	s.notifyLocked()
}

// fail moves a pending tunnel to StateFailed and reports whether it did.
func (s *Supervisor) fail(err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePending {
		return false
	}
	if !errors.Is(err, ErrStopped) {
		log.WithError(err).Error("remote tunnel is not established correctly, check the device connection")
	}
	s.state = StateFailed
	s.err = err
	s.notifyLocked()
	return true
}

func (s *Supervisor) exited(waitErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proc = nil
	fields := log.Fields{"err": waitErr}
	if s.state == StateReady {
		s.state = StateFailed
		s.addr = toolkit.RSDAddress{}
		s.err = ErrExited
		if s.stopping {
			s.err = ErrStopped
		} else {
			log.WithFields(fields).Warn("tunnel process exited, rsd address invalidated")
		}
		s.notifyLocked()
		return
	}
	log.WithFields(fields).Info("tunnel process exited")
}

func (s *Supervisor) notifyLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}
