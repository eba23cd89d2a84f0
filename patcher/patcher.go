package patcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Masterminds/semver"
	"github.com/iosmockgps/mockgps-agent/toolkit"
	log "github.com/sirupsen/logrus"
)

// DefaultVersionConstraint is the toolkit range the text anchors are known to match.
const DefaultVersionConstraint = ">= 4.14.16"

// Status is the result of the last patch run.
type Status struct {
	Outcome   Outcome
	Path      string
	Version   string
	Err       error
	CheckedAt time.Time
}

func (s Status) String() string {
	msg := s.Outcome.String()
	if s.Version != "" {
		msg += " (" + PackageName + " " + s.Version + ")"
	}
	if s.Err != nil {
		msg += ": " + s.Err.Error()
	}
	return msg
}

// Patcher applies the developer script patch and remembers how it went.
type Patcher struct {
	runner     toolkit.Runner
	python     string
	scriptPath string
	constraint *semver.Constraints
	rangeText  string

	mu     sync.Mutex
	status Status
}

// New creates a Patcher. If scriptPath is empty the script is located through pip using python.
// An empty constraint disables the version check.
func New(runner toolkit.Runner, python, scriptPath, constraint string) (*Patcher, error) {
	p := &Patcher{runner: runner, python: python, scriptPath: scriptPath, status: Status{Outcome: OutcomeUnknown}}
	if constraint != "" {
		c, err := semver.NewConstraint(constraint)
		if err != nil {
			return nil, fmt.Errorf("New: invalid version constraint '%s': %w", constraint, err)
		}
		p.constraint = c
		p.rangeText = constraint
	}
	return p, nil
}

// Skipped returns a status for agents that run with patching disabled.
func Skipped() Status {
	return Status{Outcome: OutcomeSkipped, CheckedAt: time.Now()}
}

// Status returns the result of the last run.
func (p *Patcher) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Ensure finds the developer script and patches it. It is advisory: problems are logged and
// reported in the returned Status, never returned as an error.
func (p *Patcher) Ensure(ctx context.Context) Status {
	path := p.scriptPath
	if path == "" {
		pkg, err := Locate(ctx, p.runner, p.python)
		if err != nil {
			log.WithError(err).Warn("could not locate " + PackageName + ", developer script not patched")
			return p.record(Status{Outcome: OutcomeFailed, Err: err})
		}
		path = pkg.ScriptPath()
		p.checkVersion(pkg)
		p.mu.Lock()
		p.status.Version = pkg.RawVersion
		p.mu.Unlock()
	}
	return p.EnsurePath(path)
}

// EnsurePath patches the script at path.
func (p *Patcher) EnsurePath(path string) Status {
	outcome, err := PatchFile(path)
	fields := log.Fields{"path": path}
	switch {
	case err != nil:
		log.WithFields(fields).WithError(err).Warn("developer script not patched")
	case outcome == OutcomeAlreadyPatched:
		log.WithFields(fields).Info("the command wait line is already commented out in the developer script")
	default:
		log.WithFields(fields).Info("the command wait line has been commented out in the developer script")
	}
	return p.record(Status{Outcome: outcome, Path: path, Err: err})
}

func (p *Patcher) checkVersion(pkg Package) {
	if p.constraint == nil {
		return
	}
	fields := log.Fields{"version": pkg.RawVersion, "constraint": p.rangeText}
	if pkg.Version == nil {
		log.WithFields(fields).Warn("cannot parse " + PackageName + " version, patching anyway")
		return
	}
	if !p.constraint.Check(pkg.Version) {
		log.WithFields(fields).Warn(PackageName + " version is outside the tested range, patching anyway")
	}
}

func (p *Patcher) record(s Status) Status {
	s.CheckedAt = time.Now()
	p.mu.Lock()
	defer p.mu.Unlock()
	if s.Version == "" {
		s.Version = p.status.Version
	}
	p.status = s
	return s
}
