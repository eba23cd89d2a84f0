// Package patcher disables the interactive wait in pymobiledevice3's "simulate-location set"
// command so the command returns once the location is sent instead of waiting for Enter.
//
// The change is a single "#" inserted in front of the wait call in cli/developer.py. It relies
// on exact text anchors, so every run reports an explicit Outcome and callers decide what a
// failure means for them.
package patcher

import (
	"bytes"
	"errors"
	"fmt"
	"os"
)

const (
	anchorText    = "def dvt_simulate_location_set"
	waitCallText  = "OSUTILS.wait_return()"
	commentMarker = '#'
)

var (
	// ErrScriptNotFound is returned when the developer script does not exist.
	ErrScriptNotFound = errors.New("developer script not found")
	// ErrAnchorNotFound is returned when the simulate-location set function is missing from the script.
	ErrAnchorNotFound = errors.New("simulate-location set function not found in developer script")
	// ErrWaitCallNotFound is returned when no wait call follows the function definition.
	ErrWaitCallNotFound = errors.New("wait call not found after simulate-location set function")
)

// Outcome describes what a patch run did.
type Outcome int

const (
	OutcomeUnknown Outcome = iota
	OutcomePatched
	OutcomeAlreadyPatched
	OutcomeFailed
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomePatched:
		return "patched"
	case OutcomeAlreadyPatched:
		return "already patched"
	case OutcomeFailed:
		return "failed"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// PatchFile comments out the wait call in the script at path. Running it on an already
// patched file leaves the file untouched and returns OutcomeAlreadyPatched.
func PatchFile(path string) (Outcome, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return OutcomeFailed, fmt.Errorf("%w: %s", ErrScriptNotFound, path)
		}
		return OutcomeFailed, fmt.Errorf("PatchFile: %w", err)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("PatchFile: failed reading %s: %w", path, err)
	}
	patched, outcome, err := patchSource(src)
	if err != nil || outcome != OutcomePatched {
		return outcome, err
	}
	if err := os.WriteFile(path, patched, info.Mode().Perm()); err != nil {
		return OutcomeFailed, fmt.Errorf("PatchFile: failed writing %s: %w", path, err)
	}
	return OutcomePatched, nil
}

func patchSource(src []byte) ([]byte, Outcome, error) {
	anchor := bytes.Index(src, []byte(anchorText))
	if anchor < 0 {
		return nil, OutcomeFailed, ErrAnchorNotFound
	}
	rel := bytes.Index(src[anchor:], []byte(waitCallText))
	if rel < 0 {
		return nil, OutcomeFailed, ErrWaitCallNotFound
	}
	call := anchor + rel
	// "#OSUTILS..." and "# OSUTILS..." both count as disabled.
	if src[call-1] == commentMarker || (call >= 2 && src[call-2] == commentMarker) {
		return src, OutcomeAlreadyPatched, nil
	}
	out := make([]byte, 0, len(src)+1)
	out = append(out, src[:call]...)
	out = append(out, commentMarker)
	out = append(out, src[call:]...)
	return out, OutcomePatched, nil
}
