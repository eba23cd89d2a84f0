// Package toolkit runs the pymobiledevice3 command line tool. Every invocation is built as an
// argument vector so request values never reach a shell.
package toolkit

import (
	"context"
)

// DefaultBinary is the toolkit executable looked up on PATH.
const DefaultBinary = "pymobiledevice3"

// Toolkit builds and runs pymobiledevice3 subcommands.
type Toolkit struct {
	binary string
	runner Runner
}

// New creates a Toolkit that runs binary with runner. An empty binary means DefaultBinary.
func New(binary string, runner Runner) *Toolkit {
	if binary == "" {
		binary = DefaultBinary
	}
	return &Toolkit{binary: binary, runner: runner}
}

// Binary returns the executable this toolkit runs.
func (t *Toolkit) Binary() string {
	return t.binary
}

// ListDevices prints all usbmux connected devices as JSON.
func (t *Toolkit) ListDevices(ctx context.Context) (Result, error) {
	return t.runner.Run(ctx, t.binary, "usbmux", "list")
}

// SetLocation simulates the given position on the device reachable at addr.
func (t *Toolkit) SetLocation(ctx context.Context, addr RSDAddress, lat, lon Coordinate) (Result, error) {
	return t.runner.Run(ctx, t.binary, SetLocationArgs(addr, lat, lon)...)
}

// ClearLocation stops location simulation on the device reachable at addr.
func (t *Toolkit) ClearLocation(ctx context.Context, addr RSDAddress) (Result, error) {
	return t.runner.Run(ctx, t.binary, ClearLocationArgs(addr)...)
}

// SetLocationArgs returns the arguments for "developer dvt simulate-location set".
// The "--" keeps negative coordinates from being read as flags.
func SetLocationArgs(addr RSDAddress, lat, lon Coordinate) []string {
	args := []string{"developer", "dvt", "simulate-location", "set"}
	args = append(args, addr.Args()...)
	return append(args, "--", lat.Arg(), lon.Arg())
}

// ClearLocationArgs returns the arguments for "developer dvt simulate-location clear".
func ClearLocationArgs(addr RSDAddress) []string {
	args := []string{"developer", "dvt", "simulate-location", "clear"}
	return append(args, addr.Args()...)
}
