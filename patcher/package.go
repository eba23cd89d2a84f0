package patcher

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver"
	"github.com/iosmockgps/mockgps-agent/toolkit"
)

// PackageName is the python distribution that ships the developer script.
const PackageName = "pymobiledevice3"

// ErrPackageNotInstalled is returned when pip does not know the package.
var ErrPackageNotInstalled = errors.New(PackageName + " is not installed")

// Package is an installed python distribution.
type Package struct {
	Name       string
	RawVersion string
	// Version is nil if RawVersion is not a semantic version.
	Version  *semver.Version
	Location string
}

// ScriptPath returns the path of cli/developer.py inside the installed package.
func (p Package) ScriptPath() string {
	return filepath.Join(p.Location, PackageName, "cli", "developer.py")
}

// Locate asks pip where the toolkit is installed and which version it is.
func Locate(ctx context.Context, runner toolkit.Runner, python string) (Package, error) {
	res, err := runner.Run(ctx, python, "-m", "pip", "show", PackageName)
	if err != nil {
		if strings.Contains(toolkit.ErrorText(err), "not found") {
			return Package{}, ErrPackageNotInstalled
		}
		return Package{}, fmt.Errorf("Locate: pip show failed: %w", err)
	}
	return parsePipShow(res.Stdout)
}

func parsePipShow(out string) (Package, error) {
	var p Package
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "Name":
			p.Name = value
		case "Version":
			p.RawVersion = value
		case "Location":
			p.Location = value
		}
	}
	if p.Location == "" {
		return Package{}, ErrPackageNotInstalled
	}
	if p.RawVersion != "" {
		if v, err := semver.NewVersion(p.RawVersion); err == nil {
			p.Version = v
		}
	}
	return p, nil
}
