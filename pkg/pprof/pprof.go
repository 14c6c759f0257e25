// Package pprof collects Go runtime profiles while the simulator runs,
// either as periodic file snapshots or over an HTTP endpoint.
package pprof

import (
	"fmt"
	"strings"
	"time"

	"github.com/ipd-simulator/pkg/errors"
)

// Mode selects how profiles are collected.
type Mode string

// Collection modes.
const (
	// ModeFile writes periodic profile snapshots to an output directory.
	ModeFile Mode = "file"
	// ModeHTTP serves net/http/pprof on a listen address.
	ModeHTTP Mode = "http"
)

// ProfileType identifies one runtime profile.
type ProfileType string

// Supported profile types.
const (
	ProfileCPU       ProfileType = "cpu"
	ProfileHeap      ProfileType = "heap"
	ProfileGoroutine ProfileType = "goroutine"
	ProfileBlock     ProfileType = "block"
	ProfileMutex     ProfileType = "mutex"
	ProfileAllocs    ProfileType = "allocs"
)

// Config controls profile collection.
type Config struct {
	Enabled   bool
	Mode      Mode
	OutputDir string
	Profiles  []ProfileType

	// Interval between snapshots in file mode.
	Interval time.Duration
	// CPUDuration is the CPU profile length per snapshot.
	CPUDuration time.Duration

	// Addr is the HTTP listen address in http mode.
	Addr string
}

// DefaultConfig returns the default collection configuration.
func DefaultConfig() Config {
	return Config{
		Mode:        ModeFile,
		OutputDir:   "./pprof",
		Profiles:    []ProfileType{ProfileCPU, ProfileHeap, ProfileGoroutine},
		Interval:    30 * time.Second,
		CPUDuration: 10 * time.Second,
		Addr:        ":6060",
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	switch c.Mode {
	case ModeFile:
		if c.OutputDir == "" {
			return errors.New(errors.CodeConfigInvalid, "pprof output directory is required in file mode")
		}
		if c.Interval <= 0 {
			return errors.New(errors.CodeConfigInvalid, "pprof interval must be positive")
		}
	case ModeHTTP:
		if c.Addr == "" {
			return errors.New(errors.CodeConfigInvalid, "pprof listen address is required in http mode")
		}
	default:
		return errors.Newf(errors.CodeConfigInvalid, "invalid pprof mode: %q", c.Mode)
	}
	return nil
}

// ParseProfileTypes parses a comma-separated list of profile names.
func ParseProfileTypes(s string) ([]ProfileType, error) {
	var out []ProfileType
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		switch pt := ProfileType(part); pt {
		case ProfileCPU, ProfileHeap, ProfileGoroutine, ProfileBlock, ProfileMutex, ProfileAllocs:
			out = append(out, pt)
		default:
			return nil, errors.Newf(errors.CodeConfigInvalid, "unknown profile type: %q", part)
		}
	}
	if len(out) == 0 {
		return nil, errors.New(errors.CodeConfigInvalid, "no profile types given")
	}
	return out, nil
}

// snapshotName builds the file name for one profile snapshot.
func snapshotName(pt ProfileType, at time.Time) string {
	return fmt.Sprintf("%s-%s.pprof", pt, at.Format("20060102-150405"))
}
