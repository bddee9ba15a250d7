//go:build linux

package hoard

import (
	"log/slog"
	"runtime"
	"unsafe"

	"github.com/hoardgo/hoard/internal/hoardlog"
	"github.com/hoardgo/hoard/internal/metrics"
	"github.com/hoardgo/hoard/internal/pagesupply"
	"github.com/hoardgo/hoard/internal/threadid"
)

// PageSupply is the external collaborator that grows the process's address
// space by whole pages and reports the system's page size. Injectable here
// so tests can swap in a fake without touching the core locking logic.
type PageSupply interface {
	Grow(nPages int) (unsafe.Pointer, error)
	PageSize() uintptr
	LogPageSize() uint
}

// ThreadID yields a small integer stable per OS thread, used to pick a
// caller's arena.
type ThreadID interface {
	ID() int
}

// CPUCount reports the number of processors, used to size the arena array.
type CPUCount interface {
	Count() int
}

type threadIDFunc func() int

func (f threadIDFunc) ID() int { return f() }

type cpuCountFunc func() int

func (f cpuCountFunc) Count() int { return f() }

// Config configures an Allocator. The zero value is valid: every field
// defaults to the concrete collaborator described in SPEC_FULL.md.
type Config struct {
	// PageSupply grows the address space. Defaults to an mmap-backed
	// implementation (internal/pagesupply).
	PageSupply PageSupply
	// ThreadID identifies the calling OS thread. Defaults to
	// internal/threadid (gettid-based).
	ThreadID ThreadID
	// CPUCount reports the processor count. Defaults to runtime.NumCPU.
	CPUCount CPUCount
	// Debug runs the invariant self-checks after every Allocate/Release
	// call, standing in for a debug-build assertion pass without a
	// separate build tag.
	Debug bool
	// Logger receives initialization, migration (debug level), and
	// fatal diagnostics. Defaults to a text handler on stderr.
	Logger *slog.Logger
	// MetricsName, if non-empty, publishes an expvar.Map of allocator
	// counters under this name. Must be unique per process.
	MetricsName string
}

func (c *Config) fillDefaults() error {
	if c.PageSupply == nil {
		s, err := pagesupply.New()
		if err != nil {
			return err
		}
		c.PageSupply = s
	}
	if c.ThreadID == nil {
		c.ThreadID = threadIDFunc(threadid.ID)
	}
	if c.CPUCount == nil {
		c.CPUCount = cpuCountFunc(runtime.NumCPU)
	}
	if c.Logger == nil {
		c.Logger = hoardlog.New(nil, c.Debug)
	}
	return nil
}

func (c *Config) metricsSet() *metrics.Set {
	if c.MetricsName == "" {
		return nil
	}
	return metrics.New(c.MetricsName)
}
