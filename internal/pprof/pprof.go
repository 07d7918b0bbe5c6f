// Package pprof exposes runtime profiles of a running server, either as
// /debug/pprof routes on the admin router or as files written at shutdown.
package pprof

import (
	"errors"
	"fmt"
	"net/http"
	netpprof "net/http/pprof"
	"os"
	"path/filepath"
	"runtime/pprof"
	"runtime/trace"
	"sync"

	"github.com/julienschmidt/httprouter"
)

// Register mounts the net/http/pprof handlers under /debug/pprof on router.
func Register(router *httprouter.Router) {
	router.HandlerFunc(http.MethodGet, "/debug/pprof/", netpprof.Index)
	router.HandlerFunc(http.MethodGet, "/debug/pprof/cmdline", netpprof.Cmdline)
	router.HandlerFunc(http.MethodGet, "/debug/pprof/profile", netpprof.Profile)
	router.HandlerFunc(http.MethodGet, "/debug/pprof/symbol", netpprof.Symbol)
	router.HandlerFunc(http.MethodPost, "/debug/pprof/symbol", netpprof.Symbol)
	router.HandlerFunc(http.MethodGet, "/debug/pprof/trace", netpprof.Trace)
	for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
		router.Handler(http.MethodGet, "/debug/pprof/"+name, netpprof.Handler(name))
	}
}

// Config selects the profile files to write. Empty paths are skipped.
type Config struct {
	CPUProfile  string
	HeapProfile string
	Trace       string
}

// Enabled reports whether any file is configured.
func (c Config) Enabled() bool {
	return c.CPUProfile != "" || c.HeapProfile != "" || c.Trace != ""
}

// Profiler records the configured profiles between Start and Stop.
type Profiler struct {
	config    Config
	cpuFile   *os.File
	traceFile *os.File

	mu       sync.Mutex
	stopping bool
}

// NewProfiler creates a profiler for config.
func NewProfiler(config Config) *Profiler {
	return &Profiler{config: config}
}

// Start begins CPU profiling and tracing if configured.
func (p *Profiler) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.config.CPUProfile != "" {
		f, err := create(p.config.CPUProfile)
		if err != nil {
			return fmt.Errorf("failed to create CPU profile file: %w", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			return fmt.Errorf("failed to start CPU profiling: %w", err)
		}
		p.cpuFile = f
	}

	if p.config.Trace != "" {
		f, err := create(p.config.Trace)
		if err != nil {
			return fmt.Errorf("failed to create trace file: %w", err)
		}
		if err := trace.Start(f); err != nil {
			f.Close()
			return fmt.Errorf("failed to start execution tracing: %w", err)
		}
		p.traceFile = f
	}
	return nil
}

// Stop ends profiling and writes the heap profile. Only the first call does
// anything.
func (p *Profiler) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopping {
		return nil
	}
	p.stopping = true

	var errs []error
	if p.cpuFile != nil {
		pprof.StopCPUProfile()
		if err := p.cpuFile.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close CPU profile: %w", err))
		}
		p.cpuFile = nil
	}

	if p.traceFile != nil {
		trace.Stop()
		if err := p.traceFile.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close trace: %w", err))
		}
		p.traceFile = nil
	}

	if p.config.HeapProfile != "" {
		if err := writeHeap(p.config.HeapProfile); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func create(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return os.Create(path)
}

func writeHeap(path string) error {
	f, err := create(path)
	if err != nil {
		return fmt.Errorf("failed to create heap profile file: %w", err)
	}
	defer f.Close()
	if err := pprof.WriteHeapProfile(f); err != nil {
		return fmt.Errorf("failed to write heap profile: %w", err)
	}
	return nil
}
