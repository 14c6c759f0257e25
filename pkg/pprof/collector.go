package pprof

import (
	"context"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"runtime/pprof"
	"sync"
	"time"

	"github.com/ipd-simulator/pkg/errors"
)

// Collector runs profile collection in the background until stopped.
type Collector struct {
	cfg Config

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	httpSrv *http.Server
}

// NewCollector creates a collector for the given configuration.
func NewCollector(cfg Config) (*Collector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Collector{cfg: cfg}, nil
}

// OutputDir returns the snapshot directory in file mode.
func (c *Collector) OutputDir() string {
	return c.cfg.OutputDir
}

// Start begins collection. In file mode a background loop writes snapshots
// every interval; in http mode the pprof handler is served on the configured
// address.
func (c *Collector) Start() error {
	if !c.cfg.Enabled {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.cfg.Mode {
	case ModeHTTP:
		srv := &http.Server{Addr: c.cfg.Addr, Handler: http.DefaultServeMux}
		c.httpSrv = srv
		go func() {
			// Shut down reports ErrServerClosed; anything else is lost
			// profiling, not a run failure.
			_ = srv.ListenAndServe()
		}()
		return nil

	case ModeFile:
		if err := os.MkdirAll(c.cfg.OutputDir, 0755); err != nil {
			return errors.Wrap(errors.CodeWriteError, "create pprof directory", err)
		}
		ctx, cancel := context.WithCancel(context.Background())
		c.cancel = cancel
		c.done = make(chan struct{})
		go c.fileLoop(ctx)
		return nil
	}
	return nil
}

// Stop ends collection and waits for the file loop to finish.
func (c *Collector) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := c.httpSrv.Shutdown(ctx)
		c.httpSrv = nil
		return err
	}
	if c.cancel != nil {
		c.cancel()
		<-c.done
		c.cancel = nil
	}
	return nil
}

func (c *Collector) fileLoop(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// One final snapshot so short runs still produce profiles.
			c.snapshot(context.Background())
			return
		case <-ticker.C:
			c.snapshot(ctx)
		}
	}
}

// snapshot writes one round of the configured profiles.
func (c *Collector) snapshot(ctx context.Context) {
	now := time.Now()
	for _, pt := range c.cfg.Profiles {
		path := filepath.Join(c.cfg.OutputDir, snapshotName(pt, now))
		switch pt {
		case ProfileCPU:
			c.cpuProfile(ctx, path)
		default:
			c.lookupProfile(string(pt), path)
		}
	}
}

func (c *Collector) cpuProfile(ctx context.Context, path string) {
	f, err := os.Create(path)
	if err != nil {
		return
	}
	defer f.Close()

	if err := pprof.StartCPUProfile(f); err != nil {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(c.cfg.CPUDuration):
	}
	pprof.StopCPUProfile()
}

func (c *Collector) lookupProfile(name, path string) {
	p := pprof.Lookup(name)
	if p == nil {
		return
	}
	f, err := os.Create(path)
	if err != nil {
		return
	}
	defer f.Close()
	_ = p.WriteTo(f, 0)
}
