// Package coordinator launches one scheduler per identity, keeps the shared
// canvas cache fresh by raising its staleness flags on a fixed cadence, and
// shuts everything down together.
package coordinator

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/dyluth/mosaic/internal/clock"
	"github.com/dyluth/mosaic/internal/worker"
)

var (
	// ErrNoWorkers is returned by Run when there is nothing to launch.
	ErrNoWorkers = errors.New("no workers configured")

	// ErrAllWorkersStopped is returned by Run when every worker has exited on its own.
	ErrAllWorkersStopped = errors.New("all workers stopped")
)

// Runner is one worker loop. *worker.Scheduler implements it.
type Runner interface {
	Name() string
	Run(ctx context.Context) error
}

// Flags are the staleness flags the coordinator raises. *canvas.Cache implements it.
type Flags interface {
	MarkBoardOutdated()
	MarkTemplateOutdated()
}

// Settings control launch pacing and refresh cadence.
type Settings struct {
	// LaunchDelay separates consecutive worker launches.
	LaunchDelay time.Duration

	// BoardInterval is the period between board refresh requests.
	BoardInterval time.Duration

	// TemplateEvery requests a template reload every N board intervals. Zero disables it.
	TemplateEvery int
}

// DefaultSettings match the production cadence.
var DefaultSettings = Settings{
	LaunchDelay:   3 * time.Second,
	BoardInterval: time.Second,
	TemplateEvery: 100,
}

// WorkerStatus is a point-in-time view of one worker.
type WorkerStatus struct {
	Name    string `json:"name"`
	State   string `json:"state"`
	Running bool   `json:"running"`
	Error   string `json:"error,omitempty"`
}

type stater interface {
	State() worker.State
}

type entry struct {
	runner  Runner
	started bool
	running bool
	err     error
}

// Coordinator owns the worker goroutines.
type Coordinator struct {
	flags    Flags
	settings Settings
	clock    clock.Clock

	mu      sync.Mutex
	entries []*entry
}

// New creates a coordinator for runners. A nil clk uses the wall clock.
func New(runners []Runner, flags Flags, settings Settings, clk clock.Clock) *Coordinator {
	if clk == nil {
		clk = clock.Real{}
	}
	if settings.BoardInterval <= 0 {
		settings.BoardInterval = DefaultSettings.BoardInterval
	}

	entries := make([]*entry, len(runners))
	for i, r := range runners {
		entries[i] = &entry{runner: r}
	}

	return &Coordinator{
		flags:    flags,
		settings: settings,
		clock:    clk,
		entries:  entries,
	}
}

// Run launches the workers and blocks until ctx is cancelled (returns nil after
// every worker has exited) or until all workers stop on their own.
func (c *Coordinator) Run(ctx context.Context) error {
	if len(c.entries) == 0 {
		return ErrNoWorkers
	}

	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(len(c.entries))
	exited := make(chan *entry, len(c.entries))

	go c.launch(workerCtx, &wg, exited)

	ticker := c.clock.NewTicker(c.settings.BoardInterval)
	defer ticker.Stop()

	alive := len(c.entries)
	tick := 0

	for {
		select {
		case <-ctx.Done():
			log.Printf("[INFO] Shutdown requested, waiting for %d worker(s) to stop", c.Alive())
			cancel()
			wg.Wait()
			log.Printf("[INFO] All workers stopped")
			return nil

		case <-exited:
			alive--
			if alive == 0 {
				wg.Wait()
				log.Printf("[ERROR] No workers left running")
				return ErrAllWorkersStopped
			}

		case <-ticker.C():
			tick++
			if c.flags == nil {
				continue
			}
			c.flags.MarkBoardOutdated()
			if c.settings.TemplateEvery > 0 && tick%c.settings.TemplateEvery == 0 {
				log.Printf("[DEBUG] Requesting template reload")
				c.flags.MarkTemplateOutdated()
			}
		}
	}
}

// launch starts workers one at a time, LaunchDelay apart. Workers not started
// before cancellation are released from wg without running.
func (c *Coordinator) launch(ctx context.Context, wg *sync.WaitGroup, exited chan<- *entry) {
	for i, e := range c.entries {
		if i > 0 {
			if err := clock.Sleep(ctx, c.clock, c.settings.LaunchDelay); err != nil {
				for range c.entries[i:] {
					wg.Done()
				}
				return
			}
		}

		c.mu.Lock()
		e.started = true
		e.running = true
		c.mu.Unlock()

		log.Printf("[INFO] Launching worker '%s'", e.runner.Name())
		go c.runOne(ctx, e, wg, exited)
	}
}

func (c *Coordinator) runOne(ctx context.Context, e *entry, wg *sync.WaitGroup, exited chan<- *entry) {
	defer wg.Done()

	err := e.runner.Run(ctx)

	c.mu.Lock()
	e.running = false
	e.err = err
	c.mu.Unlock()

	switch {
	case err != nil:
		log.Printf("[WARN] Worker '%s' stopped: %v", e.runner.Name(), err)
	case ctx.Err() == nil:
		log.Printf("[WARN] Worker '%s' exited without error", e.runner.Name())
	}

	if ctx.Err() == nil {
		exited <- e
	}
}

// Alive returns the number of workers currently running.
func (c *Coordinator) Alive() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, e := range c.entries {
		if e.running {
			n++
		}
	}
	return n
}

// Status returns one entry per worker in launch order.
func (c *Coordinator) Status() []WorkerStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]WorkerStatus, 0, len(c.entries))
	for _, e := range c.entries {
		ws := WorkerStatus{Name: e.runner.Name(), Running: e.running}
		switch {
		case !e.started:
			ws.State = "pending"
		case e.running:
			ws.State = "running"
			if s, ok := e.runner.(stater); ok {
				ws.State = s.State().String()
			}
		default:
			ws.State = worker.StateStopped.String()
		}
		if e.err != nil {
			ws.Error = e.err.Error()
		}
		out = append(out, ws)
	}
	return out
}

