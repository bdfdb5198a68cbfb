// Package worker embeds an HTML5-style Web Worker model on top of a
// single-threaded scripting engine: each worker runs its own script
// interpreter on its own OS thread, workers form a strict parent/child
// tree, and they communicate by posting JSON-serialisable messages
// across unidirectional ports. See SPEC_FULL.md for the full design.
package worker

import (
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/davidchisnall/jsrun/internal/hostobjects"
)

// Engine owns the root worker and the bookkeeping shared across the
// whole tree: the worker-count limit and the diagnostic logger.
type Engine struct {
	cfg Config

	mu          sync.Mutex
	liveWorkers int

	root     *Worker
	rootDone chan struct{}
}

// NewEngine creates the root worker, starts its run loop on its own
// goroutine, and returns immediately — mirroring the teacher's own
// NewEngine, which never blocks on worker execution.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Loader == nil {
		return nil, fmt.Errorf("worker: Config.Loader is required")
	}

	eng := &Engine{cfg: cfg, rootDone: make(chan struct{}), liveWorkers: 1}

	eng.root = &Worker{
		id:          uuid.NewString(),
		file:        cfg.RootScript,
		engine:      eng,
		receivePort: newPort(),
		children:    hostobjects.New(),
	}

	go func() {
		defer close(eng.rootDone)
		eng.root.run()
	}()

	return eng, nil
}

// Root returns the main-thread worker, for Go-level use of
// Worker.Spawn from outside any script.
func (e *Engine) Root() *Worker { return e.root }

// Wait blocks until the root worker's run loop returns — quiescent
// with no outstanding children (Idle exit, §8), or terminated.
func (e *Engine) Wait() {
	<-e.rootDone
}

// Terminate asks the root worker to stop; see Worker's terminate
// semantics (§4.5) — cooperative only, does not abort running script.
func (e *Engine) Terminate() {
	e.root.receivePort.terminate()
}

func (e *Engine) spawnAllowed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cfg.MaxWorkers > 0 && e.liveWorkers >= e.cfg.MaxWorkers {
		return false
	}
	e.liveWorkers++
	return true
}

func (e *Engine) workerExited(w *Worker) {
	e.mu.Lock()
	e.liveWorkers--
	n := e.liveWorkers
	e.mu.Unlock()
	e.cfg.logger().Printf("worker %s exited (%s worker(s) still live)", w.id, humanize.Comma(int64(n)))
}
