package worker

import (
	"fmt"
	"runtime"

	"github.com/google/uuid"

	"github.com/davidchisnall/jsrun/internal/hostobjects"
	"github.com/davidchisnall/jsrun/internal/jsengine"
)

// Worker binds an OS thread (a goroutine pinned with
// runtime.LockOSThread), a script engine context, a receive port and a
// parent port. It is the Go representation of the spec's Worker triple.
type Worker struct {
	id     string // uuid, diagnostic only — never used as a protocol identifier
	file   string
	engine *Engine

	parent      *Worker // nil for the root worker
	parentPort  *Port   // the port this worker sends to; nil for the root worker
	receivePort *Port   // this worker's own inbox

	// handle is this worker's own entry in its parent's children
	// registry — the spec's "object", an opaque handle usable as a
	// message receiver tag. nil for the root worker.
	handle *hostobjects.Handle

	// children is this worker's own "workers" array: the registry of
	// its direct children, used both to route messages addressed to a
	// specific child proxy and to drive the GC rendezvous over them.
	children *hostobjects.Registry

	rt jsengine.Runtime // owned exclusively by this worker's own goroutine
}

// ID returns a diagnostic identifier for logging; it has no protocol
// meaning (message receiver tags use the hostobjects handle ID).
func (w *Worker) ID() string { return w.id }

// Spawn implements §4.2: it creates a child worker loading file,
// registers it into the parent's "workers" array, and starts its run
// loop on a new goroutine. It returns ErrTooManyWorkers if doing so
// would exceed Config.MaxWorkers — this module's concrete realisation
// of "thread creation failure" (§7 error kind 5); see bindings.go for
// how the Worker(path) JS constructor turns that into a silently
// unusable object rather than a thrown exception.
func (parent *Worker) Spawn(file string) (*Worker, error) {
	eng := parent.engine
	if !eng.spawnAllowed() {
		return nil, ErrTooManyWorkers
	}

	recv := newPort()
	recv.acquire() // the one reference the parent holds on the child's own inbox (§4.2 step 2)

	parent.receivePort.acquire() // the child's sender reference to the parent's inbox (§4.2 step 3)

	child := &Worker{
		id:          uuid.NewString(),
		file:        file,
		engine:      eng,
		parent:      parent,
		parentPort:  parent.receivePort,
		receivePort: recv,
		children:    hostobjects.New(),
	}
	child.handle = parent.children.Add(child, child.quiescent, child.finalize)

	go child.run()

	return child, nil
}

// run is the OS-thread entry point for a worker (§4.3): initialise the
// engine, install the Worker/postMessage/closing bindings, load and run
// the script, then enter the message loop. It always tears the worker
// down on the way out, whether the script loaded successfully or not
// (§7 error kind 4).
func (w *Worker) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	rt, err := jsengine.New()
	if err != nil {
		w.engine.cfg.logger().Printf("worker %s: engine init failed: %v", w.id, err)
		w.exit()
		return
	}
	w.rt = rt
	defer rt.Dispose()

	if err := installBindings(w); err != nil {
		w.engine.cfg.logger().Printf("worker %s: binding install failed: %v", w.id, err)
		w.exit()
		return
	}

	src, err := w.engine.cfg.Loader.Load(w.file)
	if err != nil {
		w.engine.cfg.logger().Printf("worker %s: %s: %v", w.id, w.file, fmt.Errorf("%w: %v", ErrScriptLoadFailed, err))
		w.exit()
		return
	}
	if err := rt.Eval(src); err != nil {
		w.engine.cfg.logger().Printf("worker %s: %v", w.id, fmt.Errorf("%w: %v", ErrScriptLoadFailed, err))
		w.exit()
		return
	}

	w.runLoop()
	w.exit()
}

// exit runs teardown for a non-root worker and always tells the engine
// this worker is gone. The root worker (parent == nil) has no
// parent-held reference to wait out and no sending reference of its
// own to release — it simply stops, per run_message_loop's "if w is
// the root, return immediately" exit path.
func (w *Worker) exit() {
	if w.parent != nil {
		w.teardown()
	}
	w.engine.workerExited(w)
}

// teardown implements the non-root half of cleanup_worker: mark our
// own inbox disconnected so any late send is rejected, wait for the
// parent's one reference on it to be released (by our finalize, once
// our parent's rendezvous decides we're collectible), then release our
// own sending reference to the parent's inbox.
func (w *Worker) teardown() {
	w.receivePort.setDisconnected()

	// Wake a parent that may be asleep in recv() waiting on its own
	// cond: the normal idle path signals the parent from inside recv()
	// itself before sleeping (§4.3 step 2), but a terminated worker
	// skips recv() entirely and would otherwise leave the parent with
	// no reason to re-run its rendezvous.
	w.parentPort.mu.Lock()
	w.parentPort.cond.Signal()
	w.parentPort.mu.Unlock()

	w.receivePort.mu.Lock()
	for w.receivePort.refcountLocked() > 0 {
		w.receivePort.cond.Wait()
	}
	w.receivePort.mu.Unlock()

	w.parentPort.release()
}
