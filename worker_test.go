package worker

import (
	"testing"
	"time"

	"github.com/davidchisnall/jsrun/internal/hostobjects"
	"github.com/davidchisnall/jsrun/internal/jsengine"
)

// newStandaloneWorker builds a worker the same way run() would, but
// entirely within the calling goroutine: its jsengine.Runtime is
// created, bound, and used only here, so calling dispatch or Eval
// directly from the test is safe. This is the same style the teacher
// uses in engine_test.go, which constructs a bare VM directly to unit
// test module-wrapping logic rather than going through the pool.
func newStandaloneWorker(t *testing.T) *Worker {
	t.Helper()

	eng := &Engine{cfg: Config{}}
	w := &Worker{
		id:          "test",
		engine:      eng,
		receivePort: newPort(),
		children:    hostobjects.New(),
	}
	w.receivePort.acquire()

	rt, err := jsengine.New()
	if err != nil {
		t.Fatalf("jsengine.New() error: %v", err)
	}
	t.Cleanup(rt.Dispose)
	w.rt = rt

	if err := installBindings(w); err != nil {
		t.Fatalf("installBindings() error: %v", err)
	}

	return w
}

func evalBool(t *testing.T, w *Worker, src string) bool {
	t.Helper()
	ok, err := w.rt.EvalBool(src)
	if err != nil {
		t.Fatalf("EvalBool(%q) error: %v", src, err)
	}
	return ok
}

// TestDispatchGlobalOnMessage covers the global-receiver half of §4.3
// step 3: a message with the null receiver tag calls globalThis.onMessage.
func TestDispatchGlobalOnMessage(t *testing.T) {
	w := newStandaloneWorker(t)
	if err := w.rt.Eval(`globalThis.__seen = null; onMessage = function(v) { __seen = v; };`); err != nil {
		t.Fatalf("Eval() error: %v", err)
	}

	w.dispatch(&Message{payload: []byte("42")})

	if !evalBool(t, w, "__seen === 42") {
		t.Fatalf("onMessage did not observe the decoded payload")
	}
}

// TestDispatchToChildProxy covers the non-null-receiver half of §4.3
// step 3: a message addressed to a specific child calls that proxy's
// onMessage, bound with `this` set to the proxy.
func TestDispatchToChildProxy(t *testing.T) {
	w := newStandaloneWorker(t)
	if err := w.rt.Eval(`
		globalThis.__workers = { 7: { onMessage: function(v) { this.__got = v; } } };
	`); err != nil {
		t.Fatalf("Eval() error: %v", err)
	}

	w.dispatch(&Message{payload: []byte(`"hello"`), receiver: 7})

	if !evalBool(t, w, `__workers[7].__got === "hello"`) {
		t.Fatalf("child proxy onMessage did not observe the decoded payload")
	}
}

// TestDispatchUnhandledErrorDoesNotPanic covers §7 error kind 6: an
// onMessage that throws is diagnosed, not propagated, and dispatch
// remains usable afterwards.
func TestDispatchUnhandledErrorDoesNotPanic(t *testing.T) {
	w := newStandaloneWorker(t)
	if err := w.rt.Eval(`onMessage = function(v) { throw new Error("boom"); };`); err != nil {
		t.Fatalf("Eval() error: %v", err)
	}

	w.dispatch(&Message{payload: []byte("1")})

	if err := w.rt.Eval(`globalThis.__stillAlive = true;`); err != nil {
		t.Fatalf("worker unusable after an onMessage error: %v", err)
	}
}

// TestWorkerConstructorUnusableOnSpawnFailure covers the resolved
// thread-creation-failure policy (§7 error kind 5): when Spawn fails,
// `new Worker(path)` must not throw, and the resulting proxy's methods
// must be no-ops with closing reading true.
func TestWorkerConstructorUnusableOnSpawnFailure(t *testing.T) {
	w := newStandaloneWorker(t)
	w.engine.cfg.MaxWorkers = 1
	w.engine.liveWorkers = 1 // pretend the limit is already reached

	if err := w.rt.Eval(`globalThis.__w = new Worker("child.js");`); err != nil {
		t.Fatalf("new Worker(...) threw, want silent failure: %v", err)
	}
	if !evalBool(t, w, `__w.closing === true`) {
		t.Fatalf("unusable proxy's closing should read true")
	}
	if err := w.rt.Eval(`__w.postMessage(1); __w.terminate();`); err != nil {
		t.Fatalf("methods on an unusable proxy must be no-ops, got error: %v", err)
	}
}

// TestWorkerConstructorBadArgumentThrows: a non-string argument is a
// programming error at the boundary (§7 error kind 1), distinct from
// spawn failure, and must throw.
func TestWorkerConstructorBadArgumentThrows(t *testing.T) {
	w := newStandaloneWorker(t)
	if err := w.rt.Eval(`new Worker(42);`); err == nil {
		t.Fatalf("new Worker(42) did not throw")
	}
}

// --- Full-engine lifecycle scenarios, observed at the Go level only. ---

func testEngine(t *testing.T, loader MapLoader) *Engine {
	t.Helper()
	eng, err := NewEngine(Config{RootScript: "root.js", Loader: loader})
	if err != nil {
		t.Fatalf("NewEngine() error: %v", err)
	}
	return eng
}

func waitOrTimeout(t *testing.T, done <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

// TestIdleExitNoChildren covers the "Idle exit" invariant of §8: a
// root worker with no children and an empty receive port returns from
// its run loop.
func TestIdleExitNoChildren(t *testing.T) {
	eng := testEngine(t, MapLoader{"root.js": ``})

	done := make(chan struct{})
	go func() { eng.Wait(); close(done) }()
	waitOrTimeout(t, done, "root worker idle exit")
}

// TestOrphanCollection covers scenario 3: a worker spawned and never
// otherwise referenced is eventually reclaimed once it goes idle, and
// the root itself then exits.
func TestOrphanCollection(t *testing.T) {
	eng := testEngine(t, MapLoader{
		"root.js":  `new Worker("child.js");`,
		"child.js": `onMessage = function() {};`,
	})

	done := make(chan struct{})
	go func() { eng.Wait(); close(done) }()
	waitOrTimeout(t, done, "orphaned worker collection and root exit")

	if n := eng.Root().children.Len(); n != 0 {
		t.Fatalf("root's children registry has %d entries after exit, want 0", n)
	}
}

// TestTerminateWhileBusy covers scenario 4: terminating a worker that
// spins until `closing` reads true and never posts anything back still
// lets the whole engine exit within bounded time, without the run loop
// hanging on a message that never arrives.
func TestTerminateWhileBusy(t *testing.T) {
	eng := testEngine(t, MapLoader{
		"root.js":  `globalThis.__w = new Worker("child.js"); __w.terminate();`,
		"child.js": `while (!closing) {}`,
	})

	done := make(chan struct{})
	go func() { eng.Wait(); close(done) }()
	waitOrTimeout(t, done, "engine exit after terminate")
}

// newLinkedWorker builds a worker wired into parent's children registry
// exactly as Spawn does, but without starting a run-loop goroutine or a
// script engine — for tests that only exercise the Go-level port/
// registry machinery and need full determinism.
func newLinkedWorker(parent *Worker) *Worker {
	recv := newPort()
	recv.acquire()
	parent.receivePort.acquire()

	child := &Worker{
		parent:      parent,
		parentPort:  parent.receivePort,
		receivePort: recv,
		children:    hostobjects.New(),
	}
	child.handle = parent.children.Add(child, child.quiescent, child.finalize)
	return child
}

// TestLeafFirstTeardown covers scenario 6: A spawns B spawns C; once
// both go idle, a rendezvous bottom-up must finalize C strictly before
// B, never the reverse.
func TestLeafFirstTeardown(t *testing.T) {
	a := &Worker{receivePort: newPort(), children: hostobjects.New()}
	b := newLinkedWorker(a)
	c := newLinkedWorker(b)

	b.receivePort.waiting.Store(true)
	c.receivePort.waiting.Store(true)

	order := make(chan string, 2)

	bHandle := a.children.Lookup(b.handle.ID)
	cHandle := b.children.Lookup(c.handle.ID)
	origBFinalize := bHandle.Finalize
	origCFinalize := cHandle.Finalize
	bHandle.Finalize = func() { order <- "B"; origBFinalize() }
	cHandle.Finalize = func() { order <- "C"; origCFinalize() }

	// Sweeping bottom-up: C's subtree first, then B's, matches the
	// locking discipline's guarantee (a worker only declares itself
	// waiting once all of its own children are quiescent).
	if !c.rendezvous() { // C has no children of its own: trivially quiescent
		t.Fatalf("C's rendezvous reported non-quiescent with no children")
	}
	if !b.rendezvous() { // collects C, since C is waiting
		t.Fatalf("B's rendezvous reported non-quiescent after C went idle")
	}
	if !a.rendezvous() { // collects B, since B is now quiescent (C gone, B waiting)
		t.Fatalf("A's rendezvous reported non-quiescent after B went idle")
	}

	first := <-order
	second := <-order
	if first != "C" || second != "B" {
		t.Fatalf("finalize order = [%s, %s], want [C, B]", first, second)
	}
}
