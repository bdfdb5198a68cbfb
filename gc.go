package worker

import "fmt"

// quiescent reports whether w is currently a candidate for collection
// from its parent's point of view: idle and caught up, or already
// gone. It is installed as the hostobjects.Handle.Quiescent predicate
// for w's own slot in its parent's registry.
func (w *Worker) quiescent() bool {
	return w.receivePort.waiting.Load() || w.receivePort.disconnected.Load()
}

// finalize is the host-object finaliser procedure of §4.6, run once the
// registry has marked w's slot dead (the slot is compacted out after
// this returns) and guaranteed single invocation. It first deletes w's entry from its parent's script-side
// __workers table — the proxy's backing handle is gone, so the proxy
// itself must stop being reachable that way too, even though real
// script-side reachability is not what drove this collection decision
// (see DESIGN.md) — then releases the one reference the parent holds
// on w's receive port (§4.6 step 4). Once that drops away, w's own
// teardown, which is blocked waiting for exactly this, can proceed.
//
// This runs on the parent's own goroutine (called synchronously out of
// the parent's rendezvous), so touching the parent's Runtime here is
// safe.
func (w *Worker) finalize() {
	if w.parent != nil && w.parent.rt != nil {
		script := fmt.Sprintf("if (globalThis.__workers) { delete globalThis.__workers[%d]; }", w.handle.ID)
		if err := w.parent.rt.Eval(script); err != nil {
			w.engine.cfg.logger().Printf("worker %s: removing __workers entry failed: %v", w.id, err)
		}
	}
	w.receivePort.release()
}

// rendezvous runs the GC rendezvous of §4.4 over w's own children —
// w's "workers array" — and reports whether every one of them was
// quiescent, i.e. whether w's whole subtree is currently idle. Callers
// are responsible for holding the locks §4.4 requires before calling
// this (see runloop.go's recv).
func (w *Worker) rendezvous() bool {
	return w.children.Sweep()
}
