package worker

// installBindings wires a worker's engine runtime with the native
// functions backing the script-visible Worker constructor,
// postMessage/terminate/closing, and then installs the pure-JS
// bootstrap that exposes them under their real names — the same
// native-primitives-plus-JS-polyfill split the teacher uses for
// MessageChannel (messagechannel.go), adapted to this module's domain.
func installBindings(w *Worker) error {
	rt := w.rt

	// __worker_spawn backs `new Worker(path)`. Per the resolved thread-
	// creation-failure policy (§7 error kind 5, DESIGN.md), a failed
	// spawn is reported as handle id 0 rather than as a Go error
	// crossing into script — the JS bootstrap below turns id 0 into a
	// permanently-unusable proxy instead of throwing.
	if err := rt.RegisterFunc("__worker_spawn", func(path string) (uint64, error) {
		child, err := w.Spawn(path)
		if err != nil {
			return 0, nil
		}
		return child.handle.ID, nil
	}); err != nil {
		return err
	}

	// __worker_post backs a Worker proxy's .postMessage(v): send with a
	// null receiver into the target child's own inbox (§4.5).
	if err := rt.RegisterFunc("__worker_post", func(id uint64, payloadJSON string) (bool, error) {
		h := w.children.Lookup(id)
		if h == nil {
			return false, nil
		}
		child := h.Value.(*Worker)
		return child.receivePort.send(&Message{payload: []byte(payloadJSON)}), nil
	}); err != nil {
		return err
	}

	// __worker_terminate backs .terminate() (§4.5): idempotent, never
	// aborts running script.
	if err := rt.RegisterFunc("__worker_terminate", func(id uint64) error {
		if h := w.children.Lookup(id); h != nil {
			h.Value.(*Worker).receivePort.terminate()
		}
		return nil
	}); err != nil {
		return err
	}

	// __worker_closing backs the .closing getter on a Worker proxy.
	if err := rt.RegisterFunc("__worker_closing", func(id uint64) (bool, error) {
		h := w.children.Lookup(id)
		if h == nil {
			return true, nil
		}
		return h.Value.(*Worker).receivePort.terminated.Load(), nil
	}); err != nil {
		return err
	}

	// __post_to_parent backs the global postMessage(v) (§4.5): send
	// with receiver set to this worker's own handle id, into the port
	// this worker sends to (its parent's inbox). The root worker has no
	// parentPort, so its global postMessage is a no-op.
	if err := rt.RegisterFunc("__post_to_parent", func(payloadJSON string) (bool, error) {
		if w.parentPort == nil {
			return false, nil
		}
		msg := &Message{payload: []byte(payloadJSON), receiver: w.receiverTagForParent()}
		return w.parentPort.send(msg), nil
	}); err != nil {
		return err
	}

	// __am_closing backs the global `closing` getter.
	if err := rt.RegisterFunc("__am_closing", func() (bool, error) {
		return w.receivePort.terminated.Load(), nil
	}); err != nil {
		return err
	}

	return rt.Eval(workerBootstrapJS)
}

// receiverTagForParent is the "object" of §3: this worker's own handle
// id as registered in its parent's children registry, used to address
// messages this worker sends to its parent at the specific proxy
// representing it. The root worker never reaches this (its global
// postMessage is a no-op, checked above), so a nil handle is unreachable
// in practice but returns the null tag rather than panicking.
func (w *Worker) receiverTagForParent() uint64 {
	if w.handle == nil {
		return 0
	}
	return w.handle.ID
}

// workerBootstrapJS defines the script-visible Worker class and the
// global postMessage/onMessage/closing surface (§4.5, §6) purely in
// terms of the native primitives registered above. JSON encoding
// happens here, via the engine's own JSON.stringify, satisfying the
// external-interfaces requirement that JSON encode/decode is the
// engine's job, not the Go core's — a cyclic or otherwise
// non-serialisable value throws a TypeError from JSON.stringify before
// any native call runs, which is exactly §7 error kind 2.
const workerBootstrapJS = `
(function(){
	function Worker(path) {
		if (!(this instanceof Worker)) {
			throw new TypeError("Worker must be invoked with new");
		}
		if (typeof path !== 'string') {
			throw new TypeError("Worker requires a string path");
		}
		var id = 0;
		try { id = __worker_spawn(path); } catch (e) { id = 0; }
		Object.defineProperty(this, '__id', { value: id, enumerable: false });
		this.onMessage = null;
		if (id) {
			globalThis.__workers = globalThis.__workers || {};
			globalThis.__workers[id] = this;
		}
	}
	Worker.prototype.postMessage = function(v) {
		if (!this.__id) { return; }
		__worker_post(this.__id, JSON.stringify(v));
	};
	Worker.prototype.terminate = function() {
		if (!this.__id) { return; }
		__worker_terminate(this.__id);
	};
	Object.defineProperty(Worker.prototype, 'closing', {
		get: function() { return this.__id ? __worker_closing(this.__id) : true; }
	});
	globalThis.Worker = Worker;

	globalThis.onMessage = null;
	globalThis.postMessage = function(v) { __post_to_parent(JSON.stringify(v)); };
	Object.defineProperty(globalThis, 'closing', {
		get: function() { return __am_closing(); }
	});
})();
`
