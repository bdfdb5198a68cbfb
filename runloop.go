package worker

// runLoop implements §4.3: drain the receive port, dispatch each
// message to onMessage, interleaving GC rendezvous attempts whenever
// the worker would otherwise go idle. It returns once no more senders
// can reach this worker (or, for the root worker, once its own subtree
// is quiescent) or once terminate() has been called.
func (w *Worker) runLoop() {
	for {
		if w.receivePort.terminated.Load() {
			return
		}

		msg, ok := w.recv()
		if !ok {
			return
		}

		if w.receivePort.terminated.Load() {
			// Terminated while we were asleep: discard and exit,
			// per §4.3 step 3's first bullet.
			return
		}

		w.dispatch(msg)
	}
}

// recv implements §4.1's recv together with the rendezvous dance of
// §4.3 step 2. It returns (nil, false) exactly when the thread should
// exit: the port has been terminated, no senders remain, or (for the
// root worker only) its own subtree has become quiescent with nothing
// left to do.
func (w *Worker) recv() (*Message, bool) {
	for {
		w.receivePort.mu.Lock()
		if w.receivePort.terminated.Load() {
			w.receivePort.mu.Unlock()
			return nil, false
		}
		if msg := w.receivePort.dequeueLocked(); msg != nil {
			w.receivePort.mu.Unlock()
			return msg, true
		}
		if w.receivePort.refcountLocked() == 0 {
			w.receivePort.mu.Unlock()
			return nil, false
		}
		w.receivePort.mu.Unlock()

		if w.parent == nil {
			// No parent to report back to: settle our own quiescence
			// directly, and if it holds, that's the whole program's
			// cue to exit the loop (run_message_loop's root path).
			if w.rendezvous() {
				return nil, false
			}
			w.receivePort.mu.Lock()
		} else {
			// Ancestor-before-descendant lock order (§4.4 precondition,
			// §4.3 step 2's "acquire the parent's port lock then this
			// port's lock").
			w.parent.receivePort.mu.Lock()
			w.receivePort.mu.Lock()

			childrenQuiescent := w.rendezvous()
			quiescent := childrenQuiescent && w.receivePort.refcountLocked() == 1

			// A message may have arrived while we held neither lock;
			// re-check before committing to sleep.
			if msg := w.receivePort.dequeueLocked(); msg != nil {
				w.receivePort.mu.Unlock()
				w.parent.receivePort.mu.Unlock()
				return msg, true
			}

			if quiescent {
				w.receivePort.waiting.Store(true)
				w.parent.receivePort.cond.Signal()
			}
			w.parent.receivePort.mu.Unlock()
			// w.receivePort.mu is still held; fall through to Wait.
		}

		w.receivePort.cond.Wait()
		w.receivePort.mu.Unlock()
	}
}

// dispatch decodes msg's payload and calls the appropriate onMessage
// (§4.3 step 3): the global one when receiver is the null tag, or the
// specific child proxy's when it targets one. A script error or panic
// during the call is diagnosed and dispatch continues — §7 error kind
// 6 explicitly does not tear the worker down.
func (w *Worker) dispatch(msg *Message) {
	defer func() {
		if r := recover(); r != nil {
			w.engine.cfg.logger().Printf("worker %s: onMessage panic: %v", w.id, r)
		}
	}()

	if err := w.rt.SetGlobal("__dispatch_payload", string(msg.payload)); err != nil {
		w.engine.cfg.logger().Printf("worker %s: dispatch setup failed: %v", w.id, err)
		return
	}

	var script string
	if msg.receiver == 0 {
		script = `if (typeof onMessage === 'function') { onMessage(JSON.parse(__dispatch_payload)); }`
	} else {
		if err := w.rt.SetGlobal("__dispatch_id", msg.receiver); err != nil {
			w.engine.cfg.logger().Printf("worker %s: dispatch setup failed: %v", w.id, err)
			return
		}
		script = `(function(){
			var target = (globalThis.__workers || {})[__dispatch_id];
			if (target && typeof target.onMessage === 'function') {
				target.onMessage.call(target, JSON.parse(__dispatch_payload));
			}
		})();`
	}

	if err := w.rt.Eval(script); err != nil {
		// Unhandled script error (§7 error kind 6): log and move on.
		w.engine.cfg.logger().Printf("worker %s: onMessage error: %v", w.id, err)
	}
	w.rt.RunMicrotasks()
}
