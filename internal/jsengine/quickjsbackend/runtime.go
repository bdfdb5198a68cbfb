//go:build !v8

// Package quickjsbackend implements jsengine.Runtime on top of
// modernc.org/quickjs, the module's default backend — exactly as the
// teacher defaults to QuickJS absent the v8 build tag. Adapted from
// the teacher's internal/quickjs/runtime.go, dropping the raw libc
// C-API fast path that backend uses for binary transfer: structured
// cloning of buffers is a spec Non-goal, so only the high-level
// modernc.org/quickjs API (Eval, EvalValue, RegisterFunc, GlobalObject,
// NewAtom, ExecutePendingJob) is needed here.
package quickjsbackend

import (
	"fmt"

	"modernc.org/quickjs"
)

type runtime struct {
	vm *quickjs.VM
}

// New creates a fresh VM, independent of every other worker's.
//
// The return type is the concrete *runtime, not jsengine.Runtime: this
// package is imported by jsengine's build-tagged selector file, so
// importing jsengine back here would create an import cycle. *runtime
// still satisfies jsengine.Runtime structurally.
func New() (*runtime, error) {
	vm, err := quickjs.NewVM()
	if err != nil {
		return nil, err
	}
	return &runtime{vm: vm}, nil
}

// Eval evaluates JavaScript and discards the result, freeing the
// Value QuickJS hands back — the teacher's own Eval never skips this.
func (r *runtime) Eval(src string) error {
	v, err := r.vm.EvalValue(src, quickjs.EvalGlobal)
	if err != nil {
		return err
	}
	v.Free()
	return nil
}

// EvalBool evaluates JavaScript and returns the result as a Go bool.
// Like the teacher's evalBool/EvalBool, this uses vm.Eval (which
// auto-converts to Go types) rather than EvalValue, so there is
// nothing to Free.
func (r *runtime) EvalBool(src string) (bool, error) {
	result, err := r.vm.Eval(src, quickjs.EvalGlobal)
	if err != nil {
		return false, err
	}
	b, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("expected bool, got %T", result)
	}
	return b, nil
}

// RegisterFunc registers a Go (T, error)-returning function as a global
// JS function, following the teacher's registerGoFunc convention
// (helpers.go): modernc.org/quickjs's RegisterFunc hands multi-value Go
// results back to script as a [value, error] array instead of
// throwing, so the raw binding is wrapped in a JS shim that unwraps
// r[0] on success and throws a TypeError on r[1].
func (r *runtime) RegisterFunc(name string, fn any) error {
	rawName := "__raw_" + name
	if err := r.vm.RegisterFunc(rawName, fn, false); err != nil {
		return err
	}
	wrapJS := fmt.Sprintf(`(function() {
		var raw = globalThis[%q];
		globalThis[%q] = function() {
			var r = raw.apply(this, arguments);
			if (Array.isArray(r)) {
				if (r[1] !== null && r[1] !== undefined) throw new TypeError("calling %s: " + r[1]);
				return r[0];
			}
			return r;
		};
		delete globalThis[%q];
	})()`, rawName, name, name, rawName)
	return r.Eval(wrapJS)
}

// SetGlobal sets a global property on the VM's global object. The
// property name must be interned as an Atom before use — the teacher's
// setGlobal/SetGlobal always does this rather than passing a raw string.
func (r *runtime) SetGlobal(name string, value any) error {
	atom, err := r.vm.NewAtom(name)
	if err != nil {
		return fmt.Errorf("creating atom %q: %w", name, err)
	}
	glob := r.vm.GlobalObject()
	defer glob.Free()
	return glob.SetProperty(atom, value)
}

// RunMicrotasks drains QuickJS's job queue, matching the teacher's own
// doc comment for this operation ("QuickJS: ExecutePendingJob loop").
func (r *runtime) RunMicrotasks() {
	for {
		ran, err := r.vm.ExecutePendingJob()
		if err != nil || !ran {
			return
		}
	}
}

func (r *runtime) Dispose() {
	r.vm.Close()
}
