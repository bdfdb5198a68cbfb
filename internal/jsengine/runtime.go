// Package jsengine abstracts the embedded JavaScript engine used to run
// a single worker's script, exactly as the teacher's internal/core
// abstracts V8 vs QuickJS behind core.JSRuntime. Only the operations
// this module actually needs are exposed: evaluating script text,
// registering native Go functions, setting globals, and pumping
// microtasks. Binary transfer and HTTP-flavoured helpers the teacher's
// interface also carries are dropped — structured cloning of buffers
// is a spec Non-goal.
package jsengine

// Runtime is implemented once per JS engine backend (v8backend,
// quickjsbackend), selected by build tag exactly as the teacher selects
// between its V8 and QuickJS backends. Each worker owns exactly one
// Runtime, created and used only from that worker's own goroutine.
type Runtime interface {
	// Eval evaluates JavaScript source and discards the result. Errors
	// include any exception thrown during evaluation.
	Eval(src string) error

	// EvalBool evaluates src and returns the result as a bool. The V8
	// backend coerces any result to bool; the QuickJS backend returns an
	// error when the result is not a boolean.
	EvalBool(src string) (bool, error)

	// RegisterFunc registers a Go function as a global JavaScript
	// function under name. The Go function's parameters and results are
	// marshaled to/from JS values by reflection; a (T, error) result
	// pair throws a JS TypeError when the error is non-nil, mirroring
	// the teacher's RegisterFunc convention.
	RegisterFunc(name string, fn any) error

	// SetGlobal sets a global variable. Strings and other basic Go
	// types convert directly; used here to hand a JSON payload to a
	// fixed dispatch script without interpolating it into source text.
	SetGlobal(name string, value any) error

	// RunMicrotasks pumps the microtask queue. Worker scripts in this
	// module rarely use promises, but a dispatched onMessage call may
	// schedule one, and draining keeps behaviour predictable.
	RunMicrotasks()

	// Dispose releases the underlying engine context. Called once, when
	// the worker's run loop returns.
	Dispose()
}
