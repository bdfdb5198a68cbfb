package worker

import "errors"

// The six error kinds from the error-handling design. Boundary checks
// (arity/type, JSON encode failure) are raised as JS TypeErrors inside
// the engine rather than returned to Go callers, so only the kinds
// that surface across the Go/script boundary get sentinel values here.
var (
	// ErrTooManyWorkers is returned by Spawn when Config.MaxWorkers
	// would be exceeded. It is this implementation's analogue of OS
	// thread-creation failure (error kind 5): the original source
	// handles that failure silently, and so does the Worker JS
	// constructor wired on top of Spawn — see bindings.go. Go callers
	// that use Spawn directly do see this error.
	ErrTooManyWorkers = errors.New("worker: too many workers")

	// ErrScriptLoadFailed wraps a failure to load or run a worker's
	// top-level script (error kind 4). See worker.go's run.
	ErrScriptLoadFailed = errors.New("worker: script load failed")
)
