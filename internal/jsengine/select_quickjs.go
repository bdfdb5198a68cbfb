//go:build !v8

package jsengine

import "github.com/davidchisnall/jsrun/internal/jsengine/quickjsbackend"

// New creates the configured engine backend's Runtime, selected at
// build time exactly as the teacher selects V8 vs QuickJS. QuickJS is
// the default, as in the teacher's own backend_quickjs.go.
func New() (Runtime, error) {
	return quickjsbackend.New()
}
