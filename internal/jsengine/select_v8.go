//go:build v8

package jsengine

import "github.com/davidchisnall/jsrun/internal/jsengine/v8backend"

// New creates the configured engine backend's Runtime, selected at
// build time exactly as the teacher selects V8 vs QuickJS.
func New() (Runtime, error) {
	return v8backend.New()
}
