// Package hostobjects implements the "workers array" heap-side stash
// that the GC rendezvous algorithm operates on. It stands in for the
// embedded script engine's own heap-side stash and finaliser hook (see
// the external-interfaces table): rather than rely on the JS engine's
// tracing collector to decide when a host Worker object is
// unreachable, each slot's liveness is decided directly from the
// quiescence of the object it wraps.
package hostobjects

import "sync"

// Handle is one entry in a Registry: an opaque value (a *worker.Worker,
// from the registry's point of view just `any`) plus the predicate and
// cleanup the rendezvous needs to manage it.
type Handle struct {
	ID uint64

	// Value is the object the handle wraps.
	Value any

	// Quiescent reports whether it is currently safe to demote this
	// handle's slot — the child's own waiting/disconnected state. It
	// must be cheap and non-blocking: Sweep calls it with the
	// registry's lock held, typically from inside a caller that itself
	// holds port locks.
	Quiescent func() bool

	// Finalize runs at most once, the first time Sweep decides the
	// handle did not survive a sweep. It must be idempotent from the
	// caller's point of view (Sweep itself guarantees the single call).
	Finalize func()
}

type slot struct {
	handle *Handle
	strong bool
	dead   bool
}

// Registry is one worker's "workers" array: an insertion-ordered table
// of child handles, each either strongly rooted or demoted to a weak
// slot pending collection. It is only ever touched by the worker that
// owns it (the run loop goroutine), but the mutex also protects against
// the Sweep call itself running concurrently with Add/Remove from a
// constructor call that races a rendezvous on the same goroutine's
// reentry — belt and suspenders rather than a real concurrency need.
type Registry struct {
	mu    sync.Mutex
	slots map[uint64]*slot
	order []uint64
	next  uint64
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{slots: make(map[uint64]*slot)}
}

// Add registers value as a new, strongly-rooted handle and returns it.
// This is the "push into the workers array" step of worker spawn.
func (r *Registry) Add(value any, quiescent func() bool, finalize func()) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	id := r.next
	h := &Handle{ID: id, Value: value, Quiescent: quiescent, Finalize: finalize}
	r.slots[id] = &slot{handle: h, strong: true}
	r.order = append(r.order, id)
	return h
}

// Remove deletes a handle unconditionally, regardless of its strength.
// Used when a handle manages its own teardown outside of a sweep (for
// example explicit terminate-and-forget from Go code).
func (r *Registry) Remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(id)
}

func (r *Registry) removeLocked(id uint64) {
	if _, ok := r.slots[id]; !ok {
		return
	}
	delete(r.slots, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Lookup returns the handle registered under id, or nil.
func (r *Registry) Lookup(id uint64) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok {
		return nil
	}
	return s.handle
}

// Len returns the number of entries currently tracked — strong or
// weak, alive either way. Dead slots are compacted out by Sweep, so
// this is exactly what the spec calls "the workers array" length.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// Sweep performs the four-step GC rendezvous dance (§4.4):
//
//  1. Demote every quiescent handle's slot from strong to weak.
//  2. "Trigger collection": re-check each demoted handle; a handle
//     that is still quiescent is finalized and marked dead. A handle
//     that stopped being quiescent between steps 1 and 2 — the
//     resurrection case, e.g. a message arrived on its port — is
//     promoted back to strong instead.
//  3. Compact dead slots out of the order.
//
// Sweep returns true iff every handle was quiescent at step 1, i.e.
// the caller's own subtree (this registry plus everything below it)
// is quiescent.
func (r *Registry) Sweep() bool {
	r.mu.Lock()
	allQuiescent := true
	var candidates []uint64
	for _, id := range r.order {
		s := r.slots[id]
		if s == nil || s.dead {
			continue
		}
		if s.handle.Quiescent() {
			s.strong = false
			candidates = append(candidates, id)
		} else {
			allQuiescent = false
		}
	}
	r.mu.Unlock()

	// Step 2 runs with the lock released so finalizers (which may call
	// back into this registry, e.g. to Remove themselves) never
	// deadlock against Sweep's own lock.
	for _, id := range candidates {
		r.mu.Lock()
		s := r.slots[id]
		if s == nil || s.dead || s.strong {
			r.mu.Unlock()
			continue
		}
		if !s.handle.Quiescent() {
			s.strong = true
			r.mu.Unlock()
			continue
		}
		s.dead = true
		fin := s.handle.Finalize
		r.mu.Unlock()
		if fin != nil {
			fin()
		}
	}

	r.mu.Lock()
	kept := r.order[:0]
	for _, id := range r.order {
		s := r.slots[id]
		if s != nil && s.dead {
			delete(r.slots, id)
			continue
		}
		kept = append(kept, id)
	}
	r.order = kept
	r.mu.Unlock()

	return allQuiescent
}
