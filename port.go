package worker

import (
	"sync"
	"sync/atomic"
)

// Message is an owned, immutable payload plus an opaque receiver tag.
// Ownership transfers into a Port on enqueue and out again on dequeue;
// a Message must not be touched after it has been sent.
type Message struct {
	next     *Message
	payload  []byte // JSON-encoded
	receiver uint64 // 0 means "the global onMessage of the receiving thread"
}

// Port is a unidirectional, refcounted, condvar-signalled FIFO queue
// from one or more senders to exactly one receiving thread. Fields
// other than the three atomic flags are only ever touched under mu.
type Port struct {
	mu   sync.Mutex
	cond *sync.Cond

	refcount int // senders currently holding a reference

	waiting      atomic.Bool // idle AND every child also waiting/disconnected
	disconnected atomic.Bool // receiving side has gone away
	terminated   atomic.Bool // receiver asked to stop abruptly

	head, tail *Message
}

// newPort returns an empty port with refcount 0 and every flag false.
func newPort() *Port {
	p := &Port{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// acquire registers a new sender, incrementing refcount under lock.
func (p *Port) acquire() {
	p.mu.Lock()
	p.refcount++
	p.mu.Unlock()
}

// release drops one sender's reference and wakes anyone blocked on
// "no senders remain." It returns whether the port was already
// disconnected, which callers use to skip redundant cleanup.
func (p *Port) release() (wasDisconnected bool) {
	p.mu.Lock()
	p.refcount--
	wasDisconnected = p.disconnected.Load()
	p.cond.Signal()
	p.mu.Unlock()
	return wasDisconnected
}

// send enqueues msg unless the port is terminated or disconnected, in
// which case msg is dropped and send returns false — this
// implementation's chosen resolution of the "send to a terminated
// port" open question (rejected, mirroring disconnection; see §3
// Invariant 3 and §7 error kind 3). The condvar is signalled only on
// the empty-to-non-empty transition, since the receiver only ever
// sleeps when its queue is empty.
func (p *Port) send(msg *Message) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.terminated.Load() || p.disconnected.Load() {
		return false
	}

	msg.next = nil
	p.waiting.Store(false)
	wasEmpty := p.tail == nil
	if wasEmpty {
		p.head = msg
	} else {
		p.tail.next = msg
	}
	p.tail = msg
	if wasEmpty {
		p.cond.Signal()
	}
	return true
}

// dequeueLocked removes and returns the head message, or nil if the
// queue is empty. The caller must hold p.mu.
func (p *Port) dequeueLocked() *Message {
	m := p.head
	if m == nil {
		return nil
	}
	p.head = m.next
	if p.head == nil {
		p.tail = nil
	}
	m.next = nil
	return m
}

// terminate asks the receiving thread to stop dispatching further
// messages. It has no effect if already terminated, and never aborts
// script that is already running (cooperative cancellation only — see
// §5 Concurrency & Resource Model).
func (p *Port) terminate() {
	p.mu.Lock()
	p.terminated.Store(true)
	p.cond.Signal()
	p.mu.Unlock()
}

// setDisconnected marks the port as having no live receiver, so future
// sends are rejected exactly like sends to a terminated port.
func (p *Port) setDisconnected() {
	p.mu.Lock()
	p.disconnected.Store(true)
	p.cond.Signal()
	p.mu.Unlock()
}

// refcountLocked reads refcount; the caller must hold p.mu.
func (p *Port) refcountLocked() int {
	return p.refcount
}
