package store

import "sync"

// Toasts is a FIFO queue of transient user-facing messages. Stores push,
// the UI drains. A queue (not a single slot) so two stores toasting in the
// same tick cannot lose a message.
type Toasts struct {
	mu   sync.Mutex
	msgs []string
}

// NewToasts creates an empty queue.
func NewToasts() *Toasts {
	return &Toasts{}
}

// Push appends a message.
func (t *Toasts) Push(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.msgs = append(t.msgs, msg)
}

// Drain returns every pending message and clears the queue atomically. Each
// message is delivered at most once.
func (t *Toasts) Drain() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	msgs := t.msgs
	t.msgs = nil
	return msgs
}
