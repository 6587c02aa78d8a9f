package bus

import "sync"

// ring is a fixed-capacity, overwrite-oldest message buffer.
type ring struct {
	mu    sync.Mutex
	items []Message
	next  int
	full  bool
}

func newRing(size int) *ring {
	return &ring{items: make([]Message, size)}
}

func (r *ring) add(msg Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[r.next] = msg
	r.next = (r.next + 1) % len(r.items)
	if r.next == 0 {
		r.full = true
	}
}

func (r *ring) len() int {
	if r.full {
		return len(r.items)
	}
	return r.next
}

// last returns the newest n messages oldest first; n <= 0 means all.
func (r *ring) last(n int) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	size := r.len()
	if n <= 0 || n > size {
		n = size
	}
	out := make([]Message, n)
	start := r.next - n
	if start < 0 {
		start += len(r.items)
	}
	for i := 0; i < n; i++ {
		out[i] = r.items[(start+i)%len(r.items)]
	}
	return out
}
