package session

import "sync"

// hintBuffer is the bounded FIFO of simulation-time hints feeding a
// session worker. Offers never block: a full or closed buffer drops the
// hint, which the polling model tolerates because reads are bounded by
// time ranges rather than hint values.
type hintBuffer struct {
	ch     chan float64
	mu     sync.Mutex
	closed bool
}

func newHintBuffer(capacity int) *hintBuffer {
	return &hintBuffer{ch: make(chan float64, capacity)}
}

// Offer enqueues a hint without blocking. Reports whether the hint was
// accepted.
func (b *hintBuffer) Offer(t float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	select {
	case b.ch <- t:
		return true
	default:
		return false
	}
}

// CloseInput closes the buffer for further offers. Hints already queued
// remain readable; the channel reports exhaustion once drained.
// Idempotent.
func (b *hintBuffer) CloseInput() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.ch)
	}
}

// C exposes the dequeue side.
func (b *hintBuffer) C() <-chan float64 { return b.ch }

// Len returns the number of queued hints.
func (b *hintBuffer) Len() int { return len(b.ch) }
