package session

import "testing"

func TestHintBuffer_FIFO(t *testing.T) {
	b := newHintBuffer(10)
	for _, v := range []float64{1.0, 2.0, 3.0} {
		if !b.Offer(v) {
			t.Fatalf("offer of %v rejected", v)
		}
	}

	b.CloseInput()

	var got []float64
	for v := range b.C() {
		got = append(got, v)
	}
	if len(got) != 3 || got[0] != 1.0 || got[1] != 2.0 || got[2] != 3.0 {
		t.Errorf("expected FIFO drain, got %v", got)
	}
}

func TestHintBuffer_DropsWhenFull(t *testing.T) {
	b := newHintBuffer(2)
	if !b.Offer(1.0) || !b.Offer(2.0) {
		t.Fatal("offers within capacity must succeed")
	}
	if b.Offer(3.0) {
		t.Error("offer beyond capacity must drop, not block")
	}
	if b.Len() != 2 {
		t.Errorf("expected 2 queued hints, got %d", b.Len())
	}
}

func TestHintBuffer_ClosedDropsSilently(t *testing.T) {
	b := newHintBuffer(10)
	b.Offer(1.0)
	b.CloseInput()

	if b.Offer(2.0) {
		t.Error("offer after close must be rejected")
	}

	// Queued values survive the close.
	v, ok := <-b.C()
	if !ok || v != 1.0 {
		t.Errorf("expected queued hint 1.0, got %v, %v", v, ok)
	}
	if _, ok := <-b.C(); ok {
		t.Error("expected exhaustion after drain")
	}
}

func TestHintBuffer_CloseIdempotent(t *testing.T) {
	b := newHintBuffer(1)
	b.CloseInput()
	b.CloseInput() // must not panic
}
