package qdma

import "testing"

func TestRingFullBackPressure(t *testing.T) {
	// Size index 0 gives count=64; with a write-back slot reserved the
	// real count is 63. Verify the invariant at that size: the ring is
	// full after RealCount-1 advances and not before.
	buf := make([]byte, 64*H2CDescriptorSize)
	r, err := NewRing(0, H2CDescriptorSize, 0x1000, buf, true)
	if err != nil {
		t.Fatalf("NewRing: %v", err)
	}

	real := r.RealCount()

	for i := uint32(0); i < real-1; i++ {
		if r.IsFull() {
			t.Fatalf("ring reported full after %d advances, real_count=%d", i, real)
		}
		r.AdvanceHead()
	}

	if !r.IsFull() {
		t.Fatalf("expected ring full after %d advances", real-1)
	}
}

func TestRingWrapFlipsColor(t *testing.T) {
	buf := make([]byte, 64*CompletionEntrySize)
	r, err := NewRing(0, CompletionEntrySize, 0x2000, buf, false)
	if err != nil {
		t.Fatalf("NewRing: %v", err)
	}

	if !r.Color() {
		t.Fatalf("expected initial color true")
	}

	real := r.RealCount()

	for i := uint32(0); i < real-1; i++ {
		r.AdvanceTail()
	}

	if !r.Color() {
		t.Fatalf("color flipped before wrap")
	}

	r.AdvanceTail() // wraps to 0

	if r.NextToClean() != 0 {
		t.Fatalf("expected wrap to 0, got %d", r.NextToClean())
	}

	if r.Color() {
		t.Fatalf("expected color to flip false on wrap")
	}
}

func TestRingInFlightAndReclaim(t *testing.T) {
	buf := make([]byte, 64*H2CDescriptorSize)
	r, err := NewRing(0, H2CDescriptorSize, 0x3000, buf, false)
	if err != nil {
		t.Fatalf("NewRing: %v", err)
	}

	for i := 0; i < 3; i++ {
		r.AdvanceHead()
	}

	if got := r.InFlight(); got != 3 {
		t.Fatalf("InFlight: got %d want 3", got)
	}

	r.SetNextToClean(3)

	if got := r.InFlight(); got != 0 {
		t.Fatalf("InFlight after reclaim: got %d want 0", got)
	}

	if r.NextToUse() != 3 {
		t.Fatalf("NextToUse mutated by reclaim: got %d", r.NextToUse())
	}
}

func TestNewRingRejectsBadSizeIndex(t *testing.T) {
	if _, err := NewRing(99, H2CDescriptorSize, 0, nil, false); err == nil {
		t.Fatalf("expected error for out-of-range size index")
	}
}

func TestNewRingRejectsUndersizedBuffer(t *testing.T) {
	if _, err := NewRing(0, H2CDescriptorSize, 0, make([]byte, 4), false); err == nil {
		t.Fatalf("expected error for undersized buffer")
	}
}
