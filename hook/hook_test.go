package hook

import "testing"

type dropAll struct{}

func (dropAll) Run(*Context, *Frame) Verdict { return Drop }

type countingRedirect struct {
	count int
}

func (c *countingRedirect) Redirect(f *Frame) error {
	c.count++
	return nil
}

func TestHandleDefaultsToPass(t *testing.T) {
	h := NewHandle()
	prog := h.Load()

	if !IsNoop(prog) {
		t.Fatalf("expected fresh handle to hold the no-op program")
	}

	f := &Frame{Data: make([]byte, 64), Offset: 0, Len: 64}
	if v := prog.Run(nil, f); v != Pass {
		t.Fatalf("no-op program: got %v want Pass", v)
	}
}

func TestHandleSwap(t *testing.T) {
	h := NewHandle()

	old := h.Swap(dropAll{})
	if !IsNoop(old) {
		t.Fatalf("expected previous program to be the no-op sentinel")
	}

	cur := h.Load()
	f := &Frame{Data: make([]byte, 64), Offset: 0, Len: 64}

	if v := cur.Run(nil, f); v != Drop {
		t.Fatalf("got %v want Drop", v)
	}
}

func TestHandleSwapNilRestoresNoop(t *testing.T) {
	h := NewHandle()
	h.Swap(dropAll{})

	old := h.Swap(nil)
	if IsNoop(old) {
		t.Fatalf("expected previous program to be dropAll, not noop")
	}

	if !IsNoop(h.Load()) {
		t.Fatalf("expected current program to be noop after Swap(nil)")
	}
}

func TestFramePayload(t *testing.T) {
	f := &Frame{Data: make([]byte, 128), Offset: 32, Len: 10}
	copy(f.Data[32:42], []byte("helloworld"))

	if got := string(f.Payload()); got != "helloworld" {
		t.Fatalf("Payload: got %q", got)
	}
}

func TestRedirectorInvoked(t *testing.T) {
	r := &countingRedirect{}
	f := &Frame{Data: make([]byte, 64), Offset: 0, Len: 64}

	if err := r.Redirect(f); err != nil {
		t.Fatalf("Redirect: %v", err)
	}

	if r.count != 1 {
		t.Fatalf("expected one redirect, got %d", r.count)
	}
}
