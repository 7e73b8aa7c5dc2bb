package intx

import "testing"

func TestNonQueueVectorsAndMin(t *testing.T) {
	c := Config{MailboxEnabled: true, UserIRQEnabled: true, MasterPF: true, NumRxQueues: 8}

	if got := c.NonQueueVectors(); got != 3 {
		t.Fatalf("NonQueueVectors: got %d want 3", got)
	}
	if got := c.Requested(); got != 11 {
		t.Fatalf("Requested: got %d want 11", got)
	}
	if got := c.MinAcceptable(); got != 4 {
		t.Fatalf("MinAcceptable: got %d want 4", got)
	}
}

func TestAssignFixedOrder(t *testing.T) {
	c := Config{MailboxEnabled: true, UserIRQEnabled: true, MasterPF: true, NumRxQueues: 4}

	got, err := Assign(c, c.Requested())
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}

	wantKinds := []Kind{KindMailbox, KindUser, KindError, KindRxQueue, KindRxQueue, KindRxQueue, KindRxQueue}
	if len(got) != len(wantKinds) {
		t.Fatalf("Assign: got %d assignments want %d", len(got), len(wantKinds))
	}

	for i, a := range got {
		if a.Kind != wantKinds[i] {
			t.Fatalf("assignment[%d]: got %v want %v", i, a.Kind, wantKinds[i])
		}
		if a.Vector != i {
			t.Fatalf("assignment[%d]: vector got %d want %d", i, a.Vector, i)
		}
	}

	for i := 3; i < len(got); i++ {
		if got[i].RxQueueIndex != i-3 {
			t.Fatalf("rx queue index: got %d want %d", got[i].RxQueueIndex, i-3)
		}
	}
}

func TestAssignShortAllocationFails(t *testing.T) {
	c := Config{MailboxEnabled: true, UserIRQEnabled: true, MasterPF: true, NumRxQueues: 8}

	if _, err := Assign(c, c.MinAcceptable()-1); err == nil {
		t.Fatalf("expected ErrShortAllocation")
	}
}

func TestAssignMinimalNonMaster(t *testing.T) {
	c := Config{NumRxQueues: 2}

	got, err := Assign(c, c.Requested())
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}

	for _, a := range got {
		if a.Kind != KindRxQueue {
			t.Fatalf("expected only rx queue vectors, got %v", a.Kind)
		}
	}
}

func TestDispatcherFireRoutesRxQueue(t *testing.T) {
	c := Config{NumRxQueues: 2}
	assignments, _ := Assign(c, c.Requested())

	var woken int
	d := NewDispatcher(assignments, 0, func(func()) {}, func(idx int) { woken = idx })

	d.Fire(1)

	if woken != 1 {
		t.Fatalf("expected rx queue 1 woken, got %d", woken)
	}
}

func TestDispatcherFireSchedulesBottomHalf(t *testing.T) {
	c := Config{UserIRQEnabled: true, NumRxQueues: 1}
	assignments, _ := Assign(c, c.Requested())

	var scheduled bool
	d := NewDispatcher(assignments, 0, func(bh func()) { scheduled = true; bh() }, func(int) {})

	d.Fire(0) // user vector

	if !scheduled {
		t.Fatalf("expected bottom half to be scheduled")
	}
}

func TestErrorRegisterRoundTrip(t *testing.T) {
	in := ErrorRegister{Func: 3, Vec: 1000, Arm: true}
	got := DecodeErrorRegister(in.Encode())

	if got != in {
		t.Fatalf("got %+v want %+v", got, in)
	}
}
