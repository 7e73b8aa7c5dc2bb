package bits

import "testing"

func TestSetClear(t *testing.T) {
	var v uint32

	Set(&v, 3)

	if v != 1<<3 {
		t.Fatalf("Set: got %#x", v)
	}

	if Get(&v, 3, 0b1) != 1 {
		t.Fatalf("Get: expected bit set")
	}

	Clear(&v, 3)

	if v != 0 {
		t.Fatalf("Clear: got %#x", v)
	}
}

func TestSetNClearN(t *testing.T) {
	var v uint32

	SetN(&v, 4, 0xf, 0xa)

	if Get(&v, 4, 0xf) != 0xa {
		t.Fatalf("SetN: got %#x", v)
	}

	ClearN(&v, 4, 0xf)

	if v != 0 {
		t.Fatalf("ClearN: got %#x", v)
	}
}

func TestGetN(t *testing.T) {
	v := uint32(0xa5 << 8)

	if GetN(v, 8, 0xff) != 0xa5 {
		t.Fatalf("GetN: got %#x", GetN(v, 8, 0xff))
	}
}

func TestSetN64(t *testing.T) {
	var v uint64

	SetN64(&v, 32, 0xffffffff, 0xdeadbeef)

	if GetN64(v, 32, 0xffffffff) != 0xdeadbeef {
		t.Fatalf("SetN64: got %#x", v)
	}
}

func TestBool(t *testing.T) {
	if Bool(true) != 1 || Bool(false) != 0 {
		t.Fatalf("Bool mapping incorrect")
	}
}
