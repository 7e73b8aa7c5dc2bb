package qdma

import "testing"

func toFixed(w []uint32) [NumDataRegs]uint32 {
	var out [NumDataRegs]uint32
	copy(out[:], w)
	return out
}

func TestSWContextRoundTrip(t *testing.T) {
	in := SWContext{
		PIDX:       1234,
		IRQArm:     true,
		FuncID:     3,
		QEn:        true,
		FetchCrdEn: true,
		WBIChk:     true,
		AddrTrans:  false,
		FetchMax:   5,
		RingSzIdx:  9,
		DescSz:     2,
		Bypass:     false,
		WBEn:       true,
		IRQEn:      true,
		PortID:     2,
		Err:        1,
		IsMM:       false,
		DescBase:   0x1122334455667788,
		Vector:     77,
		IntrAggr:   true,
	}

	got := UnpackSWContext(toFixed(in.Pack()))

	if got != in {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, in)
	}
}

func TestHWContextUnpack(t *testing.T) {
	var w [NumDataRegs]uint32
	w[0] = uint32(0x1234) | uint32(0x5678)<<16
	w[1] = (1 << 8) | (1 << 9) | (1 << 10) | (5 << 11)

	got := UnpackHWContext(w)

	want := HWContext{
		CIDX:        0x1234,
		CreditsUsed: 0x5678,
		DescPend:    true,
		IdleStopped: true,
		EventPend:   true,
		FetchPend:   5,
	}

	if got != want {
		t.Fatalf("got %+v want %+v", got, want)
	}
}

func TestCreditContextRoundTrip(t *testing.T) {
	in := CreditContext{Credit: 4096}
	got := UnpackCreditContext(toFixed(in.Pack()))

	if got != in {
		t.Fatalf("got %+v want %+v", got, in)
	}
}

func TestPrefetchContextRoundTrip(t *testing.T) {
	in := PrefetchContext{
		Bypass:   false,
		BufSzIdx: 7,
		PortID:   3,
		Err:      false,
		PfchEn:   true,
		InPfch:   true,
		SWCredit: 0x1fff,
		Valid:    true,
	}

	got := UnpackPrefetchContext(toFixed(in.Pack()))

	if got != in {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, in)
	}
}

func TestCompletionContextRoundTrip(t *testing.T) {
	in := CompletionContext{
		StatEn:     true,
		IntrEn:     true,
		TrigMode:   3,
		FuncID:     9,
		CounterIdx: 2,
		TimerIdx:   4,
		IntrState:  1,
		Color:      true,
		RingSzIdx:  8,
		BAddr:      0x0000123456789000, // 4K aligned
		DescSz:     2,
		PIDX:       0xabc,
		CIDX:       0x1234,
		Valid:      true,
		Err:        2,
		Vector:     0x3ff,
		IntrAggr:   true,
	}

	got := UnpackCompletionContext(toFixed(in.Pack()))

	if got != in {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, in)
	}
}

func TestFunctionMapContextRoundTrip(t *testing.T) {
	in := FunctionMapContext{QBase: 128, QMax: 64}
	got := UnpackFunctionMapContext(toFixed(in.Pack()))

	if got != in {
		t.Fatalf("got %+v want %+v", got, in)
	}
}
