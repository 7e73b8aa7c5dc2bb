package mac

import "testing"

func TestGenerateAddressUsesOUI(t *testing.T) {
	addr := GenerateAddress([3]byte{0x11, 0x22, 0x33})

	for i, b := range DefaultOUI {
		if addr[i] != b {
			t.Fatalf("octet %d: got %#x want %#x", i, addr[i], b)
		}
	}

	if addr[3] != 0x11 || addr[4] != 0x22 || addr[5] != 0x33 {
		t.Fatalf("random octets not preserved: %v", addr)
	}
}

func TestLinkUpRequiresBoth(t *testing.T) {
	cases := []struct {
		carrier, status, want bool
	}{
		{true, true, true},
		{true, false, false},
		{false, true, false},
		{false, false, false},
	}

	for _, c := range cases {
		if got := LinkUp(c.carrier, c.status); got != c.want {
			t.Fatalf("LinkUp(%v, %v): got %v want %v", c.carrier, c.status, got, c.want)
		}
	}
}
