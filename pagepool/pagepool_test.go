package pagepool

import (
	"testing"

	"github.com/open-nic/onic-driver/dma"
)

func TestGetPutRoundTrip(t *testing.T) {
	region := dma.NewRegion(0x10000, 16*4096)
	pool := New(region, 4, 2048, 128, FromDevice)

	if pool.Available() != 4 {
		t.Fatalf("Available: got %d want 4", pool.Available())
	}

	pg, err := pool.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if pool.Available() != 3 {
		t.Fatalf("Available after Get: got %d want 3", pool.Available())
	}

	pool.Put(pg)

	if pool.Available() != 4 {
		t.Fatalf("Available after Put: got %d want 4", pool.Available())
	}
}

func TestGetExhausted(t *testing.T) {
	region := dma.NewRegion(0x10000, 2*4096)
	pool := New(region, 1, 2048, 0, FromDevice)

	if _, err := pool.Get(); err != nil {
		t.Fatalf("Get: %v", err)
	}

	if _, err := pool.Get(); err != ErrExhausted {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
}

func TestPageDataRespectsHeadroom(t *testing.T) {
	region := dma.NewRegion(0x10000, 4096)
	pool := New(region, 1, 2048, 128, Bidirectional)

	pg, err := pool.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	copy(pg.Bytes()[128:138], []byte("0123456789"))

	if got := string(pg.Data(10)); got != "0123456789" {
		t.Fatalf("Data: got %q", got)
	}
}

func TestDestroyReleasesAllPages(t *testing.T) {
	region := dma.NewRegion(0x10000, 8*4096)
	pool := New(region, 4, 2048, 0, FromDevice)

	pg, _ := pool.Get() // leave one in flight

	pool.Destroy()

	if pool.Available() != 0 {
		t.Fatalf("expected 0 available after Destroy")
	}

	// every page, including the one in flight, went back to the region:
	// the whole arena can be reserved again in one piece.
	if addr, buf := region.Reserve(8*4096, 0); addr != 0x10000 || len(buf) != 8*4096 {
		t.Fatalf("expected full-region reuse after Destroy, got addr=%#x len=%d", addr, len(buf))
	}

	_ = pg
}
