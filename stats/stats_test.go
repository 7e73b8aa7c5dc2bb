package stats

import (
	"sync"
	"testing"
)

func TestAddTxAndSum(t *testing.T) {
	c := New()

	c.AddTx(0, 60)
	c.AddTx(0, 100)

	sum := c.Sum()

	if sum.TxPackets != 2 {
		t.Fatalf("TxPackets: got %d want 2", sum.TxPackets)
	}
	if sum.TxBytes != 160 {
		t.Fatalf("TxBytes: got %d want 160", sum.TxBytes)
	}
}

func TestConcurrentShardWrites(t *testing.T) {
	c := New()

	var wg sync.WaitGroup
	const n = 1000

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.AddRx(i, 10)
		}(i)
	}

	wg.Wait()

	sum := c.Sum()
	if sum.RxPackets != n {
		t.Fatalf("RxPackets: got %d want %d", sum.RxPackets, n)
	}
	if sum.RxBytes != n*10 {
		t.Fatalf("RxBytes: got %d want %d", sum.RxBytes, n*10)
	}
}

func TestAddTxDropped(t *testing.T) {
	c := New()
	c.AddTxDropped(0)

	sum := c.Sum()
	if sum.TxDropped != 1 || sum.TxErrors != 1 {
		t.Fatalf("got dropped=%d errors=%d", sum.TxDropped, sum.TxErrors)
	}
}
