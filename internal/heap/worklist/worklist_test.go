package worklist

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestPoolDrainsAllWorkAndTerminates(t *testing.T) {
	const numWorkers = 4
	const numItems = 2000

	pool := NewPool(numWorkers)
	for i := 0; i < numItems; i++ {
		pool.Injector().Push(Item(i + 1))
	}

	var visited int64
	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			pool.Run(w, func(it Item, push func(Item)) {
				atomic.AddInt64(&visited, 1)
			})
		}(w)
	}
	wg.Wait()

	if got := atomic.LoadInt64(&visited); got != numItems {
		t.Fatalf("expected %d items visited, got %d", numItems, got)
	}
}

func TestPoolFanOut(t *testing.T) {
	pool := NewPool(3)
	pool.Injector().Push(Item(1))

	var visited int64
	var wg sync.WaitGroup
	for w := 0; w < 3; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			pool.Run(w, func(it Item, push func(Item)) {
				n := atomic.AddInt64(&visited, 1)
				if it < 4 && n < 50 {
					push(it + 1)
					push(it + 1)
				}
			})
		}(w)
	}
	wg.Wait()
	if visited == 0 {
		t.Fatal("expected at least the seed item to be visited")
	}
}
