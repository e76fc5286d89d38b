package event

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestHub_SubscribeEmit(t *testing.T) {
	var h Hub[int]
	var got []int
	h.Subscribe(func(v int) { got = append(got, v) })
	h.Emit(1)
	h.Emit(2)
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("got %v, want [1 2]", got)
	}
}

func TestHub_RemoveStopsDelivery(t *testing.T) {
	var h Hub[struct{}]
	calls := 0
	remove := h.Subscribe(func(struct{}) { calls++ })
	h.Emit(struct{}{})
	remove()
	remove() // idempotent
	h.Emit(struct{}{})
	if calls != 1 {
		t.Fatalf("handler ran %d times after removal, want 1", calls)
	}
}

func TestHub_SubscribeDuringDispatch(t *testing.T) {
	var h Hub[int]
	var late atomic.Int32
	h.Subscribe(func(int) {
		// Subscribing from inside a handler must not deadlock.
		h.Subscribe(func(int) { late.Add(1) })
	})
	h.Emit(0)
	h.Emit(0)
	if late.Load() == 0 {
		t.Fatal("handler subscribed during dispatch never ran")
	}
}

func TestHub_ConcurrentEmitAndMutate(t *testing.T) {
	var h Hub[int]
	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				h.Emit(7)
			}
		}
	}()

	for i := 0; i < 100; i++ {
		remove := h.Subscribe(func(int) {})
		remove()
	}
	close(stop)
	wg.Wait()
}
