package queue

import (
	"sync"
	"testing"
	"time"
)

func TestFIFO(t *testing.T) {
	q := New[int]()
	for i := 0; i < 100; i++ {
		q.Push(i)
	}
	if q.Len() != 100 {
		t.Fatalf("len: got %d", q.Len())
	}
	for i := 0; i < 100; i++ {
		v, ok := q.TryPop()
		if !ok || v != i {
			t.Fatalf("pop %d: got %d, %v", i, v, ok)
		}
	}
	if _, ok := q.TryPop(); ok {
		t.Fatal("pop on empty queue succeeded")
	}
}

func TestReadySignal(t *testing.T) {
	q := New[string]()

	select {
	case <-q.Ready():
		t.Fatal("ready before any push")
	default:
	}

	q.Push("a")
	select {
	case <-q.Ready():
	case <-time.After(time.Second):
		t.Fatal("no wakeup after push")
	}

	// One wakeup may cover several pushes; draining must still work.
	q.Push("b")
	q.Push("c")
	<-q.Ready()
	for _, want := range []string{"a", "b", "c"} {
		v, ok := q.TryPop()
		if !ok || v != want {
			t.Fatalf("got %q, %v; want %q", v, ok, want)
		}
	}
}

func TestPartialDrainRearmsReady(t *testing.T) {
	q := New[int]()
	q.Push(1)
	q.Push(2)
	<-q.Ready()
	if _, ok := q.TryPop(); !ok {
		t.Fatal("pop failed")
	}
	// An item remains, so the wakeup must be pending again.
	select {
	case <-q.Ready():
	case <-time.After(time.Second):
		t.Fatal("wakeup not re-armed after partial drain")
	}
}

func TestConcurrentProducers(t *testing.T) {
	const producers = 8
	const perProducer = 500

	q := New[[2]int]()
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push([2]int{p, i})
			}
		}(p)
	}
	wg.Wait()

	if q.Len() != producers*perProducer {
		t.Fatalf("len: got %d, want %d", q.Len(), producers*perProducer)
	}

	// FIFO per producer: each producer's items come out in push order.
	next := make([]int, producers)
	for {
		v, ok := q.TryPop()
		if !ok {
			break
		}
		p, i := v[0], v[1]
		if next[p] != i {
			t.Fatalf("producer %d: got item %d, want %d", p, i, next[p])
		}
		next[p]++
	}
	for p, n := range next {
		if n != perProducer {
			t.Fatalf("producer %d: drained %d items", p, n)
		}
	}
}
