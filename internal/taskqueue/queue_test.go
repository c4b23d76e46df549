package taskqueue

import (
	"sync"
	"testing"
	"time"
)

func TestQueue_FIFO(t *testing.T) {
	q := New[int]()
	for i := 0; i < 100; i++ {
		q.Push(i)
	}
	if q.Len() != 100 {
		t.Fatalf("Len = %d, want 100", q.Len())
	}
	for i := 0; i < 100; i++ {
		if got := q.Pop(); got != i {
			t.Fatalf("Pop = %d, want %d", got, i)
		}
	}
	if q.Len() != 0 {
		t.Errorf("Len = %d after draining, want 0", q.Len())
	}
}

func TestQueue_PopBlocksUntilPush(t *testing.T) {
	q := New[string]()
	got := make(chan string, 1)
	go func() {
		got <- q.Pop()
	}()

	select {
	case v := <-got:
		t.Fatalf("Pop returned %q on an empty queue", v)
	case <-time.After(50 * time.Millisecond):
	}

	q.Push("item")
	select {
	case v := <-got:
		if v != "item" {
			t.Errorf("Pop = %q, want item", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Pop did not wake after Push")
	}
}

func TestQueue_CompetingConsumersExactlyOnce(t *testing.T) {
	const (
		producers = 4
		consumers = 16
		perProd   = 2500
		total     = producers * perProd
	)
	q := New[int]()

	var mu sync.Mutex
	seen := make(map[int]int, total)

	var wg sync.WaitGroup
	for c := 0; c < consumers; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < total/consumers; i++ {
				v := q.Pop()
				mu.Lock()
				seen[v]++
				mu.Unlock()
			}
		}()
	}

	for p := 0; p < producers; p++ {
		go func(p int) {
			for i := 0; i < perProd; i++ {
				q.Push(p*perProd + i)
			}
		}(p)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("consumers did not drain the queue")
	}

	if len(seen) != total {
		t.Fatalf("saw %d distinct items, want %d", len(seen), total)
	}
	for v, n := range seen {
		if n != 1 {
			t.Fatalf("item %d popped %d times", v, n)
		}
	}
}

func TestQueue_CompactsAfterLongBacklog(t *testing.T) {
	q := New[int]()
	for i := 0; i < 5000; i++ {
		q.Push(i)
	}
	for i := 0; i < 3000; i++ {
		if got := q.Pop(); got != i {
			t.Fatalf("Pop = %d, want %d", got, i)
		}
	}
	q.Push(5000)
	for i := 3000; i <= 5000; i++ {
		if got := q.Pop(); got != i {
			t.Fatalf("Pop = %d, want %d", got, i)
		}
	}
}
