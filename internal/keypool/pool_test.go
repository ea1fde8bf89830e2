package keypool

import (
	"errors"
	"sync"
	"testing"
)

func TestNew_NoKeys(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, ErrNoKeys) {
		t.Fatalf("New(nil) error = %v, want ErrNoKeys", err)
	}
	if _, err := New([]string{"", ""}); !errors.Is(err, ErrNoKeys) {
		t.Fatalf("New(empty strings) error = %v, want ErrNoKeys", err)
	}
}

func TestNew_DropsEmptyKeys(t *testing.T) {
	p, err := New([]string{"", "a", "", "b"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.Size() != 2 {
		t.Fatalf("Size() = %d, want 2", p.Size())
	}
}

func TestAcquire_CyclicOrder(t *testing.T) {
	keys := []string{"k1", "k2", "k3"}
	p, err := New(keys)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// N consecutive calls return N distinct keys in fixed order.
	for i := 0; i < len(keys); i++ {
		if got := p.Acquire(); got != keys[i] {
			t.Errorf("call %d = %q, want %q", i+1, got, keys[i])
		}
	}

	// Call N+1 equals call 1.
	if got := p.Acquire(); got != keys[0] {
		t.Errorf("call N+1 = %q, want %q", got, keys[0])
	}
}

func TestAcquire_SingleKey(t *testing.T) {
	p, err := New([]string{"only"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < 5; i++ {
		if got := p.Acquire(); got != "only" {
			t.Fatalf("Acquire() = %q, want %q", got, "only")
		}
	}
}

func TestAcquire_Concurrent(t *testing.T) {
	keys := []string{"a", "b", "c", "d"}
	p, err := New(keys)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	const goroutines = 8
	const perGoroutine = 100

	var mu sync.Mutex
	counts := make(map[string]int)

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make(map[string]int)
			for i := 0; i < perGoroutine; i++ {
				local[p.Acquire()]++
			}
			mu.Lock()
			for k, n := range local {
				counts[k] += n
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	// Total acquisitions divide evenly across keys: every key is used
	// exactly total/N times because the index increments atomically.
	want := goroutines * perGoroutine / len(keys)
	for _, k := range keys {
		if counts[k] != want {
			t.Errorf("key %q acquired %d times, want %d", k, counts[k], want)
		}
	}
}
