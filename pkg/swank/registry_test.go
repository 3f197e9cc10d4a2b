package swank

import (
	"errors"
	"sync"
	"testing"
)

func TestRegistryMonotonic(t *testing.T) {
	reg := NewRegistry()
	for want := uint64(1); want <= 5; want++ {
		if got := reg.Next(); got != want {
			t.Fatalf("Next: got %d, want %d", got, want)
		}
	}
}

func TestRegistryConcurrentNext(t *testing.T) {
	reg := NewRegistry()
	const workers, perWorker = 8, 100

	var wg sync.WaitGroup
	ids := make(chan uint64, workers*perWorker)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				ids <- reg.Next()
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[uint64]bool)
	for id := range ids {
		if seen[id] {
			t.Fatalf("id %d issued twice", id)
		}
		seen[id] = true
	}
	if len(seen) != workers*perWorker {
		t.Errorf("got %d ids, want %d", len(seen), workers*perWorker)
	}
}

func TestRegistryRegister(t *testing.T) {
	reg := NewRegistry()
	id := reg.Next()
	action := PendingAction{Kind: ActionResolvePackages, Promise: 9}

	if err := reg.Register(id, action); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	err := reg.Register(id, PendingAction{Kind: ActionPrint})
	if !errors.Is(err, ErrDuplicateContinuation) {
		t.Fatalf("expected ErrDuplicateContinuation, got %v", err)
	}

	got, ok := reg.Lookup(id)
	if !ok || got != action {
		t.Errorf("Lookup: got %+v, %v; want %+v", got, ok, action)
	}
	// Lookups do not consume entries.
	if _, ok := reg.Lookup(id); !ok {
		t.Error("second Lookup lost the entry")
	}
	if _, ok := reg.Lookup(id + 1); ok {
		t.Error("Lookup found an unregistered id")
	}
	if reg.Len() != 1 {
		t.Errorf("Len: got %d, want 1", reg.Len())
	}
}
