package lock

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	k := NewKeyedMutex()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		active  int
		maxSeen int
	)

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := k.Acquire(context.Background(), "customer-1")
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Fatalf("max concurrent holders = %d, want 1", maxSeen)
	}
	if k.size() != 0 {
		t.Fatalf("entries leaked: %d", k.size())
	}
}

func TestKeyedMutexDifferentKeysIndependent(t *testing.T) {
	k := NewKeyedMutex()
	releaseA, err := k.Acquire(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	defer releaseA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	releaseB, err := k.Acquire(ctx, "b")
	if err != nil {
		t.Fatalf("key b blocked by key a: %v", err)
	}
	releaseB()
}

func TestKeyedMutexContextCancel(t *testing.T) {
	k := NewKeyedMutex()
	release, _ := k.Acquire(context.Background(), "a")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := k.Acquire(ctx, "a"); err == nil {
		t.Fatal("expected context error")
	}

	release()
	release() // second call is a no-op
	if k.size() != 0 {
		t.Fatalf("entries leaked: %d", k.size())
	}
}
