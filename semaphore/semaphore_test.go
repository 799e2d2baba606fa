package semaphore

import (
	"context"
	"sync"
	"testing"
	"time"

	"cluster-semaphore/semaphore/infra"
)

// fakeClock permite avançar o tempo nos cenários de expiração de lease sem
// dormir de verdade.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start int64) *fakeClock {
	return &fakeClock{now: time.Unix(start, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClient(t *testing.T, kv *infra.MemoryKV, clock *fakeClock, clientID string, count int, holdTime int64) *Semaphore {
	t.Helper()
	s, err := New(context.Background(), Options{
		Store:    kv,
		Lock:     "resource",
		ClientID: clientID,
		Count:    count,
		HoldTime: holdTime,
		Now:      clock.Now,
	})
	if err != nil {
		t.Fatalf("unexpected construction error: %v", err)
	}
	return s
}

func TestTwoClientsRaceForSingleSlot(t *testing.T) {
	ctx := context.Background()
	kv := infra.NewMemoryKV()
	clock := newFakeClock(1000)

	c1 := newClient(t, kv, clock, "c1", 1, 600)
	c2 := newClient(t, kv, clock, "c2", 1, 600)

	ok1, err := c1.Down(ctx)
	if err != nil || !ok1 {
		t.Fatalf("expected first down to win, got (%v, %v)", ok1, err)
	}
	ok2, err := c2.Down(ctx)
	if err != nil {
		t.Fatalf("capacity rejection must not be an error, got %v", err)
	}
	if ok2 {
		t.Fatalf("expected second down to be rejected on a full semaphore")
	}

	doc, err := c1.Peek(ctx)
	if err != nil {
		t.Fatalf("unexpected peek error: %v", err)
	}
	if doc.Occupants() != 1 {
		t.Fatalf("expected exactly 1 occupant, got %d", doc.Occupants())
	}
}

func TestThousandDownUpCycles(t *testing.T) {
	ctx := context.Background()
	kv := infra.NewMemoryKV()
	clock := newFakeClock(1000)

	c := newClient(t, kv, clock, "solo", 10, 600)

	for i := 0; i < 1000; i++ {
		ok, err := c.Down(ctx)
		if err != nil || !ok {
			t.Fatalf("cycle %d: expected down to succeed, got (%v, %v)", i, ok, err)
		}
		if err := c.Up(ctx); err != nil {
			t.Fatalf("cycle %d: unexpected up error: %v", i, err)
		}
	}

	doc, _ := c.Peek(ctx)
	if doc.Occupants() != 0 {
		t.Fatalf("expected empty document at the end, got %d occupants", doc.Occupants())
	}
}

func TestLeaseExpiryFreesCrashedHolderSlot(t *testing.T) {
	ctx := context.Background()
	kv := infra.NewMemoryKV()
	clock := newFakeClock(1000)

	crashed := newClient(t, kv, clock, "crashed", 1, 60)
	if ok, err := crashed.Down(ctx); err != nil || !ok {
		t.Fatalf("expected down to succeed, got (%v, %v)", ok, err)
	}
	// o holder morre sem Up; o lease inteiro passa
	clock.Advance(61 * time.Second)

	second := newClient(t, kv, clock, "second", 1, 60)
	ok, err := second.Down(ctx)
	if err != nil || !ok {
		t.Fatalf("expected stale slot to be pruned on read, got (%v, %v)", ok, err)
	}

	doc, _ := second.Peek(ctx)
	if _, held := doc.Slots["crashed"]; held {
		t.Fatalf("expected crashed holder to be gone, got %+v", doc.Slots)
	}
	if _, held := doc.Slots["second"]; !held {
		t.Fatalf("expected second client to hold the slot, got %+v", doc.Slots)
	}
}

func TestLateClientAdoptsStoredParameters(t *testing.T) {
	kv := infra.NewMemoryKV()
	clock := newFakeClock(1000)

	_ = newClient(t, kv, clock, "creator", 5, 300)
	late := newClient(t, kv, clock, "late", 99, 9999)

	if late.Count() != 5 {
		t.Fatalf("expected adopted capacity 5, got %d", late.Count())
	}
	if late.HoldTime() != 300 {
		t.Fatalf("expected adopted holdtime 300, got %d", late.HoldTime())
	}
}

func TestNew_GeneratesClientIDWhenEmpty(t *testing.T) {
	kv := infra.NewMemoryKV()

	s, err := New(context.Background(), Options{
		Store:    kv,
		Lock:     "resource",
		Count:    2,
		HoldTime: 600,
	})
	if err != nil {
		t.Fatalf("unexpected construction error: %v", err)
	}
	if s.ClientID() == "" {
		t.Fatalf("expected a generated client id")
	}
}

func TestNew_RequiresStoreAndLock(t *testing.T) {
	if _, err := New(context.Background(), Options{Lock: "r", Count: 1, HoldTime: 1}); err == nil {
		t.Fatalf("expected error without store")
	}
	if _, err := New(context.Background(), Options{Store: infra.NewMemoryKV(), Count: 1, HoldTime: 1}); err == nil {
		t.Fatalf("expected error without lock")
	}
}

func TestDownWait_AcquiresAfterRelease(t *testing.T) {
	ctx := context.Background()
	kv := infra.NewMemoryKV()
	clock := newFakeClock(1000)

	holder := newClient(t, kv, clock, "holder", 1, 600)
	if ok, err := holder.Down(ctx); err != nil || !ok {
		t.Fatalf("expected down to succeed, got (%v, %v)", ok, err)
	}

	waiter, err := New(ctx, Options{
		Store:        kv,
		Lock:         "resource",
		ClientID:     "waiter",
		Count:        1,
		HoldTime:     600,
		Now:          clock.Now,
		PollInterval: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("unexpected construction error: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- waiter.DownWait(ctx) }()

	// dá tempo do waiter ver o semáforo cheio ao menos uma vez
	time.Sleep(10 * time.Millisecond)
	if err := holder.Up(ctx); err != nil {
		t.Fatalf("unexpected up error: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected downwait to acquire, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for downwait to acquire")
	}
}

func TestDownWait_StopsOnContextCancel(t *testing.T) {
	kv := infra.NewMemoryKV()
	clock := newFakeClock(1000)

	holder := newClient(t, kv, clock, "holder", 1, 600)
	if ok, err := holder.Down(context.Background()); err != nil || !ok {
		t.Fatalf("expected down to succeed, got (%v, %v)", ok, err)
	}
	waiter := newClient(t, kv, clock, "waiter", 1, 600)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := waiter.DownWait(ctx); err == nil {
		t.Fatalf("expected downwait to fail when ctx expires")
	}
}
