package session

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestGetOrCreateReturnsSameGame(t *testing.T) {
	r := NewRegistry()
	a := r.GetOrCreate("alice")
	if _, err := a.MakeMove("e4"); err != nil {
		t.Fatalf("e4: %v", err)
	}
	if again := r.GetOrCreate("alice"); again != a {
		t.Fatalf("GetOrCreate returned a different game")
	}
	if b := r.GetOrCreate("bob"); b == a || len(b.History()) != 0 {
		t.Fatalf("sessions are not independent")
	}
	if def := r.GetOrCreate("  "); def.ID() != DefaultID {
		t.Fatalf("blank id = %q", def.ID())
	}
	if r.ActiveCount() != 3 {
		t.Fatalf("active = %d", r.ActiveCount())
	}
}

func TestIdleSessionsArePruned(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistry(WithTimeout(time.Minute), WithClock(clock.Now))

	old := r.GetOrCreate("old")
	_, _ = old.MakeMove("e4")
	clock.Advance(30 * time.Second)
	r.GetOrCreate("fresh")
	clock.Advance(31 * time.Second)

	if n := r.ActiveCount(); n != 1 {
		t.Fatalf("active = %d, want 1", n)
	}
	if g := r.GetOrCreate("old"); len(g.History()) != 0 {
		t.Fatalf("expired session was reused: %v", g.History())
	}
}

func TestAccessAtTimeoutBoundaryKeepsSession(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistry(WithTimeout(time.Minute), WithClock(clock.Now))

	g := r.GetOrCreate("s")
	for i := 0; i < 5; i++ {
		clock.Advance(time.Minute)
		if again := r.GetOrCreate("s"); again != g {
			t.Fatalf("refresh %d lost the session", i)
		}
	}
}

func TestRequestNeverPrunesItsOwnSession(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistry(WithTimeout(time.Minute), WithClock(clock.Now))

	g := r.GetOrCreate("s")
	_, _ = g.MakeMove("d4")
	clock.Advance(2 * time.Minute)

	fresh := r.GetOrCreate("s")
	if fresh == g {
		t.Fatalf("expired game returned")
	}
	if r.ActiveCount() != 1 {
		t.Fatalf("new session missing after prune")
	}
}

func TestDeleteAndClearAll(t *testing.T) {
	r := NewRegistry()
	r.GetOrCreate("a")
	r.GetOrCreate("b")
	r.GetOrCreate("c")

	r.Delete("b")
	r.Delete("missing")
	if r.ActiveCount() != 2 {
		t.Fatalf("active after delete = %d", r.ActiveCount())
	}

	r.ClearAll()
	if r.ActiveCount() != 0 {
		t.Fatalf("active after clear = %d", r.ActiveCount())
	}
}

func TestEvictHookReasons(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistry(WithTimeout(time.Minute), WithClock(clock.Now))

	var mu sync.Mutex
	reasons := map[string]string{}
	r.OnEvict(func(g *Game, reason string) {
		mu.Lock()
		reasons[g.ID()] = reason
		mu.Unlock()
	})

	r.GetOrCreate("idle")
	clock.Advance(2 * time.Minute)
	r.GetOrCreate("deleted")
	r.GetOrCreate("cleared")
	r.Delete("deleted")
	r.ClearAll()

	want := map[string]string{"idle": "idle", "deleted": "deleted", "cleared": "cleared"}
	mu.Lock()
	defer mu.Unlock()
	for id, reason := range want {
		if reasons[id] != reason {
			t.Fatalf("%s evicted with %q, want %q", id, reasons[id], reason)
		}
	}
}

func TestSessionsListing(t *testing.T) {
	r := NewRegistry()
	_, _ = r.GetOrCreate("b").MakeMove("e4")
	r.GetOrCreate("a")

	list := r.Sessions()
	if len(list) != 2 || list[0].ID != "a" || list[1].ID != "b" {
		t.Fatalf("sessions = %+v", list)
	}
	if list[1].MoveCount != 1 || list[0].Status != "normal" {
		t.Fatalf("summaries = %+v", list)
	}
}

func TestConcurrentGetOrCreate(t *testing.T) {
	r := NewRegistry()
	const workers = 32
	games := make([]*Game, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			games[i] = r.GetOrCreate("shared")
		}(i)
	}
	wg.Wait()
	for i := 1; i < workers; i++ {
		if games[i] != games[0] {
			t.Fatalf("worker %d got a different game", i)
		}
	}
	if r.ActiveCount() != 1 {
		t.Fatalf("active = %d", r.ActiveCount())
	}
}
