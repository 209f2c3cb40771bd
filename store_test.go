package imagepulse

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(":memory:")
	if err != nil {
		t.Fatalf("OpenStore() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Initialize(); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}
	return s
}

func TestRecordEvent_CounterMatchesEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := s.RecordEvent(ctx, PullEvent{Image: "nginx:latest", Outcome: OutcomeSuccess})
		if err != nil {
			t.Fatalf("RecordEvent() failed: %v", err)
		}
	}
	err := s.RecordEvent(ctx, PullEvent{Image: "nginx:latest", Outcome: OutcomeFailure, Detail: "manifest unknown"})
	if err != nil {
		t.Fatalf("RecordEvent() failed: %v", err)
	}

	counters, err := s.QueryCounters(ctx, "nginx:latest")
	if err != nil {
		t.Fatalf("QueryCounters() failed: %v", err)
	}
	if len(counters) != 1 {
		t.Fatalf("expected 1 counter, got %d", len(counters))
	}

	c := counters[0]
	if c.Total != 4 {
		t.Errorf("expected total 4, got %d", c.Total)
	}
	if c.Success != 3 {
		t.Errorf("expected success 3, got %d", c.Success)
	}
	if c.Failure != 1 {
		t.Errorf("expected failure 1, got %d", c.Failure)
	}
	if c.Success+c.Failure != c.Total {
		t.Errorf("success+failure = %d, want total %d", c.Success+c.Failure, c.Total)
	}

	events, err := s.CountEvents(ctx, "nginx:latest")
	if err != nil {
		t.Fatalf("CountEvents() failed: %v", err)
	}
	if events != c.Total {
		t.Errorf("counter total %d does not match event count %d", c.Total, events)
	}
}

func TestRecordEvent_LastSeenNeverRegresses(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	later := time.Now()
	earlier := later.Add(-time.Hour)

	if err := s.RecordEvent(ctx, PullEvent{Image: "redis:7", Outcome: OutcomeSuccess, Timestamp: later}); err != nil {
		t.Fatalf("RecordEvent() failed: %v", err)
	}
	// Out-of-order arrival must not move last_seen backwards.
	if err := s.RecordEvent(ctx, PullEvent{Image: "redis:7", Outcome: OutcomeSuccess, Timestamp: earlier}); err != nil {
		t.Fatalf("RecordEvent() failed: %v", err)
	}

	counters, err := s.QueryCounters(ctx, "redis:7")
	if err != nil {
		t.Fatalf("QueryCounters() failed: %v", err)
	}
	if got := counters[0].LastSeen; got.Before(later.UTC()) {
		t.Errorf("last_seen regressed to %v, want %v", got, later.UTC())
	}
}

func TestRecordEvent_Concurrent_NoLostUpdates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const n = 25
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.RecordEvent(ctx, PullEvent{Image: "busybox:1.36", Outcome: OutcomeSuccess})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent RecordEvent() failed: %v", err)
		}
	}

	counters, err := s.QueryCounters(ctx, "busybox:1.36")
	if err != nil {
		t.Fatalf("QueryCounters() failed: %v", err)
	}
	if counters[0].Total != n {
		t.Errorf("expected total %d after %d concurrent writes, got %d", n, n, counters[0].Total)
	}
}

func TestInitialize_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.RecordEvent(ctx, PullEvent{Image: "alpine:3.20", Outcome: OutcomeSuccess}); err != nil {
		t.Fatalf("RecordEvent() failed: %v", err)
	}

	// Re-running initialization must not destroy existing data.
	if err := s.Initialize(); err != nil {
		t.Fatalf("second Initialize() failed: %v", err)
	}

	counters, err := s.QueryCounters(ctx, "alpine:3.20")
	if err != nil {
		t.Fatalf("QueryCounters() failed: %v", err)
	}
	if len(counters) != 1 || counters[0].Total != 1 {
		t.Errorf("data lost after re-initialization: %+v", counters)
	}
}

func TestRecordEvent_UninitializedStore_ReturnsWriteError(t *testing.T) {
	s, err := OpenStore(":memory:")
	if err != nil {
		t.Fatalf("OpenStore() failed: %v", err)
	}
	defer s.Close()

	// Do NOT call Initialize — simulate an uninitialized database.
	err = s.RecordEvent(context.Background(), PullEvent{Image: "nginx:latest", Outcome: OutcomeSuccess})
	if err == nil {
		t.Fatal("RecordEvent() should fail on uninitialized database")
	}
	var werr *WriteError
	if !errors.As(err, &werr) {
		t.Errorf("RecordEvent() error = %v; want a *WriteError", err)
	}
}

func TestQueryCounters_FilterAndAll(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, image := range []string{"nginx:latest", "redis:7", "nginx:latest"} {
		if err := s.RecordEvent(ctx, PullEvent{Image: image, Outcome: OutcomeSuccess}); err != nil {
			t.Fatalf("RecordEvent() failed: %v", err)
		}
	}

	all, err := s.QueryCounters(ctx, "")
	if err != nil {
		t.Fatalf("QueryCounters() failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 counters, got %d", len(all))
	}

	one, err := s.QueryCounters(ctx, "redis:7")
	if err != nil {
		t.Fatalf("QueryCounters() failed: %v", err)
	}
	if len(one) != 1 || one[0].Image != "redis:7" || one[0].Total != 1 {
		t.Errorf("unexpected filtered result: %+v", one)
	}

	none, err := s.QueryCounters(ctx, "unknown:tag")
	if err != nil {
		t.Fatalf("QueryCounters() failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no counters for unknown image, got %+v", none)
	}
}

func TestHealthCheck(t *testing.T) {
	s := newTestStore(t)
	if !s.HealthCheck(context.Background()) {
		t.Error("HealthCheck() = false on a healthy store")
	}

	s.Close()
	if s.HealthCheck(context.Background()) {
		t.Error("HealthCheck() = true on a closed store")
	}
}

func TestInitialize_ClosedStore_ReturnsInitError(t *testing.T) {
	s, err := OpenStore(":memory:")
	if err != nil {
		t.Fatalf("OpenStore() failed: %v", err)
	}
	s.Close()

	err = s.Initialize()
	if err == nil {
		t.Fatal("Initialize() should fail on a closed store")
	}
	var ierr *InitError
	if !errors.As(err, &ierr) {
		t.Errorf("Initialize() error = %v; want an *InitError", err)
	}
}
