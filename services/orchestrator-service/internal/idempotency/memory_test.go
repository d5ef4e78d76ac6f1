package idempotency

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestReserveCommitLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	processed, err := s.IsProcessed(ctx, "cmd-1")
	if err != nil || processed {
		t.Fatalf("fresh command must not be processed (processed=%v err=%v)", processed, err)
	}

	if err := s.Reserve(ctx, "cmd-1", "InitiatePayment"); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	// Reserved but uncommitted is not processed yet.
	if processed, _ := s.IsProcessed(ctx, "cmd-1"); processed {
		t.Fatal("reserved command must not count as processed")
	}

	if err := s.Commit(ctx, "cmd-1", "evt-1"); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	processed, _ = s.IsProcessed(ctx, "cmd-1")
	if !processed {
		t.Fatal("committed command must be processed")
	}

	rec, ok, err := s.Lookup(ctx, "cmd-1")
	if err != nil || !ok {
		t.Fatalf("Lookup failed: ok=%v err=%v", ok, err)
	}
	if rec.ResultEventID != "evt-1" || rec.CommandType != "InitiatePayment" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.ProcessedAt.IsZero() {
		t.Fatal("expected processed_at to be stamped")
	}
}

func TestReserveConflicts(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.Reserve(ctx, "cmd-1", "InitiatePayment"); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if err := s.Reserve(ctx, "cmd-1", "InitiatePayment"); !errors.Is(err, ErrReservationHeld) {
		t.Fatalf("expected ErrReservationHeld, got %v", err)
	}

	if err := s.Commit(ctx, "cmd-1", "evt-1"); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if err := s.Reserve(ctx, "cmd-1", "InitiatePayment"); !errors.Is(err, ErrAlreadyProcessed) {
		t.Fatalf("expected ErrAlreadyProcessed, got %v", err)
	}
}

func TestReleaseMakesCommandRetryable(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.Reserve(ctx, "cmd-1", "InitiatePayment"); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if err := s.Release(ctx, "cmd-1"); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if err := s.Reserve(ctx, "cmd-1", "InitiatePayment"); err != nil {
		t.Fatalf("Reserve after Release failed: %v", err)
	}
}

func TestReleaseRefusesCommittedRecord(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.Reserve(ctx, "cmd-1", "InitiatePayment"); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if err := s.Commit(ctx, "cmd-1", "evt-1"); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if err := s.Release(ctx, "cmd-1"); !errors.Is(err, ErrAlreadyProcessed) {
		t.Fatalf("expected ErrAlreadyProcessed, got %v", err)
	}
}

func TestCommitWithoutReservation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if err := s.Commit(ctx, "cmd-1", "evt-1"); !errors.Is(err, ErrNotReserved) {
		t.Fatalf("expected ErrNotReserved, got %v", err)
	}
}

func TestMarkProcessedAlwaysFailsOnPresentKey(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.MarkProcessed(ctx, "cmd-1", "InitiatePayment", "evt-1"); err != nil {
		t.Fatalf("MarkProcessed failed: %v", err)
	}
	if err := s.MarkProcessed(ctx, "cmd-1", "InitiatePayment", "evt-2"); !errors.Is(err, ErrAlreadyProcessed) {
		t.Fatalf("expected ErrAlreadyProcessed, got %v", err)
	}

	// A live reservation also blocks MarkProcessed.
	if err := s.Reserve(ctx, "cmd-2", "InitiatePayment"); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if err := s.MarkProcessed(ctx, "cmd-2", "InitiatePayment", "evt-3"); !errors.Is(err, ErrAlreadyProcessed) {
		t.Fatalf("expected ErrAlreadyProcessed, got %v", err)
	}
}

func TestCountAndClear(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore().WithClock(func() time.Time {
		return time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	})

	for _, id := range []string{"cmd-1", "cmd-2", "cmd-3"} {
		if err := s.MarkProcessed(ctx, id, "InitiatePayment", "evt-"+id); err != nil {
			t.Fatalf("MarkProcessed(%s) failed: %v", id, err)
		}
	}
	// An open reservation does not count as processed.
	if err := s.Reserve(ctx, "cmd-4", "InitiatePayment"); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}

	n, err := s.Count(ctx)
	if err != nil || n != 3 {
		t.Fatalf("expected count 3, got %d (err=%v)", n, err)
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	n, _ = s.Count(ctx)
	if n != 0 {
		t.Fatalf("expected count 0 after Clear, got %d", n)
	}
}

func TestConcurrentReserveAdmitsExactlyOne(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	const attempts = 32
	var wg sync.WaitGroup
	wins := make(chan struct{}, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Reserve(ctx, "cmd-race", "InitiatePayment"); err == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for range wins {
		won++
	}
	if won != 1 {
		t.Fatalf("expected exactly one successful reservation, got %d", won)
	}
}
