package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestNextMarkHourlyAdvancesWhenPassed(t *testing.T) {
	now := time.Date(2026, 3, 15, 10, 45, 0, 0, time.UTC)
	target, err := NextMark(now, Hour, Offset{Minute: 15, Second: 30})
	if err != nil {
		t.Fatalf("NextMark: %v", err)
	}
	want := time.Date(2026, 3, 15, 11, 15, 30, 0, time.UTC)
	if !target.Equal(want) {
		t.Fatalf("expected %v, got %v", want, target)
	}
}

func TestNextMarkHourlyThisHourWhenFuture(t *testing.T) {
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	target, err := NextMark(now, Hour, Offset{Minute: 30, Second: 0})
	if err != nil {
		t.Fatalf("NextMark: %v", err)
	}
	want := time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)
	if !target.Equal(want) {
		t.Fatalf("expected %v, got %v", want, target)
	}
}

func TestNextMarkYearlyClampsLeapDay(t *testing.T) {
	// Feb 29 offset in a non-leap year must clamp to Feb 28.
	now := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	target, err := NextMark(now, Year, Offset{Month: time.February, Day: 29, Hour: 0, Minute: 0, Second: 0})
	if err != nil {
		t.Fatalf("NextMark: %v", err)
	}
	want := time.Date(2027, 2, 28, 0, 0, 0, 0, time.UTC)
	if !target.Equal(want) {
		t.Fatalf("expected clamped date %v, got %v", want, target)
	}
}

func TestNextMarkMonthlyClampsShortMonth(t *testing.T) {
	now := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	target, err := NextMark(now, Month, Offset{Day: 31, Hour: 0, Minute: 0, Second: 0})
	if err != nil {
		t.Fatalf("NextMark: %v", err)
	}
	// Jan 31 00:00 is not after now (equal), so it must advance to February,
	// clamped to Feb 28 (2026 is not a leap year).
	want := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)
	if !target.Equal(want) {
		t.Fatalf("expected clamped date %v, got %v", want, target)
	}
}

func TestAdvanceOnePeriodReclampsMonth(t *testing.T) {
	mark := time.Date(2026, 1, 31, 12, 0, 0, 0, time.UTC)
	next := advanceOnePeriod(mark, Month, Offset{Day: 31})
	want := time.Date(2026, 2, 28, 12, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}
}

func TestRunDriftResistance(t *testing.T) {
	// Mirrors scenario S5: a per-second job blocks on one iteration; later
	// iterations must still land on the original period, not drift.
	logger := zap.NewNop()
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Second)
	defer cancel()

	var mu sync.Mutex
	var runs []time.Time

	count := 0
	job := func(_ context.Context, scheduledAt time.Time) {
		mu.Lock()
		runs = append(runs, scheduledAt)
		count++
		shouldBlock := count == 2
		mu.Unlock()
		if shouldBlock {
			time.Sleep(150 * time.Millisecond)
		}
	}

	Run(ctx, logger, "test-per-second", Second, Offset{}, job)

	mu.Lock()
	defer mu.Unlock()
	if len(runs) < 3 {
		t.Fatalf("expected at least 3 runs, got %d", len(runs))
	}
	for i := 1; i < len(runs); i++ {
		gap := runs[i].Sub(runs[i-1])
		if gap != time.Second {
			t.Fatalf("expected exactly 1s between scheduled marks (no drift), got %v between run %d and %d", gap, i-1, i)
		}
	}
}
