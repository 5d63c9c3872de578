package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNextTickAligned(t *testing.T) {
	s := New(Options{Interval: time.Hour, AlignToStart: true}, zerolog.Nop())

	now := time.Date(2025, 6, 1, 12, 25, 0, 0, time.UTC)
	next := s.nextTick(now)
	want := time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("expected next aligned tick %v, got %v", want, next)
	}

	// Exactly on the boundary: the next bucket, not the current one.
	boundary := time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)
	next = s.nextTick(boundary)
	if !next.Equal(boundary.Add(time.Hour)) {
		t.Fatalf("tick on boundary should advance a full interval, got %v", next)
	}
}

func TestNextTickUnaligned(t *testing.T) {
	s := New(Options{Interval: time.Hour}, zerolog.Nop())

	now := time.Date(2025, 6, 1, 12, 25, 0, 0, time.UTC)
	next := s.nextTick(now)
	if !next.Equal(now.Add(time.Hour)) {
		t.Fatalf("unaligned tick should be now+interval, got %v", next)
	}
}

func TestBucketStart(t *testing.T) {
	aligned := New(Options{Interval: time.Hour, AlignToStart: true}, zerolog.Nop())
	ts := time.Date(2025, 6, 1, 13, 0, 0, 123, time.UTC)
	if got := aligned.bucketStart(ts); !got.Equal(ts.Truncate(time.Hour)) {
		t.Fatalf("aligned bucket should truncate, got %v", got)
	}

	unaligned := New(Options{Interval: time.Hour}, zerolog.Nop())
	if got := unaligned.bucketStart(ts); !got.Equal(ts) {
		t.Fatalf("unaligned bucket should pass through, got %v", got)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	s := New(Options{Interval: 10 * time.Millisecond}, zerolog.Nop())

	var ticks int64
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := s.Run(ctx, func(ctx context.Context, bucket time.Time) error {
		atomic.AddInt64(&ticks, 1)
		return nil
	})
	if err != context.DeadlineExceeded {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if atomic.LoadInt64(&ticks) == 0 {
		t.Fatal("expected at least one tick before cancellation")
	}
}

func TestNewPanicsOnZeroInterval(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("zero interval must panic")
		}
	}()
	New(Options{}, zerolog.Nop())
}
