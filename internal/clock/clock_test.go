package clock

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFakeSleepAdvances(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := NewFake(start)

	if err := f.Sleep(context.Background(), 2*time.Second); err != nil {
		t.Fatalf("Sleep: %v", err)
	}
	f.Advance(time.Second)

	if got := f.Now().Sub(start); got != 3*time.Second {
		t.Errorf("got elapsed %v, want 3s", got)
	}
	if got := f.Sleeps(); len(got) != 1 || got[0] != 2*time.Second {
		t.Errorf("got sleeps %v, want [2s]", got)
	}
}

func TestSleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := NewFake(time.Time{}).Sleep(ctx, time.Second); !errors.Is(err, context.Canceled) {
		t.Errorf("fake: got %v, want context.Canceled", err)
	}
	if err := NewReal().Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("real: got %v, want context.Canceled", err)
	}
}
