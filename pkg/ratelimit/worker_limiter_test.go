package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestDebouncer_Local(t *testing.T) {
	now := time.Date(2026, 11, 2, 8, 0, 0, 0, time.UTC)
	d := NewDebouncer(nil, time.Minute)
	d.now = func() time.Time { return now }
	ctx := context.Background()

	if !d.Claim(ctx, "ch-1:5") {
		t.Fatal("first claim must succeed")
	}
	if d.Claim(ctx, "ch-1:5") {
		t.Fatal("redelivery inside the window must be dropped")
	}
	if !d.Claim(ctx, "ch-1:6") {
		t.Fatal("a new message number is a new key")
	}

	now = now.Add(2 * time.Minute)
	if !d.Claim(ctx, "ch-1:5") {
		t.Fatal("claim after the window must succeed")
	}
}

func TestSlidingWindowLimiter_Local(t *testing.T) {
	now := time.Date(2026, 11, 2, 8, 0, 0, 0, time.UTC)
	l := NewSlidingWindowLimiter(nil, 2, time.Minute)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if ok, _ := l.Allow(ctx, "biz"); !ok {
			t.Fatalf("request %d rejected", i)
		}
	}

	now = now.Add(20 * time.Second)
	ok, wait := l.Allow(ctx, "biz")
	if ok {
		t.Fatal("third request inside the window must be rejected")
	}
	if wait != 40*time.Second {
		t.Errorf("wait = %s, want 40s", wait)
	}

	if ok, _ := l.Allow(ctx, "other"); !ok {
		t.Error("keys are limited independently")
	}

	now = now.Add(41 * time.Second)
	if ok, _ := l.Allow(ctx, "biz"); !ok {
		t.Error("request after the window must pass")
	}
}

func TestDebouncer_Release(t *testing.T) {
	d := NewDebouncer(nil, time.Minute)
	ctx := context.Background()

	if !d.Claim(ctx, "ch-1:7") {
		t.Fatal("first claim must succeed")
	}
	d.Release(ctx, "ch-1:7")
	if !d.Claim(ctx, "ch-1:7") {
		t.Fatal("claim after release must succeed")
	}
}
