package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestWaitClaimsThenBlocksUntilWindowExpires(t *testing.T) {
	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer server.Close()

	l, err := New("redis://"+server.Addr(), 50*time.Millisecond)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()

	ctx := context.Background()
	start := time.Now()
	if err := l.Wait(ctx, "example.com"); err != nil {
		t.Fatalf("first Wait should claim immediately: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 20*time.Millisecond {
		t.Errorf("first call should not block, took %v", elapsed)
	}

	server.FastForward(60 * time.Millisecond)
	if err := l.Wait(ctx, "example.com"); err != nil {
		t.Fatalf("second Wait after expiry should succeed: %v", err)
	}
}

func TestWaitRespectsContextCancellation(t *testing.T) {
	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer server.Close()

	l, err := New("redis://"+server.Addr(), time.Hour)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()

	ctx := context.Background()
	if err := l.Wait(ctx, "slow.example.com"); err != nil {
		t.Fatalf("first Wait: %v", err)
	}

	cancelCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(cancelCtx, "slow.example.com"); err == nil {
		t.Errorf("expected context deadline error on second call")
	}
}
