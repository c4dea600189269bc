package main

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"murmur/hotkey"
)

func TestLoopTogglesUntilCancelled(t *testing.T) {
	hk := hotkey.NewFake()
	ctx, cancel := context.WithCancel(context.Background())

	var toggles atomic.Int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		loop(ctx, hk, func() { toggles.Add(1) })
	}()

	for i := 1; i <= 2; i++ {
		hk.SimToggle()
		deadline := time.Now().Add(2 * time.Second)
		for toggles.Load() < int32(i) {
			if time.Now().After(deadline) {
				t.Fatalf("press %d not delivered", i)
			}
			time.Sleep(time.Millisecond)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit on cancel")
	}
	if got := toggles.Load(); got != 2 {
		t.Errorf("toggles = %d, want 2", got)
	}
}
