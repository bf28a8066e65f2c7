package player

import (
	"context"
	"testing"
	"time"

	"vilero/src/util"
)

func TestSoftMediaLifecycle(t *testing.T) {
	ctx := context.Background()
	sm := NewSoftMedia(func(string) time.Duration { return time.Minute })

	if err := sm.Load(ctx, "/stream/a.mp3"); err != nil {
		t.Fatal(err)
	}
	if state, _ := sm.State(ctx); state != PlayStateStopped {
		t.Fatalf("Unexpected state after load: %v", state)
	}
	if duration, _ := sm.Duration(ctx); duration != time.Minute {
		t.Fatalf("Unexpected duration: %v", duration)
	}

	if err := sm.Play(ctx); err != nil {
		t.Fatal(err)
	}
	if state, _ := sm.State(ctx); state != PlayStatePlaying {
		t.Fatalf("Unexpected state after play: %v", state)
	}
	time.Sleep(20 * time.Millisecond)
	pos, _ := sm.Position(ctx)
	if pos <= 0 {
		t.Fatalf("Position did not advance while playing")
	}

	if err := sm.Pause(ctx); err != nil {
		t.Fatal(err)
	}
	paused, _ := sm.Position(ctx)
	time.Sleep(20 * time.Millisecond)
	if pos, _ := sm.Position(ctx); pos != paused {
		t.Fatalf("Position advanced while paused: %v != %v", pos, paused)
	}
	if state, _ := sm.State(ctx); state != PlayStatePaused {
		t.Fatalf("Unexpected state after pause: %v", state)
	}

	if err := sm.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	if pos, _ := sm.Position(ctx); pos != 0 {
		t.Fatalf("Stop did not reset the position: %v", pos)
	}
}

func TestSoftMediaClamps(t *testing.T) {
	ctx := context.Background()
	sm := NewSoftMedia(func(string) time.Duration { return 10 * time.Second })
	if err := sm.Load(ctx, "/stream/a.mp3"); err != nil {
		t.Fatal(err)
	}

	if err := sm.SetPosition(ctx, -time.Second); err != nil {
		t.Fatal(err)
	}
	if pos, _ := sm.Position(ctx); pos != 0 {
		t.Fatalf("Negative position was not clamped: %v", pos)
	}
	if err := sm.SetPosition(ctx, time.Minute); err != nil {
		t.Fatal(err)
	}
	if pos, _ := sm.Position(ctx); pos != 10*time.Second {
		t.Fatalf("Position was not clamped to the duration: %v", pos)
	}

	if err := sm.SetVolume(ctx, 1.5); err != nil {
		t.Fatal(err)
	}
	if vol, _ := sm.Volume(ctx); vol != 1 {
		t.Fatalf("Volume was not clamped: %v", vol)
	}
	if err := sm.SetVolume(ctx, -0.5); err != nil {
		t.Fatal(err)
	}
	if vol, _ := sm.Volume(ctx); vol != 0 {
		t.Fatalf("Volume was not clamped: %v", vol)
	}
}

func TestSoftMediaEmitsEnd(t *testing.T) {
	ctx := context.Background()
	sm := NewSoftMedia(func(string) time.Duration { return 400 * time.Millisecond })
	if err := sm.Load(ctx, "/stream/a.mp3"); err != nil {
		t.Fatal(err)
	}

	util.TestEventEmission(t, sm, MediaEndEvent{}, func() {
		if err := sm.Play(ctx); err != nil {
			t.Error(err)
		}
	})
	if state, _ := sm.State(ctx); state == PlayStatePlaying {
		t.Fatalf("Still playing after the track ended")
	}
}
