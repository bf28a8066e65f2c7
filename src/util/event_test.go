package util

import (
	"testing"
	"time"
)

type testEvent struct {
	seq int
}

func TestEmitterSingleListener(t *testing.T) {
	var emitter Emitter
	l := emitter.Listen()
	defer emitter.Unlisten(l)

	emitter.Emit(testEvent{seq: 1})
	select {
	case event := <-l:
		if event != (testEvent{seq: 1}) {
			t.Fatalf("unexpected event: %#v", event)
		}
	case <-time.After(time.Second):
		t.Fatalf("no event received")
	}
}

func TestEmitterMultipleListeners(t *testing.T) {
	var emitter Emitter
	a := emitter.Listen()
	defer emitter.Unlisten(a)
	b := emitter.Listen()
	defer emitter.Unlisten(b)

	emitter.Emit(testEvent{seq: 7})
	for _, l := range []<-chan interface{}{a, b} {
		select {
		case event := <-l:
			if event != (testEvent{seq: 7}) {
				t.Fatalf("unexpected event: %#v", event)
			}
		case <-time.After(time.Second):
			t.Fatalf("no event received")
		}
	}
}

func TestEmitterUnlisten(t *testing.T) {
	var emitter Emitter
	l := emitter.Listen()
	emitter.Unlisten(l)

	// Emitting after Unlisten should not panic or block.
	emitter.Emit(testEvent{seq: 2})

	if _, ok := <-l; ok {
		t.Fatalf("listener channel was not closed")
	}
}
