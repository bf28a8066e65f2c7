package player

import (
	"context"
	"sync"
	"time"

	"vilero/src/util"
)

const softTickInterval = 500 * time.Millisecond

// DurationFunc resolves the duration of a playable locator. It may return 0
// when the duration is unknown.
type DurationFunc func(sourceRef string) time.Duration

// SoftMedia is a MediaElement that tracks playback state against the wall
// clock without producing any sound. It backs deployments where the actual
// audio output lives elsewhere, such as a browser, while the server keeps
// authoritative playback state.
type SoftMedia struct {
	util.Emitter

	durationOf DurationFunc

	mu       sync.Mutex
	source   string
	duration time.Duration
	playing  bool
	basePos  time.Duration
	baseAt   time.Time
	volume   float64
	tickGen  int
}

var _ MediaElement = (*SoftMedia)(nil)

func NewSoftMedia(durationOf DurationFunc) *SoftMedia {
	return &SoftMedia{durationOf: durationOf, volume: 1.0}
}

func (sm *SoftMedia) position() time.Duration {
	pos := sm.basePos
	if sm.playing {
		pos += time.Since(sm.baseAt)
	}
	if sm.duration > 0 && pos > sm.duration {
		pos = sm.duration
	}
	return pos
}

// Load implements the MediaElement interface.
func (sm *SoftMedia) Load(ctx context.Context, sourceRef string) error {
	sm.mu.Lock()
	sm.source = sourceRef
	sm.playing = false
	sm.basePos = 0
	sm.tickGen++
	sm.duration = 0
	if sm.durationOf != nil {
		sm.duration = sm.durationOf(sourceRef)
	}
	duration := sm.duration
	sm.mu.Unlock()

	if duration > 0 {
		sm.Emit(MediaDurationEvent{Duration: duration})
	}
	return nil
}

// Play implements the MediaElement interface.
func (sm *SoftMedia) Play(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.playing || sm.source == "" {
		return nil
	}
	sm.playing = true
	sm.baseAt = time.Now()
	sm.tickGen++
	go sm.tickLoop(sm.tickGen)
	return nil
}

func (sm *SoftMedia) tickLoop(gen int) {
	ticker := time.NewTicker(softTickInterval)
	defer ticker.Stop()
	for range ticker.C {
		sm.mu.Lock()
		if gen != sm.tickGen || !sm.playing {
			sm.mu.Unlock()
			return
		}
		pos := sm.position()
		ended := sm.duration > 0 && pos >= sm.duration
		if ended {
			sm.playing = false
			sm.basePos = sm.duration
		}
		sm.mu.Unlock()

		sm.Emit(MediaTimeEvent{Time: pos})
		if ended {
			sm.Emit(MediaEndEvent{})
			return
		}
	}
}

// Pause implements the MediaElement interface.
func (sm *SoftMedia) Pause(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.basePos = sm.position()
	sm.playing = false
	sm.tickGen++
	return nil
}

// Stop implements the MediaElement interface.
func (sm *SoftMedia) Stop(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.basePos = 0
	sm.playing = false
	sm.tickGen++
	return nil
}

// State implements the MediaElement interface.
func (sm *SoftMedia) State(ctx context.Context) (PlayState, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	switch {
	case sm.playing:
		return PlayStatePlaying, nil
	case sm.source != "" && sm.basePos > 0:
		return PlayStatePaused, nil
	default:
		return PlayStateStopped, nil
	}
}

// Position implements the MediaElement interface.
func (sm *SoftMedia) Position(ctx context.Context) (time.Duration, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.position(), nil
}

// SetPosition implements the MediaElement interface.
func (sm *SoftMedia) SetPosition(ctx context.Context, pos time.Duration) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if pos < 0 {
		pos = 0
	}
	if sm.duration > 0 && pos > sm.duration {
		pos = sm.duration
	}
	sm.basePos = pos
	sm.baseAt = time.Now()
	return nil
}

// Duration implements the MediaElement interface.
func (sm *SoftMedia) Duration(ctx context.Context) (time.Duration, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.duration, nil
}

// Volume implements the MediaElement interface.
func (sm *SoftMedia) Volume(ctx context.Context) (float64, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.volume, nil
}

// SetVolume implements the MediaElement interface.
func (sm *SoftMedia) SetVolume(ctx context.Context, vol float64) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if vol < 0 {
		vol = 0
	} else if vol > 1 {
		vol = 1
	}
	sm.volume = vol
	return nil
}
