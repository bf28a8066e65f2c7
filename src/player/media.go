package player

import (
	"context"
	"time"

	"vilero/src/util"
)

// PlayState is the play state of a media element.
type PlayState string

const (
	PlayStateInvalid PlayState = "invalid"
	PlayStatePlaying PlayState = "playing"
	PlayStateStopped PlayState = "stopped"
	PlayStatePaused  PlayState = "paused"
)

// MediaEndEvent is emitted when the loaded track played to its natural end.
type MediaEndEvent struct{}

// MediaDurationEvent is emitted when the duration of the loaded track becomes
// known.
type MediaDurationEvent struct {
	Duration time.Duration
}

// MediaTimeEvent is emitted periodically while playback progresses.
type MediaTimeEvent struct {
	Time time.Duration
}

// A MediaElement is a single slot that plays one track at a time.
//
// Implementations emit MediaEndEvent, MediaDurationEvent and MediaTimeEvent
// through their Emitter. The controller contains all sequencing logic, a
// media element never advances to another track by itself.
type MediaElement interface {
	util.Eventer

	// Load sets the playable locator as the current source and resets the
	// position. Loading does not start playback.
	Load(ctx context.Context, sourceRef string) error

	Play(ctx context.Context) error

	Pause(ctx context.Context) error

	Stop(ctx context.Context) error

	State(ctx context.Context) (PlayState, error)

	// Position returns the elapsed time within the current track.
	Position(ctx context.Context) (time.Duration, error)

	SetPosition(ctx context.Context, pos time.Duration) error

	// Duration returns the length of the loaded track, or 0 when it is not
	// (yet) known.
	Duration(ctx context.Context) (time.Duration, error)

	// Volume returns the volume as a uniform float in [0, 1].
	Volume(ctx context.Context) (float64, error)

	SetVolume(ctx context.Context, vol float64) error
}
