package library

import (
	"context"
	"errors"
	"io"

	"vilero/src/util"
)

// UpdateEvent is emitted after the contents of a library changed.
type UpdateEvent struct{}

// ErrNoArt is returned by TrackArt when no artwork is known for a track.
var ErrNoArt = errors.New("no artwork found")

// ErrTrackNotFound is returned when a filename does not resolve to a track.
var ErrTrackNotFound = errors.New("track not found")

// A Library is a database that is able to recall tracks that can be played.
type Library interface {
	util.Eventer

	// Tracks returns all available tracks in server-provided order.
	Tracks(ctx context.Context) ([]Track, error)

	// TrackInfo gets information about a single track by its filename.
	TrackInfo(ctx context.Context, filename string) (Track, error)

	// TrackArt returns the artwork for the track as a reader of image data
	// along with its MIME type. The caller is responsible for closing the
	// reader. ErrNoArt is returned when the track has no artwork.
	TrackArt(ctx context.Context, filename string) (io.ReadCloser, string, error)
}
