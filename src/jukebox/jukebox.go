// Package jukebox ties the library, the playback controller and the stored
// settings together into the single object the HTTP layer talks to.
package jukebox

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"vilero/src/library"
	"vilero/src/player"
	"vilero/src/settings"
	"vilero/src/util"
)

// LibraryUpdateEvent is emitted after the track listing changed and the
// playlist was reloaded.
type LibraryUpdateEvent struct {
	NumTracks int
}

// Jukebox augments a playback controller with library refreshing, artwork
// fallback and persistent settings.
type Jukebox struct {
	util.Emitter

	lib      *library.FS
	ctrl     *player.Controller
	fallback library.ArtSource
	settings *settings.Store

	stop     chan struct{}
	stopOnce sync.Once
}

func NewJukebox(lib *library.FS, ctrl *player.Controller, fallbackArt library.ArtSource, settingsStore *settings.Store) *Jukebox {
	jb := &Jukebox{
		lib:      lib,
		ctrl:     ctrl,
		fallback: fallbackArt,
		settings: settingsStore,
		stop:     make(chan struct{}),
	}
	go jb.watchLibrary()
	go jb.forwardEvents()
	return jb
}

func (jb *Jukebox) Close() error {
	jb.stopOnce.Do(func() { close(jb.stop) })
	return jb.ctrl.Close()
}

// watchLibrary reloads the playlist whenever the library contents change. The
// initial load happens here too.
func (jb *Jukebox) watchLibrary() {
	events := jb.lib.Events().Listen()
	defer jb.lib.Events().Unlisten(events)

	jb.RefreshPlaylist(context.Background())
	for {
		select {
		case <-jb.stop:
			return
		case event := <-events:
			if _, ok := event.(library.UpdateEvent); ok {
				jb.RefreshPlaylist(context.Background())
			}
		}
	}
}

// forwardEvents republishes controller events so that a single listener on
// the jukebox sees everything that matters to a client.
func (jb *Jukebox) forwardEvents() {
	events := jb.ctrl.Events().Listen()
	defer jb.ctrl.Events().Unlisten(events)
	for {
		select {
		case <-jb.stop:
			return
		case event := <-events:
			jb.Emit(event)
		}
	}
}

// RefreshPlaylist replaces the playlist with the current library listing.
func (jb *Jukebox) RefreshPlaylist(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	tracks, err := jb.lib.Tracks(ctx)
	if err != nil {
		log.Errorf("Could not list library: %v", err)
		return
	}
	jb.ctrl.LoadPlaylist(ctx, tracks)
	jb.Emit(LibraryUpdateEvent{NumTracks: len(tracks)})
	log.WithField("tracks", len(tracks)).Debugf("Playlist reloaded")
}

func (jb *Jukebox) Tracks(ctx context.Context) ([]library.Track, error) {
	return jb.lib.Tracks(ctx)
}

func (jb *Jukebox) TrackInfo(ctx context.Context, filename string) (library.Track, error) {
	return jb.lib.TrackInfo(ctx, filename)
}

// TrackArt returns artwork for a track, trying the tags embedded in the file
// first and the remote fallback second.
func (jb *Jukebox) TrackArt(ctx context.Context, filename string) (io.ReadCloser, string, error) {
	sources := []library.ArtSource{jb.lib}
	if jb.fallback != nil {
		sources = append(sources, jb.fallback)
	}

	var err error
	for _, source := range sources {
		var image io.ReadCloser
		var mime string
		image, mime, err = source.TrackArt(ctx, filename)
		if err == nil {
			return image, mime, nil
		}
		if errors.Is(err, library.ErrTrackNotFound) {
			return nil, "", err
		}
	}
	return nil, "", err
}

// AddTrack stores an uploaded file in the library. The directory watcher
// picks up the change and triggers the playlist reload.
func (jb *Jukebox) AddTrack(filename string, r io.Reader) error {
	return jb.lib.Add(filename, r)
}

// OpenTrack opens a track for streaming, the caller closes it.
func (jb *Jukebox) OpenTrack(filename string) (io.ReadSeekCloser, error) {
	return jb.lib.Open(filename)
}

func (jb *Jukebox) Status(ctx context.Context) (*player.Status, error) {
	return jb.ctrl.Status(ctx)
}

func (jb *Jukebox) PlayAt(ctx context.Context, index int) error {
	return jb.ctrl.PlayAt(ctx, index)
}

func (jb *Jukebox) Next(ctx context.Context) error {
	return jb.ctrl.Next(ctx)
}

func (jb *Jukebox) Previous(ctx context.Context) error {
	return jb.ctrl.Previous(ctx)
}

func (jb *Jukebox) TogglePlayPause(ctx context.Context) error {
	return jb.ctrl.TogglePlayPause(ctx)
}

func (jb *Jukebox) TogglePlayMode(ctx context.Context) player.PlayMode {
	return jb.ctrl.TogglePlayMode()
}

func (jb *Jukebox) SetMode(mode player.PlayMode) error {
	return jb.ctrl.SetMode(mode)
}

func (jb *Jukebox) Mode() player.PlayMode {
	return jb.ctrl.Mode()
}

func (jb *Jukebox) SeekTo(ctx context.Context, fraction float64) error {
	return jb.ctrl.SeekTo(ctx, fraction)
}

func (jb *Jukebox) SeekBy(ctx context.Context, delta time.Duration) error {
	return jb.ctrl.SeekBy(ctx, delta)
}

func (jb *Jukebox) SetVolume(ctx context.Context, vol float64) error {
	return jb.ctrl.SetVolume(ctx, vol)
}

func (jb *Jukebox) VolumeBy(ctx context.Context, delta float64) error {
	return jb.ctrl.VolumeBy(ctx, delta)
}

func (jb *Jukebox) Settings() *settings.Store {
	return jb.settings
}
