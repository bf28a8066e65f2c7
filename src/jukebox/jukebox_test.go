package jukebox

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"vilero/src/library"
	"vilero/src/player"
	"vilero/src/settings"
	"vilero/src/util"
)

type stubArt struct {
	mime string
}

func (sa stubArt) TrackArt(ctx context.Context, filename string) (io.ReadCloser, string, error) {
	return io.NopCloser(strings.NewReader("image data")), sa.mime, nil
}

func testJukebox(t *testing.T, fallback library.ArtSource) (*Jukebox, *player.Controller, string) {
	t.Helper()
	dir := t.TempDir()
	lib, err := library.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { lib.Close() })

	settingsStore, err := settings.NewStore(filepath.Join(t.TempDir(), "settings.json"))
	if err != nil {
		t.Fatal(err)
	}
	ctrl := player.New(player.NewSoftMedia(nil), lib, player.Options{})
	jb := NewJukebox(lib, ctrl, fallback, settingsStore)
	t.Cleanup(func() { jb.Close() })
	return jb, ctrl, dir
}

func TestRefreshPlaylist(t *testing.T) {
	jb, ctrl, dir := testJukebox(t, nil)
	if err := os.WriteFile(filepath.Join(dir, "song.mp3"), []byte("junk"), 0644); err != nil {
		t.Fatal(err)
	}

	util.TestEventEmission(t, jb, LibraryUpdateEvent{NumTracks: 1}, func() {
		jb.RefreshPlaylist(context.Background())
	})

	tracks := ctrl.Tracks()
	if len(tracks) != 1 || tracks[0].Filename != "song.mp3" {
		t.Fatalf("Playlist was not reloaded: %v", tracks)
	}
	status, err := ctrl.Status(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if status.Index != -1 {
		t.Fatalf("Reload did not reset the index: %v", status.Index)
	}
}

func TestTrackArtFallback(t *testing.T) {
	jb, _, dir := testJukebox(t, stubArt{mime: "image/png"})
	// A file without embedded artwork falls through to the remote source.
	if err := os.WriteFile(filepath.Join(dir, "song.mp3"), []byte("junk"), 0644); err != nil {
		t.Fatal(err)
	}

	image, mime, err := jb.TrackArt(context.Background(), "song.mp3")
	if err != nil {
		t.Fatal(err)
	}
	defer image.Close()
	if mime != "image/png" {
		t.Fatalf("Unexpected MIME type: %q", mime)
	}
}

func TestCloseConcurrent(t *testing.T) {
	jb, _, _ := testJukebox(t, nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := jb.Close(); err != nil {
				t.Errorf("Close: %v", err)
			}
		}()
	}
	wg.Wait()
}

func TestTrackArtUnknownTrack(t *testing.T) {
	jb, _, _ := testJukebox(t, stubArt{mime: "image/png"})

	_, _, err := jb.TrackArt(context.Background(), "nope.mp3")
	if err == nil {
		t.Fatalf("Art for a nonexistent track did not error")
	}
}
