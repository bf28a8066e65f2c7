package library

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func tempLibrary(t *testing.T, filenames ...string) *FS {
	t.Helper()
	dir := t.TempDir()
	for i, name := range filenames {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("not really audio"), 0o644); err != nil {
			t.Fatal(err)
		}
		// Spread out modification times so the listing order is stable.
		mtime := time.Now().Add(-time.Duration(len(filenames)-i) * time.Minute)
		if err := os.Chtimes(path, mtime, mtime); err != nil {
			t.Fatal(err)
		}
	}
	fs, err := NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { fs.Close() })
	return fs
}

func TestFSTracksOrder(t *testing.T) {
	ctx := context.Background()
	fs := tempLibrary(t, "a.mp3", "b.mp3", "c.mp3", "ignored.txt")

	tracks, err := fs.Tracks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(tracks) != 3 {
		t.Fatalf("Unexpected number of tracks: %v", len(tracks))
	}
	// Newest first.
	if tracks[0].Filename != "c.mp3" || tracks[2].Filename != "a.mp3" {
		t.Fatalf("Unexpected order: %v %v %v", tracks[0].Filename, tracks[1].Filename, tracks[2].Filename)
	}
	for _, tr := range tracks {
		if !strings.HasPrefix(tr.URL, "/stream/") {
			t.Fatalf("Unexpected locator: %q", tr.URL)
		}
		if tr.Title == "" {
			t.Fatalf("Track %q has no title", tr.Filename)
		}
	}
}

func TestFSTrackInfo(t *testing.T) {
	ctx := context.Background()
	fs := tempLibrary(t, "Some Artist - Some Title.mp3")

	track, err := fs.TrackInfo(ctx, "Some Artist - Some Title.mp3")
	if err != nil {
		t.Fatal(err)
	}
	// No tags in the file, fields are derived from the filename.
	if track.Artist != "Some Artist" || track.Title != "Some Title" {
		t.Fatalf("Unexpected artist and title: %q - %q", track.Artist, track.Title)
	}

	if _, err := fs.TrackInfo(ctx, "nope.mp3"); !errors.Is(err, ErrTrackNotFound) {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, err := fs.TrackInfo(ctx, "../escape.mp3"); err == nil {
		t.Fatalf("Path traversal was not rejected")
	}
}

func TestFSTrackArtAbsent(t *testing.T) {
	ctx := context.Background()
	fs := tempLibrary(t, "a.mp3")

	if _, _, err := fs.TrackArt(ctx, "a.mp3"); !errors.Is(err, ErrNoArt) {
		t.Fatalf("Unexpected error: %v", err)
	}
}

func TestFSAdd(t *testing.T) {
	ctx := context.Background()
	fs := tempLibrary(t)

	if err := fs.Add("new.mp3", strings.NewReader("data")); err != nil {
		t.Fatal(err)
	}
	tracks, err := fs.Tracks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(tracks) != 1 || tracks[0].Filename != "new.mp3" {
		t.Fatalf("Unexpected tracks: %v", tracks)
	}

	if err := fs.Add("evil.exe", strings.NewReader("data")); err == nil {
		t.Fatalf("Invalid file type was not rejected")
	}
	if err := fs.Add("../escape.mp3", strings.NewReader("data")); err == nil {
		t.Fatalf("Path traversal was not rejected")
	}
}
