package library

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dhowden/tag"
	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"

	"vilero/src/util"
)

var audioExtensions = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".flac": true,
	".ogg":  true,
	".m4a":  true,
}

// watchDebounce coalesces bursts of filesystem events into one UpdateEvent.
const watchDebounce = 500 * time.Millisecond

// FS is a Library backed by a directory of audio files.
//
// Track metadata is read from embedded tags and degrades to filename-derived
// fields when tags are absent. The directory is watched for changes, an
// UpdateEvent is emitted after its contents change.
type FS struct {
	util.Emitter

	dir     string
	watcher *fsnotify.Watcher

	cacheLock sync.Mutex
	cache     map[string]cachedTrack
}

type cachedTrack struct {
	modTime time.Time
	track   Track
}

// NewFS creates a library rooted at the specified directory, creating it if
// needed, and starts watching it for changes.
func NewFS(dir string) (*FS, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create library directory: %v", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	fs := &FS{
		dir:     dir,
		watcher: watcher,
		cache:   map[string]cachedTrack{},
	}
	go fs.watchLoop()
	return fs, nil
}

// Close stops the directory watcher.
func (fs *FS) Close() error {
	return fs.watcher.Close()
}

func (fs *FS) watchLoop() {
	var debounce *time.Timer
	for {
		select {
		case event, ok := <-fs.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			log.WithField("file", event.Name).Debugf("Library changed")
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(watchDebounce, func() {
				fs.Emit(UpdateEvent{})
			})
		case err, ok := <-fs.watcher.Errors:
			if !ok {
				return
			}
			log.Errorf("Library watcher: %v", err)
		}
	}
}

// Tracks implements the library.Library interface. Tracks are ordered by
// modification time, newest first, matching the listing order of the song
// endpoint.
func (fs *FS) Tracks(ctx context.Context) ([]Track, error) {
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		return nil, err
	}

	tracks := make([]Track, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !audioExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		tracks = append(tracks, fs.track(entry.Name(), info.ModTime()))
	}
	sort.Slice(tracks, func(i, j int) bool {
		if !tracks[i].ModTime.Equal(tracks[j].ModTime) {
			return tracks[i].ModTime.After(tracks[j].ModTime)
		}
		return tracks[i].Filename < tracks[j].Filename
	})
	return tracks, nil
}

// TrackInfo implements the library.Library interface.
func (fs *FS) TrackInfo(ctx context.Context, filename string) (Track, error) {
	path, err := fs.path(filename)
	if err != nil {
		return Track{}, err
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return Track{}, ErrTrackNotFound
	} else if err != nil {
		return Track{}, err
	}
	return fs.track(filename, info.ModTime()), nil
}

// TrackArt implements the library.Library interface, serving artwork embedded
// in the file's tags.
func (fs *FS) TrackArt(ctx context.Context, filename string) (io.ReadCloser, string, error) {
	path, err := fs.path(filename)
	if err != nil {
		return nil, "", err
	}
	fd, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, "", ErrTrackNotFound
	} else if err != nil {
		return nil, "", err
	}
	defer fd.Close()

	meta, err := tag.ReadFrom(fd)
	if err != nil {
		return nil, "", ErrNoArt
	}
	pic := meta.Picture()
	if pic == nil || len(pic.Data) == 0 {
		return nil, "", ErrNoArt
	}
	mime := pic.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}
	return io.NopCloser(bytes.NewReader(pic.Data)), mime, nil
}

// Add stores an uploaded file in the library under the specified filename.
func (fs *FS) Add(filename string, r io.Reader) error {
	if !audioExtensions[strings.ToLower(filepath.Ext(filename))] {
		return fmt.Errorf("invalid file type: %q", filename)
	}
	path, err := fs.path(filename)
	if err != nil {
		return err
	}
	fd, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(fd, r); err != nil {
		fd.Close()
		os.Remove(path)
		return err
	}
	return fd.Close()
}

// Open opens a track file for streaming. The returned file supports seeking
// so handlers can serve byte ranges.
func (fs *FS) Open(filename string) (*os.File, error) {
	path, err := fs.path(filename)
	if err != nil {
		return nil, err
	}
	fd, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, ErrTrackNotFound
	}
	return fd, err
}

func (fs *FS) path(filename string) (string, error) {
	if filename == "" || filename != filepath.Base(filename) {
		return "", fmt.Errorf("invalid filename: %q", filename)
	}
	return filepath.Join(fs.dir, filename), nil
}

func (fs *FS) track(filename string, modTime time.Time) Track {
	fs.cacheLock.Lock()
	if cached, ok := fs.cache[filename]; ok && cached.modTime.Equal(modTime) {
		fs.cacheLock.Unlock()
		return cached.track
	}
	fs.cacheLock.Unlock()

	track := Track{
		Filename: filename,
		URL:      "/stream/" + url.PathEscape(filename),
		ModTime:  modTime,
	}
	if fd, err := os.Open(filepath.Join(fs.dir, filename)); err == nil {
		if meta, err := tag.ReadFrom(fd); err == nil {
			track.Title = meta.Title()
			track.Artist = meta.Artist()
		}
		fd.Close()
	}
	InterpolateMissingFields(&track)

	fs.cacheLock.Lock()
	fs.cache[filename] = cachedTrack{modTime: modTime, track: track}
	fs.cacheLock.Unlock()
	return track
}
