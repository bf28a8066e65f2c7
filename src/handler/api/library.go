package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"vilero/src/library"
	"vilero/src/settings"
	"vilero/src/upload"
)

var httpCacheSince = time.Now()

func (api *API) songList(w http.ResponseWriter, r *http.Request) {
	tracks, err := api.jukebox.Tracks(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	songs := make([]interface{}, len(tracks))
	for i, track := range tracks {
		songs[i] = jsonTrack(track)
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"songs": songs,
	})
}

func jsonTrack(track library.Track) interface{} {
	return map[string]interface{}{
		"filename":   track.Filename,
		"title":      track.DisplayTitle(),
		"artist":     track.Artist,
		"public_url": track.URL,
	}
}

func (api *API) songMetadata(w http.ResponseWriter, r *http.Request) {
	filename, err := urlFilename(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	track, err := api.jukebox.TrackInfo(r.Context(), filename)
	if errors.Is(err, library.ErrTrackNotFound) {
		http.NotFound(w, r)
		return
	} else if err != nil {
		WriteError(w, r, err)
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"title":  track.DisplayTitle(),
		"artist": track.Artist,
	})
}

// placeholderArtPath is where the web UI serves its generic album art. Art
// lookups that come up empty redirect there so the client always gets an
// image.
const placeholderArtPath = "/static/default-album-art.svg"

func (api *API) songArt(w http.ResponseWriter, r *http.Request) {
	filename, err := urlFilename(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	image, mime, err := api.jukebox.TrackArt(r.Context(), filename)
	if errors.Is(err, library.ErrNoArt) {
		http.Redirect(w, r, placeholderArtPath, http.StatusFound)
		return
	} else if errors.Is(err, library.ErrTrackNotFound) {
		http.NotFound(w, r)
		return
	} else if err != nil {
		// Remote lookups can fail transiently, the placeholder is a better
		// response than an error page.
		log.WithField("track", filename).Warnf("Artwork lookup failed: %v", err)
		http.Redirect(w, r, placeholderArtPath, http.StatusFound)
		return
	}
	defer image.Close()

	w.Header().Set("Content-Type", mime)
	// Copy to a buffer so seeking is supported.
	var buf bytes.Buffer
	io.Copy(&buf, image)
	http.ServeContent(w, r, filename, httpCacheSince, bytes.NewReader(buf.Bytes()))
}

func (api *API) songStream(w http.ResponseWriter, r *http.Request) {
	filename, err := urlFilename(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	fd, err := api.jukebox.OpenTrack(filename)
	if errors.Is(err, library.ErrTrackNotFound) {
		http.NotFound(w, r)
		return
	} else if err != nil {
		WriteError(w, r, err)
		return
	}
	defer fd.Close()
	// ServeContent handles Range requests so clients can seek.
	http.ServeContent(w, r, filename, httpCacheSince, fd)
}

func (api *API) songUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		WriteError(w, r, err)
		return
	}
	// Both field names are accepted, single file pickers use "file" while
	// multi file pickers use "files".
	files := append(r.MultipartForm.File["file"], r.MultipartForm.File["files"]...)
	if len(files) == 0 {
		WriteError(w, r, fmt.Errorf("no files in request"))
		return
	}
	if len(files) > upload.MaxBatchSize {
		WriteError(w, r, upload.ErrBatchTooLarge)
		return
	}

	results := make([]map[string]interface{}, 0, len(files))
	for _, header := range files {
		result := map[string]interface{}{
			"filename": header.Filename,
			"status":   "ok",
		}
		if err := api.storeUpload(header); err != nil {
			log.WithField("file", header.Filename).Errorf("Upload rejected: %v", err)
			result["status"] = "error"
			result["error"] = err.Error()
		}
		results = append(results, result)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"results": results,
	})
}

func (api *API) storeUpload(header *multipart.FileHeader) error {
	fd, err := header.Open()
	if err != nil {
		return err
	}
	defer fd.Close()
	return api.jukebox.AddTrack(header.Filename, fd)
}

func (api *API) settingsGet(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(api.jukebox.Settings().Get())
}

func (api *API) settingsSet(w http.ResponseWriter, r *http.Request) {
	var data settings.Settings
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		WriteError(w, r, err)
		return
	}
	if err := api.jukebox.Settings().Set(data); err != nil {
		WriteError(w, r, err)
		return
	}
	w.Write([]byte("{}"))
}

func urlFilename(r *http.Request) (string, error) {
	filename := chi.URLParam(r, "filename")
	if filename == "" {
		return "", fmt.Errorf("no filename in request")
	}
	return filename, nil
}
