package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"vilero/src/jukebox"
)

// InitRouter attaches all API routes to the specified router.
func InitRouter(r chi.Router, jukebox *jukebox.Jukebox) {
	api := API{jukebox: jukebox}
	r.Route("/player", func(r chi.Router) {
		r.Use(jsonCtx)
		r.Get("/status", api.playerStatus)
		r.Post("/current", api.playerSetCurrent)
		r.Post("/next", api.playerNext)
		r.Post("/previous", api.playerPrevious)
		r.Post("/playstate", api.playerTogglePlaystate)
		r.Get("/time", api.playerGetTime)
		r.Post("/time", api.playerSetTime)
		r.Get("/volume", api.playerGetVolume)
		r.Post("/volume", api.playerSetVolume)
		r.Get("/mode", api.playerGetMode)
		r.Post("/mode", api.playerSetMode)
		r.Get("/events", api.playerEvents)
	})

	r.With(jsonCtx).Get("/songs", api.songList)
	r.With(jsonCtx).Get("/metadata/{filename}", api.songMetadata)
	r.Get("/art/{filename}", api.songArt)
	r.Get("/stream/{filename}", api.songStream)
	r.Post("/upload", api.songUpload)

	r.With(jsonCtx).Get("/settings", api.settingsGet)
	r.With(jsonCtx).Post("/settings", api.settingsSet)
}

// API contains the state that is accessible over the REST API.
type API struct {
	jukebox *jukebox.Jukebox
}

// WriteError writes an error to the client.
//
// An attempt is made to tune the response format to the requestor.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	log.Errorf("Error serving %s: %v", r.RemoteAddr, err)
	w.WriteHeader(http.StatusBadRequest)

	if r.Header.Get("X-Requested-With") == "" {
		w.Write([]byte(err.Error()))
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": err.Error(),
	})
}

func jsonCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
