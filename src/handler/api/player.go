package api

import (
	"encoding/json"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"vilero/src/jukebox"
	"vilero/src/player"
	"vilero/src/util/eventsource"
)

func jsonStatus(status *player.Status) map[string]interface{} {
	body := map[string]interface{}{
		"index":    status.Index,
		"state":    status.State,
		"mode":     status.Mode,
		"time":     int(status.Time / time.Second),
		"duration": int(status.Duration / time.Second),
		"volume":   status.Volume,
	}
	if status.Track != nil {
		body["track"] = status.Track
	}
	return body
}

func (api *API) playerStatus(w http.ResponseWriter, r *http.Request) {
	status, err := api.jukebox.Status(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	json.NewEncoder(w).Encode(jsonStatus(status))
}

func (api *API) playerSetCurrent(w http.ResponseWriter, r *http.Request) {
	var data struct {
		Current int `json:"current"`
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		WriteError(w, r, err)
		return
	}

	if err := api.jukebox.PlayAt(r.Context(), data.Current); err != nil {
		WriteError(w, r, err)
		return
	}
	w.Write([]byte("{}"))
}

func (api *API) playerNext(w http.ResponseWriter, r *http.Request) {
	if err := api.jukebox.Next(r.Context()); err != nil {
		WriteError(w, r, err)
		return
	}
	w.Write([]byte("{}"))
}

func (api *API) playerPrevious(w http.ResponseWriter, r *http.Request) {
	if err := api.jukebox.Previous(r.Context()); err != nil {
		WriteError(w, r, err)
		return
	}
	w.Write([]byte("{}"))
}

func (api *API) playerTogglePlaystate(w http.ResponseWriter, r *http.Request) {
	if err := api.jukebox.TogglePlayPause(r.Context()); err != nil {
		WriteError(w, r, err)
		return
	}
	w.Write([]byte("{}"))
}

func (api *API) playerGetTime(w http.ResponseWriter, r *http.Request) {
	status, err := api.jukebox.Status(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"time":     int(status.Time / time.Second),
		"duration": int(status.Duration / time.Second),
	})
}

// playerSetTime seeks within the current track. A relative time is added to
// the current position, an absolute time is interpreted as a fraction of the
// track duration.
func (api *API) playerSetTime(w http.ResponseWriter, r *http.Request) {
	var data struct {
		Time     float64 `json:"time"`
		Relative bool    `json:"relative"`
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		WriteError(w, r, err)
		return
	}

	var err error
	if data.Relative {
		err = api.jukebox.SeekBy(r.Context(), time.Duration(data.Time*float64(time.Second)))
	} else {
		err = api.jukebox.SeekTo(r.Context(), data.Time)
	}
	if err != nil {
		WriteError(w, r, err)
		return
	}
	w.Write([]byte("{}"))
}

func (api *API) playerGetVolume(w http.ResponseWriter, r *http.Request) {
	status, err := api.jukebox.Status(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"volume": status.Volume,
	})
}

func (api *API) playerSetVolume(w http.ResponseWriter, r *http.Request) {
	var data struct {
		Volume   float64 `json:"volume"`
		Relative bool    `json:"relative"`
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		WriteError(w, r, err)
		return
	}

	var err error
	if data.Relative {
		err = api.jukebox.VolumeBy(r.Context(), data.Volume)
	} else {
		err = api.jukebox.SetVolume(r.Context(), data.Volume)
	}
	if err != nil {
		WriteError(w, r, err)
		return
	}
	w.Write([]byte("{}"))
}

func (api *API) playerGetMode(w http.ResponseWriter, r *http.Request) {
	mode := api.jukebox.Mode()
	json.NewEncoder(w).Encode(map[string]interface{}{
		"mode":  mode,
		"label": mode.Label(),
	})
}

func (api *API) playerSetMode(w http.ResponseWriter, r *http.Request) {
	var data struct {
		Mode string `json:"mode"`
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		WriteError(w, r, err)
		return
	}

	if data.Mode == "" {
		// No explicit mode cycles to the next one.
		mode := api.jukebox.TogglePlayMode(r.Context())
		json.NewEncoder(w).Encode(map[string]interface{}{
			"mode":  mode,
			"label": mode.Label(),
		})
		return
	}
	mode := player.NamedPlayMode(data.Mode)
	if err := api.jukebox.SetMode(mode); err != nil {
		WriteError(w, r, err)
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"mode":  mode,
		"label": mode.Label(),
	})
}

func (api *API) playerEvents(w http.ResponseWriter, r *http.Request) {
	es, err := eventsource.Begin(w, r)
	if err != nil {
		log.Errorf("%v", err)
		return
	}
	listener := api.jukebox.Events().Listen()
	defer api.jukebox.Events().Unlisten(listener)

	status, err := api.jukebox.Status(r.Context())
	if err != nil {
		log.Errorf("%v", err)
		return
	}
	es.EventJSON("status", jsonStatus(status))

	for {
		var event interface{}
		select {
		case event = <-listener:
		case <-r.Context().Done():
			return
		}

		switch t := event.(type) {
		case player.PlaylistEvent:
			es.EventJSON("playlist", map[string]interface{}{"index": t.Index})
		case player.NowPlayingEvent:
			es.EventJSON("nowplaying", map[string]interface{}{
				"index":    t.Index,
				"filename": t.Filename,
				"title":    t.Title,
				"artist":   t.Artist,
				"art":      t.ArtURL,
			})
		case player.PlayStateEvent:
			es.EventJSON("state", map[string]interface{}{"state": t.State})
		case player.ModeEvent:
			es.EventJSON("mode", map[string]interface{}{"mode": t.Mode, "label": t.Label})
		case player.TimeEvent:
			es.EventJSON("time", map[string]interface{}{"time": t.Time.Seconds()})
		case player.DurationEvent:
			es.EventJSON("duration", map[string]interface{}{"duration": t.Duration.Seconds()})
		case player.VolumeEvent:
			es.EventJSON("volume", map[string]interface{}{"volume": t.Volume})
		case jukebox.LibraryUpdateEvent:
			es.EventJSON("library", map[string]interface{}{"tracks": t.NumTracks})
		default:
			log.Debugf("Unmapped event %#v", event)
		}
	}
}
