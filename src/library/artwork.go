package library

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const defaultSearchURL = "https://itunes.apple.com/search"

// An ArtSource locates artwork for a track by its filename.
type ArtSource interface {
	TrackArt(ctx context.Context, filename string) (io.ReadCloser, string, error)
}

// RemoteArt looks up album artwork through the iTunes search API using the
// filename stem as the search term. Lookups are rate limited so a fast
// click-through of the playlist does not hammer the remote service.
type RemoteArt struct {
	client    *http.Client
	limiter   *rate.Limiter
	searchURL string
}

func NewRemoteArt() *RemoteArt {
	return &RemoteArt{
		client:    &http.Client{Timeout: 10 * time.Second},
		limiter:   rate.NewLimiter(rate.Every(time.Second), 3),
		searchURL: defaultSearchURL,
	}
}

// TrackArt implements the ArtSource interface.
func (ra *RemoteArt) TrackArt(ctx context.Context, filename string) (io.ReadCloser, string, error) {
	if err := ra.limiter.Wait(ctx); err != nil {
		return nil, "", err
	}

	term := TitleFromFilename(filename)
	query := url.Values{
		"term":  {term},
		"media": {"music"},
		"limit": {"1"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ra.searchURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, "", err
	}
	res, err := ra.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("artwork search: unexpected status %d", res.StatusCode)
	}

	var body struct {
		Results []struct {
			ArtworkURL string `json:"artworkUrl100"`
		} `json:"results"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, "", err
	}
	if len(body.Results) == 0 || body.Results[0].ArtworkURL == "" {
		return nil, "", ErrNoArt
	}

	imgReq, err := http.NewRequestWithContext(ctx, http.MethodGet, body.Results[0].ArtworkURL, nil)
	if err != nil {
		return nil, "", err
	}
	imgRes, err := ra.client.Do(imgReq)
	if err != nil {
		return nil, "", err
	}
	if imgRes.StatusCode != http.StatusOK {
		imgRes.Body.Close()
		return nil, "", fmt.Errorf("artwork fetch: unexpected status %d", imgRes.StatusCode)
	}

	mime := imgRes.Header.Get("Content-Type")
	if mime == "" {
		mime = "image/jpeg"
	}
	log.WithField("term", term).Debugf("Resolved remote artwork")
	return imgRes.Body, mime, nil
}
