package api

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"

	"vilero/src/jukebox"
	"vilero/src/library"
	"vilero/src/player"
	"vilero/src/settings"
)

func testService(t *testing.T) (*httptest.Server, string) {
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
	jb := jukebox.NewJukebox(lib, ctrl, nil, settingsStore)
	t.Cleanup(func() { jb.Close() })

	r := chi.NewRouter()
	InitRouter(r, jb)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server, dir
}

func getJSON(t *testing.T, url string, into interface{}) {
	t.Helper()
	res, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("Unexpected status for %v: %v", url, res.Status)
	}
	if err := json.NewDecoder(res.Body).Decode(into); err != nil {
		t.Fatal(err)
	}
}

func postJSON(t *testing.T, url string, body interface{}) {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	res, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("Unexpected status for %v: %v", url, res.Status)
	}
}

func TestSongList(t *testing.T) {
	server, dir := testService(t)
	if err := os.WriteFile(filepath.Join(dir, "The Band - Hit Single.mp3"), []byte("junk"), 0644); err != nil {
		t.Fatal(err)
	}

	var body struct {
		Songs []struct {
			Filename  string `json:"filename"`
			Title     string `json:"title"`
			Artist    string `json:"artist"`
			PublicURL string `json:"public_url"`
		} `json:"songs"`
	}
	getJSON(t, server.URL+"/songs", &body)

	if len(body.Songs) != 1 {
		t.Fatalf("Unexpected number of songs: %v", len(body.Songs))
	}
	song := body.Songs[0]
	if song.Title != "Hit Single" || song.Artist != "The Band" {
		t.Fatalf("Filename was not parsed into metadata: %+v", song)
	}
	if song.PublicURL == "" {
		t.Fatalf("Song has no stream URL")
	}
}

func TestSongMetadata(t *testing.T) {
	server, dir := testService(t)
	if err := os.WriteFile(filepath.Join(dir, "The Band - Hit Single.mp3"), []byte("junk"), 0644); err != nil {
		t.Fatal(err)
	}

	var body struct {
		Title  string `json:"title"`
		Artist string `json:"artist"`
	}
	getJSON(t, server.URL+"/metadata/The%20Band%20-%20Hit%20Single.mp3", &body)
	if body.Title != "Hit Single" || body.Artist != "The Band" {
		t.Fatalf("Unexpected metadata: %+v", body)
	}

	res, err := http.Get(server.URL + "/metadata/nope.mp3")
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("Unknown track did not 404: %v", res.Status)
	}
}

func TestSongStreamRange(t *testing.T) {
	server, dir := testService(t)
	if err := os.WriteFile(filepath.Join(dir, "song.mp3"), []byte("0123456789"), 0644); err != nil {
		t.Fatal(err)
	}

	req, err := http.NewRequest(http.MethodGet, server.URL+"/stream/song.mp3", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Range", "bytes=2-5")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusPartialContent {
		t.Fatalf("Range request was not honored: %v", res.Status)
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != "2345" {
		t.Fatalf("Unexpected range body: %q", body)
	}
}

func TestSongArtPlaceholder(t *testing.T) {
	server, dir := testService(t)
	if err := os.WriteFile(filepath.Join(dir, "song.mp3"), []byte("junk"), 0644); err != nil {
		t.Fatal(err)
	}

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	res, err := client.Get(server.URL + "/art/song.mp3")
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusFound {
		t.Fatalf("Artless track did not redirect to the placeholder: %v", res.Status)
	}
	if loc := res.Header.Get("Location"); loc != placeholderArtPath {
		t.Fatalf("Unexpected redirect target: %q", loc)
	}
}

func multipartUpload(t *testing.T, url string, field string, files map[string][]byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, data := range files {
		part, err := mw.CreateFormFile(field, name)
		if err != nil {
			t.Fatal(err)
		}
		part.Write(data)
	}
	mw.Close()

	res, err := http.Post(url, mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	return res
}

func TestUploadStoresFiles(t *testing.T) {
	server, dir := testService(t)

	res := multipartUpload(t, server.URL+"/upload", "files", map[string][]byte{
		"new.mp3": []byte("audio bytes"),
	})
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("Unexpected status: %v", res.Status)
	}

	var body struct {
		Results []struct {
			Filename string `json:"filename"`
			Status   string `json:"status"`
		} `json:"results"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Results) != 1 || body.Results[0].Status != "ok" {
		t.Fatalf("Unexpected results: %+v", body.Results)
	}
	if _, err := os.Stat(filepath.Join(dir, "new.mp3")); err != nil {
		t.Fatalf("Uploaded file was not stored: %v", err)
	}
}

func TestUploadRejectsBadType(t *testing.T) {
	server, dir := testService(t)

	res := multipartUpload(t, server.URL+"/upload", "file", map[string][]byte{
		"notes.txt": []byte("not audio"),
	})
	defer res.Body.Close()

	var body struct {
		Results []struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		} `json:"results"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Results) != 1 || body.Results[0].Status != "error" {
		t.Fatalf("Invalid file type was not rejected: %+v", body.Results)
	}
	if _, err := os.Stat(filepath.Join(dir, "notes.txt")); !os.IsNotExist(err) {
		t.Fatalf("Rejected file was stored anyway")
	}
}

func TestPlayerCurrentOutOfRange(t *testing.T) {
	server, _ := testService(t)

	postJSON(t, server.URL+"/player/current", map[string]interface{}{"current": 42})

	var status struct {
		Index int `json:"index"`
	}
	getJSON(t, server.URL+"/player/status", &status)
	if status.Index != -1 {
		t.Fatalf("Out of range index was applied: %v", status.Index)
	}
}

func TestPlayerModeCycle(t *testing.T) {
	server, _ := testService(t)

	var mode struct {
		Mode  string `json:"mode"`
		Label string `json:"label"`
	}
	getJSON(t, server.URL+"/player/mode", &mode)
	if mode.Mode != "repeat-all" {
		t.Fatalf("Unexpected initial mode: %v", mode.Mode)
	}

	for _, want := range []string{"shuffle", "repeat-one", "repeat-all"} {
		b, _ := json.Marshal(map[string]interface{}{})
		res, err := http.Post(server.URL+"/player/mode", "application/json", bytes.NewReader(b))
		if err != nil {
			t.Fatal(err)
		}
		if err := json.NewDecoder(res.Body).Decode(&mode); err != nil {
			t.Fatal(err)
		}
		res.Body.Close()
		if mode.Mode != want {
			t.Fatalf("Unexpected mode after toggle: %v != %v", mode.Mode, want)
		}
		if mode.Label == "" {
			t.Fatalf("Mode has no label")
		}
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	server, _ := testService(t)

	postJSON(t, server.URL+"/settings", map[string]interface{}{
		"volume": 0.5,
		"mode":   "dark",
	})
	var body struct {
		Volume float64 `json:"volume"`
		Mode   string  `json:"mode"`
	}
	getJSON(t, server.URL+"/settings", &body)
	if body.Volume != 0.5 || body.Mode != "dark" {
		t.Fatalf("Settings did not round trip: %+v", body)
	}
}

func TestSettingsValidation(t *testing.T) {
	server, _ := testService(t)

	b, _ := json.Marshal(map[string]interface{}{"volume": 2.0, "mode": "light"})
	res, err := http.Post(server.URL+"/settings", "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("Invalid settings were accepted: %v", res.Status)
	}
}
