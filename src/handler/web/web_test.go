package web

import (
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"vilero/src/jukebox"
	"vilero/src/library"
	"vilero/src/player"
	"vilero/src/settings"
)

func testService(t *testing.T) *httptest.Server {
	t.Helper()
	lib, err := library.NewFS(t.TempDir())
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

	server := httptest.NewServer(New("release", "test", "", jb))
	t.Cleanup(server.Close)
	return server
}

func TestPlayerPage(t *testing.T) {
	server := testService(t)

	res, err := http.Get(server.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("Unexpected status: %v", res.Status)
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), "<html") {
		t.Fatalf("Player page does not look like HTML")
	}
	if !strings.Contains(string(body), "app.js") {
		t.Fatalf("Player page does not reference the frontend script")
	}
}

func TestStaticAssetsMinified(t *testing.T) {
	server := testService(t)

	res, err := http.Get(server.URL + "/static/style.css")
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("Unexpected status: %v", res.Status)
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatal(err)
	}
	// Minification strips the indentation.
	if strings.Contains(string(body), "\t") {
		t.Fatalf("Stylesheet was served unminified")
	}
}

func TestLogoutRedirectsToLogin(t *testing.T) {
	server := testService(t)

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	res, err := client.Get(server.URL + "/logout")
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusFound {
		t.Fatalf("Unexpected status: %v", res.Status)
	}
	if loc := res.Header.Get("Location"); loc != "/login" {
		t.Fatalf("Unexpected redirect target: %q", loc)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	server := testService(t)

	res, err := http.Get(server.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("Unexpected status: %v", res.Status)
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Fatalf("Metrics endpoint does not expose metrics")
	}
}
