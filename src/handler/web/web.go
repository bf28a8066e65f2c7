package web

import (
	"bytes"
	"html/template"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/tdewolff/minify/v2"
	mincss "github.com/tdewolff/minify/v2/css"
	minjs "github.com/tdewolff/minify/v2/js"
	minsvg "github.com/tdewolff/minify/v2/svg"

	"vilero/src/handler/api"
	"vilero/src/handler/webui"
	"vilero/src/jukebox"
	"vilero/src/util"
)

type webUI struct {
	build, version string
	urlRoot        string
	jukebox        *jukebox.Jukebox
	assets         *assetCache
}

// New builds the router serving the frontend, the REST API and the metrics
// endpoint.
func New(build, version, urlRoot string, jukebox *jukebox.Jukebox) chi.Router {
	web := webUI{
		build:   build,
		version: version,
		urlRoot: urlRoot,
		jukebox: jukebox,
		assets:  newAssetCache(webui.Files(build), build != "debug"),
	}

	service := chi.NewRouter()
	service.Use(util.LogHandler)
	service.Use(middleware.Compress(5))

	service.Get("/static/*", web.serveAsset)
	service.Get("/", web.playerPage)
	service.Get("/login", web.loginPage)
	service.Get("/logout", web.logout)
	service.Handle("/metrics", promhttp.Handler())
	api.InitRouter(service, web.jukebox)

	return service
}

func (web *webUI) baseParamMap() map[string]interface{} {
	return map[string]interface{}{
		"urlroot": web.urlRoot,
		"version": web.version,
		"assets":  web.assets.byType(),
		"time":    time.Now(),
	}
}

func (web *webUI) template(name string) *template.Template {
	body, err := fs.ReadFile(webui.Files(web.build), "view/"+name)
	if err != nil {
		panic(err)
	}
	return template.Must(template.New(name).Parse(string(body)))
}

func (web *webUI) playerPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if err := web.template("page.html").Execute(w, web.baseParamMap()); err != nil {
		log.Errorf("Could not render player page: %v", err)
	}
}

func (web *webUI) loginPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if err := web.template("login.html").Execute(w, web.baseParamMap()); err != nil {
		log.Errorf("Could not render login page: %v", err)
	}
}

func (web *webUI) logout(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (web *webUI) serveAsset(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "*")
	body, err := web.assets.get(name)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", mime.TypeByExtension(path.Ext(name)))
	http.ServeContent(w, r, name, web.assets.since, bytes.NewReader(body))
}

// assetCache serves the embedded static files, minified once on first use.
type assetCache struct {
	files  fs.FS
	minify bool
	since  time.Time

	mu    sync.Mutex
	cache map[string][]byte
	min   *minify.M
}

func newAssetCache(files fs.FS, minifyAssets bool) *assetCache {
	min := minify.New()
	min.AddFunc("text/css", mincss.Minify)
	min.AddFunc("application/javascript", minjs.Minify)
	min.AddFunc("text/javascript", minjs.Minify)
	min.AddFunc("image/svg+xml", minsvg.Minify)
	return &assetCache{
		files:  files,
		minify: minifyAssets,
		since:  time.Now(),
		cache:  map[string][]byte{},
		min:    min,
	}
}

func (ac *assetCache) get(name string) ([]byte, error) {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	if body, ok := ac.cache[name]; ok {
		return body, nil
	}

	body, err := fs.ReadFile(ac.files, "static/"+name)
	if err != nil {
		return nil, err
	}
	if ac.minify {
		mediatype := mime.TypeByExtension(path.Ext(name))
		if minified, err := ac.min.Bytes(mediatype, body); err == nil {
			body = minified
		}
	}
	ac.cache[name] = body
	return body, nil
}

// byType lists the asset URLs grouped by extension for use in templates.
func (ac *assetCache) byType() map[string][]string {
	assets := map[string][]string{
		"js":  {},
		"css": {},
	}
	fs.WalkDir(ac.files, "static", func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		urlPath := "/" + p
		switch path.Ext(p) {
		case ".css":
			assets["css"] = append(assets["css"], urlPath)
		case ".js":
			assets["js"] = append(assets["js"], urlPath)
		}
		return nil
	})
	for _, a := range assets {
		sort.Strings(a)
	}
	return assets
}
