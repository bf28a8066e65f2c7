package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"path"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"vilero/src/handler/web"
	"vilero/src/jukebox"
	"vilero/src/library"
	"vilero/src/player"
	"vilero/src/player/mpd"
	"vilero/src/settings"
	"vilero/src/upload"
)

const confFile = "config.yaml"

var (
	build       = "%BUILD%"
	version     = "%VERSION%"
	versionDate = "%VERSION_DATE%"
)

type config struct {
	Address string `yaml:"bind"`
	URLRoot string `yaml:"url_root"`

	StorageDir string `yaml:"storage_dir"`
	LibraryDir string `yaml:"library_dir"`

	RemoteArtwork         bool `yaml:"remote_artwork"`
	ReshuffleOnExhaustion bool `yaml:"reshuffle_on_exhaustion"`

	Playback struct {
		// Backend selects what actually plays the audio. The "null" backend
		// tracks playback against the wall clock, "mpd" drives a Music Player
		// Daemon instance.
		Backend string `yaml:"backend"`
		MPD     *struct {
			Host     string `yaml:"host"`
			Port     int    `yaml:"port"`
			Password string `yaml:"password"`
		} `yaml:"mpd"`
	} `yaml:"playback"`
}

func (conf *config) Validate() (errs []error) {
	if conf.Address == "" {
		errs = append(errs, fmt.Errorf("config: `bind` is required"))
	}
	if conf.LibraryDir == "" {
		errs = append(errs, fmt.Errorf("config: `library_dir` is required"))
	}
	switch conf.Playback.Backend {
	case "", "null":
	case "mpd":
		if conf.Playback.MPD == nil {
			errs = append(errs, fmt.Errorf("config: `playback.mpd` is required for the mpd backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown playback backend %q", conf.Playback.Backend))
	}
	return
}

func LoadConfig(filename string) (*config, error) {
	fd, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer fd.Close()

	d := yaml.NewDecoder(fd)
	d.KnownFields(true)
	conf := config{RemoteArtwork: true}
	if err := d.Decode(&conf); err != nil {
		return nil, err
	}
	return &conf, nil
}

func main() {
	// A .env file may override the environment during development.
	_ = godotenv.Load()

	defaultLogLevel := "warn"
	if build == "debug" {
		defaultLogLevel = "debug"
	}

	configFile := flag.String("conf", confFile, "Path to the configuration file")
	printVersion := flag.Bool("version", false, "Print version information and exit")
	logLevel := flag.String("log", defaultLogLevel, "Sets the log level. [debug, info, warn, error]")
	flag.Parse()

	if ll, err := log.ParseLevel(*logLevel); err != nil {
		log.Fatalf("Could not parse log level: %v", err)
	} else {
		log.SetLevel(ll)
	}
	log.SetReportCaller(true)

	if *printVersion {
		fmt.Printf("Version: %v (%v)\n", version, versionDate)
		fmt.Printf("Build: %v\n", build)
		return
	}

	if flag.Arg(0) == "upload" {
		if err := runUpload(flag.Args()[1:]); err != nil {
			log.Fatal(err)
		}
		return
	}

	log.Infof("Version: %v (%v)", version, build)
	config, err := LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Could not load config: %v", err)
	}
	if errs := config.Validate(); len(errs) > 0 {
		log.Fatalf("Could not load config: %v", errs)
	}

	storeDir := strings.Replace(config.StorageDir, "~", os.Getenv("HOME"), 1)
	if err := os.MkdirAll(storeDir, 0o755); err != nil {
		log.Fatalf("Unable to create storage dir: %v", err)
	}
	log.Infof("Using %q for storage", storeDir)

	settingsStore, err := settings.NewStore(path.Join(storeDir, "settings.json"))
	if err != nil {
		log.Fatalf("Unable to create settings store: %v", err)
	}

	libraryDir := strings.Replace(config.LibraryDir, "~", os.Getenv("HOME"), 1)
	lib, err := library.NewFS(libraryDir)
	if err != nil {
		log.Fatalf("Unable to open library: %v", err)
	}
	log.Infof("Serving tracks from %q", libraryDir)

	media, err := connectMedia(config)
	if err != nil {
		log.Fatal(err)
	}

	ctrl := player.New(media, lib, player.Options{
		ReshuffleOnExhaustion: config.ReshuffleOnExhaustion,
		PersistVolume: func(vol float64) {
			if err := settingsStore.SetVolume(vol); err != nil {
				log.Warnf("Unable to persist volume: %v", err)
			}
		},
	})
	if err := ctrl.SetVolume(context.Background(), settingsStore.Get().Volume); err != nil {
		log.Warnf("Unable to restore volume: %v", err)
	}

	var fallbackArt library.ArtSource
	if config.RemoteArtwork {
		fallbackArt = library.NewRemoteArt()
	}
	jukebox := jukebox.NewJukebox(lib, ctrl, fallbackArt, settingsStore)

	service := web.New(build, version, config.URLRoot, jukebox)
	if build == "debug" {
		service.Get("/debug/pprof/*", pprof.Index)
	}

	log.Infof("Now accepting HTTP connections on %v", config.Address)
	server := &http.Server{
		Addr:    config.Address,
		Handler: service,
		// No write timeout, event streams and audio streaming responses stay
		// open for as long as the client wants.
		ReadTimeout:    10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	log.Fatalf("Error running webserver: %v", server.ListenAndServe())
}

func connectMedia(config *config) (player.MediaElement, error) {
	switch config.Playback.Backend {
	case "", "null":
		return player.NewSoftMedia(nil), nil
	case "mpd":
		mpdConf := config.Playback.MPD
		media, err := mpd.NewMedia(mpdConf.Host, mpdConf.Port, mpdConf.Password)
		if err != nil {
			return nil, fmt.Errorf("unable to connect to MPD: %v", err)
		}
		return media, nil
	}
	return nil, fmt.Errorf("unknown playback backend %q", config.Playback.Backend)
}

// runUpload implements the "upload" verb, sending files to a running server
// from the command line.
func runUpload(args []string) error {
	flags := flag.NewFlagSet("upload", flag.ExitOnError)
	server := flags.String("server", "http://localhost:8080", "Base URL of the server to upload to")
	if err := flags.Parse(args); err != nil {
		return err
	}
	files := flags.Args()
	if len(files) == 0 {
		return fmt.Errorf("no files to upload")
	}

	client := upload.NewClient(strings.TrimSuffix(*server, "/") + "/upload")
	events := client.Events().Listen()
	defer client.Events().Unlisten(events)
	go func() {
		for event := range events {
			task, ok := event.(upload.TaskEvent)
			if !ok {
				continue
			}
			switch task.Task.State {
			case upload.TaskUploading:
				fmt.Printf("%s: %3.0f%%\r", task.Task.Filename, task.Task.Progress*100)
			case upload.TaskSucceeded:
				fmt.Printf("%s: ok    \n", task.Task.Filename)
			case upload.TaskFailed:
				fmt.Printf("%s: %v\n", task.Task.Filename, task.Task.Err)
			}
		}
	}()

	tasks, err := client.UploadBatch(context.Background(), files)
	if err != nil {
		return err
	}
	failed := 0
	for _, task := range tasks {
		if task.State == upload.TaskFailed {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d uploads failed", failed, len(tasks))
	}
	return nil
}
