// Package mpd adapts a Music Player Daemon instance to the single slot media
// element the playback controller drives. MPD keeps its own queue, this
// adapter pins it to exactly one song so all sequencing stays with the
// controller.
package mpd

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/fhs/gompd/v2/mpd"
	log "github.com/sirupsen/logrus"

	"vilero/src/player"
	"vilero/src/util"
)

const pollInterval = time.Second

type Media struct {
	util.Emitter

	addr, passwd string

	// Running the idle routine on the same connection as regular commands
	// confuses MPD, the watcher gets a connection of its own.
	watcher *mpd.Watcher

	mu     sync.Mutex
	source string
	// Sometimes the volume returned by MPD is -1, so we have to remember the
	// last sane value ourselves.
	lastVolume   float64
	lastDuration time.Duration
	// Set while a stop was requested by us, so that the watcher can tell a
	// commanded stop from a track playing to its natural end.
	expectStop bool

	stop     chan struct{}
	stopOnce sync.Once
}

var _ player.MediaElement = (*Media)(nil)

func NewMedia(host string, port int, password string) (*Media, error) {
	addr := fmt.Sprintf("%v:%v", host, port)
	watcher, err := mpd.NewWatcher("tcp", addr, password, "player")
	if err != nil {
		return nil, fmt.Errorf("could not connect to MPD at %v: %v", addr, err)
	}

	m := &Media{
		addr:    addr,
		passwd:  password,
		watcher: watcher,
		stop:    make(chan struct{}),
	}
	go m.eventLoop()
	go m.pollLoop()
	return m, nil
}

func (m *Media) Close() error {
	m.stopOnce.Do(func() { close(m.stop) })
	return m.watcher.Close()
}

func (m *Media) withMpd(fn func(*mpd.Client) error) error {
	client, err := mpd.DialAuthenticated("tcp", m.addr, m.passwd)
	if err != nil {
		return err
	}
	defer client.Close()
	return fn(client)
}

func (m *Media) eventLoop() {
	for {
		select {
		case <-m.stop:
			return
		case err := <-m.watcher.Error:
			log.Errorf("MPD watcher: %v", err)
		case <-m.watcher.Event:
			m.checkTrackEnd()
		}
	}
}

// checkTrackEnd emits MediaEndEvent when MPD stopped on its own accord. MPD
// reaching the end of its queue and a commanded stop both leave the state at
// "stop", the expectStop flag tells them apart.
func (m *Media) checkTrackEnd() {
	var status mpd.Attrs
	err := m.withMpd(func(mpdc *mpd.Client) error {
		var err error
		status, err = mpdc.Status()
		return err
	})
	if err != nil {
		log.Errorf("MPD status: %v", err)
		return
	}
	if status["state"] != "stop" {
		return
	}

	m.mu.Lock()
	ended := !m.expectStop && m.source != ""
	m.source = ""
	m.expectStop = false
	m.mu.Unlock()
	if ended {
		m.Emit(player.MediaEndEvent{})
	}
}

func (m *Media) pollLoop() {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
		}

		var status mpd.Attrs
		err := m.withMpd(func(mpdc *mpd.Client) error {
			var err error
			status, err = mpdc.Status()
			return err
		})
		if err != nil || status["state"] != "play" {
			continue
		}

		if elapsed, err := strconv.ParseFloat(status["elapsed"], 64); err == nil {
			m.Emit(player.MediaTimeEvent{Time: time.Duration(elapsed * float64(time.Second))})
		}
		duration := attrsDuration(status)
		m.mu.Lock()
		changed := duration > 0 && duration != m.lastDuration
		if changed {
			m.lastDuration = duration
		}
		m.mu.Unlock()
		if changed {
			m.Emit(player.MediaDurationEvent{Duration: duration})
		}
	}
}

func attrsDuration(status mpd.Attrs) time.Duration {
	if secs, err := strconv.ParseFloat(status["duration"], 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return 0
}

// Load implements the player.MediaElement interface. The locator must resolve
// within MPD's music directory.
func (m *Media) Load(ctx context.Context, sourceRef string) error {
	err := m.withMpd(func(mpdc *mpd.Client) error {
		if err := mpdc.Clear(); err != nil {
			return err
		}
		return mpdc.Add(sourceRef)
	})
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.source = sourceRef
	m.lastDuration = 0
	m.expectStop = false
	m.mu.Unlock()
	return nil
}

// Play implements the player.MediaElement interface.
func (m *Media) Play(ctx context.Context) error {
	m.mu.Lock()
	m.expectStop = false
	m.mu.Unlock()
	return m.withMpd(func(mpdc *mpd.Client) error {
		status, err := mpdc.Status()
		if err != nil {
			return err
		}
		if status["state"] == "stop" {
			return mpdc.Play(0)
		}
		return mpdc.Pause(false)
	})
}

// Pause implements the player.MediaElement interface.
func (m *Media) Pause(ctx context.Context) error {
	return m.withMpd(func(mpdc *mpd.Client) error {
		return mpdc.Pause(true)
	})
}

// Stop implements the player.MediaElement interface.
func (m *Media) Stop(ctx context.Context) error {
	m.mu.Lock()
	m.expectStop = true
	m.mu.Unlock()
	return m.withMpd(func(mpdc *mpd.Client) error {
		return mpdc.Stop()
	})
}

// State implements the player.MediaElement interface.
func (m *Media) State(ctx context.Context) (player.PlayState, error) {
	state := player.PlayStateInvalid
	err := m.withMpd(func(mpdc *mpd.Client) error {
		status, err := mpdc.Status()
		if err != nil {
			return err
		}
		state = map[string]player.PlayState{
			"play":  player.PlayStatePlaying,
			"pause": player.PlayStatePaused,
			"stop":  player.PlayStateStopped,
		}[status["state"]]
		if state == "" {
			state = player.PlayStateInvalid
		}
		return nil
	})
	return state, err
}

// Position implements the player.MediaElement interface.
func (m *Media) Position(ctx context.Context) (time.Duration, error) {
	var pos time.Duration
	err := m.withMpd(func(mpdc *mpd.Client) error {
		status, err := mpdc.Status()
		if err != nil {
			return err
		}
		if elapsed, err := strconv.ParseFloat(status["elapsed"], 64); err == nil {
			pos = time.Duration(elapsed * float64(time.Second))
		}
		return nil
	})
	return pos, err
}

// SetPosition implements the player.MediaElement interface.
func (m *Media) SetPosition(ctx context.Context, pos time.Duration) error {
	return m.withMpd(func(mpdc *mpd.Client) error {
		status, err := mpdc.Status()
		if err != nil {
			return err
		}
		if _, ok := status["songid"]; !ok {
			// No track is current, nothing to seek in.
			return nil
		}
		return mpdc.SeekCur(pos, false)
	})
}

// Duration implements the player.MediaElement interface.
func (m *Media) Duration(ctx context.Context) (time.Duration, error) {
	var duration time.Duration
	err := m.withMpd(func(mpdc *mpd.Client) error {
		status, err := mpdc.Status()
		if err != nil {
			return err
		}
		duration = attrsDuration(status)
		return nil
	})
	return duration, err
}

// Volume implements the player.MediaElement interface.
func (m *Media) Volume(ctx context.Context) (float64, error) {
	var vol float64
	err := m.withMpd(func(mpdc *mpd.Client) error {
		status, err := mpdc.Status()
		if err != nil {
			return err
		}
		raw, err := strconv.ParseInt(status["volume"], 10, 32)
		if err != nil {
			return err
		}
		vol = float64(raw) / 100
		m.mu.Lock()
		if vol < 0 {
			// Happens sometimes when nothing is playing.
			vol = m.lastVolume
		} else {
			m.lastVolume = vol
		}
		m.mu.Unlock()
		return nil
	})
	return vol, err
}

// SetVolume implements the player.MediaElement interface.
func (m *Media) SetVolume(ctx context.Context, vol float64) error {
	if vol < 0 {
		vol = 0
	} else if vol > 1 {
		vol = 1
	}
	m.mu.Lock()
	m.lastVolume = vol
	m.mu.Unlock()
	return m.withMpd(func(mpdc *mpd.Client) error {
		return mpdc.SetVolume(int(vol * 100))
	})
}
