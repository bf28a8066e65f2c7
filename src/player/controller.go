package player

import (
	"context"
	"fmt"
	"math/rand"
	"net/url"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"vilero/src/library"
	"vilero/src/util"
)

var playsStarted = promauto.NewCounter(prometheus.CounterOpts{
	Name: "vilero_plays_started_total",
	Help: "Number of tracks that started playing.",
})

// State describes what the controller is currently doing.
type State string

const (
	// StateIdle means no track is current.
	StateIdle State = "idle"
	// StateLoading means a source was set but playback has not started yet.
	StateLoading State = "loading"
	StatePlaying State = "playing"
	StatePaused  State = "paused"
)

// PlaylistEvent is emitted when the playlist or the current index changed.
// Index is -1 when no track is current.
type PlaylistEvent struct {
	Index int
}

// NowPlayingEvent carries the display metadata of the current track. It is
// emitted only when the resolved metadata still belongs to the current track,
// responses for superseded selections are discarded.
type NowPlayingEvent struct {
	Index    int
	Filename string
	Title    string
	Artist   string
	ArtURL   string
}

// PlayStateEvent is emitted when the controller state changes.
type PlayStateEvent struct {
	State State
}

// ModeEvent is emitted when the play mode was toggled.
type ModeEvent struct {
	Mode  PlayMode
	Label string
}

// TimeEvent reports elapsed time within the current track.
type TimeEvent struct {
	Time time.Duration
}

// DurationEvent reports the duration of the current track, 0 when unknown.
type DurationEvent struct {
	Duration time.Duration
}

// VolumeEvent is emitted when the volume was changed through the controller.
type VolumeEvent struct {
	Volume float64
}

// Options tune the behavior of a Controller.
type Options struct {
	// Rand is the source used to generate shuffle permutations. A nil value
	// selects a time-seeded source.
	Rand *rand.Rand

	// ReshuffleOnExhaustion regenerates the shuffle order once all entries
	// have been played instead of stopping.
	ReshuffleOnExhaustion bool

	// PersistVolume, when set, is invoked with the new volume after every
	// volume change so it can be restored next session.
	PersistVolume func(vol float64)

	// MetadataTimeout bounds the asynchronous metadata lookup started by
	// PlayAt. Defaults to 5 seconds.
	MetadataTimeout time.Duration
}

// Status is a snapshot of the controller state.
type Status struct {
	Index    int            `json:"index"`
	Mode     PlayMode       `json:"mode"`
	State    State          `json:"state"`
	Track    *library.Track `json:"track,omitempty"`
	Time     time.Duration  `json:"-"`
	Duration time.Duration  `json:"-"`
	Volume   float64        `json:"volume"`
}

// A Controller owns the playlist, the current index and the play mode, and
// mediates all transitions of the underlying media element.
//
// Methods are safe for concurrent use. Events arrive from the media element
// and from HTTP handlers at the same time; the staleness of asynchronous
// metadata lookups is tracked with a generation counter that is bumped on
// every selection.
type Controller struct {
	util.Emitter

	media MediaElement
	lib   library.Library
	opts  Options

	mu         sync.Mutex
	tracks     []library.Track
	index      int
	mode       PlayMode
	shuffle    []int
	state      State
	generation uint64
	rng        *rand.Rand

	// transition serializes load/play/stop transitions of the media element.
	// Selections are ordered by the generation counter; one that was overtaken
	// must leave the element to its successor.
	transition sync.Mutex

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a controller around the specified media element. The library is
// consulted for authoritative display metadata when a track starts playing
// and may be nil, in which case the playlist's own metadata is used.
func New(media MediaElement, lib library.Library, opts Options) *Controller {
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.MetadataTimeout == 0 {
		opts.MetadataTimeout = 5 * time.Second
	}
	c := &Controller{
		media: media,
		lib:   lib,
		opts:  opts,
		index: -1,
		mode:  PlayModeRepeatAll,
		state: StateIdle,
		rng:   rng,
		stop:  make(chan struct{}),
	}
	go c.eventLoop()
	return c
}

// Close detaches the controller from its media element.
func (c *Controller) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	return nil
}

func (c *Controller) eventLoop() {
	events := c.media.Events().Listen()
	defer c.media.Events().Unlisten(events)
	for {
		select {
		case <-c.stop:
			return
		case event := <-events:
			switch t := event.(type) {
			case MediaEndEvent:
				c.onTrackEnded()
			case MediaDurationEvent:
				c.Emit(DurationEvent{Duration: t.Duration})
			case MediaTimeEvent:
				c.Emit(TimeEvent{Time: t.Time})
			}
		}
	}
}

// LoadPlaylist replaces the playlist wholesale. The current index is reset,
// a fresh shuffle order is generated and any in-flight metadata lookup is
// invalidated. No network I/O is performed, the track list is supplied by the
// caller.
func (c *Controller) LoadPlaylist(ctx context.Context, tracks []library.Track) {
	c.mu.Lock()
	c.tracks = append([]library.Track(nil), tracks...)
	c.index = -1
	c.state = StateIdle
	c.generation++
	c.shuffle = fisherYates(len(c.tracks), c.rng)
	c.mu.Unlock()

	c.transition.Lock()
	err := c.media.Stop(ctx)
	c.transition.Unlock()
	if err != nil {
		log.Warnf("Could not stop media element: %v", err)
	}
	c.Emit(PlaylistEvent{Index: -1})
	c.Emit(PlayStateEvent{State: StateIdle})
}

// Tracks returns a copy of the current playlist.
func (c *Controller) Tracks() []library.Track {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]library.Track(nil), c.tracks...)
}

// ShuffleOrder returns the permutation used for automatic advance in shuffle
// mode. It is regenerated only when the playlist is (re)loaded.
func (c *Controller) ShuffleOrder() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.shuffle...)
}

// PlayAt makes the track at the specified index current and starts playing
// it. Indices outside the playlist are a silent no-op.
func (c *Controller) PlayAt(ctx context.Context, index int) error {
	c.mu.Lock()
	if index < 0 || index >= len(c.tracks) {
		c.mu.Unlock()
		return nil
	}
	c.index = index
	c.state = StateLoading
	c.generation++
	gen := c.generation
	track := c.tracks[index]
	c.mu.Unlock()

	c.Emit(PlaylistEvent{Index: index})
	// Reset the time display until the element reports the real duration.
	c.Emit(TimeEvent{Time: 0})
	c.Emit(DurationEvent{Duration: 0})

	// Another selection may overtake this one while it waits for the
	// transition lock, or while its load is in flight. The element belongs to
	// the latest selection, a superseded one backs off without touching it so
	// the playing track and the current index cannot diverge.
	c.transition.Lock()
	defer c.transition.Unlock()
	if c.superseded(gen) {
		return nil
	}
	if err := c.media.Load(ctx, track.URL); err != nil {
		c.abortPlayback(gen)
		return fmt.Errorf("could not load %q: %v", track.Filename, err)
	}
	if c.superseded(gen) {
		return nil
	}
	if err := c.media.Play(ctx); err != nil {
		c.abortPlayback(gen)
		return fmt.Errorf("could not play %q: %v", track.Filename, err)
	}

	c.mu.Lock()
	current := c.generation == gen
	if current {
		c.state = StatePlaying
	}
	c.mu.Unlock()
	if current {
		playsStarted.Inc()
		c.Emit(PlayStateEvent{State: StatePlaying})
		go c.resolveNowPlaying(gen, index, track)
	}
	return nil
}

func (c *Controller) superseded(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation != gen
}

// abortPlayback returns the controller to idle after a failed playback
// attempt, unless the attempt was already superseded.
func (c *Controller) abortPlayback(gen uint64) {
	c.mu.Lock()
	aborted := c.generation == gen
	if aborted {
		c.state = StateIdle
	}
	c.mu.Unlock()
	if aborted {
		c.Emit(PlayStateEvent{State: StateIdle})
	}
}

// resolveNowPlaying fetches authoritative display metadata for a freshly
// started track. A response that arrives after another track was selected is
// discarded, it must not overwrite the current display.
func (c *Controller) resolveNowPlaying(gen uint64, index int, track library.Track) {
	title, artist := track.Title, track.Artist
	if c.lib != nil {
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.MetadataTimeout)
		info, err := c.lib.TrackInfo(ctx, track.Filename)
		cancel()
		if err != nil {
			// Metadata absence is not an error, degrade to the fields the
			// playlist and filename provide.
			log.WithField("track", track.Filename).Debugf("No metadata: %v", err)
		} else {
			title, artist = info.Title, info.Artist
		}
	}
	if title == "" {
		title = library.TitleFromFilename(track.Filename)
	}

	c.mu.Lock()
	stale := c.generation != gen
	c.mu.Unlock()
	if stale {
		return
	}
	c.Emit(NowPlayingEvent{
		Index:    index,
		Filename: track.Filename,
		Title:    title,
		Artist:   artist,
		ArtURL:   "/art/" + url.PathEscape(track.Filename),
	})
}

// TogglePlayMode cycles the play mode and returns the new mode. This is a
// pure state transition, the playback position is unaffected.
func (c *Controller) TogglePlayMode() PlayMode {
	c.mu.Lock()
	c.mode = c.mode.Next()
	mode := c.mode
	c.mu.Unlock()
	c.Emit(ModeEvent{Mode: mode, Label: mode.Label()})
	return mode
}

// SetMode sets the play mode directly.
func (c *Controller) SetMode(mode PlayMode) error {
	if mode == PlayModeInvalid {
		return fmt.Errorf("invalid play mode")
	}
	c.mu.Lock()
	c.mode = mode
	c.mu.Unlock()
	c.Emit(ModeEvent{Mode: mode, Label: mode.Label()})
	return nil
}

// Mode returns the current play mode.
func (c *Controller) Mode() PlayMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Next skips to the next track. Manual stepping always wraps around the
// playlist ends, unlike automatic advance.
func (c *Controller) Next(ctx context.Context) error {
	return c.step(ctx, 1)
}

// Previous skips to the previous track, wrapping like Next.
func (c *Controller) Previous(ctx context.Context) error {
	return c.step(ctx, -1)
}

func (c *Controller) step(ctx context.Context, delta int) error {
	c.mu.Lock()
	length := len(c.tracks)
	index := c.index
	c.mu.Unlock()
	if length == 0 {
		return nil
	}
	return c.PlayAt(ctx, ((index+delta)%length+length)%length)
}

// onTrackEnded applies the play mode policy after a track played to its
// natural end. Unlike manual stepping this never wraps, an exhausted playlist
// stops playback.
func (c *Controller) onTrackEnded() {
	c.mu.Lock()
	next := -1
	switch c.mode {
	case PlayModeRepeatOne:
		next = c.index
	case PlayModeRepeatAll:
		if c.index+1 < len(c.tracks) {
			next = c.index + 1
		}
	case PlayModeShuffle:
		pos := -1
		for i, v := range c.shuffle {
			if v == c.index {
				pos = i
				break
			}
		}
		if pos >= 0 && pos+1 < len(c.shuffle) {
			next = c.shuffle[pos+1]
		} else if c.opts.ReshuffleOnExhaustion && len(c.tracks) > 0 {
			c.shuffle = fisherYates(len(c.tracks), c.rng)
			next = c.shuffle[0]
		}
	}
	if next < 0 {
		c.state = StatePaused
		c.mu.Unlock()
		c.Emit(PlayStateEvent{State: StatePaused})
		return
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.PlayAt(ctx, next); err != nil {
		log.Errorf("Could not advance after track end: %v", err)
	}
}

// TogglePlayPause pauses a playing track or resumes a paused one. In any
// other state this is a no-op.
func (c *Controller) TogglePlayPause(ctx context.Context) error {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	switch state {
	case StatePlaying:
		if err := c.media.Pause(ctx); err != nil {
			return err
		}
		c.setState(StatePaused)
	case StatePaused:
		if err := c.media.Play(ctx); err != nil {
			return err
		}
		c.setState(StatePlaying)
	}
	return nil
}

func (c *Controller) setState(state State) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
	c.Emit(PlayStateEvent{State: state})
}

// SeekTo sets the playback position to a fraction of the track duration. It
// is a no-op while the duration is unknown. The fraction is clamped to
// [0, 1].
func (c *Controller) SeekTo(ctx context.Context, fraction float64) error {
	duration, err := c.media.Duration(ctx)
	if err != nil {
		return err
	}
	if duration <= 0 {
		return nil
	}
	if fraction < 0 {
		fraction = 0
	} else if fraction > 1 {
		fraction = 1
	}
	return c.media.SetPosition(ctx, time.Duration(fraction*float64(duration)))
}

// SeekBy moves the playback position relative to the current one, clamped to
// the bounds of the track.
func (c *Controller) SeekBy(ctx context.Context, delta time.Duration) error {
	pos, err := c.media.Position(ctx)
	if err != nil {
		return err
	}
	duration, err := c.media.Duration(ctx)
	if err != nil {
		return err
	}
	pos += delta
	if pos < 0 {
		pos = 0
	}
	if duration > 0 && pos > duration {
		pos = duration
	}
	return c.media.SetPosition(ctx, pos)
}

// SetVolume sets the volume, clamped to [0, 1], and persists it through the
// configured hook.
func (c *Controller) SetVolume(ctx context.Context, vol float64) error {
	if vol < 0 {
		vol = 0
	} else if vol > 1 {
		vol = 1
	}
	if err := c.media.SetVolume(ctx, vol); err != nil {
		return err
	}
	if c.opts.PersistVolume != nil {
		c.opts.PersistVolume(vol)
	}
	c.Emit(VolumeEvent{Volume: vol})
	return nil
}

// VolumeBy adjusts the volume relative to the current one.
func (c *Controller) VolumeBy(ctx context.Context, delta float64) error {
	vol, err := c.media.Volume(ctx)
	if err != nil {
		return err
	}
	return c.SetVolume(ctx, vol+delta)
}

// Status returns a snapshot of the controller state.
func (c *Controller) Status(ctx context.Context) (*Status, error) {
	c.mu.Lock()
	status := &Status{Index: c.index, Mode: c.mode, State: c.state}
	if c.index >= 0 && c.index < len(c.tracks) {
		track := c.tracks[c.index]
		status.Track = &track
	}
	c.mu.Unlock()

	var err error
	if status.Time, err = c.media.Position(ctx); err != nil {
		return nil, err
	}
	if status.Duration, err = c.media.Duration(ctx); err != nil {
		return nil, err
	}
	if status.Volume, err = c.media.Volume(ctx); err != nil {
		return nil, err
	}
	return status, nil
}

// fisherYates generates a uniformly random permutation of [0, n).
func fisherYates(n int, rng *rand.Rand) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		order[i], order[j] = order[j], order[i]
	}
	return order
}
