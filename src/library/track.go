package library

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	interpArtistTitleInFilename = regexp.MustCompile(`^(?:(?:\d+\.\s+)|(?:\d+\s+-\s+))?(.+?)\s+-\s+(.+)\.\w+$`)
	interpStem                  = regexp.MustCompile(`^(.+)\.\w+$`)
)

// Track holds all information associated with a single piece of music.
//
// The filename is the unique key assigned by the library. The URL is the
// playable locator, either an absolute URL or a same-origin streaming path.
type Track struct {
	Filename string        `json:"filename"`
	Title    string        `json:"title"`
	Artist   string        `json:"artist,omitempty"`
	URL      string        `json:"public_url"`
	Duration time.Duration `json:"-"`
	ModTime  time.Time     `json:"-"`
}

// DisplayTitle returns the title to show for this track. It degrades to the
// filename stem when no title is known, so a display never ends up empty.
func (track Track) DisplayTitle() string {
	if track.Title != "" {
		return track.Title
	}
	return TitleFromFilename(track.Filename)
}

func (track Track) String() string {
	if track.Artist != "" {
		return fmt.Sprintf("%s — %s", track.DisplayTitle(), track.Artist)
	}
	return track.DisplayTitle()
}

// TitleFromFilename derives a human readable title from a filename by
// stripping the extension.
func TitleFromFilename(filename string) string {
	if match := interpStem.FindStringSubmatch(filename); match != nil {
		return match[1]
	}
	return filename
}

// InterpolateMissingFields extracts the artist and title from the filename if
// they are unavailable and applies them to the specified track.
func InterpolateMissingFields(track *Track) {
	if track.Artist != "" && track.Title != "" {
		return
	}
	if strings.HasPrefix(track.Filename, "http") {
		return
	}

	// Attempt to find an "<artist> - <title>" pattern in the filename.
	if track.Artist == "" || track.Title == "" {
		if match := interpArtistTitleInFilename.FindStringSubmatch(track.Filename); match != nil {
			track.Artist, track.Title = match[1], match[2]
			return
		}
	}

	// Still nothing? Just use the filename stem.
	if track.Title == "" {
		track.Title = TitleFromFilename(track.Filename)
	}
}
