package player

// PlayMode is the policy governing automatic advance after a track ends.
type PlayMode string

const (
	PlayModeInvalid   PlayMode = "invalid"
	PlayModeRepeatOne PlayMode = "repeat-one"
	PlayModeRepeatAll PlayMode = "repeat-all"
	PlayModeShuffle   PlayMode = "shuffle"
)

// NamedPlayMode maps a mode name to a PlayMode.
func NamedPlayMode(str string) PlayMode {
	switch str {
	case "repeat-one":
		return PlayModeRepeatOne
	case "repeat-all":
		return PlayModeRepeatAll
	case "shuffle":
		return PlayModeShuffle
	default:
		return PlayModeInvalid
	}
}

// Next returns the mode that follows in the fixed toggle cycle,
// repeat-one -> repeat-all -> shuffle -> repeat-one.
func (mode PlayMode) Next() PlayMode {
	switch mode {
	case PlayModeRepeatOne:
		return PlayModeRepeatAll
	case PlayModeRepeatAll:
		return PlayModeShuffle
	case PlayModeShuffle:
		return PlayModeRepeatOne
	default:
		return PlayModeInvalid
	}
}

// Label returns the display label for the mode.
func (mode PlayMode) Label() string {
	switch mode {
	case PlayModeRepeatOne:
		return "Repeat One"
	case PlayModeRepeatAll:
		return "Repeat All"
	case PlayModeShuffle:
		return "Shuffle"
	default:
		return "Invalid"
	}
}
