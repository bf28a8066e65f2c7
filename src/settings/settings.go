// Package settings persists simple client preferences across sessions.
package settings

import (
	"fmt"

	"vilero/src/util"
)

// UpdateEvent is emitted after a setting changed.
type UpdateEvent struct{}

// Settings are the durable key-value preferences of the player frontend.
type Settings struct {
	// Volume is the playback volume in the range [0, 1].
	Volume float64 `json:"volume"`
	// DisplayMode is either "light" or "dark".
	DisplayMode string `json:"mode"`
}

// Store keeps Settings synced to a file.
type Store struct {
	util.Emitter
	storage *util.PersistentStorage[Settings]
}

func NewStore(filename string) (*Store, error) {
	storage, err := util.NewPersistentStorage(filename, Settings{
		Volume:      1.0,
		DisplayMode: "light",
	})
	if err != nil {
		return nil, fmt.Errorf("could not create settings store: %v", err)
	}
	return &Store{storage: storage}, nil
}

func (store *Store) Get() Settings {
	return store.storage.Value()
}

func (store *Store) Set(settings Settings) error {
	if settings.Volume < 0 || settings.Volume > 1 {
		return fmt.Errorf("volume out of range: %v", settings.Volume)
	}
	if settings.DisplayMode != "light" && settings.DisplayMode != "dark" {
		return fmt.Errorf("invalid display mode: %q", settings.DisplayMode)
	}
	if err := store.storage.SetValue(settings); err != nil {
		return err
	}
	store.Emit(UpdateEvent{})
	return nil
}

// SetVolume stores just the volume, leaving other settings untouched.
func (store *Store) SetVolume(volume float64) error {
	settings := store.Get()
	settings.Volume = volume
	return store.Set(settings)
}
