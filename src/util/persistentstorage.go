package util

import (
	"encoding/json"
	"os"
	"sync"
)

// PersistentStorage keeps a value of some type synced to a JSON file.
type PersistentStorage[T any] struct {
	value    T
	file     string
	fileLock sync.Mutex
}

// NewPersistentStorage loads the value stored in the specified file. If the
// file does not exist it is created holding the specified initial value.
func NewPersistentStorage[T any](filename string, initial T) (*PersistentStorage[T], error) {
	store := &PersistentStorage[T]{
		file:  filename,
		value: initial,
	}

	ok, err := store.readValue()
	if err != nil {
		return nil, err
	}
	if !ok {
		if err := store.SetValue(initial); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func (store *PersistentStorage[T]) Value() T {
	store.fileLock.Lock()
	defer store.fileLock.Unlock()
	return store.value
}

func (store *PersistentStorage[T]) SetValue(value T) error {
	store.fileLock.Lock()
	defer store.fileLock.Unlock()

	store.value = value
	file, err := os.Create(store.file)
	if err != nil {
		return err
	}
	defer file.Close()

	return json.NewEncoder(file).Encode(store.value)
}

func (store *PersistentStorage[T]) readValue() (bool, error) {
	store.fileLock.Lock()
	defer store.fileLock.Unlock()

	file, err := os.Open(store.file)
	if os.IsNotExist(err) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(&store.value); err != nil {
		return false, err
	}
	return true, nil
}
