package util

import (
	"sync"
)

// An Eventer is a type that is able to emit events to subscribed listeners.
type Eventer interface {
	Events() *Emitter
}

// An Emitter broadcasts events to an arbitrary number of listener channels.
//
// The zero value is ready for use.
type Emitter struct {
	listeners       map[<-chan interface{}]chan interface{}
	listenerClosers map[<-chan interface{}]chan struct{}
	lock            sync.RWMutex
}

func (emitter *Emitter) init() {
	emitter.lock.RLock()
	shouldInit := emitter.listeners == nil
	emitter.lock.RUnlock()
	if shouldInit {
		emitter.lock.Lock()
		if emitter.listeners == nil {
			emitter.listeners = map[<-chan interface{}]chan interface{}{}
			emitter.listenerClosers = map[<-chan interface{}]chan struct{}{}
		}
		emitter.lock.Unlock()
	}
}

// Emit broadcasts an event to all current listeners without blocking the
// caller.
func (emitter *Emitter) Emit(event interface{}) {
	emitter.init()

	emitter.lock.RLock()
	defer emitter.lock.RUnlock()
	for _, listener := range emitter.listeners {
		go func(listener chan interface{}, closer chan struct{}) {
			select {
			case listener <- event:
			case <-closer:
			}
		}(listener, emitter.listenerClosers[listener])
	}
}

// Events implements the Eventer interface.
func (emitter *Emitter) Events() *Emitter {
	return emitter
}

func (emitter *Emitter) Listen() <-chan interface{} {
	emitter.init()

	emitter.lock.Lock()
	defer emitter.lock.Unlock()

	ch := make(chan interface{}, 8)
	emitter.listeners[ch] = ch
	emitter.listenerClosers[ch] = make(chan struct{})
	return ch
}

func (emitter *Emitter) Unlisten(ch <-chan interface{}) {
	emitter.init()

	emitter.lock.Lock()
	defer emitter.lock.Unlock()

	// Signal any remaining broadcasts to abort writing to the channel.
	close(emitter.listenerClosers[ch])
	close(emitter.listeners[ch])
	delete(emitter.listenerClosers, ch)
	delete(emitter.listeners, ch)
}
