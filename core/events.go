package core

import "sync"

// EventCode identifies the kind of event fired by the render-graph core.
// Application-level codes should start beyond MaxEventCode.
type EventCode int

const (
	// EventLayoutEpochChanged fires when the frame diff detects a layout
	// change: all heaps were reallocated and previous-frame handles dropped.
	EventLayoutEpochChanged EventCode = 0x01
	// EventFrameTransferred fires when the frame diff found the previous
	// frame's diff keys all-common and transferred GPU handles instead.
	EventFrameTransferred EventCode = 0x02
	// EventBackendFailure is the code for a backend capability call failing
	// during record or submit. Nothing in this module fires it; the
	// executor returns such failures as errors instead.
	EventBackendFailure EventCode = 0x03

	MaxEventCode EventCode = 0xFF
)

// EventContext carries event payload. Data is freeform; listeners know the
// shape associated with the EventCode they registered for.
type EventContext struct {
	Type EventCode
	Data interface{}
}

// FnOnEvent is invoked when a registered event code fires.
type FnOnEvent func(context EventContext)

type registeredEvent struct {
	listener interface{}
	callback FnOnEvent
}

type eventBus struct {
	mu         sync.Mutex
	registered map[EventCode][]*registeredEvent
}

var onceEvent sync.Once
var bus *eventBus

func getBus() *eventBus {
	onceEvent.Do(func() {
		bus = &eventBus{registered: make(map[EventCode][]*registeredEvent)}
	})
	return bus
}

// EventRegister subscribes onEvent to be invoked whenever code fires.
// Duplicate (listener, code) registrations are ignored.
func EventRegister(code EventCode, listener interface{}, onEvent FnOnEvent) {
	b := getBus()
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, e := range b.registered[code] {
		if e.listener == listener {
			return
		}
	}
	b.registered[code] = append(b.registered[code], &registeredEvent{listener: listener, callback: onEvent})
}

// EventUnregister removes a previously registered listener for code.
func EventUnregister(code EventCode, listener interface{}) {
	b := getBus()
	b.mu.Lock()
	defer b.mu.Unlock()

	events := b.registered[code]
	for i, e := range events {
		if e.listener == listener {
			b.registered[code] = append(events[:i], events[i+1:]...)
			return
		}
	}
}

// EventFire synchronously invokes every listener registered for context.Type.
func EventFire(context EventContext) {
	b := getBus()
	b.mu.Lock()
	listeners := append([]*registeredEvent(nil), b.registered[context.Type]...)
	b.mu.Unlock()

	for _, e := range listeners {
		e.callback(context)
	}
}
