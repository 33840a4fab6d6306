package engine

import (
	"capstation/capture"
	"capstation/store"
)

// syncEmitter adapts the engine's EventBus to the remote.EventEmitter interface.
type syncEmitter struct {
	bus *EventBus
}

func (e *syncEmitter) EmitSyncStarted() {
	e.bus.Emit(Event{Type: EventSyncStarted})
}

func (e *syncEmitter) EmitSyncCompleted() {
	e.bus.Emit(Event{Type: EventSyncCompleted})
}

func (e *syncEmitter) EmitSyncFailed(msg string) {
	e.bus.Emit(Event{Type: EventSyncFailed, Payload: SyncFailedEvent{Error: msg}})
}

func (e *syncEmitter) EmitLogSubmitted(entry store.LogEntry) {
	e.bus.Emit(Event{Type: EventLogSubmitted, Payload: LogSubmittedEvent{Entry: entry}})
}

// sessionEmitter adapts the engine's EventBus to the capture.EventEmitter interface.
type sessionEmitter struct {
	bus *EventBus
}

func (e *sessionEmitter) EmitSessionChanged(state capture.State) {
	e.bus.Emit(Event{Type: EventSessionChanged, Payload: SessionChangedEvent{State: state}})
}
