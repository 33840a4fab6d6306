package engine

import (
	"time"

	"capstation/capture"
	"capstation/store"
)

// EventType identifies the kind of event emitted by the Engine.
type EventType int

const (
	// Sync events
	EventSyncStarted EventType = iota + 1
	EventSyncCompleted
	EventSyncFailed

	// Capture events
	EventSessionChanged

	// Submission events
	EventLogSubmitted

	// Selection events
	EventMachineSelected

	// Cache events
	EventMachinesUpdated
	EventPresetsUpdated
	EventLogsUpdated
	EventLabelsUpdated
	EventScanConfigsUpdated
	EventAppConfigUpdated

	// Settings-area events
	EventVaultStateChanged
)

// Event is the envelope emitted by the Engine's EventBus.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Payload   interface{}
}

// SyncFailedEvent is emitted when a read or write against the remote store fails.
type SyncFailedEvent struct {
	Error string `json:"error"`
}

// SessionChangedEvent is emitted on every capture session transition.
type SessionChangedEvent struct {
	State capture.State `json:"state"`
}

// LogSubmittedEvent is emitted when a measurement log is recorded locally.
type LogSubmittedEvent struct {
	Entry store.LogEntry `json:"entry"`
}

// MachineSelectedEvent is emitted when the operator switches machines.
type MachineSelectedEvent struct {
	MachineID   string `json:"machineId"`
	MachineName string `json:"machineName"`
}

// CacheUpdatedEvent is emitted when a local cache is replaced from a snapshot
// or an optimistic write.
type CacheUpdatedEvent struct {
	Count int `json:"count"`
}

// VaultStateChangedEvent is emitted when the settings area locks or unlocks.
type VaultStateChangedEvent struct {
	Unlocked bool `json:"unlocked"`
}
