// Package remote reconciles the local caches with the remote record store.
// Reads replace caches wholesale from a full snapshot; writes are
// fire-and-forget with an optimistic local apply.
package remote

import (
	"fmt"

	"capstation/store"
)

// Write actions accepted by the remote store.
const (
	ActionSaveLog         = "save_log"
	ActionSaveStandard    = "save_standard"
	ActionSaveMachines    = "save_machines"
	ActionSaveLabels      = "save_labels"
	ActionSaveScanConfigs = "save_scan_configs"
	ActionSaveAppConfig   = "save_app_config"
)

// ProductStructures are the dropdown option lists owned by the remote store.
type ProductStructures struct {
	Products   []string `json:"products"`
	Structures []string `json:"structures"`
}

// Snapshot is the full remote payload. A nil field was omitted by the remote
// and leaves the corresponding local cache untouched; a present-but-empty
// field replaces the cache with nothing.
type Snapshot struct {
	Presets           *[]store.ProductPreset `json:"presets"`
	Logs              *[]store.LogEntry      `json:"logs"`
	Machines          *[]store.Machine       `json:"machines"`
	Labels            *map[string]string     `json:"labels"`
	ScanConfigs       *[]store.ScanConfig    `json:"scanConfigs"`
	ProductStructures *ProductStructures     `json:"productStructures"`
	AppConfig         *store.AppConfig       `json:"appConfig"`
}

// Confirmation states what is known about the remote outcome of a write.
type Confirmation string

// ConfirmUnknown is the only confirmation this transport can produce: the
// write path returns no interpretable response, so success is assumed unless
// the call itself fails. The no-confirmation property is a fact of the
// protocol, not an implementation shortcut.
const ConfirmUnknown Confirmation = "unknown"

// PushResult describes a fire-and-forget write: the local mutation is applied
// regardless, and the remote outcome is never observable.
type PushResult struct {
	Applied         bool         `json:"applied"`
	RemoteConfirmed Confirmation `json:"remoteConfirmed"`
}

// TransportError is a read or write call failing outright. Surfaced to the
// operator as a generic sync notice; never rolls back optimistic state.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("sync %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ValidationError blocks a submission locally, before any network call.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// AuthError is a rejected credential check (the call itself succeeded).
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	if e.Message == "" {
		return "login failed"
	}
	return e.Message
}
