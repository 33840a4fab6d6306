package engine

import (
	"log"

	"capstation/remote"
	"capstation/store"
)

// The engine is the single writer for every local cache. Snapshot reads and
// optimistic writes both land here, update memory, and persist to SQLite so a
// restart without connectivity still has the last known state.

// ApplySnapshot replaces every cache the snapshot carries. Omitted sections
// leave their caches untouched.
func (e *Engine) ApplySnapshot(snap remote.Snapshot) {
	if snap.Machines != nil {
		e.ApplyMachines(*snap.Machines)
	}
	if snap.Presets != nil {
		e.presets.Replace(*snap.Presets)
		if err := e.db.ReplacePresets(*snap.Presets); err != nil {
			log.Printf("persist presets: %v", err)
		}
		e.Events.Emit(Event{Type: EventPresetsUpdated, Payload: CacheUpdatedEvent{Count: len(*snap.Presets)}})
	}
	if snap.Logs != nil {
		e.stateMu.Lock()
		e.logs = *snap.Logs
		e.stateMu.Unlock()
		if err := e.db.ReplaceLogs(*snap.Logs); err != nil {
			log.Printf("persist logs: %v", err)
		}
		e.Events.Emit(Event{Type: EventLogsUpdated, Payload: CacheUpdatedEvent{Count: len(*snap.Logs)}})
	}
	if snap.Labels != nil {
		e.ApplyLabels(*snap.Labels)
	}
	if snap.ScanConfigs != nil {
		e.ApplyScanConfigs(*snap.ScanConfigs)
	}
	if snap.AppConfig != nil {
		e.ApplyAppConfig(*snap.AppConfig)
	}
	if snap.ProductStructures != nil {
		e.stateMu.Lock()
		e.structures = *snap.ProductStructures
		e.stateMu.Unlock()
	}
}

// ApplyLog appends one submission to the local history.
func (e *Engine) ApplyLog(entry store.LogEntry) {
	e.stateMu.Lock()
	e.logs = append(e.logs, entry)
	count := len(e.logs)
	e.stateMu.Unlock()
	if err := e.db.AppendLog(entry); err != nil {
		log.Printf("persist log entry: %v", err)
	}
	e.Events.Emit(Event{Type: EventLogsUpdated, Payload: CacheUpdatedEvent{Count: count}})
}

// ApplyPreset upserts one preset and returns it with its id assigned.
func (e *Engine) ApplyPreset(p store.ProductPreset) store.ProductPreset {
	applied := e.presets.Upsert(p)
	if err := e.db.UpsertPreset(applied); err != nil {
		log.Printf("persist preset %s: %v", applied.ID, err)
	}
	e.Events.Emit(Event{Type: EventPresetsUpdated, Payload: CacheUpdatedEvent{Count: len(e.presets.All())}})
	return applied
}

// ApplyMachines replaces the machine list.
func (e *Engine) ApplyMachines(machines []store.Machine) {
	e.stateMu.Lock()
	e.machines = machines
	e.stateMu.Unlock()
	if err := e.db.ReplaceMachines(machines); err != nil {
		log.Printf("persist machines: %v", err)
	}
	e.Events.Emit(Event{Type: EventMachinesUpdated, Payload: CacheUpdatedEvent{Count: len(machines)}})
}

// ApplyLabels replaces the field label dictionary wholesale. Labels absent
// from the new set fall back to the built-in defaults at display time.
func (e *Engine) ApplyLabels(labels map[string]string) {
	e.stateMu.Lock()
	e.labels = labels
	e.stateMu.Unlock()
	if err := e.db.ReplaceLabels(labels); err != nil {
		log.Printf("persist labels: %v", err)
	}
	e.Events.Emit(Event{Type: EventLabelsUpdated, Payload: CacheUpdatedEvent{Count: len(labels)}})
}

// ApplyScanConfigs replaces the scan configurations.
func (e *Engine) ApplyScanConfigs(configs []store.ScanConfig) {
	e.stateMu.Lock()
	e.scanConfigs = configs
	e.stateMu.Unlock()
	if err := e.db.ReplaceScanConfigs(configs); err != nil {
		log.Printf("persist scan configs: %v", err)
	}
	e.Events.Emit(Event{Type: EventScanConfigsUpdated, Payload: CacheUpdatedEvent{Count: len(configs)}})
}

// ApplyAppConfig replaces the remote-owned app configuration block.
func (e *Engine) ApplyAppConfig(cfg store.AppConfig) {
	e.stateMu.Lock()
	e.appConfig = cfg
	e.stateMu.Unlock()
	if err := e.db.ReplaceAppConfig(cfg); err != nil {
		log.Printf("persist app config: %v", err)
	}
	e.Events.Emit(Event{Type: EventAppConfigUpdated, Payload: CacheUpdatedEvent{}})
}

// Machines returns a copy of the machine list.
func (e *Engine) Machines() []store.Machine {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	out := make([]store.Machine, len(e.machines))
	copy(out, e.machines)
	return out
}

// MachineByID looks up one machine.
func (e *Engine) MachineByID(id string) (store.Machine, bool) {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	for _, m := range e.machines {
		if m.ID == id {
			return m, true
		}
	}
	return store.Machine{}, false
}

// Logs returns a copy of the submission history.
func (e *Engine) Logs() []store.LogEntry {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	out := make([]store.LogEntry, len(e.logs))
	copy(out, e.logs)
	return out
}

// Labels returns a copy of the field label dictionary.
func (e *Engine) Labels() map[string]string {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	out := make(map[string]string, len(e.labels))
	for k, v := range e.labels {
		out[k] = v
	}
	return out
}

// ScanConfigs returns all scan configurations.
func (e *Engine) ScanConfigs() []store.ScanConfig {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	out := make([]store.ScanConfig, len(e.scanConfigs))
	copy(out, e.scanConfigs)
	return out
}

// ScanConfigFor returns the scan configuration for a machine, if any.
func (e *Engine) ScanConfigFor(machineID string) (store.ScanConfig, bool) {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	for _, sc := range e.scanConfigs {
		if sc.MachineID == machineID {
			return sc, true
		}
	}
	return store.ScanConfig{}, false
}

// AppConfig returns the remote-owned app configuration block.
func (e *Engine) AppConfig() store.AppConfig {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.appConfig
}

// ProductStructures returns the product and structure dropdown options.
func (e *Engine) ProductStructures() remote.ProductStructures {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.structures
}
