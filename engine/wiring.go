package engine

// wireEventHandlers sets up the internal event chain:
// MachinesUpdated → drop the selection if its machine disappeared
func (e *Engine) wireEventHandlers() {
	e.Events.Subscribe(func(evt Event) {
		e.handleMachinesUpdated()
	}, EventMachinesUpdated)
}

// handleMachinesUpdated clears the active machine when a machine-list
// replacement no longer contains it. The capture sessions go with it; their
// zones no longer exist.
func (e *Engine) handleMachinesUpdated() {
	e.stateMu.RLock()
	id := e.selectedID
	e.stateMu.RUnlock()
	if id == "" {
		return
	}
	if _, ok := e.MachineByID(id); ok {
		return
	}
	e.logFn("selected machine %s removed by machine list update", id)
	e.clearSelection()
}
