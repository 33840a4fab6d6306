package remote

import (
	"context"
	"log"
	"sync/atomic"

	"capstation/store"
)

// CacheApplier is the single writer for the local caches. The gateway applies
// snapshot replacements and optimistic mutations through it; nothing else
// writes machines, presets or logs.
type CacheApplier interface {
	ApplySnapshot(snap Snapshot)
	ApplyLog(entry store.LogEntry)
	ApplyPreset(p store.ProductPreset) store.ProductPreset
	ApplyMachines(machines []store.Machine)
	ApplyLabels(labels map[string]string)
	ApplyScanConfigs(configs []store.ScanConfig)
	ApplyAppConfig(cfg store.AppConfig)
}

// EventEmitter announces sync lifecycle events.
type EventEmitter interface {
	EmitSyncStarted()
	EmitSyncCompleted()
	EmitSyncFailed(msg string)
	EmitLogSubmitted(entry store.LogEntry)
}

// Gateway coordinates the read and write paths against the remote store.
type Gateway struct {
	client     *Client
	applier    CacheApplier
	emitter    EventEmitter
	refreshing atomic.Bool
}

// NewGateway creates a sync gateway.
func NewGateway(client *Client, applier CacheApplier, emitter EventEmitter) *Gateway {
	return &Gateway{client: client, applier: applier, emitter: emitter}
}

// Client returns the underlying remote client.
func (g *Gateway) Client() *Client { return g.client }

// Refreshing reports whether a snapshot read is in flight.
func (g *Gateway) Refreshing() bool { return g.refreshing.Load() }

// Refresh issues one snapshot read and replaces the caches on success. A read
// already in progress suppresses this trigger; concurrent triggers from
// independent sources are not excluded, only same-source re-entry. A failed
// read leaves every prior cache intact.
func (g *Gateway) Refresh(ctx context.Context) error {
	if !g.refreshing.CompareAndSwap(false, true) {
		return nil
	}
	defer g.refreshing.Store(false)

	g.emitter.EmitSyncStarted()
	snap, err := g.client.FetchAll(ctx)
	if err != nil {
		log.Printf("snapshot read: %v", err)
		g.emitter.EmitSyncFailed(err.Error())
		return err
	}
	g.applier.ApplySnapshot(snap)
	g.emitter.EmitSyncCompleted()
	return nil
}

// SubmitLog validates, optimistically records, and dispatches one log entry,
// then schedules a reconciling snapshot read. The read is issued after the
// write is dispatched, not after the remote has processed it; the
// reconciliation may briefly race the write's effect becoming visible.
func (g *Gateway) SubmitLog(ctx context.Context, entry store.LogEntry) (PushResult, error) {
	if entry.MachineID == "" {
		return PushResult{}, &ValidationError{Msg: "no machine selected"}
	}
	if entry.Product == "" {
		return PushResult{}, &ValidationError{Msg: "product name is required"}
	}
	if entry.Structure == "" {
		return PushResult{}, &ValidationError{Msg: "structure is required"}
	}
	if len(entry.Fields) == 0 {
		return PushResult{}, &ValidationError{Msg: "no captured values to submit"}
	}

	g.applier.ApplyLog(entry)
	g.emitter.EmitLogSubmitted(entry)

	result, err := g.client.Push(ctx, ActionSaveLog, entry)
	if err != nil {
		log.Printf("submit log: %v", err)
		g.emitter.EmitSyncFailed(err.Error())
	}

	// Reconcile with the remote's authoritative history. Runs regardless of
	// the push outcome; a failed push simply reconciles to the prior state.
	go g.Refresh(context.Background())

	return result, err
}

// SaveStandard applies a preset upsert locally and dispatches it.
func (g *Gateway) SaveStandard(ctx context.Context, p store.ProductPreset) (store.ProductPreset, PushResult, error) {
	applied := g.applier.ApplyPreset(p)
	result, err := g.client.Push(ctx, ActionSaveStandard, applied)
	if err != nil {
		log.Printf("save standard: %v", err)
		g.emitter.EmitSyncFailed(err.Error())
	}
	return applied, result, err
}

// SaveMachines replaces the machine list locally and dispatches it.
func (g *Gateway) SaveMachines(ctx context.Context, machines []store.Machine) (PushResult, error) {
	g.applier.ApplyMachines(machines)
	result, err := g.client.Push(ctx, ActionSaveMachines, map[string]interface{}{"machines": machines})
	if err != nil {
		log.Printf("save machines: %v", err)
		g.emitter.EmitSyncFailed(err.Error())
	}
	return result, err
}

// SaveLabels replaces the label dictionary locally and dispatches it.
func (g *Gateway) SaveLabels(ctx context.Context, labels map[string]string) (PushResult, error) {
	g.applier.ApplyLabels(labels)
	result, err := g.client.Push(ctx, ActionSaveLabels, map[string]interface{}{"labels": labels})
	if err != nil {
		log.Printf("save labels: %v", err)
		g.emitter.EmitSyncFailed(err.Error())
	}
	return result, err
}

// SaveScanConfigs replaces the scan configs locally and dispatches them.
func (g *Gateway) SaveScanConfigs(ctx context.Context, configs []store.ScanConfig) (PushResult, error) {
	g.applier.ApplyScanConfigs(configs)
	result, err := g.client.Push(ctx, ActionSaveScanConfigs, map[string]interface{}{"configs": configs})
	if err != nil {
		log.Printf("save scan configs: %v", err)
		g.emitter.EmitSyncFailed(err.Error())
	}
	return result, err
}

// SaveAppConfig replaces the app config block locally and dispatches it.
func (g *Gateway) SaveAppConfig(ctx context.Context, cfg store.AppConfig) (PushResult, error) {
	g.applier.ApplyAppConfig(cfg)
	result, err := g.client.Push(ctx, ActionSaveAppConfig, map[string]interface{}{"config": cfg})
	if err != nil {
		log.Printf("save app config: %v", err)
		g.emitter.EmitSyncFailed(err.Error())
	}
	return result, err
}
