package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"capstation/capture"
	"capstation/config"
	"capstation/deviation"
	"capstation/extract"
	"capstation/preset"
	"capstation/remote"
	"capstation/schema"
	"capstation/store"
	"capstation/vault"
)

// LogFunc is the logging callback signature.
type LogFunc func(format string, args ...interface{})

// Engine centralizes all business logic and orchestrates subsystems.
type Engine struct {
	cfg        *config.Config
	configPath string
	db         *store.DB
	logFn      LogFunc
	debugFn    LogFunc

	client  *remote.Client
	gateway *remote.Gateway

	presets    *preset.Store
	captureMgr *capture.Manager
	extractor  extract.Extractor
	gate       *vault.Gate

	stateMu     sync.RWMutex
	machines    []store.Machine
	logs        []store.LogEntry
	labels      map[string]string
	scanConfigs []store.ScanConfig
	structures  remote.ProductStructures
	appConfig   store.AppConfig
	selectedID  string

	Events   *EventBus
	stopChan chan struct{}
}

// Config holds the parameters needed to create an Engine.
type Config struct {
	AppConfig  *config.Config
	ConfigPath string
	DB         *store.DB
	Extractor  extract.Extractor
	LogFunc    LogFunc
	Debug      bool
}

// New creates a new Engine. Call Start() to load caches and wire subsystems.
func New(c Config) *Engine {
	logFn := c.LogFunc
	if logFn == nil {
		logFn = func(string, ...interface{}) {}
	}
	debugFn := LogFunc(func(string, ...interface{}) {})
	if c.Debug {
		debugFn = logFn
	}

	e := &Engine{
		cfg:        c.AppConfig,
		configPath: c.ConfigPath,
		db:         c.DB,
		logFn:      logFn,
		debugFn:    debugFn,
		presets:    preset.NewStore(),
		labels:     schema.DefaultLabels(),
		Events:     NewEventBus(),
		stopChan:   make(chan struct{}),
	}

	e.extractor = c.Extractor
	if e.extractor == nil {
		e.extractor = extract.NewClient()
	}
	e.captureMgr = capture.NewManager(e.extractor, &sessionEmitter{bus: e.Events})
	e.client = remote.NewClient(c.AppConfig.Remote.Endpoint)
	e.gateway = remote.NewGateway(e.client, e, &syncEmitter{bus: e.Events})
	e.gate = vault.NewGate(vault.BcryptVerifier{Hash: c.AppConfig.Vault.PasscodeHash})
	return e
}

// Start loads the persisted caches, restores operator selections, wires event
// handlers, and begins the periodic remote refresh.
func (e *Engine) Start() {
	e.loadCaches()
	e.restoreSelections()
	e.wireEventHandlers()

	go e.refreshLoop()

	e.logFn("Engine started: station=%s machines=%d presets=%d",
		e.cfg.StationID, len(e.Machines()), len(e.presets.All()))
}

// Stop shuts down the refresh loop.
func (e *Engine) Stop() {
	select {
	case <-e.stopChan:
	default:
		close(e.stopChan)
	}
	e.logFn("Engine stopped")
}

func (e *Engine) loadCaches() {
	if machines, err := e.db.ListMachines(); err != nil {
		log.Printf("load machines: %v", err)
	} else {
		e.machines = machines
	}
	if presets, err := e.db.ListPresets(); err != nil {
		log.Printf("load presets: %v", err)
	} else {
		e.presets.Replace(presets)
	}
	if logs, err := e.db.ListLogs(); err != nil {
		log.Printf("load logs: %v", err)
	} else {
		e.logs = logs
	}
	if labels, err := e.db.ListLabels(); err != nil {
		log.Printf("load labels: %v", err)
	} else if len(labels) > 0 {
		e.labels = labels
	}
	if configs, err := e.db.ListScanConfigs(); err != nil {
		log.Printf("load scan configs: %v", err)
	} else {
		e.scanConfigs = configs
	}
	if cfg, err := e.db.GetAppConfig(); err != nil {
		log.Printf("load app config: %v", err)
	} else {
		e.appConfig = cfg
	}
}

func (e *Engine) restoreSelections() {
	if id := e.cfg.Selected.MachineID; id != "" {
		if _, ok := e.MachineByID(id); ok {
			e.selectedID = id
		}
	}
	if id := e.cfg.Selected.ScriptURLID; id != "" {
		for _, su := range e.appConfig.ScriptURLs {
			if su.ID == id {
				e.client.SetEndpoint(su.URL)
				break
			}
		}
	}
}

// refreshLoop runs one initial snapshot read and then refreshes on the
// configured interval until Stop.
func (e *Engine) refreshLoop() {
	interval := e.cfg.Remote.RefreshInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	if err := e.gateway.Refresh(context.Background()); err != nil {
		log.Printf("initial sync: %v", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := e.gateway.Refresh(context.Background()); err != nil {
				e.debugFn("periodic sync: %v", err)
			}
		case <-e.stopChan:
			return
		}
	}
}

// Refresh triggers one snapshot read. Suppressed without error when a read is
// already in flight.
func (e *Engine) Refresh(ctx context.Context) error {
	return e.gateway.Refresh(ctx)
}

// Refreshing reports whether a snapshot read is in flight.
func (e *Engine) Refreshing() bool { return e.gateway.Refreshing() }

// SelectMachine switches the active machine. The switch is a hard reset:
// every capture session is discarded, including in-flight analyses.
func (e *Engine) SelectMachine(machineID string) (store.Machine, error) {
	m, ok := e.MachineByID(machineID)
	if !ok {
		return store.Machine{}, fmt.Errorf("unknown machine %q", machineID)
	}

	e.stateMu.Lock()
	e.selectedID = machineID
	e.stateMu.Unlock()
	e.captureMgr.ResetAll()

	e.cfg.Lock()
	e.cfg.Selected.MachineID = machineID
	e.cfg.Unlock()
	e.saveConfig()

	e.Events.Emit(Event{Type: EventMachineSelected, Payload: MachineSelectedEvent{
		MachineID: m.ID, MachineName: m.Name,
	}})
	return m, nil
}

// SelectedMachine returns the active machine, if one is selected.
func (e *Engine) SelectedMachine() (store.Machine, bool) {
	e.stateMu.RLock()
	id := e.selectedID
	e.stateMu.RUnlock()
	if id == "" {
		return store.Machine{}, false
	}
	return e.MachineByID(id)
}

// clearSelection drops the active machine and its sessions. Used when a
// snapshot removes the machine the operator was working on.
func (e *Engine) clearSelection() {
	e.stateMu.Lock()
	e.selectedID = ""
	e.stateMu.Unlock()
	e.captureMgr.ResetAll()

	e.cfg.Lock()
	e.cfg.Selected.MachineID = ""
	e.cfg.Unlock()
	e.saveConfig()

	e.Events.Emit(Event{Type: EventMachineSelected, Payload: MachineSelectedEvent{}})
}

func (e *Engine) saveConfig() {
	if e.configPath == "" {
		return
	}
	if err := e.cfg.Save(e.configPath); err != nil {
		log.Printf("save config: %v", err)
	}
}

// zoneByID finds a zone on the active machine.
func (e *Engine) zoneByID(zoneID string) (store.ZoneDefinition, error) {
	m, ok := e.SelectedMachine()
	if !ok {
		return store.ZoneDefinition{}, fmt.Errorf("no machine selected")
	}
	for _, z := range m.Zones {
		if z.ID == zoneID {
			return z, nil
		}
	}
	return store.ZoneDefinition{}, fmt.Errorf("machine %s has no zone %q", m.ID, zoneID)
}

// BeginCapture marks a zone as holding a captured image awaiting analysis.
func (e *Engine) BeginCapture(zoneID, imageRef string) (capture.State, error) {
	if _, err := e.zoneByID(zoneID); err != nil {
		return capture.State{}, err
	}
	return e.captureMgr.BeginCapture(zoneID, imageRef), nil
}

// AnalyzeZone hands a zone's captured image to the extraction service. The
// credential and model come from the operator's current selections. The
// analysis outlives the caller, so it runs detached from the caller's context.
func (e *Engine) AnalyzeZone(ctx context.Context, zoneID, imageBase64 string) error {
	zone, err := e.zoneByID(zoneID)
	if err != nil {
		return err
	}
	apiKey, model, err := e.extractionSettings()
	if err != nil {
		// The zone is already capturing; surface the failure on the
		// session instead of leaving it stuck mid-capture.
		e.captureMgr.Fail(zoneID, err.Error())
		return err
	}
	return e.captureMgr.Analyze(context.Background(), zone, imageBase64, model, apiKey)
}

// extractionSettings resolves the selected API key and model from the
// remote-owned app config.
func (e *Engine) extractionSettings() (apiKey, model string, err error) {
	e.stateMu.RLock()
	cfg := e.appConfig
	e.stateMu.RUnlock()

	e.cfg.Lock()
	keyID := e.cfg.Selected.APIKeyID
	modelID := e.cfg.Selected.ModelID
	e.cfg.Unlock()

	for _, k := range cfg.APIKeys {
		if keyID == "" || k.ID == keyID {
			apiKey = k.Key
			break
		}
	}
	for _, m := range cfg.Models {
		if modelID == "" || m.ID == modelID {
			model = m.Name
			break
		}
	}
	if apiKey == "" {
		return "", "", fmt.Errorf("no extraction API key configured")
	}
	if model == "" {
		return "", "", fmt.Errorf("no extraction model configured")
	}
	return apiKey, model, nil
}

// CaptureStates returns every zone session snapshot.
func (e *Engine) CaptureStates() map[string]capture.State {
	return e.captureMgr.States()
}

// CaptureState returns one zone's session snapshot.
func (e *Engine) CaptureState(zoneID string) capture.State {
	return e.captureMgr.State(zoneID)
}

// ResetCapture discards every capture session.
func (e *Engine) ResetCapture() {
	e.captureMgr.ResetAll()
}

// CapturedFields merges the Ready values of every zone into one flat field
// map. Later zones win on key collision; zone order follows the machine's
// zone list so the outcome is deterministic.
func (e *Engine) CapturedFields() deviation.FieldMap {
	byZone := e.captureMgr.CapturedValues()
	out := deviation.FieldMap{}
	m, ok := e.SelectedMachine()
	if !ok {
		return out
	}
	for _, z := range m.Zones {
		for k, v := range byZone[z.ID] {
			out[k] = v
		}
	}
	return out
}

// ScanStandard reads a standards sheet for the active machine and returns an
// unsaved preset draft built from the extracted fields. The draft is not
// applied anywhere until the operator saves it.
func (e *Engine) ScanStandard(ctx context.Context, imageBase64 string) (store.ProductPreset, error) {
	m, ok := e.SelectedMachine()
	if !ok {
		return store.ProductPreset{}, fmt.Errorf("no machine selected")
	}
	sc, ok := e.ScanConfigFor(m.ID)
	if !ok {
		return store.ProductPreset{}, fmt.Errorf("machine %s has no scan configuration", m.ID)
	}
	apiKey, model, err := e.extractionSettings()
	if err != nil {
		return store.ProductPreset{}, err
	}

	values, err := e.extractor.Analyze(ctx, extract.Request{
		ImageBase64: imageBase64,
		Prompt:      sc.Prompt,
		Schema:      sc.Schema,
		Model:       model,
		APIKey:      apiKey,
	})
	if err != nil {
		return store.ProductPreset{}, err
	}

	draft := store.ProductPreset{
		MachineID:  m.ID,
		Data:       deviation.FieldMap{},
		Tolerances: deviation.FieldMap{},
	}
	for key, v := range values {
		switch t := v.(type) {
		case float64:
			draft.Data[key] = t
		case map[string]interface{}:
			// Object-valued fields carry a standard and its tolerance.
			if std, ok := t["std"].(float64); ok {
				draft.Data[key] = std
			}
			if tol, ok := t["tol"].(float64); ok {
				draft.Tolerances[key] = tol
			}
		}
	}
	if len(draft.Tolerances) == 0 {
		draft.Tolerances = nil
	}
	if v, ok := values["productName"].(string); ok {
		draft.ProductName = v
	}
	if v, ok := values["structure"].(string); ok {
		draft.Structure = v
	}
	return draft, nil
}

// Presets returns the display list for the active machine and the total
// match count behind it. The list is always capped at the display limit;
// total carries the size of the uncapped match set.
func (e *Engine) Presets(query string) ([]store.ProductPreset, int) {
	m, ok := e.SelectedMachine()
	if !ok {
		return nil, 0
	}
	matches := e.presets.ByMachine(m.ID)
	if query != "" {
		matches = e.presets.Search(m.ID, query)
	}
	return preset.TopN(matches, preset.DisplayCap), len(matches)
}

// PresetByID looks up one preset.
func (e *Engine) PresetByID(id string) (store.ProductPreset, bool) {
	return e.presets.Get(id)
}

// CopyPreset duplicates a preset under a new id and saves the copy through
// the write path. The copy's product name gains a " (Copy)" suffix so the
// operator can tell the two apart before editing.
func (e *Engine) CopyPreset(ctx context.Context, id string) (store.ProductPreset, remote.PushResult, error) {
	src, ok := e.presets.Get(id)
	if !ok {
		return store.ProductPreset{}, remote.PushResult{}, fmt.Errorf("preset %s not found", id)
	}
	dup := src
	dup.ID = ""
	dup.ProductName = src.ProductName + " (Copy)"
	dup.Data = make(deviation.FieldMap, len(src.Data))
	for k, v := range src.Data {
		dup.Data[k] = v
	}
	if src.Tolerances != nil {
		dup.Tolerances = make(deviation.FieldMap, len(src.Tolerances))
		for k, v := range src.Tolerances {
			dup.Tolerances[k] = v
		}
	}
	return e.gateway.SaveStandard(ctx, dup)
}

// Evaluate scores the merged captured fields against a preset's standard.
func (e *Engine) Evaluate(p store.ProductPreset) map[string]deviation.Result {
	return deviation.Evaluate(e.CapturedFields(), p.Data, p.Tolerances)
}

// SubmitLog assembles a log entry from the captured fields and the chosen
// standard, records it locally, and dispatches it to the remote store. A
// successful dispatch clears the capture sessions for the next product run.
func (e *Engine) SubmitLog(ctx context.Context, product, structure, productionOrder, uploadedBy string, std store.ProductPreset) (store.LogEntry, remote.PushResult, error) {
	m, _ := e.SelectedMachine()

	entry := store.LogEntry{
		Timestamp:       time.Now().Format("02/01/06 15:04:05"),
		MachineID:       m.ID,
		MachineName:     m.Name,
		ProductionOrder: productionOrder,
		Product:         product,
		Structure:       structure,
		ProductStd:      std.ProductName,
		StructureStd:    std.Structure,
		UploadedBy:      uploadedBy,
		Fields:          e.CapturedFields(),
	}

	if len(std.Data) > 0 {
		entry.Std = deviation.FieldMap{}
		entry.Diff = deviation.FieldMap{}
		for key, res := range deviation.Evaluate(entry.Fields, std.Data, std.Tolerances) {
			if !res.HasStandard {
				continue
			}
			entry.Std[key] = res.Std
			entry.Diff[key] = res.Diff
		}
	}

	result, err := e.gateway.SubmitLog(ctx, entry)
	if err == nil {
		e.captureMgr.ResetAll()
	}
	return entry, result, err
}

// SaveStandard saves a preset through the write path. A preset without a
// machine is pinned to the active one.
func (e *Engine) SaveStandard(ctx context.Context, p store.ProductPreset) (store.ProductPreset, remote.PushResult, error) {
	if p.MachineID == "" {
		if m, ok := e.SelectedMachine(); ok {
			p.MachineID = m.ID
		}
	}
	return e.gateway.SaveStandard(ctx, p)
}

// SaveMachines replaces the machine list through the write path.
func (e *Engine) SaveMachines(ctx context.Context, machines []store.Machine) (remote.PushResult, error) {
	return e.gateway.SaveMachines(ctx, machines)
}

// SaveLabels replaces the label dictionary through the write path.
func (e *Engine) SaveLabels(ctx context.Context, labels map[string]string) (remote.PushResult, error) {
	return e.gateway.SaveLabels(ctx, labels)
}

// SaveScanConfigs replaces the scan configurations through the write path.
func (e *Engine) SaveScanConfigs(ctx context.Context, configs []store.ScanConfig) (remote.PushResult, error) {
	return e.gateway.SaveScanConfigs(ctx, configs)
}

// SaveAppConfig replaces the app config block through the write path.
func (e *Engine) SaveAppConfig(ctx context.Context, cfg store.AppConfig) (remote.PushResult, error) {
	return e.gateway.SaveAppConfig(ctx, cfg)
}

// LabelFor resolves the display label for a field key.
func (e *Engine) LabelFor(key string) string {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return schema.LabelFor(key, e.labels)
}

// VerifyUser checks operator credentials against the remote store.
func (e *Engine) VerifyUser(ctx context.Context, username, password string) (*store.User, error) {
	return e.client.VerifyUser(ctx, username, password)
}

// VaultUnlock checks the settings passcode and unlocks the settings area on
// success.
func (e *Engine) VaultUnlock(pin string) bool {
	ok := e.gate.Verify(pin)
	if ok {
		e.Events.Emit(Event{Type: EventVaultStateChanged, Payload: VaultStateChangedEvent{Unlocked: true}})
	}
	return ok
}

// VaultUnlocked reports whether the settings area is open.
func (e *Engine) VaultUnlocked() bool { return e.gate.Unlocked() }

// VaultLock relocks the settings area.
func (e *Engine) VaultLock() {
	e.gate.Reset()
	e.Events.Emit(Event{Type: EventVaultStateChanged, Payload: VaultStateChangedEvent{Unlocked: false}})
}

// SetVaultPasscode hashes and persists a new settings passcode.
func (e *Engine) SetVaultPasscode(pin string) error {
	hash, err := vault.HashPasscode(pin)
	if err != nil {
		return err
	}
	e.cfg.Lock()
	e.cfg.Vault.PasscodeHash = hash
	e.cfg.Unlock()
	e.saveConfig()
	e.gate.SetVerifier(vault.BcryptVerifier{Hash: hash})
	return nil
}

// SelectScriptURL switches the remote endpoint to a named script URL from the
// app config.
func (e *Engine) SelectScriptURL(id string) error {
	e.stateMu.RLock()
	cfg := e.appConfig
	e.stateMu.RUnlock()
	for _, su := range cfg.ScriptURLs {
		if su.ID == id {
			e.client.SetEndpoint(su.URL)
			e.cfg.Lock()
			e.cfg.Selected.ScriptURLID = id
			e.cfg.Unlock()
			e.saveConfig()
			return nil
		}
	}
	return fmt.Errorf("unknown script url %q", id)
}

// SelectAPIKey persists the extraction credential choice.
func (e *Engine) SelectAPIKey(id string) {
	e.cfg.Lock()
	e.cfg.Selected.APIKeyID = id
	e.cfg.Unlock()
	e.saveConfig()
}

// SelectModel persists the extraction model choice.
func (e *Engine) SelectModel(id string) {
	e.cfg.Lock()
	e.cfg.Selected.ModelID = id
	e.cfg.Unlock()
	e.saveConfig()
}

// DB returns the database handle.
func (e *Engine) DB() *store.DB { return e.db }

// AppSettings returns the station's local config.
func (e *Engine) AppSettings() *config.Config { return e.cfg }

// ConfigPath returns the config file path.
func (e *Engine) ConfigPath() string { return e.configPath }
