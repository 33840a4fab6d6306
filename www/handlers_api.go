package www

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"capstation/deviation"
	"capstation/remote"
	"capstation/schema"
	"capstation/store"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// syncErrString flattens a push error for the response body. Transport
// failures ride along with the applied result instead of failing the request.
func syncErrString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// --- Auth ---

func (h *Handlers) apiLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.engine.VerifyUser(r.Context(), req.Username, req.Password)
	if err != nil {
		var ae *remote.AuthError
		if errors.As(err, &ae) {
			writeError(w, http.StatusUnauthorized, ae.Error())
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	h.sessions.setUser(w, r, user.Username)
	writeJSON(w, user)
}

func (h *Handlers) apiLogout(w http.ResponseWriter, r *http.Request) {
	h.sessions.clear(w, r)
	writeJSON(w, map[string]string{"status": "ok"})
}

// --- State ---

func (h *Handlers) apiState(w http.ResponseWriter, r *http.Request) {
	username, _ := h.sessions.getUser(r)
	selected, _ := h.engine.SelectedMachine()

	writeJSON(w, map[string]interface{}{
		"machines":         h.engine.Machines(),
		"selectedMachine":  selected,
		"selectedPresetId": h.selectedPreset(),
		"labels":           h.engine.Labels(),
		"structures":       h.engine.ProductStructures(),
		"sessions":         h.engine.CaptureStates(),
		"refreshing":       h.engine.Refreshing(),
		"vaultUnlocked":    h.engine.VaultUnlocked(),
		"username":         username,
	})
}

func (h *Handlers) apiListMachines(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.engine.Machines())
}

func (h *Handlers) apiSelectMachine(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MachineID string `json:"machineId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	m, err := h.engine.SelectMachine(req.MachineID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.setSelectedPreset("")
	writeJSON(w, m)
}

// --- Presets ---

func (h *Handlers) apiListPresets(w http.ResponseWriter, r *http.Request) {
	presets, total := h.engine.Presets(r.URL.Query().Get("q"))
	if presets == nil {
		presets = []store.ProductPreset{}
	}
	writeJSON(w, map[string]interface{}{
		"presets": presets,
		"total":   total,
	})
}

func (h *Handlers) apiCopyPreset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "presetID")
	copied, result, err := h.engine.CopyPreset(r.Context(), id)
	if copied.ID == "" {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, map[string]interface{}{
		"preset":    copied,
		"applied":   result.Applied,
		"syncError": syncErrString(err),
	})
}

func (h *Handlers) apiSaveStandard(w http.ResponseWriter, r *http.Request) {
	var p store.ProductPreset
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if p.ProductName == "" {
		writeError(w, http.StatusBadRequest, "product name is required")
		return
	}

	applied, result, err := h.engine.SaveStandard(r.Context(), p)
	writeJSON(w, map[string]interface{}{
		"preset":    applied,
		"applied":   result.Applied,
		"syncError": syncErrString(err),
	})
}

func (h *Handlers) apiSelectPreset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PresetID string `json:"presetId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.PresetID != "" {
		if _, ok := h.engine.PresetByID(req.PresetID); !ok {
			writeError(w, http.StatusNotFound, "unknown preset")
			return
		}
	}
	h.setSelectedPreset(req.PresetID)
	writeJSON(w, map[string]string{"selectedPresetId": req.PresetID})
}

// --- Capture ---

func (h *Handlers) apiCaptureZone(w http.ResponseWriter, r *http.Request) {
	zoneID := chi.URLParam(r, "zoneID")
	var req struct {
		ImageRef    string `json:"imageRef"`
		ImageBase64 string `json:"imageBase64"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	state, err := h.engine.BeginCapture(zoneID, req.ImageRef)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ImageBase64 != "" {
		if err := h.engine.AnalyzeZone(r.Context(), zoneID, req.ImageBase64); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		state = h.engine.CaptureState(zoneID)
	}
	writeJSON(w, state)
}

func (h *Handlers) apiZoneSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.engine.CaptureState(chi.URLParam(r, "zoneID")))
}

// --- Deviations ---

func (h *Handlers) evaluateSelected() (map[string]deviation.Result, string) {
	id := h.selectedPreset()
	if id == "" {
		return nil, ""
	}
	p, ok := h.engine.PresetByID(id)
	if !ok {
		return nil, ""
	}
	return h.engine.Evaluate(p), id
}

func (h *Handlers) apiDeviations(w http.ResponseWriter, r *http.Request) {
	results, presetID := h.evaluateSelected()
	writeJSON(w, map[string]interface{}{
		"presetId": presetID,
		"results":  results,
	})
}

func (h *Handlers) apiZoneDeviations(w http.ResponseWriter, r *http.Request) {
	zoneID := chi.URLParam(r, "zoneID")
	results, presetID := h.evaluateSelected()

	state := h.engine.CaptureState(zoneID)
	zoneResults := make(map[string]deviation.Result, len(state.Values))
	for key := range state.Values {
		if res, ok := results[key]; ok {
			zoneResults[key] = res
		}
	}
	writeJSON(w, map[string]interface{}{
		"presetId": presetID,
		"results":  zoneResults,
	})
}

// --- Scan ---

func (h *Handlers) apiScanStandard(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ImageBase64 string `json:"imageBase64"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ImageBase64 == "" {
		writeError(w, http.StatusBadRequest, "image is required")
		return
	}

	draft, err := h.engine.ScanStandard(r.Context(), req.ImageBase64)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, draft)
}

// --- Submission ---

func (h *Handlers) apiSubmitLog(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Product         string `json:"product"`
		Structure       string `json:"structure"`
		ProductionOrder string `json:"productionOrder"`
		PresetID        string `json:"presetId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var std store.ProductPreset
	presetID := req.PresetID
	if presetID == "" {
		presetID = h.selectedPreset()
	}
	if presetID != "" {
		std, _ = h.engine.PresetByID(presetID)
	}

	uploadedBy, _ := h.sessions.getUser(r)
	entry, result, err := h.engine.SubmitLog(r.Context(), req.Product, req.Structure, req.ProductionOrder, uploadedBy, std)
	if err != nil {
		var ve *remote.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Error())
			return
		}
		// Transport failure: the entry is already recorded locally.
		writeJSON(w, map[string]interface{}{
			"entry":     entry,
			"applied":   result.Applied,
			"syncError": err.Error(),
		})
		return
	}
	writeJSON(w, map[string]interface{}{
		"entry":   entry,
		"applied": result.Applied,
	})
}

func (h *Handlers) apiListLogs(w http.ResponseWriter, r *http.Request) {
	logs := h.engine.Logs()
	if logs == nil {
		logs = []store.LogEntry{}
	}
	writeJSON(w, logs)
}

// --- Sync ---

func (h *Handlers) apiRefresh(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Refresh(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

// --- Vault ---

func (h *Handlers) apiVaultVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Passcode string `json:"passcode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !h.engine.VaultUnlock(req.Passcode) {
		writeError(w, http.StatusUnauthorized, "incorrect passcode")
		return
	}
	writeJSON(w, map[string]bool{"unlocked": true})
}

func (h *Handlers) apiVaultLock(w http.ResponseWriter, r *http.Request) {
	h.engine.VaultLock()
	writeJSON(w, map[string]bool{"unlocked": false})
}

func (h *Handlers) apiSetVaultPasscode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Passcode string `json:"passcode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Passcode == "" {
		writeError(w, http.StatusBadRequest, "passcode is required")
		return
	}
	if err := h.engine.SetVaultPasscode(req.Passcode); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

// --- Settings mutations ---

func (h *Handlers) apiSaveMachines(w http.ResponseWriter, r *http.Request) {
	var machines []store.Machine
	if err := json.NewDecoder(r.Body).Decode(&machines); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	for i := range machines {
		if machines[i].ID == "" {
			machines[i].ID = uuid.New().String()
		}
		for j := range machines[i].Zones {
			z := &machines[i].Zones[j]
			if z.ID == "" {
				z.ID = uuid.New().String()
			}
			if z.Schema != "" {
				if _, err := schema.Parse(z.Schema); err != nil {
					writeError(w, http.StatusBadRequest,
						fmt.Sprintf("zone %q: %v", z.Name, err))
					return
				}
			}
		}
	}

	result, err := h.engine.SaveMachines(r.Context(), machines)
	writeJSON(w, map[string]interface{}{
		"machines":  machines,
		"applied":   result.Applied,
		"syncError": syncErrString(err),
	})
}

func (h *Handlers) apiSaveLabels(w http.ResponseWriter, r *http.Request) {
	var labels map[string]string
	if err := json.NewDecoder(r.Body).Decode(&labels); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.engine.SaveLabels(r.Context(), labels)
	writeJSON(w, map[string]interface{}{
		"applied":   result.Applied,
		"syncError": syncErrString(err),
	})
}

func (h *Handlers) apiListScanConfigs(w http.ResponseWriter, r *http.Request) {
	configs := h.engine.ScanConfigs()
	if configs == nil {
		configs = []store.ScanConfig{}
	}
	writeJSON(w, configs)
}

func (h *Handlers) apiSaveScanConfigs(w http.ResponseWriter, r *http.Request) {
	var configs []store.ScanConfig
	if err := json.NewDecoder(r.Body).Decode(&configs); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	for _, sc := range configs {
		if sc.Schema == "" {
			continue
		}
		if _, err := schema.Parse(sc.Schema); err != nil {
			writeError(w, http.StatusBadRequest,
				fmt.Sprintf("scan config for machine %s: %v", sc.MachineID, err))
			return
		}
	}

	result, err := h.engine.SaveScanConfigs(r.Context(), configs)
	writeJSON(w, map[string]interface{}{
		"applied":   result.Applied,
		"syncError": syncErrString(err),
	})
}

func (h *Handlers) apiGetAppConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.engine.AppConfig())
}

func (h *Handlers) apiSaveAppConfig(w http.ResponseWriter, r *http.Request) {
	var cfg store.AppConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	for i := range cfg.APIKeys {
		if cfg.APIKeys[i].ID == "" {
			cfg.APIKeys[i].ID = uuid.New().String()
		}
	}
	for i := range cfg.ScriptURLs {
		if cfg.ScriptURLs[i].ID == "" {
			cfg.ScriptURLs[i].ID = uuid.New().String()
		}
	}
	for i := range cfg.Models {
		if cfg.Models[i].ID == "" {
			cfg.Models[i].ID = uuid.New().String()
		}
	}

	result, err := h.engine.SaveAppConfig(r.Context(), cfg)
	writeJSON(w, map[string]interface{}{
		"config":    cfg,
		"applied":   result.Applied,
		"syncError": syncErrString(err),
	})
}

func (h *Handlers) apiSelectScriptURL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.engine.SelectScriptURL(req.ID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (h *Handlers) apiSelectAPIKey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.engine.SelectAPIKey(req.ID)
	writeJSON(w, map[string]string{"status": "ok"})
}

func (h *Handlers) apiSelectModel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.engine.SelectModel(req.ID)
	writeJSON(w, map[string]string{"status": "ok"})
}
