// Package www exposes the station's HTTP API and SSE event stream.
package www

import (
	"net/http"
	"sync"

	"capstation/engine"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	engine   *engine.Engine
	sessions *sessionStore
	eventHub *EventHub

	mu               sync.Mutex
	selectedPresetID string
}

// NewRouter creates the chi router and returns it along with a stop function.
func NewRouter(eng *engine.Engine) (http.Handler, func()) {
	h := &Handlers{
		engine:   eng,
		sessions: newSessionStore(eng.AppSettings().Web.SessionSecret),
		eventHub: NewEventHub(),
	}

	h.eventHub.Start()
	detach := h.eventHub.SetupEngineListeners(eng)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	// SSE (no auth, shop floor surface)
	r.Get("/events", h.eventHub.HandleSSE)

	r.Route("/api", func(r chi.Router) {
		// Login/logout
		r.Post("/login", h.apiLogin)
		r.Post("/logout", h.apiLogout)

		// Shop floor surface (no auth required)
		r.Get("/state", h.apiState)
		r.Get("/machines", h.apiListMachines)
		r.Post("/machine/select", h.apiSelectMachine)
		r.Get("/presets", h.apiListPresets)
		r.Post("/presets", h.apiSaveStandard)
		r.Post("/presets/{presetID}/copy", h.apiCopyPreset)
		r.Post("/preset/select", h.apiSelectPreset)
		r.Post("/zones/{zoneID}/capture", h.apiCaptureZone)
		r.Get("/zones/{zoneID}/session", h.apiZoneSession)
		r.Get("/zones/{zoneID}/deviations", h.apiZoneDeviations)
		r.Get("/deviations", h.apiDeviations)
		r.Post("/scan", h.apiScanStandard)
		r.Post("/submit", h.apiSubmitLog)
		r.Get("/logs", h.apiListLogs)
		r.Post("/sync/refresh", h.apiRefresh)

		// Settings passcode
		r.Post("/vault/verify", h.apiVaultVerify)
		r.Post("/vault/lock", h.apiVaultLock)

		// Settings mutations (passcode-gated)
		r.Group(func(r chi.Router) {
			r.Use(h.vaultMiddleware)
			r.Post("/machines", h.apiSaveMachines)
			r.Post("/labels", h.apiSaveLabels)
			r.Get("/scan-configs", h.apiListScanConfigs)
			r.Post("/scan-configs", h.apiSaveScanConfigs)
			r.Get("/app-config", h.apiGetAppConfig)
			r.Post("/app-config", h.apiSaveAppConfig)
			r.Post("/vault/passcode", h.apiSetVaultPasscode)
			r.Post("/settings/script-url", h.apiSelectScriptURL)
			r.Post("/settings/api-key", h.apiSelectAPIKey)
			r.Post("/settings/model", h.apiSelectModel)
		})
	})

	return r, func() {
		detach()
		h.eventHub.Stop()
	}
}

// vaultMiddleware refuses settings mutations while the settings area is
// locked. The gate is all-or-nothing: one passcode opens everything.
func (h *Handlers) vaultMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.engine.VaultUnlocked() {
			writeError(w, http.StatusForbidden, "settings locked")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handlers) selectedPreset() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.selectedPresetID
}

func (h *Handlers) setSelectedPreset(id string) {
	h.mu.Lock()
	h.selectedPresetID = id
	h.mu.Unlock()
}
