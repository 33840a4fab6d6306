package www

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"capstation/engine"
)

// SSEEvent is the typed envelope sent to SSE clients.
type SSEEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type sseClient struct {
	events chan SSEEvent
}

// EventHub manages SSE client connections and broadcasts.
type EventHub struct {
	mu        sync.RWMutex
	clients   map[*sseClient]struct{}
	broadcast chan SSEEvent
	stopChan  chan struct{}
}

// NewEventHub creates a new EventHub.
func NewEventHub() *EventHub {
	return &EventHub{
		clients:   make(map[*sseClient]struct{}),
		broadcast: make(chan SSEEvent, 256),
		stopChan:  make(chan struct{}),
	}
}

// Start begins the event fan-out loop.
func (h *EventHub) Start() {
	go h.run()
}

// Stop shuts down the event hub.
func (h *EventHub) Stop() {
	select {
	case <-h.stopChan:
	default:
		close(h.stopChan)
	}
}

// Broadcast sends an event to all connected clients.
func (h *EventHub) Broadcast(evt SSEEvent) {
	select {
	case h.broadcast <- evt:
	default:
		// Drop if broadcast buffer is full
	}
}

func (h *EventHub) register(c *sseClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *EventHub) unregister(c *sseClient) {
	h.mu.Lock()
	delete(h.clients, c)
	close(c.events)
	h.mu.Unlock()
}

func (h *EventHub) run() {
	for {
		select {
		case <-h.stopChan:
			return
		case evt := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.events <- evt:
				default:
					// Client buffer full, drop event
				}
			}
			h.mu.RUnlock()
		}
	}
}

// HandleSSE is the HTTP handler for SSE connections.
func (h *EventHub) HandleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	client := &sseClient{events: make(chan SSEEvent, 64)}
	h.register(client)
	defer h.unregister(client)

	fmt.Fprintf(w, "event: connected\ndata: {}\n\n")
	flusher.Flush()

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-h.stopChan:
			return
		case evt, ok := <-client.events:
			if !ok {
				return
			}
			data, err := json.Marshal(evt.Data)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, data)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}

// SetupEngineListeners wires engine events to SSE broadcasts and returns the
// unsubscribe function for shutdown.
func (h *EventHub) SetupEngineListeners(eng *engine.Engine) (detach func()) {
	return eng.Events.Subscribe(func(evt engine.Event) {
		var sseEvt SSEEvent

		switch evt.Type {
		case engine.EventSessionChanged:
			p := evt.Payload.(engine.SessionChangedEvent)
			sseEvt = SSEEvent{Type: "session-update", Data: p.State}
		case engine.EventSyncStarted:
			sseEvt = SSEEvent{Type: "sync-status", Data: map[string]interface{}{"refreshing": true}}
		case engine.EventSyncCompleted:
			sseEvt = SSEEvent{Type: "sync-status", Data: map[string]interface{}{"refreshing": false, "ok": true}}
		case engine.EventSyncFailed:
			p := evt.Payload.(engine.SyncFailedEvent)
			sseEvt = SSEEvent{Type: "sync-status", Data: map[string]interface{}{"refreshing": false, "ok": false, "error": p.Error}}
		case engine.EventLogSubmitted:
			p := evt.Payload.(engine.LogSubmittedEvent)
			sseEvt = SSEEvent{Type: "log-submitted", Data: p.Entry}
		case engine.EventMachineSelected:
			sseEvt = SSEEvent{Type: "machine-selected", Data: evt.Payload}
		case engine.EventMachinesUpdated, engine.EventPresetsUpdated, engine.EventLogsUpdated,
			engine.EventLabelsUpdated, engine.EventScanConfigsUpdated, engine.EventAppConfigUpdated:
			sseEvt = SSEEvent{Type: "cache-update", Data: evt.Payload}
		case engine.EventVaultStateChanged:
			sseEvt = SSEEvent{Type: "vault-status", Data: evt.Payload}
		default:
			return
		}

		h.Broadcast(sseEvt)
	})
}
