package messaging

import (
	"encoding/json"
	"log"

	"capstation/engine"
	"capstation/store"
)

// MeasurementReport is the plant-bus record of one submitted log.
type MeasurementReport struct {
	StationID       string             `json:"station_id"`
	Timestamp       string             `json:"timestamp"`
	MachineID       string             `json:"machine_id"`
	MachineName     string             `json:"machine_name"`
	ProductionOrder string             `json:"production_order,omitempty"`
	Product         string             `json:"product"`
	Structure       string             `json:"structure"`
	UploadedBy      string             `json:"uploaded_by,omitempty"`
	Fields          map[string]float64 `json:"fields"`
	Diffs           map[string]float64 `json:"diffs,omitempty"`
}

// Reporter turns submitted logs into queued bus reports. The outbox makes the
// publish durable: a report survives broker downtime and restarts.
type Reporter struct {
	db        *store.DB
	stationID string
	topic     string
}

// NewReporter creates a reporter for the given station identity.
func NewReporter(db *store.DB, stationID, topic string) *Reporter {
	return &Reporter{db: db, stationID: stationID, topic: topic}
}

// Attach subscribes the reporter to the engine's log submission events and
// returns the detach function.
func (r *Reporter) Attach(bus *engine.EventBus) (detach func()) {
	return bus.Subscribe(func(evt engine.Event) {
		submitted := evt.Payload.(engine.LogSubmittedEvent)
		r.record(submitted.Entry)
	}, engine.EventLogSubmitted)
}

func (r *Reporter) record(entry store.LogEntry) {
	report := MeasurementReport{
		StationID:       r.stationID,
		Timestamp:       entry.Timestamp,
		MachineID:       entry.MachineID,
		MachineName:     entry.MachineName,
		ProductionOrder: entry.ProductionOrder,
		Product:         entry.Product,
		Structure:       entry.Structure,
		UploadedBy:      entry.UploadedBy,
		Fields:          entry.Fields,
		Diffs:           entry.Diff,
	}
	payload, err := json.Marshal(report)
	if err != nil {
		log.Printf("reporter: encode report: %v", err)
		return
	}
	if _, err := r.db.EnqueueReport(r.topic, payload, "measurement.report"); err != nil {
		log.Printf("reporter: enqueue report: %v", err)
	}
}
