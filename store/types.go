package store

import (
	"encoding/json"

	"capstation/deviation"
)

// ZoneDefinition is one inspection point on a machine: a capture schema plus
// the free-text prompt handed opaquely to the extraction service.
type ZoneDefinition struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Prompt string `json:"prompt"`
	Schema string `json:"schema"`
}

// Machine owns its zones; it is created and deleted atomically with them.
type Machine struct {
	ID    string           `json:"id"`
	Name  string           `json:"name"`
	Zones []ZoneDefinition `json:"zones"`
}

// ScanConfig drives the standards-sheet scan flow for a machine. At most one
// per machine.
type ScanConfig struct {
	MachineID string `json:"machineId"`
	Prompt    string `json:"prompt"`
	Schema    string `json:"schema"`
}

// ProductPreset is the standard values and tolerances a captured reading is
// judged against. A preset belongs to exactly one machine.
type ProductPreset struct {
	ID          string             `json:"id"`
	ProductName string             `json:"productName"`
	Structure   string             `json:"structure"`
	Data        deviation.FieldMap `json:"data"`
	Tolerances  deviation.FieldMap `json:"tolerances,omitempty"`
	MachineID   string             `json:"machineId,omitempty"`
}

// APIKey is a named extraction-service credential from the app config sheet.
type APIKey struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Key  string `json:"key"`
}

// ScriptURL is a named remote-store endpoint from the app config sheet.
type ScriptURL struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// ModelConfig is an extraction model choice.
type ModelConfig struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AppConfig is the remote-owned application configuration block.
type AppConfig struct {
	APIKeys    []APIKey      `json:"apiKeys,omitempty"`
	ScriptURLs []ScriptURL   `json:"scriptUrls,omitempty"`
	Models     []ModelConfig `json:"models,omitempty"`
}

// User is the identity returned by the remote credential check.
type User struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// LogEntry is an immutable submission record. On the wire it is flat: the
// fixed columns plus one column per captured field, and std_<field> /
// diff_<field> columns for fields that had a standard.
type LogEntry struct {
	Timestamp       string
	MachineID       string
	MachineName     string
	ProductionOrder string
	Product         string
	Structure       string
	ProductStd      string
	StructureStd    string
	UploadedBy      string

	Fields deviation.FieldMap
	Std    deviation.FieldMap
	Diff   deviation.FieldMap
}

// MarshalJSON flattens the entry into the remote store's column layout.
func (e LogEntry) MarshalJSON() ([]byte, error) {
	m := map[string]interface{}{
		"timestamp":       e.Timestamp,
		"machineId":       e.MachineID,
		"machineName":     e.MachineName,
		"productionOrder": e.ProductionOrder,
		"product":         e.Product,
		"structure":       e.Structure,
		"productStd":      e.ProductStd,
		"structureStd":    e.StructureStd,
		"uploadedBy":      e.UploadedBy,
	}
	for k, v := range e.Fields {
		m[k] = v
	}
	for k, v := range e.Std {
		m["std_"+k] = v
	}
	for k, v := range e.Diff {
		m["diff_"+k] = v
	}
	return json.Marshal(m)
}

var logFixedKeys = map[string]struct{}{
	"timestamp": {}, "machineId": {}, "machineName": {}, "productionOrder": {},
	"product": {}, "structure": {}, "productStd": {}, "structureStd": {},
	"uploadedBy": {}, "productName": {},
}

// UnmarshalJSON rebuilds the entry from the flat wire form. Unknown numeric
// columns become captured fields; std_/diff_ prefixes route to their maps.
// Non-numeric extras (legacy sheet columns) are dropped.
func (e *LogEntry) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	str := func(key string) string {
		var s string
		if v, ok := raw[key]; ok {
			json.Unmarshal(v, &s)
		}
		return s
	}
	e.Timestamp = str("timestamp")
	e.MachineID = str("machineId")
	e.MachineName = str("machineName")
	e.ProductionOrder = str("productionOrder")
	e.Product = str("product")
	e.Structure = str("structure")
	e.ProductStd = str("productStd")
	e.StructureStd = str("structureStd")
	e.UploadedBy = str("uploadedBy")
	// Legacy records carry productName instead of product.
	if e.Product == "" {
		e.Product = str("productName")
	}

	e.Fields = deviation.FieldMap{}
	e.Std = deviation.FieldMap{}
	e.Diff = deviation.FieldMap{}
	for k, v := range raw {
		if _, fixed := logFixedKeys[k]; fixed {
			continue
		}
		var num float64
		if err := json.Unmarshal(v, &num); err != nil {
			continue
		}
		switch {
		case len(k) > 4 && k[:4] == "std_":
			e.Std[k[4:]] = num
		case len(k) > 5 && k[:5] == "diff_":
			e.Diff[k[5:]] = num
		default:
			e.Fields[k] = num
		}
	}
	return nil
}
