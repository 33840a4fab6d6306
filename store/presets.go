package store

import (
	"encoding/json"

	"capstation/deviation"
)

func marshalFieldMap(m deviation.FieldMap) string {
	if len(m) == 0 {
		return "{}"
	}
	b, _ := json.Marshal(m)
	return string(b)
}

func unmarshalFieldMap(raw string) deviation.FieldMap {
	m := deviation.FieldMap{}
	if raw != "" {
		json.Unmarshal([]byte(raw), &m)
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

// ReplacePresets swaps the preset cache for the snapshot's preset list.
func (db *DB) ReplacePresets(presets []ProductPreset) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM presets`); err != nil {
		return err
	}
	for i, p := range presets {
		if _, err := tx.Exec(
			`INSERT INTO presets (id, product_name, structure, data, tolerances, machine_id, position) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.ProductName, p.Structure, marshalFieldMap(p.Data), marshalFieldMap(p.Tolerances), p.MachineID, i,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListPresets returns all cached presets in arrival order.
func (db *DB) ListPresets() ([]ProductPreset, error) {
	rows, err := db.Query(`SELECT id, product_name, structure, data, tolerances, machine_id FROM presets ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var presets []ProductPreset
	for rows.Next() {
		var p ProductPreset
		var data, tolerances string
		if err := rows.Scan(&p.ID, &p.ProductName, &p.Structure, &data, &tolerances, &p.MachineID); err != nil {
			return nil, err
		}
		p.Data = unmarshalFieldMap(data)
		p.Tolerances = unmarshalFieldMap(tolerances)
		presets = append(presets, p)
	}
	return presets, rows.Err()
}

// UpsertPreset writes one optimistic preset mutation into the cache without
// disturbing the rest of the snapshot. New presets append at the end.
func (db *DB) UpsertPreset(p ProductPreset) error {
	var exists int
	db.QueryRow(`SELECT COUNT(*) FROM presets WHERE id = ?`, p.ID).Scan(&exists)
	if exists > 0 {
		_, err := db.Exec(
			`UPDATE presets SET product_name=?, structure=?, data=?, tolerances=?, machine_id=? WHERE id=?`,
			p.ProductName, p.Structure, marshalFieldMap(p.Data), marshalFieldMap(p.Tolerances), p.MachineID, p.ID,
		)
		return err
	}
	var next int
	db.QueryRow(`SELECT COALESCE(MAX(position)+1, 0) FROM presets`).Scan(&next)
	_, err := db.Exec(
		`INSERT INTO presets (id, product_name, structure, data, tolerances, machine_id, position) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.ProductName, p.Structure, marshalFieldMap(p.Data), marshalFieldMap(p.Tolerances), p.MachineID, next,
	)
	return err
}
