package store

// ReplaceMachines swaps the machine cache for the snapshot's machine list in
// one transaction. Arrival order is preserved through the position column.
func (db *DB) ReplaceMachines(machines []Machine) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM zones`); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM machines`); err != nil {
		return err
	}
	for i, m := range machines {
		if _, err := tx.Exec(`INSERT INTO machines (id, name, position) VALUES (?, ?, ?)`, m.ID, m.Name, i); err != nil {
			return err
		}
		for j, z := range m.Zones {
			if _, err := tx.Exec(
				`INSERT INTO zones (id, machine_id, name, prompt, schema, position) VALUES (?, ?, ?, ?, ?, ?)`,
				z.ID, m.ID, z.Name, z.Prompt, z.Schema, j,
			); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

// ListMachines returns the cached machines with their zones, in arrival order.
func (db *DB) ListMachines() ([]Machine, error) {
	rows, err := db.Query(`SELECT id, name FROM machines ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var machines []Machine
	for rows.Next() {
		var m Machine
		if err := rows.Scan(&m.ID, &m.Name); err != nil {
			return nil, err
		}
		machines = append(machines, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range machines {
		zones, err := db.listZones(machines[i].ID)
		if err != nil {
			return nil, err
		}
		machines[i].Zones = zones
	}
	return machines, nil
}

func (db *DB) listZones(machineID string) ([]ZoneDefinition, error) {
	rows, err := db.Query(`SELECT id, name, prompt, schema FROM zones WHERE machine_id = ? ORDER BY position`, machineID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var zones []ZoneDefinition
	for rows.Next() {
		var z ZoneDefinition
		if err := rows.Scan(&z.ID, &z.Name, &z.Prompt, &z.Schema); err != nil {
			return nil, err
		}
		zones = append(zones, z)
	}
	return zones, rows.Err()
}
