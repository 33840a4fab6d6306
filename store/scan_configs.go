package store

// ReplaceScanConfigs swaps the scan config cache.
func (db *DB) ReplaceScanConfigs(configs []ScanConfig) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM scan_configs`); err != nil {
		return err
	}
	for _, c := range configs {
		if _, err := tx.Exec(
			`INSERT OR REPLACE INTO scan_configs (machine_id, prompt, schema) VALUES (?, ?, ?)`,
			c.MachineID, c.Prompt, c.Schema,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListScanConfigs returns the cached scan configs.
func (db *DB) ListScanConfigs() ([]ScanConfig, error) {
	rows, err := db.Query(`SELECT machine_id, prompt, schema FROM scan_configs`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []ScanConfig
	for rows.Next() {
		var c ScanConfig
		if err := rows.Scan(&c.MachineID, &c.Prompt, &c.Schema); err != nil {
			return nil, err
		}
		configs = append(configs, c)
	}
	return configs, rows.Err()
}
