package store

// ReplaceLabels swaps the field label dictionary.
func (db *DB) ReplaceLabels(labels map[string]string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM field_labels`); err != nil {
		return err
	}
	for key, label := range labels {
		if _, err := tx.Exec(`INSERT INTO field_labels (key, label) VALUES (?, ?)`, key, label); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListLabels returns the cached field label dictionary.
func (db *DB) ListLabels() (map[string]string, error) {
	rows, err := db.Query(`SELECT key, label FROM field_labels`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	labels := make(map[string]string)
	for rows.Next() {
		var key, label string
		if err := rows.Scan(&key, &label); err != nil {
			return nil, err
		}
		labels[key] = label
	}
	return labels, rows.Err()
}
