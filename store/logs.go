package store

import "encoding/json"

// ReplaceLogs swaps the log history cache for the snapshot's.
func (db *DB) ReplaceLogs(logs []LogEntry) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM logs`); err != nil {
		return err
	}
	for i, l := range logs {
		record, err := json.Marshal(l)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(
			`INSERT INTO logs (timestamp, machine_id, record, position) VALUES (?, ?, ?, ?)`,
			l.Timestamp, l.MachineID, string(record), i,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// AppendLog records one optimistic submission at the end of the cached history.
func (db *DB) AppendLog(l LogEntry) error {
	record, err := json.Marshal(l)
	if err != nil {
		return err
	}
	var next int
	db.QueryRow(`SELECT COALESCE(MAX(position)+1, 0) FROM logs`).Scan(&next)
	_, err = db.Exec(
		`INSERT INTO logs (timestamp, machine_id, record, position) VALUES (?, ?, ?, ?)`,
		l.Timestamp, l.MachineID, string(record), next,
	)
	return err
}

// ListLogs returns the cached log history in arrival order.
func (db *DB) ListLogs() ([]LogEntry, error) {
	rows, err := db.Query(`SELECT record FROM logs ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []LogEntry
	for rows.Next() {
		var record string
		if err := rows.Scan(&record); err != nil {
			return nil, err
		}
		var l LogEntry
		if err := json.Unmarshal([]byte(record), &l); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
