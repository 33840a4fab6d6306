package store

// QueuedReport is a plant-bus report persisted until the broker accepts it.
// Reports queue while the broker is unreachable and drain in arrival order.
type QueuedReport struct {
	ID          int64   `json:"id"`
	Topic       string  `json:"topic"`
	Payload     []byte  `json:"payload"`
	Kind        string  `json:"kind"`
	Attempts    int     `json:"attempts"`
	QueuedAt    string  `json:"queued_at"`
	PublishedAt *string `json:"published_at"`
}

// EnqueueReport queues a report payload for the plant bus.
func (db *DB) EnqueueReport(topic string, payload []byte, kind string) (int64, error) {
	res, err := db.Exec(`INSERT INTO report_queue (topic, payload, kind) VALUES (?, ?, ?)`, topic, payload, kind)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// PendingReports returns unpublished reports, oldest first.
func (db *DB) PendingReports(limit int) ([]QueuedReport, error) {
	rows, err := db.Query(`SELECT id, topic, payload, kind, attempts, queued_at FROM report_queue WHERE published_at IS NULL ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var reports []QueuedReport
	for rows.Next() {
		var q QueuedReport
		if err := rows.Scan(&q.ID, &q.Topic, &q.Payload, &q.Kind, &q.Attempts, &q.QueuedAt); err != nil {
			return nil, err
		}
		reports = append(reports, q)
	}
	return reports, rows.Err()
}

// MarkReportPublished stamps a report as accepted by the broker.
func (db *DB) MarkReportPublished(id int64) error {
	_, err := db.Exec(`UPDATE report_queue SET published_at = datetime('now','localtime') WHERE id = ?`, id)
	return err
}

// BumpReportAttempts records a failed publish and returns the new attempt
// count, so the caller can decide when a report has failed for good.
func (db *DB) BumpReportAttempts(id int64) (int, error) {
	if _, err := db.Exec(`UPDATE report_queue SET attempts = attempts + 1 WHERE id = ?`, id); err != nil {
		return 0, err
	}
	var attempts int
	err := db.QueryRow(`SELECT attempts FROM report_queue WHERE id = ?`, id).Scan(&attempts)
	return attempts, err
}

// DiscardReport removes a report from the queue without publishing it.
func (db *DB) DiscardReport(id int64) error {
	_, err := db.Exec(`DELETE FROM report_queue WHERE id = ?`, id)
	return err
}
