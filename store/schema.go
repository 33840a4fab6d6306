package store

const schema = `
CREATE TABLE IF NOT EXISTS machines (
    id       TEXT PRIMARY KEY,
    name     TEXT NOT NULL,
    position INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS zones (
    id         TEXT NOT NULL,
    machine_id TEXT NOT NULL REFERENCES machines(id) ON DELETE CASCADE,
    name       TEXT NOT NULL,
    prompt     TEXT NOT NULL DEFAULT '',
    schema     TEXT NOT NULL DEFAULT '',
    position   INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (machine_id, id)
);

CREATE TABLE IF NOT EXISTS presets (
    id           TEXT PRIMARY KEY,
    product_name TEXT NOT NULL,
    structure    TEXT NOT NULL DEFAULT '',
    data         TEXT NOT NULL DEFAULT '{}',
    tolerances   TEXT NOT NULL DEFAULT '{}',
    machine_id   TEXT NOT NULL DEFAULT '',
    position     INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_presets_machine ON presets(machine_id);

CREATE TABLE IF NOT EXISTS logs (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp  TEXT NOT NULL DEFAULT '',
    machine_id TEXT NOT NULL DEFAULT '',
    record     TEXT NOT NULL DEFAULT '{}',
    position   INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_logs_machine ON logs(machine_id);

CREATE TABLE IF NOT EXISTS field_labels (
    key   TEXT PRIMARY KEY,
    label TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS scan_configs (
    machine_id TEXT PRIMARY KEY,
    prompt     TEXT NOT NULL DEFAULT '',
    schema     TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS api_keys (
    id       TEXT PRIMARY KEY,
    name     TEXT NOT NULL,
    key      TEXT NOT NULL,
    position INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS script_urls (
    id       TEXT PRIMARY KEY,
    name     TEXT NOT NULL,
    url      TEXT NOT NULL,
    position INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS models (
    id       TEXT PRIMARY KEY,
    name     TEXT NOT NULL,
    position INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS report_queue (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    topic        TEXT NOT NULL,
    payload      BLOB NOT NULL,
    kind         TEXT NOT NULL DEFAULT '',
    attempts     INTEGER NOT NULL DEFAULT 0,
    queued_at    TEXT NOT NULL DEFAULT (datetime('now','localtime')),
    published_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_report_queue_pending ON report_queue(published_at) WHERE published_at IS NULL;
`

func (db *DB) migrate() error {
	_, err := db.Exec(schema)
	return err
}
