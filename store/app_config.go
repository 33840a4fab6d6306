package store

// ReplaceAppConfig swaps the cached app config block (api keys, script urls,
// models) in one transaction.
func (db *DB) ReplaceAppConfig(cfg AppConfig) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"api_keys", "script_urls", "models"} {
		if _, err := tx.Exec(`DELETE FROM ` + table); err != nil {
			return err
		}
	}
	for i, k := range cfg.APIKeys {
		if _, err := tx.Exec(`INSERT INTO api_keys (id, name, key, position) VALUES (?, ?, ?, ?)`, k.ID, k.Name, k.Key, i); err != nil {
			return err
		}
	}
	for i, s := range cfg.ScriptURLs {
		if _, err := tx.Exec(`INSERT INTO script_urls (id, name, url, position) VALUES (?, ?, ?, ?)`, s.ID, s.Name, s.URL, i); err != nil {
			return err
		}
	}
	for i, m := range cfg.Models {
		if _, err := tx.Exec(`INSERT INTO models (id, name, position) VALUES (?, ?, ?)`, m.ID, m.Name, i); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetAppConfig returns the cached app config block.
func (db *DB) GetAppConfig() (AppConfig, error) {
	var cfg AppConfig

	rows, err := db.Query(`SELECT id, name, key FROM api_keys ORDER BY position`)
	if err != nil {
		return cfg, err
	}
	for rows.Next() {
		var k APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.Key); err != nil {
			rows.Close()
			return cfg, err
		}
		cfg.APIKeys = append(cfg.APIKeys, k)
	}
	rows.Close()

	rows, err = db.Query(`SELECT id, name, url FROM script_urls ORDER BY position`)
	if err != nil {
		return cfg, err
	}
	for rows.Next() {
		var s ScriptURL
		if err := rows.Scan(&s.ID, &s.Name, &s.URL); err != nil {
			rows.Close()
			return cfg, err
		}
		cfg.ScriptURLs = append(cfg.ScriptURLs, s)
	}
	rows.Close()

	rows, err = db.Query(`SELECT id, name FROM models ORDER BY position`)
	if err != nil {
		return cfg, err
	}
	for rows.Next() {
		var m ModelConfig
		if err := rows.Scan(&m.ID, &m.Name); err != nil {
			rows.Close()
			return cfg, err
		}
		cfg.Models = append(cfg.Models, m)
	}
	rows.Close()

	return cfg, nil
}
