package db

import (
	"database/sql"
	"time"
)

// KV provides string key-value persistence backed by the kv_store table.
type KV struct {
	db *sql.DB
}

// NewKV creates a KV view over the database.
func NewKV(db *sql.DB) *KV {
	return &KV{db: db}
}

// Get returns the value for a key and whether the key exists.
func (kv *KV) Get(key string) (string, bool, error) {
	var value string
	err := kv.db.QueryRow(`SELECT value FROM kv_store WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set stores a value under a key, replacing any previous value.
func (kv *KV) Set(key, value string) error {
	_, err := kv.db.Exec(`INSERT OR REPLACE INTO kv_store (key, value, updated_at) VALUES (?, ?, ?)`,
		key, value, time.Now().Unix())
	return err
}

// Delete removes a key. Deleting a missing key is not an error.
func (kv *KV) Delete(key string) error {
	_, err := kv.db.Exec(`DELETE FROM kv_store WHERE key = ?`, key)
	return err
}
