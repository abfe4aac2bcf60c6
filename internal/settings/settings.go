// Package settings is a small persisted key/value store for runtime-mutable
// configuration: the favourite driver set, the notifier toggle, and the
// season topics republished at startup. Values survive restarts; the env
// config only seeds them on first run.
package settings

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

// Well-known keys.
const (
	KeyFavourites         = "favourite_drivers"
	KeyNotifierEnabled    = "notifier_enabled"
	KeyLastWinner         = "last_winner"
	KeyDriversLeader      = "drivers_leader"
	KeyConstructorsLeader = "constructors_leader"
	KeyNextRace           = "next_race"
)

const schema = `
CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

// Store wraps a single-file sqlite database.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open settings db: %w", err)
	}
	// Single writer; the sqlite driver serializes anyway but this keeps
	// lock errors out of the picture.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("settings schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Get returns the stored value, or "" when the key is unset.
func (s *Store) Get(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("settings get %q: %w", key, err)
	}
	return value, nil
}

// Set upserts one key.
func (s *Store) Set(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("settings set %q: %w", key, err)
	}
	return nil
}

// All returns every stored key/value pair.
func (s *Store) All() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT key, value FROM settings ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("settings list: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

// Favourites returns the stored favourite driver numbers, nil when unset.
func (s *Store) Favourites() ([]string, error) {
	raw, err := s.Get(KeyFavourites)
	if err != nil || raw == "" {
		return nil, err
	}
	var nums []string
	if err := json.Unmarshal([]byte(raw), &nums); err != nil {
		return nil, fmt.Errorf("favourites decode: %w", err)
	}
	return nums, nil
}

// SetFavourites stores the favourite driver numbers as a JSON array.
func (s *Store) SetFavourites(nums []string) error {
	data, err := json.Marshal(nums)
	if err != nil {
		return err
	}
	return s.Set(KeyFavourites, string(data))
}

// NotifierEnabled returns the stored toggle, falling back to def when unset.
func (s *Store) NotifierEnabled(def bool) (bool, error) {
	raw, err := s.Get(KeyNotifierEnabled)
	if err != nil || raw == "" {
		return def, err
	}
	return raw == "true", nil
}

func (s *Store) SetNotifierEnabled(enabled bool) error {
	value := "false"
	if enabled {
		value = "true"
	}
	return s.Set(KeyNotifierEnabled, value)
}

func (s *Store) Close() error {
	return s.db.Close()
}
