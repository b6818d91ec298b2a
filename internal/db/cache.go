package db

import (
	"fmt"
	"time"

	"github.com/cubeclass/attendance-core/internal/models"
)

// CacheClasses atomically replaces the cached class list. Latest snapshot
// wins; the cache is never merged.
func (s *Store) CacheClasses(classes []*models.ClassInfo) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM classes`); err != nil {
		return err
	}

	now := time.Now().Unix()
	for _, c := range classes {
		if _, err := tx.Exec(`INSERT INTO classes (id, name, school_id, cached_at) VALUES (?, ?, ?, ?)`,
			c.ID, c.Name, c.SchoolID, now); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ListClasses returns the cached class list.
func (s *Store) ListClasses() ([]*models.ClassInfo, error) {
	rows, err := s.db.Query(`SELECT id, name, school_id, cached_at FROM classes ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var classes []*models.ClassInfo
	for rows.Next() {
		var c models.ClassInfo
		if err := rows.Scan(&c.ID, &c.Name, &c.SchoolID, &c.CachedAt); err != nil {
			return nil, err
		}
		classes = append(classes, &c)
	}
	return classes, rows.Err()
}

// CacheSchools atomically replaces the cached school list.
func (s *Store) CacheSchools(schools []*models.School) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM schools`); err != nil {
		return err
	}

	now := time.Now().Unix()
	for _, sc := range schools {
		if _, err := tx.Exec(`INSERT INTO schools (id, name, city, cached_at) VALUES (?, ?, ?, ?)`,
			sc.ID, sc.Name, sc.City, now); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ListSchools returns the cached school list.
func (s *Store) ListSchools() ([]*models.School, error) {
	rows, err := s.db.Query(`SELECT id, name, city, cached_at FROM schools ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schools []*models.School
	for rows.Next() {
		var sc models.School
		if err := rows.Scan(&sc.ID, &sc.Name, &sc.City, &sc.CachedAt); err != nil {
			return nil, err
		}
		schools = append(schools, &sc)
	}
	return schools, rows.Err()
}

// Stats returns per-collection total and unsynced counts. Diagnostics only,
// never used for control flow.
func (s *Store) Stats() (map[string]CollectionStats, error) {
	stats := make(map[string]CollectionStats, len(TrackedCollections))
	for _, table := range TrackedCollections {
		var cs CollectionStats
		if err := s.db.QueryRow(fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)).Scan(&cs.Total); err != nil {
			return nil, err
		}
		if err := s.db.QueryRow(fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE is_synced = 0`, table)).Scan(&cs.Unsynced); err != nil {
			return nil, err
		}
		stats[table] = cs
	}
	return stats, nil
}

// ClearAllData wipes every collection. Intended for resets and tests only.
func (s *Store) ClearAllData() error {
	tables := append(append([]string{}, TrackedCollections...), "sync_queue", "classes", "schools", "kv_store")

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range tables {
		if _, err := tx.Exec(fmt.Sprintf(`DELETE FROM %s`, table)); err != nil {
			return err
		}
	}

	return tx.Commit()
}
