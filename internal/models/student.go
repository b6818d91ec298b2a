// Package models provides data model definitions for the attendance hub core.
package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// UUID is a wrapper around string for identifier type safety.
type UUID string

// Value implements driver.Valuer for UUID.
func (u UUID) Value() (driver.Value, error) {
	return string(u), nil
}

// Scan implements sql.Scanner for UUID.
func (u *UUID) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*u = ""
	case []byte:
		*u = UUID(v)
	case string:
		*u = UUID(v)
	default:
		return fmt.Errorf("cannot scan %T into UUID", value)
	}
	return nil
}

// String returns the string representation of the UUID.
func (u UUID) String() string {
	return string(u)
}

// Student represents an enrolled student.
type Student struct {
	ID               UUID   `db:"id" json:"id"`
	Name             string `db:"name" json:"name"`
	SchoolID         string `db:"school_id" json:"school_id,omitempty"`
	ClassID          string `db:"class_id" json:"class_id,omitempty"`
	OfflineID        string `db:"offline_id" json:"offline_id,omitempty"`
	IsSynced         bool   `db:"is_synced" json:"is_synced"`
	OfflineCreatedAt int64  `db:"offline_created_at" json:"offline_created_at,omitempty"`
	CreatedAt        int64  `db:"created_at" json:"created_at"`
	UpdatedAt        int64  `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for Student.
func (Student) TableName() string {
	return "students"
}

// Touch updates the UpdatedAt timestamp.
func (s *Student) Touch() {
	s.UpdatedAt = time.Now().Unix()
}
