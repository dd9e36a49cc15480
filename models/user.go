package models

import "time"

// User represents a registered account.
// It maps to the `users` table in SQLite.
type User struct {
	ID           int64      `db:"id" json:"id"`
	Username     string     `db:"username" json:"username"`
	PasswordHash string     `db:"password_hash" json:"-"`
	CreatedAt    *time.Time `db:"created_at" json:"createdAt,omitempty"`
}
