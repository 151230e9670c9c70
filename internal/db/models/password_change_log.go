package models

import "time"

// PasswordChangeLog is one row per password change. ChangeBy is the acting
// identity, or "System" when the change happened without an ambient request
// context (CLI tooling, scheduled resets).
type PasswordChangeLog struct {
	ID         string    `db:"id" json:"id"`
	User       string    `db:"user_display" json:"user"`
	ChangeBy   string    `db:"change_by" json:"change_by"`
	RemoteAddr string    `db:"remote_addr" json:"remote_addr"`
	OrgID      string    `db:"org_id" json:"org_id"`
	CreatedAt  time.Time `db:"created_at" json:"datetime"`
}
