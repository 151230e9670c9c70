// Package models defines the append-only audit record types. Rows of these
// types are created exactly once at event time and are never updated or
// deleted by this service; retention is an external concern.
package models

import "time"

// Actions recorded in OperateLog rows.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// Resource is hard-capped at 128 characters; overlong values are truncated at
// build time, never rejected.
const ResourceMaxLen = 128

// OperateLog is one row per audited mutation (create/update/delete or a
// relation membership change rendered through the relation registry).
type OperateLog struct {
	ID           string    `db:"id" json:"id"`
	User         string    `db:"user_display" json:"user"`
	Action       string    `db:"action" json:"action"`
	ResourceType string    `db:"resource_type" json:"resource_type"`
	Resource     string    `db:"resource" json:"resource"`
	RemoteAddr   string    `db:"remote_addr" json:"remote_addr"`
	OrgID        string    `db:"org_id" json:"org_id"`
	CreatedAt    time.Time `db:"created_at" json:"datetime"`
}
