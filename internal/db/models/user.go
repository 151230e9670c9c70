package models

import (
	"fmt"
	"time"
)

// User is the demonstration domain entity whose mutations flow through the
// audit hooks. The wider platform owns many more entity types; each one only
// needs LogName/String to participate in auditing.
type User struct {
	ID           string     `db:"id" json:"id"`
	Username     string     `db:"username" json:"username"`
	Name         string     `db:"name" json:"name"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	Source       string     `db:"source" json:"source"` // auth backend identifier, e.g. "local", "ldap"
	MFAEnabled   bool       `db:"mfa_enabled" json:"mfa_enabled"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	OrgID        string     `db:"org_id" json:"org_id"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// LogName is the audit category label for users.
func (u *User) LogName() string { return "User" }

// String is the display form stored in audit records.
func (u *User) String() string {
	if u.Name != "" && u.Name != u.Username {
		return fmt.Sprintf("%s(%s)", u.Name, u.Username)
	}
	return u.Username
}

// UserGroup is a named collection of users within one org. Membership changes
// are tracked as relation-change audit records.
type UserGroup struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Comment   string    `db:"comment" json:"comment"`
	OrgID     string    `db:"org_id" json:"org_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// LogName is the audit category label for user groups.
func (g *UserGroup) LogName() string { return "UserGroup" }

// String is the display form stored in audit records.
func (g *UserGroup) String() string { return g.Name }
