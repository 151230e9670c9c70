package models

import "time"

// Login types stored in UserLoginLog.Type. The channel is reported by the
// authenticating layer; API clients may override it via the X-JMS-LOGIN-TYPE
// header.
const (
	LoginTypeWeb      = "W"
	LoginTypeTerminal = "T"
	LoginTypeUnknown  = "U"
)

// Field caps. Overlong values are truncated, never rejected.
const (
	UserAgentMaxLen   = 255
	LoginReasonMaxLen = 128
)

// UserLoginLog is one row per authentication attempt, success or failure.
// Login logs carry no org id: authentication precedes tenant selection.
type UserLoginLog struct {
	ID        string    `db:"id" json:"id"`
	Username  string    `db:"username" json:"username"`
	IP        string    `db:"ip" json:"ip"`
	Type      string    `db:"type" json:"type"`
	UserAgent string    `db:"user_agent" json:"user_agent"`
	Backend   string    `db:"backend" json:"backend"`
	MFA       int       `db:"mfa" json:"mfa"`
	Status    bool      `db:"status" json:"status"`
	Reason    string    `db:"reason" json:"reason"`
	CreatedAt time.Time `db:"created_at" json:"datetime"`
}
