package models

import "time"

// Role is a participant's permission level within a group. Super-admin is
// derived from the configured allow-list, never stored per group.
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleUser       Role = "user"
	RoleViewer     Role = "viewer"
)

// CanRecord reports whether the role may create transactions.
func (r Role) CanRecord() bool {
	return r != RoleViewer
}

// IsAdmin reports whether the role may change group settings.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// User is a participant profile, one per (group, user) pair. Created lazily
// on first interaction and updated on every transaction.
type User struct {
	ID                int64              `json:"id"`
	Username          string             `json:"username"`
	FirstName         string             `json:"first_name"`
	Role              Role               `json:"role"`
	JoinedAt          time.Time          `json:"joined_at"`
	LastActiveAt      time.Time          `json:"last_active_at"`
	TotalTransactions int                `json:"total_transactions"`
	TotalAmounts      map[string]float64 `json:"total_amounts"`
}
