package domain

import (
	"strings"
	"time"
)

// Role is the closed set of roles an account can hold.
type Role string

const (
	RoleUser         Role = "user"
	RolePsychiatrist Role = "psychiatrist"
	RoleAdmin        Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RolePsychiatrist, RoleAdmin:
		return true
	}
	return false
}

// SelfAssignable reports whether r may be chosen at public registration.
// Admin accounts are only created through the administrative path.
func (r Role) SelfAssignable() bool {
	return r == RoleUser || r == RolePsychiatrist
}

// Account models an identity record owned by the credential store.
type Account struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// NewAccount carries the fields the store needs to insert an account.
type NewAccount struct {
	Email        string
	PasswordHash string
	Role         Role
}

// AccountPage is one page of active accounts plus the total active count.
type AccountPage struct {
	Accounts []Account
	Total    int64
	Limit    int
	Offset   int
}

// NormalizeEmail lower-cases and trims an email so lookups and the
// uniqueness index agree on one spelling.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
