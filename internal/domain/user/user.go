package user

import "strings"

// Role gates what a user may do in the back office.
type Role string

const (
	RoleAdmin          Role = "Admin"
	RoleIB             Role = "IB"
	RoleAccountManager Role = "Account Manager"
	RoleBackoffice     Role = "Backoffice"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleIB, RoleAccountManager, RoleBackoffice:
		return true
	}
	return false
}

// User represents a back-office user.
type User struct {
	ID             int64
	Email          string
	Role           Role
	PasswordHash   string
	TelegramChatID string // optional, empty when the user has not linked Telegram
	CreatedAt      string
}

// NormalizeEmail is the canonical form emails are stored and looked up in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
