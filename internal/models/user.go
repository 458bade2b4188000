package models

import "time"

// UserStatus marks whether a user may log in.
type UserStatus string

const (
	UserActive  UserStatus = "Active"
	UserBlocked UserStatus = "Blocked"
)

// User represents a registered customer. The username is the identity key
// across all stores.
type User struct {
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	FullName     string     `json:"full_name"`
	Phone        string     `json:"phone"`
	Address      string     `json:"address"`
	PasswordHash string     `json:"password_hash,omitempty"`
	Status       UserStatus `json:"status"`
	Admin        bool       `json:"admin,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
