package model

import (
	"strings"
	"time"
)

// UserMetadata is the free-form metadata attached at sign-up.
type UserMetadata struct {
	Username string `json:"username,omitempty"`
	FullName string `json:"full_name,omitempty"`
}

// User is the identity record returned by the remote identity service.
// It is never mutated locally.
type User struct {
	ID               string       `json:"id"`
	Email            string       `json:"email"`
	EmailConfirmedAt *time.Time   `json:"email_confirmed_at,omitempty"`
	UserMetadata     UserMetadata `json:"user_metadata"`
	CreatedAt        *time.Time   `json:"created_at,omitempty"`
}

// Confirmed reports whether the identity service considers the email verified.
func (u *User) Confirmed() bool {
	return u != nil && u.EmailConfirmedAt != nil
}

// EmailLocalPart returns the part of the email before '@', or "" when there is none.
func (u *User) EmailLocalPart() string {
	if u == nil {
		return ""
	}
	local, _, ok := strings.Cut(u.Email, "@")
	if !ok {
		return ""
	}
	return local
}
