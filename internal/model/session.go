package model

import "time"

// Session is the locally persisted proof of authentication: the token
// endpoint's response payload, stored whole.
type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	ExpiresAt    *int64 `json:"expires_at,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	User         *User  `json:"user,omitempty"`
}

// Expired reports whether the session's expiry is at or before now.
// A session without an expiry never expires locally.
func (s *Session) Expired(now time.Time) bool {
	if s == nil || s.ExpiresAt == nil {
		return false
	}
	return now.Unix() >= *s.ExpiresAt
}

// UserID returns the session user's id, or "" when there is no user.
func (s *Session) UserID() string {
	if s == nil || s.User == nil {
		return ""
	}
	return s.User.ID
}
