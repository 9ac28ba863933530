// Package profile fetches and lazily creates the user-facing profile row
// that belongs to each identity.
package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukerupert/recipebox/internal/backend"
	"github.com/dukerupert/recipebox/internal/model"
)

const table = "profiles"

type Resolver struct {
	client *backend.Client
	logger *slog.Logger
}

func NewResolver(client *backend.Client, logger *slog.Logger) *Resolver {
	return &Resolver{client: client, logger: logger}
}

// Get returns the profile for userID. A missing row is backend.ErrNotFound.
func (r *Resolver) Get(ctx context.Context, userID string) (*model.Profile, error) {
	var p model.Profile
	if err := r.client.From(table).Select("*").Eq("id", userID).Single(ctx, &p); err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &p, nil
}

type newProfile struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name,omitempty"`
}

// Create inserts a profile row keyed by userID.
func (r *Resolver) Create(ctx context.Context, userID, username, fullName string) (*model.Profile, error) {
	var p model.Profile
	err := r.client.From(table).
		Select("*").
		Insert(newProfile{ID: userID, Username: username, FullName: fullName}).
		Authenticated().
		Single(ctx, &p)
	if err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}
	r.logger.Info("created profile", "user_id", userID, "username", username)
	return &p, nil
}

// GetOrCreate returns the existing profile or creates one from the hints
// when none exists. Concurrent callers for a new user may both attempt the
// insert; the backend's primary key rejects the loser.
func (r *Resolver) GetOrCreate(ctx context.Context, userID, usernameHint, fullNameHint string) (*model.Profile, error) {
	p, err := r.Get(ctx, userID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, backend.ErrNotFound) {
		return nil, err
	}
	return r.Create(ctx, userID, usernameHint, fullNameHint)
}

// Update applies a partial update and returns the stored row.
func (r *Resolver) Update(ctx context.Context, userID string, upd model.ProfileUpdate) (*model.Profile, error) {
	var p model.Profile
	err := r.client.From(table).
		Select("*").
		Eq("id", userID).
		Update(upd).
		Authenticated().
		Single(ctx, &p)
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return &p, nil
}

// UsernameHint picks the metadata username, then the email local part,
// then "user".
func UsernameHint(u *model.User) string {
	if u == nil {
		return "user"
	}
	if u.UserMetadata.Username != "" {
		return u.UserMetadata.Username
	}
	if local := u.EmailLocalPart(); local != "" {
		return local
	}
	return "user"
}

// FullNameHint returns the metadata full name, possibly empty.
func FullNameHint(u *model.User) string {
	if u == nil {
		return ""
	}
	return u.UserMetadata.FullName
}
