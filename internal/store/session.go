package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/recipebox/internal/model"
	"github.com/dukerupert/recipebox/internal/seal"
)

// SessionKey is the single state key holding the serialized session.
const SessionKey = "recipebox.auth.token"

// SessionStore persists the one authenticated session. It is the only
// reader and writer of SessionKey.
type SessionStore struct {
	state  *StateStore
	sealer *seal.Sealer
	now    func() time.Time
	logger *slog.Logger
}

type SessionOption func(*SessionStore)

// WithSealer encrypts the blob at rest.
func WithSealer(s *seal.Sealer) SessionOption {
	return func(ss *SessionStore) { ss.sealer = s }
}

// WithClock overrides time.Now for expiry checks.
func WithClock(now func() time.Time) SessionOption {
	return func(ss *SessionStore) { ss.now = now }
}

func NewSessionStore(state *StateStore, logger *slog.Logger, opts ...SessionOption) *SessionStore {
	ss := &SessionStore{
		state:  state,
		sealer: seal.New(""),
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(ss)
	}
	return ss
}

// Save serializes and persists sess, overwriting any prior value.
func (s *SessionStore) Save(ctx context.Context, sess *model.Session) error {
	if sess == nil {
		return fmt.Errorf("save session: nil session")
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	sealed, err := s.sealer.Seal(data)
	if err != nil {
		return fmt.Errorf("seal session: %w", err)
	}
	return s.state.Set(ctx, SessionKey, sealed)
}

// Load returns the persisted session, or nil when none is stored.
// Malformed and expired blobs are deleted and reported as absent.
func (s *SessionStore) Load(ctx context.Context) (*model.Session, error) {
	raw, err := s.state.Get(ctx, SessionKey)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	sess, err := s.decode(raw)
	if err != nil {
		s.logger.Warn("discarding malformed session", "error", err)
		if err := s.state.Delete(ctx, SessionKey); err != nil {
			return nil, err
		}
		return nil, nil
	}

	if sess.Expired(s.now()) {
		s.logger.Info("session expired, clearing", "user_id", sess.UserID())
		if err := s.state.Delete(ctx, SessionKey); err != nil {
			return nil, err
		}
		return nil, nil
	}

	return sess, nil
}

// Clear deletes the persisted session unconditionally.
func (s *SessionStore) Clear(ctx context.Context) error {
	return s.state.Delete(ctx, SessionKey)
}

// AccessToken returns the stored access token, or "" when there is no valid session.
func (s *SessionStore) AccessToken(ctx context.Context) (string, error) {
	sess, err := s.Load(ctx)
	if err != nil || sess == nil {
		return "", err
	}
	return sess.AccessToken, nil
}

func (s *SessionStore) decode(raw []byte) (*model.Session, error) {
	data, err := s.sealer.Open(raw)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	var sess model.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	if sess.AccessToken == "" {
		return nil, fmt.Errorf("session has no access token")
	}
	return &sess, nil
}
