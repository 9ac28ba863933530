package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dukerupert/recipebox/internal/backend"
	"github.com/dukerupert/recipebox/internal/events"
	"github.com/dukerupert/recipebox/internal/metrics"
	"github.com/dukerupert/recipebox/internal/model"
	"github.com/dukerupert/recipebox/internal/store"
)

const (
	msgSignUpFailed   = "Sign up failed"
	msgLoginFailed    = "Login failed"
	msgSessionExpired = "Session expired"
)

// Gateway performs sign-up, sign-in and sign-out against the identity
// service and keeps the persisted session in step.
type Gateway struct {
	client   *backend.Client
	sessions *store.SessionStore
	bus      *events.Bus
	metrics  metrics.Recorder
	now      func() time.Time
	logger   *slog.Logger
}

type GatewayOption func(*Gateway)

func WithGatewayMetrics(m metrics.Recorder) GatewayOption {
	return func(g *Gateway) { g.metrics = m }
}

func WithGatewayClock(now func() time.Time) GatewayOption {
	return func(g *Gateway) { g.now = now }
}

func NewGateway(client *backend.Client, sessions *store.SessionStore, bus *events.Bus, logger *slog.Logger, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		client:   client,
		sessions: sessions,
		bus:      bus,
		metrics:  metrics.Nop{},
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type signUpRequest struct {
	Email    string             `json:"email"`
	Password string             `json:"password"`
	Data     model.UserMetadata `json:"data"`
}

type passwordGrant struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignUp registers a new account. When the service confirms the email
// immediately the new session is stored and announced like a sign-in.
func (g *Gateway) SignUp(ctx context.Context, email, password, username, fullName string) (*model.User, error) {
	var payload model.Session
	err := g.client.IdentityPost(ctx, "/signup", nil, signUpRequest{
		Email:    email,
		Password: password,
		Data:     model.UserMetadata{Username: username, FullName: fullName},
	}, &payload)
	if err != nil {
		g.logger.Info("sign up rejected", "email", email, "error", err)
		return nil, authFailure(err, msgSignUpFailed)
	}

	user := payload.User
	if user == nil {
		return nil, nil
	}
	g.metrics.RecordAuthEvent("sign_up")

	if !user.Confirmed() {
		g.logger.Info("sign up awaiting confirmation", "user_id", user.ID)
		return user, nil
	}

	var sess *model.Session
	if payload.AccessToken != "" {
		sess = &payload
		g.fillExpiry(sess)
		if err := g.sessions.Save(ctx, sess); err != nil {
			return nil, fmt.Errorf("save session: %w", err)
		}
		g.client.SetSession(sess)
	}
	g.bus.Publish(events.AuthStateChange{User: user, Session: sess})
	return user, nil
}

// SignIn exchanges credentials for a session. On failure the stored
// session is left untouched.
func (g *Gateway) SignIn(ctx context.Context, email, password string) (*model.User, error) {
	var sess model.Session
	q := url.Values{"grant_type": {"password"}}
	if err := g.client.IdentityPost(ctx, "/token", q, passwordGrant{Email: email, Password: password}, &sess); err != nil {
		g.logger.Info("sign in rejected", "email", email, "error", err)
		return nil, authFailure(err, msgLoginFailed)
	}
	if sess.AccessToken == "" {
		return nil, &backend.AuthError{Message: msgLoginFailed}
	}

	g.fillExpiry(&sess)
	if err := g.sessions.Save(ctx, &sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	g.metrics.RecordAuthEvent("sign_in")
	g.logger.Info("signed in", "user_id", sess.UserID())

	if sess.User != nil {
		g.client.SetSession(&sess)
		g.bus.Publish(events.AuthStateChange{User: sess.User, Session: &sess})
	}
	return sess.User, nil
}

// SignOut clears the stored session and announces the signed-out state.
// The announcement happens even when clearing fails.
func (g *Gateway) SignOut(ctx context.Context) error {
	err := g.sessions.Clear(ctx)
	if err != nil {
		g.logger.Error("clear session", "error", err)
		err = fmt.Errorf("clear session: %w", err)
	}
	g.metrics.RecordAuthEvent("sign_out")
	g.client.SetSession(nil)
	g.bus.Publish(events.AuthStateChange{})
	return err
}

// CurrentUser asks the identity service who the stored token belongs to.
// It returns nil without error when nobody is signed in. A rejected token
// clears the session.
func (g *Gateway) CurrentUser(ctx context.Context) (*model.User, error) {
	sess, err := g.sessions.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		return nil, nil
	}

	var user model.User
	err = g.client.IdentityGet(ctx, "/user", sess.AccessToken, &user)
	if err == nil {
		return &user, nil
	}

	var re *backend.RemoteError
	if !errors.As(err, &re) {
		return nil, err
	}

	g.logger.Info("stored session rejected", "user_id", sess.UserID(), "status", re.Status)
	if err := g.sessions.Clear(ctx); err != nil {
		g.logger.Error("clear session", "error", err)
	}
	g.metrics.RecordAuthEvent("expired")
	g.client.SetSession(nil)
	g.bus.Publish(events.AuthStateChange{})
	return nil, &backend.AuthError{Message: msgSessionExpired}
}

// Session returns the stored, unexpired session or nil.
func (g *Gateway) Session(ctx context.Context) (*model.Session, error) {
	return g.sessions.Load(ctx)
}

// fillExpiry derives expires_at from expires_in or the token's exp claim
// when the service omits it.
func (g *Gateway) fillExpiry(sess *model.Session) {
	if sess.ExpiresAt != nil {
		return
	}
	if sess.ExpiresIn > 0 {
		at := g.now().Unix() + sess.ExpiresIn
		sess.ExpiresAt = &at
		return
	}
	token, _, err := jwt.NewParser().ParseUnverified(sess.AccessToken, jwt.MapClaims{})
	if err != nil {
		g.logger.Debug("access token is not a JWT", "error", err)
		return
	}
	exp, err := token.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return
	}
	at := exp.Unix()
	sess.ExpiresAt = &at
}

type errorBody struct {
	ErrorDescription string `json:"error_description"`
	Error            string `json:"error"`
	Msg              string `json:"msg"`
}

// authFailure turns a rejected identity call into an AuthError carrying the
// service's message. Transport failures pass through.
func authFailure(err error, fallback string) error {
	var re *backend.RemoteError
	if !errors.As(err, &re) {
		return err
	}
	var body errorBody
	if json.Unmarshal([]byte(re.Body), &body) == nil {
		switch {
		case body.ErrorDescription != "":
			return &backend.AuthError{Message: body.ErrorDescription}
		case body.Error != "":
			return &backend.AuthError{Message: body.Error}
		case body.Msg != "":
			return &backend.AuthError{Message: body.Msg}
		}
	}
	return &backend.AuthError{Message: fallback}
}
