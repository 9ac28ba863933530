package auth

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dukerupert/recipebox/internal/backend"
	"github.com/dukerupert/recipebox/internal/events"
	"github.com/dukerupert/recipebox/internal/model"
	"github.com/dukerupert/recipebox/internal/profile"
	"github.com/dukerupert/recipebox/internal/store"
)

type Status int

const (
	StatusLoading Status = iota
	StatusAuthenticated
	StatusAnonymous
)

func (s Status) String() string {
	switch s {
	case StatusAuthenticated:
		return "authenticated"
	case StatusAnonymous:
		return "anonymous"
	default:
		return "loading"
	}
}

// State is a snapshot of who is signed in. Profile may be nil while it
// is being resolved or when resolution failed.
type State struct {
	Status  Status
	User    *model.User
	Profile *model.Profile
	Session *model.Session
}

func (s State) Authenticated() bool {
	return s.Status == StatusAuthenticated && s.User != nil
}

// ProfileResolver is the subset of profile.Resolver the provider needs.
type ProfileResolver interface {
	Get(ctx context.Context, userID string) (*model.Profile, error)
	GetOrCreate(ctx context.Context, userID, usernameHint, fullNameHint string) (*model.Profile, error)
	Update(ctx context.Context, userID string, upd model.ProfileUpdate) (*model.Profile, error)
}

type stateListener struct {
	id uint64
	fn func(State)
}

// Provider holds the process-wide auth state. It is fed by the gateway's
// bus events and by the backend client's own notifications; both go
// through setIdentity.
type Provider struct {
	gateway  *Gateway
	sessions *store.SessionStore
	profiles ProfileResolver
	bus      *events.Bus
	client   *backend.Client
	now      func() time.Time
	logger   *slog.Logger

	ctx       context.Context
	ready     chan struct{}
	readyOnce sync.Once
	unsubs    []func()

	mu        sync.RWMutex
	state     State
	listeners []stateListener
	nextID    uint64
}

type ProviderOption func(*Provider)

func WithProviderClock(now func() time.Time) ProviderOption {
	return func(p *Provider) { p.now = now }
}

func NewProvider(gateway *Gateway, sessions *store.SessionStore, profiles ProfileResolver, bus *events.Bus, client *backend.Client, logger *slog.Logger, opts ...ProviderOption) *Provider {
	p := &Provider{
		gateway:  gateway,
		sessions: sessions,
		profiles: profiles,
		bus:      bus,
		client:   client,
		now:      time.Now,
		logger:   logger,
		ctx:      context.Background(),
		ready:    make(chan struct{}),
		state:    State{Status: StatusLoading},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start subscribes to both notification sources, then restores the
// persisted session and resolves its profile. Loading ends when Start returns.
func (p *Provider) Start(ctx context.Context) {
	p.ctx = context.WithoutCancel(ctx)

	p.unsubs = append(p.unsubs,
		p.bus.Subscribe(func(c events.AuthStateChange) {
			p.setIdentity(c.User, c.Session)
		}),
		p.client.OnAuthStateChange(func(_ backend.AuthEvent, sess *model.Session) {
			var user *model.User
			if sess != nil {
				user = sess.User
			}
			p.setIdentity(user, sess)
		}),
	)

	sess, err := p.sessions.Load(ctx)
	if err != nil {
		p.logger.Error("restore session", "error", err)
	}
	if sess != nil && sess.User != nil {
		p.logger.Info("restored session", "user_id", sess.User.ID)
		p.client.SetSession(sess)
	} else {
		p.setIdentity(nil, nil)
	}
	p.markReady()
}

// Ready is closed once the initial restore has finished.
func (p *Provider) Ready() <-chan struct{} {
	return p.ready
}

func (p *Provider) markReady() {
	p.readyOnce.Do(func() { close(p.ready) })
}

// State returns the current snapshot.
func (p *Provider) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Current returns the state after evicting a session that has expired
// since it was loaded.
func (p *Provider) Current(ctx context.Context) State {
	st := p.State()
	if !st.Authenticated() || !st.Session.Expired(p.now()) {
		return st
	}
	p.logger.Info("session expired", "user_id", st.User.ID)
	if err := p.gateway.SignOut(ctx); err != nil {
		p.logger.Error("sign out expired session", "error", err)
	}
	p.clear()
	return p.State()
}

// setIdentity applies one identity notification. A repeat for the same
// user with a resolved profile only replaces the session.
func (p *Provider) setIdentity(user *model.User, sess *model.Session) {
	if user == nil {
		p.clear()
		return
	}

	p.mu.Lock()
	if p.state.User != nil && p.state.User.ID == user.ID && p.state.Profile != nil {
		p.state.Status = StatusAuthenticated
		p.state.User = user
		p.state.Session = sess
		p.mu.Unlock()
		p.notify()
		return
	}
	p.state = State{Status: StatusAuthenticated, User: user, Session: sess}
	p.mu.Unlock()

	p.markReady()
	p.notify()
	p.resolveProfile(user)
}

func (p *Provider) resolveProfile(user *model.User) {
	prof, err := p.profiles.GetOrCreate(p.ctx, user.ID, profile.UsernameHint(user), profile.FullNameHint(user))
	if err != nil {
		p.logger.Warn("resolve profile", "user_id", user.ID, "error", err)
		return
	}
	p.setProfile(user.ID, prof)
}

// setProfile stores prof unless the identity has moved on to another user.
func (p *Provider) setProfile(userID string, prof *model.Profile) {
	p.mu.Lock()
	if p.state.User == nil || p.state.User.ID != userID {
		p.mu.Unlock()
		p.logger.Debug("discarding stale profile", "user_id", userID)
		return
	}
	p.state.Profile = prof
	p.mu.Unlock()
	p.notify()
}

func (p *Provider) clear() {
	p.mu.Lock()
	changed := p.state.Status != StatusAnonymous
	p.state = State{Status: StatusAnonymous}
	p.mu.Unlock()

	p.markReady()
	if changed {
		p.notify()
	}
}

// SignOut signs out through the gateway and clears local state even when
// the gateway reports an error.
func (p *Provider) SignOut(ctx context.Context) error {
	err := p.gateway.SignOut(ctx)
	p.clear()
	return err
}

// RefreshProfile re-reads the signed-in user's profile.
func (p *Provider) RefreshProfile(ctx context.Context) error {
	st := p.State()
	if !st.Authenticated() {
		return nil
	}
	prof, err := p.profiles.Get(ctx, st.User.ID)
	if err != nil {
		return err
	}
	p.setProfile(st.User.ID, prof)
	return nil
}

// UpdateProfile writes upd for the signed-in user and keeps the result.
func (p *Provider) UpdateProfile(ctx context.Context, upd model.ProfileUpdate) (*model.Profile, error) {
	st := p.State()
	if !st.Authenticated() {
		return nil, backend.ErrNoAuthToken
	}
	prof, err := p.profiles.Update(ctx, st.User.ID, upd)
	if err != nil {
		return nil, err
	}
	p.setProfile(st.User.ID, prof)
	return prof, nil
}

// Subscribe calls fn with every new state until the returned function is called.
func (p *Provider) Subscribe(fn func(State)) func() {
	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.listeners = append(p.listeners, stateListener{id: id, fn: fn})
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		p.listeners = slices.DeleteFunc(p.listeners, func(l stateListener) bool { return l.id == id })
		p.mu.Unlock()
	}
}

func (p *Provider) notify() {
	p.mu.RLock()
	st := p.state
	listeners := slices.Clone(p.listeners)
	p.mu.RUnlock()

	for _, l := range listeners {
		l.fn(st)
	}
}

// Close detaches the provider from both notification sources.
func (p *Provider) Close() {
	for _, unsub := range p.unsubs {
		unsub()
	}
	p.unsubs = nil
}
