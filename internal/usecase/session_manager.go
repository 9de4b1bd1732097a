package usecase

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/example/account-service/config"
	"github.com/example/account-service/internal/domain"
	pkglog "github.com/example/account-service/pkg/log"
)

// AuthClient is the hosted auth service as seen by the session manager.
type AuthClient interface {
	CurrentSession(ctx context.Context) (*domain.Identity, error)
	// Subscribe registers a session-change listener. The returned func
	// deregisters it and closes the channel.
	Subscribe() (<-chan domain.SessionEvent, func())
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*domain.Identity, error)
	SignInWithPassword(ctx context.Context, email, password string) (*domain.Identity, error)
	EnabledProviders(ctx context.Context) (map[string]bool, error)
	AuthorizeURL(provider, redirectTo string) string
	AdoptSession(ctx context.Context, tokens domain.Tokens, recovery bool) (*domain.Identity, error)
	SignOut(ctx context.Context) error
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error
	UpdatePassword(ctx context.Context, newPassword string) error
}

// ProfileStore is the single-table profile store. GetProfile and
// FindByUsername report a missing row with found=false and a nil error.
type ProfileStore interface {
	CreateProfile(ctx context.Context, identityID string, fields domain.ProfileFields) error
	GetProfile(ctx context.Context, identityID string) (*domain.Profile, bool, error)
	FindByUsername(ctx context.Context, username string) (*domain.Profile, bool, error)
	IsUsernameAvailable(ctx context.Context, username string) (bool, error)
}

// ProfileNotifier is told about freshly provisioned profiles. Failures are ignored.
type ProfileNotifier interface {
	ProfileCreated(ctx context.Context, profile *domain.Profile) error
}

// Recorder receives operation outcomes and session state changes.
type Recorder interface {
	ObserveOperation(op string, err error)
	ObserveState(state domain.SessionState)
}

type SignUpInput struct {
	Username    string
	FullName    string
	Email       string
	PhoneNumber string
	Location    string
	Password    string
}

type Service interface {
	Current() domain.Session
	Watch() (<-chan domain.Session, func())
	SignUp(ctx context.Context, traceID string, in SignUpInput) error
	SignIn(ctx context.Context, traceID, usernameOrEmail, password string) error
	SignInWithProvider(ctx context.Context, traceID, provider string) (string, error)
	CompleteRedirect(ctx context.Context, traceID string, tokens domain.Tokens, recovery bool) (*domain.Identity, error)
	SignOut(ctx context.Context, traceID string) error
	ResetPassword(ctx context.Context, traceID, email string) error
	UpdatePassword(ctx context.Context, traceID, newPassword string) error
	Profile(ctx context.Context, traceID string) (*domain.Profile, bool, error)
	IsUsernameAvailable(ctx context.Context, traceID, username string) (bool, error)
}

type update struct {
	apply   func(domain.Session) domain.Session
	applied chan struct{}
}

// SessionManager owns the current session. Only the run loop writes it: the
// auth service's change events and the manager's own transitions both arrive
// on channels the loop reads, and the last write wins.
type SessionManager struct {
	cfg      *config.Config
	logger   pkglog.Logger
	auth     AuthClient
	profiles ProfileStore
	notifier ProfileNotifier
	recorder Recorder

	current atomic.Pointer[domain.Session]
	updates chan update
	stop    chan struct{}
	done    chan struct{}
	running atomic.Bool

	unsubscribe func()
	closeOnce   sync.Once

	watchMu   sync.Mutex
	watchers  map[int]chan domain.Session
	nextWatch int
}

var _ Service = (*SessionManager)(nil)

func NewSessionManager(cfg *config.Config, logger pkglog.Logger, auth AuthClient, profiles ProfileStore, notifier ProfileNotifier, recorder Recorder) *SessionManager {
	m := &SessionManager{
		cfg:      cfg,
		logger:   logger,
		auth:     auth,
		profiles: profiles,
		notifier: notifier,
		recorder: recorder,
		updates:  make(chan update),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		watchers: map[int]chan domain.Session{},
	}
	m.current.Store(&domain.Session{State: domain.StateUnauthenticated})
	return m
}

// Start loads the existing session, if any, and begins listening for changes.
func (m *SessionManager) Start(ctx context.Context) error {
	events, unsubscribe := m.auth.Subscribe()
	identity, err := m.auth.CurrentSession(ctx)
	if err != nil {
		unsubscribe()
		return err
	}
	initial := sessionFor(identity)
	m.current.Store(&initial)
	m.observeState(initial.State)
	m.unsubscribe = unsubscribe
	m.running.Store(true)
	go m.run(events)
	m.logger.Info().Str("state", initial.State.String()).Str("user_id", initial.UserID()).Msg("session manager started")
	return nil
}

// Close deregisters the change listener and stops the run loop.
func (m *SessionManager) Close() {
	m.closeOnce.Do(func() {
		if m.unsubscribe != nil {
			m.unsubscribe()
		}
		if m.running.Load() {
			close(m.stop)
			<-m.done
		}
		m.watchMu.Lock()
		for id, ch := range m.watchers {
			close(ch)
			delete(m.watchers, id)
		}
		m.watchMu.Unlock()
	})
}

func (m *SessionManager) run(events <-chan domain.SessionEvent) {
	defer close(m.done)
	for {
		select {
		case <-m.stop:
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			m.logger.Debug().Str("event", string(ev.Type)).Msg("session change")
			m.set(sessionFor(ev.Identity))
		case u := <-m.updates:
			m.set(u.apply(*m.current.Load()))
			close(u.applied)
		}
	}
}

func (m *SessionManager) set(s domain.Session) {
	s.Identity = domain.CopyIdentity(s.Identity)
	m.current.Store(&s)
	m.observeState(s.State)
	m.watchMu.Lock()
	for _, ch := range m.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
	m.watchMu.Unlock()
}

// submit hands a transition to the run loop and waits until it is applied.
func (m *SessionManager) submit(fn func(domain.Session) domain.Session) {
	if !m.running.Load() {
		return
	}
	u := update{apply: fn, applied: make(chan struct{})}
	select {
	case m.updates <- u:
	case <-m.done:
		return
	}
	select {
	case <-u.applied:
	case <-m.done:
	}
}

func (m *SessionManager) Current() domain.Session {
	s := *m.current.Load()
	s.Identity = domain.CopyIdentity(s.Identity)
	return s
}

// Watch delivers the latest session after every change. Slow readers only
// see the most recent value.
func (m *SessionManager) Watch() (<-chan domain.Session, func()) {
	ch := make(chan domain.Session, 1)
	m.watchMu.Lock()
	id := m.nextWatch
	m.nextWatch++
	m.watchers[id] = ch
	m.watchMu.Unlock()
	return ch, func() {
		m.watchMu.Lock()
		defer m.watchMu.Unlock()
		if c, ok := m.watchers[id]; ok {
			close(c)
			delete(m.watchers, id)
		}
	}
}

func (m *SessionManager) SignUp(ctx context.Context, traceID string, in SignUpInput) (err error) {
	defer m.observe("sign_up", &err)

	if err := validateUsername(in.Username); err != nil {
		return err
	}
	if err := validatePassword(in.Password); err != nil {
		return err
	}
	if err := validateEmail(in.Email); err != nil {
		return err
	}

	available, err := m.profiles.IsUsernameAvailable(ctx, in.Username)
	if err != nil {
		return err
	}
	if !available {
		return domain.UsernameTaken(in.Username)
	}

	identity, err := m.auth.SignUp(ctx, in.Email, in.Password, map[string]any{
		"username":  in.Username,
		"full_name": in.FullName,
	})
	if err != nil {
		return err
	}

	fields := domain.ProfileFields{
		Username:     in.Username,
		FullName:     in.FullName,
		Email:        in.Email,
		PhoneNumber:  in.PhoneNumber,
		Location:     in.Location,
		AuthProvider: domain.ProviderEmail,
	}
	// The availability check and this insert are not atomic. A concurrent
	// sign-up can claim the username in between, which leaves the identity
	// without a profile row; the store's unique index turns that into a Conflict.
	if err := m.profiles.CreateProfile(ctx, identity.ID, fields); err != nil {
		m.logger.Error().Err(err).Str("trace_id", traceID).Str("user_id", identity.ID).Str("username", in.Username).
			Msg("identity created without profile row")
		return err
	}

	if m.notifier != nil {
		if nerr := m.notifier.ProfileCreated(ctx, domain.NewProfile(identity.ID, fields)); nerr != nil {
			m.logger.Warn().Err(nerr).Str("trace_id", traceID).Str("user_id", identity.ID).Msg("profile created notification failed")
		}
	}
	m.logger.Info().Str("trace_id", traceID).Str("user_id", identity.ID).Str("username", in.Username).Msg("signup completed")
	return nil
}

func (m *SessionManager) SignIn(ctx context.Context, traceID, usernameOrEmail, password string) (err error) {
	defer m.observe("sign_in", &err)

	email := usernameOrEmail
	if !strings.Contains(usernameOrEmail, "@") {
		profile, found, lookupErr := m.profiles.FindByUsername(ctx, usernameOrEmail)
		switch {
		case lookupErr != nil:
			m.logger.Warn().Err(lookupErr).Str("trace_id", traceID).Msg("username lookup failed")
		case found:
			email = profile.Email
		}
	}

	m.submit(func(s domain.Session) domain.Session {
		return domain.Session{State: domain.StateAuthenticating, Identity: s.Identity}
	})
	identity, err := m.auth.SignInWithPassword(ctx, email, password)
	if err != nil {
		m.submit(func(s domain.Session) domain.Session {
			if s.State != domain.StateAuthenticating {
				return s
			}
			return sessionFor(s.Identity)
		})
		return err
	}
	m.submit(func(domain.Session) domain.Session { return sessionFor(identity) })
	m.logger.Info().Str("trace_id", traceID).Str("user_id", identity.ID).Msg("signin")
	return nil
}

func (m *SessionManager) SignInWithProvider(ctx context.Context, traceID, provider string) (redirect string, err error) {
	defer m.observe("sign_in_provider", &err)

	provider = strings.ToLower(strings.TrimSpace(provider))
	enabled, err := m.auth.EnabledProviders(ctx)
	if err != nil {
		return "", err
	}
	if !enabled[provider] {
		return "", domain.ProviderNotConfigured(provider)
	}
	m.logger.Info().Str("trace_id", traceID).Str("provider", provider).Msg("federated signin started")
	return m.auth.AuthorizeURL(provider, m.cfg.SiteURL), nil
}

// CompleteRedirect hands the tokens the browser received on a redirect back
// to the auth client. The session itself changes when the resulting event
// reaches the run loop.
func (m *SessionManager) CompleteRedirect(ctx context.Context, traceID string, tokens domain.Tokens, recovery bool) (identity *domain.Identity, err error) {
	defer m.observe("complete_redirect", &err)

	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		return nil, domain.Validation("access_token and refresh_token are required")
	}
	identity, err = m.auth.AdoptSession(ctx, tokens, recovery)
	if err != nil {
		return nil, err
	}
	m.logger.Info().Str("trace_id", traceID).Str("user_id", identity.ID).Bool("recovery", recovery).Msg("redirect completed")
	return identity, nil
}

// SignOut asks the auth service to end the session. The local state follows
// once the sign-out event arrives.
func (m *SessionManager) SignOut(ctx context.Context, traceID string) (err error) {
	defer m.observe("sign_out", &err)

	userID := m.Current().UserID()
	if err := m.auth.SignOut(ctx); err != nil {
		return err
	}
	m.logger.Info().Str("trace_id", traceID).Str("user_id", userID).Msg("signout")
	return nil
}

func (m *SessionManager) ResetPassword(ctx context.Context, traceID, email string) (err error) {
	defer m.observe("reset_password", &err)

	email = strings.TrimSpace(email)
	if err := validateEmail(email); err != nil {
		return err
	}
	if err := m.auth.ResetPasswordForEmail(ctx, email, m.cfg.ResetRedirect()); err != nil {
		return err
	}
	m.logger.Info().Str("trace_id", traceID).Str("email", email).Msg("password reset requested")
	return nil
}

func (m *SessionManager) UpdatePassword(ctx context.Context, traceID, newPassword string) (err error) {
	defer m.observe("update_password", &err)

	session := m.Current()
	if !session.Authenticated() {
		return domain.NotAuthenticated()
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	if err := m.auth.UpdatePassword(ctx, newPassword); err != nil {
		return err
	}
	m.logger.Info().Str("trace_id", traceID).Str("user_id", session.UserID()).Msg("password updated")
	return nil
}

// Profile loads the profile row of the signed in user.
func (m *SessionManager) Profile(ctx context.Context, traceID string) (*domain.Profile, bool, error) {
	session := m.Current()
	if !session.Authenticated() {
		return nil, false, domain.NotAuthenticated()
	}
	profile, found, err := m.profiles.GetProfile(ctx, session.UserID())
	if err != nil {
		m.logger.Warn().Err(err).Str("trace_id", traceID).Str("user_id", session.UserID()).Msg("profile load failed")
		return nil, false, err
	}
	return profile, found, nil
}

// IsUsernameAvailable backs the live availability hint on the sign-up form.
func (m *SessionManager) IsUsernameAvailable(ctx context.Context, traceID, username string) (bool, error) {
	if err := validateUsername(username); err != nil {
		return false, err
	}
	return m.profiles.IsUsernameAvailable(ctx, username)
}

func (m *SessionManager) observe(op string, err *error) {
	if m.recorder == nil {
		return
	}
	m.recorder.ObserveOperation(op, *err)
}

func (m *SessionManager) observeState(state domain.SessionState) {
	if m.recorder != nil {
		m.recorder.ObserveState(state)
	}
}

func sessionFor(identity *domain.Identity) domain.Session {
	if identity == nil {
		return domain.Session{State: domain.StateUnauthenticated}
	}
	return domain.Session{State: domain.StateAuthenticated, Identity: identity}
}
