package sessionsvc

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mkrupp/nutrifit-client/internal/domain"
	context_ "github.com/mkrupp/nutrifit-client/internal/infra/context"
	"github.com/mkrupp/nutrifit-client/internal/infra/logging"
	"github.com/mkrupp/nutrifit-client/internal/notify"
	"github.com/mkrupp/nutrifit-client/internal/repo/credential"
	"github.com/mkrupp/nutrifit-client/internal/svc/apiclient"
)

const (
	titleLoginFailed        = "Login failed"
	titleRegistrationFailed = "Registration failed"
	titleSessionExpired     = "Session expired"

	fallbackLoginMessage        = "Could not connect."
	fallbackRegistrationMessage = "Could not register."
	storeFailureMessage         = "Could not save the session on this device."
)

// Config contains configuration parameters for the session manager.
type Config struct {
	// DiscardExpired drops restored JWT tokens whose exp claim is in the past
	DiscardExpired bool `env:"DISCARD_EXPIRED" default:"true"`
}

// Gateway is the part of the API gateway the session manager depends on.
type Gateway interface {
	Login(ctx context.Context, email, password string) (*domain.AuthTokenResponse, error)
	Register(ctx context.Context, req domain.RegisterRequest) error
	Me(ctx context.Context) (*domain.Profile, error)
	MeWithToken(ctx context.Context, token string) (*domain.Profile, error)
	SetCredential(token string)
	ClearCredential()
	OnUnauthorized(fn func(ctx context.Context, token string)) (cancel func())
}

var _ Gateway = (*apiclient.Gateway)(nil)

// State is a read-only snapshot of the session.
type State struct {
	domain.Session

	IsLoading bool
}

// Manager owns the session: it is the only writer of the in-memory session,
// the persisted credential entries and the gateway credential.
type Manager struct {
	cfg      Config
	gw       Gateway
	store    credential.Store
	notifier notify.Notifier
	log      logging.Logger
	now      func() time.Time

	// opMu serializes every change of the session so that the store, the
	// in-memory state and the gateway credential move together.
	opMu sync.Mutex

	mu    sync.RWMutex
	state State

	subsMu  sync.Mutex
	subs    map[int]func(State)
	nextSub int

	cancelHook func()
}

// NewManager creates a Manager in the loading state. Call Restore once at startup.
func NewManager(cfg Config, gw Gateway, store credential.Store, notifier notify.Notifier) *Manager {
	if notifier == nil {
		notifier = notify.Nop()
	}

	m := &Manager{
		cfg:      cfg,
		gw:       gw,
		store:    store,
		notifier: notifier,
		log:      logging.GetLogger("svc.sessionsvc"),
		now:      time.Now,
		state:    State{IsLoading: true},
		subs:     make(map[int]func(State)),
	}

	m.cancelHook = gw.OnUnauthorized(m.invalidate)

	return m
}

// Close detaches the manager from the gateway.
func (m *Manager) Close() {
	m.cancelHook()
}

// State returns the current session snapshot.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.state
}

// Token returns the current token, empty when signed out.
func (m *Manager) Token() string {
	return m.State().Token
}

// User returns the cached profile snapshot and whether a session is present.
func (m *Manager) User() (domain.UserSnapshot, bool) {
	state := m.State()

	return state.User, state.Present()
}

// IsLoading reports whether the initial restore is still running.
func (m *Manager) IsLoading() bool {
	return m.State().IsLoading
}

// Context returns ctx annotated with the signed-in user id for logging.
func (m *Manager) Context(ctx context.Context) context.Context {
	if user, ok := m.User(); ok {
		return context_.WithUserID(ctx, user.ID)
	}

	return ctx
}

// Subscribe registers fn to be called with the new state after every change.
// fn is never called while internal locks are held.
func (m *Manager) Subscribe(fn func(State)) (cancel func()) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()

	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn

	return func() {
		m.subsMu.Lock()
		defer m.subsMu.Unlock()

		delete(m.subs, id)
	}
}

func (m *Manager) publish() {
	state := m.State()

	m.subsMu.Lock()
	subs := make([]func(State), 0, len(m.subs))

	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.subsMu.Unlock()

	for _, fn := range subs {
		fn(state)
	}
}

// install replaces the in-memory session and the gateway credential together.
// Must be called with opMu held.
func (m *Manager) install(token string, user domain.UserSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.Token = token
	m.state.User = user

	if token == "" {
		m.gw.ClearCredential()
	} else {
		m.gw.SetCredential(token)
	}
}

// persist writes both credential entries of the new session. On failure the
// entries of prev are written back, or both entries are removed if prev is
// empty or cannot be written back. kept reports whether the store still holds
// prev afterwards. Must be called with opMu held.
func (m *Manager) persist(
	ctx context.Context,
	prev domain.Session,
	token string,
	user domain.UserSnapshot,
) (kept bool, err error) {
	if err := m.writeEntries(ctx, token, user); err != nil {
		if prev.Present() {
			restoreErr := m.writeEntries(ctx, prev.Token, prev.User)
			if restoreErr == nil {
				return true, err
			}

			m.log.ErrorContext(ctx, "restore previous credentials failed", "error", restoreErr)
		}

		if clearErr := m.clearStore(ctx); clearErr != nil {
			m.log.ErrorContext(ctx, "clear credential store failed", "error", clearErr)
		}

		return !prev.Present(), err
	}

	return true, nil
}

func (m *Manager) writeEntries(ctx context.Context, token string, user domain.UserSnapshot) error {
	userJSON, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}

	if err := m.store.Set(ctx, credential.KeyToken, token); err != nil {
		return fmt.Errorf("store token: %w", err)
	}

	if err := m.store.Set(ctx, credential.KeyUser, string(userJSON)); err != nil {
		return fmt.Errorf("store user: %w", err)
	}

	return nil
}

// clearStore removes both credential entries, attempting both even if one fails.
func (m *Manager) clearStore(ctx context.Context) error {
	return errors.Join(
		m.store.Delete(ctx, credential.KeyToken),
		m.store.Delete(ctx, credential.KeyUser),
	)
}

// Restore loads a persisted session. Missing, torn or malformed entries leave
// the session empty and are removed. Errors are logged, never returned.
func (m *Manager) Restore(ctx context.Context) {
	defer func() {
		m.mu.Lock()
		m.state.IsLoading = false
		m.mu.Unlock()

		m.publish()
	}()

	m.opMu.Lock()
	defer m.opMu.Unlock()

	if m.State().Present() {
		// signed in while restoring
		return
	}

	token, user, err := m.load(ctx)
	if err != nil {
		m.log.WarnContext(ctx, "restore session discarded", "error", err)

		if err := m.clearStore(ctx); err != nil {
			m.log.ErrorContext(ctx, "clear credential store failed", "error", err)
		}

		return
	} else if token == "" {
		m.log.DebugContext(ctx, "no stored session")

		return
	}

	m.install(token, user)

	m.log.InfoContext(ctx, "session restored",
		logging.Group("session", "user", user.ID, "token", logging.Redact(token)))
}

var (
	errTornSession    = errors.New("only one of token and user stored")
	errMalformedToken = errors.New("malformed token")
	errMalformedUser  = errors.New("malformed user")
	errExpiredToken   = errors.New("token expired")
)

// load returns an empty token without error when nothing is stored.
func (m *Manager) load(ctx context.Context) (string, domain.UserSnapshot, error) {
	token, hasToken, tokenErr := m.store.Get(ctx, credential.KeyToken)
	userJSON, hasUser, userErr := m.store.Get(ctx, credential.KeyUser)

	if err := errors.Join(tokenErr, userErr); err != nil {
		return "", domain.UserSnapshot{}, fmt.Errorf("read credential store: %w", err)
	}

	if !hasToken && !hasUser {
		return "", domain.UserSnapshot{}, nil
	} else if hasToken != hasUser {
		return "", domain.UserSnapshot{}, errTornSession
	}

	if strings.TrimSpace(token) == "" {
		return "", domain.UserSnapshot{}, errMalformedToken
	}

	var user domain.UserSnapshot
	if err := json.Unmarshal([]byte(userJSON), &user); err != nil {
		return "", domain.UserSnapshot{}, errors.Join(errMalformedUser, err)
	} else if !user.Valid() {
		return "", domain.UserSnapshot{}, errMalformedUser
	}

	if m.cfg.DiscardExpired && tokenExpired(token, m.now()) {
		return "", domain.UserSnapshot{}, errExpiredToken
	}

	return token, user, nil
}

// tokenExpired reports whether token is a JWT with an exp claim not after now.
// Opaque tokens never expire locally.
func tokenExpired(token string, now time.Time) bool {
	var claims jwt.RegisteredClaims

	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return false
	}

	return claims.ExpiresAt != nil && !claims.ExpiresAt.After(now)
}

// SignIn authenticates with the remote API and installs the session.
// The session is persisted before it is installed. If persisting fails,
// ErrCredentialStore is returned and the previous session stays in memory and
// in the store; when it cannot be written back it is signed out in both.
func (m *Manager) SignIn(ctx context.Context, email, password string) (err error) {
	log := m.log.With(logging.Group("user", "email", email))

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "sign in failed", "error", err)
			m.notifier.Notify(ctx, notify.Error(titleLoginFailed, domain.UserMessage(err, fallbackLoginMessage)))
		} else {
			log.InfoContext(ctx, "signed in")
		}
	}()

	token, user, err := m.authenticate(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return err
	}

	m.opMu.Lock()

	if kept, err := m.persist(ctx, m.State().Session, token, user); err != nil {
		if !kept {
			// the previous session is gone from the store, drop it from memory too
			m.install("", domain.UserSnapshot{})
		}

		m.opMu.Unlock()

		if !kept {
			m.publish()
		}

		return domain.NewUserError(domain.ErrCredentialStore, storeFailureMessage, err)
	}

	m.install(token, user)
	m.opMu.Unlock()

	m.publish()

	return nil
}

func (m *Manager) authenticate(ctx context.Context, email, password string) (string, domain.UserSnapshot, error) {
	authFailed := func(cause error) error {
		return domain.NewUserError(domain.ErrAuthenticationFailed, apiclient.ServerMessage(cause), cause)
	}

	resp, err := m.gw.Login(ctx, email, password)
	if err != nil {
		return "", domain.UserSnapshot{}, authFailed(fmt.Errorf("login: %w", err))
	}

	if resp.Token == "" {
		return "", domain.UserSnapshot{}, authFailed(errMalformedToken)
	}

	if resp.User != nil && resp.User.Valid() {
		return resp.Token, *resp.User, nil
	}

	profile, err := m.gw.MeWithToken(ctx, resp.Token)
	if err != nil {
		return "", domain.UserSnapshot{}, authFailed(fmt.Errorf("fetch profile: %w", err))
	} else if !profile.Valid() {
		return "", domain.UserSnapshot{}, authFailed(errMalformedUser)
	}

	return resp.Token, profile.Snapshot(), nil
}

// SignUp validates data, registers the account and signs in with the same credentials.
func (m *Manager) SignUp(ctx context.Context, data domain.SignUpData) (err error) {
	req, err := m.validateSignUp(data)
	if err != nil {
		m.notifier.Notify(ctx, notify.Error(titleRegistrationFailed, domain.UserMessage(err, "")))

		return err
	}

	log := m.log.With(logging.Group("user", "email", req.Email))

	if err := m.gw.Register(ctx, req); err != nil {
		log.ErrorContext(ctx, "register failed", "error", err)

		message := apiclient.ServerMessage(err)
		m.notifier.Notify(ctx, notify.Error(titleRegistrationFailed, cmp.Or(message, fallbackRegistrationMessage)))

		return domain.NewUserError(domain.ErrRegistrationFailed, message, fmt.Errorf("register: %w", err))
	}

	log.InfoContext(ctx, "registered")

	return m.SignIn(ctx, req.Email, req.Password)
}

func (m *Manager) validateSignUp(data domain.SignUpData) (req domain.RegisterRequest, err error) {
	if req.Name, err = domain.Required("name", data.Name); err != nil {
		return req, err
	}

	if req.Email, err = domain.Required("email", data.Email); err != nil {
		return req, err
	}

	if data.Password == "" {
		return req, domain.Validationf("password is required")
	}

	req.Password = data.Password

	if req.BirthDate, err = domain.ParseBirthDate(data.BirthDate, m.now()); err != nil {
		return req, err
	}

	if req.Weight, err = domain.ParseDecimal("weight", data.Weight); err != nil {
		return req, err
	}

	if req.Height, err = domain.ParseDecimal("height", data.Height); err != nil {
		return req, err
	}

	req.Goal = cmp.Or(strings.TrimSpace(data.Goal), domain.DefaultGoal)

	return req, nil
}

// SignOut clears the session. The in-memory session and the gateway credential
// are always cleared; a failure to delete the stored entries is returned wrapped
// in ErrCredentialStore.
func (m *Manager) SignOut(ctx context.Context) error {
	m.opMu.Lock()
	storeErr := m.clearStore(ctx)
	m.install("", domain.UserSnapshot{})
	m.opMu.Unlock()

	m.publish()

	if storeErr != nil {
		m.log.ErrorContext(ctx, "sign out store cleanup failed", "error", storeErr)

		return errors.Join(domain.ErrCredentialStore, storeErr)
	}

	m.log.InfoContext(ctx, "signed out")

	return nil
}

// RefreshProfile refetches the own profile and replaces the snapshot wholesale.
func (m *Manager) RefreshProfile(ctx context.Context) (*domain.Profile, error) {
	token := m.Token()
	if token == "" {
		return nil, domain.ErrUnauthorized
	}

	profile, err := m.gw.Me(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}

	m.opMu.Lock()

	if m.Token() != token {
		// session changed meanwhile, the profile belongs to another session
		m.opMu.Unlock()

		return profile, nil
	}

	userJSON, err := json.Marshal(profile.Snapshot())
	if err != nil {
		m.opMu.Unlock()

		return nil, fmt.Errorf("marshal user: %w", err)
	}

	// the token entry is unchanged, a failed Set leaves the previous user entry in place
	if err := m.store.Set(ctx, credential.KeyUser, string(userJSON)); err != nil {
		m.opMu.Unlock()

		return nil, errors.Join(domain.ErrCredentialStore, fmt.Errorf("store user: %w", err))
	}

	m.install(token, profile.Snapshot())
	m.opMu.Unlock()

	m.publish()

	return profile, nil
}

// invalidate destroys the session after the server rejected token.
func (m *Manager) invalidate(ctx context.Context, token string) {
	ctx = context.WithoutCancel(ctx)

	m.opMu.Lock()

	if current := m.Token(); current == "" || current != token {
		m.opMu.Unlock()

		return
	}

	if err := m.clearStore(ctx); err != nil {
		m.log.ErrorContext(ctx, "clear credential store failed", "error", err)
	}

	m.install("", domain.UserSnapshot{})
	m.opMu.Unlock()

	m.log.WarnContext(ctx, "session invalidated", "token", logging.Redact(token))
	m.notifier.Notify(ctx, notify.Error(titleSessionExpired, "Please sign in again."))
	m.publish()
}
