package sessionsvc_test

import (
	"context"
	"encoding/json"
	"errors"
	"maps"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/mkrupp/nutrifit-client/internal/apitest"
	"github.com/mkrupp/nutrifit-client/internal/domain"
	"github.com/mkrupp/nutrifit-client/internal/notify"
	"github.com/mkrupp/nutrifit-client/internal/repo/credential"
	"github.com/mkrupp/nutrifit-client/internal/routeguard"
	"github.com/mkrupp/nutrifit-client/internal/svc/apiclient"
	"github.com/mkrupp/nutrifit-client/internal/svc/sessionsvc"
)

var errStore = errors.New("store error")

// mockStore implements credential.Store for testing.
type mockStore struct {
	values    map[string]string
	getErr    error
	setErr    map[string]error
	failOnce  map[string]error
	deleteErr error
	m         sync.Mutex
}

func newMockStore() *mockStore {
	return &mockStore{
		values:   make(map[string]string),
		setErr:   make(map[string]error),
		failOnce: make(map[string]error),
	}
}

func (s *mockStore) Get(_ context.Context, key string) (string, bool, error) {
	s.m.Lock()
	defer s.m.Unlock()

	if s.getErr != nil {
		return "", false, s.getErr
	}

	value, ok := s.values[key]

	return value, ok, nil
}

func (s *mockStore) Set(_ context.Context, key, value string) error {
	s.m.Lock()
	defer s.m.Unlock()

	if err := s.setErr[key]; err != nil {
		return err
	}

	if err, ok := s.failOnce[key]; ok {
		delete(s.failOnce, key)

		return err
	}

	s.values[key] = value

	return nil
}

func (s *mockStore) Delete(_ context.Context, key string) error {
	s.m.Lock()
	defer s.m.Unlock()

	if s.deleteErr != nil {
		return s.deleteErr
	}

	delete(s.values, key)

	return nil
}

func (s *mockStore) Close() error {
	return nil
}

func (s *mockStore) snapshot() map[string]string {
	s.m.Lock()
	defer s.m.Unlock()

	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}

	return out
}

var _ credential.Store = (*mockStore)(nil)

type fixture struct {
	mgr      *sessionsvc.Manager
	gw       *apiclient.Gateway
	fake     *apitest.Server
	store    *mockStore
	recorder *notify.Recorder
}

func setup(t *testing.T, cfg sessionsvc.Config) *fixture {
	t.Helper()

	fake, err := apitest.New()
	if err != nil {
		t.Fatalf("apitest.New() error = %v", err)
	}

	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	f := &fixture{
		gw:       apiclient.NewGateway(apiclient.GatewayConfig{BaseURL: srv.URL + apitest.PathPrefix}, nil),
		fake:     fake,
		store:    newMockStore(),
		recorder: &notify.Recorder{},
	}

	f.mgr = sessionsvc.NewManager(cfg, f.gw, f.store, f.recorder)
	t.Cleanup(f.mgr.Close)

	return f
}

func (f *fixture) addUser(t *testing.T) domain.Profile {
	t.Helper()

	profile, err := f.fake.AddUser("Ana", "ana@example.com", "secret123")
	if err != nil {
		t.Fatalf("AddUser() error = %v", err)
	}

	return profile
}

func (f *fixture) signIn(t *testing.T) domain.Profile {
	t.Helper()

	profile := f.addUser(t)

	if err := f.mgr.SignIn(context.Background(), "ana@example.com", "secret123"); err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}

	return profile
}

// assertSignedOut checks that memory, gateway and store hold no session.
func (f *fixture) assertSignedOut(t *testing.T) {
	t.Helper()

	if state := f.mgr.State(); state.Present() || state.User.Valid() {
		t.Errorf("state = %+v, want empty session", state)
	}

	if token, ok := f.gw.Credential(); ok {
		t.Errorf("gateway credential = %q, want none", token)
	}

	if values := f.store.snapshot(); len(values) != 0 {
		t.Errorf("store = %v, want empty", values)
	}
}

func userJSON(t *testing.T, user domain.UserSnapshot) string {
	t.Helper()

	buf, err := json.Marshal(user)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	return string(buf)
}

func TestRestore(t *testing.T) {
	t.Parallel()

	validUser := domain.UserSnapshot{ID: "u1", Name: "Ana", Email: "ana@example.com"}

	tests := []struct {
		name        string
		cfg         sessionsvc.Config
		stored      func(t *testing.T, f *fixture) map[string]string
		getErr      error
		wantPresent bool
	}{
		{
			name:   "empty store",
			stored: func(*testing.T, *fixture) map[string]string { return nil },
		},
		{
			name: "opaque token and user",
			stored: func(t *testing.T, _ *fixture) map[string]string {
				return map[string]string{credential.KeyToken: "opaque", credential.KeyUser: userJSON(t, validUser)}
			},
			wantPresent: true,
		},
		{
			name: "token only",
			stored: func(*testing.T, *fixture) map[string]string {
				return map[string]string{credential.KeyToken: "opaque"}
			},
		},
		{
			name: "user only",
			stored: func(t *testing.T, _ *fixture) map[string]string {
				return map[string]string{credential.KeyUser: userJSON(t, validUser)}
			},
		},
		{
			name: "empty token",
			stored: func(t *testing.T, _ *fixture) map[string]string {
				return map[string]string{credential.KeyToken: " ", credential.KeyUser: userJSON(t, validUser)}
			},
		},
		{
			name: "unparsable user",
			stored: func(*testing.T, *fixture) map[string]string {
				return map[string]string{credential.KeyToken: "opaque", credential.KeyUser: "{not json"}
			},
		},
		{
			name: "user without id",
			stored: func(*testing.T, *fixture) map[string]string {
				return map[string]string{credential.KeyToken: "opaque", credential.KeyUser: `{"name":"Ana"}`}
			},
		},
		{
			name: "expired jwt discarded",
			cfg:  sessionsvc.Config{DiscardExpired: true},
			stored: func(t *testing.T, f *fixture) map[string]string {
				token, err := f.fake.IssueToken("u1", -time.Hour)
				if err != nil {
					t.Fatalf("IssueToken() error = %v", err)
				}

				return map[string]string{credential.KeyToken: token, credential.KeyUser: userJSON(t, validUser)}
			},
		},
		{
			name: "expired jwt kept when not discarding",
			cfg:  sessionsvc.Config{DiscardExpired: false},
			stored: func(t *testing.T, f *fixture) map[string]string {
				token, err := f.fake.IssueToken("u1", -time.Hour)
				if err != nil {
					t.Fatalf("IssueToken() error = %v", err)
				}

				return map[string]string{credential.KeyToken: token, credential.KeyUser: userJSON(t, validUser)}
			},
			wantPresent: true,
		},
		{
			name: "valid jwt",
			cfg:  sessionsvc.Config{DiscardExpired: true},
			stored: func(t *testing.T, f *fixture) map[string]string {
				token, err := f.fake.IssueToken("u1", time.Hour)
				if err != nil {
					t.Fatalf("IssueToken() error = %v", err)
				}

				return map[string]string{credential.KeyToken: token, credential.KeyUser: userJSON(t, validUser)}
			},
			wantPresent: true,
		},
		{
			name:   "store read error",
			stored: func(*testing.T, *fixture) map[string]string { return nil },
			getErr: errStore,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := setup(t, tt.cfg)

			for k, v := range tt.stored(t, f) {
				f.store.values[k] = v
			}

			f.store.getErr = tt.getErr

			var (
				mu     sync.Mutex
				states []sessionsvc.State
			)

			f.mgr.Subscribe(func(s sessionsvc.State) {
				mu.Lock()
				defer mu.Unlock()

				states = append(states, s)
			})

			if !f.mgr.IsLoading() {
				t.Fatal("IsLoading() = false before Restore")
			}

			f.mgr.Restore(context.Background())

			if f.mgr.IsLoading() {
				t.Error("IsLoading() = true after Restore")
			}

			state := f.mgr.State()
			if state.Present() != tt.wantPresent {
				t.Fatalf("Present() = %v, want %v", state.Present(), tt.wantPresent)
			}

			token, hasCredential := f.gw.Credential()

			if tt.wantPresent {
				if state.User != validUser {
					t.Errorf("User = %+v, want %+v", state.User, validUser)
				}

				if !hasCredential || token != state.Token {
					t.Errorf("gateway credential = %q, want %q", token, state.Token)
				}
			} else {
				if state.User.Valid() || hasCredential {
					t.Errorf("torn session: user %+v, credential %v", state.User, hasCredential)
				}

				if tt.getErr == nil && len(f.store.snapshot()) != 0 {
					t.Errorf("store = %v, want cleaned", f.store.snapshot())
				}
			}

			mu.Lock()
			defer mu.Unlock()

			if len(states) == 0 || states[len(states)-1].IsLoading {
				t.Errorf("subscribers saw %+v, want final non-loading state", states)
			}
		})
	}
}

func TestRestore_RestartWithoutNetwork(t *testing.T) {
	t.Parallel()

	f := setup(t, sessionsvc.Config{DiscardExpired: true})
	f.signIn(t)
	want := f.mgr.State().Session
	requests := len(f.fake.Requests())

	restarted := sessionsvc.NewManager(sessionsvc.Config{DiscardExpired: true}, f.gw, f.store, f.recorder)
	t.Cleanup(restarted.Close)

	state := restarted.State()
	if got := routeguard.Decide(state.Present(), state.IsLoading, routeguard.ZoneAuth); got != routeguard.ActionNone {
		t.Errorf("Decide() while loading = %v, want none", got)
	}

	restarted.Restore(context.Background())

	if got := len(f.fake.Requests()); got != requests {
		t.Errorf("Restore() made %d requests, want none", got-requests)
	}

	state = restarted.State()
	if state.Session != want {
		t.Fatalf("restored session = %+v, want %+v", state.Session, want)
	}

	tests := []struct {
		zone routeguard.Zone
		want routeguard.Action
	}{
		{routeguard.ZoneAuth, routeguard.ActionRedirectToApp},
		{routeguard.ZoneApp, routeguard.ActionNone},
	}

	for _, tt := range tests {
		if got := routeguard.Decide(state.Present(), state.IsLoading, tt.zone); got != tt.want {
			t.Errorf("Decide(zone %v) = %v, want %v", tt.zone, got, tt.want)
		}
	}
}

func TestSignIn_Success(t *testing.T) {
	t.Parallel()

	f := setup(t, sessionsvc.Config{})
	f.mgr.Restore(context.Background())
	profile := f.signIn(t)

	state := f.mgr.State()
	if !state.Present() || state.User.ID != profile.ID {
		t.Fatalf("state = %+v, want session for %s", state, profile.ID)
	}

	if token, _ := f.gw.Credential(); token != state.Token {
		t.Errorf("gateway credential = %q, want %q", token, state.Token)
	}

	stored := f.store.snapshot()
	if stored[credential.KeyToken] != state.Token {
		t.Errorf("stored token = %q, want %q", stored[credential.KeyToken], state.Token)
	}

	var storedUser domain.UserSnapshot
	if err := json.Unmarshal([]byte(stored[credential.KeyUser]), &storedUser); err != nil || storedUser != state.User {
		t.Errorf("stored user = %+v (%v), want %+v", storedUser, err, state.User)
	}

	if _, err := f.gw.Feed(context.Background()); err != nil {
		t.Errorf("authenticated request failed: %v", err)
	}
}

func TestSignIn_LoginResponseWithoutUser(t *testing.T) {
	t.Parallel()

	f := setup(t, sessionsvc.Config{})
	f.fake.OmitUserOnLogin(true)
	profile := f.signIn(t)

	if user, ok := f.mgr.User(); !ok || user.ID != profile.ID {
		t.Fatalf("User() = %+v, %v; want %s", user, ok, profile.ID)
	}

	if got := f.fake.CountRequests("GET /users/me"); got != 1 {
		t.Errorf("GET /users/me requests = %d, want 1", got)
	}
}

func TestSignIn_Failure(t *testing.T) {
	t.Parallel()

	f := setup(t, sessionsvc.Config{})
	f.addUser(t)

	err := f.mgr.SignIn(context.Background(), "ana@example.com", "wrong")
	if !errors.Is(err, domain.ErrAuthenticationFailed) {
		t.Fatalf("SignIn() error = %v, want ErrAuthenticationFailed", err)
	}

	if msg := domain.UserMessage(err, ""); msg == "" {
		t.Error("error carries no server message")
	}

	f.assertSignedOut(t)

	last, err := f.recorder.Last()
	if err != nil || last.Title != "Login failed" || last.Level != notify.LevelError {
		t.Errorf("notification = %+v, %v", last, err)
	}

	if got := f.fake.CountRequests("POST /users/login"); got != 1 {
		t.Errorf("login requests = %d, want 1 (no retry)", got)
	}
}

func TestSignIn_FailureKeepsExistingSession(t *testing.T) {
	t.Parallel()

	f := setup(t, sessionsvc.Config{})
	f.signIn(t)
	before := f.mgr.State()

	if err := f.mgr.SignIn(context.Background(), "ana@example.com", "wrong"); err == nil {
		t.Fatal("SignIn() with wrong password succeeded")
	}

	if after := f.mgr.State(); after != before {
		t.Errorf("state changed from %+v to %+v", before, after)
	}
}

func TestSignIn_PersistFailure(t *testing.T) {
	t.Parallel()

	f := setup(t, sessionsvc.Config{})
	f.store.setErr[credential.KeyUser] = errStore

	f.addUser(t)

	err := f.mgr.SignIn(context.Background(), "ana@example.com", "secret123")
	if !errors.Is(err, domain.ErrCredentialStore) || !errors.Is(err, errStore) {
		t.Fatalf("SignIn() error = %v, want ErrCredentialStore", err)
	}

	f.assertSignedOut(t)
}

func TestSignIn_PersistFailureWhileSignedIn(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		fail        func(s *mockStore)
		wantPresent bool
	}{
		{
			name:        "previous session written back",
			fail:        func(s *mockStore) { s.failOnce[credential.KeyUser] = errStore },
			wantPresent: true,
		},
		{
			name:        "previous session cannot be written back",
			fail:        func(s *mockStore) { s.setErr[credential.KeyUser] = errStore },
			wantPresent: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := setup(t, sessionsvc.Config{})
			f.signIn(t)
			before := f.mgr.State()
			stored := f.store.snapshot()

			tt.fail(f.store)

			err := f.mgr.SignIn(context.Background(), "ana@example.com", "secret123")
			if !errors.Is(err, domain.ErrCredentialStore) {
				t.Fatalf("SignIn() error = %v, want ErrCredentialStore", err)
			}

			if !tt.wantPresent {
				f.assertSignedOut(t)

				return
			}

			if after := f.mgr.State(); after != before {
				t.Errorf("state = %+v, want %+v", after, before)
			}

			if got := f.store.snapshot(); !maps.Equal(got, stored) {
				t.Errorf("store = %v, want %v", got, stored)
			}

			// a restart sees the same session that is still in memory
			restarted := sessionsvc.NewManager(sessionsvc.Config{},
				apiclient.NewGateway(apiclient.GatewayConfig{BaseURL: "http://127.0.0.1:1"}, nil), f.store, notify.Nop())
			t.Cleanup(restarted.Close)
			restarted.Restore(context.Background())

			if got := restarted.State().Session; got != before.Session {
				t.Errorf("restored session = %+v, want %+v", got, before.Session)
			}
		})
	}
}

func TestSignUp_Validation(t *testing.T) {
	t.Parallel()

	valid := domain.SignUpData{
		Name:      "Ana",
		Email:     "ana@example.com",
		Password:  "secret123",
		BirthDate: "31/12/1990",
		Weight:    "60,5",
		Height:    "165",
	}

	tests := []struct {
		name   string
		mutate func(d *domain.SignUpData)
	}{
		{name: "missing name", mutate: func(d *domain.SignUpData) { d.Name = "  " }},
		{name: "missing email", mutate: func(d *domain.SignUpData) { d.Email = "" }},
		{name: "missing password", mutate: func(d *domain.SignUpData) { d.Password = "" }},
		{name: "missing birth date", mutate: func(d *domain.SignUpData) { d.BirthDate = "" }},
		{name: "invalid birth date", mutate: func(d *domain.SignUpData) { d.BirthDate = "1990" }},
		{name: "missing weight", mutate: func(d *domain.SignUpData) { d.Weight = "" }},
		{name: "invalid height", mutate: func(d *domain.SignUpData) { d.Height = "tall" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := setup(t, sessionsvc.Config{})

			data := valid
			tt.mutate(&data)

			err := f.mgr.SignUp(context.Background(), data)
			if !errors.Is(err, domain.ErrValidationFailed) {
				t.Fatalf("SignUp() error = %v, want ErrValidationFailed", err)
			}

			if got := len(f.fake.Requests()); got != 0 {
				t.Errorf("%d requests sent, want none", got)
			}
		})
	}
}

func TestSignUp_RegistersAndSignsIn(t *testing.T) {
	t.Parallel()

	f := setup(t, sessionsvc.Config{})

	err := f.mgr.SignUp(context.Background(), domain.SignUpData{
		Name:      "Bruno",
		Email:     "bruno@example.com",
		Password:  "secret123",
		BirthDate: "01/02/1995",
		Weight:    "80",
		Height:    "180,5",
	})
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}

	profile, err := f.mgr.RefreshProfile(context.Background())
	if err != nil {
		t.Fatalf("RefreshProfile() error = %v", err)
	}

	if profile.Goal != domain.DefaultGoal || profile.Height != 180.5 || profile.BirthDate != "1995-02-01" {
		t.Errorf("profile = %+v", profile)
	}
}

func TestSignUp_DuplicateEmail(t *testing.T) {
	t.Parallel()

	f := setup(t, sessionsvc.Config{})
	f.addUser(t)

	err := f.mgr.SignUp(context.Background(), domain.SignUpData{
		Name: "Ana", Email: "ana@example.com", Password: "x", BirthDate: "01/01/1990", Weight: "60", Height: "160",
	})
	if !errors.Is(err, domain.ErrRegistrationFailed) {
		t.Fatalf("SignUp() error = %v, want ErrRegistrationFailed", err)
	}

	last, _ := f.recorder.Last()
	if last.Title != "Registration failed" || last.Message == "" {
		t.Errorf("notification = %+v", last)
	}

	if f.mgr.State().Present() {
		t.Error("session installed after failed registration")
	}
}

func TestSignOut(t *testing.T) {
	t.Parallel()

	f := setup(t, sessionsvc.Config{})
	f.signIn(t)

	if err := f.mgr.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut() error = %v", err)
	}

	f.assertSignedOut(t)
}

func TestSignOut_StoreFailureStillClearsMemory(t *testing.T) {
	t.Parallel()

	f := setup(t, sessionsvc.Config{})
	f.signIn(t)

	f.store.deleteErr = errStore

	err := f.mgr.SignOut(context.Background())
	if !errors.Is(err, domain.ErrCredentialStore) {
		t.Fatalf("SignOut() error = %v, want ErrCredentialStore", err)
	}

	if f.mgr.State().Present() {
		t.Error("session still present")
	}

	if _, ok := f.gw.Credential(); ok {
		t.Error("gateway credential still set")
	}
}

func TestUnauthorizedResponseInvalidatesSession(t *testing.T) {
	t.Parallel()

	f := setup(t, sessionsvc.Config{})
	f.signIn(t)

	f.fake.RevokeTokens()

	if _, err := f.gw.Feed(context.Background()); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("Feed() error = %v, want ErrUnauthorized", err)
	}

	f.assertSignedOut(t)

	last, _ := f.recorder.Last()
	if last.Title != "Session expired" {
		t.Errorf("notification = %+v, want session expired", last)
	}
}

func TestRefreshProfile_ReplacesSnapshot(t *testing.T) {
	t.Parallel()

	f := setup(t, sessionsvc.Config{})
	f.signIn(t)

	if _, err := f.gw.UpdateMe(context.Background(), domain.UpdateProfileRequest{Name: "Ana Maria"}); err != nil {
		t.Fatalf("UpdateMe() error = %v", err)
	}

	if _, err := f.mgr.RefreshProfile(context.Background()); err != nil {
		t.Fatalf("RefreshProfile() error = %v", err)
	}

	if user, _ := f.mgr.User(); user.Name != "Ana Maria" {
		t.Errorf("User().Name = %q, want %q", user.Name, "Ana Maria")
	}

	var stored domain.UserSnapshot
	if err := json.Unmarshal([]byte(f.store.snapshot()[credential.KeyUser]), &stored); err != nil || stored.Name != "Ana Maria" {
		t.Errorf("stored user = %+v, %v", stored, err)
	}
}

func TestRefreshProfile_SignedOut(t *testing.T) {
	t.Parallel()

	f := setup(t, sessionsvc.Config{})

	if _, err := f.mgr.RefreshProfile(context.Background()); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("RefreshProfile() error = %v, want ErrUnauthorized", err)
	}
}
