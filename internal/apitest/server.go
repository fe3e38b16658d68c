// Package apitest implements an in-memory fake of the NutriFit remote API.
// It backs the client tests and the local development server in cmd/fakeapi.
package apitest

import (
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"github.com/mkrupp/nutrifit-client/internal/domain"
	"github.com/mkrupp/nutrifit-client/internal/infra/logging"
	http_ "github.com/mkrupp/nutrifit-client/internal/infra/transport/http"
)

// PathPrefix is the prefix under which the API is served.
const PathPrefix = "/api"

// Config contains configuration parameters for the fake API.
type Config struct {
	// SigningKeyFile is the path to the RSA private key used to sign tokens
	SigningKeyFile string `env:"SIGNING_KEY_FILE" default:"var/storage/fakeapi.key"`

	// TokenDuration is the validity of issued tokens
	TokenDuration time.Duration `env:"TOKEN_DURATION" default:"24h"`

	// Seed creates a demo account with posts and workouts on start
	Seed bool `env:"SEED" default:"true"`
}

type user struct {
	profile      domain.Profile
	passwordHash []byte
	following    map[string]bool
}

type post struct {
	post     domain.Post
	likedBy  map[string]bool
	comments []domain.Comment
}

// RecordedRequest is a request received by the fake API.
type RecordedRequest struct {
	Method        string
	Path          string
	Authorization string
}

type failure struct {
	status  int
	message string
	times   int
}

// Server is the in-memory fake API. It is safe for concurrent use.
type Server struct {
	cfg        Config
	log        logging.Logger
	signingKey *rsa.PrivateKey
	router     http.Handler
	handler    http.Handler

	mu        sync.Mutex
	epoch     int
	users     map[string]*user
	byEmail   map[string]string
	posts     map[string]*post
	postOrder []string
	weights   map[string][]domain.WeightEntry
	workouts  []domain.WorkoutTemplate
	omitUser  bool
	requests  []RecordedRequest
	failures  map[string]*failure
	holds     map[string]chan struct{}
}

var _ http_.HTTPTransport = (*Server)(nil)

//nolint:gochecknoglobals
var (
	testKey     *rsa.PrivateKey
	testKeyErr  error
	testKeyOnce sync.Once
)

// New creates a Server signing tokens with a process wide generated key.
// Intended for tests.
func New() (*Server, error) {
	testKeyOnce.Do(func() {
		testKey, testKeyErr = rsa.GenerateKey(rand.Reader, DefaultKeySize)
	})

	if testKeyErr != nil {
		return nil, fmt.Errorf("generate key: %w", testKeyErr)
	}

	return NewServer(Config{TokenDuration: time.Hour}, testKey), nil
}

// NewFromConfig creates a Server with the signing key from cfg.SigningKeyFile.
func NewFromConfig(cfg Config) (*Server, error) {
	signingKey, err := LoadSigningKey(cfg.SigningKeyFile)
	if err != nil {
		return nil, fmt.Errorf("load signing key: %w", err)
	}

	srv := NewServer(cfg, signingKey)

	if cfg.Seed {
		if err := srv.seedDemo(); err != nil {
			return nil, fmt.Errorf("seed: %w", err)
		}
	}

	return srv, nil
}

// NewServer creates an empty Server.
func NewServer(cfg Config, signingKey *rsa.PrivateKey) *Server {
	srv := &Server{
		cfg:        cfg,
		log:        logging.GetLogger("apitest"),
		signingKey: signingKey,
		users:      make(map[string]*user),
		byEmail:    make(map[string]string),
		posts:      make(map[string]*post),
		weights:    make(map[string][]domain.WeightEntry),
		failures:   make(map[string]*failure),
		holds:      make(map[string]chan struct{}),
	}

	srv.router = srv.routes()
	srv.handler = http_.WithMiddleware(srv.router, srv.log)

	return srv
}

// ServeHTTP implements http.Handler. Requests pass the server middleware chain.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Router returns the routes without the server middleware chain, for use with
// http_.ListenAndServe which adds the chain itself.
func (s *Server) Router() http_.HTTPTransport {
	return s.router
}

func (s *Server) routes() http.Handler {
	router := mux.NewRouter()
	api := router.PathPrefix(PathPrefix).Subrouter()
	api.Use(s.recordMiddleware, s.faultMiddleware)

	api.HandleFunc("/users/login", s.handleLogin).Methods(http.MethodPost)
	api.HandleFunc("/users/register", s.handleRegister).Methods(http.MethodPost)

	authed := api.NewRoute().Subrouter()
	authed.Use(func(next http.Handler) http.Handler {
		return http_.AuthorizingMiddleware(next, s, s.log)
	})

	authed.HandleFunc("/users/me", s.handleMe).Methods(http.MethodGet)
	authed.HandleFunc("/users/me", s.handleUpdateMe).Methods(http.MethodPut)
	authed.HandleFunc("/users/search", s.handleSearch).Methods(http.MethodGet)
	authed.HandleFunc("/users/weight/history", s.handleWeightHistory).Methods(http.MethodGet)
	authed.HandleFunc("/users/weight", s.handleAddWeight).Methods(http.MethodPost)
	authed.HandleFunc("/users/profile/{id}", s.handlePublicProfile).Methods(http.MethodGet)
	authed.HandleFunc("/users/{id}/follow", s.handleFollow).Methods(http.MethodPost)
	authed.HandleFunc("/users/{id}/unfollow", s.handleUnfollow).Methods(http.MethodDelete)
	authed.HandleFunc("/feed", s.handleFeed).Methods(http.MethodGet)
	authed.HandleFunc("/feed", s.handleCreatePost).Methods(http.MethodPost)
	authed.HandleFunc("/feed/user/{id}", s.handleUserPosts).Methods(http.MethodGet)
	authed.HandleFunc("/feed/{id}", s.handlePost).Methods(http.MethodGet)
	authed.HandleFunc("/feed/{id}", s.handleDeletePost).Methods(http.MethodDelete)
	authed.HandleFunc("/feed/{id}/like", s.handleLike).Methods(http.MethodPost)
	authed.HandleFunc("/feed/{id}/like", s.handleUnlike).Methods(http.MethodDelete)
	authed.HandleFunc("/feed/{id}/comment", s.handleComment).Methods(http.MethodPost)
	authed.HandleFunc("/workouts/my-workouts", s.handleMyWorkouts).Methods(http.MethodGet)

	return router
}

func routeKey(method, path string) string {
	return method + " " + strings.TrimPrefix(path, PathPrefix)
}

func (s *Server) recordMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, RecordedRequest{
			Method:        r.Method,
			Path:          strings.TrimPrefix(r.URL.Path, PathPrefix),
			Authorization: r.Header.Get("Authorization"),
		})
		hold := s.holds[routeKey(r.Method, r.URL.Path)]
		s.mu.Unlock()

		if hold != nil {
			select {
			case <-hold:
			case <-r.Context().Done():
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) faultMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := routeKey(r.Method, r.URL.Path)

		s.mu.Lock()
		f := s.failures[key]

		var status int

		var message string

		if f != nil {
			status, message = f.status, f.message
			if f.times--; f.times <= 0 {
				delete(s.failures, key)
			}
		}
		s.mu.Unlock()

		if f != nil {
			writeError(w, status, message)

			return
		}

		next.ServeHTTP(w, r)
	})
}

// Fail makes the next times requests to "METHOD /path" (without the /api
// prefix) fail with status and message.
func (s *Server) Fail(route string, status int, message string, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failures[route] = &failure{status: status, message: message, times: times}
}

// Hold blocks requests to route until the returned release function is called.
func (s *Server) Hold(route string) (release func()) {
	gate := make(chan struct{})

	s.mu.Lock()
	s.holds[route] = gate
	s.mu.Unlock()

	var once sync.Once

	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.holds, route)
			s.mu.Unlock()
			close(gate)
		})
	}
}

// OmitUserOnLogin makes the login response carry only the token.
func (s *Server) OmitUserOnLogin(omit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.omitUser = omit
}

// Requests returns the requests received so far.
func (s *Server) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]RecordedRequest(nil), s.requests...)
}

// CountRequests returns how many requests matched route ("METHOD /path").
func (s *Server) CountRequests(route string) int {
	count := 0

	for _, req := range s.Requests() {
		if routeKey(req.Method, req.Path) == route {
			count++
		}
	}

	return count
}

// AddUser creates an account and returns its profile.
func (s *Server) AddUser(name, email, password string) (domain.Profile, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	email = strings.ToLower(strings.TrimSpace(email))
	if _, exists := s.byEmail[email]; exists {
		return domain.Profile{}, errEmailTaken
	}

	//nolint:exhaustruct
	u := &user{
		profile: domain.Profile{
			UserSnapshot: domain.UserSnapshot{
				ID:    uuid.NewString(),
				Name:  name,
				Email: email,
				Goal:  "GANHAR_MASSA",
				Level: "INICIANTE",
			},
		},
		passwordHash: hash,
		following:    make(map[string]bool),
	}

	s.users[u.profile.ID] = u
	s.byEmail[email] = u.profile.ID

	return u.profile, nil
}

// AddPost publishes a post on behalf of authorID.
func (s *Server) AddPost(authorID, caption, imageURL string) (domain.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	author, ok := s.users[authorID]
	if !ok {
		return domain.Post{}, errNotFound
	}

	p := &post{
		post: domain.Post{
			ID:        uuid.NewString(),
			ImageURL:  imageURL,
			Caption:   caption,
			Author:    authorOf(author),
			CreatedAt: time.Now().UTC(),
		},
		likedBy: make(map[string]bool),
	}

	s.posts[p.post.ID] = p
	s.postOrder = append(s.postOrder, p.post.ID)

	return p.post, nil
}

// SetFollowing makes followerID follow (or not) followeeID.
func (s *Server) SetFollowing(followerID, followeeID string, following bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	follower, ok := s.users[followerID]
	if !ok {
		return errNotFound
	}

	if following {
		follower.following[followeeID] = true
	} else {
		delete(follower.following, followeeID)
	}

	return nil
}

// AddWorkout appends a workout template returned by /workouts/my-workouts.
func (s *Server) AddWorkout(workout domain.WorkoutTemplate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if workout.ID == "" {
		workout.ID = uuid.NewString()
	}

	s.workouts = append(s.workouts, workout)
}

// AddWeight records a weight measurement for userID at date.
func (s *Server) AddWeight(userID string, weight float64, date time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.weights[userID] = append(s.weights[userID], domain.WeightEntry{
		ID:     uuid.NewString(),
		Weight: weight,
		Date:   date.UTC(),
	})
}

// LikeCount returns the server side like counter of a post.
func (s *Server) LikeCount(postID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.posts[postID]; ok {
		return len(p.likedBy)
	}

	return 0
}

func authorOf(u *user) domain.Author {
	return domain.Author{
		ID:           u.profile.ID,
		Name:         u.profile.Name,
		ProfileImage: u.profile.ProfileImage,
	}
}

func (s *Server) seedDemo() error {
	demo, err := s.AddUser("Demo", "demo@nutrifit.app", "demo1234")
	if err != nil {
		return err
	}

	coach, err := s.AddUser("Coach", "coach@nutrifit.app", "coach1234")
	if err != nil {
		return err
	}

	if _, err := s.AddPost(coach.ID, "Leg day!", "https://picsum.photos/seed/legday/1080"); err != nil {
		return err
	}

	s.AddWeight(demo.ID, 80.5, time.Now().AddDate(0, 0, -14))
	s.AddWeight(demo.ID, 79.8, time.Now().AddDate(0, 0, -7))

	s.AddWorkout(domain.WorkoutTemplate{
		Name:  "Treino A",
		Goal:  "GANHAR_MASSA",
		Level: "INICIANTE",
		Exercises: []domain.WorkoutExercise{
			{ID: uuid.NewString(), Sets: "4", Reps: "10", Rest: "60s", Exercise: domain.Exercise{
				ID: uuid.NewString(), Name: "Supino reto", MuscleGroup: "Peito",
			}},
			{ID: uuid.NewString(), Sets: "3", Reps: "12", Rest: "45s", Exercise: domain.Exercise{
				ID: uuid.NewString(), Name: "Agachamento", MuscleGroup: "Pernas",
			}},
		},
	})

	return nil
}
