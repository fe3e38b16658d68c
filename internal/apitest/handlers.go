package apitest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"github.com/mkrupp/nutrifit-client/internal/domain"
	context_ "github.com/mkrupp/nutrifit-client/internal/infra/context"
)

var (
	errEmailTaken = errors.New("email already registered")
	errNotFound   = errors.New("not found")
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, domain.ErrorResponse{Error: message})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid body: %v", err))

		return false
	}

	return true
}

// caller returns the authenticated user. Must be called with s.mu held.
func (s *Server) caller(r *http.Request) (*user, bool) {
	userID, ok := context_.UserIDFromContext(r.Context())
	if !ok {
		return nil, false
	}

	u, ok := s.users[userID]

	return u, ok
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	u, ok := s.users[s.byEmail[strings.ToLower(strings.TrimSpace(req.Email))]]
	omitUser := s.omitUser
	s.mu.Unlock()

	if !ok || bcrypt.CompareHashAndPassword(u.passwordHash, []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "Email ou senha inválidos.")

		return
	}

	token, err := s.IssueToken(u.profile.ID, s.cfg.TokenDuration)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())

		return
	}

	resp := domain.AuthTokenResponse{Token: token}

	if !omitUser {
		snapshot := u.profile.Snapshot()
		resp.User = &snapshot
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if !decode(w, r, &req) {
		return
	}

	if req.Name == "" || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Nome, email e senha são obrigatórios.")

		return
	}

	profile, err := s.AddUser(req.Name, req.Email, req.Password)
	if errors.Is(err, errEmailTaken) {
		writeError(w, http.StatusConflict, "Email já cadastrado.")

		return
	} else if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())

		return
	}

	s.mu.Lock()
	u := s.users[profile.ID]
	u.profile.BirthDate = req.BirthDate
	u.profile.Age = ageOf(req.BirthDate)
	u.profile.Weight = req.Weight
	u.profile.Height = req.Height

	if req.Goal != "" {
		u.profile.Goal = req.Goal
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, nil)
}

func ageOf(birthDate string) int {
	born, err := time.Parse(time.DateOnly, birthDate)
	if err != nil {
		return 0
	}

	now := time.Now()
	age := now.Year() - born.Year()

	if now.YearDay() < born.YearDay() {
		age--
	}

	return age
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.caller(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Usuário não encontrado.")

		return
	}

	profile := u.profile
	profile.Stats = &domain.ProfileStats{
		Workouts:  len(s.workouts),
		Followers: s.followerCount(u.profile.ID),
		Weight:    fmt.Sprintf("%.1f kg", u.profile.Weight),
	}

	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) followerCount(userID string) int {
	count := 0

	for _, other := range s.users {
		if other.following[userID] {
			count++
		}
	}

	return count
}

func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateProfileRequest
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.caller(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Usuário não encontrado.")

		return
	}

	if req.Name != "" {
		u.profile.Name = req.Name
	}

	if req.BirthDate != "" {
		u.profile.BirthDate = req.BirthDate
		u.profile.Age = ageOf(req.BirthDate)
	}

	if req.Height > 0 {
		u.profile.Height = req.Height
	}

	if req.Goal != "" {
		u.profile.Goal = req.Goal
	}

	if req.ProfileImage != "" {
		u.profile.ProfileImage = req.ProfileImage
	}

	writeJSON(w, http.StatusOK, u.profile)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("query")))

	s.mu.Lock()
	defer s.mu.Unlock()

	me, _ := s.caller(r)
	out := []domain.UserSummary{}

	for _, u := range s.users {
		if u == me || !strings.Contains(strings.ToLower(u.profile.Name), query) {
			continue
		}

		out = append(out, domain.UserSummary{
			ID:           u.profile.ID,
			Name:         u.profile.Name,
			ProfileImage: u.profile.ProfileImage,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleWeightHistory(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, _ := s.caller(r)
	entries := append([]domain.WeightEntry{}, s.weights[u.profile.ID]...)

	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleAddWeight(w http.ResponseWriter, r *http.Request) {
	var req domain.AddWeightRequest
	if !decode(w, r, &req) {
		return
	}

	if req.Weight <= 0 {
		writeError(w, http.StatusBadRequest, "Peso inválido.")

		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, _ := s.caller(r)
	entry := domain.WeightEntry{ID: uuid.NewString(), Weight: req.Weight, Date: time.Now().UTC()}

	s.weights[u.profile.ID] = append(s.weights[u.profile.ID], entry)
	u.profile.Weight = req.Weight

	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handlePublicProfile(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.mu.Lock()
	defer s.mu.Unlock()

	me, _ := s.caller(r)

	u, ok := s.users[id]
	if !ok {
		writeError(w, http.StatusNotFound, "Usuário não encontrado.")

		return
	}

	posts := 0

	for _, p := range s.posts {
		if p.post.Author.ID == id {
			posts++
		}
	}

	writeJSON(w, http.StatusOK, domain.PublicProfile{
		ID:           u.profile.ID,
		Name:         u.profile.Name,
		ProfileImage: u.profile.ProfileImage,
		Goal:         u.profile.Goal,
		Level:        u.profile.Level,
		IsFollowing:  me.following[id],
		Count: domain.FollowCounts{
			Followers: s.followerCount(id),
			Following: len(u.following),
			Posts:     posts,
		},
	})
}

func (s *Server) handleFollow(w http.ResponseWriter, r *http.Request) {
	s.setFollowing(w, r, true)
}

func (s *Server) handleUnfollow(w http.ResponseWriter, r *http.Request) {
	s.setFollowing(w, r, false)
}

func (s *Server) setFollowing(w http.ResponseWriter, r *http.Request, following bool) {
	id := mux.Vars(r)["id"]

	s.mu.Lock()
	defer s.mu.Unlock()

	me, _ := s.caller(r)

	if _, ok := s.users[id]; !ok {
		writeError(w, http.StatusNotFound, "Usuário não encontrado.")

		return
	} else if id == me.profile.ID {
		writeError(w, http.StatusBadRequest, "Você não pode seguir a si mesmo.")

		return
	}

	if following {
		me.following[id] = true
	} else {
		delete(me.following, id)
	}

	writeJSON(w, http.StatusOK, map[string]int{"followers": s.followerCount(id)})
}

// postsView renders posts newest first with the like flag of the caller.
// Must be called with s.mu held.
func (s *Server) postsView(callerID string, keep func(*post) bool) []domain.Post {
	out := []domain.Post{}

	for i := len(s.postOrder) - 1; i >= 0; i-- {
		p, ok := s.posts[s.postOrder[i]]
		if !ok || !keep(p) {
			continue
		}

		view := p.post
		view.Likes = len(p.likedBy)
		view.Comments = len(p.comments)
		view.Liked = p.likedBy[callerID]
		out = append(out, view)
	}

	return out
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	me, _ := s.caller(r)

	writeJSON(w, http.StatusOK, s.postsView(me.profile.ID, func(*post) bool { return true }))
}

func (s *Server) handleUserPosts(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.mu.Lock()
	defer s.mu.Unlock()

	me, _ := s.caller(r)

	writeJSON(w, http.StatusOK, s.postsView(me.profile.ID, func(p *post) bool { return p.post.Author.ID == id }))
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	var req domain.CreatePostRequest
	if !decode(w, r, &req) {
		return
	}

	if req.ImageURL == "" {
		writeError(w, http.StatusBadRequest, "Imagem é obrigatória.")

		return
	}

	s.mu.Lock()
	me, _ := s.caller(r)
	authorID := me.profile.ID
	s.mu.Unlock()

	created, err := s.AddPost(authorID, req.Caption, req.ImageURL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())

		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.mu.Lock()
	defer s.mu.Unlock()

	me, _ := s.caller(r)

	p, ok := s.posts[id]
	if !ok {
		writeError(w, http.StatusNotFound, "Post não encontrado.")

		return
	}

	writeJSON(w, http.StatusOK, domain.PostDetails{
		ID:            p.post.ID,
		ImageURL:      p.post.ImageURL,
		Caption:       p.post.Caption,
		Author:        p.post.Author,
		Likes:         len(p.likedBy),
		CommentsCount: len(p.comments),
		Liked:         p.likedBy[me.profile.ID],
		Comments:      append([]domain.Comment{}, p.comments...),
		CreatedAt:     p.post.CreatedAt,
	})
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.mu.Lock()
	defer s.mu.Unlock()

	me, _ := s.caller(r)

	p, ok := s.posts[id]
	if !ok {
		writeError(w, http.StatusNotFound, "Post não encontrado.")

		return
	} else if p.post.Author.ID != me.profile.ID {
		writeError(w, http.StatusForbidden, "Você só pode excluir seus próprios posts.")

		return
	}

	delete(s.posts, id)

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLike(w http.ResponseWriter, r *http.Request) {
	s.setLiked(w, r, true)
}

func (s *Server) handleUnlike(w http.ResponseWriter, r *http.Request) {
	s.setLiked(w, r, false)
}

func (s *Server) setLiked(w http.ResponseWriter, r *http.Request, liked bool) {
	id := mux.Vars(r)["id"]

	s.mu.Lock()
	defer s.mu.Unlock()

	me, _ := s.caller(r)

	p, ok := s.posts[id]
	if !ok {
		writeError(w, http.StatusNotFound, "Post não encontrado.")

		return
	}

	if liked {
		p.likedBy[me.profile.ID] = true
	} else {
		delete(p.likedBy, me.profile.ID)
	}

	writeJSON(w, http.StatusOK, map[string]any{"liked": liked, "likes": len(p.likedBy)})
}

func (s *Server) handleComment(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req domain.CommentRequest
	if !decode(w, r, &req) {
		return
	}

	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "Comentário vazio.")

		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	me, _ := s.caller(r)

	p, ok := s.posts[id]
	if !ok {
		writeError(w, http.StatusNotFound, "Post não encontrado.")

		return
	}

	comment := domain.Comment{
		ID:        uuid.NewString(),
		Content:   req.Content,
		CreatedAt: time.Now().UTC(),
		User:      authorOf(me),
	}
	p.comments = append(p.comments, comment)

	writeJSON(w, http.StatusCreated, comment)
}

func (s *Server) handleMyWorkouts(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	writeJSON(w, http.StatusOK, append([]domain.WorkoutTemplate{}, s.workouts...))
}
