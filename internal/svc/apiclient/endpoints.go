package apiclient

import (
	"context"
	"net/http"
	"net/url"

	"github.com/mkrupp/nutrifit-client/internal/domain"
)

func pathf(prefix, id, suffix string) string {
	return prefix + url.PathEscape(id) + suffix
}

// Login exchanges email and password for a token. It never sends a credential.
func (g *Gateway) Login(ctx context.Context, email, password string) (*domain.AuthTokenResponse, error) {
	var resp domain.AuthTokenResponse

	req := domain.LoginRequest{Email: email, Password: password}
	if err := g.doAnonymous(ctx, http.MethodPost, "/users/login", req, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// Register creates an account. It never sends a credential.
func (g *Gateway) Register(ctx context.Context, req domain.RegisterRequest) error {
	return g.doAnonymous(ctx, http.MethodPost, "/users/register", req, nil)
}

// Me fetches the own profile with the shared credential.
func (g *Gateway) Me(ctx context.Context) (*domain.Profile, error) {
	var profile domain.Profile
	if err := g.Do(ctx, http.MethodGet, "/users/me", nil, &profile); err != nil {
		return nil, err
	}

	return &profile, nil
}

// MeWithToken fetches the own profile authenticated with token.
func (g *Gateway) MeWithToken(ctx context.Context, token string) (*domain.Profile, error) {
	var profile domain.Profile
	if err := g.DoWithToken(ctx, token, http.MethodGet, "/users/me", nil, &profile); err != nil {
		return nil, err
	}

	return &profile, nil
}

// UpdateMe replaces the editable profile fields.
func (g *Gateway) UpdateMe(ctx context.Context, req domain.UpdateProfileRequest) (*domain.Profile, error) {
	var profile domain.Profile
	if err := g.Do(ctx, http.MethodPut, "/users/me", req, &profile); err != nil {
		return nil, err
	}

	return &profile, nil
}

// Feed lists the posts of the home feed.
func (g *Gateway) Feed(ctx context.Context) ([]domain.Post, error) {
	var posts []domain.Post
	if err := g.Do(ctx, http.MethodGet, "/feed", nil, &posts); err != nil {
		return nil, err
	}

	return posts, nil
}

// UserPosts lists the posts published by userID.
func (g *Gateway) UserPosts(ctx context.Context, userID string) ([]domain.Post, error) {
	var posts []domain.Post
	if err := g.Do(ctx, http.MethodGet, pathf("/feed/user/", userID, ""), nil, &posts); err != nil {
		return nil, err
	}

	return posts, nil
}

// CreatePost publishes a post.
func (g *Gateway) CreatePost(ctx context.Context, req domain.CreatePostRequest) (*domain.Post, error) {
	var post domain.Post
	if err := g.Do(ctx, http.MethodPost, "/feed", req, &post); err != nil {
		return nil, err
	}

	return &post, nil
}

// DeletePost removes a post.
func (g *Gateway) DeletePost(ctx context.Context, postID string) error {
	return g.Do(ctx, http.MethodDelete, pathf("/feed/", postID, ""), nil, nil)
}

// Post fetches a post with its comments.
func (g *Gateway) Post(ctx context.Context, postID string) (*domain.PostDetails, error) {
	var post domain.PostDetails
	if err := g.Do(ctx, http.MethodGet, pathf("/feed/", postID, ""), nil, &post); err != nil {
		return nil, err
	}

	return &post, nil
}

// Like marks a post as liked by the signed-in user.
func (g *Gateway) Like(ctx context.Context, postID string) error {
	return g.Do(ctx, http.MethodPost, pathf("/feed/", postID, "/like"), nil, nil)
}

// Unlike removes the signed-in user's like from a post.
func (g *Gateway) Unlike(ctx context.Context, postID string) error {
	return g.Do(ctx, http.MethodDelete, pathf("/feed/", postID, "/like"), nil, nil)
}

// Comment adds a comment to a post and returns the created comment.
func (g *Gateway) Comment(ctx context.Context, postID, content string) (*domain.Comment, error) {
	var comment domain.Comment

	req := domain.CommentRequest{Content: content}
	if err := g.Do(ctx, http.MethodPost, pathf("/feed/", postID, "/comment"), req, &comment); err != nil {
		return nil, err
	}

	return &comment, nil
}

// Follow makes the signed-in user follow userID.
func (g *Gateway) Follow(ctx context.Context, userID string) error {
	return g.Do(ctx, http.MethodPost, pathf("/users/", userID, "/follow"), nil, nil)
}

// Unfollow stops the signed-in user from following userID.
func (g *Gateway) Unfollow(ctx context.Context, userID string) error {
	return g.Do(ctx, http.MethodDelete, pathf("/users/", userID, "/unfollow"), nil, nil)
}

// PublicProfile fetches another user's profile including the follow relation.
func (g *Gateway) PublicProfile(ctx context.Context, userID string) (*domain.PublicProfile, error) {
	var profile domain.PublicProfile
	if err := g.Do(ctx, http.MethodGet, pathf("/users/profile/", userID, ""), nil, &profile); err != nil {
		return nil, err
	}

	return &profile, nil
}

// SearchUsers finds users by name.
func (g *Gateway) SearchUsers(ctx context.Context, query string) ([]domain.UserSummary, error) {
	var users []domain.UserSummary

	path := "/users/search?" + url.Values{"query": {query}}.Encode()
	if err := g.Do(ctx, http.MethodGet, path, nil, &users); err != nil {
		return nil, err
	}

	return users, nil
}

// WeightHistory lists the weight log as returned by the server.
func (g *Gateway) WeightHistory(ctx context.Context) ([]domain.WeightEntry, error) {
	var entries []domain.WeightEntry
	if err := g.Do(ctx, http.MethodGet, "/users/weight/history", nil, &entries); err != nil {
		return nil, err
	}

	return entries, nil
}

// AddWeight records a weight measurement in kilograms.
func (g *Gateway) AddWeight(ctx context.Context, weight float64) (*domain.WeightEntry, error) {
	var entry domain.WeightEntry
	if err := g.Do(ctx, http.MethodPost, "/users/weight", domain.AddWeightRequest{Weight: weight}, &entry); err != nil {
		return nil, err
	}

	return &entry, nil
}

// MyWorkouts lists the workout templates assigned to the user.
func (g *Gateway) MyWorkouts(ctx context.Context) ([]domain.WorkoutTemplate, error) {
	var workouts []domain.WorkoutTemplate
	if err := g.Do(ctx, http.MethodGet, "/workouts/my-workouts", nil, &workouts); err != nil {
		return nil, err
	}

	return workouts, nil
}
