package domain

import "time"

// Author is the user who published a post or comment.
type Author struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Avatar       string `json:"avatar,omitempty"`
	ProfileImage string `json:"profileImage,omitempty"`
	Username     string `json:"username,omitempty"`
}

// Post is a feed entry.
type Post struct {
	ID        string    `json:"id"`
	ImageURL  string    `json:"imageUrl"`
	Caption   string    `json:"caption"`
	Author    Author    `json:"author"`
	Likes     int       `json:"likes"`
	Comments  int       `json:"comments"`
	CreatedAt time.Time `json:"createdAt"`
	Liked     bool      `json:"liked,omitempty"`
}

// Comment is a comment on a post.
type Comment struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	User      Author    `json:"user"`
}

// PostDetails is a single post with its comments as returned by GET /feed/:id.
type PostDetails struct {
	ID            string    `json:"id"`
	ImageURL      string    `json:"imageUrl"`
	Caption       string    `json:"caption"`
	Author        Author    `json:"author"`
	Likes         int       `json:"likes"`
	CommentsCount int       `json:"commentsCount"`
	Liked         bool      `json:"liked"`
	Comments      []Comment `json:"comments"`
	CreatedAt     time.Time `json:"createdAt"`
}

// CreatePostRequest is the body of POST /feed.
type CreatePostRequest struct {
	ImageURL string `json:"imageUrl"`
	Caption  string `json:"caption"`
}

// CommentRequest is the body of POST /feed/:id/comment.
type CommentRequest struct {
	Content string `json:"content"`
}
