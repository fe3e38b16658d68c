package feedsvc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mkrupp/nutrifit-client/internal/domain"
	"github.com/mkrupp/nutrifit-client/internal/infra/logging"
	"github.com/mkrupp/nutrifit-client/internal/notify"
	"github.com/mkrupp/nutrifit-client/internal/svc/apiclient"
	"github.com/mkrupp/nutrifit-client/internal/svc/interactionsvc"
)

// ErrNotOwner is returned when deleting a post of another user.
var ErrNotOwner = errors.New("post belongs to another user")

// Gateway is the subset of apiclient.Gateway used by the feed.
type Gateway interface {
	interactionsvc.LikeAPI

	Feed(ctx context.Context) ([]domain.Post, error)
	Post(ctx context.Context, postID string) (*domain.PostDetails, error)
	CreatePost(ctx context.Context, req domain.CreatePostRequest) (*domain.Post, error)
	DeletePost(ctx context.Context, postID string) error
	Comment(ctx context.Context, postID, content string) (*domain.Comment, error)
}

var _ Gateway = (*apiclient.Gateway)(nil)

// ImagePreparer converts a picked image into an uploadable data URI.
type ImagePreparer interface {
	PrepareUpload(ctx context.Context, data []byte) (string, error)
}

// CurrentUser reports the signed-in user.
type CurrentUser interface {
	User() (domain.UserSnapshot, bool)
}

// Service implements the feed, post detail and post authoring screens.
type Service struct {
	gw       Gateway
	likes    *interactionsvc.Sync
	images   ImagePreparer
	session  CurrentUser
	notifier notify.Notifier
	log      logging.Logger
}

// NewService creates a feed Service.
func NewService(
	gw Gateway,
	likes *interactionsvc.Sync,
	images ImagePreparer,
	session CurrentUser,
	notifier notify.Notifier,
) *Service {
	if notifier == nil {
		notifier = notify.Nop()
	}

	return &Service{
		gw:       gw,
		likes:    likes,
		images:   images,
		session:  session,
		notifier: notifier,
		log:      logging.GetLogger("svc.feedsvc"),
	}
}

// List fetches the feed and seeds the like state of every post.
func (s *Service) List(ctx context.Context) ([]domain.Post, error) {
	posts, err := s.gw.Feed(ctx)
	if err != nil {
		return nil, err
	}

	for _, p := range posts {
		s.likes.Seed(interactionsvc.PostKey(p.ID), interactionsvc.State{Flag: p.Liked, Count: p.Likes})
	}

	return posts, nil
}

// Merged returns a copy of posts with the current like state applied.
func (s *Service) Merged(posts []domain.Post) []domain.Post {
	out := make([]domain.Post, len(posts))

	for i, p := range posts {
		if state, ok := s.likes.State(interactionsvc.PostKey(p.ID)); ok {
			p.Liked = state.Flag
			p.Likes = state.Count
		}

		out[i] = p
	}

	return out
}

// Post fetches a post with its comments and seeds its like state.
func (s *Service) Post(ctx context.Context, postID string) (*domain.PostDetails, error) {
	details, err := s.gw.Post(ctx, postID)
	if err != nil {
		return nil, err
	}

	s.likes.Seed(interactionsvc.PostKey(details.ID), interactionsvc.State{Flag: details.Liked, Count: details.Likes})

	return details, nil
}

// Release drops the like state of posts that are no longer shown.
func (s *Service) Release(postIDs ...string) {
	for _, id := range postIDs {
		s.likes.Release(interactionsvc.PostKey(id))
	}
}

// ToggleLike flips the like state of a seeded post.
func (s *Service) ToggleLike(ctx context.Context, postID string) (*interactionsvc.PendingMutation, error) {
	return s.likes.Toggle(ctx, interactionsvc.PostKey(postID), interactionsvc.LikeEndpoints(s.gw, postID))
}

// Create prepares image and publishes a post with the trimmed caption.
func (s *Service) Create(ctx context.Context, caption string, image []byte) (post *domain.Post, err error) {
	if len(image) == 0 {
		return nil, domain.Validationf("Please select an image.")
	}

	uri, err := s.images.PrepareUpload(ctx, image)
	if err != nil {
		return nil, domain.NewUserError(domain.ErrValidationFailed, "The selected image could not be used.", err)
	}

	defer func() {
		if err != nil {
			s.log.ErrorContext(ctx, "create post failed", "error", err)
			s.notifier.Notify(ctx, notify.Error("Could not publish post",
				messageOr(err, "Please try again.")))
		} else {
			s.log.InfoContext(ctx, "post created", logging.Group("post", "id", post.ID))
			s.notifier.Notify(ctx, notify.Success("Post published", ""))
		}
	}()

	return s.gw.CreatePost(ctx, domain.CreatePostRequest{
		ImageURL: uri,
		Caption:  strings.TrimSpace(caption),
	})
}

// Delete removes a post authored by the signed-in user.
func (s *Service) Delete(ctx context.Context, post domain.Post) (err error) {
	me, ok := s.session.User()
	if !ok {
		return domain.ErrUnauthorized
	}

	if post.Author.ID != me.ID {
		return fmt.Errorf("%w: %s", ErrNotOwner, post.ID)
	}

	log := s.log.With(logging.Group("post", "id", post.ID))

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "delete post failed", "error", err)
			s.notifier.Notify(ctx, notify.Error("Could not delete post",
				messageOr(err, "Please try again.")))
		} else {
			log.InfoContext(ctx, "post deleted")
			s.notifier.Notify(ctx, notify.Success("Post deleted", ""))
		}
	}()

	if err := s.gw.DeletePost(ctx, post.ID); err != nil {
		return err
	}

	s.likes.Release(interactionsvc.PostKey(post.ID))

	return nil
}

// Comment adds a comment with the trimmed content to a post.
func (s *Service) Comment(ctx context.Context, postID, content string) (*domain.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, domain.Validationf("Comment must not be empty.")
	}

	return s.gw.Comment(ctx, postID, content)
}

func messageOr(err error, fallback string) string {
	if msg := apiclient.ServerMessage(err); msg != "" {
		return msg
	}

	return fallback
}
