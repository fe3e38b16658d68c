package profilesvc

import (
	"cmp"
	"context"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mkrupp/nutrifit-client/internal/domain"
	"github.com/mkrupp/nutrifit-client/internal/infra/logging"
	"github.com/mkrupp/nutrifit-client/internal/notify"
	"github.com/mkrupp/nutrifit-client/internal/svc/apiclient"
	"github.com/mkrupp/nutrifit-client/internal/svc/interactionsvc"
)

// Gateway is the subset of apiclient.Gateway used by the profile screens.
type Gateway interface {
	interactionsvc.FollowAPI

	Me(ctx context.Context) (*domain.Profile, error)
	UpdateMe(ctx context.Context, req domain.UpdateProfileRequest) (*domain.Profile, error)
	PublicProfile(ctx context.Context, userID string) (*domain.PublicProfile, error)
	UserPosts(ctx context.Context, userID string) ([]domain.Post, error)
	SearchUsers(ctx context.Context, query string) ([]domain.UserSummary, error)
	WeightHistory(ctx context.Context) ([]domain.WeightEntry, error)
	AddWeight(ctx context.Context, weight float64) (*domain.WeightEntry, error)
}

var _ Gateway = (*apiclient.Gateway)(nil)

// ProfileRefresher updates the user snapshot held by the session.
type ProfileRefresher interface {
	RefreshProfile(ctx context.Context) (*domain.Profile, error)
}

// PublicProfileView is a public profile together with the posts of the user.
type PublicProfileView struct {
	Profile domain.PublicProfile
	Posts   []domain.Post
}

// Service implements the profile, public profile, search and weight log screens.
type Service struct {
	gw           Gateway
	interactions *interactionsvc.Sync
	refresher    ProfileRefresher
	notifier     notify.Notifier
	now          func() time.Time
	log          logging.Logger
}

// NewService creates a profile Service. refresher may be nil.
func NewService(
	gw Gateway,
	interactions *interactionsvc.Sync,
	refresher ProfileRefresher,
	notifier notify.Notifier,
) *Service {
	if notifier == nil {
		notifier = notify.Nop()
	}

	return &Service{
		gw:           gw,
		interactions: interactions,
		refresher:    refresher,
		notifier:     notifier,
		now:          time.Now,
		log:          logging.GetLogger("svc.profilesvc"),
	}
}

// Me fetches the profile of the signed-in user including stats.
func (s *Service) Me(ctx context.Context) (*domain.Profile, error) {
	return s.gw.Me(ctx)
}

// EditForm returns the current profile as editable form values.
func EditForm(profile domain.Profile) domain.ProfileUpdate {
	height := ""
	if profile.Height > 0 {
		height = strconv.FormatFloat(profile.Height, 'f', -1, 64)
	}

	return domain.ProfileUpdate{
		Name:         profile.Name,
		BirthDate:    domain.FormatBirthDate(profile.BirthDate),
		Height:       height,
		Goal:         profile.Goal,
		ProfileImage: profile.ProfileImage,
	}
}

// Update validates the form values and saves the profile. The session
// snapshot is refreshed afterwards.
func (s *Service) Update(ctx context.Context, form domain.ProfileUpdate) (profile *domain.Profile, err error) {
	req, err := s.validateUpdate(form)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err != nil {
			s.log.ErrorContext(ctx, "profile update failed", "error", err)
			s.notifier.Notify(ctx, notify.Error("Error", "Could not update profile."))
		} else {
			s.log.InfoContext(ctx, "profile updated")
			s.notifier.Notify(ctx, notify.Success("Success", "Profile updated."))
		}
	}()

	profile, err = s.gw.UpdateMe(ctx, req)
	if err != nil {
		return nil, err
	}

	if s.refresher != nil {
		if _, err := s.refresher.RefreshProfile(ctx); err != nil {
			s.log.WarnContext(ctx, "session profile refresh failed", "error", err)
		}
	}

	return profile, nil
}

func (s *Service) validateUpdate(form domain.ProfileUpdate) (req domain.UpdateProfileRequest, err error) {
	if req.Name, err = domain.Required("name", form.Name); err != nil {
		return req, err
	}

	if req.BirthDate, err = domain.ParseBirthDate(form.BirthDate, s.now()); err != nil {
		return req, err
	}

	if req.Height, err = domain.ParseDecimal("height", form.Height); err != nil {
		return req, err
	}

	req.Goal = cmp.Or(strings.TrimSpace(form.Goal), domain.DefaultGoal)
	req.ProfileImage = form.ProfileImage

	return req, nil
}

// PublicProfile fetches the profile and the posts of userID concurrently and
// seeds the follow state and the like states of the posts.
func (s *Service) PublicProfile(ctx context.Context, userID string) (*PublicProfileView, error) {
	var (
		view  PublicProfileView
		group errgroup.Group
	)

	group.Go(func() error {
		profile, err := s.gw.PublicProfile(ctx, userID)
		if err != nil {
			return err
		}

		view.Profile = *profile

		return nil
	})

	group.Go(func() error {
		posts, err := s.gw.UserPosts(ctx, userID)
		if err != nil {
			return err
		}

		view.Posts = posts

		return nil
	})

	if err := group.Wait(); err != nil {
		return nil, err
	}

	s.interactions.Seed(interactionsvc.FollowKey(userID), interactionsvc.State{
		Flag:  view.Profile.IsFollowing,
		Count: view.Profile.Count.Followers,
	})

	for _, p := range view.Posts {
		s.interactions.Seed(interactionsvc.PostKey(p.ID), interactionsvc.State{Flag: p.Liked, Count: p.Likes})
	}

	return &view, nil
}

// FollowState returns the current follow state of userID.
func (s *Service) FollowState(userID string) (interactionsvc.State, bool) {
	return s.interactions.State(interactionsvc.FollowKey(userID))
}

// ToggleFollow follows or unfollows a user whose public profile was loaded.
func (s *Service) ToggleFollow(ctx context.Context, userID string) (*interactionsvc.PendingMutation, error) {
	return s.interactions.Toggle(ctx, interactionsvc.FollowKey(userID), interactionsvc.FollowEndpoints(s.gw, userID))
}

// Search finds users by name. A blank query returns no users without a request.
func (s *Service) Search(ctx context.Context, query string) ([]domain.UserSummary, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.UserSummary{}, nil
	}

	return s.gw.SearchUsers(ctx, query)
}

// WeightHistory returns the weight log newest first. Each record carries the
// change against the next older measurement, rounded to 100g.
func (s *Service) WeightHistory(ctx context.Context) ([]domain.WeightRecord, error) {
	entries, err := s.gw.WeightHistory(ctx)
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(entries, func(a, b domain.WeightEntry) int {
		return b.Date.Compare(a.Date)
	})

	records := make([]domain.WeightRecord, len(entries))

	for i, entry := range entries {
		records[i] = domain.WeightRecord{WeightEntry: entry}

		if i+1 < len(entries) {
			records[i].Delta = math.Round((entry.Weight-entries[i+1].Weight)*10) / 10
		}
	}

	return records, nil
}

// AddWeight records a measurement given in kilograms. A comma is accepted as
// decimal separator.
func (s *Service) AddWeight(ctx context.Context, text string) (*domain.WeightEntry, error) {
	weight, err := domain.ParseDecimal("weight", text)
	if err != nil {
		return nil, err
	}

	entry, err := s.gw.AddWeight(ctx, weight)
	if err != nil {
		s.notifier.Notify(ctx, notify.Error("Error", "Could not record weight."))

		return nil, err
	}

	s.notifier.Notify(ctx, notify.Success("Success", "Weight recorded."))

	return entry, nil
}
