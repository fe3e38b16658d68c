package interactionsvc

import "context"

// PostKey is the target key of the like state of a post.
func PostKey(postID string) string {
	return "post:" + postID
}

// FollowKey is the target key of the follow relation to a user.
func FollowKey(userID string) string {
	return "follow:" + userID
}

// LikeAPI is implemented by apiclient.Gateway.
type LikeAPI interface {
	Like(ctx context.Context, postID string) error
	Unlike(ctx context.Context, postID string) error
}

// FollowAPI is implemented by apiclient.Gateway.
type FollowAPI interface {
	Follow(ctx context.Context, userID string) error
	Unfollow(ctx context.Context, userID string) error
}

// LikeEndpoints binds the like/unlike calls of postID.
func LikeEndpoints(api LikeAPI, postID string) Endpoints {
	return Endpoints{
		Kind:         "like",
		Apply:        func(ctx context.Context) error { return api.Like(ctx, postID) },
		Revert:       func(ctx context.Context) error { return api.Unlike(ctx, postID) },
		FailureTitle: "Could not update like",
	}
}

// FollowEndpoints binds the follow/unfollow calls of userID.
func FollowEndpoints(api FollowAPI, userID string) Endpoints {
	return Endpoints{
		Kind:          "follow",
		Apply:         func(ctx context.Context) error { return api.Follow(ctx, userID) },
		Revert:        func(ctx context.Context) error { return api.Unfollow(ctx, userID) },
		FailureTitle:  "Could not update follow",
		AppliedTitle:  "Following!",
		RevertedTitle: "Unfollowed.",
	}
}
