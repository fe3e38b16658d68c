package context

import (
	"context"
)

const contextKeyUserID = contextKey("userID")

// UserIDFromContext extracts the signed-in user ID from the context.
// Returns the user ID and true if present, or empty string and false if not present.
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(contextKeyUserID).(string)

	return userID, ok && userID != ""
}

// WithUserID creates a new context with the given user ID value.
// Log records written with this context are tagged with the user.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextKeyUserID, userID)
}
