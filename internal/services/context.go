package services

import (
	"context"

	"ripple/pkg/logger"

	"github.com/google/uuid"
)

type principalKey struct{}

// WithUserContext stamps the authenticated principal onto the context.
// The user id is mirrored into the logger key so request logs carry it.
func WithUserContext(ctx context.Context, userID uuid.UUID) context.Context {
	ctx = context.WithValue(ctx, principalKey{}, userID)
	return context.WithValue(ctx, logger.UserIdKey, userID.String())
}

func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(principalKey{}).(uuid.UUID)
	return id, ok
}
