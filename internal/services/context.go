package services

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey string

var uploaderIDKey ctxKey = "uploader_id"

// WithUploaderContext stores the authenticated uploader on ctx.
func WithUploaderContext(ctx context.Context, uploaderID uuid.UUID) context.Context {
	return context.WithValue(ctx, uploaderIDKey, uploaderID)
}

func UploaderIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	value := ctx.Value(uploaderIDKey)
	if value == nil {
		return uuid.Nil, false
	}
	uploaderID, ok := value.(uuid.UUID)
	return uploaderID, ok
}
