package store

import (
	"context"

	"github.com/joescharf/codelens/internal/models"
)

// Store defines the persistence interface for reviews.
// Every read is scoped by owner; there is no update or delete.
type Store interface {
	// CreateReview assigns the review id, its issue ids and CreatedAt, then persists it.
	CreateReview(ctx context.Context, r *models.Review) error
	// GetReview returns the review only when it belongs to userID.
	GetReview(ctx context.Context, id, userID string) (*models.Review, error)
	// ListReviews returns all reviews owned by userID, newest first.
	ListReviews(ctx context.Context, userID string) ([]*models.Review, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
