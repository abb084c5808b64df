package repository

import (
	"context"

	"github.com/Openverse-iiitk/mess-rating/internal/domain"
)

// RatingRepository defines rating persistence. The uniqueness tuple
// (voter key, dish, meal, date) is enforced by the store.
type RatingRepository interface {
	// FindByKey returns the rating stored under key. It returns ErrNotFound
	// when none exists and ErrIntegrity when more than one does.
	FindByKey(ctx context.Context, key domain.RatingKey) (*domain.Rating, error)

	// Aggregate returns the mean score and vote count for a dish.
	Aggregate(ctx context.Context, dish domain.DishKey) (domain.Aggregate, error)

	// Upsert inserts r, or overwrites the score of the existing rating with
	// the same key. It reports whether a new row was created and sets
	// r.CreatedAt to the stored creation time.
	Upsert(ctx context.Context, r *domain.Rating) (bool, error)

	// Create inserts r and fails with ErrAlreadyExists when a rating with the
	// same key exists.
	Create(ctx context.Context, r *domain.Rating) error

	// CountBySession returns how many ratings a session hash has on date.
	CountBySession(ctx context.Context, sessionHash, date string) (int, error)
}

// ProfileRepository defines user profile persistence.
type ProfileRepository interface {
	// Upsert inserts or refreshes a profile keyed by email.
	Upsert(ctx context.Context, p *domain.UserProfile) error
}

// AggregateCache caches dish aggregates in front of RatingRepository.
// Fills are guarded by a per-dish generation so an aggregate computed
// before a write can never overwrite one computed after it.
type AggregateCache interface {
	// Get returns the cached aggregate. The bool is false on a miss.
	Get(ctx context.Context, dish domain.DishKey) (domain.Aggregate, bool, error)

	// Generation returns the dish's current generation. Read it before
	// computing the aggregate that is passed to Fill.
	Generation(ctx context.Context, dish domain.DishKey) (int64, error)

	// Fill stores agg unless the dish was invalidated since gen. It
	// reports whether agg was stored.
	Fill(ctx context.Context, dish domain.DishKey, gen int64, agg domain.Aggregate) (bool, error)

	// Invalidate drops the cached aggregate for dish and returns the
	// new generation.
	Invalidate(ctx context.Context, dish domain.DishKey) (int64, error)
}
