package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Openverse-iiitk/mess-rating/internal/domain"
	"github.com/Openverse-iiitk/mess-rating/pkg/database"
	apperrors "github.com/Openverse-iiitk/mess-rating/pkg/errors"
)

const (
	findRatingSQL = `
		SELECT user_hash, session_hash, dish_name, meal_type, rating, date::text, created_at
		FROM ratings
		WHERE user_hash = $1 AND dish_name = $2 AND meal_type = $3 AND date = $4
		LIMIT 2`

	aggregateSQL = `
		SELECT COALESCE(AVG(rating), 0)::float8, COUNT(*)
		FROM ratings
		WHERE dish_name = $1 AND meal_type = $2 AND date = $3`

	upsertRatingSQL = `
		INSERT INTO ratings (user_hash, session_hash, dish_name, meal_type, rating, date)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_hash, dish_name, meal_type, date)
		DO UPDATE SET rating = EXCLUDED.rating
		RETURNING created_at, (xmax = 0) AS inserted`

	createRatingSQL = `
		INSERT INTO ratings (user_hash, session_hash, dish_name, meal_type, rating, date)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_hash, dish_name, meal_type, date) DO NOTHING
		RETURNING created_at`

	countBySessionSQL = `
		SELECT COUNT(*)
		FROM ratings
		WHERE session_hash = $1 AND date = $2`
)

// RatingRepository implements rating persistence operations using PostgreSQL.
type RatingRepository struct {
	pool database.DBTX
}

// NewRatingRepository creates a new PostgreSQL-backed rating repository.
func NewRatingRepository(pool database.DBTX) *RatingRepository {
	return &RatingRepository{pool: pool}
}

// FindByKey reads at most two rows so a duplicate is reported instead of
// one being picked arbitrarily.
func (r *RatingRepository) FindByKey(ctx context.Context, key domain.RatingKey) (_ *domain.Rating, err error) {
	ctx, end := database.TraceQuery(ctx, "FindRating", findRatingSQL)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, findRatingSQL, key.VoterKey, key.DishName, string(key.MealType), key.Date)
	if err != nil {
		return nil, fmt.Errorf("find rating: %w", err)
	}
	defer rows.Close()

	var found []domain.Rating
	for rows.Next() {
		var (
			rt   domain.Rating
			meal string
		)
		if err := rows.Scan(
			&rt.VoterKey,
			&rt.SessionHash,
			&rt.DishName,
			&meal,
			&rt.Score,
			&rt.Date,
			&rt.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan rating row: %w", err)
		}
		rt.MealType = domain.MealType(meal)
		found = append(found, rt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rating rows: %w", err)
	}

	switch len(found) {
	case 0:
		return nil, apperrors.NotFound("rating", key.DishName+"/"+string(key.MealType)+"/"+key.Date)
	case 1:
		return &found[0], nil
	default:
		return nil, apperrors.Integrity(fmt.Sprintf("multiple ratings stored for one voter key on %s/%s/%s",
			key.DishName, key.MealType, key.Date))
	}
}

// Aggregate returns the mean score and vote count for a dish, with the mean
// rounded to one decimal and nil when nobody has voted.
func (r *RatingRepository) Aggregate(ctx context.Context, dish domain.DishKey) (_ domain.Aggregate, err error) {
	ctx, end := database.TraceQuery(ctx, "AggregateRatings", aggregateSQL)
	defer func() { end(err) }()

	var (
		mean  float64
		count int
	)
	err = r.pool.QueryRow(ctx, aggregateSQL, dish.DishName, string(dish.MealType), dish.Date).Scan(&mean, &count)
	if err != nil {
		return domain.Aggregate{}, fmt.Errorf("aggregate ratings: %w", err)
	}

	return domain.NewAggregate(mean, count), nil
}

// Upsert writes rt in one statement, so racing submissions for the same key
// converge on a single row carrying the last applied score.
func (r *RatingRepository) Upsert(ctx context.Context, rt *domain.Rating) (_ bool, err error) {
	ctx, end := database.TraceQuery(ctx, "UpsertRating", upsertRatingSQL)
	defer func() { end(err) }()

	var inserted bool
	err = r.pool.QueryRow(ctx, upsertRatingSQL,
		rt.VoterKey,
		rt.SessionHash,
		rt.DishName,
		string(rt.MealType),
		rt.Score,
		rt.Date,
	).Scan(&rt.CreatedAt, &inserted)
	if err != nil {
		return false, fmt.Errorf("upsert rating: %w", err)
	}

	return inserted, nil
}

// Create inserts rt unless a rating with the same key already exists.
func (r *RatingRepository) Create(ctx context.Context, rt *domain.Rating) (err error) {
	ctx, end := database.TraceQuery(ctx, "CreateRating", createRatingSQL)
	defer func() { end(err) }()

	err = r.pool.QueryRow(ctx, createRatingSQL,
		rt.VoterKey,
		rt.SessionHash,
		rt.DishName,
		string(rt.MealType),
		rt.Score,
		rt.Date,
	).Scan(&rt.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.AlreadyExists("ALREADY_RATED", "you have already rated this dish for this meal")
		}
		return fmt.Errorf("create rating: %w", err)
	}

	return nil
}

// CountBySession returns the number of ratings recorded under a session
// hash on date.
func (r *RatingRepository) CountBySession(ctx context.Context, sessionHash, date string) (_ int, err error) {
	ctx, end := database.TraceQuery(ctx, "CountRatingsBySession", countBySessionSQL)
	defer func() { end(err) }()

	var count int
	if err = r.pool.QueryRow(ctx, countBySessionSQL, sessionHash, date).Scan(&count); err != nil {
		return 0, fmt.Errorf("count ratings by session: %w", err)
	}
	return count, nil
}
