package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"github.com/Openverse-iiitk/mess-rating/internal/auth"
	"github.com/Openverse-iiitk/mess-rating/internal/domain"
	"github.com/Openverse-iiitk/mess-rating/internal/mealtime"
	"github.com/Openverse-iiitk/mess-rating/internal/repository"
	apperrors "github.com/Openverse-iiitk/mess-rating/pkg/errors"
	"github.com/Openverse-iiitk/mess-rating/pkg/logger"
)

var ratingsSubmitted = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "mess_ratings_submitted_total",
		Help: "Ratings written, by meal type and whether the write created or overwrote a rating.",
	},
	[]string{"meal_type", "outcome"},
)

// RatingEvents publishes rating domain events.
type RatingEvents interface {
	PublishRatingSubmitted(ctx context.Context, res *domain.SubmitResult) error
}

// DishCatalog reports whether a dish is served at a meal on a date.
type DishCatalog interface {
	Serves(date string, meal domain.MealType, dish string) bool
}

// RatingOptions toggles submission policies.
type RatingOptions struct {
	// RejectResubmit makes a second vote for the same dish fail with
	// ALREADY_RATED instead of overwriting the first.
	RejectResubmit bool
	// EnforceWindow rejects votes for a meal whose window is closed.
	EnforceWindow bool
	// Menu, when set, rejects votes for dishes it does not serve.
	Menu DishCatalog
}

// SubmitInput holds the parameters for submitting a rating.
type SubmitInput struct {
	Email    string
	DishName string
	MealType domain.MealType
	Date     string
	Score    int
}

// RatingService implements the business logic for rating operations.
type RatingService struct {
	repo   repository.RatingRepository
	cache  repository.AggregateCache
	events RatingEvents
	logger *slog.Logger
	opts   RatingOptions
	now    func() time.Time
}

// NewRatingService creates a new rating service. cache and events may be nil.
func NewRatingService(
	repo repository.RatingRepository,
	cache repository.AggregateCache,
	events RatingEvents,
	logger *slog.Logger,
	opts RatingOptions,
) *RatingService {
	return &RatingService{
		repo:   repo,
		cache:  cache,
		events: events,
		logger: logger,
		opts:   opts,
		now:    time.Now,
	}
}

func (s *RatingService) log(ctx context.Context) *slog.Logger {
	return logger.WithContext(ctx, s.logger)
}

// ValidateDish checks the dish/meal/date triple shared by every rating operation.
func ValidateDish(dish domain.DishKey) error {
	if strings.TrimSpace(dish.DishName) == "" {
		return apperrors.InvalidInput("dishName is required")
	}
	if !dish.MealType.Valid() {
		return apperrors.InvalidInput("mealType must be one of breakfast, lunch, snacks, dinner")
	}
	if !domain.ValidDate(dish.Date) {
		return apperrors.InvalidInput("date must be a YYYY-MM-DD calendar date")
	}
	return nil
}

// Submit validates and writes a rating, then returns it with the dish's
// fresh aggregate. Nothing touches the store until validation passes.
func (s *RatingService) Submit(ctx context.Context, in SubmitInput) (*domain.SubmitResult, error) {
	if in.Email == "" {
		return nil, apperrors.Unauthorized("sign in required")
	}
	dish := domain.DishKey{DishName: in.DishName, MealType: in.MealType, Date: in.Date}
	if err := ValidateDish(dish); err != nil {
		return nil, err
	}
	if in.Score < domain.MinScore || in.Score > domain.MaxScore {
		return nil, apperrors.InvalidInput(fmt.Sprintf("rating must be an integer between %d and %d", domain.MinScore, domain.MaxScore))
	}
	if s.opts.EnforceWindow && !mealtime.IsAvailable(in.MealType, s.now()) {
		return nil, apperrors.Forbidden("MEAL_CLOSED",
			fmt.Sprintf("voting for %s opens at %s", in.MealType, mealtime.OpensAt(in.MealType)))
	}
	if s.opts.Menu != nil && !s.opts.Menu.Serves(in.Date, in.MealType, in.DishName) {
		return nil, apperrors.NotFound("dish", fmt.Sprintf("%s at %s on %s", in.DishName, in.MealType, in.Date))
	}

	rating := domain.Rating{
		VoterKey:    auth.VoterKey(in.Email, in.DishName, in.MealType, in.Date),
		SessionHash: auth.SessionHash(in.Email, in.Date),
		DishName:    in.DishName,
		MealType:    in.MealType,
		Score:       in.Score,
		Date:        in.Date,
	}

	created := true
	var err error
	if s.opts.RejectResubmit {
		err = s.repo.Create(ctx, &rating)
	} else {
		created, err = s.repo.Upsert(ctx, &rating)
	}
	if err != nil {
		if errors.Is(err, apperrors.ErrAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("submit rating: %w", err)
	}

	outcome := "updated"
	if created {
		outcome = "created"
	}
	ratingsSubmitted.WithLabelValues(string(in.MealType), outcome).Inc()

	gen, fill := s.invalidate(ctx, dish)

	agg, err := s.repo.Aggregate(ctx, dish)
	if err != nil {
		return nil, fmt.Errorf("aggregate after submit: %w", err)
	}
	if fill {
		s.fill(ctx, dish, gen, agg)
	}

	res := &domain.SubmitResult{Rating: rating, Aggregate: agg, Created: created}

	if s.events != nil {
		if err := s.events.PublishRatingSubmitted(ctx, res); err != nil {
			s.log(ctx).ErrorContext(ctx, "failed to publish rating.submitted event",
				slog.String("error", err.Error()),
			)
		}
	}

	s.log(ctx).InfoContext(ctx, "rating submitted",
		slog.String("dish_name", rating.DishName),
		slog.String("meal_type", string(rating.MealType)),
		slog.String("date", rating.Date),
		slog.Bool("created", created),
	)

	return res, nil
}

// GetVote returns the caller's own rating for a dish. It returns ErrNotFound
// when they have not voted and ErrIntegrity if the store holds duplicates.
func (s *RatingService) GetVote(ctx context.Context, email string, dish domain.DishKey) (*domain.Rating, error) {
	if err := ValidateDish(dish); err != nil {
		return nil, err
	}
	key := domain.RatingKey{
		VoterKey: auth.VoterKey(email, dish.DishName, dish.MealType, dish.Date),
		DishName: dish.DishName,
		MealType: dish.MealType,
		Date:     dish.Date,
	}

	rating, err := s.repo.FindByKey(ctx, key)
	if err != nil {
		if errors.Is(err, apperrors.ErrIntegrity) {
			s.log(ctx).ErrorContext(ctx, "duplicate ratings for one voter key",
				slog.String("dish_name", dish.DishName),
				slog.String("meal_type", string(dish.MealType)),
				slog.String("date", dish.Date),
			)
		}
		return nil, err
	}
	return rating, nil
}

// GetAggregate returns the mean score and vote count for a dish, served from
// the cache when possible. Cache failures fall back to the store.
func (s *RatingService) GetAggregate(ctx context.Context, dish domain.DishKey) (domain.Aggregate, error) {
	if err := ValidateDish(dish); err != nil {
		return domain.Aggregate{}, err
	}

	var (
		gen  int64
		fill bool
	)
	if s.cache != nil {
		agg, ok, err := s.cache.Get(ctx, dish)
		switch {
		case err != nil:
			s.log(ctx).WarnContext(ctx, "aggregate cache read failed", slog.String("error", err.Error()))
		case ok:
			return agg, nil
		default:
			gen, fill = s.lookup(ctx, dish)
		}
	}

	agg, err := s.repo.Aggregate(ctx, dish)
	if err != nil {
		return domain.Aggregate{}, fmt.Errorf("get aggregate: %w", err)
	}
	if fill {
		s.fill(ctx, dish, gen, agg)
	}

	return agg, nil
}

// View fetches the caller's vote and the dish aggregate concurrently and
// reports whether the meal's window is open now.
func (s *RatingService) View(ctx context.Context, email string, dish domain.DishKey) (*domain.RatingView, error) {
	if err := ValidateDish(dish); err != nil {
		return nil, err
	}

	var (
		vote domain.Vote
		agg  domain.Aggregate
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := s.GetVote(gctx, email, dish)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return nil
			}
			return err
		}
		vote = domain.Vote{Rating: r}
		return nil
	})
	g.Go(func() error {
		var err error
		agg, err = s.GetAggregate(gctx, dish)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &domain.RatingView{
		DishKey:    dish,
		YourRating: vote.Score(),
		Aggregate:  agg,
		Available:  mealtime.IsAvailable(dish.MealType, s.now()),
		OpensAt:    mealtime.OpensAt(dish.MealType),
	}, nil
}

// VotedOn returns how many ratings the caller has recorded on date, using
// the per-day session hash.
func (s *RatingService) VotedOn(ctx context.Context, email, date string) (int, error) {
	if !domain.ValidDate(date) {
		return 0, apperrors.InvalidInput("date must be a YYYY-MM-DD calendar date")
	}
	n, err := s.repo.CountBySession(ctx, auth.SessionHash(email, date), date)
	if err != nil {
		return 0, fmt.Errorf("count session ratings: %w", err)
	}
	return n, nil
}

// Today returns the current date on the mess clock.
func (s *RatingService) Today() string {
	return mealtime.Date(s.now())
}

// invalidate drops the cached aggregate after a write. It returns the
// generation a fill must present, and false when the cache is unusable.
func (s *RatingService) invalidate(ctx context.Context, dish domain.DishKey) (int64, bool) {
	if s.cache == nil {
		return 0, false
	}
	gen, err := s.cache.Invalidate(ctx, dish)
	if err != nil {
		s.log(ctx).WarnContext(ctx, "aggregate cache invalidation failed", slog.String("error", err.Error()))
		return 0, false
	}
	return gen, true
}

// lookup reads the generation before the store is queried, so a write that
// commits in between makes the later fill a no-op.
func (s *RatingService) lookup(ctx context.Context, dish domain.DishKey) (int64, bool) {
	gen, err := s.cache.Generation(ctx, dish)
	if err != nil {
		s.log(ctx).WarnContext(ctx, "aggregate cache generation read failed", slog.String("error", err.Error()))
		return 0, false
	}
	return gen, true
}

func (s *RatingService) fill(ctx context.Context, dish domain.DishKey, gen int64, agg domain.Aggregate) {
	stored, err := s.cache.Fill(ctx, dish, gen, agg)
	if err != nil {
		s.log(ctx).WarnContext(ctx, "aggregate cache write failed", slog.String("error", err.Error()))
		return
	}
	if !stored {
		s.log(ctx).DebugContext(ctx, "aggregate cache fill skipped, dish changed",
			slog.String("dish_name", dish.DishName),
			slog.String("meal_type", string(dish.MealType)),
			slog.String("date", dish.Date),
		)
	}
}
