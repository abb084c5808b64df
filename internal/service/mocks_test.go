package service

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/Openverse-iiitk/mess-rating/internal/domain"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// --- Mock Rating Repository ---

type mockRatingRepository struct {
	mock.Mock
}

func (m *mockRatingRepository) FindByKey(ctx context.Context, key domain.RatingKey) (*domain.Rating, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Rating), args.Error(1)
}

func (m *mockRatingRepository) Aggregate(ctx context.Context, dish domain.DishKey) (domain.Aggregate, error) {
	args := m.Called(ctx, dish)
	return args.Get(0).(domain.Aggregate), args.Error(1)
}

func (m *mockRatingRepository) Upsert(ctx context.Context, r *domain.Rating) (bool, error) {
	args := m.Called(ctx, r)
	return args.Bool(0), args.Error(1)
}

func (m *mockRatingRepository) Create(ctx context.Context, r *domain.Rating) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func (m *mockRatingRepository) CountBySession(ctx context.Context, sessionHash, date string) (int, error) {
	args := m.Called(ctx, sessionHash, date)
	return args.Int(0), args.Error(1)
}

// --- Mock Aggregate Cache ---

type mockAggregateCache struct {
	mock.Mock
}

func (m *mockAggregateCache) Get(ctx context.Context, dish domain.DishKey) (domain.Aggregate, bool, error) {
	args := m.Called(ctx, dish)
	return args.Get(0).(domain.Aggregate), args.Bool(1), args.Error(2)
}

func (m *mockAggregateCache) Generation(ctx context.Context, dish domain.DishKey) (int64, error) {
	args := m.Called(ctx, dish)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockAggregateCache) Fill(ctx context.Context, dish domain.DishKey, gen int64, agg domain.Aggregate) (bool, error) {
	args := m.Called(ctx, dish, gen, agg)
	return args.Bool(0), args.Error(1)
}

func (m *mockAggregateCache) Invalidate(ctx context.Context, dish domain.DishKey) (int64, error) {
	args := m.Called(ctx, dish)
	return args.Get(0).(int64), args.Error(1)
}

// --- Mock Events ---

type mockRatingEvents struct {
	mock.Mock
}

func (m *mockRatingEvents) PublishRatingSubmitted(ctx context.Context, res *domain.SubmitResult) error {
	args := m.Called(ctx, res)
	return args.Error(0)
}

type mockIdentityEvents struct {
	mock.Mock
}

func (m *mockIdentityEvents) PublishUserSignedIn(ctx context.Context, subject string, at time.Time) error {
	args := m.Called(ctx, subject, at)
	return args.Error(0)
}

// --- Mock Identity Verifier ---

type mockVerifier struct {
	mock.Mock
}

func (m *mockVerifier) VerifyIDToken(ctx context.Context, idToken string) (*domain.Identity, error) {
	args := m.Called(ctx, idToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Identity), args.Error(1)
}

func (m *mockVerifier) ExchangeCode(ctx context.Context, code, redirectURI string) (*domain.Identity, error) {
	args := m.Called(ctx, code, redirectURI)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Identity), args.Error(1)
}

// --- Mock Profile Repository ---

type mockProfileRepository struct {
	mock.Mock
}

func (m *mockProfileRepository) Upsert(ctx context.Context, p *domain.UserProfile) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}
