package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Openverse-iiitk/mess-rating/internal/auth"
	"github.com/Openverse-iiitk/mess-rating/internal/domain"
	"github.com/Openverse-iiitk/mess-rating/internal/mealtime"
	"github.com/Openverse-iiitk/mess-rating/internal/menu"
	rediscache "github.com/Openverse-iiitk/mess-rating/internal/repository/redis"
	apperrors "github.com/Openverse-iiitk/mess-rating/pkg/errors"
)

const testEmail = "student@iiitkottayam.ac.in"

// --- Test Helpers ---

func newTestRatingService(repo *mockRatingRepository, cache *mockAggregateCache, events *mockRatingEvents, opts RatingOptions) *RatingService {
	svc := NewRatingService(repo, nil, nil, newTestLogger(), opts)
	if cache != nil {
		svc.cache = cache
	}
	if events != nil {
		svc.events = events
	}
	return svc
}

func sampleDish() domain.DishKey {
	return domain.DishKey{DishName: "Idli", MealType: domain.MealBreakfast, Date: "2025-01-06"}
}

func sampleInput() SubmitInput {
	return SubmitInput{Email: testEmail, DishName: "Idli", MealType: domain.MealBreakfast, Date: "2025-01-06", Score: 8}
}

func avgPtr(f float64) *float64 { return &f }

func atIST(h, m int) func() time.Time {
	return func() time.Time { return time.Date(2025, 1, 6, h, m, 0, 0, mealtime.Zone) }
}

// --- Submit ---

func TestSubmit_Success(t *testing.T) {
	repo := new(mockRatingRepository)
	cache := new(mockAggregateCache)
	events := new(mockRatingEvents)
	svc := newTestRatingService(repo, cache, events, RatingOptions{})
	ctx := context.Background()

	wantKey := auth.VoterKey(testEmail, "Idli", domain.MealBreakfast, "2025-01-06")
	agg := domain.Aggregate{Average: avgPtr(7.5), Count: 2}

	repo.On("Upsert", ctx, mock.MatchedBy(func(r *domain.Rating) bool {
		return r.VoterKey == wantKey &&
			r.SessionHash == auth.SessionHash(testEmail, "2025-01-06") &&
			r.Score == 8
	})).Return(true, nil)
	cache.On("Invalidate", ctx, sampleDish()).Return(int64(3), nil)
	repo.On("Aggregate", ctx, sampleDish()).Return(agg, nil)
	cache.On("Fill", ctx, sampleDish(), int64(3), agg).Return(true, nil)
	events.On("PublishRatingSubmitted", ctx, mock.AnythingOfType("*domain.SubmitResult")).Return(nil)

	before := testutil.ToFloat64(ratingsSubmitted.WithLabelValues("breakfast", "created"))

	res, err := svc.Submit(ctx, sampleInput())
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, 8, res.Rating.Score)
	assert.Equal(t, wantKey, res.Rating.VoterKey)
	assert.Equal(t, agg, res.Aggregate)
	assert.Equal(t, before+1, testutil.ToFloat64(ratingsSubmitted.WithLabelValues("breakfast", "created")))

	repo.AssertExpectations(t)
	cache.AssertExpectations(t)
	events.AssertExpectations(t)
}

func TestSubmit_OverwriteCountsAsUpdated(t *testing.T) {
	repo := new(mockRatingRepository)
	svc := newTestRatingService(repo, nil, nil, RatingOptions{})
	ctx := context.Background()

	repo.On("Upsert", ctx, mock.Anything).Return(false, nil)
	repo.On("Aggregate", ctx, sampleDish()).Return(domain.NewAggregate(4, 1), nil)

	before := testutil.ToFloat64(ratingsSubmitted.WithLabelValues("breakfast", "updated"))

	in := sampleInput()
	in.Score = 4
	res, err := svc.Submit(ctx, in)
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, before+1, testutil.ToFloat64(ratingsSubmitted.WithLabelValues("breakfast", "updated")))
}

func TestSubmit_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SubmitInput)
		want   string
	}{
		{"empty dish", func(in *SubmitInput) { in.DishName = "  " }, "dishName"},
		{"unknown meal", func(in *SubmitInput) { in.MealType = "brunch" }, "mealType"},
		{"bad date", func(in *SubmitInput) { in.Date = "06/01/2025" }, "date"},
		{"score too low", func(in *SubmitInput) { in.Score = 0 }, "between 1 and 10"},
		{"score too high", func(in *SubmitInput) { in.Score = 11 }, "between 1 and 10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(mockRatingRepository)
			svc := newTestRatingService(repo, nil, nil, RatingOptions{})

			in := sampleInput()
			tt.mutate(&in)
			res, err := svc.Submit(context.Background(), in)

			assert.Nil(t, res)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
			assert.Contains(t, err.Error(), tt.want)
			repo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
			repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestSubmit_BoundaryScoresAccepted(t *testing.T) {
	for _, score := range []int{domain.MinScore, domain.MaxScore} {
		repo := new(mockRatingRepository)
		svc := newTestRatingService(repo, nil, nil, RatingOptions{})
		repo.On("Upsert", mock.Anything, mock.Anything).Return(true, nil)
		repo.On("Aggregate", mock.Anything, sampleDish()).Return(domain.NewAggregate(float64(score), 1), nil)

		in := sampleInput()
		in.Score = score
		_, err := svc.Submit(context.Background(), in)
		assert.NoError(t, err, "score %d", score)
	}
}

func TestSubmit_NoEmailIsUnauthorized(t *testing.T) {
	svc := newTestRatingService(new(mockRatingRepository), nil, nil, RatingOptions{})
	in := sampleInput()
	in.Email = ""

	_, err := svc.Submit(context.Background(), in)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestSubmit_StoreErrorIsInternal(t *testing.T) {
	repo := new(mockRatingRepository)
	svc := newTestRatingService(repo, nil, nil, RatingOptions{})
	repo.On("Upsert", mock.Anything, mock.Anything).Return(false, fmt.Errorf("upsert rating: %w", errors.New("connection refused")))

	_, err := svc.Submit(context.Background(), sampleInput())
	require.Error(t, err)
	assert.Equal(t, 500, apperrors.HTTPStatus(err))
	repo.AssertNotCalled(t, "Aggregate", mock.Anything, mock.Anything)
}

func TestSubmit_RejectResubmit(t *testing.T) {
	repo := new(mockRatingRepository)
	svc := newTestRatingService(repo, nil, nil, RatingOptions{RejectResubmit: true})
	repo.On("Create", mock.Anything, mock.Anything).
		Return(apperrors.AlreadyExists("ALREADY_RATED", "you have already rated this dish for this meal"))

	_, err := svc.Submit(context.Background(), sampleInput())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
	assert.Equal(t, 409, apperrors.HTTPStatus(err))
	repo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

func TestSubmit_RejectResubmitFirstVote(t *testing.T) {
	repo := new(mockRatingRepository)
	svc := newTestRatingService(repo, nil, nil, RatingOptions{RejectResubmit: true})
	repo.On("Create", mock.Anything, mock.Anything).Return(nil)
	repo.On("Aggregate", mock.Anything, sampleDish()).Return(domain.NewAggregate(8, 1), nil)

	res, err := svc.Submit(context.Background(), sampleInput())
	require.NoError(t, err)
	assert.True(t, res.Created)
}

func TestSubmit_EnforceWindow(t *testing.T) {
	repo := new(mockRatingRepository)
	svc := newTestRatingService(repo, nil, nil, RatingOptions{EnforceWindow: true})
	svc.now = atIST(6, 0)

	_, err := svc.Submit(context.Background(), sampleInput())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
	assert.Contains(t, err.Error(), "07:15")

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "MEAL_CLOSED", appErr.Code)

	svc.now = atIST(7, 15)
	repo.On("Upsert", mock.Anything, mock.Anything).Return(true, nil)
	repo.On("Aggregate", mock.Anything, sampleDish()).Return(domain.NewAggregate(8, 1), nil)
	_, err = svc.Submit(context.Background(), sampleInput())
	assert.NoError(t, err)
}

func TestSubmit_BestEffortFailuresDoNotFail(t *testing.T) {
	repo := new(mockRatingRepository)
	cache := new(mockAggregateCache)
	events := new(mockRatingEvents)
	svc := newTestRatingService(repo, cache, events, RatingOptions{})

	repo.On("Upsert", mock.Anything, mock.Anything).Return(true, nil)
	repo.On("Aggregate", mock.Anything, sampleDish()).Return(domain.NewAggregate(8, 1), nil)
	cache.On("Invalidate", mock.Anything, sampleDish()).Return(int64(0), errors.New("redis down"))
	events.On("PublishRatingSubmitted", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	res, err := svc.Submit(context.Background(), sampleInput())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Aggregate.Count)
	cache.AssertNotCalled(t, "Fill", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmit_AggregateFailureAfterWrite(t *testing.T) {
	repo := new(mockRatingRepository)
	svc := newTestRatingService(repo, nil, nil, RatingOptions{})
	repo.On("Upsert", mock.Anything, mock.Anything).Return(true, nil)
	repo.On("Aggregate", mock.Anything, sampleDish()).Return(domain.Aggregate{}, errors.New("timeout"))

	_, err := svc.Submit(context.Background(), sampleInput())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "aggregate after submit")
}

// fakeRatingStore enforces the uniqueness tuple the way the database does.
type fakeRatingStore struct {
	mu   sync.Mutex
	rows map[domain.RatingKey]domain.Rating
}

func (f *fakeRatingStore) FindByKey(_ context.Context, key domain.RatingKey) (*domain.Rating, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[key]
	if !ok {
		return nil, apperrors.NotFound("rating", key.DishName)
	}
	return &r, nil
}

func (f *fakeRatingStore) Aggregate(_ context.Context, dish domain.DishKey) (domain.Aggregate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sum, n := 0, 0
	for _, r := range f.rows {
		if r.Dish() == dish {
			sum += r.Score
			n++
		}
	}
	if n == 0 {
		return domain.Aggregate{}, nil
	}
	return domain.NewAggregate(float64(sum)/float64(n), n), nil
}

func (f *fakeRatingStore) Upsert(_ context.Context, r *domain.Rating) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, exists := f.rows[r.Key()]
	f.rows[r.Key()] = *r
	return !exists, nil
}

func (f *fakeRatingStore) Create(_ context.Context, r *domain.Rating) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.rows[r.Key()]; exists {
		return apperrors.AlreadyExists("ALREADY_RATED", "already rated")
	}
	f.rows[r.Key()] = *r
	return nil
}

func (f *fakeRatingStore) CountBySession(_ context.Context, sessionHash, date string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.rows {
		if r.SessionHash == sessionHash && r.Date == date {
			n++
		}
	}
	return n, nil
}

func TestSubmit_ConcurrentSameKeyConvergesToOneRow(t *testing.T) {
	store := &fakeRatingStore{rows: make(map[domain.RatingKey]domain.Rating)}
	svc := NewRatingService(store, nil, nil, newTestLogger(), RatingOptions{})

	var wg sync.WaitGroup
	for score := 1; score <= 10; score++ {
		wg.Add(1)
		go func(score int) {
			defer wg.Done()
			in := sampleInput()
			in.Score = score
			_, err := svc.Submit(context.Background(), in)
			assert.NoError(t, err)
		}(score)
	}
	wg.Wait()

	require.Len(t, store.rows, 1)
	agg, err := svc.GetAggregate(context.Background(), sampleDish())
	require.NoError(t, err)
	assert.Equal(t, 1, agg.Count)

	n, err := svc.VotedOn(context.Background(), testEmail, "2025-01-06")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSubmit_RequireMenuDish(t *testing.T) {
	m, err := menu.Load()
	require.NoError(t, err)
	repo := new(mockRatingRepository)
	svc := newTestRatingService(repo, nil, nil, RatingOptions{Menu: m})
	ctx := context.Background()

	in := SubmitInput{Email: testEmail, DishName: "Pizza", MealType: domain.MealLunch, Date: "2025-01-06", Score: 7}
	_, err = svc.Submit(ctx, in)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	repo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)

	lunch := domain.DishKey{DishName: "Jeera Rice", MealType: domain.MealLunch, Date: "2025-01-06"}
	repo.On("Upsert", ctx, mock.Anything).Return(true, nil)
	repo.On("Aggregate", ctx, lunch).Return(domain.NewAggregate(7, 1), nil)

	in.DishName = "Jeera Rice"
	res, err := svc.Submit(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Aggregate.Count)
}

func TestGetAggregate_MeanAcrossVoters(t *testing.T) {
	store := &fakeRatingStore{rows: make(map[domain.RatingKey]domain.Rating)}
	svc := NewRatingService(store, nil, nil, newTestLogger(), RatingOptions{})
	ctx := context.Background()

	for i, score := range []int{6, 8, 10} {
		in := sampleInput()
		in.Email = fmt.Sprintf("student%d@iiitkottayam.ac.in", i)
		in.Score = score
		_, err := svc.Submit(ctx, in)
		require.NoError(t, err)
	}

	agg, err := svc.GetAggregate(ctx, sampleDish())
	require.NoError(t, err)
	require.NotNil(t, agg.Average)
	assert.Equal(t, 8.0, *agg.Average)
	assert.Equal(t, 3, agg.Count)
}

// stallingStore computes its first aggregate at once but holds the result
// until release is closed, like a read that started before a write.
type stallingStore struct {
	*fakeRatingStore
	once     sync.Once
	computed chan struct{}
	release  chan struct{}
}

func (s *stallingStore) Aggregate(ctx context.Context, dish domain.DishKey) (domain.Aggregate, error) {
	first := false
	s.once.Do(func() { first = true })
	agg, err := s.fakeRatingStore.Aggregate(ctx, dish)
	if first {
		close(s.computed)
		<-s.release
	}
	return agg, err
}

func TestGetAggregate_SlowReadCannotOverwriteNewerAggregate(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := &stallingStore{
		fakeRatingStore: &fakeRatingStore{rows: make(map[domain.RatingKey]domain.Rating)},
		computed:        make(chan struct{}),
		release:         make(chan struct{}),
	}
	cache := rediscache.NewAggregateCache(client, 30*time.Second)
	svc := NewRatingService(store, cache, nil, newTestLogger(), RatingOptions{})
	ctx := context.Background()

	type result struct {
		agg domain.Aggregate
		err error
	}
	slow := make(chan result, 1)
	go func() {
		agg, err := svc.GetAggregate(ctx, sampleDish())
		slow <- result{agg, err}
	}()
	<-store.computed

	res, err := svc.Submit(ctx, sampleInput())
	require.NoError(t, err)
	require.Equal(t, 1, res.Aggregate.Count)

	close(store.release)
	before := <-slow
	require.NoError(t, before.err)
	assert.Equal(t, 0, before.agg.Count)

	agg, err := svc.GetAggregate(ctx, sampleDish())
	require.NoError(t, err)
	assert.Equal(t, 1, agg.Count)
	require.NotNil(t, agg.Average)
	assert.Equal(t, 8.0, *agg.Average)

	cached, ok, err := cache.Get(ctx, sampleDish())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, cached.Count)
}

// --- GetVote ---

func TestGetVote_Found(t *testing.T) {
	repo := new(mockRatingRepository)
	svc := newTestRatingService(repo, nil, nil, RatingOptions{})

	key := domain.RatingKey{
		VoterKey: auth.VoterKey(testEmail, "Idli", domain.MealBreakfast, "2025-01-06"),
		DishName: "Idli",
		MealType: domain.MealBreakfast,
		Date:     "2025-01-06",
	}
	repo.On("FindByKey", mock.Anything, key).Return(&domain.Rating{Score: 9}, nil)

	r, err := svc.GetVote(context.Background(), testEmail, sampleDish())
	require.NoError(t, err)
	assert.Equal(t, 9, r.Score)
	repo.AssertExpectations(t)
}

func TestGetVote_PassesThroughNotFoundAndIntegrity(t *testing.T) {
	for _, want := range []error{apperrors.ErrNotFound, apperrors.ErrIntegrity} {
		repo := new(mockRatingRepository)
		svc := newTestRatingService(repo, nil, nil, RatingOptions{})

		var repoErr error = apperrors.NotFound("rating", "Idli")
		if want == apperrors.ErrIntegrity {
			repoErr = apperrors.Integrity("duplicate")
		}
		repo.On("FindByKey", mock.Anything, mock.Anything).Return(nil, repoErr)

		_, err := svc.GetVote(context.Background(), testEmail, sampleDish())
		assert.ErrorIs(t, err, want)
	}
}

// --- GetAggregate ---

func TestGetAggregate_CacheHit(t *testing.T) {
	repo := new(mockRatingRepository)
	cache := new(mockAggregateCache)
	svc := newTestRatingService(repo, cache, nil, RatingOptions{})

	cached := domain.Aggregate{Average: avgPtr(6.5), Count: 4}
	cache.On("Get", mock.Anything, sampleDish()).Return(cached, true, nil)

	agg, err := svc.GetAggregate(context.Background(), sampleDish())
	require.NoError(t, err)
	assert.Equal(t, cached, agg)
	repo.AssertNotCalled(t, "Aggregate", mock.Anything, mock.Anything)
}

func TestGetAggregate_CacheMissFillsCache(t *testing.T) {
	repo := new(mockRatingRepository)
	cache := new(mockAggregateCache)
	svc := newTestRatingService(repo, cache, nil, RatingOptions{})

	fresh := domain.Aggregate{Average: avgPtr(7), Count: 1}
	cache.On("Get", mock.Anything, sampleDish()).Return(domain.Aggregate{}, false, nil)
	cache.On("Generation", mock.Anything, sampleDish()).Return(int64(5), nil)
	repo.On("Aggregate", mock.Anything, sampleDish()).Return(fresh, nil)
	cache.On("Fill", mock.Anything, sampleDish(), int64(5), fresh).Return(true, nil)

	agg, err := svc.GetAggregate(context.Background(), sampleDish())
	require.NoError(t, err)
	assert.Equal(t, fresh, agg)
	cache.AssertExpectations(t)
}

func TestGetAggregate_CacheErrorFallsBackToStore(t *testing.T) {
	repo := new(mockRatingRepository)
	cache := new(mockAggregateCache)
	svc := newTestRatingService(repo, cache, nil, RatingOptions{})

	cache.On("Get", mock.Anything, sampleDish()).Return(domain.Aggregate{}, false, errors.New("redis down"))
	repo.On("Aggregate", mock.Anything, sampleDish()).Return(domain.Aggregate{}, nil)

	agg, err := svc.GetAggregate(context.Background(), sampleDish())
	require.NoError(t, err)
	assert.Nil(t, agg.Average)
	cache.AssertNotCalled(t, "Fill", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGetAggregate_GenerationErrorSkipsFill(t *testing.T) {
	repo := new(mockRatingRepository)
	cache := new(mockAggregateCache)
	svc := newTestRatingService(repo, cache, nil, RatingOptions{})

	cache.On("Get", mock.Anything, sampleDish()).Return(domain.Aggregate{}, false, nil)
	cache.On("Generation", mock.Anything, sampleDish()).Return(int64(0), errors.New("redis down"))
	repo.On("Aggregate", mock.Anything, sampleDish()).Return(domain.NewAggregate(6, 2), nil)

	agg, err := svc.GetAggregate(context.Background(), sampleDish())
	require.NoError(t, err)
	assert.Equal(t, 2, agg.Count)
	cache.AssertNotCalled(t, "Fill", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGetAggregate_InvalidMeal(t *testing.T) {
	svc := newTestRatingService(new(mockRatingRepository), nil, nil, RatingOptions{})
	dish := sampleDish()
	dish.MealType = "Lunch"

	_, err := svc.GetAggregate(context.Background(), dish)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

// --- View ---

func TestView_VoteAndAggregate(t *testing.T) {
	repo := new(mockRatingRepository)
	svc := newTestRatingService(repo, nil, nil, RatingOptions{})
	svc.now = atIST(8, 0)

	repo.On("FindByKey", mock.Anything, mock.Anything).Return(&domain.Rating{Score: 9}, nil)
	repo.On("Aggregate", mock.Anything, sampleDish()).Return(domain.Aggregate{Average: avgPtr(8.5), Count: 2}, nil)

	view, err := svc.View(context.Background(), testEmail, sampleDish())
	require.NoError(t, err)
	require.NotNil(t, view.YourRating)
	assert.Equal(t, 9, *view.YourRating)
	assert.Equal(t, 2, view.Aggregate.Count)
	assert.True(t, view.Available)
	assert.Equal(t, "07:15", view.OpensAt)
	assert.Equal(t, sampleDish(), view.DishKey)
}

func TestView_NoVoteYetAndClosed(t *testing.T) {
	repo := new(mockRatingRepository)
	svc := newTestRatingService(repo, nil, nil, RatingOptions{})
	svc.now = atIST(23, 30)

	repo.On("FindByKey", mock.Anything, mock.Anything).Return(nil, apperrors.NotFound("rating", "Idli"))
	repo.On("Aggregate", mock.Anything, sampleDish()).Return(domain.Aggregate{}, nil)

	view, err := svc.View(context.Background(), testEmail, sampleDish())
	require.NoError(t, err)
	assert.Nil(t, view.YourRating)
	assert.Nil(t, view.Aggregate.Average)
	assert.False(t, view.Available)
}

func TestView_AggregateErrorFails(t *testing.T) {
	repo := new(mockRatingRepository)
	svc := newTestRatingService(repo, nil, nil, RatingOptions{})

	repo.On("FindByKey", mock.Anything, mock.Anything).Return(nil, apperrors.NotFound("rating", "Idli"))
	repo.On("Aggregate", mock.Anything, sampleDish()).Return(domain.Aggregate{}, errors.New("timeout"))

	_, err := svc.View(context.Background(), testEmail, sampleDish())
	assert.ErrorContains(t, err, "get aggregate")
}

func TestView_IntegrityErrorFails(t *testing.T) {
	repo := new(mockRatingRepository)
	svc := newTestRatingService(repo, nil, nil, RatingOptions{})

	repo.On("FindByKey", mock.Anything, mock.Anything).Return(nil, apperrors.Integrity("duplicate"))
	repo.On("Aggregate", mock.Anything, sampleDish()).Return(domain.Aggregate{}, nil).Maybe()

	_, err := svc.View(context.Background(), testEmail, sampleDish())
	assert.ErrorIs(t, err, apperrors.ErrIntegrity)
}

// --- VotedOn / Today ---

func TestVotedOn(t *testing.T) {
	repo := new(mockRatingRepository)
	svc := newTestRatingService(repo, nil, nil, RatingOptions{})
	repo.On("CountBySession", mock.Anything, auth.SessionHash(testEmail, "2025-01-06"), "2025-01-06").Return(3, nil)

	n, err := svc.VotedOn(context.Background(), testEmail, "2025-01-06")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = svc.VotedOn(context.Background(), testEmail, "yesterday")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestToday_UsesMessClock(t *testing.T) {
	svc := newTestRatingService(new(mockRatingRepository), nil, nil, RatingOptions{})
	svc.now = func() time.Time { return time.Date(2025, 1, 6, 19, 0, 0, 0, time.UTC) }
	assert.Equal(t, "2025-01-07", svc.Today())
}
