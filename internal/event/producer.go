package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Openverse-iiitk/mess-rating/internal/domain"
	pkgkafka "github.com/Openverse-iiitk/mess-rating/pkg/kafka"
	"github.com/Openverse-iiitk/mess-rating/pkg/logger"
)

// Kafka topics for mess rating domain events.
var (
	TopicRatingSubmitted = pkgkafka.Topic("rating", "submitted")
	TopicUserSignedIn    = pkgkafka.Topic("user", "signed_in")
)

// Aggregate type constants.
const (
	AggregateTypeDish = "dish"
	AggregateTypeUser = "user"
)

// SourceMessRating identifies events originating from this service.
const SourceMessRating = "mess-rating"

// RatingSubmittedData is the payload for a rating.submitted event. It
// carries no voter identity.
type RatingSubmittedData struct {
	DishName      string          `json:"dish_name"`
	MealType      domain.MealType `json:"meal_type"`
	Date          string          `json:"date"`
	Rating        int             `json:"rating"`
	Created       bool            `json:"created"`
	AverageRating *float64        `json:"average_rating"`
	VoteCount     int             `json:"vote_count"`
}

// UserSignedInData is the payload for a user.signed_in event.
type UserSignedInData struct {
	Subject    string    `json:"subject"`
	SignedInAt time.Time `json:"signed_in_at"`
}

// Publisher writes an event to a topic. *pkgkafka.Producer implements it.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes mess rating domain events to Kafka. A Producer built
// with a nil Publisher drops every event, which is how the service runs
// with Kafka disabled.
type Producer struct {
	kafka  Publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer.
func NewProducer(kafka Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// Enabled reports whether events are actually published.
func (p *Producer) Enabled() bool {
	return p.kafka != nil
}

// DishAggregateID is the event key for a dish, so every event for one dish
// lands on the same partition.
func DishAggregateID(dish domain.DishKey) string {
	return dish.Date + "/" + string(dish.MealType) + "/" + dish.DishName
}

// PublishRatingSubmitted publishes a rating.submitted event.
func (p *Producer) PublishRatingSubmitted(ctx context.Context, res *domain.SubmitResult) error {
	if !p.Enabled() {
		return nil
	}

	dish := res.Rating.Dish()
	data := RatingSubmittedData{
		DishName:      dish.DishName,
		MealType:      dish.MealType,
		Date:          dish.Date,
		Rating:        res.Rating.Score,
		Created:       res.Created,
		AverageRating: res.Aggregate.Average,
		VoteCount:     res.Aggregate.Count,
	}

	return p.publish(ctx, TopicRatingSubmitted, DishAggregateID(dish), AggregateTypeDish, data)
}

// PublishUserSignedIn publishes a user.signed_in event keyed by the user's
// pseudonym.
func (p *Producer) PublishUserSignedIn(ctx context.Context, subject string, at time.Time) error {
	if !p.Enabled() {
		return nil
	}

	data := UserSignedInData{Subject: subject, SignedInAt: at.UTC()}
	return p.publish(ctx, TopicUserSignedIn, subject, AggregateTypeUser, data)
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID, aggregateType string, data any) error {
	event, err := pkgkafka.NewEvent(topic, aggregateID, aggregateType, SourceMessRating, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published domain event",
		slog.String("topic", topic),
		slog.String("aggregate_id", aggregateID),
	)

	return nil
}
