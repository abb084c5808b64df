package domain

import (
	"math"
	"time"
)

// DateLayout is the calendar date format used for rating dates.
const DateLayout = "2006-01-02"

// Score bounds, inclusive.
const (
	MinScore = 1
	MaxScore = 10
)

// Rating is one voter's score for a dish at a meal on a date. VoterKey is the
// anonymized identity; the raw email is never stored.
type Rating struct {
	VoterKey    string    `json:"-"`
	SessionHash string    `json:"-"`
	DishName    string    `json:"dishName"`
	MealType    MealType  `json:"mealType"`
	Score       int       `json:"rating"`
	Date        string    `json:"date"`
	CreatedAt   time.Time `json:"createdAt"`
}

// RatingKey is the uniqueness tuple of a rating.
type RatingKey struct {
	VoterKey string
	DishName string
	MealType MealType
	Date     string
}

// DishKey identifies a dish served at a meal on a date, across all voters.
type DishKey struct {
	DishName string   `json:"dishName"`
	MealType MealType `json:"mealType"`
	Date     string   `json:"date"`
}

// Key returns the uniqueness tuple of r.
func (r *Rating) Key() RatingKey {
	return RatingKey{VoterKey: r.VoterKey, DishName: r.DishName, MealType: r.MealType, Date: r.Date}
}

// Dish returns the dish r rates.
func (r *Rating) Dish() DishKey {
	return DishKey{DishName: r.DishName, MealType: r.MealType, Date: r.Date}
}

// Aggregate is the mean score and vote count for a dish. Average is nil when
// nobody has voted, so "no data" never reads as a score of 0.
type Aggregate struct {
	Average *float64 `json:"averageRating"`
	Count   int      `json:"count"`
}

// NewAggregate builds an Aggregate from a raw mean, rounding to one decimal.
func NewAggregate(mean float64, count int) Aggregate {
	if count <= 0 {
		return Aggregate{}
	}
	avg := RoundAverage(mean)
	return Aggregate{Average: &avg, Count: count}
}

// RoundAverage rounds to one decimal place, half away from zero.
func RoundAverage(x float64) float64 {
	return math.Round(x*10) / 10
}

// Vote is the caller's own rating for a dish, if any.
type Vote struct {
	Rating *Rating
}

// Found reports whether the caller has rated the dish.
func (v Vote) Found() bool {
	return v.Rating != nil
}

// Score returns the caller's score, or nil when they have not voted.
func (v Vote) Score() *int {
	if v.Rating == nil {
		return nil
	}
	s := v.Rating.Score
	return &s
}

// SubmitResult is returned after a rating is written.
type SubmitResult struct {
	Rating    Rating    `json:"rating"`
	Aggregate Aggregate `json:"aggregate"`
	// Created is false when an existing rating was overwritten.
	Created bool `json:"created"`
}

// RatingView is everything a dish card shows: the caller's vote, the
// aggregate and whether the meal is open for voting right now.
type RatingView struct {
	DishKey
	YourRating *int      `json:"yourRating"`
	Aggregate  Aggregate `json:"aggregate"`
	Available  bool      `json:"available"`
	OpensAt    string    `json:"opensAt"`
}

// ValidDate reports whether s is a YYYY-MM-DD calendar date.
func ValidDate(s string) bool {
	_, err := time.Parse(DateLayout, s)
	return err == nil
}
