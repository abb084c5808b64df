package http

import (
	"log/slog"
	"net/http"

	"github.com/Openverse-iiitk/mess-rating/internal/domain"
	"github.com/Openverse-iiitk/mess-rating/internal/service"
	"github.com/Openverse-iiitk/mess-rating/pkg/httputil"
	"github.com/Openverse-iiitk/mess-rating/pkg/middleware"
	"github.com/Openverse-iiitk/mess-rating/pkg/validator"
)

// RatingHandler handles HTTP requests for rating endpoints.
type RatingHandler struct {
	service *service.RatingService
	logger  *slog.Logger
}

// NewRatingHandler creates a new rating HTTP handler.
func NewRatingHandler(svc *service.RatingService, logger *slog.Logger) *RatingHandler {
	return &RatingHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// SubmitRatingRequest is the JSON request body for submitting a rating.
type SubmitRatingRequest struct {
	DishName string `json:"dishName" validate:"required,max=200"`
	MealType string `json:"mealType" validate:"required,oneof=breakfast lunch snacks dinner"`
	Rating   int    `json:"rating" validate:"min=1,max=10"`
	Date     string `json:"date" validate:"required,datetime=2006-01-02"`
}

// VotedTodayResponse reports how many dishes the caller rated on a date.
type VotedTodayResponse struct {
	Date     string `json:"date"`
	Count    int    `json:"count"`
	HasVoted bool   `json:"hasVoted"`
}

var dishParams = []string{"dishName", "mealType", "date"}

func dishFromQuery(q map[string]string) domain.DishKey {
	return domain.DishKey{
		DishName: q["dishName"],
		MealType: domain.MealType(q["mealType"]),
		Date:     q["date"],
	}
}

// --- Handlers ---

// Submit handles POST /api/v1/ratings
func (h *RatingHandler) Submit(w http.ResponseWriter, r *http.Request) {
	email := middleware.EmailFromContext(r.Context())
	if email == "" {
		httputil.WriteErrorCode(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "sign in required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
	var req SubmitRatingRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	res, err := h.service.Submit(r.Context(), service.SubmitInput{
		Email:    email,
		DishName: req.DishName,
		MealType: domain.MealType(req.MealType),
		Date:     req.Date,
		Score:    req.Rating,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, res)
}

// Average handles GET /api/v1/ratings?dishName=&mealType=&date=
// The body is the bare aggregate, not the data envelope.
func (h *RatingHandler) Average(w http.ResponseWriter, r *http.Request) {
	q, ok := httputil.RequireQuery(w, r, dishParams...)
	if !ok {
		return
	}

	agg, err := h.service.GetAggregate(r.Context(), dishFromQuery(q))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, agg)
}

// Me handles GET /api/v1/ratings/me?dishName=&mealType=&date=
func (h *RatingHandler) Me(w http.ResponseWriter, r *http.Request) {
	q, ok := httputil.RequireQuery(w, r, dishParams...)
	if !ok {
		return
	}

	rating, err := h.service.GetVote(r.Context(), middleware.EmailFromContext(r.Context()), dishFromQuery(q))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, rating)
}

// View handles GET /api/v1/ratings/view?dishName=&mealType=&date=
func (h *RatingHandler) View(w http.ResponseWriter, r *http.Request) {
	q, ok := httputil.RequireQuery(w, r, dishParams...)
	if !ok {
		return
	}

	view, err := h.service.View(r.Context(), middleware.EmailFromContext(r.Context()), dishFromQuery(q))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, view)
}

// Today handles GET /api/v1/ratings/today?date=
// date defaults to today on the mess clock.
func (h *RatingHandler) Today(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = h.service.Today()
	}

	n, err := h.service.VotedOn(r.Context(), middleware.EmailFromContext(r.Context()), date)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, VotedTodayResponse{Date: date, Count: n, HasVoted: n > 0})
}
