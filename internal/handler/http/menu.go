package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Openverse-iiitk/mess-rating/internal/mealtime"
	"github.com/Openverse-iiitk/mess-rating/internal/menu"
	"github.com/Openverse-iiitk/mess-rating/pkg/httputil"
)

// MenuHandler serves the static weekly menu and meal windows.
type MenuHandler struct {
	menu *menu.Menu
	now  func() time.Time
}

// NewMenuHandler creates a new menu HTTP handler.
func NewMenuHandler(m *menu.Menu) *MenuHandler {
	return &MenuHandler{menu: m, now: time.Now}
}

// Week handles GET /api/v1/menu
func (h *MenuHandler) Week(w http.ResponseWriter, r *http.Request) {
	httputil.WriteData(w, http.StatusOK, h.menu.Week())
}

// Day handles GET /api/v1/menu/{day}
func (h *MenuHandler) Day(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "day")
	wd, ok := menu.ParseWeekday(name)
	if !ok {
		httputil.WriteErrorCode(w, r, http.StatusNotFound, "NOT_FOUND", "unknown day "+name)
		return
	}
	httputil.WriteData(w, http.StatusOK, h.menu.ForDay(wd))
}

// Today handles GET /api/v1/menu/today
func (h *MenuHandler) Today(w http.ResponseWriter, r *http.Request) {
	httputil.WriteData(w, http.StatusOK, h.menu.Today(h.now()))
}

// Current handles GET /api/v1/menu/current
func (h *MenuHandler) Current(w http.ResponseWriter, r *http.Request) {
	httputil.WriteData(w, http.StatusOK, h.menu.CurrentMeal(h.now()))
}

// Availability handles GET /api/v1/meals/availability
func (h *MenuHandler) Availability(w http.ResponseWriter, r *http.Request) {
	httputil.WriteData(w, http.StatusOK, mealtime.Statuses(h.now()))
}
