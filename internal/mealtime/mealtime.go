// Package mealtime evaluates meal windows on the mess clock, a fixed
// UTC+05:30 offset that does not depend on the host's local timezone.
package mealtime

import (
	"fmt"
	"time"

	"github.com/Openverse-iiitk/mess-rating/internal/domain"
)

// Zone is the mess clock.
var Zone = time.FixedZone("IST", 5*60*60+30*60)

// Window is a daily voting window in minutes since midnight. Both ends are
// inclusive.
type Window struct {
	Meal  domain.MealType
	Start int
	End   int
}

var windows = []Window{
	{Meal: domain.MealBreakfast, Start: clock(7, 15), End: clock(23, 0)},
	{Meal: domain.MealLunch, Start: clock(12, 15), End: clock(23, 0)},
	{Meal: domain.MealSnacks, Start: clock(15, 15), End: clock(23, 0)},
	{Meal: domain.MealDinner, Start: clock(18, 15), End: clock(23, 0)},
}

func clock(h, m int) int {
	return h*60 + m
}

func formatMinutes(mins int) string {
	return fmt.Sprintf("%02d:%02d", mins/60, mins%60)
}

// WindowFor returns the window of meal.
func WindowFor(meal domain.MealType) (Window, bool) {
	for _, w := range windows {
		if w.Meal == meal {
			return w, true
		}
	}
	return Window{}, false
}

// Contains reports whether mins falls inside the window.
func (w Window) Contains(mins int) bool {
	return mins >= w.Start && mins <= w.End
}

// Opens returns the window start as HH:MM.
func (w Window) Opens() string { return formatMinutes(w.Start) }

// Closes returns the window end as HH:MM.
func (w Window) Closes() string { return formatMinutes(w.End) }

// In converts t to the mess clock.
func In(t time.Time) time.Time {
	return t.In(Zone)
}

// MinutesSinceMidnight returns the time of day of t on the mess clock.
func MinutesSinceMidnight(t time.Time) int {
	local := In(t)
	return local.Hour()*60 + local.Minute()
}

// Date returns the calendar date of t on the mess clock as YYYY-MM-DD.
func Date(t time.Time) string {
	return In(t).Format(domain.DateLayout)
}

// Weekday returns the day of week of t on the mess clock.
func Weekday(t time.Time) time.Weekday {
	return In(t).Weekday()
}

// IsAvailable reports whether voting for meal is open at now. Only the time
// of day matters, so the windows recur identically every day. Unknown meals
// are never available.
func IsAvailable(meal domain.MealType, now time.Time) bool {
	w, ok := WindowFor(meal)
	if !ok {
		return false
	}
	return w.Contains(MinutesSinceMidnight(now))
}

// OpensAt returns the HH:MM at which voting for meal opens, or "" for an
// unknown meal.
func OpensAt(meal domain.MealType) string {
	w, ok := WindowFor(meal)
	if !ok {
		return ""
	}
	return w.Opens()
}

// CurrentMealType returns the meal being served at now by hour: breakfast
// from 06 to 10, lunch until 15, snacks until 18, otherwise dinner. This is
// a display hint and is independent of the voting windows.
func CurrentMealType(now time.Time) domain.MealType {
	switch h := In(now).Hour(); {
	case h >= 6 && h < 10:
		return domain.MealBreakfast
	case h >= 10 && h < 15:
		return domain.MealLunch
	case h >= 15 && h < 18:
		return domain.MealSnacks
	default:
		return domain.MealDinner
	}
}

// Status is the state of one voting window at a point in time.
type Status struct {
	Meal      domain.MealType `json:"mealType"`
	Opens     string          `json:"opensAt"`
	Closes    string          `json:"closesAt"`
	Available bool            `json:"available"`
}

// Statuses reports every window's state at now.
func Statuses(now time.Time) []Status {
	mins := MinutesSinceMidnight(now)
	out := make([]Status, 0, len(windows))
	for _, w := range windows {
		out = append(out, Status{
			Meal:      w.Meal,
			Opens:     w.Opens(),
			Closes:    w.Closes(),
			Available: w.Contains(mins),
		})
	}
	return out
}
