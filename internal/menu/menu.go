// Package menu serves the static weekly mess menu.
package menu

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Openverse-iiitk/mess-rating/internal/domain"
	"github.com/Openverse-iiitk/mess-rating/internal/mealtime"
)

//go:embed menu.json
var weeklyJSON []byte

// Day is one day's menu.
type Day struct {
	Breakfast []string `json:"breakfast"`
	Lunch     []string `json:"lunch"`
	Snacks    []string `json:"snacks"`
	Dinner    []string `json:"dinner"`
}

// Dishes returns the dishes served at meal, or nil for an unknown meal.
func (d Day) Dishes(meal domain.MealType) []string {
	switch meal {
	case domain.MealBreakfast:
		return d.Breakfast
	case domain.MealLunch:
		return d.Lunch
	case domain.MealSnacks:
		return d.Snacks
	case domain.MealDinner:
		return d.Dinner
	default:
		return nil
	}
}

// All returns every dish of the day in serving order.
func (d Day) All() []string {
	out := make([]string, 0, len(d.Breakfast)+len(d.Lunch)+len(d.Snacks)+len(d.Dinner))
	for _, meal := range domain.AllMealTypes() {
		out = append(out, d.Dishes(meal)...)
	}
	return out
}

// Serves reports whether dish is on the menu for meal.
func (d Day) Serves(meal domain.MealType, dish string) bool {
	for _, name := range d.Dishes(meal) {
		if name == dish {
			return true
		}
	}
	return false
}

// DayMenu is a day's menu labelled with its weekday.
type DayMenu struct {
	Day   string `json:"day"`
	Date  string `json:"date,omitempty"`
	Meals Day    `json:"meals"`
	// Dishes is set on today's menu only.
	Dishes []string `json:"dishes,omitempty"`
}

// CurrentMeal is the meal being served now and whether it can be rated.
type CurrentMeal struct {
	Day       string          `json:"day"`
	Date      string          `json:"date"`
	MealType  domain.MealType `json:"mealType"`
	Dishes    []string        `json:"dishes"`
	Available bool            `json:"available"`
	OpensAt   string          `json:"opensAt"`
}

// Menu is the weekly menu keyed by weekday. It is immutable after Load.
type Menu struct {
	days [7]Day
}

// Load parses the embedded weekly menu.
func Load() (*Menu, error) {
	return Parse(weeklyJSON)
}

// Parse builds a Menu from a JSON object keyed by English weekday name.
// All seven days must be present.
func Parse(data []byte) (*Menu, error) {
	var raw map[string]Day
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode menu: %w", err)
	}

	m := &Menu{}
	seen := 0
	for name, day := range raw {
		wd, ok := ParseWeekday(name)
		if !ok {
			return nil, fmt.Errorf("menu: unknown day %q", name)
		}
		m.days[wd] = day
		seen++
	}
	if seen != 7 {
		return nil, fmt.Errorf("menu: expected 7 days, got %d", seen)
	}
	return m, nil
}

// ParseWeekday maps an English day name to a weekday, ignoring case.
func ParseWeekday(name string) (time.Weekday, bool) {
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if strings.EqualFold(wd.String(), strings.TrimSpace(name)) {
			return wd, true
		}
	}
	return 0, false
}

// ForDay returns the menu for a weekday.
func (m *Menu) ForDay(wd time.Weekday) DayMenu {
	return DayMenu{Day: wd.String(), Meals: m.days[wd]}
}

// Week returns the menu for every day, Monday first.
func (m *Menu) Week() []DayMenu {
	out := make([]DayMenu, 0, 7)
	for i := 1; i <= 7; i++ {
		out = append(out, m.ForDay(time.Weekday(i%7)))
	}
	return out
}

// Today returns today's menu on the mess clock, with every dish flattened
// into Dishes.
func (m *Menu) Today(now time.Time) DayMenu {
	dm := m.ForDay(mealtime.Weekday(now))
	dm.Date = mealtime.Date(now)
	dm.Dishes = dm.Meals.All()
	return dm
}

// CurrentMeal returns the meal being served at now and its dishes.
func (m *Menu) CurrentMeal(now time.Time) CurrentMeal {
	wd := mealtime.Weekday(now)
	meal := mealtime.CurrentMealType(now)
	return CurrentMeal{
		Day:       wd.String(),
		Date:      mealtime.Date(now),
		MealType:  meal,
		Dishes:    m.days[wd].Dishes(meal),
		Available: mealtime.IsAvailable(meal, now),
		OpensAt:   mealtime.OpensAt(meal),
	}
}

// Serves reports whether dish is served at meal on the given YYYY-MM-DD date.
func (m *Menu) Serves(date string, meal domain.MealType, dish string) bool {
	t, err := time.ParseInLocation(domain.DateLayout, date, mealtime.Zone)
	if err != nil {
		return false
	}
	return m.days[t.Weekday()].Serves(meal, dish)
}
