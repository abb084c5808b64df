package domain

// MealType identifies one of the four daily meals.
type MealType string

// Meal type constants.
const (
	MealBreakfast MealType = "breakfast"
	MealLunch     MealType = "lunch"
	MealSnacks    MealType = "snacks"
	MealDinner    MealType = "dinner"
)

// AllMealTypes returns the meal types in serving order.
func AllMealTypes() []MealType {
	return []MealType{MealBreakfast, MealLunch, MealSnacks, MealDinner}
}

// Valid reports whether m is one of the four meal types.
func (m MealType) Valid() bool {
	for _, t := range AllMealTypes() {
		if t == m {
			return true
		}
	}
	return false
}

func (m MealType) String() string {
	return string(m)
}

// ParseMealType converts s to a MealType. The match is exact; "Lunch" is not valid.
func ParseMealType(s string) (MealType, bool) {
	m := MealType(s)
	return m, m.Valid()
}
