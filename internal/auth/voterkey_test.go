package auth

import (
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Openverse-iiitk/mess-rating/internal/domain"
	apperrors "github.com/Openverse-iiitk/mess-rating/pkg/errors"
)

const student = "student@iiitkottayam.ac.in"

var hex64 = regexp.MustCompile(`^[0-9a-f]{64}$`)

func TestVoterKey_KnownVector(t *testing.T) {
	got := VoterKey(student, "Idli", domain.MealBreakfast, "2025-01-06")
	assert.Equal(t, "14e326a45ac5e75c55f871690a1478ce9e874d1344e8c360f91f2b45f53e4666", got)
	assert.Regexp(t, hex64, got)
}

func TestVoterKey_Deterministic(t *testing.T) {
	a := VoterKey(student, "Idli", domain.MealBreakfast, "2025-01-06")
	b := VoterKey(student, "Idli", domain.MealBreakfast, "2025-01-06")
	assert.Equal(t, a, b)
}

func TestVoterKey_DistinctPerField(t *testing.T) {
	keys := map[string]string{
		"base":  VoterKey(student, "Idli", domain.MealBreakfast, "2025-01-06"),
		"email": VoterKey("other@iiitkottayam.ac.in", "Idli", domain.MealBreakfast, "2025-01-06"),
		"dish":  VoterKey(student, "Dosa", domain.MealBreakfast, "2025-01-06"),
		"meal":  VoterKey(student, "Idli", domain.MealDinner, "2025-01-06"),
		"date":  VoterKey(student, "Idli", domain.MealBreakfast, "2025-01-07"),
	}

	seen := make(map[string]string, len(keys))
	for field, key := range keys {
		if prev, dup := seen[key]; dup {
			t.Fatalf("key for %q collides with %q", field, prev)
		}
		seen[key] = field
	}
}

func TestVoterKey_DoesNotContainEmail(t *testing.T) {
	assert.NotContains(t, VoterKey(student, "Idli", domain.MealBreakfast, "2025-01-06"), "student")
}

func TestSessionHash(t *testing.T) {
	got := SessionHash(student, "2025-01-06")
	assert.Equal(t, "9f1c683af3b84d24", got)
	assert.Len(t, got, 16)
	assert.NotEqual(t, got, SessionHash(student, "2025-01-07"))
}

func TestPseudonym(t *testing.T) {
	p := Pseudonym(student)
	assert.Len(t, p, 16)
	assert.Equal(t, p, Pseudonym(student))
	assert.NotEqual(t, p, SessionHash(student, ""))
}

func TestIsAllowedEmail(t *testing.T) {
	tests := []struct {
		email string
		want  bool
	}{
		{"student@iiitkottayam.ac.in", true},
		{"Student@IIITKottayam.AC.IN", true},
		{"  student@iiitkottayam.ac.in ", true},
		{"student@gmail.com", false},
		{"student@iiitkottayam.ac.in.evil.com", false},
		{"student@notiiitkottayam.ac.in", false},
		{"@iiitkottayam.ac.in", false},
		{"a@b@iiitkottayam.ac.in", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			assert.Equal(t, tt.want, IsAllowedEmail(tt.email))
		})
	}
}

func TestDomainGate(t *testing.T) {
	require.NoError(t, DomainGate(student))

	err := DomainGate("someone@gmail.com")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrForbidden))

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "DOMAIN_NOT_ALLOWED", appErr.Code)
}
