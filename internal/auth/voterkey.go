package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/Openverse-iiitk/mess-rating/internal/domain"
	apperrors "github.com/Openverse-iiitk/mess-rating/pkg/errors"
)

// AllowedDomain is the only email domain admitted to the service.
const AllowedDomain = "@iiitkottayam.ac.in"

const sessionHashLen = 16

// VoterKey derives the anonymized identity stored with a rating. The key is
// scoped to one dish, meal and date, so keys for the same person cannot be
// linked across ratings.
func VoterKey(email, dishName string, meal domain.MealType, date string) string {
	return digest(email + "-" + dishName + "-" + string(meal) + "-" + date)
}

// SessionHash derives a per-day identifier used to answer "has this person
// voted today" without revealing which dish.
func SessionHash(email, date string) string {
	return digest(email + "-" + date)[:sessionHashLen]
}

// Pseudonym is a stable, non-reversible stand-in for email in logs and
// rate limiter keys.
func Pseudonym(email string) string {
	return digest("subject-" + email)[:sessionHashLen]
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// NormalizeEmail trims and lowercases email.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsAllowedEmail reports whether email has a non-empty local part and
// belongs to AllowedDomain. The domain match ignores case.
func IsAllowedEmail(email string) bool {
	email = NormalizeEmail(email)
	if strings.Count(email, "@") != 1 {
		return false
	}
	local, ok := strings.CutSuffix(email, AllowedDomain)
	return ok && local != ""
}

// DomainGate rejects identities outside AllowedDomain.
func DomainGate(email string) error {
	if !IsAllowedEmail(email) {
		return apperrors.Forbidden("DOMAIN_NOT_ALLOWED", "only "+AllowedDomain+" accounts may sign in")
	}
	return nil
}
