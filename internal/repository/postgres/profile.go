package postgres

import (
	"context"
	"fmt"

	"github.com/Openverse-iiitk/mess-rating/internal/domain"
	"github.com/Openverse-iiitk/mess-rating/pkg/database"
)

const upsertProfileSQL = `
	INSERT INTO user_profiles (email, name, image, last_login)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (email)
	DO UPDATE SET name = EXCLUDED.name, image = EXCLUDED.image, last_login = EXCLUDED.last_login`

// ProfileRepository implements user profile persistence using PostgreSQL.
type ProfileRepository struct {
	pool database.DBTX
}

// NewProfileRepository creates a new PostgreSQL-backed profile repository.
func NewProfileRepository(pool database.DBTX) *ProfileRepository {
	return &ProfileRepository{pool: pool}
}

// Upsert inserts p or refreshes the stored name, image and last login.
func (r *ProfileRepository) Upsert(ctx context.Context, p *domain.UserProfile) (err error) {
	ctx, end := database.TraceQuery(ctx, "UpsertProfile", upsertProfileSQL)
	defer func() { end(err) }()

	_, err = r.pool.Exec(ctx, upsertProfileSQL, p.Email, p.Name, p.Image, p.LastLogin)
	if err != nil {
		return fmt.Errorf("upsert user profile: %w", err)
	}
	return nil
}
