package postgres

import (
	"context"
	"errors"
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Openverse-iiitk/mess-rating/internal/domain"
)

func sampleProfile() domain.UserProfile {
	return domain.UserProfile{
		Email:     "student@iiitkottayam.ac.in",
		Name:      "Student",
		Image:     "https://example.com/p.png",
		LastLogin: now,
	}
}

func TestProfileRepository_Upsert_Success(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()
	repo := NewProfileRepository(mock)

	p := sampleProfile()
	mock.ExpectExec("INSERT INTO user_profiles").
		WithArgs(p.Email, p.Name, p.Image, p.LastLogin).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Upsert(context.Background(), &p))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileRepository_Upsert_Error(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()
	repo := NewProfileRepository(mock)

	p := sampleProfile()
	mock.ExpectExec("INSERT INTO user_profiles").
		WithArgs(p.Email, p.Name, p.Image, p.LastLogin).
		WillReturnError(errors.New("connection reset"))

	err := repo.Upsert(context.Background(), &p)
	assert.ErrorContains(t, err, "upsert user profile")
	assert.NoError(t, mock.ExpectationsWereMet())
}
