package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Openverse-iiitk/mess-rating/internal/auth"
	"github.com/Openverse-iiitk/mess-rating/internal/domain"
	"github.com/Openverse-iiitk/mess-rating/internal/repository"
	apperrors "github.com/Openverse-iiitk/mess-rating/pkg/errors"
	"github.com/Openverse-iiitk/mess-rating/pkg/logger"
)

const defaultProfileWriteTimeout = 5 * time.Second

// IdentityVerifier verifies identity assertions from the identity provider.
type IdentityVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*domain.Identity, error)
	ExchangeCode(ctx context.Context, code, redirectURI string) (*domain.Identity, error)
}

// IdentityEvents publishes sign-in events.
type IdentityEvents interface {
	PublishUserSignedIn(ctx context.Context, subject string, at time.Time) error
}

// SignInInput carries either a Google ID token or an authorization code.
type SignInInput struct {
	Credential  string
	Code        string
	RedirectURI string
}

// IdentityService gates sign-in to the allowed domain and issues sessions.
type IdentityService struct {
	verifier IdentityVerifier
	sessions *auth.SessionManager
	profiles repository.ProfileRepository
	events   IdentityEvents
	logger   *slog.Logger
	now      func() time.Time

	profileTimeout time.Duration
	pending        sync.WaitGroup
}

// NewIdentityService creates a new identity service. events may be nil.
func NewIdentityService(
	verifier IdentityVerifier,
	sessions *auth.SessionManager,
	profiles repository.ProfileRepository,
	events IdentityEvents,
	logger *slog.Logger,
) *IdentityService {
	return &IdentityService{
		verifier:       verifier,
		sessions:       sessions,
		profiles:       profiles,
		events:         events,
		logger:         logger,
		now:            time.Now,
		profileTimeout: defaultProfileWriteTimeout,
	}
}

func (s *IdentityService) log(ctx context.Context) *slog.Logger {
	return logger.WithContext(ctx, s.logger)
}

// SignIn verifies the assertion, rejects accounts outside the allowed domain
// and issues a session. The profile write runs in the background and never
// affects the outcome.
func (s *IdentityService) SignIn(ctx context.Context, in SignInInput) (*auth.Session, error) {
	var (
		identity *domain.Identity
		err      error
	)
	switch {
	case in.Credential != "":
		identity, err = s.verifier.VerifyIDToken(ctx, in.Credential)
	case in.Code != "":
		identity, err = s.verifier.ExchangeCode(ctx, in.Code, in.RedirectURI)
	default:
		return nil, apperrors.InvalidInput("credential or code is required")
	}
	if err != nil {
		return nil, fmt.Errorf("verify identity: %w", err)
	}
	if !identity.EmailVerified {
		return nil, apperrors.Unauthorized("email address is not verified")
	}

	email := auth.NormalizeEmail(identity.Email)
	if err := auth.DomainGate(email); err != nil {
		s.log(ctx).WarnContext(ctx, "sign-in rejected",
			slog.String("reason", "domain"),
			slog.String("email_domain", emailDomain(email)),
		)
		return nil, err
	}

	session, err := s.sessions.Issue(email, identity.Name)
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}

	subject := auth.Pseudonym(email)
	ctx = logger.WithSubject(ctx, subject)
	s.recordSignIn(ctx, &domain.UserProfile{
		Email:     email,
		Name:      identity.Name,
		Image:     identity.Picture,
		LastLogin: s.now().UTC(),
	}, subject)

	s.log(ctx).InfoContext(ctx, "user signed in")

	return session, nil
}

// recordSignIn upserts the profile and publishes the sign-in event on a
// context detached from the request. Failures are logged only.
func (s *IdentityService) recordSignIn(ctx context.Context, profile *domain.UserProfile, subject string) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.profileTimeout)
		defer cancel()

		if err := s.profiles.Upsert(bg, profile); err != nil {
			s.log(bg).ErrorContext(bg, "failed to record user profile",
				slog.String("error", err.Error()),
			)
		}

		if s.events != nil {
			if err := s.events.PublishUserSignedIn(bg, subject, profile.LastLogin); err != nil {
				s.log(bg).ErrorContext(bg, "failed to publish user.signed_in event",
					slog.String("error", err.Error()),
				)
			}
		}
	}()
}

// Wait blocks until background profile writes finish or ctx is done.
func (s *IdentityService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for profile writes: %w", ctx.Err())
	}
}

func emailDomain(email string) string {
	if i := strings.LastIndex(email, "@"); i >= 0 {
		return email[i+1:]
	}
	return ""
}
