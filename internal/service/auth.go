package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/contacthub/contacthub/internal/auth"
	"github.com/contacthub/contacthub/internal/domain"
	"github.com/contacthub/contacthub/internal/event"
	"github.com/contacthub/contacthub/internal/repository"
	apperrors "github.com/contacthub/contacthub/pkg/errors"
)

// bcryptCost is the cost factor for bcrypt password hashing.
const bcryptCost = 12

// AuthService implements signup, email confirmation, login, and refresh-token
// rotation.
type AuthService struct {
	userRepo repository.UserRepository
	tokens   *auth.TokenService
	cache    auth.UserCache
	producer *event.Producer
	logger   *slog.Logger
}

// NewAuthService creates a new auth service.
func NewAuthService(
	userRepo repository.UserRepository,
	tokens *auth.TokenService,
	cache auth.UserCache,
	producer *event.Producer,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		userRepo: userRepo,
		tokens:   tokens,
		cache:    cache,
		producer: producer,
		logger:   logger,
	}
}

// SignupInput holds the parameters for registering a new account.
type SignupInput struct {
	Username string
	Email    string
	Password string
}

// Signup creates a new unconfirmed account and emits a user.registered event
// carrying the email-confirmation token. The email stays unverified until the
// confirmation endpoint is hit.
func (s *AuthService) Signup(ctx context.Context, input SignupInput) (*domain.User, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:           uuid.New().String(),
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: string(hashedPassword),
		Confirmed:    false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	confirmationToken, err := s.tokens.Issue(auth.PurposeConfirmation, user.Email)
	if err != nil {
		return nil, fmt.Errorf("issue confirmation token: %w", err)
	}

	// Publish registration event (non-blocking on failure). The account is
	// already created; the user can request a new confirmation email later.
	if err := s.producer.PublishUserRegistered(ctx, user, confirmationToken); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.registered event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "user signed up",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)

	return user, nil
}

// ConfirmEmail verifies the confirmation token and marks the account
// confirmed. Confirming an already-confirmed account is a no-op; the bool
// result reports whether the account was already confirmed.
func (s *AuthService) ConfirmEmail(ctx context.Context, token string) (bool, error) {
	email, err := s.tokens.Verify(token, auth.PurposeConfirmation)
	if err != nil {
		return false, apperrors.Unauthorized("invalid or expired confirmation token")
	}

	// A validly signed token for an account that does not exist is a 404,
	// not a credential failure.
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return false, err
		}
		return false, fmt.Errorf("load user for confirmation: %w", err)
	}

	if user.Confirmed {
		return true, nil
	}

	if err := s.userRepo.SetConfirmed(ctx, user.ID); err != nil {
		return false, fmt.Errorf("confirm user: %w", err)
	}

	// The cached copy still says unconfirmed; drop it so the gate re-reads.
	if err := s.cache.Delete(ctx, user.Email); err != nil {
		s.logger.WarnContext(ctx, "failed to invalidate cached user",
			slog.String("email", user.Email),
			slog.String("error", err.Error()),
		)
	}

	if err := s.producer.PublishUserConfirmed(ctx, user); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.confirmed event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "email confirmed",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)

	return false, nil
}

// Login authenticates with email and password and returns a fresh token pair.
// The issued refresh token overwrites the user's single refresh slot, so any
// previously issued refresh token stops working.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.TokenPair, error) {
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Unauthorized("invalid email or password")
		}
		return nil, fmt.Errorf("load user for login: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, apperrors.Unauthorized("invalid email or password")
	}

	if !user.Confirmed {
		return nil, apperrors.Unauthorized("email not confirmed")
	}

	pair, err := s.issueTokenPair(user)
	if err != nil {
		return nil, err
	}

	if err := s.userRepo.SetRefreshToken(ctx, user.ID, &pair.RefreshToken); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	s.logger.InfoContext(ctx, "user logged in",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)

	return pair, nil
}

// Refresh exchanges a valid refresh token for a new token pair. The presented
// token must match the stored slot exactly; on a mismatch the slot is cleared
// so a possibly stolen session cannot be refreshed again.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	email, err := s.tokens.Verify(refreshToken, auth.PurposeRefresh)
	if err != nil {
		return nil, apperrors.Unauthorized("invalid refresh token")
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Unauthorized("invalid refresh token")
		}
		return nil, fmt.Errorf("load user for refresh: %w", err)
	}

	if user.RefreshToken == nil || *user.RefreshToken != refreshToken {
		s.revokeRefreshSession(ctx, user)
		return nil, apperrors.Unauthorized("invalid refresh token")
	}

	pair, err := s.issueTokenPair(user)
	if err != nil {
		return nil, err
	}

	// Compare-and-set: the swap only happens while the slot still holds the
	// presented token, so a concurrent refresh with the same token loses.
	swapped, err := s.userRepo.RotateRefreshToken(ctx, user.ID, refreshToken, pair.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}
	if !swapped {
		s.revokeRefreshSession(ctx, user)
		return nil, apperrors.Unauthorized("invalid refresh token")
	}

	s.logger.InfoContext(ctx, "tokens refreshed",
		slog.String("user_id", user.ID),
	)

	return pair, nil
}

// issueTokenPair signs a fresh access and refresh token for the user.
func (s *AuthService) issueTokenPair(user *domain.User) (*domain.TokenPair, error) {
	access, err := s.tokens.Issue(auth.PurposeAccess, user.Email)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	refresh, err := s.tokens.Issue(auth.PurposeRefresh, user.Email)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	return domain.NewTokenPair(access, refresh), nil
}

// revokeRefreshSession clears the refresh slot after a reuse attempt. Failing
// to clear is logged but not surfaced; the request is rejected either way.
func (s *AuthService) revokeRefreshSession(ctx context.Context, user *domain.User) {
	if err := s.userRepo.SetRefreshToken(ctx, user.ID, nil); err != nil {
		s.logger.ErrorContext(ctx, "failed to clear refresh token slot",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.WarnContext(ctx, "refresh token reuse detected, session revoked",
		slog.String("user_id", user.ID),
	)
}
