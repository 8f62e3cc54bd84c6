package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/contacthub/contacthub/internal/domain"
	apperrors "github.com/contacthub/contacthub/pkg/errors"
)

// UserSource loads users from the credential store. Satisfied by the
// postgres user repository.
type UserSource interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

// UserCache is the read-through cache consulted before the credential store.
// Get returns (nil, nil) on a miss.
type UserCache interface {
	Get(ctx context.Context, email string) (*domain.User, error)
	Set(ctx context.Context, user *domain.User) error
	Delete(ctx context.Context, email string) error
}

// Gate resolves bearer tokens to authenticated users. It is the single
// authorization check applied to resource requests: scheme prefix, access
// token verification, then a cached user lookup.
type Gate struct {
	tokens *TokenService
	users  UserSource
	cache  UserCache
	logger *slog.Logger
}

// NewGate creates an auth gate.
func NewGate(tokens *TokenService, users UserSource, cache UserCache, logger *slog.Logger) *Gate {
	return &Gate{
		tokens: tokens,
		users:  users,
		cache:  cache,
		logger: logger,
	}
}

// Resolve authenticates the Authorization header value and returns the user.
// Every failure mode maps to Unauthorized: missing/malformed scheme, invalid
// or wrong-purpose token, and a subject that no longer exists.
func (g *Gate) Resolve(ctx context.Context, authHeader string) (*domain.User, error) {
	if authHeader == "" {
		return nil, apperrors.Unauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return nil, apperrors.Unauthorized("invalid authorization header format")
	}

	email, err := g.tokens.Verify(parts[1], PurposeAccess)
	if err != nil {
		return nil, apperrors.Unauthorized("invalid or expired access token")
	}

	if user, err := g.cache.Get(ctx, email); err != nil {
		// A cache outage degrades to a store lookup, it must not fail the request.
		g.logger.WarnContext(ctx, "auth cache read failed",
			slog.String("email", email),
			slog.String("error", err.Error()),
		)
	} else if user != nil {
		return user, nil
	}

	user, err := g.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Unauthorized("user no longer exists")
		}
		return nil, apperrors.Wrap(err, "load user for auth")
	}

	if err := g.cache.Set(ctx, user); err != nil {
		g.logger.WarnContext(ctx, "auth cache write failed",
			slog.String("email", email),
			slog.String("error", err.Error()),
		)
	}

	return user, nil
}
