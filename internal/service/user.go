package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"

	"github.com/contacthub/contacthub/internal/auth"
	"github.com/contacthub/contacthub/internal/domain"
	"github.com/contacthub/contacthub/internal/repository"
	"github.com/contacthub/contacthub/internal/storage"
)

// UserService implements profile operations for the authenticated user.
type UserService struct {
	userRepo repository.UserRepository
	storage  storage.Storage
	cache    auth.UserCache
	logger   *slog.Logger
}

// NewUserService creates a new user service.
func NewUserService(
	userRepo repository.UserRepository,
	storage storage.Storage,
	cache auth.UserCache,
	logger *slog.Logger,
) *UserService {
	return &UserService{
		userRepo: userRepo,
		storage:  storage,
		cache:    cache,
		logger:   logger,
	}
}

// UploadAvatarInput holds the parameters for replacing the user's avatar.
type UploadAvatarInput struct {
	ContentType string
	Size        int64
	Data        io.Reader
}

// UploadAvatar stores the image in the object store under a key derived from
// the user's email and saves the resulting URL. Re-uploading overwrites the
// same object, so a user always has at most one avatar.
func (s *UserService) UploadAvatar(ctx context.Context, user *domain.User, input UploadAvatarInput) (*domain.User, error) {
	key := avatarKey(user.Email)

	result, err := s.storage.Upload(ctx, &storage.UploadInput{
		Key:         key,
		ContentType: input.ContentType,
		Size:        input.Size,
		Data:        input.Data,
	})
	if err != nil {
		return nil, fmt.Errorf("upload avatar: %w", err)
	}

	if err := s.userRepo.UpdateAvatar(ctx, user.ID, result.URL); err != nil {
		return nil, fmt.Errorf("save avatar url: %w", err)
	}

	// The cached copy carries the old URL; drop it so the gate re-reads.
	if err := s.cache.Delete(ctx, user.Email); err != nil {
		s.logger.WarnContext(ctx, "failed to invalidate cached user",
			slog.String("email", user.Email),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "avatar updated",
		slog.String("user_id", user.ID),
		slog.String("key", key),
	)

	updated := *user
	updated.AvatarURL = result.URL
	return &updated, nil
}

// avatarKey derives a stable object key from the user's email. Hashing keeps
// the email out of object names and URLs.
func avatarKey(email string) string {
	sum := sha256.Sum256([]byte(email))
	return "avatars/" + hex.EncodeToString(sum[:])[:32]
}
