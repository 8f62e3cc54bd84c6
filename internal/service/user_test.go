package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/contacthub/contacthub/internal/storage/memory"
)

func TestUploadAvatar_Success(t *testing.T) {
	userRepo := new(mockUserRepository)
	store := memory.New("https://cdn.example.com")
	cache := newFakeUserCache()
	svc := NewUserService(userRepo, store, cache, newTestLogger())
	ctx := context.Background()

	u := confirmedUser("alice@example.com", "SecurePass123")
	userRepo.On("UpdateAvatar", ctx, u.ID, mock.AnythingOfType("string")).Return(nil)

	updated, err := svc.UploadAvatar(ctx, u, UploadAvatarInput{
		ContentType: "image/png",
		Size:        4,
		Data:        strings.NewReader("fake"),
	})

	require.NoError(t, err)
	assert.NotEmpty(t, updated.AvatarURL)
	assert.Contains(t, updated.AvatarURL, "avatars/")
	assert.True(t, store.Exists(avatarKey(u.Email)))

	// The original user value is left untouched.
	assert.Empty(t, u.AvatarURL)

	// The cached copy was invalidated.
	assert.Contains(t, cache.deleted, u.Email)

	userRepo.AssertExpectations(t)
}

func TestUploadAvatar_KeyIsStablePerEmail(t *testing.T) {
	// Re-uploading must overwrite the same object.
	assert.Equal(t, avatarKey("alice@example.com"), avatarKey("alice@example.com"))
	assert.NotEqual(t, avatarKey("alice@example.com"), avatarKey("bob@example.com"))

	key := avatarKey("alice@example.com")
	assert.True(t, strings.HasPrefix(key, "avatars/"))
	assert.Len(t, strings.TrimPrefix(key, "avatars/"), 32)
}

func TestUploadAvatar_RepoFailure(t *testing.T) {
	userRepo := new(mockUserRepository)
	store := memory.New("https://cdn.example.com")
	svc := NewUserService(userRepo, store, newFakeUserCache(), newTestLogger())
	ctx := context.Background()

	u := confirmedUser("alice@example.com", "SecurePass123")
	userRepo.On("UpdateAvatar", ctx, u.ID, mock.AnythingOfType("string")).
		Return(assert.AnError)

	updated, err := svc.UploadAvatar(ctx, u, UploadAvatarInput{
		ContentType: "image/png",
		Size:        4,
		Data:        strings.NewReader("fake"),
	})

	assert.Nil(t, updated)
	require.Error(t, err)
}
