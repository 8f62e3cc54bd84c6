package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contacthub/contacthub/internal/domain"
)

func setupTestCache(t *testing.T) (*UserCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewUserCache(client, 15*time.Minute), mr
}

func sampleCachedUser() *domain.User {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &domain.User{
		ID:        "u-1234",
		Username:  "alice",
		Email:     "alice@example.com",
		Confirmed: true,
		AvatarURL: "https://cdn.example.com/avatars/abc",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestUserCache_SetGet(t *testing.T) {
	cache, _ := setupTestCache(t)
	ctx := context.Background()

	u := sampleCachedUser()
	require.NoError(t, cache.Set(ctx, u))

	got, err := cache.Get(ctx, u.Email)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, u.Username, got.Username)
	assert.True(t, got.Confirmed)
	assert.Equal(t, u.AvatarURL, got.AvatarURL)
}

func TestUserCache_GetMiss(t *testing.T) {
	cache, _ := setupTestCache(t)

	got, err := cache.Get(context.Background(), "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUserCache_Delete(t *testing.T) {
	cache, _ := setupTestCache(t)
	ctx := context.Background()

	u := sampleCachedUser()
	require.NoError(t, cache.Set(ctx, u))
	require.NoError(t, cache.Delete(ctx, u.Email))

	got, err := cache.Get(ctx, u.Email)
	require.NoError(t, err)
	assert.Nil(t, got)

	// Deleting a missing key is not an error.
	assert.NoError(t, cache.Delete(ctx, "nobody@example.com"))
}

func TestUserCache_EntriesExpire(t *testing.T) {
	cache, mr := setupTestCache(t)
	ctx := context.Background()

	u := sampleCachedUser()
	require.NoError(t, cache.Set(ctx, u))

	mr.FastForward(16 * time.Minute)

	got, err := cache.Get(ctx, u.Email)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUserCache_DoesNotStoreCredentials(t *testing.T) {
	cache, mr := setupTestCache(t)
	ctx := context.Background()

	refresh := "refresh-token-value"
	u := sampleCachedUser()
	u.PasswordHash = "bcrypt-hash"
	u.RefreshToken = &refresh
	require.NoError(t, cache.Set(ctx, u))

	raw, err := mr.Get("user:email:" + u.Email)
	require.NoError(t, err)
	assert.NotContains(t, raw, "bcrypt-hash")
	assert.NotContains(t, raw, refresh)
}
