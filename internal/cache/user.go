// Package cache holds the Redis read-through cache for authenticated users.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/contacthub/contacthub/internal/domain"
)

// UserCache stores users in Redis keyed by email, so the auth gate can skip
// the credential store on repeat requests. Entries are written with a TTL and
// explicitly invalidated whenever the cached fields change (confirmation,
// avatar update).
type UserCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewUserCache creates a user cache with the given entry TTL.
func NewUserCache(client *redis.Client, ttl time.Duration) *UserCache {
	return &UserCache{
		client: client,
		ttl:    ttl,
	}
}

func userKey(email string) string {
	return fmt.Sprintf("user:email:%s", email)
}

// Get returns the cached user, or (nil, nil) on a miss.
func (c *UserCache) Get(ctx context.Context, email string) (*domain.User, error) {
	data, err := c.client.Get(ctx, userKey(email)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("get cached user: %w", err)
	}

	var user domain.User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("decode cached user: %w", err)
	}

	return &user, nil
}

// Set stores the user under its email key.
func (c *UserCache) Set(ctx context.Context, user *domain.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode user for cache: %w", err)
	}

	if err := c.client.Set(ctx, userKey(user.Email), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("set cached user: %w", err)
	}

	return nil
}

// Delete drops the cached entry for the email. Deleting a missing key is not
// an error.
func (c *UserCache) Delete(ctx context.Context, email string) error {
	if err := c.client.Del(ctx, userKey(email)).Err(); err != nil {
		return fmt.Errorf("delete cached user: %w", err)
	}
	return nil
}
