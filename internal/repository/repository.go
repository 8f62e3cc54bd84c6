// Package repository defines the persistence interfaces for users and
// contacts. Concrete implementations live in the postgres subpackage.
package repository

import (
	"context"

	"github.com/contacthub/contacthub/internal/domain"
)

// UserRepository persists user accounts and their refresh-token slot.
type UserRepository interface {
	// Create inserts a new user and fills in its generated fields. Returns
	// ErrAlreadyExists when the email is taken.
	Create(ctx context.Context, user *domain.User) error

	// GetByEmail returns the user with the given email, or ErrNotFound.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// SetConfirmed marks the user's email as confirmed.
	SetConfirmed(ctx context.Context, id string) error

	// UpdateAvatar stores the user's avatar URL.
	UpdateAvatar(ctx context.Context, id, avatarURL string) error

	// SetRefreshToken overwrites the user's refresh-token slot. A nil token
	// clears it, revoking the refresh session.
	SetRefreshToken(ctx context.Context, id string, token *string) error

	// RotateRefreshToken atomically replaces the stored refresh token with
	// next, but only if the stored value still equals current. It reports
	// whether the swap happened; false means the presented token was already
	// rotated out.
	RotateRefreshToken(ctx context.Context, id, current, next string) (bool, error)
}

// ContactRepository persists address-book entries. Every read and write is
// scoped to the owning user.
type ContactRepository interface {
	// Create inserts a new contact and fills in its generated fields. Returns
	// ErrAlreadyExists when the owner already has a contact with the same
	// email or phone.
	Create(ctx context.Context, contact *domain.Contact) error

	// GetByID returns the owner's contact with the given id, or ErrNotFound.
	GetByID(ctx context.Context, ownerID, id string) (*domain.Contact, error)

	// ListByOwner returns a page of the owner's contacts ordered by creation
	// time.
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*domain.Contact, error)

	// Update overwrites all mutable fields of the owner's contact. Returns
	// ErrNotFound when the contact does not exist or belongs to someone else,
	// and ErrAlreadyExists on a duplicate email or phone.
	Update(ctx context.Context, contact *domain.Contact) error

	// Delete removes the owner's contact, or returns ErrNotFound.
	Delete(ctx context.Context, ownerID, id string) error

	// Search returns the owner's contacts whose first name, last name, or
	// email contains the keyword, case-insensitively.
	Search(ctx context.Context, ownerID, keyword string) ([]*domain.Contact, error)

	// ListWithBirthdays returns all of the owner's contacts that have a
	// birthday set.
	ListWithBirthdays(ctx context.Context, ownerID string) ([]*domain.Contact, error)
}
