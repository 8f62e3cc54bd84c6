package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/contacthub/contacthub/internal/domain"
	"github.com/contacthub/contacthub/internal/repository"
	apperrors "github.com/contacthub/contacthub/pkg/errors"
)

// Listing defaults and bounds.
const (
	defaultContactLimit = 100
	maxContactLimit     = 500
)

// maxBirthdayWindow caps the upcoming-birthdays horizon at one year; a wider
// window would include every contact anyway.
const maxBirthdayWindow = 365

// ContactService implements the address-book operations. Every operation is
// scoped to the owning user; ownership is enforced by the repository queries.
type ContactService struct {
	contactRepo repository.ContactRepository
	logger      *slog.Logger
}

// NewContactService creates a new contact service.
func NewContactService(contactRepo repository.ContactRepository, logger *slog.Logger) *ContactService {
	return &ContactService{
		contactRepo: contactRepo,
		logger:      logger,
	}
}

// ContactInput holds the writable fields of a contact.
type ContactInput struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Birthday  domain.Date
	Note      string
}

// Create adds a new contact to the owner's address book. The database's
// per-owner unique indexes on email and phone are the authority on
// duplicates; a violation surfaces as AlreadyExists.
func (s *ContactService) Create(ctx context.Context, ownerID string, input ContactInput) (*domain.Contact, error) {
	now := time.Now().UTC()
	contact := &domain.Contact{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Email:     input.Email,
		Phone:     input.Phone,
		Birthday:  input.Birthday,
		Note:      input.Note,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.contactRepo.Create(ctx, contact); err != nil {
		return nil, fmt.Errorf("create contact: %w", err)
	}

	s.logger.InfoContext(ctx, "contact created",
		slog.String("contact_id", contact.ID),
		slog.String("owner_id", ownerID),
	)

	return contact, nil
}

// Get returns the owner's contact by ID.
func (s *ContactService) Get(ctx context.Context, ownerID, id string) (*domain.Contact, error) {
	return s.contactRepo.GetByID(ctx, ownerID, id)
}

// List returns a page of the owner's contacts. Non-positive or oversized
// limits fall back to the defaults.
func (s *ContactService) List(ctx context.Context, ownerID string, limit, offset int) ([]*domain.Contact, error) {
	if limit <= 0 || limit > maxContactLimit {
		limit = defaultContactLimit
	}
	if offset < 0 {
		offset = 0
	}

	return s.contactRepo.ListByOwner(ctx, ownerID, limit, offset)
}

// Update overwrites all writable fields of the owner's contact.
func (s *ContactService) Update(ctx context.Context, ownerID, id string, input ContactInput) (*domain.Contact, error) {
	contact, err := s.contactRepo.GetByID(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	contact.FirstName = input.FirstName
	contact.LastName = input.LastName
	contact.Email = input.Email
	contact.Phone = input.Phone
	contact.Birthday = input.Birthday
	contact.Note = input.Note

	if err := s.contactRepo.Update(ctx, contact); err != nil {
		return nil, fmt.Errorf("update contact: %w", err)
	}

	s.logger.InfoContext(ctx, "contact updated",
		slog.String("contact_id", contact.ID),
		slog.String("owner_id", ownerID),
	)

	return contact, nil
}

// Delete removes the owner's contact by ID.
func (s *ContactService) Delete(ctx context.Context, ownerID, id string) error {
	if err := s.contactRepo.Delete(ctx, ownerID, id); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "contact deleted",
		slog.String("contact_id", id),
		slog.String("owner_id", ownerID),
	)

	return nil
}

// Search returns the owner's contacts matching the keyword in first name,
// last name, or email.
func (s *ContactService) Search(ctx context.Context, ownerID, keyword string) ([]*domain.Contact, error) {
	if keyword == "" {
		return nil, apperrors.InvalidInput("search keyword is required")
	}

	contacts, err := s.contactRepo.Search(ctx, ownerID, keyword)
	if err != nil {
		return nil, err
	}
	if len(contacts) == 0 {
		return nil, apperrors.NotFoundMessage(fmt.Sprintf("contacts with keyword %q not found", keyword))
	}

	return contacts, nil
}

// UpcomingBirthdays returns the owner's contacts whose next birthday falls
// within the given number of days from today, inclusive on both ends. A
// February 29 birthday counts as March 1 in non-leap years. Results are
// ordered by how soon the birthday occurs.
func (s *ContactService) UpcomingBirthdays(ctx context.Context, ownerID string, days int) ([]*domain.Contact, error) {
	if days < 0 {
		return nil, apperrors.InvalidInput("days must not be negative")
	}
	if days > maxBirthdayWindow {
		days = maxBirthdayWindow
	}

	contacts, err := s.contactRepo.ListWithBirthdays(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list contacts with birthdays: %w", err)
	}

	today := time.Now().UTC()
	todayDate := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	cutoff := todayDate.AddDate(0, 0, days)

	upcoming := []*domain.Contact{}
	for _, c := range contacts {
		next := c.NextBirthday(todayDate)
		if !next.Before(todayDate) && !next.After(cutoff) {
			upcoming = append(upcoming, c)
		}
	}

	sort.SliceStable(upcoming, func(i, j int) bool {
		return upcoming[i].NextBirthday(todayDate).Before(upcoming[j].NextBirthday(todayDate))
	})

	return upcoming, nil
}
