package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/contacthub/contacthub/internal/domain"
	"github.com/contacthub/contacthub/pkg/database"
	apperrors "github.com/contacthub/contacthub/pkg/errors"
)

const contactColumns = `id, owner_id, first_name, last_name, email, phone, birthday, note, created_at, updated_at`

// ContactRepository implements repository.ContactRepository using PostgreSQL.
// Every query filters by owner_id, so one user can never see another's rows.
type ContactRepository struct {
	db database.DBTX
}

// NewContactRepository creates a new PostgreSQL-backed contact repository.
func NewContactRepository(db database.DBTX) *ContactRepository {
	return &ContactRepository{db: db}
}

// Create inserts a new contact into the database.
func (r *ContactRepository) Create(ctx context.Context, c *domain.Contact) error {
	query := `
		INSERT INTO contacts (id, owner_id, first_name, last_name, email, phone, birthday, note, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.Exec(ctx, query,
		c.ID,
		c.OwnerID,
		c.FirstName,
		c.LastName,
		c.Email,
		c.Phone,
		c.Birthday.Time,
		c.Note,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("contact", "email or phone", c.Email)
		}
		return fmt.Errorf("insert contact: %w", err)
	}

	return nil
}

// GetByID retrieves the owner's contact by its ID.
func (r *ContactRepository) GetByID(ctx context.Context, ownerID, id string) (*domain.Contact, error) {
	query := `
		SELECT ` + contactColumns + `
		FROM contacts
		WHERE owner_id = $1 AND id = $2`

	return r.scanContact(ctx, query, ownerID, id)
}

// ListByOwner returns a page of the owner's contacts ordered by creation time.
func (r *ContactRepository) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*domain.Contact, error) {
	query := `
		SELECT ` + contactColumns + `
		FROM contacts
		WHERE owner_id = $1
		ORDER BY created_at, id
		LIMIT $2 OFFSET $3`

	return r.scanContacts(ctx, query, ownerID, limit, offset)
}

// Update overwrites all mutable fields of the owner's contact.
func (r *ContactRepository) Update(ctx context.Context, c *domain.Contact) error {
	c.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE contacts
		SET first_name = $1, last_name = $2, email = $3, phone = $4, birthday = $5, note = $6, updated_at = $7
		WHERE owner_id = $8 AND id = $9`

	ct, err := r.db.Exec(ctx, query,
		c.FirstName,
		c.LastName,
		c.Email,
		c.Phone,
		c.Birthday.Time,
		c.Note,
		c.UpdatedAt,
		c.OwnerID,
		c.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("contact", "email or phone", c.Email)
		}
		return fmt.Errorf("update contact: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("contact", c.ID)
	}

	return nil
}

// Delete removes the owner's contact by its ID.
func (r *ContactRepository) Delete(ctx context.Context, ownerID, id string) error {
	query := `DELETE FROM contacts WHERE owner_id = $1 AND id = $2`

	ct, err := r.db.Exec(ctx, query, ownerID, id)
	if err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("contact", id)
	}

	return nil
}

// Search returns the owner's contacts matching the keyword in first name,
// last name, or email, case-insensitively.
func (r *ContactRepository) Search(ctx context.Context, ownerID, keyword string) ([]*domain.Contact, error) {
	query := `
		SELECT ` + contactColumns + `
		FROM contacts
		WHERE owner_id = $1
		  AND (first_name ILIKE $2 OR last_name ILIKE $2 OR email ILIKE $2)
		ORDER BY created_at, id`

	return r.scanContacts(ctx, query, ownerID, "%"+keyword+"%")
}

// ListWithBirthdays returns all of the owner's contacts that have a birthday
// set. The upcoming-window filter happens in the service layer, where the
// leap-day mapping lives.
func (r *ContactRepository) ListWithBirthdays(ctx context.Context, ownerID string) ([]*domain.Contact, error) {
	query := `
		SELECT ` + contactColumns + `
		FROM contacts
		WHERE owner_id = $1 AND birthday IS NOT NULL
		ORDER BY created_at, id`

	return r.scanContacts(ctx, query, ownerID)
}

// scanContact is a helper that executes a query expected to return a single contact row.
func (r *ContactRepository) scanContact(ctx context.Context, query string, args ...any) (*domain.Contact, error) {
	var c domain.Contact

	err := r.db.QueryRow(ctx, query, args...).Scan(
		&c.ID,
		&c.OwnerID,
		&c.FirstName,
		&c.LastName,
		&c.Email,
		&c.Phone,
		&c.Birthday.Time,
		&c.Note,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan contact: %w", err)
	}

	return &c, nil
}

// scanContacts is a helper that executes a query returning contact rows.
func (r *ContactRepository) scanContacts(ctx context.Context, query string, args ...any) ([]*domain.Contact, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query contacts: %w", err)
	}
	defer rows.Close()

	contacts := []*domain.Contact{}
	for rows.Next() {
		var c domain.Contact
		if err := rows.Scan(
			&c.ID,
			&c.OwnerID,
			&c.FirstName,
			&c.LastName,
			&c.Email,
			&c.Phone,
			&c.Birthday.Time,
			&c.Note,
			&c.CreatedAt,
			&c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan contact row: %w", err)
		}
		contacts = append(contacts, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contact rows: %w", err)
	}

	return contacts, nil
}
