package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/contacthub/contacthub/internal/domain"
	pkgkafka "github.com/contacthub/contacthub/pkg/kafka"
)

// Kafka topic constants for account events. The notification worker consumes
// user.registered to send the confirmation email.
const (
	TopicUserRegistered = "contacts.user.registered"
	TopicUserConfirmed  = "contacts.user.confirmed"
)

// Aggregate type constant.
const AggregateTypeUser = "user"

// Source identifier for events originating from this service.
const SourceContacthub = "contacthub"

// UserRegisteredData is the payload for a user.registered event. It carries
// the confirmation token so the mail worker can build the verification link.
type UserRegisteredData struct {
	ID                string `json:"id"`
	Username          string `json:"username"`
	Email             string `json:"email"`
	ConfirmationToken string `json:"confirmation_token"`
}

// UserConfirmedData is the payload for a user.confirmed event.
type UserConfirmedData struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Producer publishes account events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishUserRegistered publishes a user.registered event carrying the
// email-confirmation token.
func (p *Producer) PublishUserRegistered(ctx context.Context, user *domain.User, confirmationToken string) error {
	data := UserRegisteredData{
		ID:                user.ID,
		Username:          user.Username,
		Email:             user.Email,
		ConfirmationToken: confirmationToken,
	}

	event, err := pkgkafka.NewEvent(TopicUserRegistered, user.ID, AggregateTypeUser, SourceContacthub, data)
	if err != nil {
		return fmt.Errorf("create user.registered event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicUserRegistered, event); err != nil {
		return fmt.Errorf("publish user.registered event: %w", err)
	}

	p.logger.DebugContext(ctx, "published user.registered event",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)

	return nil
}

// PublishUserConfirmed publishes a user.confirmed event.
func (p *Producer) PublishUserConfirmed(ctx context.Context, user *domain.User) error {
	data := UserConfirmedData{
		ID:    user.ID,
		Email: user.Email,
	}

	event, err := pkgkafka.NewEvent(TopicUserConfirmed, user.ID, AggregateTypeUser, SourceContacthub, data)
	if err != nil {
		return fmt.Errorf("create user.confirmed event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicUserConfirmed, event); err != nil {
		return fmt.Errorf("publish user.confirmed event: %w", err)
	}

	p.logger.DebugContext(ctx, "published user.confirmed event",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)

	return nil
}
