package port

import (
	"context"

	"github.com/rimsurge/identity-service/internal/core/domain"
)

// EventPublisher emits identity lifecycle events for downstream consumers.
// Implementations must never block request handling on broker availability.
type EventPublisher interface {
	PublishUserLoggedIn(ctx context.Context, event domain.UserLoggedInEvent) error
	PublishUserRegistered(ctx context.Context, event domain.UserRegisteredEvent) error
	PublishVerificationCodeSent(ctx context.Context, event domain.VerificationCodeSentEvent) error
	PublishVerificationBanEscalated(ctx context.Context, event domain.VerificationBanEscalatedEvent) error
}
