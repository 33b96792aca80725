package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rimsurge/identity-service/internal/core/domain"
	"github.com/rimsurge/identity-service/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published",
		zap.String("event_type", eventType),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishUserLoggedIn logs identity.user.logged_in events.
func (p *StubPublisher) PublishUserLoggedIn(_ context.Context, event domain.UserLoggedInEvent) error {
	payload := map[string]any{
		"user_id":      event.UserID,
		"device_id":    event.DeviceID,
		"device_type":  event.DeviceType,
		"logged_in_at": event.LoggedInAt,
		"ip_address":   event.IPAddress,
		"metadata":     event.Metadata,
	}
	p.logEvent("identity.user.logged_in", event.LoggedInAt, payload)
	return nil
}

// PublishUserRegistered logs identity.user.registered events.
func (p *StubPublisher) PublishUserRegistered(_ context.Context, event domain.UserRegisteredEvent) error {
	payload := map[string]any{
		"user_id":       event.UserID,
		"username":      event.Username,
		"masked_email":  event.MaskedEmail,
		"registered_at": event.RegisteredAt,
		"metadata":      event.Metadata,
	}
	p.logEvent("identity.user.registered", event.RegisteredAt, payload)
	return nil
}

// PublishVerificationCodeSent logs identity.verification.code_sent events.
func (p *StubPublisher) PublishVerificationCodeSent(_ context.Context, event domain.VerificationCodeSentEvent) error {
	payload := map[string]any{
		"purpose":         event.Purpose,
		"masked_identity": event.MaskedIdentity,
		"sent_at":         event.SentAt,
		"expires_at":      event.ExpiresAt,
	}
	p.logEvent("identity.verification.code_sent", event.SentAt, payload)
	return nil
}

// PublishVerificationBanEscalated logs identity.verification.ban_escalated events.
func (p *StubPublisher) PublishVerificationBanEscalated(_ context.Context, event domain.VerificationBanEscalatedEvent) error {
	payload := map[string]any{
		"purpose":      event.Purpose,
		"scope":        event.Scope,
		"masked_value": event.MaskedValue,
		"escalated_at": event.EscalatedAt,
		"expires_at":   event.ExpiresAt,
	}
	p.logEvent("identity.verification.ban_escalated", event.EscalatedAt, payload)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
