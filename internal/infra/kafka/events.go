package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rimsurge/identity-service/internal/core/domain"
	"github.com/rimsurge/identity-service/internal/core/port"
	"github.com/rimsurge/identity-service/internal/infra/config"
)

const schemaVersion = "1.0"

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	UserID    string           `json:"user_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, userID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		UserID:    userID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishUserLoggedIn publishes identity.user.logged_in events.
func (p *EventPublisher) PublishUserLoggedIn(ctx context.Context, event domain.UserLoggedInEvent) error {
	payload := struct {
		UserID     int64          `json:"user_id"`
		DeviceID   string         `json:"device_id"`
		DeviceType string         `json:"device_type"`
		LoggedInAt time.Time      `json:"logged_in_at"`
		IPAddress  *string        `json:"ip_address,omitempty"`
		Metadata   map[string]any `json:"metadata,omitempty"`
	}{
		UserID:     event.UserID,
		DeviceID:   event.DeviceID,
		DeviceType: event.DeviceType,
		LoggedInAt: event.LoggedInAt.UTC(),
		IPAddress:  event.IPAddress,
		Metadata:   event.Metadata,
	}

	return p.publish(ctx, event.EventID, "identity.user.logged_in", strconv.FormatInt(event.UserID, 10), event.LoggedInAt, payload)
}

// PublishUserRegistered publishes identity.user.registered events.
func (p *EventPublisher) PublishUserRegistered(ctx context.Context, event domain.UserRegisteredEvent) error {
	payload := struct {
		UserID       int64          `json:"user_id"`
		Username     string         `json:"username"`
		MaskedEmail  string         `json:"masked_email"`
		RegisteredAt time.Time      `json:"registered_at"`
		Metadata     map[string]any `json:"metadata,omitempty"`
	}{
		UserID:       event.UserID,
		Username:     event.Username,
		MaskedEmail:  event.MaskedEmail,
		RegisteredAt: event.RegisteredAt.UTC(),
		Metadata:     event.Metadata,
	}

	return p.publish(ctx, event.EventID, "identity.user.registered", strconv.FormatInt(event.UserID, 10), event.RegisteredAt, payload)
}

// PublishVerificationCodeSent publishes identity.verification.code_sent events.
// The payload carries the masked identity only.
func (p *EventPublisher) PublishVerificationCodeSent(ctx context.Context, event domain.VerificationCodeSentEvent) error {
	payload := struct {
		Purpose        string    `json:"purpose"`
		MaskedIdentity string    `json:"masked_identity"`
		SentAt         time.Time `json:"sent_at"`
		ExpiresAt      time.Time `json:"expires_at"`
	}{
		Purpose:        string(event.Purpose),
		MaskedIdentity: event.MaskedIdentity,
		SentAt:         event.SentAt.UTC(),
		ExpiresAt:      event.ExpiresAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "identity.verification.code_sent", "", event.SentAt, payload)
}

// PublishVerificationBanEscalated publishes identity.verification.ban_escalated events.
func (p *EventPublisher) PublishVerificationBanEscalated(ctx context.Context, event domain.VerificationBanEscalatedEvent) error {
	payload := struct {
		Purpose     string    `json:"purpose"`
		Scope       string    `json:"scope"`
		MaskedValue string    `json:"masked_value"`
		EscalatedAt time.Time `json:"escalated_at"`
		ExpiresAt   time.Time `json:"expires_at"`
	}{
		Purpose:     string(event.Purpose),
		Scope:       string(event.Scope),
		MaskedValue: event.MaskedValue,
		EscalatedAt: event.EscalatedAt.UTC(),
		ExpiresAt:   event.ExpiresAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "identity.verification.ban_escalated", "", event.EscalatedAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
