package domain

import "time"

// UserLoggedInEvent is published after a successful credential login.
type UserLoggedInEvent struct {
	EventID    string         `json:"event_id"`
	UserID     int64          `json:"user_id"`
	DeviceID   string         `json:"device_id"`
	DeviceType string         `json:"device_type"`
	LoggedInAt time.Time      `json:"logged_in_at"`
	IPAddress  *string        `json:"ip_address,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// UserRegisteredEvent is published after a new account is created.
type UserRegisteredEvent struct {
	EventID      string         `json:"event_id"`
	UserID       int64          `json:"user_id"`
	Username     string         `json:"username"`
	MaskedEmail  string         `json:"masked_email"`
	RegisteredAt time.Time      `json:"registered_at"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// VerificationCodeSentEvent is published when a code is dispatched. The
// identity is masked; the plaintext code never appears in events.
type VerificationCodeSentEvent struct {
	EventID        string              `json:"event_id"`
	Purpose        VerificationPurpose `json:"purpose"`
	MaskedIdentity string              `json:"masked_identity"`
	SentAt         time.Time           `json:"sent_at"`
	ExpiresAt      time.Time           `json:"expires_at"`
}

// VerificationBanEscalatedEvent is published when repeated distinct-counterpart
// traffic escalates a scope into a temporary ban.
type VerificationBanEscalatedEvent struct {
	EventID     string              `json:"event_id"`
	Purpose     VerificationPurpose `json:"purpose"`
	Scope       AbuseScope          `json:"scope"`
	MaskedValue string              `json:"masked_value"`
	EscalatedAt time.Time           `json:"escalated_at"`
	ExpiresAt   time.Time           `json:"expires_at"`
}
