package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rimsurge/identity-service/internal/core/domain"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// UserSummary describes the view of an account returned by the API. Password
// material never appears here.
type UserSummary struct {
	ID       int64             `json:"id"`
	Username string            `json:"username"`
	Nickname string            `json:"nickname,omitempty"`
	Email    string            `json:"email"`
	Avatar   string            `json:"avatar,omitempty"`
	Status   domain.UserStatus `json:"status"`
}

func summarizeUser(user domain.User) UserSummary {
	return UserSummary{
		ID:       user.ID,
		Username: user.Username,
		Nickname: user.Nickname,
		Email:    user.Email,
		Avatar:   user.Avatar,
		Status:   user.Status,
	}
}

// LoginRequest defines the payload for the login endpoint. The identifier is
// an email or a username.
type LoginRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Password   string `json:"password" binding:"required"`
	DeviceType string `json:"device_type"`
	Remember   bool   `json:"remember"`
}

// RegisterRequest defines the payload for the register endpoint.
type RegisterRequest struct {
	Email      string `json:"email" binding:"required"`
	Password   string `json:"password" binding:"required"`
	Code       string `json:"code" binding:"required"`
	DeviceType string `json:"device_type"`
}

// SessionResponse is returned by login, register, and refresh. Tokens travel
// in cookies, not in the body.
type SessionResponse struct {
	User      *UserSummary `json:"user,omitempty"`
	ExpiresIn int          `json:"expires_in"`
}

// SendCodeRequest defines the payload for send-verification-code.
type SendCodeRequest struct {
	Email   string `json:"email" binding:"required"`
	Purpose string `json:"purpose"`
}

// SendCodeResponse is the fixed response shape for send-verification-code.
// It is identical whether or not a code was dispatched.
type SendCodeResponse struct {
	Message          string `json:"message"`
	RateLimitSeconds int    `json:"rate_limit_seconds"`
}

// VerifyCodeRequest defines the payload for verify-code.
type VerifyCodeRequest struct {
	Email   string `json:"email" binding:"required"`
	Code    string `json:"code" binding:"required"`
	Purpose string `json:"purpose"`
}

// VerifyCodeResponse reports the outcome of a verification attempt.
type VerifyCodeResponse struct {
	Verified          bool   `json:"verified"`
	Reason            string `json:"reason,omitempty"`
	RemainingAttempts *int   `json:"remaining_attempts,omitempty"`
}

// HealthResponse describes the liveness payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// ReadinessResponse describes the readiness payload with per-dependency
// results.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
