package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rimsurge/identity-service/internal/core/domain"
	"github.com/rimsurge/identity-service/internal/usecase"
)

// VerificationHandler exposes the verification-code endpoints.
type VerificationHandler struct {
	verification *usecase.VerificationService
}

// NewVerificationHandler constructs VerificationHandler.
func NewVerificationHandler(verification *usecase.VerificationService) *VerificationHandler {
	return &VerificationHandler{verification: verification}
}

func parsePurpose(raw string) (domain.VerificationPurpose, bool) {
	switch raw {
	case "", string(domain.PurposeRegister):
		return domain.PurposeRegister, true
	case string(domain.PurposeReset):
		return domain.PurposeReset, true
	default:
		return "", false
	}
}

// SendCode requests a verification code for an email. The response is the
// same 200 regardless of whether a code was actually dispatched; only payload
// validation failures produce a 400.
func (h *VerificationHandler) SendCode(c *gin.Context) {
	var req SendCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid payload"))
		return
	}

	purpose, ok := parsePurpose(req.Purpose)
	if !ok {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "unknown purpose"))
		return
	}

	result, err := h.verification.Send(c.Request.Context(), purpose, req.Email, c.ClientIP())
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidIdentity, Status: http.StatusBadRequest, Message: "a valid email is required"},
			{Err: usecase.ErrInvalidPurpose, Status: http.StatusBadRequest, Message: "unknown purpose"},
		}, http.StatusInternalServerError, "request failed")
		return
	}

	c.JSON(http.StatusOK, SendCodeResponse{
		Message:          result.Message,
		RateLimitSeconds: result.RateLimitSeconds,
	})
}

// VerifyCode checks a candidate code without consuming flows beyond the code
// itself. A match consumes the code.
func (h *VerificationHandler) VerifyCode(c *gin.Context) {
	var req VerifyCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid payload"))
		return
	}

	purpose, ok := parsePurpose(req.Purpose)
	if !ok {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "unknown purpose"))
		return
	}

	outcome, err := h.verification.Verify(c.Request.Context(), purpose, req.Email, req.Code)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidIdentity, Status: http.StatusBadRequest, Message: "a valid email is required"},
			{Err: usecase.ErrInvalidPurpose, Status: http.StatusBadRequest, Message: "unknown purpose"},
		}, http.StatusInternalServerError, "request failed")
		return
	}

	switch outcome.Status {
	case domain.VerifyOK:
		c.JSON(http.StatusOK, VerifyCodeResponse{Verified: true})
	case domain.VerifyAbsent:
		c.JSON(http.StatusBadRequest, VerifyCodeResponse{Verified: false, Reason: "code expired or not issued"})
	case domain.VerifyMismatch:
		remaining := outcome.RemainingAttempts
		c.JSON(http.StatusBadRequest, VerifyCodeResponse{Verified: false, Reason: "code invalid", RemainingAttempts: &remaining})
	default:
		c.JSON(http.StatusBadRequest, VerifyCodeResponse{Verified: false, Reason: "code invalid"})
	}
}
