package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rimsurge/identity-service/internal/transport/http/middleware"
	"github.com/rimsurge/identity-service/internal/usecase"
)

// RefreshTokenCookie is the cookie carrying the opaque refresh token.
const RefreshTokenCookie = "refresh_token"

// AuthHandler exposes login, registration, session refresh, logout, and the
// current-user endpoint.
type AuthHandler struct {
	auth         *usecase.AuthService
	registration *usecase.RegistrationService
	secure       bool
}

// NewAuthHandler constructs AuthHandler. secure controls the Secure attribute
// on session cookies and is disabled only in development.
func NewAuthHandler(auth *usecase.AuthService, registration *usecase.RegistrationService, secure bool) *AuthHandler {
	return &AuthHandler{
		auth:         auth,
		registration: registration,
		secure:       secure,
	}
}

// setSessionCookies writes the three session cookies. The access and refresh
// cookies are HttpOnly; the CSRF cookie must stay readable by page scripts so
// they can echo it into the X-CSRF-Token header.
func (h *AuthHandler) setSessionCookies(c *gin.Context, bundle *usecase.SessionBundle, includeRefresh bool) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.AccessTokenCookie, bundle.AccessToken, int(bundle.AccessTTL.Seconds()), "/", "", h.secure, true)
	if includeRefresh {
		c.SetCookie(RefreshTokenCookie, bundle.RefreshToken, int(bundle.RefreshTTL.Seconds()), "/", "", h.secure, true)
	}
	c.SetCookie(middleware.CSRFTokenCookie, bundle.CSRFToken, int(bundle.CSRFTTL.Seconds()), "/", "", h.secure, false)
}

func (h *AuthHandler) clearSessionCookies(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.AccessTokenCookie, "", -1, "/", "", h.secure, true)
	c.SetCookie(RefreshTokenCookie, "", -1, "/", "", h.secure, true)
	c.SetCookie(middleware.CSRFTokenCookie, "", -1, "/", "", h.secure, false)
}

// Login authenticates an identifier/password pair and establishes the three
// session cookies.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid login payload"))
		return
	}

	bundle, err := h.auth.Login(c.Request.Context(), req.Identifier, req.Password, req.DeviceType, c.ClientIP(), req.Remember)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "invalid credentials"},
			{Err: usecase.ErrAccountLocked, Status: http.StatusForbidden, Message: "account is not available"},
		}, http.StatusInternalServerError, "login failed")
		return
	}

	h.setSessionCookies(c, bundle, true)

	user := summarizeUser(bundle.User)
	c.JSON(http.StatusOK, SessionResponse{
		User:      &user,
		ExpiresIn: int(bundle.AccessTTL.Seconds()),
	})
}

// Register creates an account from a verified email, then logs it in.
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid registration payload"))
		return
	}

	bundle, err := h.registration.Register(c.Request.Context(), req.Email, req.Password, req.Code, req.DeviceType, c.ClientIP())
	if err != nil {
		var policyErr *usecase.PasswordPolicyError
		if errors.As(err, &policyErr) {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, policyErr.Message))
			return
		}
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidIdentity, Status: http.StatusBadRequest, Message: "a valid email is required"},
			{Err: usecase.ErrCodeExpired, Status: http.StatusBadRequest, Message: "verification code expired, request a new one"},
			{Err: usecase.ErrCodeInvalid, Status: http.StatusBadRequest, Message: "verification code invalid"},
			{Err: usecase.ErrEmailTaken, Status: http.StatusConflict, Message: "email already registered"},
		}, http.StatusInternalServerError, "registration failed")
		return
	}

	h.setSessionCookies(c, bundle, true)

	user := summarizeUser(bundle.User)
	c.JSON(http.StatusCreated, SessionResponse{
		User:      &user,
		ExpiresIn: int(bundle.AccessTTL.Seconds()),
	})
}

// Refresh exchanges the refresh cookie for a new access token and a rotated
// CSRF token. The refresh cookie itself stays in place.
func (h *AuthHandler) Refresh(c *gin.Context) {
	token, err := c.Cookie(RefreshTokenCookie)
	if err != nil || token == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "session expired"))
		return
	}

	bundle, err := h.auth.Refresh(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, usecase.ErrInvalidSession) {
			h.clearSessionCookies(c)
			c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "session expired"))
			return
		}
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "refresh failed"))
		return
	}

	h.setSessionCookies(c, bundle, false)

	c.JSON(http.StatusOK, SessionResponse{
		ExpiresIn: int(bundle.AccessTTL.Seconds()),
	})
}

// Logout revokes the refresh session and clears the cookies. Logging out
// twice succeeds.
func (h *AuthHandler) Logout(c *gin.Context) {
	token, _ := c.Cookie(RefreshTokenCookie)

	if err := h.auth.Logout(c.Request.Context(), token); err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "logout failed"))
		return
	}

	h.clearSessionCookies(c)
	c.Status(http.StatusNoContent)
}

// Me returns the account behind the caller's access token.
func (h *AuthHandler) Me(c *gin.Context) {
	claims, ok := middleware.GetSessionClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	user, err := h.auth.CurrentUser(c.Request.Context(), claims)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidSession, Status: http.StatusUnauthorized, Message: "invalid or expired access token"},
			{Err: usecase.ErrAccountLocked, Status: http.StatusForbidden, Message: "account is not available"},
		}, http.StatusInternalServerError, "lookup failed")
		return
	}

	summary := summarizeUser(*user)
	c.JSON(http.StatusOK, summary)
}
