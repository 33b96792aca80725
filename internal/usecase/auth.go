package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rimsurge/identity-service/internal/core/domain"
	"github.com/rimsurge/identity-service/internal/core/port"
	"github.com/rimsurge/identity-service/internal/infra/config"
	"github.com/rimsurge/identity-service/internal/infra/logger"
	"github.com/rimsurge/identity-service/internal/infra/security"
	"github.com/rimsurge/identity-service/internal/repository"
)

var (
	// ErrInvalidCredentials covers unknown identifier and wrong password
	// alike; callers must not be able to tell the two apart.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked indicates the account exists but may not authenticate.
	ErrAccountLocked = errors.New("account is not active")
	// ErrInvalidSession indicates the refresh or access token does not
	// resolve to a live session.
	ErrInvalidSession = errors.New("invalid session")
)

// SessionBundle carries everything a transport needs to establish the three
// session cookies after login, registration, or refresh.
type SessionBundle struct {
	User         domain.User
	AccessToken  string
	AccessTTL    time.Duration
	RefreshToken string
	RefreshTTL   time.Duration
	CSRFToken    string
	CSRFTTL      time.Duration
}

// AuthService coordinates login, session refresh, and logout.
type AuthService struct {
	cfg      *config.AppConfig
	users    port.UserRepository
	sessions port.RefreshTokenStore
	issuer   *security.TokenIssuer
	events   port.EventPublisher
	log      *zap.Logger
	now      func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(
	cfg *config.AppConfig,
	users port.UserRepository,
	sessions port.RefreshTokenStore,
	issuer *security.TokenIssuer,
	events port.EventPublisher,
	log *zap.Logger,
) *AuthService {
	return &AuthService{
		cfg:      cfg,
		users:    users,
		sessions: sessions,
		issuer:   issuer,
		events:   events,
		log:      log,
		now:      time.Now,
	}
}

// WithClock overrides the internal clock, used in tests.
func (s *AuthService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Login authenticates the identifier/password pair and establishes a session.
// An identifier containing "@" is treated as an email, anything else as a
// username.
func (s *AuthService) Login(ctx context.Context, identifier, password, deviceType, ip string, remember bool) (*SessionBundle, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	var (
		user *domain.User
		err  error
	)
	if strings.Contains(identifier, "@") {
		user, err = s.users.GetByEmail(ctx, strings.ToLower(identifier))
	} else {
		user, err = s.users.GetByUsername(ctx, identifier)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if !user.Active() {
		return nil, ErrAccountLocked
	}

	ok, err := s.verifyPassword(password, user)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	bundle, err := s.EstablishSession(ctx, *user, deviceType, ip, remember)
	if err != nil {
		return nil, err
	}

	return bundle, nil
}

// verifyPassword dispatches on the algorithm recorded for the row. Rows
// predating this service carry the inherited nested-MD5 scheme and must keep
// verifying byte-for-byte.
func (s *AuthService) verifyPassword(password string, user *domain.User) (bool, error) {
	switch user.PasswordAlgo {
	case domain.PasswordAlgoArgon2id:
		return security.VerifyPassword(password, user.PasswordHash)
	case domain.PasswordAlgoLegacyMD5, "":
		return security.VerifyLegacyPassword(password, user.Salt, user.PasswordHash), nil
	default:
		return false, fmt.Errorf("unknown password algorithm %q", user.PasswordAlgo)
	}
}

// EstablishSession issues the access token, refresh session, and CSRF token
// for an already-authenticated user, and records the login audit fields.
func (s *AuthService) EstablishSession(ctx context.Context, user domain.User, deviceType, ip string, remember bool) (*SessionBundle, error) {
	if deviceType == "" {
		deviceType = domain.DeviceTypeWeb
	}

	now := s.now().UTC()
	deviceID := uuid.NewString()

	accessToken, err := s.issuer.IssueAccessToken(user.ID, deviceID, deviceType, now)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	refreshToken, err := security.GenerateSecureToken(32)
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	refreshTTL := s.cfg.JWT.RefreshTokenShortTTL
	if remember {
		refreshTTL = s.cfg.JWT.RefreshTokenTTL
	}

	session := domain.RefreshSession{
		Token:      refreshToken,
		UserID:     user.ID,
		DeviceID:   deviceID,
		DeviceType: deviceType,
		ExpiresAt:  now.Add(refreshTTL),
	}

	// A session that cannot be confirmed in the store must fail the whole
	// login; handing out tokens against unconfirmed state is worse than a 503.
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("persist refresh session: %w", err)
	}

	csrfToken, err := security.GenerateSecureToken(32)
	if err != nil {
		return nil, fmt.Errorf("generate csrf token: %w", err)
	}

	csrfTTL := s.cfg.CSRF.CookieTTL
	if refreshTTL < csrfTTL {
		csrfTTL = refreshTTL
	}

	if err := s.users.RecordLogin(ctx, user.ID, ip, now); err != nil {
		// Audit trail matters but is not worth failing an authenticated login.
		s.log.Warn("record login audit",
			zap.Int64("user_id", user.ID), zap.Error(err))
	}

	ipCopy := ip
	event := domain.UserLoggedInEvent{
		EventID:    uuid.NewString(),
		UserID:     user.ID,
		DeviceID:   deviceID,
		DeviceType: deviceType,
		LoggedInAt: now,
	}
	if ip != "" {
		event.IPAddress = &ipCopy
	}
	if err := s.events.PublishUserLoggedIn(ctx, event); err != nil {
		s.log.Warn("publish login event", zap.Error(err))
	}

	s.log.Info("user logged in",
		zap.Int64("user_id", user.ID),
		zap.String("device_type", deviceType),
		zap.String("ip", logger.MaskIP(ip)),
	)

	sanitized := user
	sanitized.PasswordHash = ""
	sanitized.Salt = ""

	return &SessionBundle{
		User:         sanitized,
		AccessToken:  accessToken,
		AccessTTL:    s.issuer.TTL(),
		RefreshToken: refreshToken,
		RefreshTTL:   refreshTTL,
		CSRFToken:    csrfToken,
		CSRFTTL:      csrfTTL,
	}, nil
}

// Refresh exchanges a live refresh token for a new access token and a fresh
// CSRF token. The refresh token itself is left in place.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*SessionBundle, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, ErrInvalidSession
	}

	session, err := s.sessions.Resolve(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, fmt.Errorf("resolve refresh session: %w", err)
	}

	now := s.now().UTC()

	accessToken, err := s.issuer.IssueAccessToken(session.UserID, session.DeviceID, session.DeviceType, now)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	csrfToken, err := security.GenerateSecureToken(32)
	if err != nil {
		return nil, fmt.Errorf("generate csrf token: %w", err)
	}

	// The CSRF cookie must not outlive the refresh session, but a token
	// about to expire still gets a small usability floor.
	remaining := session.Remaining(now)
	csrfTTL := s.cfg.CSRF.CookieTTL
	if remaining < csrfTTL {
		csrfTTL = remaining
	}
	if csrfTTL < s.cfg.CSRF.MinTTL {
		csrfTTL = s.cfg.CSRF.MinTTL
	}

	return &SessionBundle{
		AccessToken:  accessToken,
		AccessTTL:    s.issuer.TTL(),
		RefreshToken: refreshToken,
		RefreshTTL:   remaining,
		CSRFToken:    csrfToken,
		CSRFTTL:      csrfTTL,
	}, nil
}

// Logout revokes the refresh session. Revoking an already-dead token
// succeeds; logout is idempotent.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil
	}

	if err := s.sessions.Revoke(ctx, refreshToken); err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}

	return nil
}

// ParseAccessToken validates a raw access token. Every failure maps to
// ErrInvalidSession.
func (s *AuthService) ParseAccessToken(raw string) (*domain.SessionClaims, error) {
	claims, err := s.issuer.ParseAccessToken(strings.TrimSpace(raw))
	if err != nil {
		return nil, ErrInvalidSession
	}
	return claims, nil
}

// CurrentUser resolves the account behind a parsed access token, re-checking
// the account status against the store.
func (s *AuthService) CurrentUser(ctx context.Context, claims *domain.SessionClaims) (*domain.User, error) {
	if claims == nil {
		return nil, ErrInvalidSession
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if !user.Active() {
		return nil, ErrAccountLocked
	}

	sanitized := *user
	sanitized.PasswordHash = ""
	sanitized.Salt = ""

	return &sanitized, nil
}
