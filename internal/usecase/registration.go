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
	// ErrEmailTaken indicates the email already belongs to an account.
	ErrEmailTaken = errors.New("email already registered")
	// ErrCodeInvalid indicates the verification code did not match.
	ErrCodeInvalid = errors.New("verification code invalid")
	// ErrCodeExpired indicates no live code exists for the email.
	ErrCodeExpired = errors.New("verification code expired")
)

// PasswordPolicyError reports the policy rule a candidate password violated.
// Unlike credential errors this one is safe to spell out.
type PasswordPolicyError struct {
	Code    string
	Message string
}

func (e *PasswordPolicyError) Error() string {
	return "password rejected: " + e.Message
}

// RegistrationService creates accounts after email-code verification.
type RegistrationService struct {
	cfg          *config.AppConfig
	users        port.UserRepository
	verification *VerificationService
	auth         *AuthService
	events       port.EventPublisher
	log          *zap.Logger
	now          func() time.Time
}

// NewRegistrationService constructs a RegistrationService instance.
func NewRegistrationService(
	cfg *config.AppConfig,
	users port.UserRepository,
	verification *VerificationService,
	auth *AuthService,
	events port.EventPublisher,
	log *zap.Logger,
) *RegistrationService {
	return &RegistrationService{
		cfg:          cfg,
		users:        users,
		verification: verification,
		auth:         auth,
		events:       events,
		log:          log,
		now:          time.Now,
	}
}

// WithClock overrides the internal clock, used in tests.
func (s *RegistrationService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Register consumes the verification code for the email, validates the
// password against policy, creates the account with an Argon2id hash, and
// logs the new user in.
func (s *RegistrationService) Register(ctx context.Context, email, password, code, deviceType, ip string) (*SessionBundle, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !strings.Contains(email, "@") {
		return nil, ErrInvalidIdentity
	}

	// The code gate comes first. A wrong or stale code must be reported
	// before any hint about the email's registration state leaks out.
	outcome, err := s.verification.Verify(ctx, domain.PurposeRegister, email, code)
	if err != nil {
		return nil, fmt.Errorf("verify code: %w", err)
	}
	switch outcome.Status {
	case domain.VerifyOK:
	case domain.VerifyAbsent:
		return nil, ErrCodeExpired
	default:
		return nil, ErrCodeInvalid
	}

	validator := security.NewPasswordValidatorWithContext(email)
	if err := validator.Validate(password); err != nil {
		var violation *security.PasswordValidationError
		if errors.As(err, &violation) {
			return nil, &PasswordPolicyError{Code: violation.Code, Message: violation.Message}
		}
		return nil, fmt.Errorf("validate password: %w", err)
	}

	hash, err := security.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	// The salt column is unused by Argon2id but the shared table requires a
	// value; new rows get a random one so they look like every other row.
	salt, err := security.GenerateHexToken(8)
	if err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	username, err := s.pickUsername(ctx, email)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	user := domain.User{
		Username:     username,
		Nickname:     username,
		Email:        email,
		PasswordHash: hash,
		Salt:         salt,
		PasswordAlgo: domain.PasswordAlgoArgon2id,
		Status:       domain.UserStatusNormal,
		Platform:     deviceType,
		CreateTime:   now.Unix(),
		UpdateTime:   now.Unix(),
	}

	id, err := s.users.Create(ctx, user)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	user.ID = id

	event := domain.UserRegisteredEvent{
		EventID:      uuid.NewString(),
		UserID:       id,
		Username:     username,
		MaskedEmail:  logger.MaskEmail(email),
		RegisteredAt: now,
	}
	if err := s.events.PublishUserRegistered(ctx, event); err != nil {
		s.log.Warn("publish registration event", zap.Error(err))
	}

	s.log.Info("user registered",
		zap.Int64("user_id", id),
		zap.String("email", logger.MaskEmail(email)),
	)

	return s.auth.EstablishSession(ctx, user, deviceType, ip, false)
}

// pickUsername derives a username from the email local part, appending a
// random hex suffix on collision.
func (s *RegistrationService) pickUsername(ctx context.Context, email string) (string, error) {
	local := email[:strings.Index(email, "@")]
	if local == "" {
		local = "user"
	}

	taken, err := s.users.UsernameExists(ctx, local)
	if err != nil {
		return "", fmt.Errorf("check username: %w", err)
	}
	if !taken {
		return local, nil
	}

	suffix, err := security.GenerateHexToken(4)
	if err != nil {
		return "", fmt.Errorf("generate username suffix: %w", err)
	}
	return local + suffix, nil
}
