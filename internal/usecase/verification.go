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
)

var (
	// ErrInvalidIdentity indicates the supplied identity is not a usable
	// email address.
	ErrInvalidIdentity = errors.New("invalid identity")
	// ErrInvalidPurpose indicates an unknown verification purpose.
	ErrInvalidPurpose = errors.New("invalid verification purpose")
)

const verificationCodeLength = 6

// SendResult is the single response shape for every send request. Callers
// cannot tell from it whether a code was actually dispatched, so the endpoint
// reveals nothing about account existence, cooldowns, or bans.
type SendResult struct {
	Message          string
	RateLimitSeconds int
}

// VerificationService implements the verification code engine: issuance with
// cooldown and ban gating, and one-time atomic verification.
type VerificationService struct {
	cfg    *config.AppConfig
	codes  port.VerificationCodeStore
	locks  port.CooldownStore
	abuse  port.AbuseTracker
	exists port.ExistsCache
	users  port.UserRepository
	mailer port.Mailer
	events port.EventPublisher
	log    *zap.Logger
	now    func() time.Time
}

// NewVerificationService constructs the engine.
func NewVerificationService(
	cfg *config.AppConfig,
	codes port.VerificationCodeStore,
	locks port.CooldownStore,
	abuse port.AbuseTracker,
	exists port.ExistsCache,
	users port.UserRepository,
	mailer port.Mailer,
	events port.EventPublisher,
	log *zap.Logger,
) *VerificationService {
	return &VerificationService{
		cfg:    cfg,
		codes:  codes,
		locks:  locks,
		abuse:  abuse,
		exists: exists,
		users:  users,
		mailer: mailer,
		events: events,
		log:    log,
		now:    time.Now,
	}
}

// WithClock overrides the internal clock, used in tests.
func (s *VerificationService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// genericResult is the one constructor for send responses. Every branch of
// Send funnels through it so refusals and successes are indistinguishable.
func (s *VerificationService) genericResult() SendResult {
	return SendResult{
		Message:          "If the address is eligible, a verification code has been sent.",
		RateLimitSeconds: int(s.cfg.Verification.CooldownTTL.Seconds()),
	}
}

// Send runs the full issuance pipeline for one request. The returned result
// is identical whether a code was dispatched or the request was silently
// refused; only validation failures surface as errors.
func (s *VerificationService) Send(ctx context.Context, purpose domain.VerificationPurpose, identity, addr string) (SendResult, error) {
	if !purpose.Valid() {
		return SendResult{}, ErrInvalidPurpose
	}

	identity = strings.ToLower(strings.TrimSpace(identity))
	if identity == "" || !strings.Contains(identity, "@") {
		return SendResult{}, ErrInvalidIdentity
	}
	if addr == "" {
		addr = "unknown"
	}

	masked := logger.MaskEmail(identity)
	vcfg := s.cfg.Verification

	// Active bans refuse before anything else is touched.
	for _, check := range []struct {
		scope domain.AbuseScope
		value string
	}{
		{domain.AbuseScopeIdentity, identity},
		{domain.AbuseScopeAddress, addr},
	} {
		banned, err := s.abuse.IsBanned(ctx, purpose, check.scope, check.value)
		if err != nil {
			// Gating state unavailable: refuse, never bypass.
			s.log.Warn("ban check unavailable, refusing send",
				zap.String("identity", masked), zap.Error(err))
			return s.genericResult(), nil
		}
		if banned {
			return s.genericResult(), nil
		}
	}

	acquired, err := s.locks.AcquirePair(ctx, purpose, identity, addr, vcfg.CooldownTTL)
	if err != nil {
		s.log.Warn("cooldown state unavailable, refusing send",
			zap.String("identity", masked), zap.Error(err))
		return s.genericResult(), nil
	}
	if !acquired {
		return s.genericResult(), nil
	}

	if refused := s.trackAbuse(ctx, purpose, identity, addr, masked); refused {
		return s.genericResult(), nil
	}

	exists, ok := s.accountExists(ctx, identity, masked)
	if !ok {
		return s.genericResult(), nil
	}

	switch purpose {
	case domain.PurposeRegister:
		if exists {
			// The address already has an account; tell its owner rather
			// than the requester.
			s.sendExistsNotice(ctx, identity, masked)
			return s.genericResult(), nil
		}
	case domain.PurposeReset:
		if !exists {
			return s.genericResult(), nil
		}
	}

	code, err := security.GenerateNumericCode(verificationCodeLength)
	if err != nil {
		s.log.Error("generate verification code", zap.Error(err))
		return s.genericResult(), nil
	}

	digest := security.DigestCode(code, vcfg.CodePepper)
	if err := s.codes.Store(ctx, purpose, identity, digest, vcfg.CodeTTL); err != nil {
		s.log.Error("store verification code",
			zap.String("identity", masked), zap.Error(err))
		return s.genericResult(), nil
	}

	subject, body := verificationMail(purpose, code, vcfg.CodeTTL)
	if err := s.mailer.Send(ctx, identity, subject, body); err != nil {
		// Undelivered codes must not stay live.
		if delErr := s.codes.Delete(ctx, purpose, identity); delErr != nil {
			s.log.Error("delete undelivered code",
				zap.String("identity", masked), zap.Error(delErr))
		}
		s.log.Warn("verification mail not delivered",
			zap.String("identity", masked), zap.Error(err))
		return s.genericResult(), nil
	}

	now := s.now().UTC()
	event := domain.VerificationCodeSentEvent{
		EventID:        uuid.NewString(),
		Purpose:        purpose,
		MaskedIdentity: masked,
		SentAt:         now,
		ExpiresAt:      now.Add(vcfg.CodeTTL),
	}
	if err := s.events.PublishVerificationCodeSent(ctx, event); err != nil {
		s.log.Warn("publish code sent event", zap.Error(err))
	}

	s.log.Info("verification code sent",
		zap.String("identity", masked),
		zap.String("purpose", string(purpose)),
	)

	return s.genericResult(), nil
}

// trackAbuse records the send and escalates to a ban when one side of the
// pairing crossed the threshold under pressure from several counterparts.
// It reports whether this send must be refused.
func (s *VerificationService) trackAbuse(ctx context.Context, purpose domain.VerificationPurpose, identity, addr, masked string) bool {
	vcfg := s.cfg.Verification

	sample, err := s.abuse.Track(ctx, purpose, identity, addr, vcfg.AbuseWindow)
	if err != nil {
		s.log.Warn("abuse tracking unavailable, refusing send",
			zap.String("identity", masked), zap.Error(err))
		return true
	}

	threshold := int64(vcfg.AbuseThreshold)
	refused := false

	if sample.IdentityCount >= threshold && sample.IdentityPeers > 1 {
		s.escalateBan(ctx, purpose, domain.AbuseScopeIdentity, identity, masked)
		refused = true
	}
	if sample.AddressCount >= threshold && sample.AddressPeers > 1 {
		s.escalateBan(ctx, purpose, domain.AbuseScopeAddress, addr, logger.MaskIP(addr))
		refused = true
	}

	return refused
}

func (s *VerificationService) escalateBan(ctx context.Context, purpose domain.VerificationPurpose, scope domain.AbuseScope, value, masked string) {
	ttl := s.cfg.Verification.BanTTL
	if err := s.abuse.Ban(ctx, purpose, scope, value, ttl); err != nil {
		s.log.Error("escalate ban",
			zap.String("scope", string(scope)), zap.Error(err))
		return
	}

	now := s.now().UTC()
	event := domain.VerificationBanEscalatedEvent{
		EventID:     uuid.NewString(),
		Purpose:     purpose,
		Scope:       scope,
		MaskedValue: masked,
		EscalatedAt: now,
		ExpiresAt:   now.Add(ttl),
	}
	if err := s.events.PublishVerificationBanEscalated(ctx, event); err != nil {
		s.log.Warn("publish ban event", zap.Error(err))
	}

	s.log.Warn("verification ban escalated",
		zap.String("scope", string(scope)),
		zap.String("value", masked),
	)
}

// accountExists answers the existence question through the short-lived memo.
// The memo is advisory, a broken cache read degrades to the database lookup.
// ok is false only when the source of truth itself could not answer, in which
// case the send must be refused.
func (s *VerificationService) accountExists(ctx context.Context, identity, masked string) (exists, ok bool) {
	exists, found, err := s.exists.Get(ctx, identity)
	if err != nil {
		s.log.Warn("exists cache unavailable, falling back to database",
			zap.String("identity", masked), zap.Error(err))
		found = false
	}
	if found {
		return exists, true
	}

	exists, err = s.users.EmailExists(ctx, identity)
	if err != nil {
		s.log.Warn("existence lookup failed, refusing send",
			zap.String("identity", masked), zap.Error(err))
		return false, false
	}

	if err := s.exists.Set(ctx, identity, exists, s.cfg.Verification.ExistsCacheTTL); err != nil {
		// Memo write failure does not invalidate the answer we already have.
		s.log.Warn("exists memo write failed", zap.Error(err))
	}

	return exists, true
}

func (s *VerificationService) sendExistsNotice(ctx context.Context, identity, masked string) {
	subject := "An account with this address already exists"
	body := "A registration code was requested for this address, but it already has an account. " +
		"If this was you, sign in instead. Otherwise you can ignore this message."

	if err := s.mailer.Send(ctx, identity, subject, body); err != nil {
		s.log.Warn("exists notice not delivered",
			zap.String("identity", masked), zap.Error(err))
	}
}

// Verify checks a candidate code. A match consumes the record; a mismatch
// burns one attempt. The absent/expired outcome is the only state the caller
// may distinguish from a plain mismatch.
func (s *VerificationService) Verify(ctx context.Context, purpose domain.VerificationPurpose, identity, code string) (domain.VerifyOutcome, error) {
	if !purpose.Valid() {
		return domain.VerifyOutcome{}, ErrInvalidPurpose
	}

	identity = strings.ToLower(strings.TrimSpace(identity))
	if identity == "" {
		return domain.VerifyOutcome{}, ErrInvalidIdentity
	}

	vcfg := s.cfg.Verification
	digest := security.DigestCode(strings.TrimSpace(code), vcfg.CodePepper)

	outcome, err := s.codes.Verify(ctx, purpose, identity, digest, vcfg.MaxVerifyFailures, vcfg.FailureWindow)
	if err != nil {
		return domain.VerifyOutcome{}, fmt.Errorf("verify code: %w", err)
	}

	return outcome, nil
}

func verificationMail(purpose domain.VerificationPurpose, code string, ttl time.Duration) (subject, body string) {
	switch purpose {
	case domain.PurposeReset:
		subject = "Your password reset code"
	default:
		subject = "Your registration code"
	}

	body = fmt.Sprintf(
		"Your verification code is %s. It expires in %d minutes.\n\nIf you did not request this code, you can ignore this message.",
		code, int(ttl.Minutes()),
	)
	return subject, body
}
