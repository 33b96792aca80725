package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rimsurge/identity-service/internal/core/domain"
	"github.com/rimsurge/identity-service/internal/core/port"
	"github.com/rimsurge/identity-service/internal/infra/security"
)

type verificationFixture struct {
	svc    *VerificationService
	codes  *memCodeStore
	locks  *memCooldown
	abuse  *memAbuse
	exists *memExistsCache
	users  *memUserRepo
	mailer *recordMailer
	events *recordPublisher
}

func newVerificationFixture(t *testing.T) *verificationFixture {
	t.Helper()

	f := &verificationFixture{
		codes:  newMemCodeStore(),
		locks:  &memCooldown{},
		abuse:  newMemAbuse(),
		exists: newMemExistsCache(),
		users:  newMemUserRepo(),
		mailer: &recordMailer{},
		events: &recordPublisher{},
	}
	f.svc = NewVerificationService(testConfig(), f.codes, f.locks, f.abuse, f.exists, f.users, f.mailer, f.events, testLogger())
	return f
}

func TestSendIssuesCodeForNewRegistration(t *testing.T) {
	f := newVerificationFixture(t)

	result, err := f.svc.Send(context.Background(), domain.PurposeRegister, "u@example.com", "203.0.113.9")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if result.RateLimitSeconds != 60 {
		t.Fatalf("rate limit seconds = %d, want 60", result.RateLimitSeconds)
	}
	if !f.codes.has(domain.PurposeRegister, "u@example.com") {
		t.Fatal("expected a stored code")
	}
	if f.mailer.count() != 1 {
		t.Fatalf("expected one mail, got %d", f.mailer.count())
	}
	if got := f.mailer.sent[0].To; got != "u@example.com" {
		t.Fatalf("mail to %q", got)
	}
	if len(f.events.codesSent) != 1 {
		t.Fatalf("expected one code-sent event, got %d", len(f.events.codesSent))
	}
	if strings.Contains(f.events.codesSent[0].MaskedIdentity, "u@example.com") {
		t.Fatal("event must carry a masked identity")
	}
}

func TestSendRefusalsMatchSuccessExactly(t *testing.T) {
	f := newVerificationFixture(t)

	success, err := f.svc.Send(context.Background(), domain.PurposeRegister, "u@example.com", "203.0.113.9")
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	// Second send inside the cooldown window.
	f.locks.refuse = true
	refused, err := f.svc.Send(context.Background(), domain.PurposeRegister, "u@example.com", "203.0.113.9")
	if err != nil {
		t.Fatalf("refused send: %v", err)
	}
	if refused != success {
		t.Fatalf("refusal %+v must be indistinguishable from success %+v", refused, success)
	}
	if f.mailer.count() != 1 {
		t.Fatal("refused send must not mail")
	}
}

func TestSendRegisterExistingAccountNotifiesOwner(t *testing.T) {
	f := newVerificationFixture(t)
	f.users.add(domain.User{Username: "alice", Email: "alice@example.com", Status: domain.UserStatusNormal})

	result, err := f.svc.Send(context.Background(), domain.PurposeRegister, "alice@example.com", "203.0.113.9")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if result != f.svc.genericResult() {
		t.Fatalf("unexpected result %+v", result)
	}
	if f.codes.has(domain.PurposeRegister, "alice@example.com") {
		t.Fatal("no code may be stored for an existing registration target")
	}
	if f.mailer.count() != 1 {
		t.Fatalf("expected the exists notice, got %d mails", f.mailer.count())
	}
	if !strings.Contains(f.mailer.sent[0].Subject, "already exists") {
		t.Fatalf("unexpected notice subject %q", f.mailer.sent[0].Subject)
	}
}

func TestSendResetUnknownAccountRefusesSilently(t *testing.T) {
	f := newVerificationFixture(t)

	result, err := f.svc.Send(context.Background(), domain.PurposeReset, "ghost@example.com", "203.0.113.9")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if result != f.svc.genericResult() {
		t.Fatalf("unexpected result %+v", result)
	}
	if f.mailer.count() != 0 {
		t.Fatal("no mail may go to an unknown reset target")
	}
	if f.codes.has(domain.PurposeReset, "ghost@example.com") {
		t.Fatal("no code may be stored for an unknown reset target")
	}
}

func TestSendEscalatesBanUnderDistributedPressure(t *testing.T) {
	f := newVerificationFixture(t)
	f.abuse.sample = port.AbuseSample{IdentityCount: 6, IdentityPeers: 3, AddressCount: 2, AddressPeers: 1}

	result, err := f.svc.Send(context.Background(), domain.PurposeRegister, "victim@example.com", "203.0.113.9")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if result != f.svc.genericResult() {
		t.Fatalf("unexpected result %+v", result)
	}
	if !f.abuse.bans[banKey(domain.PurposeRegister, domain.AbuseScopeIdentity, "victim@example.com")] {
		t.Fatal("expected the identity scope to be banned")
	}
	if len(f.events.bans) != 1 {
		t.Fatalf("expected one ban event, got %d", len(f.events.bans))
	}
	if f.events.bans[0].MaskedValue == "victim@example.com" {
		t.Fatal("ban event must mask the value")
	}
	if f.mailer.count() != 0 {
		t.Fatal("banned send must not mail")
	}

	// Subsequent sends refuse on the ban check alone.
	f.abuse.sample = port.AbuseSample{}
	if _, err := f.svc.Send(context.Background(), domain.PurposeRegister, "victim@example.com", "198.51.100.7"); err != nil {
		t.Fatalf("send under ban: %v", err)
	}
	if f.mailer.count() != 0 {
		t.Fatal("send under ban must not mail")
	}
}

func TestSendSinglePeerPressureDoesNotBan(t *testing.T) {
	f := newVerificationFixture(t)
	f.abuse.sample = port.AbuseSample{IdentityCount: 20, IdentityPeers: 1, AddressCount: 20, AddressPeers: 1}

	if _, err := f.svc.Send(context.Background(), domain.PurposeRegister, "solo@example.com", "203.0.113.9"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(f.abuse.bans) != 0 {
		t.Fatalf("repeat traffic from one counterpart must not ban, got %v", f.abuse.bans)
	}
	if f.mailer.count() != 1 {
		t.Fatal("send should have gone through")
	}
}

func TestSendGatingFailuresRefuseNeverBypass(t *testing.T) {
	infra := errors.New("redis down")

	cases := map[string]func(f *verificationFixture){
		"cooldown":         func(f *verificationFixture) { f.locks.err = infra },
		"abuse track":      func(f *verificationFixture) { f.abuse.trackErr = infra },
		"existence lookup": func(f *verificationFixture) { f.users.existsErr = infra },
		"code store":       func(f *verificationFixture) { f.codes.storeErr = infra },
	}
	for name, breakIt := range cases {
		f := newVerificationFixture(t)
		breakIt(f)

		result, err := f.svc.Send(context.Background(), domain.PurposeRegister, "u@example.com", "203.0.113.9")
		if err != nil {
			t.Fatalf("%s: gating failure must not surface, got %v", name, err)
		}
		if result != f.svc.genericResult() {
			t.Fatalf("%s: unexpected result %+v", name, result)
		}
		if f.mailer.count() != 0 {
			t.Fatalf("%s: gating failure must refuse the send", name)
		}
	}
}

func TestSendExistsCacheFailureFallsBackToDatabase(t *testing.T) {
	// The exists memo is advisory. Losing it must not lose the send.
	f := newVerificationFixture(t)
	f.exists.getErr = errors.New("redis down")

	result, err := f.svc.Send(context.Background(), domain.PurposeRegister, "u@example.com", "203.0.113.9")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if result != f.svc.genericResult() {
		t.Fatalf("unexpected result %+v", result)
	}
	if !f.codes.has(domain.PurposeRegister, "u@example.com") {
		t.Fatal("expected a stored code despite the broken memo")
	}
	if f.mailer.count() != 1 {
		t.Fatalf("expected one mail, got %d", f.mailer.count())
	}
}

func TestSendMailFailureInvalidatesCode(t *testing.T) {
	f := newVerificationFixture(t)
	f.mailer.sendErr = errors.New("relay refused")

	result, err := f.svc.Send(context.Background(), domain.PurposeRegister, "u@example.com", "203.0.113.9")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if result != f.svc.genericResult() {
		t.Fatalf("unexpected result %+v", result)
	}
	if f.codes.has(domain.PurposeRegister, "u@example.com") {
		t.Fatal("undelivered code must not stay live")
	}
}

func TestSendValidation(t *testing.T) {
	f := newVerificationFixture(t)

	if _, err := f.svc.Send(context.Background(), "unknown", "u@example.com", ""); !errors.Is(err, ErrInvalidPurpose) {
		t.Fatalf("expected ErrInvalidPurpose, got %v", err)
	}
	if _, err := f.svc.Send(context.Background(), domain.PurposeRegister, "not-an-email", ""); !errors.Is(err, ErrInvalidIdentity) {
		t.Fatalf("expected ErrInvalidIdentity, got %v", err)
	}
}

func TestVerifyOutcomes(t *testing.T) {
	f := newVerificationFixture(t)
	pepper := f.svc.cfg.Verification.CodePepper

	digest := security.DigestCode("482913", pepper)
	if err := f.codes.Store(context.Background(), domain.PurposeRegister, "u@example.com", digest, f.svc.cfg.Verification.CodeTTL); err != nil {
		t.Fatalf("seed code: %v", err)
	}

	outcome, err := f.svc.Verify(context.Background(), domain.PurposeRegister, "u@example.com", "000000")
	if err != nil {
		t.Fatalf("verify mismatch: %v", err)
	}
	if outcome.Status != domain.VerifyMismatch {
		t.Fatalf("status = %s, want mismatch", outcome.Status)
	}

	outcome, err = f.svc.Verify(context.Background(), domain.PurposeRegister, "U@Example.com ", "482913")
	if err != nil {
		t.Fatalf("verify match: %v", err)
	}
	if outcome.Status != domain.VerifyOK {
		t.Fatalf("status = %s, want ok", outcome.Status)
	}

	outcome, err = f.svc.Verify(context.Background(), domain.PurposeRegister, "u@example.com", "482913")
	if err != nil {
		t.Fatalf("verify consumed: %v", err)
	}
	if outcome.Status != domain.VerifyAbsent {
		t.Fatalf("status = %s, want absent after consumption", outcome.Status)
	}
}
