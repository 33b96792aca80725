package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rimsurge/identity-service/internal/core/domain"
	"github.com/rimsurge/identity-service/internal/infra/security"
	"github.com/rimsurge/identity-service/internal/repository"
)

type registrationFixture struct {
	svc    *RegistrationService
	users  *memUserRepo
	codes  *memCodeStore
	events *recordPublisher
	auth   *authFixture
}

func newRegistrationFixture(t *testing.T) *registrationFixture {
	t.Helper()

	cfg := testConfig()
	auth := newAuthFixture(t)

	codes := newMemCodeStore()
	verification := NewVerificationService(cfg, codes, &memCooldown{}, newMemAbuse(), newMemExistsCache(), auth.users, &recordMailer{}, auth.events, testLogger())

	svc := NewRegistrationService(cfg, auth.users, verification, auth.svc, auth.events, testLogger())
	return &registrationFixture{svc: svc, users: auth.users, codes: codes, events: auth.events, auth: auth}
}

func (f *registrationFixture) seedCode(t *testing.T, email, code string) {
	t.Helper()
	digest := security.DigestCode(code, testConfig().Verification.CodePepper)
	if err := f.codes.Store(context.Background(), domain.PurposeRegister, email, digest, 0); err != nil {
		t.Fatalf("seed code: %v", err)
	}
}

func TestRegisterCreatesArgon2Account(t *testing.T) {
	f := newRegistrationFixture(t)
	f.seedCode(t, "carol@example.com", "271828")

	bundle, err := f.svc.Register(context.Background(), "Carol@Example.com", "plausible-h0rse", "271828", domain.DeviceTypeWeb, "203.0.113.9")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if bundle.User.Username != "carol" {
		t.Fatalf("username = %q, want email local part", bundle.User.Username)
	}
	if bundle.AccessToken == "" || bundle.RefreshToken == "" || bundle.CSRFToken == "" {
		t.Fatal("registration must log the user in")
	}

	stored, err := f.users.GetByEmail(context.Background(), "carol@example.com")
	if err != nil {
		t.Fatalf("lookup created user: %v", err)
	}
	if stored.PasswordAlgo != domain.PasswordAlgoArgon2id {
		t.Fatalf("algo = %q, want argon2id", stored.PasswordAlgo)
	}
	ok, err := security.VerifyPassword("plausible-h0rse", stored.PasswordHash)
	if err != nil || !ok {
		t.Fatalf("stored hash does not verify: ok=%v err=%v", ok, err)
	}
	if stored.Status != domain.UserStatusNormal {
		t.Fatalf("status = %q", stored.Status)
	}

	if len(f.events.registered) != 1 {
		t.Fatalf("expected one registration event, got %d", len(f.events.registered))
	}
	if f.events.registered[0].MaskedEmail == "carol@example.com" {
		t.Fatal("event must carry a masked email")
	}

	// The code is consumed; replaying the registration needs a fresh one.
	if _, err := f.svc.Register(context.Background(), "carol@example.com", "plausible-h0rse", "271828", "", ""); !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("replayed code should be absent, got %v", err)
	}
}

func TestRegisterUsernameCollisionGetsSuffix(t *testing.T) {
	f := newRegistrationFixture(t)
	f.users.add(domain.User{Username: "dave", Email: "dave@other.example", Status: domain.UserStatusNormal})
	f.seedCode(t, "dave@example.com", "314159")

	bundle, err := f.svc.Register(context.Background(), "dave@example.com", "plausible-h0rse", "314159", "", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !strings.HasPrefix(bundle.User.Username, "dave") || bundle.User.Username == "dave" {
		t.Fatalf("username = %q, want dave plus a suffix", bundle.User.Username)
	}
	if len(bundle.User.Username) != len("dave")+8 {
		t.Fatalf("suffix length unexpected in %q", bundle.User.Username)
	}
}

func TestRegisterCodeGate(t *testing.T) {
	f := newRegistrationFixture(t)
	f.seedCode(t, "erin@example.com", "660649")

	if _, err := f.svc.Register(context.Background(), "erin@example.com", "plausible-h0rse", "000000", "", ""); !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("wrong code: expected ErrCodeInvalid, got %v", err)
	}
	if _, err := f.svc.Register(context.Background(), "noone@example.com", "plausible-h0rse", "660649", "", ""); !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("never-issued code: expected ErrCodeExpired, got %v", err)
	}
}

func TestRegisterPasswordPolicy(t *testing.T) {
	f := newRegistrationFixture(t)

	cases := map[string]string{
		"too short":       "a1",
		"digits only":     "123456789",
		"letters only":    "abcdefghij",
		"contains email":  "erin@example.com1",
		"common password": "password1",
	}
	for name, password := range cases {
		f.seedCode(t, "erin@example.com", "660649")

		_, err := f.svc.Register(context.Background(), "erin@example.com", password, "660649", "", "")
		var policyErr *PasswordPolicyError
		if !errors.As(err, &policyErr) {
			t.Fatalf("%s: expected PasswordPolicyError, got %v", name, err)
		}
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := newRegistrationFixture(t)
	f.seedCode(t, "frank@example.com", "112358")
	f.users.createErr = repository.ErrDuplicate

	if _, err := f.svc.Register(context.Background(), "frank@example.com", "plausible-h0rse", "112358", "", ""); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}
