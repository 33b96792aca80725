package domain

// VerificationPurpose namespaces verification-code state so registration and
// password-reset traffic for the same identity cannot interfere with each
// other. Codes, cooldowns, abuse counters, and bans are all purpose-scoped.
type VerificationPurpose string

const (
	PurposeRegister VerificationPurpose = "register"
	PurposeReset    VerificationPurpose = "reset"
)

// Valid reports whether the purpose is one of the supported namespaces.
func (p VerificationPurpose) Valid() bool {
	return p == PurposeRegister || p == PurposeReset
}

// VerifyStatus describes the outcome of a code verification attempt.
type VerifyStatus string

const (
	// VerifyOK: the candidate matched; the record was consumed.
	VerifyOK VerifyStatus = "ok"
	// VerifyMismatch: the candidate did not match; attempts remain.
	VerifyMismatch VerifyStatus = "mismatch"
	// VerifyAbsent: no live record exists for the key (never issued, expired,
	// superseded, or already consumed). This is the single outcome the engine
	// is permitted to distinguish from a plain mismatch.
	VerifyAbsent VerifyStatus = "absent"
	// VerifyExhausted: the failure threshold was reached and the record was
	// invalidated; the correct code no longer verifies.
	VerifyExhausted VerifyStatus = "exhausted"
)

// VerifyOutcome is the result of a verification attempt against the code
// store. RemainingAttempts is meaningful only for VerifyMismatch.
type VerifyOutcome struct {
	Status            VerifyStatus
	RemainingAttempts int
}

// AbuseScope identifies which dimension of abuse tracking crossed a
// threshold.
type AbuseScope string

const (
	AbuseScopeIdentity AbuseScope = "identity"
	AbuseScopeAddress  AbuseScope = "address"
)
