package security

const (
	defaultMinPasswordLength = 8
	defaultMinZxcvbnScore    = 2
)

// DefaultPasswordValidator returns the built-in validator enforcing the
// registration password policy.
func DefaultPasswordValidator() *PasswordValidator {
	return NewPasswordValidator(
		MinLengthRule(defaultMinPasswordLength),
		RequireLetterRule(),
		RequireDigitRule(),
		RequirePasswordStrengthRule(defaultMinZxcvbnScore),
	)
}

// NewPasswordValidatorWithContext allows callers to include additional user
// inputs (e.g. email) for strength checking.
func NewPasswordValidatorWithContext(userInputs ...string) *PasswordValidator {
	return NewPasswordValidator(
		MinLengthRule(defaultMinPasswordLength),
		RequireLetterRule(),
		RequireDigitRule(),
		RequirePasswordStrengthRule(defaultMinZxcvbnScore, userInputs...),
	)
}
