package domain

// UserStatus enumerates possible account states in the shared user table.
type UserStatus string

const (
	UserStatusNormal UserStatus = "normal"
	UserStatusLocked UserStatus = "locked"
	UserStatusHidden UserStatus = "hidden"
)

// Password hashing algorithms recorded on the user row. Legacy rows carry the
// inherited nested-MD5 scheme; accounts created by this service use Argon2id.
const (
	PasswordAlgoLegacyMD5 = "legacy-md5"
	PasswordAlgoArgon2id  = "argon2id"
)

// User mirrors the persisted representation in the shared user table. The
// table is owned by the storefront admin system; this service reads it, inserts
// new accounts, and updates login audit fields, but never issues DDL.
type User struct {
	ID           int64
	Username     string
	Nickname     string
	Email        string
	Mobile       *string
	PasswordHash string
	Salt         string
	PasswordAlgo string
	Status       UserStatus
	Avatar       string
	Platform     string
	CreateTime   int64
	UpdateTime   int64
	LoginTime    *int64
	LoginIP      *string
	LoginFailure int
}

// Active reports whether the account may authenticate.
func (u User) Active() bool {
	return u.Status == UserStatusNormal
}
