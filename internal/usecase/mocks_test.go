package usecase

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rimsurge/identity-service/internal/core/domain"
	"github.com/rimsurge/identity-service/internal/core/port"
	"github.com/rimsurge/identity-service/internal/infra/config"
	"github.com/rimsurge/identity-service/internal/repository"
)

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		App: config.AppSettings{Name: "identity-service", Env: "test"},
		JWT: config.JWTSettings{
			Secret:               "test-secret",
			AccessTokenTTL:       2 * time.Hour,
			RefreshTokenTTL:      720 * time.Hour,
			RefreshTokenShortTTL: 24 * time.Hour,
		},
		CSRF: config.CSRFSettings{
			CookieTTL: 24 * time.Hour,
			MinTTL:    5 * time.Minute,
		},
		Verification: config.VerificationSettings{
			CodeTTL:           5 * time.Minute,
			CooldownTTL:       60 * time.Second,
			MaxVerifyFailures: 6,
			FailureWindow:     10 * time.Minute,
			AbuseThreshold:    6,
			AbuseWindow:       10 * time.Minute,
			BanTTL:            30 * time.Minute,
			ExistsCacheTTL:    time.Minute,
			CodePepper:        "pepper",
		},
	}
}

type memUserRepo struct {
	mu     sync.Mutex
	users  map[int64]domain.User
	nextID int64

	createErr error
	existsErr error
	logins    []int64
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: map[int64]domain.User{}, nextID: 1}
}

func (r *memUserRepo) add(user domain.User) domain.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user.ID == 0 {
		user.ID = r.nextID
		r.nextID++
	}
	r.users[user.ID] = user
	return user
}

func (r *memUserRepo) GetByID(_ context.Context, id int64) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user, ok := r.users[id]; ok {
		copied := user
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == email {
			copied := user
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memUserRepo) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Username == username {
			copied := user
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memUserRepo) EmailExists(_ context.Context, email string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.existsErr != nil {
		return false, r.existsErr
	}
	for _, user := range r.users {
		if user.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (r *memUserRepo) UsernameExists(_ context.Context, username string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (r *memUserRepo) Create(_ context.Context, user domain.User) (int64, error) {
	if r.createErr != nil {
		return 0, r.createErr
	}
	return r.add(user).ID, nil
}

func (r *memUserRepo) RecordLogin(_ context.Context, id int64, _ string, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return repository.ErrNotFound
	}
	r.logins = append(r.logins, id)
	return nil
}

type memRefreshStore struct {
	mu       sync.Mutex
	sessions map[string]domain.RefreshSession

	saveErr error
	now     func() time.Time
}

func newMemRefreshStore() *memRefreshStore {
	return &memRefreshStore{
		sessions: map[string]domain.RefreshSession{},
		now:      time.Now,
	}
}

func (s *memRefreshStore) Save(_ context.Context, session domain.RefreshSession) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.Token] = session
	return nil
}

func (s *memRefreshStore) Resolve(_ context.Context, token string) (*domain.RefreshSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[token]
	if !ok || !session.ExpiresAt.After(s.now()) {
		return nil, repository.ErrNotFound
	}
	copied := session
	return &copied, nil
}

func (s *memRefreshStore) Revoke(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}

func (s *memRefreshStore) TTL(_ context.Context, token string) (time.Duration, error) {
	session, err := s.Resolve(context.Background(), token)
	if err != nil {
		return 0, err
	}
	return session.Remaining(s.now()), nil
}

type codeRecord struct {
	digest    string
	remaining int
}

type memCodeStore struct {
	mu    sync.Mutex
	codes map[string]*codeRecord

	storeErr  error
	verifyErr error
	deleted   []string
}

func newMemCodeStore() *memCodeStore {
	return &memCodeStore{codes: map[string]*codeRecord{}}
}

func codeKey(purpose domain.VerificationPurpose, identity string) string {
	return string(purpose) + ":" + identity
}

func (s *memCodeStore) Store(_ context.Context, purpose domain.VerificationPurpose, identity, digest string, _ time.Duration) error {
	if s.storeErr != nil {
		return s.storeErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[codeKey(purpose, identity)] = &codeRecord{digest: digest, remaining: -1}
	return nil
}

func (s *memCodeStore) Verify(_ context.Context, purpose domain.VerificationPurpose, identity, digest string, maxFailures int, _ time.Duration) (domain.VerifyOutcome, error) {
	if s.verifyErr != nil {
		return domain.VerifyOutcome{}, s.verifyErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := codeKey(purpose, identity)
	record, ok := s.codes[key]
	if !ok {
		return domain.VerifyOutcome{Status: domain.VerifyAbsent}, nil
	}
	if record.digest == digest {
		delete(s.codes, key)
		return domain.VerifyOutcome{Status: domain.VerifyOK}, nil
	}
	if record.remaining < 0 {
		record.remaining = maxFailures
	}
	record.remaining--
	if record.remaining <= 0 {
		delete(s.codes, key)
		return domain.VerifyOutcome{Status: domain.VerifyExhausted}, nil
	}
	return domain.VerifyOutcome{Status: domain.VerifyMismatch, RemainingAttempts: record.remaining}, nil
}

func (s *memCodeStore) Delete(_ context.Context, purpose domain.VerificationPurpose, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := codeKey(purpose, identity)
	delete(s.codes, key)
	s.deleted = append(s.deleted, key)
	return nil
}

func (s *memCodeStore) has(purpose domain.VerificationPurpose, identity string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.codes[codeKey(purpose, identity)]
	return ok
}

type memCooldown struct {
	refuse bool
	err    error
	calls  int
}

func (c *memCooldown) AcquirePair(context.Context, domain.VerificationPurpose, string, string, time.Duration) (bool, error) {
	c.calls++
	if c.err != nil {
		return false, c.err
	}
	return !c.refuse, nil
}

type memAbuse struct {
	sample   port.AbuseSample
	trackErr error

	bans map[string]bool
}

func newMemAbuse() *memAbuse {
	return &memAbuse{bans: map[string]bool{}}
}

func banKey(purpose domain.VerificationPurpose, scope domain.AbuseScope, value string) string {
	return string(purpose) + ":" + string(scope) + ":" + value
}

func (a *memAbuse) Track(context.Context, domain.VerificationPurpose, string, string, time.Duration) (port.AbuseSample, error) {
	if a.trackErr != nil {
		return port.AbuseSample{}, a.trackErr
	}
	return a.sample, nil
}

func (a *memAbuse) Ban(_ context.Context, purpose domain.VerificationPurpose, scope domain.AbuseScope, value string, _ time.Duration) error {
	a.bans[banKey(purpose, scope, value)] = true
	return nil
}

func (a *memAbuse) IsBanned(_ context.Context, purpose domain.VerificationPurpose, scope domain.AbuseScope, value string) (bool, error) {
	return a.bans[banKey(purpose, scope, value)], nil
}

type memExistsCache struct {
	mu      sync.Mutex
	entries map[string]bool
	getErr  error
}

func newMemExistsCache() *memExistsCache {
	return &memExistsCache{entries: map[string]bool{}}
}

func (c *memExistsCache) Get(_ context.Context, identity string) (bool, bool, error) {
	if c.getErr != nil {
		return false, false, c.getErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	exists, found := c.entries[identity]
	return exists, found, nil
}

func (c *memExistsCache) Set(_ context.Context, identity string, exists bool, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[identity] = exists
	return nil
}

type sentMail struct {
	To      string
	Subject string
	Body    string
}

type recordMailer struct {
	mu      sync.Mutex
	sent    []sentMail
	sendErr error
}

func (m *recordMailer) Send(_ context.Context, to, subject, body string) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

func (m *recordMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type recordPublisher struct {
	mu         sync.Mutex
	logins     []domain.UserLoggedInEvent
	registered []domain.UserRegisteredEvent
	codesSent  []domain.VerificationCodeSentEvent
	bans       []domain.VerificationBanEscalatedEvent
}

func (p *recordPublisher) PublishUserLoggedIn(_ context.Context, event domain.UserLoggedInEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logins = append(p.logins, event)
	return nil
}

func (p *recordPublisher) PublishUserRegistered(_ context.Context, event domain.UserRegisteredEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registered = append(p.registered, event)
	return nil
}

func (p *recordPublisher) PublishVerificationCodeSent(_ context.Context, event domain.VerificationCodeSentEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.codesSent = append(p.codesSent, event)
	return nil
}

func (p *recordPublisher) PublishVerificationBanEscalated(_ context.Context, event domain.VerificationBanEscalatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bans = append(p.bans, event)
	return nil
}

var (
	_ port.UserRepository        = (*memUserRepo)(nil)
	_ port.RefreshTokenStore     = (*memRefreshStore)(nil)
	_ port.VerificationCodeStore = (*memCodeStore)(nil)
	_ port.CooldownStore         = (*memCooldown)(nil)
	_ port.AbuseTracker          = (*memAbuse)(nil)
	_ port.ExistsCache           = (*memExistsCache)(nil)
	_ port.Mailer                = (*recordMailer)(nil)
	_ port.EventPublisher        = (*recordPublisher)(nil)
)

func testLogger() *zap.Logger {
	return zap.NewNop()
}
