package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"jobdesk-auth/internal/apperr"
	"jobdesk-auth/internal/audit"
	"jobdesk-auth/internal/config"
	"jobdesk-auth/internal/contact"
	"jobdesk-auth/internal/hashing"
	"jobdesk-auth/internal/model"
)

// In-memory store and repository fakes. They honor the same atomicity
// contracts as the Redis and Scylla implementations, guarded by a mutex.

type fakeOTPStore struct {
	mu      sync.Mutex
	records map[string]*model.OTPRecord
	resends map[string]int
}

func newFakeOTPStore() *fakeOTPStore {
	return &fakeOTPStore{
		records: make(map[string]*model.OTPRecord),
		resends: make(map[string]int),
	}
}

func (s *fakeOTPStore) UpsertActiveCode(ctx context.Context, rec *model.OTPRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *rec
	s.records[rec.Contact.Key()] = &clone
	return nil
}

func (s *fakeOTPStore) GetActiveCode(ctx context.Context, c model.Contact) (*model.OTPRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[c.Key()]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "no active code")
	}
	clone := *rec
	return &clone, nil
}

func (s *fakeOTPStore) RecordAttempt(ctx context.Context, c model.Contact) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[c.Key()]
	if !ok {
		return 0, apperr.New(apperr.KindNotFound, "no active code")
	}
	rec.AttemptCount++
	return rec.AttemptCount, nil
}

func (s *fakeOTPStore) MarkUsed(ctx context.Context, c model.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[c.Key()]
	if !ok {
		return apperr.New(apperr.KindNotFound, "no active code")
	}
	rec.IsUsed = true
	return nil
}

func (s *fakeOTPStore) IncrementResendCount(ctx context.Context, c model.Contact, window time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resends[c.Key()]++
	return s.resends[c.Key()], nil
}

type fakeBlacklistStore struct {
	mu      sync.Mutex
	entries map[string]*model.BlacklistEntry
}

func newFakeBlacklistStore() *fakeBlacklistStore {
	return &fakeBlacklistStore{entries: make(map[string]*model.BlacklistEntry)}
}

func (s *fakeBlacklistStore) IsBlacklisted(ctx context.Context, c model.Contact) (*model.BlacklistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[c.Key()]
	if !ok {
		return nil, nil
	}
	if entry.ExpiresAt != nil && time.Now().After(*entry.ExpiresAt) {
		delete(s.entries, c.Key())
		return nil, nil
	}
	clone := *entry
	return &clone, nil
}

func (s *fakeBlacklistStore) UpsertBan(ctx context.Context, c model.Contact, reason model.BlacklistReason, cooldown time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := &model.BlacklistEntry{
		Contact:       c,
		Reason:        reason,
		BlacklistedAt: time.Now().UTC(),
	}
	if cooldown > 0 {
		expires := time.Now().UTC().Add(cooldown)
		entry.ExpiresAt = &expires
	}
	s.entries[c.Key()] = entry
	return nil
}

func (s *fakeBlacklistStore) ClearBan(ctx context.Context, c model.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, c.Key())
	return nil
}

type fakeRateLimitStore struct {
	mu     sync.Mutex
	counts map[string]int
}

func newFakeRateLimitStore() *fakeRateLimitStore {
	return &fakeRateLimitStore{counts: make(map[string]int)}
}

func (s *fakeRateLimitStore) IncrementSendCounter(ctx context.Context, c model.Contact, window time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[c.Key()]++
	return s.counts[c.Key()], nil
}

func (s *fakeRateLimitStore) SendRetryAfter(ctx context.Context, c model.Contact) (time.Duration, error) {
	return 42 * time.Second, nil
}

type fakeUserRepo struct {
	mu        sync.Mutex
	users     map[string]*model.User
	byContact map[string]string
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		users:     make(map[string]*model.User),
		byContact: make(map[string]string),
	}
}

func (r *fakeUserRepo) CreateUser(ctx context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user.UserID == "" {
		user.UserID = uuid.New().String()
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	clone := *user
	r.users[user.UserID] = &clone
	if user.Email != "" {
		r.byContact[model.Contact{Value: user.Email, Kind: model.ContactEmail}.Key()] = user.UserID
	}
	if user.Phone != "" {
		r.byContact[model.Contact{Value: user.Phone, Kind: model.ContactPhone}.Key()] = user.UserID
	}
	return nil
}

func (r *fakeUserRepo) GetUserByID(ctx context.Context, userID string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[userID]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "user not found")
	}
	clone := *user
	return &clone, nil
}

func (r *fakeUserRepo) GetUserByContact(ctx context.Context, c model.Contact) (*model.User, error) {
	r.mu.Lock()
	userID, ok := r.byContact[c.Key()]
	r.mu.Unlock()
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "user not found")
	}
	return r.GetUserByID(ctx, userID)
}

func (r *fakeUserRepo) UpdateVerification(ctx context.Context, userID string, isVerified bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[userID]
	if !ok {
		return apperr.New(apperr.KindNotFound, "user not found")
	}
	user.IsVerified = isVerified
	return nil
}

func (r *fakeUserRepo) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[userID]
	if !ok {
		return apperr.New(apperr.KindNotFound, "user not found")
	}
	user.LastLogin = at
	return nil
}

func (r *fakeUserRepo) HealthCheck(ctx context.Context) error {
	return nil
}

type fakeTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]*model.RefreshToken
}

func newFakeTokenRepo() *fakeTokenRepo {
	return &fakeTokenRepo{tokens: make(map[string]*model.RefreshToken)}
}

func (r *fakeTokenRepo) CreateToken(ctx context.Context, token *model.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *token
	r.tokens[token.TokenID] = &clone
	return nil
}

func (r *fakeTokenRepo) GetToken(ctx context.Context, tokenID string) (*model.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	token, ok := r.tokens[tokenID]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "refresh token not found")
	}
	clone := *token
	return &clone, nil
}

func (r *fakeTokenRepo) RevokeToken(ctx context.Context, tokenID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	token, ok := r.tokens[tokenID]
	if !ok {
		return apperr.New(apperr.KindNotFound, "refresh token not found")
	}
	token.Revoked = true
	return nil
}

func (r *fakeTokenRepo) RevokeAllForUser(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, token := range r.tokens {
		if token.UserID == userID {
			token.Revoked = true
		}
	}
	return nil
}

type fakeProvider struct {
	mu    sync.Mutex
	sends []fakeSend
	fail  bool
}

type fakeSend struct {
	contact model.Contact
	code    string
}

func (p *fakeProvider) Send(ctx context.Context, c model.Contact, code string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return "", apperr.New(apperr.KindDeliveryFailure, "provider down")
	}
	p.sends = append(p.sends, fakeSend{contact: c, code: code})
	return "msg-fake", nil
}

func (p *fakeProvider) lastCode() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.sends) == 0 {
		return ""
	}
	return p.sends[len(p.sends)-1].code
}

func (p *fakeProvider) sendCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sends)
}

func (p *fakeProvider) allCodes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	codes := make([]string, len(p.sends))
	for i, s := range p.sends {
		codes[i] = s.code
	}
	return codes
}

// otpEnv bundles an OTPService with its fakes for assertions

type otpEnv struct {
	svc       *OTPService
	otps      *fakeOTPStore
	blacklist *fakeBlacklistStore
	rates     *fakeRateLimitStore
	users     *fakeUserRepo
	provider  *fakeProvider
	hasher    *hashing.Hasher
	cfg       config.OTPConfig
}

func testOTPConfig() config.OTPConfig {
	return config.OTPConfig{
		CodeTTL:            10 * time.Minute,
		AttemptCeiling:     3,
		ResendCeiling:      5,
		ResendWindow:       30 * time.Minute,
		SendLimit:          3,
		SendWindow:         10 * time.Minute,
		AttemptCooldown:    time.Minute,
		ResendCooldown:     5 * time.Minute,
		DefaultCountryCode: "1",
	}
}

func testHasher() *hashing.Hasher {
	return hashing.NewHasher(config.HashingConfig{
		Argon2MemoryCost:   8 * 1024,
		Argon2TimeCost:     1,
		Argon2Parallelism:  1,
		PepperRotationDays: 30,
	})
}

func newOTPEnv(cfg config.OTPConfig) *otpEnv {
	env := &otpEnv{
		otps:      newFakeOTPStore(),
		blacklist: newFakeBlacklistStore(),
		rates:     newFakeRateLimitStore(),
		users:     newFakeUserRepo(),
		provider:  &fakeProvider{},
		hasher:    testHasher(),
		cfg:       cfg,
	}

	env.svc = NewOTPService(
		env.otps,
		env.blacklist,
		env.rates,
		env.users,
		env.hasher,
		env.provider,
		contact.NewValidator(cfg.DefaultCountryCode),
		audit.NewPublisher(nil, nil),
		cfg,
	)

	return env
}
