package model

import (
	"context"
	"time"
)

// -------------------- CONTACT --------------------

// ContactKind discriminates the two supported login identifiers
type ContactKind string

const (
	ContactEmail ContactKind = "email"
	ContactPhone ContactKind = "phone"
)

// Valid reports whether the kind is one of the supported values
func (k ContactKind) Valid() bool {
	return k == ContactEmail || k == ContactPhone
}

// Contact is a normalized login identifier. Contacts are not persisted as
// entities; they are the natural key joining OTP and blacklist records.
type Contact struct {
	Value string      `json:"value"`
	Kind  ContactKind `json:"kind"`
}

// Key returns the storage key fragment for this contact, e.g. "email:a@b.c"
func (c Contact) Key() string {
	return string(c.Kind) + ":" + c.Value
}

// -------------------- OTP RECORD --------------------

// OTPRecord is the single outstanding (or most recent) code for a contact.
// A new send replaces the prior record; it is never appended.
type OTPRecord struct {
	Contact      Contact   `json:"contact"`
	CodeHash     string    `json:"code_hash"` // argon2id, never the raw code
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	IsUsed       bool      `json:"is_used"`
	AttemptCount int       `json:"attempt_count"`
	ResendCount  int       `json:"resend_count"`
	LastResendAt time.Time `json:"last_resend_at"`
}

// Expired reports whether the record is past its expiry at the given instant
func (r *OTPRecord) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// -------------------- BLACKLIST --------------------

type BlacklistReason string

const (
	BlacklistMaxAttempts BlacklistReason = "max_attempts"
	BlacklistMaxResends  BlacklistReason = "max_resends"
	BlacklistManual      BlacklistReason = "manual"
)

// BlacklistEntry bars a contact from sending and verifying codes.
// ExpiresAt is nil for manual bans, which require explicit removal.
type BlacklistEntry struct {
	Contact       Contact         `json:"contact"`
	Reason        BlacklistReason `json:"reason"`
	BlacklistedAt time.Time       `json:"blacklisted_at"`
	ExpiresAt     *time.Time      `json:"expires_at,omitempty"`
}

// -------------------- USER --------------------

// User is the minimal identity the auth core reads and writes. Profile data
// lives in the job-board's profile service.
type User struct {
	UserID     string    `json:"id"`
	UserBucket int       `json:"-"`
	Email      string    `json:"email,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	IsVerified bool      `json:"isVerified"`
	LastLogin  time.Time `json:"lastLogin"`
	CreatedAt  time.Time `json:"-"`
	UpdatedAt  time.Time `json:"-"`
}

// ContactFor returns the user's identifier of the given kind, or ""
func (u *User) ContactFor(kind ContactKind) string {
	if kind == ContactEmail {
		return u.Email
	}
	return u.Phone
}

// -------------------- REFRESH TOKEN --------------------

// RefreshToken is the persisted half of a long-lived session credential.
// Only the SHA-256 of the secret is stored; rotation creates new records.
type RefreshToken struct {
	TokenID    string    `json:"token_id"`
	UserID     string    `json:"user_id"`
	TokenHash  string    `json:"-"`
	DeviceInfo string    `json:"device_info"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	Revoked    bool      `json:"revoked"`
}

// -------------------- REPOSITORY INTERFACES --------------------

// UserRepository defines durable user storage operations
type UserRepository interface {
	CreateUser(ctx context.Context, user *User) error
	GetUserByID(ctx context.Context, userID string) (*User, error)
	GetUserByContact(ctx context.Context, contact Contact) (*User, error)
	UpdateVerification(ctx context.Context, userID string, isVerified bool) error
	UpdateLastLogin(ctx context.Context, userID string, at time.Time) error
	HealthCheck(ctx context.Context) error
}

// RefreshTokenRepository defines durable refresh-token storage operations
type RefreshTokenRepository interface {
	CreateToken(ctx context.Context, token *RefreshToken) error
	GetToken(ctx context.Context, tokenID string) (*RefreshToken, error)
	RevokeToken(ctx context.Context, tokenID string) error
	RevokeAllForUser(ctx context.Context, userID string) error
}

// -------------------- STORE INTERFACES --------------------

// OTPStore owns the live OTP record per contact. All mutations are atomic at
// the storage layer; concurrent sends race safely onto a latest-wins upsert.
type OTPStore interface {
	UpsertActiveCode(ctx context.Context, rec *OTPRecord) error
	GetActiveCode(ctx context.Context, contact Contact) (*OTPRecord, error)
	// RecordAttempt atomically increments the failed-attempt counter and
	// returns the new value. The increment commits even when the enclosing
	// verification reports failure.
	RecordAttempt(ctx context.Context, contact Contact) (int, error)
	MarkUsed(ctx context.Context, contact Contact) error
	// IncrementResendCount tracks regenerate-and-resend operations over a
	// rolling window independent of individual record lifetimes.
	IncrementResendCount(ctx context.Context, contact Contact, window time.Duration) (int, error)
}

// BlacklistStore records contacts barred from sending/verifying codes
type BlacklistStore interface {
	// IsBlacklisted returns the live entry, or nil when the contact is clear
	IsBlacklisted(ctx context.Context, contact Contact) (*BlacklistEntry, error)
	UpsertBan(ctx context.Context, contact Contact, reason BlacklistReason, cooldown time.Duration) error
	ClearBan(ctx context.Context, contact Contact) error
}

// RateLimitStore throttles sends per contact with atomic windowed counters
type RateLimitStore interface {
	// IncrementSendCounter bumps the windowed counter and returns the new
	// count; callers compare against the ceiling after the increment so two
	// concurrent sends can never both pass the limit.
	IncrementSendCounter(ctx context.Context, contact Contact, window time.Duration) (int, error)
	SendRetryAfter(ctx context.Context, contact Contact) (time.Duration, error)
}
