package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"jobdesk-auth/internal/apperr"
	"jobdesk-auth/internal/audit"
	"jobdesk-auth/internal/config"
	"jobdesk-auth/internal/contact"
	"jobdesk-auth/internal/hashing"
	"jobdesk-auth/internal/model"
	"jobdesk-auth/internal/provider"
	"jobdesk-auth/internal/util"
)

// OTPService drives the one-time code state machine: issuing codes,
// verifying them, and enforcing rate limits and blacklists per contact.
type OTPService struct {
	otps      model.OTPStore
	blacklist model.BlacklistStore
	rates     model.RateLimitStore
	users     model.UserRepository
	hasher    *hashing.Hasher
	delivery  provider.Provider
	validator *contact.Validator
	audit     *audit.Publisher
	cfg       config.OTPConfig
}

func NewOTPService(
	otps model.OTPStore,
	blacklist model.BlacklistStore,
	rates model.RateLimitStore,
	users model.UserRepository,
	hasher *hashing.Hasher,
	delivery provider.Provider,
	validator *contact.Validator,
	auditPub *audit.Publisher,
	cfg config.OTPConfig,
) *OTPService {
	return &OTPService{
		otps:      otps,
		blacklist: blacklist,
		rates:     rates,
		users:     users,
		hasher:    hasher,
		delivery:  delivery,
		validator: validator,
		audit:     auditPub,
		cfg:       cfg,
	}
}

// SendResult reports a successful code issue
type SendResult struct {
	UserID      string
	Contact     model.Contact
	ExpiresAt   time.Time
	ResendCount int
}

// SendCode validates the contact, enforces the blacklist and send limits,
// then issues a fresh code and hands it to the delivery provider. A new
// code always replaces any outstanding one for the same contact.
func (s *OTPService) SendCode(ctx context.Context, rawValue string, kind model.ContactKind) (*SendResult, error) {
	c, err := s.validator.Normalize(rawValue, kind)
	if err != nil {
		return nil, err
	}

	if err := s.checkBlacklist(ctx, c); err != nil {
		return nil, err
	}

	// Increment before comparing so two racing sends cannot both pass
	count, err := s.rates.IncrementSendCounter(ctx, c, s.cfg.SendWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to apply send limit: %w", err)
	}
	if count > s.cfg.SendLimit {
		retryAfter, raErr := s.rates.SendRetryAfter(ctx, c)
		if raErr != nil {
			retryAfter = s.cfg.SendWindow
		}
		return nil, &apperr.Error{
			Kind:       apperr.KindRateLimited,
			Message:    "too many codes requested",
			RetryAfter: retryAfter,
		}
	}

	resends, err := s.otps.IncrementResendCount(ctx, c, s.cfg.ResendWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to track resend count: %w", err)
	}
	if resends > s.cfg.ResendCeiling {
		return nil, s.ban(ctx, c, model.BlacklistMaxResends, s.cfg.ResendCooldown)
	}

	code, err := generateCode()
	if err != nil {
		return nil, fmt.Errorf("failed to generate code: %w", err)
	}

	hashed, err := s.hasher.HashOTP(code)
	if err != nil {
		return nil, fmt.Errorf("failed to hash code: %w", err)
	}

	now := time.Now().UTC()
	rec := &model.OTPRecord{
		Contact:      c,
		CodeHash:     hashed.Encode(),
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.cfg.CodeTTL),
		ResendCount:  resends,
		LastResendAt: now,
	}

	if err := s.otps.UpsertActiveCode(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to store code: %w", err)
	}

	user, err := s.findOrCreateUser(ctx, c)
	if err != nil {
		return nil, err
	}

	messageID, err := s.delivery.Send(ctx, c, code)
	if err != nil {
		util.Error("Code delivery failed",
			zap.String("contact_kind", string(c.Kind)),
			zap.Error(err))
		if apperr.KindOf(err) == apperr.KindDeliveryFailure {
			return nil, err
		}
		return nil, apperr.Wrap(apperr.KindDeliveryFailure, "code delivery failed", err)
	}

	s.audit.Emit(ctx, audit.Event{
		Type:       audit.EventOTPSent,
		UserID:     user.UserID,
		ContactKey: c.Key(),
		MessageID:  messageID,
	})

	util.Info("OTP issued",
		zap.String("user_id", user.UserID),
		zap.String("contact_kind", string(c.Kind)),
		zap.Int("resend_count", resends))

	return &SendResult{
		UserID:      user.UserID,
		Contact:     c,
		ExpiresAt:   rec.ExpiresAt,
		ResendCount: resends,
	}, nil
}

// VerifyCode checks a submitted code against the contact's active record.
// The failed-attempt counter commits even when verification fails; hitting
// the ceiling blacklists the contact for the attempt cooldown.
func (s *OTPService) VerifyCode(ctx context.Context, userID, rawValue string, kind model.ContactKind, code string) (*model.User, error) {
	user, c, err := s.resolveTarget(ctx, userID, rawValue, kind)
	if err != nil {
		return nil, err
	}

	if err := s.checkBlacklist(ctx, c); err != nil {
		return nil, err
	}

	rec, err := s.otps.GetActiveCode(ctx, c)
	if err != nil {
		// A missing record is indistinguishable from an expired one: the
		// store may have dropped it at TTL. Clients see the same failure.
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, apperr.New(apperr.KindInvalidCode, "invalid or expired code")
		}
		return nil, fmt.Errorf("failed to load code: %w", err)
	}

	now := time.Now().UTC()
	if rec.Expired(now) {
		return nil, &apperr.Error{
			Kind:      apperr.KindExpired,
			Message:   "code has expired",
			ExpiresAt: &rec.ExpiresAt,
		}
	}
	if rec.IsUsed {
		return nil, apperr.New(apperr.KindAlreadyUsed, "code has already been used")
	}

	hashed, err := hashing.Decode(rec.CodeHash)
	if err != nil {
		return nil, fmt.Errorf("stored code hash is unreadable: %w", err)
	}

	ok, err := s.hasher.VerifyOTP(code, hashed)
	if err != nil {
		return nil, fmt.Errorf("failed to verify code: %w", err)
	}

	if !ok {
		return nil, s.recordFailedAttempt(ctx, c, user)
	}

	if err := s.otps.MarkUsed(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to consume code: %w", err)
	}

	if !user.IsVerified {
		if err := s.users.UpdateVerification(ctx, user.UserID, true); err != nil {
			return nil, err
		}
		user.IsVerified = true
	}

	if err := s.users.UpdateLastLogin(ctx, user.UserID, now); err != nil {
		util.Warn("Failed to update last login",
			zap.String("user_id", user.UserID),
			zap.Error(err))
	}
	user.LastLogin = now

	s.audit.Emit(ctx, audit.Event{
		Type:       audit.EventOTPVerified,
		UserID:     user.UserID,
		ContactKey: c.Key(),
	})

	util.Info("OTP verified",
		zap.String("user_id", user.UserID),
		zap.String("contact_kind", string(c.Kind)))

	return user, nil
}

// Unban lifts a blacklist entry for a contact, whatever its reason
func (s *OTPService) Unban(ctx context.Context, rawValue string, kind model.ContactKind) error {
	c, err := s.validator.Normalize(rawValue, kind)
	if err != nil {
		return err
	}

	if err := s.blacklist.ClearBan(ctx, c); err != nil {
		return fmt.Errorf("failed to clear ban: %w", err)
	}

	s.audit.Emit(ctx, audit.Event{
		Type:       audit.EventUnblacklisted,
		ContactKey: c.Key(),
	})

	util.Info("Blacklist entry cleared", zap.String("contact_kind", string(kind)))
	return nil
}

// Ban blacklists a contact until explicitly removed
func (s *OTPService) Ban(ctx context.Context, rawValue string, kind model.ContactKind) error {
	c, err := s.validator.Normalize(rawValue, kind)
	if err != nil {
		return err
	}

	err = s.ban(ctx, c, model.BlacklistManual, 0)
	if apperr.KindOf(err) == apperr.KindBlacklisted {
		return nil
	}
	return err
}

func (s *OTPService) checkBlacklist(ctx context.Context, c model.Contact) error {
	entry, err := s.blacklist.IsBlacklisted(ctx, c)
	if err != nil {
		return fmt.Errorf("failed to check blacklist: %w", err)
	}
	if entry == nil {
		return nil
	}

	appErr := &apperr.Error{
		Kind:    apperr.KindBlacklisted,
		Message: "contact is blacklisted",
	}
	if entry.ExpiresAt != nil {
		appErr.RetryAfter = time.Until(*entry.ExpiresAt)
		appErr.ExpiresAt = entry.ExpiresAt
	}
	return appErr
}

// ban records the blacklist entry and returns the corresponding error
func (s *OTPService) ban(ctx context.Context, c model.Contact, reason model.BlacklistReason, cooldown time.Duration) error {
	if err := s.blacklist.UpsertBan(ctx, c, reason, cooldown); err != nil {
		return fmt.Errorf("failed to blacklist contact: %w", err)
	}

	s.audit.Emit(ctx, audit.Event{
		Type:       audit.EventBlacklisted,
		ContactKey: c.Key(),
		Reason:     string(reason),
	})

	util.Warn("Contact blacklisted",
		zap.String("contact_kind", string(c.Kind)),
		zap.String("reason", string(reason)),
		zap.Duration("cooldown", cooldown))

	appErr := &apperr.Error{
		Kind:    apperr.KindBlacklisted,
		Message: "contact is blacklisted",
	}
	if cooldown > 0 {
		appErr.RetryAfter = cooldown
	}
	return appErr
}

func (s *OTPService) recordFailedAttempt(ctx context.Context, c model.Contact, user *model.User) error {
	attempts, err := s.otps.RecordAttempt(ctx, c)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return apperr.New(apperr.KindInvalidCode, "invalid or expired code")
		}
		return fmt.Errorf("failed to record attempt: %w", err)
	}

	s.audit.Emit(ctx, audit.Event{
		Type:       audit.EventOTPFailed,
		UserID:     user.UserID,
		ContactKey: c.Key(),
	})

	if attempts >= s.cfg.AttemptCeiling {
		return s.ban(ctx, c, model.BlacklistMaxAttempts, s.cfg.AttemptCooldown)
	}

	return &apperr.Error{
		Kind:      apperr.KindInvalidCode,
		Message:   "incorrect code",
		Remaining: s.cfg.AttemptCeiling - attempts,
	}
}

// resolveTarget locates the user and contact for a verify call, accepting
// either a user ID or a raw contact value
func (s *OTPService) resolveTarget(ctx context.Context, userID, rawValue string, kind model.ContactKind) (*model.User, model.Contact, error) {
	if userID != "" {
		user, err := s.users.GetUserByID(ctx, userID)
		if err != nil {
			return nil, model.Contact{}, err
		}

		value := user.ContactFor(kind)
		if value == "" {
			return nil, model.Contact{}, apperr.New(apperr.KindValidation,
				"user has no "+string(kind)+" contact")
		}
		return user, model.Contact{Value: value, Kind: kind}, nil
	}

	c, err := s.validator.Normalize(rawValue, kind)
	if err != nil {
		return nil, model.Contact{}, err
	}

	user, err := s.users.GetUserByContact(ctx, c)
	if err != nil {
		return nil, model.Contact{}, err
	}
	return user, c, nil
}

func (s *OTPService) findOrCreateUser(ctx context.Context, c model.Contact) (*model.User, error) {
	user, err := s.users.GetUserByContact(ctx, c)
	if err == nil {
		return user, nil
	}
	if apperr.KindOf(err) != apperr.KindNotFound {
		return nil, err
	}

	user = &model.User{}
	switch c.Kind {
	case model.ContactEmail:
		user.Email = c.Value
	case model.ContactPhone:
		user.Phone = c.Value
	}

	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// generateCode draws a uniform 6-digit code from crypto/rand
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
