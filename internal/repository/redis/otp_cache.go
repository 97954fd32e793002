package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"jobdesk-auth/internal/apperr"
	"jobdesk-auth/internal/client"
	"jobdesk-auth/internal/model"
	"jobdesk-auth/internal/util"
)

const (
	otpPrefix       = "otp:"
	otpResendPrefix = "otp_resends:"
)

// recordAttemptScript bumps the failed-attempt counter only while a live
// record exists; -1 signals that the record is gone (expired or never sent).
const recordAttemptScript = `
	if redis.call('EXISTS', KEYS[1]) == 1 then
		return redis.call('HINCRBY', KEYS[1], 'attempt_count', 1)
	end
	return -1
`

const markUsedScript = `
	if redis.call('EXISTS', KEYS[1]) == 1 then
		redis.call('HSET', KEYS[1], 'is_used', '1')
		return 1
	end
	return 0
`

// OTPCache holds the single live OTP record per contact in a redis hash whose
// TTL matches the code expiry. Every mutation is atomic server-side, so
// concurrent requests for one contact settle on latest-wins without app locks.
type OTPCache struct {
	client *client.RedisClient
}

func NewOTPCache(client *client.RedisClient) *OTPCache {
	return &OTPCache{client: client}
}

var _ model.OTPStore = (*OTPCache)(nil)

func otpKey(contact model.Contact) string {
	return otpPrefix + contact.Key()
}

func (c *OTPCache) UpsertActiveCode(ctx context.Context, rec *model.OTPRecord) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	ttl := time.Until(rec.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("refusing to store already-expired OTP record")
	}

	key := otpKey(rec.Contact)

	// DEL+HSET inside MULTI/EXEC so a replaced record never leaks old fields
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key,
		"code_hash", rec.CodeHash,
		"created_at", rec.CreatedAt.Unix(),
		"expires_at", rec.ExpiresAt.Unix(),
		"is_used", boolToField(rec.IsUsed),
		"attempt_count", rec.AttemptCount,
		"resend_count", rec.ResendCount,
		"last_resend_at", rec.LastResendAt.Unix(),
	)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		util.Error("Failed to upsert OTP record",
			zap.String("contact", rec.Contact.Key()),
			zap.Error(err))
		return fmt.Errorf("failed to upsert OTP record: %w", err)
	}

	util.Debug("OTP record upserted",
		zap.String("contact", rec.Contact.Key()),
		zap.Time("expires_at", rec.ExpiresAt))

	return nil
}

func (c *OTPCache) GetActiveCode(ctx context.Context, contact model.Contact) (*model.OTPRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	fields, err := c.client.HGetAll(ctx, otpKey(contact))
	if err != nil {
		util.Error("Failed to get OTP record",
			zap.String("contact", contact.Key()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get OTP record: %w", err)
	}
	if len(fields) == 0 {
		return nil, apperr.New(apperr.KindNotFound, "no active code for contact")
	}

	rec, err := decodeRecord(contact, fields)
	if err != nil {
		util.Error("Corrupt OTP record",
			zap.String("contact", contact.Key()),
			zap.Error(err))
		return nil, fmt.Errorf("corrupt OTP record: %w", err)
	}
	return rec, nil
}

func (c *OTPCache) RecordAttempt(ctx context.Context, contact model.Contact) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result, err := c.client.Eval(ctx, recordAttemptScript, []string{otpKey(contact)})
	if err != nil {
		util.Error("Failed to record OTP attempt",
			zap.String("contact", contact.Key()),
			zap.Error(err))
		return 0, fmt.Errorf("failed to record OTP attempt: %w", err)
	}

	count, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected result type from attempt script")
	}
	if count < 0 {
		return 0, apperr.New(apperr.KindNotFound, "no active code for contact")
	}

	util.Debug("OTP attempt recorded",
		zap.String("contact", contact.Key()),
		zap.Int("attempt_count", int(count)))

	return int(count), nil
}

func (c *OTPCache) MarkUsed(ctx context.Context, contact model.Contact) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result, err := c.client.Eval(ctx, markUsedScript, []string{otpKey(contact)})
	if err != nil {
		util.Error("Failed to mark OTP used",
			zap.String("contact", contact.Key()),
			zap.Error(err))
		return fmt.Errorf("failed to mark OTP used: %w", err)
	}
	if set, ok := result.(int64); !ok || set == 0 {
		return apperr.New(apperr.KindNotFound, "no active code for contact")
	}

	util.Debug("OTP marked used", zap.String("contact", contact.Key()))
	return nil
}

func (c *OTPCache) IncrementResendCount(ctx context.Context, contact model.Contact, window time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	key := otpResendPrefix + contact.Key()
	count, err := c.client.IncrWithExpire(ctx, key, window)
	if err != nil {
		util.Error("Failed to increment resend counter",
			zap.String("contact", contact.Key()),
			zap.Error(err))
		return 0, fmt.Errorf("failed to increment resend counter: %w", err)
	}

	return int(count), nil
}

// SweepStaleKeys walks the OTP keyspace and reports keys that lost their TTL.
// Expiry itself is redis's job; the sweep exists to surface keys that would
// otherwise linger forever after a partial write.
func (c *OTPCache) SweepStaleKeys(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	patterns := []string{
		otpPrefix + "*",
		otpResendPrefix + "*",
	}

	checked := 0
	for _, pattern := range patterns {
		cursor := uint64(0)
		for {
			keys, nextCursor, err := c.client.Scan(ctx, cursor, pattern, 100)
			if err != nil {
				util.Error("Failed to scan keys for sweep",
					zap.String("pattern", pattern),
					zap.Error(err))
				return checked, fmt.Errorf("failed to scan keys: %w", err)
			}

			for _, key := range keys {
				ttl, err := c.client.TTL(ctx, key)
				if err != nil {
					continue
				}
				if ttl == -1 {
					util.Warn("Found OTP key without TTL", zap.String("key", key))
				}
			}

			checked += len(keys)
			cursor = nextCursor
			if cursor == 0 {
				break
			}
		}
	}

	util.Info("OTP key sweep completed", zap.Int("keys_checked", checked))
	return checked, nil
}

func decodeRecord(contact model.Contact, fields map[string]string) (*model.OTPRecord, error) {
	createdAt, err := parseUnixField(fields, "created_at")
	if err != nil {
		return nil, err
	}
	expiresAt, err := parseUnixField(fields, "expires_at")
	if err != nil {
		return nil, err
	}
	lastResendAt, err := parseUnixField(fields, "last_resend_at")
	if err != nil {
		return nil, err
	}
	attemptCount, err := strconv.Atoi(fields["attempt_count"])
	if err != nil {
		return nil, fmt.Errorf("bad attempt_count %q: %w", fields["attempt_count"], err)
	}
	resendCount, err := strconv.Atoi(fields["resend_count"])
	if err != nil {
		return nil, fmt.Errorf("bad resend_count %q: %w", fields["resend_count"], err)
	}

	return &model.OTPRecord{
		Contact:      contact,
		CodeHash:     fields["code_hash"],
		CreatedAt:    createdAt,
		ExpiresAt:    expiresAt,
		IsUsed:       fields["is_used"] == "1",
		AttemptCount: attemptCount,
		ResendCount:  resendCount,
		LastResendAt: lastResendAt,
	}, nil
}

func parseUnixField(fields map[string]string, name string) (time.Time, error) {
	raw, ok := fields[name]
	if !ok {
		return time.Time{}, fmt.Errorf("missing field %s", name)
	}
	sec, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad %s %q: %w", name, raw, err)
	}
	return time.Unix(sec, 0).UTC(), nil
}

func boolToField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
