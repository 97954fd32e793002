package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"jobdesk-auth/internal/apperr"
	"jobdesk-auth/internal/client"
	"jobdesk-auth/internal/model"
)

func newTestClient(t *testing.T) (*client.RedisClient, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return client.NewRedisClientFromExisting(rdb), mr
}

func testRecord(contact model.Contact, hash string, ttl time.Duration) *model.OTPRecord {
	now := time.Now().UTC()
	return &model.OTPRecord{
		Contact:      contact,
		CodeHash:     hash,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
		LastResendAt: now,
		ResendCount:  1,
	}
}

func TestOTPCacheUpsertAndGet(t *testing.T) {
	rc, _ := newTestClient(t)
	cache := NewOTPCache(rc)
	ctx := context.Background()
	contact := model.Contact{Value: "user@example.com", Kind: model.ContactEmail}

	if err := cache.UpsertActiveCode(ctx, testRecord(contact, "hash-1", 10*time.Minute)); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	rec, err := cache.GetActiveCode(ctx, contact)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if rec.CodeHash != "hash-1" || rec.IsUsed || rec.AttemptCount != 0 {
		t.Errorf("unexpected record: %+v", rec)
	}
}

func TestOTPCacheLatestWins(t *testing.T) {
	rc, _ := newTestClient(t)
	cache := NewOTPCache(rc)
	ctx := context.Background()
	contact := model.Contact{Value: "+15551234567", Kind: model.ContactPhone}

	if err := cache.UpsertActiveCode(ctx, testRecord(contact, "hash-1", 10*time.Minute)); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}
	if _, err := cache.RecordAttempt(ctx, contact); err != nil {
		t.Fatalf("attempt failed: %v", err)
	}

	// Second send replaces the record entirely, resetting attempts
	if err := cache.UpsertActiveCode(ctx, testRecord(contact, "hash-2", 10*time.Minute)); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	rec, err := cache.GetActiveCode(ctx, contact)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if rec.CodeHash != "hash-2" {
		t.Errorf("CodeHash = %q, want hash-2", rec.CodeHash)
	}
	if rec.AttemptCount != 0 {
		t.Errorf("AttemptCount = %d, want 0 after replacement", rec.AttemptCount)
	}
}

func TestOTPCacheRecordAttempt(t *testing.T) {
	rc, _ := newTestClient(t)
	cache := NewOTPCache(rc)
	ctx := context.Background()
	contact := model.Contact{Value: "user@example.com", Kind: model.ContactEmail}

	if _, err := cache.RecordAttempt(ctx, contact); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected not-found for missing record, got %v", err)
	}

	if err := cache.UpsertActiveCode(ctx, testRecord(contact, "hash-1", 10*time.Minute)); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	for want := 1; want <= 3; want++ {
		got, err := cache.RecordAttempt(ctx, contact)
		if err != nil {
			t.Fatalf("attempt %d failed: %v", want, err)
		}
		if got != want {
			t.Errorf("attempt count = %d, want %d", got, want)
		}
	}
}

func TestOTPCacheMarkUsed(t *testing.T) {
	rc, _ := newTestClient(t)
	cache := NewOTPCache(rc)
	ctx := context.Background()
	contact := model.Contact{Value: "user@example.com", Kind: model.ContactEmail}

	if err := cache.MarkUsed(ctx, contact); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected not-found for missing record, got %v", err)
	}

	if err := cache.UpsertActiveCode(ctx, testRecord(contact, "hash-1", 10*time.Minute)); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if err := cache.MarkUsed(ctx, contact); err != nil {
		t.Fatalf("mark used failed: %v", err)
	}

	rec, err := cache.GetActiveCode(ctx, contact)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !rec.IsUsed {
		t.Error("IsUsed = false, want true")
	}
}

func TestOTPCacheExpiry(t *testing.T) {
	rc, mr := newTestClient(t)
	cache := NewOTPCache(rc)
	ctx := context.Background()
	contact := model.Contact{Value: "user@example.com", Kind: model.ContactEmail}

	if err := cache.UpsertActiveCode(ctx, testRecord(contact, "hash-1", time.Minute)); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if _, err := cache.GetActiveCode(ctx, contact); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected not-found after expiry, got %v", err)
	}
}

func TestOTPCacheResendCounter(t *testing.T) {
	rc, mr := newTestClient(t)
	cache := NewOTPCache(rc)
	ctx := context.Background()
	contact := model.Contact{Value: "user@example.com", Kind: model.ContactEmail}

	for want := 1; want <= 3; want++ {
		got, err := cache.IncrementResendCount(ctx, contact, 30*time.Minute)
		if err != nil {
			t.Fatalf("increment %d failed: %v", want, err)
		}
		if got != want {
			t.Errorf("resend count = %d, want %d", got, want)
		}
	}

	mr.FastForward(31 * time.Minute)

	got, err := cache.IncrementResendCount(ctx, contact, 30*time.Minute)
	if err != nil {
		t.Fatalf("increment after window failed: %v", err)
	}
	if got != 1 {
		t.Errorf("resend count = %d, want 1 after window reset", got)
	}
}

func TestBlacklistCacheTimedBan(t *testing.T) {
	rc, mr := newTestClient(t)
	cache := NewBlacklistCache(rc)
	ctx := context.Background()
	contact := model.Contact{Value: "user@example.com", Kind: model.ContactEmail}

	entry, err := cache.IsBlacklisted(ctx, contact)
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if entry != nil {
		t.Fatalf("expected clean contact, got %+v", entry)
	}

	if err := cache.UpsertBan(ctx, contact, model.BlacklistMaxAttempts, time.Minute); err != nil {
		t.Fatalf("upsert ban failed: %v", err)
	}

	entry, err = cache.IsBlacklisted(ctx, contact)
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if entry == nil {
		t.Fatal("expected ban, got nil")
	}
	if entry.Reason != model.BlacklistMaxAttempts {
		t.Errorf("Reason = %q, want max_attempts", entry.Reason)
	}
	if entry.ExpiresAt == nil {
		t.Error("ExpiresAt = nil, want bounded cooldown")
	}

	mr.FastForward(2 * time.Minute)

	entry, err = cache.IsBlacklisted(ctx, contact)
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if entry != nil {
		t.Errorf("expected ban to lapse, got %+v", entry)
	}
}

func TestBlacklistCacheManualBan(t *testing.T) {
	rc, mr := newTestClient(t)
	cache := NewBlacklistCache(rc)
	ctx := context.Background()
	contact := model.Contact{Value: "+15551234567", Kind: model.ContactPhone}

	if err := cache.UpsertBan(ctx, contact, model.BlacklistManual, 0); err != nil {
		t.Fatalf("upsert ban failed: %v", err)
	}

	mr.FastForward(24 * time.Hour)

	entry, err := cache.IsBlacklisted(ctx, contact)
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if entry == nil {
		t.Fatal("manual ban should not lapse")
	}
	if entry.ExpiresAt != nil {
		t.Errorf("ExpiresAt = %v, want nil for manual ban", entry.ExpiresAt)
	}

	if err := cache.ClearBan(ctx, contact); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	entry, err = cache.IsBlacklisted(ctx, contact)
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if entry != nil {
		t.Errorf("expected ban cleared, got %+v", entry)
	}
}

func TestBlacklistCacheUpsertOverwrites(t *testing.T) {
	rc, _ := newTestClient(t)
	cache := NewBlacklistCache(rc)
	ctx := context.Background()
	contact := model.Contact{Value: "user@example.com", Kind: model.ContactEmail}

	if err := cache.UpsertBan(ctx, contact, model.BlacklistMaxAttempts, time.Minute); err != nil {
		t.Fatalf("first ban failed: %v", err)
	}
	if err := cache.UpsertBan(ctx, contact, model.BlacklistManual, 0); err != nil {
		t.Fatalf("second ban failed: %v", err)
	}

	entry, err := cache.IsBlacklisted(ctx, contact)
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if entry == nil || entry.Reason != model.BlacklistManual {
		t.Errorf("expected manual ban to overwrite, got %+v", entry)
	}
	if entry != nil && entry.ExpiresAt != nil {
		t.Errorf("expected indefinite ban after overwrite, got expiry %v", entry.ExpiresAt)
	}
}

func TestRateLimitCacheWindow(t *testing.T) {
	rc, mr := newTestClient(t)
	cache := NewRateLimitCache(rc)
	ctx := context.Background()
	contact := model.Contact{Value: "user@example.com", Kind: model.ContactEmail}

	for want := 1; want <= 3; want++ {
		got, err := cache.IncrementSendCounter(ctx, contact, 10*time.Minute)
		if err != nil {
			t.Fatalf("increment %d failed: %v", want, err)
		}
		if got != want {
			t.Errorf("count = %d, want %d", got, want)
		}
	}

	retryAfter, err := cache.SendRetryAfter(ctx, contact)
	if err != nil {
		t.Fatalf("retry-after failed: %v", err)
	}
	if retryAfter <= 0 {
		t.Errorf("retryAfter = %v, want positive", retryAfter)
	}

	mr.FastForward(11 * time.Minute)

	got, err := cache.IncrementSendCounter(ctx, contact, 10*time.Minute)
	if err != nil {
		t.Fatalf("increment after window failed: %v", err)
	}
	if got != 1 {
		t.Errorf("count = %d, want 1 after window reset", got)
	}
}

func TestOTPCacheSweepStaleKeys(t *testing.T) {
	rc, mr := newTestClient(t)
	cache := NewOTPCache(rc)
	ctx := context.Background()
	contact := model.Contact{Value: "user@example.com", Kind: model.ContactEmail}

	if err := cache.UpsertActiveCode(ctx, testRecord(contact, "hash-1", 10*time.Minute)); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	// A counter key written without expiry must still be visited
	mr.Set("otp_resends:email:stuck@example.com", "3")

	checked, err := cache.SweepStaleKeys(ctx)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if checked < 2 {
		t.Errorf("checked = %d, want at least 2", checked)
	}
}
