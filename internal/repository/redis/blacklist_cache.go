package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"jobdesk-auth/internal/client"
	"jobdesk-auth/internal/model"
	"jobdesk-auth/internal/util"
)

const blacklistPrefix = "blacklist:"

type blacklistPayload struct {
	Reason        model.BlacklistReason `json:"reason"`
	BlacklistedAt time.Time             `json:"blacklisted_at"`
}

// BlacklistCache stores at most one ban per contact. Timed bans carry a redis
// TTL; manual bans have none and stay until ClearBan.
type BlacklistCache struct {
	client *client.RedisClient
}

func NewBlacklistCache(client *client.RedisClient) *BlacklistCache {
	return &BlacklistCache{client: client}
}

var _ model.BlacklistStore = (*BlacklistCache)(nil)

func blacklistKey(contact model.Contact) string {
	return blacklistPrefix + contact.Key()
}

func (c *BlacklistCache) IsBlacklisted(ctx context.Context, contact model.Contact) (*model.BlacklistEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	key := blacklistKey(contact)
	raw, err := c.client.Get(ctx, key)
	if err != nil {
		if strings.Contains(err.Error(), "key not found") {
			return nil, nil
		}
		util.Error("Failed to check blacklist",
			zap.String("contact", contact.Key()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to check blacklist: %w", err)
	}

	var payload blacklistPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		util.Error("Corrupt blacklist entry",
			zap.String("contact", contact.Key()),
			zap.Error(err))
		return nil, fmt.Errorf("corrupt blacklist entry: %w", err)
	}

	entry := &model.BlacklistEntry{
		Contact:       contact,
		Reason:        payload.Reason,
		BlacklistedAt: payload.BlacklistedAt,
	}

	// Derive expiry from the key TTL; -1 means a manual, unbounded ban
	ttl, err := c.client.TTL(ctx, key)
	if err == nil && ttl > 0 {
		expiresAt := time.Now().UTC().Add(ttl)
		entry.ExpiresAt = &expiresAt
	}

	return entry, nil
}

func (c *BlacklistCache) UpsertBan(ctx context.Context, contact model.Contact, reason model.BlacklistReason, cooldown time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	payload, err := json.Marshal(blacklistPayload{
		Reason:        reason,
		BlacklistedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode blacklist entry: %w", err)
	}

	// cooldown 0 leaves the key without TTL (manual ban)
	if err := c.client.Set(ctx, blacklistKey(contact), payload, cooldown); err != nil {
		util.Error("Failed to upsert blacklist entry",
			zap.String("contact", contact.Key()),
			zap.String("reason", string(reason)),
			zap.Error(err))
		return fmt.Errorf("failed to upsert blacklist entry: %w", err)
	}

	util.Warn("Contact blacklisted",
		zap.String("contact", contact.Key()),
		zap.String("reason", string(reason)),
		zap.Duration("cooldown", cooldown))

	return nil
}

func (c *BlacklistCache) ClearBan(ctx context.Context, contact model.Contact) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := c.client.Del(ctx, blacklistKey(contact)); err != nil {
		util.Error("Failed to clear blacklist entry",
			zap.String("contact", contact.Key()),
			zap.Error(err))
		return fmt.Errorf("failed to clear blacklist entry: %w", err)
	}

	util.Info("Blacklist entry cleared", zap.String("contact", contact.Key()))
	return nil
}
