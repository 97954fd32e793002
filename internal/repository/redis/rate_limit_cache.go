package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"jobdesk-auth/internal/client"
	"jobdesk-auth/internal/model"
	"jobdesk-auth/internal/util"
)

const sendRatePrefix = "otp_send_rate:"

// RateLimitCache enforces the per-contact send ceiling with a fixed-window
// counter. Increment and expiry run in one MULTI/EXEC, so two simultaneous
// sends for one contact observe distinct counter values.
type RateLimitCache struct {
	client *client.RedisClient
}

func NewRateLimitCache(client *client.RedisClient) *RateLimitCache {
	return &RateLimitCache{client: client}
}

var _ model.RateLimitStore = (*RateLimitCache)(nil)

func sendRateKey(contact model.Contact) string {
	return sendRatePrefix + contact.Key()
}

func (c *RateLimitCache) IncrementSendCounter(ctx context.Context, contact model.Contact, window time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	count, err := c.client.IncrWithExpire(ctx, sendRateKey(contact), window)
	if err != nil {
		util.Error("Failed to increment send counter",
			zap.String("contact", contact.Key()),
			zap.Duration("window", window),
			zap.Error(err))
		return 0, fmt.Errorf("failed to increment send counter: %w", err)
	}

	util.Debug("Send counter incremented",
		zap.String("contact", contact.Key()),
		zap.Int("count", int(count)))

	return int(count), nil
}

func (c *RateLimitCache) SendRetryAfter(ctx context.Context, contact model.Contact) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	ttl, err := c.client.TTL(ctx, sendRateKey(contact))
	if err != nil {
		return 0, fmt.Errorf("failed to get send counter TTL: %w", err)
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}
