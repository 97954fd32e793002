package audit

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"jobdesk-auth/internal/client"
	"jobdesk-auth/internal/util"
)

// Event types published to the auth-events topic
const (
	EventOTPSent        = "otp.sent"
	EventOTPVerified    = "otp.verified"
	EventOTPFailed      = "otp.failed"
	EventBlacklisted    = "otp.blacklisted"
	EventUnblacklisted  = "otp.unblacklisted"
	EventLogin          = "auth.login"
	EventTokenRefreshed = "auth.token_refreshed"
	EventLogout         = "auth.logout"
	EventRevokeAll      = "auth.revoke_all"
)

// Event is a single security-relevant occurrence in the auth flow
type Event struct {
	Type       string            `json:"type"`
	UserID     string            `json:"user_id,omitempty"`
	ContactKey string            `json:"contact_key,omitempty"`
	Reason     string            `json:"reason,omitempty"`
	MessageID  string            `json:"message_id,omitempty"`
	At         time.Time         `json:"at"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Publisher fans events out to Kafka and ClickHouse. Both sinks are
// optional and best effort: a failed emit is logged, never surfaced to
// the request path.
type Publisher struct {
	kafka      *client.KafkaProducer
	clickhouse *client.ClickHouseClient
}

func NewPublisher(kafka *client.KafkaProducer, clickhouse *client.ClickHouseClient) *Publisher {
	return &Publisher{
		kafka:      kafka,
		clickhouse: clickhouse,
	}
}

const insertSecurityEvent = `
    INSERT INTO security_events (event_date, event_type, user_id, contact_key, reason, message_id, created_at)
    VALUES (?, ?, ?, ?, ?, ?, ?)`

// Emit records the event in every configured sink
func (p *Publisher) Emit(ctx context.Context, ev Event) {
	if p == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	if p.kafka != nil {
		payload, err := json.Marshal(ev)
		if err != nil {
			util.Error("Failed to marshal audit event", zap.Error(err))
			return
		}

		key := ev.ContactKey
		if key == "" {
			key = ev.UserID
		}

		if err := p.kafka.Publish(ctx, []byte(key), payload); err != nil {
			util.Warn("Failed to publish audit event",
				zap.String("event_type", ev.Type),
				zap.Error(err))
		}
	}

	if p.clickhouse != nil {
		err := p.clickhouse.Exec(ctx, insertSecurityEvent,
			ev.At.Format("2006-01-02"), ev.Type, ev.UserID,
			ev.ContactKey, ev.Reason, ev.MessageID, ev.At)
		if err != nil {
			util.Warn("Failed to record security event",
				zap.String("event_type", ev.Type),
				zap.Error(err))
		}
	}
}
