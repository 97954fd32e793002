package provider

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"jobdesk-auth/internal/model"
	"jobdesk-auth/internal/util"
)

// LogProvider writes codes to the application log instead of delivering
// them. Used in development when no real provider is configured.
type LogProvider struct {
	channel string
}

func NewLogProvider(channel string) *LogProvider {
	return &LogProvider{channel: channel}
}

func (p *LogProvider) Send(ctx context.Context, contact model.Contact, code string) (string, error) {
	messageID := uuid.New().String()

	util.Warn("Delivering code via log provider, do not use in production",
		zap.String("channel", p.channel),
		zap.String("contact", contact.Value),
		zap.String("code", code),
		zap.String("message_id", messageID))

	return messageID, nil
}
