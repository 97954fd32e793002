package provider

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"jobdesk-auth/internal/apperr"
	"jobdesk-auth/internal/config"
	"jobdesk-auth/internal/model"
	"jobdesk-auth/internal/util"
)

// SMTPEmailProvider delivers codes by email over an authenticated SMTP relay
type SMTPEmailProvider struct {
	addr string
	auth smtp.Auth
	from string
}

func NewSMTPEmailProvider(cfg config.ProvidersConfig) *SMTPEmailProvider {
	var auth smtp.Auth
	if cfg.SMTPUsername != "" {
		auth = smtp.PlainAuth("", cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPHost)
	}

	return &SMTPEmailProvider{
		addr: fmt.Sprintf("%s:%d", cfg.SMTPHost, cfg.SMTPPort),
		auth: auth,
		from: cfg.SMTPFrom,
	}
}

func (p *SMTPEmailProvider) Send(ctx context.Context, contact model.Contact, code string) (string, error) {
	messageID := uuid.New().String()

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", p.from)
	fmt.Fprintf(&msg, "To: %s\r\n", contact.Value)
	fmt.Fprintf(&msg, "Message-ID: <%s@jobdesk>\r\n", messageID)
	fmt.Fprintf(&msg, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	msg.WriteString("Subject: Your Jobdesk verification code\r\n")
	msg.WriteString("\r\n")
	fmt.Fprintf(&msg, "Your verification code is %s. It expires in 10 minutes.\r\n", code)

	// smtp.SendMail has no context support; run it in a goroutine so a
	// cancelled request does not hang on a slow relay
	errCh := make(chan error, 1)
	go func() {
		errCh <- smtp.SendMail(p.addr, p.auth, p.from, []string{contact.Value}, []byte(msg.String()))
	}()

	select {
	case err := <-errCh:
		if err != nil {
			util.Error("Failed to send email", zap.Error(err))
			return "", apperr.Wrap(apperr.KindDeliveryFailure, "email delivery failed", err)
		}
	case <-ctx.Done():
		return "", apperr.Wrap(apperr.KindDeliveryFailure, "email delivery cancelled", ctx.Err())
	}

	util.Debug("Email sent", zap.String("message_id", messageID))
	return messageID, nil
}
