package provider

import (
	"context"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"

	"jobdesk-auth/internal/apperr"
	"jobdesk-auth/internal/config"
	"jobdesk-auth/internal/model"
	"jobdesk-auth/internal/util"
)

// TwilioSMSProvider delivers codes over SMS through the Twilio REST API
type TwilioSMSProvider struct {
	client *twilio.RestClient
	from   string
}

func NewTwilioSMSProvider(cfg config.ProvidersConfig) (*TwilioSMSProvider, error) {
	if cfg.TwilioAccountSID == "" || cfg.TwilioAuthToken == "" || cfg.TwilioFromNumber == "" {
		return nil, fmt.Errorf("missing twilio credentials")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.TwilioAccountSID,
		Password: cfg.TwilioAuthToken,
	})

	return &TwilioSMSProvider{
		client: client,
		from:   cfg.TwilioFromNumber,
	}, nil
}

func (p *TwilioSMSProvider) Send(ctx context.Context, contact model.Contact, code string) (string, error) {
	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(p.from)
	params.SetTo(contact.Value)
	params.SetBody(fmt.Sprintf("Your Jobdesk verification code is %s. It expires in 10 minutes.", code))

	resp, err := p.client.Api.CreateMessage(params)
	if err != nil {
		util.Error("Failed to send SMS", zap.Error(err))
		return "", apperr.Wrap(apperr.KindDeliveryFailure, "sms delivery failed", err)
	}

	messageID := ""
	if resp.Sid != nil {
		messageID = *resp.Sid
	}

	util.Debug("SMS sent", zap.String("message_id", messageID))
	return messageID, nil
}
