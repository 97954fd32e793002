package provider

import (
	"context"

	"jobdesk-auth/internal/apperr"
	"jobdesk-auth/internal/model"
)

// Provider delivers a one-time code to a contact over a single channel.
// Send returns the provider's message ID for audit trails.
type Provider interface {
	Send(ctx context.Context, contact model.Contact, code string) (string, error)
}

// Dispatcher routes delivery to the channel matching the contact kind
type Dispatcher struct {
	email Provider
	sms   Provider
}

func NewDispatcher(email, sms Provider) *Dispatcher {
	return &Dispatcher{
		email: email,
		sms:   sms,
	}
}

func (d *Dispatcher) Send(ctx context.Context, contact model.Contact, code string) (string, error) {
	var p Provider
	switch contact.Kind {
	case model.ContactEmail:
		p = d.email
	case model.ContactPhone:
		p = d.sms
	}

	if p == nil {
		return "", apperr.New(apperr.KindDeliveryFailure,
			"no delivery provider configured for "+string(contact.Kind))
	}

	return p.Send(ctx, contact, code)
}
