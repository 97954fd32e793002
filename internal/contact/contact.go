package contact

import (
	"regexp"
	"strings"

	"jobdesk-auth/internal/apperr"
	"jobdesk-auth/internal/model"
)

// RFC 5322-ish address grammar; length bounds are enforced separately
var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)+$`)

var nonDigits = regexp.MustCompile(`[^0-9]`)

// Validator normalizes and validates login identifiers. It is pure: no I/O,
// no side effects; an invalid format is the only failure.
type Validator struct {
	defaultCountryCode string
}

func NewValidator(defaultCountryCode string) *Validator {
	if defaultCountryCode == "" {
		defaultCountryCode = "1"
	}
	return &Validator{defaultCountryCode: defaultCountryCode}
}

// Validate reports whether value is a well-formed identifier of the kind
func (v *Validator) Validate(value string, kind model.ContactKind) bool {
	switch kind {
	case model.ContactEmail:
		return v.validEmail(value)
	case model.ContactPhone:
		return v.validPhone(value)
	default:
		return false
	}
}

// Normalize returns the canonical contact for value, or a validation error
func (v *Validator) Normalize(value string, kind model.ContactKind) (model.Contact, error) {
	switch kind {
	case model.ContactEmail:
		normalized := strings.ToLower(strings.TrimSpace(value))
		if !v.validEmail(normalized) {
			return model.Contact{}, apperr.New(apperr.KindValidation, "invalid email address")
		}
		return model.Contact{Value: normalized, Kind: model.ContactEmail}, nil
	case model.ContactPhone:
		normalized := v.SanitizePhoneNumber(value)
		if !v.validPhone(normalized) {
			return model.Contact{}, apperr.New(apperr.KindValidation, "invalid phone number")
		}
		return model.Contact{Value: normalized, Kind: model.ContactPhone}, nil
	default:
		return model.Contact{}, apperr.New(apperr.KindValidation, "unsupported contact type")
	}
}

// SanitizePhoneNumber reduces a phone number to canonical international
// dialing form: leading +, country code, digits only. Idempotent.
func (v *Validator) SanitizePhoneNumber(value string) string {
	digits := nonDigits.ReplaceAllString(value, "")
	if digits == "" {
		return ""
	}

	switch {
	case len(digits) == 10:
		// Bare national number: assume the default country code
		return "+" + v.defaultCountryCode + digits
	case len(digits) == 10+len(v.defaultCountryCode) && strings.HasPrefix(digits, v.defaultCountryCode):
		return "+" + digits
	default:
		// Already international form, just restore the prefix
		return "+" + digits
	}
}

func (v *Validator) validEmail(value string) bool {
	if len(value) > 254 {
		return false
	}
	at := strings.LastIndex(value, "@")
	if at <= 0 || at == len(value)-1 {
		return false
	}
	local, domain := value[:at], value[at+1:]
	if len(local) > 64 || len(domain) > 253 {
		return false
	}
	if strings.Contains(value, "..") {
		return false
	}
	return emailPattern.MatchString(value)
}

func (v *Validator) validPhone(value string) bool {
	if !strings.HasPrefix(value, "+") {
		return false
	}
	digits := nonDigits.ReplaceAllString(value, "")
	return len(digits) >= 7 && len(digits) <= 15
}
