package service

import (
	"jobdesk-auth/internal/audit"
	"jobdesk-auth/internal/config"
	"jobdesk-auth/internal/contact"
	"jobdesk-auth/internal/hashing"
	"jobdesk-auth/internal/model"
	"jobdesk-auth/internal/provider"
)

// ServiceFactory creates and manages service instances
type ServiceFactory struct {
	cfg       *config.Config
	otps      model.OTPStore
	blacklist model.BlacklistStore
	rates     model.RateLimitStore
	users     model.UserRepository
	tokens    model.RefreshTokenRepository
	hasher    *hashing.Hasher
	delivery  provider.Provider
	validator *contact.Validator
	audit     *audit.Publisher

	otpService   *OTPService
	tokenService *TokenService
}

func NewServiceFactory(
	cfg *config.Config,
	otps model.OTPStore,
	blacklist model.BlacklistStore,
	rates model.RateLimitStore,
	users model.UserRepository,
	tokens model.RefreshTokenRepository,
	hasher *hashing.Hasher,
	delivery provider.Provider,
	auditPub *audit.Publisher,
) *ServiceFactory {
	return &ServiceFactory{
		cfg:       cfg,
		otps:      otps,
		blacklist: blacklist,
		rates:     rates,
		users:     users,
		tokens:    tokens,
		hasher:    hasher,
		delivery:  delivery,
		validator: contact.NewValidator(cfg.OTP.DefaultCountryCode),
		audit:     auditPub,
	}
}

// OTPService returns the OTP service instance (singleton)
func (f *ServiceFactory) OTPService() *OTPService {
	if f.otpService == nil {
		f.otpService = NewOTPService(
			f.otps,
			f.blacklist,
			f.rates,
			f.users,
			f.hasher,
			f.delivery,
			f.validator,
			f.audit,
			f.cfg.OTP,
		)
	}
	return f.otpService
}

// TokenService returns the token service instance (singleton)
func (f *ServiceFactory) TokenService() *TokenService {
	if f.tokenService == nil {
		f.tokenService = NewTokenService(
			f.tokens,
			f.users,
			f.audit,
			f.cfg.Token,
		)
	}
	return f.tokenService
}
