package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"jobdesk-auth/internal/apperr"
	"jobdesk-auth/internal/audit"
	"jobdesk-auth/internal/config"
	"jobdesk-auth/internal/model"
	"jobdesk-auth/internal/util"
)

// AccessClaims is the JWT payload for short-lived access tokens
type AccessClaims struct {
	UserID     string `json:"uid"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	IsVerified bool   `json:"verified"`
	jwt.RegisteredClaims
}

// Session is the credential pair handed to a client after login or refresh
type Session struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// TokenService issues HS256 access tokens and rotating refresh tokens.
// Refresh tokens travel as "tokenID.secret"; only the SHA-256 of the
// secret is persisted, so a storage leak exposes nothing replayable.
type TokenService struct {
	tokens model.RefreshTokenRepository
	users  model.UserRepository
	audit  *audit.Publisher
	cfg    config.TokenConfig
}

func NewTokenService(
	tokens model.RefreshTokenRepository,
	users model.UserRepository,
	auditPub *audit.Publisher,
	cfg config.TokenConfig,
) *TokenService {
	return &TokenService{
		tokens: tokens,
		users:  users,
		audit:  auditPub,
		cfg:    cfg,
	}
}

// IssueSession mints a fresh access and refresh token pair for a login
func (s *TokenService) IssueSession(ctx context.Context, user *model.User, deviceInfo string) (*Session, error) {
	session, err := s.mintSession(ctx, user, deviceInfo)
	if err != nil {
		return nil, err
	}

	s.audit.Emit(ctx, audit.Event{
		Type:   audit.EventLogin,
		UserID: user.UserID,
	})

	return session, nil
}

func (s *TokenService) mintSession(ctx context.Context, user *model.User, deviceInfo string) (*Session, error) {
	now := time.Now().UTC()
	accessExpiry := now.Add(s.cfg.AccessTTL)

	claims := &AccessClaims{
		UserID:     user.UserID,
		Email:      user.Email,
		Phone:      user.Phone,
		IsVerified: user.IsVerified,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   user.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(accessExpiry),
			ID:        uuid.New().String(),
		},
	}

	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	refreshToken, refreshExpiry, err := s.issueRefreshToken(ctx, user.UserID, deviceInfo, now)
	if err != nil {
		return nil, err
	}

	return &Session{
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExpiry,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: refreshExpiry,
	}, nil
}

// VerifyAccess parses and validates an access token
func (s *TokenService) VerifyAccess(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.Secret), nil
	}, jwt.WithIssuer(s.cfg.Issuer))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperr.Wrap(apperr.KindTokenExpired, "access token expired", err)
		}
		return nil, apperr.Wrap(apperr.KindTokenInvalid, "access token invalid", err)
	}
	if !token.Valid {
		return nil, apperr.New(apperr.KindTokenInvalid, "access token invalid")
	}

	return claims, nil
}

// Refresh rotates a refresh token: the presented token is revoked and a
// new session is issued. A revoked or expired token never rotates.
func (s *TokenService) Refresh(ctx context.Context, presented, deviceInfo string) (*Session, *model.User, error) {
	record, err := s.lookup(ctx, presented)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	if record.Revoked {
		return nil, nil, apperr.New(apperr.KindTokenRevoked, "refresh token revoked")
	}
	if now.After(record.ExpiresAt) {
		return nil, nil, apperr.New(apperr.KindTokenExpired, "refresh token expired")
	}

	user, err := s.users.GetUserByID(ctx, record.UserID)
	if err != nil {
		return nil, nil, err
	}

	if err := s.tokens.RevokeToken(ctx, record.TokenID); err != nil {
		return nil, nil, fmt.Errorf("failed to rotate refresh token: %w", err)
	}

	session, err := s.mintSession(ctx, user, deviceInfo)
	if err != nil {
		return nil, nil, err
	}

	s.audit.Emit(ctx, audit.Event{
		Type:   audit.EventTokenRefreshed,
		UserID: user.UserID,
	})

	util.Debug("Refresh token rotated",
		zap.String("user_id", user.UserID),
		zap.String("old_token_id", record.TokenID))

	return session, user, nil
}

// Revoke invalidates a single refresh token. Unknown or already revoked
// tokens are treated as success so logout is idempotent.
func (s *TokenService) Revoke(ctx context.Context, presented string) error {
	record, err := s.lookup(ctx, presented)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindTokenInvalid {
			return nil
		}
		return err
	}
	if record.Revoked {
		return nil
	}

	if err := s.tokens.RevokeToken(ctx, record.TokenID); err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}

	s.audit.Emit(ctx, audit.Event{
		Type:   audit.EventLogout,
		UserID: record.UserID,
	})

	return nil
}

// RevokeAllForUser invalidates every outstanding refresh token for a user
func (s *TokenService) RevokeAllForUser(ctx context.Context, userID string) error {
	if err := s.tokens.RevokeAllForUser(ctx, userID); err != nil {
		return err
	}

	s.audit.Emit(ctx, audit.Event{
		Type:   audit.EventRevokeAll,
		UserID: userID,
	})

	return nil
}

func (s *TokenService) issueRefreshToken(ctx context.Context, userID, deviceInfo string, now time.Time) (string, time.Time, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate refresh secret: %w", err)
	}

	tokenID := uuid.New().String()
	secret := base64.RawURLEncoding.EncodeToString(secretBytes)
	expiry := now.Add(s.cfg.RefreshTTL)

	record := &model.RefreshToken{
		TokenID:    tokenID,
		UserID:     userID,
		TokenHash:  hashRefreshSecret(secret),
		DeviceInfo: deviceInfo,
		IssuedAt:   now,
		ExpiresAt:  expiry,
	}

	if err := s.tokens.CreateToken(ctx, record); err != nil {
		return "", time.Time{}, err
	}

	return tokenID + "." + secret, expiry, nil
}

// lookup parses the wire form, loads the record, and checks the secret
func (s *TokenService) lookup(ctx context.Context, presented string) (*model.RefreshToken, error) {
	tokenID, secret, ok := strings.Cut(presented, ".")
	if !ok || tokenID == "" || secret == "" {
		return nil, apperr.New(apperr.KindTokenInvalid, "refresh token malformed")
	}

	record, err := s.tokens.GetToken(ctx, tokenID)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, apperr.New(apperr.KindTokenInvalid, "refresh token unknown")
		}
		return nil, err
	}

	presentedHash := hashRefreshSecret(secret)
	if subtle.ConstantTimeCompare([]byte(presentedHash), []byte(record.TokenHash)) != 1 {
		return nil, apperr.New(apperr.KindTokenInvalid, "refresh token mismatch")
	}

	return record, nil
}

func hashRefreshSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
